package orders

import "fmt"

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCancelled Status = "CANCELLED"
)

var validNext = map[Status]map[Status]bool{
	StatusPending:   {StatusCancelled: true},
	StatusCancelled: {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

// ParseStatus accepts the wire form of a status. An empty string yields the
// empty Status, which list operations treat as "no filter".
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case "", StatusPending, StatusCancelled:
		return st, nil
	default:
		return "", &ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", s)}
	}
}

// NextStates lists the statuses reachable from s. Terminal states yield none.
func NextStates(s Status) []Status {
	var out []Status
	for to, ok := range validNext[s] {
		if ok {
			out = append(out, to)
		}
	}
	return out
}
