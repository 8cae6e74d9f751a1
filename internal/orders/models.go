package orders

import (
	"time"

	"github.com/shopspring/decimal"
)

type Role string

const (
	RoleAdmin  Role = "ADMIN"
	RoleClient Role = "CLIENT"
)

func (r Role) Valid() bool { return r == RoleAdmin || r == RoleClient }

// Principal is the authenticated caller as resolved by the auth gate.
type Principal struct {
	Email string
	Role  Role
}

func (p Principal) IsAdmin() bool { return p.Role == RoleAdmin }

type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Role         Role
}

type Product struct {
	ID          string
	Name        string
	Description string
	UnitPrice   decimal.Decimal
	Stock       int
	Category    string
}

type Order struct {
	ID        string
	CreatedAt time.Time
	Total     decimal.Decimal
	Owner     User
	Status    Status
	Lines     []OrderLine
}

// OrderLine keeps the price captured at reservation time. Product is the live
// catalog row when loaded from a store and nil once the product is deleted.
type OrderLine struct {
	ID          string
	OrderID     string
	ProductID   string
	ProductName string
	UnitPrice   decimal.Decimal
	Quantity    int
	Subtotal    decimal.Decimal
	Product     *Product
}

// LineRequest is one (product, quantity) entry of an incoming order.
type LineRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// Reservation is the snapshot the inventory engine returns per requested line.
type Reservation struct {
	ProductID   string
	ProductName string
	UnitPrice   decimal.Decimal
	Quantity    int
}

func (r Reservation) Subtotal() decimal.Decimal {
	return r.UnitPrice.Mul(decimal.NewFromInt(int64(r.Quantity)))
}

// SumSubtotals is the order total for a set of lines.
func SumSubtotals(lines []OrderLine) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Subtotal)
	}
	return total
}
