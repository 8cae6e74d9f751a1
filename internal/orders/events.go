package orders

import (
	"encoding/json"
	"time"
)

const (
	EventOrderCreated   = "OrderCreated"
	EventOrderCancelled = "OrderCancelled"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order id
	Payload       json.RawMessage `json:"payload"`
}

type ItemPrice struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
	UnitPrice string `json:"unit_price"`
	Subtotal  string `json:"subtotal"`
}

type OrderCreatedPayload struct {
	OrderID     string      `json:"order_id"`
	ClientEmail string      `json:"client_email"`
	Items       []ItemPrice `json:"items"`
	Total       string      `json:"total"`
	Status      Status      `json:"status"`
}

type OrderCancelledPayload struct {
	OrderID     string `json:"order_id"`
	ClientEmail string `json:"client_email"`
	Status      Status `json:"status"`
}

func createdPayload(o Order) OrderCreatedPayload {
	items := make([]ItemPrice, 0, len(o.Lines))
	for _, l := range o.Lines {
		items = append(items, ItemPrice{
			ProductID: l.ProductID,
			Qty:       l.Quantity,
			UnitPrice: l.UnitPrice.StringFixed(2),
			Subtotal:  l.Subtotal.StringFixed(2),
		})
	}
	return OrderCreatedPayload{
		OrderID:     o.ID,
		ClientEmail: o.Owner.Email,
		Items:       items,
		Total:       o.Total.StringFixed(2),
		Status:      o.Status,
	}
}
