package httpx

import (
	"encoding/json"

	"github.com/ariefcatur/go-ecommerce-orders/internal/catalog"
	"github.com/ariefcatur/go-ecommerce-orders/internal/orders"
	"github.com/shopspring/decimal"
)

const timeLayout = "2006-01-02T15:04:05"

// money renders a decimal as a JSON number with two fraction digits.
func money(d decimal.Decimal) json.Number { return json.Number(d.StringFixed(2)) }

type productDTO struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Price       json.Number `json:"price"`
	Stock       int         `json:"stock"`
	Category    string      `json:"category"`
}

func toProduct(p orders.Product) productDTO {
	return productDTO{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Price:       money(p.UnitPrice),
		Stock:       p.Stock,
		Category:    p.Category,
	}
}

func toProducts(ps []orders.Product) []productDTO {
	out := make([]productDTO, 0, len(ps))
	for _, p := range ps {
		out = append(out, toProduct(p))
	}
	return out
}

type pageDTO struct {
	Content       []productDTO `json:"content"`
	Page          int          `json:"page"`
	Size          int          `json:"size"`
	TotalElements int          `json:"totalElements"`
	TotalPages    int          `json:"totalPages"`
}

func toPage(p catalog.Page) pageDTO {
	return pageDTO{
		Content:       toProducts(p.Content),
		Page:          p.Page,
		Size:          p.Size,
		TotalElements: p.TotalElements,
		TotalPages:    p.TotalPages,
	}
}

type clientDTO struct {
	ID    string      `json:"id"`
	Name  string      `json:"name"`
	Email string      `json:"email"`
	Role  orders.Role `json:"role"`
}

type detailDTO struct {
	ID       string      `json:"id"`
	Quantity int         `json:"quantity"`
	Subtotal json.Number `json:"subtotal"`
	Product  *productDTO `json:"product"`
}

type orderDTO struct {
	ID        string        `json:"id"`
	CreatedAt string        `json:"createdAt"`
	Total     json.Number   `json:"total"`
	Client    clientDTO     `json:"client"`
	Details   []detailDTO   `json:"details"`
	Status    orders.Status `json:"status"`
}

func toOrder(o orders.Order) orderDTO {
	details := make([]detailDTO, 0, len(o.Lines))
	for _, l := range o.Lines {
		d := detailDTO{ID: l.ID, Quantity: l.Quantity, Subtotal: money(l.Subtotal)}
		if l.Product != nil {
			p := toProduct(*l.Product)
			d.Product = &p
		}
		details = append(details, d)
	}
	return orderDTO{
		ID:        o.ID,
		CreatedAt: o.CreatedAt.UTC().Format(timeLayout),
		Total:     money(o.Total),
		Client: clientDTO{
			ID:    o.Owner.ID,
			Name:  o.Owner.Name,
			Email: o.Owner.Email,
			Role:  o.Owner.Role,
		},
		Details: details,
		Status:  o.Status,
	}
}

func toOrders(list []orders.Order) []orderDTO {
	out := make([]orderDTO, 0, len(list))
	for _, o := range list {
		out = append(out, toOrder(o))
	}
	return out
}

type statusDTO struct {
	ID     string        `json:"id"`
	Status orders.Status `json:"status"`
	Source string        `json:"source"`
}
