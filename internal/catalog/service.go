package catalog

import (
	"context"
	"math"
	"strings"

	"github.com/ariefcatur/go-ecommerce-orders/internal/orders"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

type Store interface {
	CreateProduct(ctx context.Context, p orders.Product) (orders.Product, error)
	FindProduct(ctx context.Context, id string) (orders.Product, error)
	ListProducts(ctx context.Context) ([]orders.Product, error)
	SearchProducts(ctx context.Context, q string, limit, offset int) ([]orders.Product, int, error)
	DeleteProduct(ctx context.Context, id string) error
}

type Page struct {
	Content       []orders.Product
	Page          int
	Size          int
	TotalElements int
	TotalPages    int
}

// Input is the writable part of a product.
type Input struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	Category    string          `json:"category"`
}

func (in Input) validate() error {
	switch {
	case strings.TrimSpace(in.Name) == "":
		return &orders.ValidationError{Field: "name", Reason: "is required"}
	case in.Price.IsNegative():
		return &orders.ValidationError{Field: "price", Reason: "must not be negative"}
	case !in.Price.Equal(in.Price.Round(2)):
		return &orders.ValidationError{Field: "price", Reason: "must have at most two decimal places"}
	case in.Stock < 0:
		return &orders.ValidationError{Field: "stock", Reason: "must not be negative"}
	}
	return nil
}

type Service struct {
	store Store
	tx    orders.TxManager
	log   logrus.FieldLogger
}

func NewService(store Store, tx orders.TxManager, log logrus.FieldLogger) *Service {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Service{store: store, tx: tx, log: log}
}

func (s *Service) List(ctx context.Context) ([]orders.Product, error) {
	ps, err := s.store.ListProducts(ctx)
	return ps, errors.Wrap(err, "list products")
}

// Search filters by a case-insensitive substring of the name. page is 0-based.
func (s *Service) Search(ctx context.Context, q string, page, size int) (Page, error) {
	if page < 0 {
		page = 0
	}
	if size <= 0 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	if page > math.MaxInt/size {
		return Page{}, &orders.ValidationError{Field: "page", Reason: "is out of range"}
	}
	ps, total, err := s.store.SearchProducts(ctx, strings.TrimSpace(q), size, page*size)
	if err != nil {
		return Page{}, errors.Wrap(err, "search products")
	}
	return Page{
		Content:       ps,
		Page:          page,
		Size:          size,
		TotalElements: total,
		TotalPages:    (total + size - 1) / size,
	}, nil
}

func (s *Service) Get(ctx context.Context, id string) (orders.Product, error) {
	p, err := s.store.FindProduct(ctx, id)
	if errors.Is(err, orders.ErrNotFound) {
		return orders.Product{}, &orders.ProductNotFoundError{ProductID: id}
	}
	return p, errors.Wrap(err, "find product")
}

func (s *Service) Create(ctx context.Context, in Input) (orders.Product, error) {
	if err := in.validate(); err != nil {
		return orders.Product{}, err
	}
	p, err := s.store.CreateProduct(ctx, orders.Product{
		Name:        in.Name,
		Description: in.Description,
		UnitPrice:   in.Price.Round(2),
		Stock:       in.Stock,
		Category:    in.Category,
	})
	if err != nil {
		return orders.Product{}, errors.Wrap(err, "create product")
	}
	s.log.WithFields(logrus.Fields{"product_id": p.ID, "stock": p.Stock}).Info("product created")
	return p, nil
}

// Update overwrites a product, stock included. It takes the same row lock as
// order reservation so an admin edit and an order decrement never interleave.
func (s *Service) Update(ctx context.Context, id string, in Input) (orders.Product, error) {
	if err := in.validate(); err != nil {
		return orders.Product{}, err
	}
	var out orders.Product
	err := s.tx.WithinTx(ctx, func(ctx context.Context, tx orders.Tx) error {
		p, err := tx.Products().FindByIDForUpdate(ctx, id)
		if errors.Is(err, orders.ErrNotFound) {
			return &orders.ProductNotFoundError{ProductID: id}
		}
		if err != nil {
			return errors.Wrap(err, "lock product")
		}
		p.Name = in.Name
		p.Description = in.Description
		p.UnitPrice = in.Price.Round(2)
		p.Stock = in.Stock
		p.Category = in.Category
		out, err = tx.Products().Save(ctx, p)
		return errors.Wrap(err, "save product")
	})
	if err != nil {
		return orders.Product{}, err
	}
	s.log.WithFields(logrus.Fields{"product_id": out.ID, "stock": out.Stock}).Info("product updated")
	return out, nil
}

// Delete is a no-op for unknown ids. Order lines keep their captured price and
// name; only the live product reference goes away.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.DeleteProduct(ctx, id); err != nil {
		return errors.Wrap(err, "delete product")
	}
	s.log.WithField("product_id", id).Info("product deleted")
	return nil
}
