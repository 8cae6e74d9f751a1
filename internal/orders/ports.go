package orders

import "context"

// ProductStore is the slice of the catalog the reservation path needs.
// FindByIDForUpdate holds a row lock until the surrounding transaction ends.
type ProductStore interface {
	FindByIDForUpdate(ctx context.Context, id string) (Product, error)
	Save(ctx context.Context, p Product) (Product, error)
}

type OrderStore interface {
	Save(ctx context.Context, o *Order) error
	FindByID(ctx context.Context, id string) (Order, error)
	FindByOwner(ctx context.Context, ownerID string) ([]Order, error)
	FindByStatus(ctx context.Context, status Status) ([]Order, error)
	FindByOwnerAndStatus(ctx context.Context, ownerID string, status Status) ([]Order, error)
	FindAll(ctx context.Context) ([]Order, error)
}

type LockingOrderStore interface {
	OrderStore
	FindByIDForUpdate(ctx context.Context, id string) (Order, error)
}

type UserStore interface {
	FindByEmail(ctx context.Context, email string) (User, error)
}

// Tx exposes stores bound to one storage transaction.
type Tx interface {
	Products() ProductStore
	Orders() LockingOrderStore
}

// TxManager runs fn in a transaction: committed when fn returns nil,
// rolled back otherwise.
type TxManager interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Reserver validates and commits stock decrements for a whole order.
type Reserver interface {
	Reserve(ctx context.Context, products ProductStore, lines []LineRequest) ([]Reservation, error)
}

// EventPublisher ships domain events after commit. Implementations must not block.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, env Envelope)
}
