package postgres

import (
	"context"

	"github.com/ariefcatur/go-ecommerce-orders/internal/orders"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const orderSelect = `
	SELECT o.id, o.created_at, o.total, o.status,
	       u.id, u.name, u.email, u.password_hash, u.role
	FROM orders o
	JOIN users u ON u.id = o.owner_id`

type orderRepo struct{ q querier }

// Save inserts a new aggregate with its lines, or updates only the status of
// an existing one.
func (r orderRepo) Save(ctx context.Context, o *orders.Order) error {
	b := &pgx.Batch{}
	b.Queue(`
		INSERT INTO orders(id, owner_id, created_at, total, status)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status`,
		o.ID, o.Owner.ID, o.CreatedAt, o.Total, string(o.Status))
	for _, l := range o.Lines {
		b.Queue(`
			INSERT INTO order_lines(id, order_id, product_id, product_name, unit_price, quantity, subtotal)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
			ON CONFLICT (id) DO NOTHING`,
			l.ID, o.ID, l.ProductID, l.ProductName, l.UnitPrice, l.Quantity, l.Subtotal)
	}
	return r.q.SendBatch(ctx, b).Close()
}

func (r orderRepo) FindByID(ctx context.Context, id string) (orders.Order, error) {
	return r.one(ctx, orderSelect+` WHERE o.id=$1`, id)
}

func (r orderRepo) FindByIDForUpdate(ctx context.Context, id string) (orders.Order, error) {
	return r.one(ctx, orderSelect+` WHERE o.id=$1 FOR UPDATE OF o`, id)
}

func (r orderRepo) FindByOwner(ctx context.Context, ownerID string) ([]orders.Order, error) {
	return r.list(ctx, orderSelect+` WHERE o.owner_id=$1 ORDER BY o.seq`, ownerID)
}

func (r orderRepo) FindByStatus(ctx context.Context, status orders.Status) ([]orders.Order, error) {
	return r.list(ctx, orderSelect+` WHERE o.status=$1 ORDER BY o.seq`, string(status))
}

func (r orderRepo) FindByOwnerAndStatus(ctx context.Context, ownerID string, status orders.Status) ([]orders.Order, error) {
	return r.list(ctx, orderSelect+` WHERE o.owner_id=$1 AND o.status=$2 ORDER BY o.seq`, ownerID, string(status))
}

func (r orderRepo) FindAll(ctx context.Context) ([]orders.Order, error) {
	return r.list(ctx, orderSelect+` ORDER BY o.seq`)
}

func (r orderRepo) one(ctx context.Context, sql string, args ...any) (orders.Order, error) {
	out, err := r.list(ctx, sql, args...)
	if err != nil {
		return orders.Order{}, err
	}
	if len(out) == 0 {
		return orders.Order{}, orders.ErrNotFound
	}
	return out[0], nil
}

func (r orderRepo) list(ctx context.Context, sql string, args ...any) ([]orders.Order, error) {
	rows, err := r.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	out := []orders.Order{}
	for rows.Next() {
		var (
			o            orders.Order
			status, role string
		)
		if err := rows.Scan(&o.ID, &o.CreatedAt, &o.Total, &status,
			&o.Owner.ID, &o.Owner.Name, &o.Owner.Email, &o.Owner.PasswordHash, &role); err != nil {
			rows.Close()
			return nil, err
		}
		o.CreatedAt = o.CreatedAt.UTC()
		o.Status = orders.Status(status)
		o.Owner.Role = orders.Role(role)
		out = append(out, o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return out, nil
	}
	return out, r.attachLines(ctx, out)
}

func (r orderRepo) attachLines(ctx context.Context, list []orders.Order) error {
	ids := make([]string, len(list))
	index := make(map[string]int, len(list))
	for i, o := range list {
		ids[i] = o.ID
		index[o.ID] = i
	}

	rows, err := r.q.Query(ctx, `
		SELECT l.id, l.order_id, l.product_id, l.product_name, l.unit_price, l.quantity, l.subtotal,
		       p.id, p.name, p.description, p.unit_price, p.stock, p.category
		FROM order_lines l
		LEFT JOIN products p ON p.id = l.product_id
		WHERE l.order_id = ANY($1)
		ORDER BY l.seq`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			l                       orders.OrderLine
			pID, pName, pDesc, pCat *string
			pPrice                  decimal.NullDecimal
			pStock                  *int
		)
		if err := rows.Scan(&l.ID, &l.OrderID, &l.ProductID, &l.ProductName, &l.UnitPrice, &l.Quantity, &l.Subtotal,
			&pID, &pName, &pDesc, &pPrice, &pStock, &pCat); err != nil {
			return err
		}
		if pID != nil {
			l.Product = &orders.Product{
				ID:          *pID,
				Name:        *pName,
				Description: *pDesc,
				UnitPrice:   pPrice.Decimal,
				Stock:       *pStock,
				Category:    *pCat,
			}
		}
		i := index[l.OrderID]
		list[i].Lines = append(list[i].Lines, l)
	}
	return rows.Err()
}

// Pool-level order reads, outside any transaction.

func (s *Store) orders() orderRepo { return orderRepo{q: s.DB} }

func (s *Store) Save(ctx context.Context, o *orders.Order) error {
	return s.orders().Save(ctx, o)
}

func (s *Store) FindByID(ctx context.Context, id string) (orders.Order, error) {
	return s.orders().FindByID(ctx, id)
}

func (s *Store) FindByOwner(ctx context.Context, ownerID string) ([]orders.Order, error) {
	return s.orders().FindByOwner(ctx, ownerID)
}

func (s *Store) FindByStatus(ctx context.Context, status orders.Status) ([]orders.Order, error) {
	return s.orders().FindByStatus(ctx, status)
}

func (s *Store) FindByOwnerAndStatus(ctx context.Context, ownerID string, status orders.Status) ([]orders.Order, error) {
	return s.orders().FindByOwnerAndStatus(ctx, ownerID, status)
}

func (s *Store) FindAll(ctx context.Context) ([]orders.Order, error) {
	return s.orders().FindAll(ctx)
}
