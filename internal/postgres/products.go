package postgres

import (
	"context"

	"github.com/ariefcatur/go-ecommerce-orders/internal/orders"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const productCols = `id, name, description, unit_price, stock, category`

type productRepo struct{ q querier }

func scanProduct(row pgx.Row) (orders.Product, error) {
	var p orders.Product
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.UnitPrice, &p.Stock, &p.Category)
	return p, notFound(err)
}

func (r productRepo) FindByIDForUpdate(ctx context.Context, id string) (orders.Product, error) {
	return scanProduct(r.q.QueryRow(ctx, `SELECT `+productCols+` FROM products WHERE id=$1 FOR UPDATE`, id))
}

func (r productRepo) Save(ctx context.Context, p orders.Product) (orders.Product, error) {
	ct, err := r.q.Exec(ctx, `
		UPDATE products
		SET name=$2, description=$3, unit_price=$4, stock=$5, category=$6, updated_at=now()
		WHERE id=$1`,
		p.ID, p.Name, p.Description, p.UnitPrice, p.Stock, p.Category)
	if err != nil {
		return orders.Product{}, err
	}
	if ct.RowsAffected() != 1 {
		return orders.Product{}, orders.ErrNotFound
	}
	return p, nil
}

func (s *Store) CreateProduct(ctx context.Context, p orders.Product) (orders.Product, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	_, err := s.DB.Exec(ctx, `
		INSERT INTO products(id, name, description, unit_price, stock, category)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		p.ID, p.Name, p.Description, p.UnitPrice, p.Stock, p.Category)
	if isUniqueViolation(err) {
		return orders.Product{}, orders.ErrDuplicate
	}
	if err != nil {
		return orders.Product{}, err
	}
	return p, nil
}

func (s *Store) FindProduct(ctx context.Context, id string) (orders.Product, error) {
	return scanProduct(s.DB.QueryRow(ctx, `SELECT `+productCols+` FROM products WHERE id=$1`, id))
}

func (s *Store) ListProducts(ctx context.Context) ([]orders.Product, error) {
	out, _, err := s.SearchProducts(ctx, "", 0, 0)
	return out, err
}

// SearchProducts matches name case-insensitively. limit <= 0 means no limit.
func (s *Store) SearchProducts(ctx context.Context, q string, limit, offset int) ([]orders.Product, int, error) {
	pattern := "%" + q + "%"
	var total int
	if err := s.DB.QueryRow(ctx, `SELECT count(*) FROM products WHERE name ILIKE $1`, pattern).Scan(&total); err != nil {
		return nil, 0, err
	}

	var lim any
	if limit > 0 {
		lim = limit
	}
	rows, err := s.DB.Query(ctx, `
		SELECT `+productCols+` FROM products
		WHERE name ILIKE $1
		ORDER BY name, id
		LIMIT $2 OFFSET $3`, pattern, lim, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := []orders.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, p)
	}
	return out, total, rows.Err()
}

// DeleteProduct leaves order lines untouched; they keep their price snapshot.
func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	_, err := s.DB.Exec(ctx, `DELETE FROM products WHERE id=$1`, id)
	return err
}
