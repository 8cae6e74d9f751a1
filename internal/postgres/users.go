package postgres

import (
	"context"

	"github.com/ariefcatur/go-ecommerce-orders/internal/orders"
	"github.com/google/uuid"
)

func (s *Store) CreateUser(ctx context.Context, u orders.User) (orders.User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	_, err := s.DB.Exec(ctx, `
		INSERT INTO users(id, name, email, password_hash, role)
		VALUES ($1,$2,$3,$4,$5)`,
		u.ID, u.Name, u.Email, u.PasswordHash, string(u.Role))
	if isUniqueViolation(err) {
		return orders.User{}, orders.ErrDuplicate
	}
	if err != nil {
		return orders.User{}, err
	}
	return u, nil
}

func (s *Store) FindByEmail(ctx context.Context, email string) (orders.User, error) {
	var (
		u    orders.User
		role string
	)
	err := s.DB.QueryRow(ctx, `
		SELECT id, name, email, password_hash, role FROM users WHERE email=$1`, email).
		Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &role)
	if err != nil {
		return orders.User{}, notFound(err)
	}
	u.Role = orders.Role(role)
	return u, nil
}
