package auth

import (
	"context"
	"net/mail"
	"strings"

	"github.com/ariefcatur/go-ecommerce-orders/internal/orders"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
)

type UserStore interface {
	FindByEmail(ctx context.Context, email string) (orders.User, error)
	CreateUser(ctx context.Context, u orders.User) (orders.User, error)
}

type RegisterInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Service is the authentication gate: it owns credentials and turns a bearer
// token back into a Principal.
type Service struct {
	users  UserStore
	issuer *Issuer
	log    logrus.FieldLogger
}

func NewService(users UserStore, issuer *Issuer, log logrus.FieldLogger) *Service {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Service{users: users, issuer: issuer, log: log}
}

// Register creates a CLIENT account and returns a token for it.
func (s *Service) Register(ctx context.Context, in RegisterInput) (string, error) {
	u, err := s.CreateUser(ctx, in, orders.RoleClient)
	if err != nil {
		return "", err
	}
	return s.issuer.Issue(u)
}

// CreateUser is also used by the create-admin command.
func (s *Service) CreateUser(ctx context.Context, in RegisterInput, role orders.Role) (orders.User, error) {
	email := normalizeEmail(in.Email)
	switch {
	case strings.TrimSpace(in.Name) == "":
		return orders.User{}, &orders.ValidationError{Field: "name", Reason: "is required"}
	case !validEmail(email):
		return orders.User{}, &orders.ValidationError{Field: "email", Reason: "must be a valid address"}
	case len(in.Password) < MinPasswordLen:
		return orders.User{}, &orders.ValidationError{Field: "password", Reason: "is too short"}
	case !role.Valid():
		return orders.User{}, &orders.ValidationError{Field: "role", Reason: "unknown role"}
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return orders.User{}, errors.Wrap(err, "hash password")
	}
	u, err := s.users.CreateUser(ctx, orders.User{
		Name:         strings.TrimSpace(in.Name),
		Email:        email,
		PasswordHash: hash,
		Role:         role,
	})
	if errors.Is(err, orders.ErrDuplicate) {
		return orders.User{}, ErrEmailTaken
	}
	if err != nil {
		return orders.User{}, errors.Wrap(err, "create user")
	}
	s.log.WithFields(logrus.Fields{"email": u.Email, "role": u.Role}).Info("user registered")
	return u, nil
}

func (s *Service) Login(ctx context.Context, email, password string) (string, error) {
	u, err := s.users.FindByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, orders.ErrNotFound) {
		return "", ErrInvalidCredentials
	}
	if err != nil {
		return "", errors.Wrap(err, "load user")
	}
	if !CheckPassword(u.PasswordHash, password) {
		return "", ErrInvalidCredentials
	}
	return s.issuer.Issue(u)
}

// Authenticate verifies the token and reloads the user, so the role comes
// from the store and removed users lose access immediately.
func (s *Service) Authenticate(ctx context.Context, token string) (orders.Principal, error) {
	claims, err := s.issuer.Parse(token)
	if err != nil {
		return orders.Principal{}, err
	}
	u, err := s.users.FindByEmail(ctx, claims.Subject)
	if errors.Is(err, orders.ErrNotFound) {
		return orders.Principal{}, orders.ErrUnknownPrincipal
	}
	if err != nil {
		return orders.Principal{}, errors.Wrap(err, "load user")
	}
	return orders.Principal{Email: u.Email, Role: u.Role}, nil
}

func normalizeEmail(e string) string { return strings.ToLower(strings.TrimSpace(e)) }

func validEmail(e string) bool {
	a, err := mail.ParseAddress(e)
	return err == nil && a.Address == e
}
