package orders

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Service owns order creation, retrieval and the PENDING -> CANCELLED machine.
// Every operation takes the caller explicitly; nothing is read from ambient state.
type Service struct {
	users    UserStore
	orders   OrderStore
	tx       TxManager
	reserver Reserver
	events   EventPublisher
	producer string
	log      logrus.FieldLogger
	tracer   trace.Tracer
	now      func() time.Time
}

type Option func(*Service)

func WithPublisher(p EventPublisher, producer string) Option {
	return func(s *Service) {
		s.events = p
		s.producer = producer
	}
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Service) { s.log = l }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(users UserStore, orders OrderStore, tx TxManager, reserver Reserver, opts ...Option) *Service {
	s := &Service{
		users:    users,
		orders:   orders,
		tx:       tx,
		reserver: reserver,
		log:      logrus.StandardLogger(),
		tracer:   otel.Tracer("orders"),
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// ValidateLines rejects malformed line items before anything touches storage.
func ValidateLines(lines []LineRequest) error {
	if len(lines) == 0 {
		return &ValidationError{Field: "items", Reason: "at least one item is required"}
	}
	for i, l := range lines {
		if l.ProductID == "" {
			return &ValidationError{Field: fmt.Sprintf("items[%d].productId", i), Reason: "is required"}
		}
		if l.Quantity <= 0 {
			return &ValidationError{Field: fmt.Sprintf("items[%d].quantity", i), Reason: "must be a positive integer"}
		}
	}
	return nil
}

// CreateOrder reserves stock for every line and persists the order aggregate in
// one transaction. On any failure neither stock nor orders change.
func (s *Service) CreateOrder(ctx context.Context, p Principal, lines []LineRequest) (Order, error) {
	ctx, span := s.tracer.Start(ctx, "orders.CreateOrder", trace.WithAttributes(
		attribute.String("client.email", p.Email),
		attribute.Int("order.lines", len(lines)),
	))
	defer span.End()

	if err := ValidateLines(lines); err != nil {
		return Order{}, err
	}
	owner, err := s.resolve(ctx, p.Email, ErrUnknownPrincipal)
	if err != nil {
		return Order{}, err
	}

	var created Order
	err = s.tx.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		reserved, err := s.reserver.Reserve(ctx, tx.Products(), lines)
		if err != nil {
			return err
		}
		o := buildOrder(owner, reserved, s.now())
		if err := tx.Orders().Save(ctx, &o); err != nil {
			return errors.Wrap(err, "save order")
		}
		created, err = tx.Orders().FindByID(ctx, o.ID)
		return errors.Wrap(err, "reload order")
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.log.WithFields(logrus.Fields{"email": p.Email, "err": err}).Info("order rejected")
		return Order{}, err
	}

	span.SetAttributes(attribute.String("order.id", created.ID))
	s.log.WithFields(logrus.Fields{
		"order_id": created.ID,
		"email":    p.Email,
		"total":    created.Total.StringFixed(2),
	}).Info("order created")
	s.publish(ctx, TopicOrderCreated, EventOrderCreated, created.ID, createdPayload(created))
	return created, nil
}

func buildOrder(owner User, reserved []Reservation, now time.Time) Order {
	o := Order{
		ID:        uuid.NewString(),
		CreatedAt: now.UTC().Truncate(time.Second),
		Owner:     owner,
		Status:    StatusPending,
		Lines:     make([]OrderLine, 0, len(reserved)),
	}
	for _, r := range reserved {
		o.Lines = append(o.Lines, OrderLine{
			ID:          uuid.NewString(),
			OrderID:     o.ID,
			ProductID:   r.ProductID,
			ProductName: r.ProductName,
			UnitPrice:   r.UnitPrice,
			Quantity:    r.Quantity,
			Subtotal:    r.Subtotal(),
		})
	}
	o.Total = SumSubtotals(o.Lines)
	return o
}

// ListOrdersForPrincipal returns the caller's own orders. An empty status means all.
// Orders per client are few, so there is no pagination.
func (s *Service) ListOrdersForPrincipal(ctx context.Context, p Principal, status Status) ([]Order, error) {
	owner, err := s.resolve(ctx, p.Email, ErrUnknownPrincipal)
	if err != nil {
		return nil, err
	}
	return s.listByOwner(ctx, owner, status)
}

// ListOrdersForClient is the administrative view of one client's orders.
// Emails are stored trimmed and lowercased, so the lookup key is normalized the same way.
func (s *Service) ListOrdersForClient(ctx context.Context, email string, status Status) ([]Order, error) {
	owner, err := s.resolve(ctx, strings.ToLower(strings.TrimSpace(email)), ErrClientNotFound)
	if err != nil {
		return nil, err
	}
	return s.listByOwner(ctx, owner, status)
}

func (s *Service) listByOwner(ctx context.Context, owner User, status Status) ([]Order, error) {
	var (
		out []Order
		err error
	)
	if status == "" {
		out, err = s.orders.FindByOwner(ctx, owner.ID)
	} else {
		out, err = s.orders.FindByOwnerAndStatus(ctx, owner.ID, status)
	}
	return out, errors.Wrap(err, "list orders by owner")
}

// ListAllOrders does no ownership check; callers authorize ADMIN first.
func (s *Service) ListAllOrders(ctx context.Context, status Status) ([]Order, error) {
	var (
		out []Order
		err error
	)
	if status == "" {
		out, err = s.orders.FindAll(ctx)
	} else {
		out, err = s.orders.FindByStatus(ctx, status)
	}
	return out, errors.Wrap(err, "list orders")
}

// GetOrder returns an order visible to p: its owner or any admin.
func (s *Service) GetOrder(ctx context.Context, p Principal, orderID string) (Order, error) {
	o, err := s.orders.FindByID(ctx, orderID)
	if errors.Is(err, ErrNotFound) {
		return Order{}, ErrOrderNotFound
	}
	if err != nil {
		return Order{}, errors.Wrap(err, "load order")
	}
	if !p.IsAdmin() && o.Owner.Email != p.Email {
		return Order{}, ErrNotOwner
	}
	return o, nil
}

// CancelOrder moves a PENDING order owned by email to CANCELLED. Stock that was
// decremented at creation is not restored and the total is kept.
func (s *Service) CancelOrder(ctx context.Context, orderID, email string) (Order, error) {
	ctx, span := s.tracer.Start(ctx, "orders.CancelOrder", trace.WithAttributes(
		attribute.String("order.id", orderID),
	))
	defer span.End()

	var cancelled Order
	err := s.tx.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		o, err := tx.Orders().FindByIDForUpdate(ctx, orderID)
		if errors.Is(err, ErrNotFound) {
			return ErrOrderNotFound
		}
		if err != nil {
			return errors.Wrap(err, "lock order")
		}
		if o.Owner.Email != email {
			return ErrNotOwner
		}
		if !CanTransition(o.Status, StatusCancelled) {
			return &StateTransitionError{OrderID: o.ID, From: o.Status, To: StatusCancelled}
		}
		o.Status = StatusCancelled
		if err := tx.Orders().Save(ctx, &o); err != nil {
			return errors.Wrap(err, "save order")
		}
		cancelled = o
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.log.WithFields(logrus.Fields{"order_id": orderID, "email": email, "err": err}).Info("cancel rejected")
		return Order{}, err
	}

	s.log.WithFields(logrus.Fields{"order_id": orderID, "email": email}).Info("order cancelled")
	s.publish(ctx, TopicOrderCancelled, EventOrderCancelled, cancelled.ID, OrderCancelledPayload{
		OrderID:     cancelled.ID,
		ClientEmail: email,
		Status:      cancelled.Status,
	})
	return cancelled, nil
}

func (s *Service) resolve(ctx context.Context, email string, missing error) (User, error) {
	u, err := s.users.FindByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return User{}, missing
	}
	if err != nil {
		return User{}, errors.Wrap(err, "load user")
	}
	return u, nil
}

func (s *Service) publish(ctx context.Context, topic, eventType, orderID string, payload any) {
	if s.events == nil {
		return
	}
	b, err := json.Marshal(payload)
	if err != nil {
		s.log.WithFields(logrus.Fields{"order_id": orderID, "err": err}).Error("encode event payload")
		return
	}
	env := Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    s.now().UTC(),
		Producer:      s.producer,
		CorrelationID: orderID,
		Payload:       b,
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		env.TraceID = sc.TraceID().String()
	}
	s.events.Publish(ctx, topic, env)
}
