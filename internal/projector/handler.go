// Package projector consumes order events and maintains the order status read
// model in Redis.
package projector

import (
	"context"

	kafkax "github.com/ariefcatur/go-ecommerce-orders/internal/kafka"
	"github.com/ariefcatur/go-ecommerce-orders/internal/orders"
	"github.com/ariefcatur/go-ecommerce-orders/internal/redisx"
	"github.com/ariefcatur/go-ecommerce-orders/internal/tracing"
	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var Topics = []string{orders.TopicOrderCreated, orders.TopicOrderCancelled}

type Handler struct {
	dedup  *redisx.Dedup
	status *redisx.StatusCache
	log    logrus.FieldLogger
	tracer trace.Tracer
}

func NewHandler(dedup *redisx.Dedup, status *redisx.StatusCache, log logrus.FieldLogger) *Handler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Handler{dedup: dedup, status: status, log: log, tracer: otel.Tracer("projector")}
}

// Handle is a kafka.Handler. Redeliveries of an event id are acknowledged
// without side effects.
func (h *Handler) Handle(ctx context.Context, m kafka.Message) error {
	ctx = tracing.ExtractKafkaHeaders(ctx, m.Headers)
	ctx, span := h.tracer.Start(ctx, "projector.Handle", trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(attribute.String("messaging.destination", m.Topic)))
	defer span.End()

	env, err := kafkax.DecodeEnvelope(m.Value)
	if err != nil {
		// poison message: log and commit
		h.log.WithFields(logrus.Fields{"topic": m.Topic, "offset": m.Offset, "err": err}).Warn("skip undecodable message")
		return nil
	}
	log := h.log.WithFields(logrus.Fields{"event_id": env.EventID, "event_type": env.EventType, "order_id": env.CorrelationID})

	first, err := h.dedup.FirstSeen(ctx, env.EventID)
	if err != nil {
		return errors.Wrap(err, "dedup")
	}
	if !first {
		log.Debug("duplicate event")
		return nil
	}

	if err := h.apply(ctx, env); err != nil {
		if ferr := h.dedup.Forget(ctx, env.EventID); ferr != nil {
			log.WithError(ferr).Warn("dedup forget")
		}
		return err
	}
	log.Info("order status projected")
	return nil
}

func (h *Handler) apply(ctx context.Context, env orders.Envelope) error {
	var (
		orderID, owner string
		status         orders.Status
	)
	switch env.EventType {
	case orders.EventOrderCreated:
		p, err := kafkax.UnwrapPayload[orders.OrderCreatedPayload](env.Payload)
		if err != nil {
			return err
		}
		orderID, owner, status = p.OrderID, p.ClientEmail, p.Status
	case orders.EventOrderCancelled:
		p, err := kafkax.UnwrapPayload[orders.OrderCancelledPayload](env.Payload)
		if err != nil {
			return err
		}
		orderID, owner, status = p.OrderID, p.ClientEmail, p.Status
	default:
		return nil
	}

	cur, ok, err := h.status.Get(ctx, orderID)
	if err != nil {
		return errors.Wrap(err, "read status")
	}
	// workers may finish out of order; never move the read model backwards
	if ok && cur.UpdatedAt.After(env.OccurredAt) {
		return nil
	}
	return errors.Wrap(h.status.Set(ctx, orderID, redisx.StatusEntry{Status: status, Owner: owner, UpdatedAt: env.OccurredAt}), "write status")
}
