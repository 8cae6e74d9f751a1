package kafka

import (
	"context"
	"encoding/json"

	"github.com/ariefcatur/go-ecommerce-orders/internal/orders"
	"github.com/ariefcatur/go-ecommerce-orders/internal/tracing"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

const HeaderEventType = "x-event-type"

type sender interface {
	Send(m kafka.Message)
}

// OrderEvents publishes order envelopes keyed by order id.
type OrderEvents struct {
	out sender
	log logrus.FieldLogger
}

func NewOrderEvents(out sender, log logrus.FieldLogger) *OrderEvents {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &OrderEvents{out: out, log: log}
}

func (e *OrderEvents) Publish(ctx context.Context, topic string, env orders.Envelope) {
	b, err := json.Marshal(env)
	if err != nil {
		e.log.WithFields(logrus.Fields{"event_id": env.EventID, "err": err}).Error("encode envelope")
		return
	}
	headers := tracing.InjectKafkaHeaders(ctx, []kafka.Header{
		{Key: HeaderEventType, Value: []byte(env.EventType)},
	})
	e.out.Send(kafka.Message{
		Topic:   topic,
		Key:     orders.PartitionKey(env.CorrelationID),
		Value:   b,
		Headers: headers,
	})
}
