package kafka

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// Producer buffers messages in memory and writes them from one goroutine.
// Messages carry their own topic so one producer serves every event stream.
type Producer struct {
	w       *kafka.Writer
	inbox   chan kafka.Message
	closeCh chan struct{}
	log     logrus.FieldLogger
}

func NewProducer(brokers []string, buf int, log logrus.FieldLogger) *Producer {
	if log == nil {
		log = logrus.StandardLogger()
	}
	p := &Producer{
		inbox:   make(chan kafka.Message, buf),
		closeCh: make(chan struct{}),
		log:     log,
	}
	p.w = &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        true,
		Completion:   p.completed,
	}
	return p
}

func (p *Producer) Start(ctx context.Context) {
	go func() {
		defer close(p.closeCh)
		for {
			select {
			case <-ctx.Done():
				p.drain()
				return
			case m := <-p.inbox:
				p.write(m)
			}
		}
	}()
}

func (p *Producer) drain() {
	for {
		select {
		case m := <-p.inbox:
			p.write(m)
		default:
			if err := p.w.Close(); err != nil {
				p.log.WithError(err).Warn("kafka writer close")
			}
			return
		}
	}
}

func (p *Producer) write(m kafka.Message) {
	if err := p.w.WriteMessages(context.Background(), m); err != nil {
		p.log.WithFields(logrus.Fields{"topic": m.Topic, "err": err}).Error("kafka write")
	}
}

// completed reports failures of the async writer, which WriteMessages cannot.
func (p *Producer) completed(msgs []kafka.Message, err error) {
	if err == nil {
		return
	}
	for _, m := range msgs {
		p.log.WithFields(logrus.Fields{
			"topic": m.Topic,
			"key":   string(m.Key),
			"err":   err,
		}).Error("kafka delivery failed")
	}
}

// Send enqueues m without blocking. When the buffer is full the message is
// dropped and logged; callers have already committed their state.
func (p *Producer) Send(m kafka.Message) {
	if m.Time.IsZero() {
		m.Time = time.Now()
	}
	select {
	case p.inbox <- m:
	default:
		p.log.WithFields(logrus.Fields{"topic": m.Topic, "key": string(m.Key)}).Warn("producer buffer full, event dropped")
	}
}

// WaitClosed blocks until the writer goroutine has flushed and exited.
func (p *Producer) WaitClosed() { <-p.closeCh }
