package kafka

import (
	"context"
	"hash/fnv"
	"strconv"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// Handler returns nil only when the message is done and its offset may be committed.
type Handler func(ctx context.Context, m kafka.Message) error

type reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

const (
	retryBase = 200 * time.Millisecond
	retryMax  = 5 * time.Second
)

// Consumer fans messages out to a worker pool. Every partition is pinned to one
// worker, so offsets within a partition are handled and committed in order. A
// failing message is retried and holds back the rest of its partition.
type Consumer struct {
	r         reader
	workers   int
	log       logrus.FieldLogger
	retryBase time.Duration
}

func NewConsumer(brokers []string, group string, topics []string, workers int, log logrus.FieldLogger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        group,
		GroupTopics:    topics,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commit
	})
	return newConsumer(r, workers, log)
}

func newConsumer(r reader, workers int, log logrus.FieldLogger) *Consumer {
	if workers <= 0 {
		workers = 1
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Consumer{r: r, workers: workers, log: log, retryBase: retryBase}
}

// Start fetches messages and dispatches them to the worker pool until ctx is done.
func (c *Consumer) Start(ctx context.Context, h Handler) error {
	defer c.r.Close()

	lanes := make([]chan kafka.Message, c.workers)
	var wg sync.WaitGroup
	for i := range lanes {
		lanes[i] = make(chan kafka.Message, 128)
		wg.Add(1)
		go func(in <-chan kafka.Message) {
			defer wg.Done()
			for m := range in {
				if !c.process(ctx, h, m) {
					return
				}
			}
		}(lanes[i])
	}
	stop := func() {
		for _, l := range lanes {
			close(l)
		}
		wg.Wait()
	}

	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			stop()
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		select {
		case lanes[c.lane(m)] <- m:
		case <-ctx.Done():
			stop()
			return nil
		}
	}
}

func (c *Consumer) lane(m kafka.Message) int {
	f := fnv.New32a()
	_, _ = f.Write([]byte(m.Topic))
	_, _ = f.Write([]byte(strconv.Itoa(m.Partition)))
	return int(f.Sum32() % uint32(c.workers))
}

// process handles m until it succeeds and is committed. It reports false once
// ctx is done; the offset then stays uncommitted and is redelivered.
func (c *Consumer) process(ctx context.Context, h Handler, m kafka.Message) bool {
	delay := c.retryBase
	for {
		err := h(ctx, m)
		if err == nil {
			err = c.r.CommitMessages(ctx, m)
			if err == nil {
				return true
			}
		}
		if ctx.Err() != nil {
			return false
		}
		c.log.WithFields(logrus.Fields{
			"topic":     m.Topic,
			"partition": m.Partition,
			"offset":    m.Offset,
			"retry_in":  delay.String(),
			"err":       err,
		}).Error("handle message")

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return false
		}
		if delay *= 2; delay > retryMax {
			delay = retryMax
		}
	}
}
