package redisx

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ariefcatur/go-ecommerce-orders/internal/orders"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// Idempotency maps a client-supplied key to the order it created.
type Idempotency struct {
	rdb redis.Cmdable
}

func NewIdempotency(rdb redis.Cmdable) *Idempotency { return &Idempotency{rdb: rdb} }

// Lookup returns the order id stored for key, or "" when there is none.
func (i *Idempotency) Lookup(ctx context.Context, email, key string) (string, error) {
	id, err := i.rdb.Get(ctx, IdemOrderCreateKey(email, key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return id, err
}

// Remember stores orderID for key unless an earlier request already did.
func (i *Idempotency) Remember(ctx context.Context, email, key, orderID string) error {
	return i.rdb.SetNX(ctx, IdemOrderCreateKey(email, key), orderID, TTLIdempotency).Err()
}

type StatusEntry struct {
	Status    orders.Status `json:"status"`
	Owner     string        `json:"owner"` // client email
	UpdatedAt time.Time     `json:"updated_at"`
}

// StatusCache is the read model written by the projector.
type StatusCache struct {
	rdb redis.Cmdable
}

func NewStatusCache(rdb redis.Cmdable) *StatusCache { return &StatusCache{rdb: rdb} }

func (c *StatusCache) Get(ctx context.Context, orderID string) (StatusEntry, bool, error) {
	b, err := c.rdb.Get(ctx, OrderStatusKey(orderID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return StatusEntry{}, false, nil
	}
	if err != nil {
		return StatusEntry{}, false, err
	}
	var e StatusEntry
	if err := json.Unmarshal(b, &e); err != nil {
		return StatusEntry{}, false, errors.Wrap(err, "decode status entry")
	}
	return e, true, nil
}

func (c *StatusCache) Set(ctx context.Context, orderID string, e StatusEntry) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, OrderStatusKey(orderID), b, TTLStatusCache).Err()
}

// Dedup remembers processed event ids per consumer.
type Dedup struct {
	rdb      redis.Cmdable
	consumer string
}

func NewDedup(rdb redis.Cmdable, consumer string) *Dedup {
	return &Dedup{rdb: rdb, consumer: consumer}
}

// FirstSeen marks eventID as processed and reports whether this call did so.
func (d *Dedup) FirstSeen(ctx context.Context, eventID string) (bool, error) {
	return d.rdb.SetNX(ctx, DedupKey(d.consumer, eventID), 1, TTLDedup).Result()
}

// Forget drops the marker so a failed event can be retried.
func (d *Dedup) Forget(ctx context.Context, eventID string) error {
	return d.rdb.Del(ctx, DedupKey(d.consumer, eventID)).Err()
}
