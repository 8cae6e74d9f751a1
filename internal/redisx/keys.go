package redisx

import (
	"fmt"
	"time"
)

const (
	// idem:order:create:{client_email}:{idempotency_key} -> order_id
	KeyIdemOrderCreate = "idem:order:create:%s:%s"

	// order_status:{order_id} -> {"status": "...", "updated_at": "..."}
	KeyOrderStatus = "order_status:%s"

	// dedup:{consumer}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
)

func IdemOrderCreateKey(email, key string) string { return fmt.Sprintf(KeyIdemOrderCreate, email, key) }
func OrderStatusKey(orderID string) string        { return fmt.Sprintf(KeyOrderStatus, orderID) }
func DedupKey(consumer, eventID string) string    { return fmt.Sprintf(KeyDedup, consumer, eventID) }
