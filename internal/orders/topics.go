package orders

const (
	TopicOrderCreated   = "order.created"
	TopicOrderCancelled = "order.cancelled"
)

// Partition key = order id so every event of one order stays ordered.
func PartitionKey(orderID string) []byte { return []byte(orderID) }
