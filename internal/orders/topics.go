package orders

const (
	TopicOrderCreated = "order.created"
	TopicOrderUpdated = "order.updated"
	TopicOrderDeleted = "order.deleted"
	TopicStockLow     = "inventory.stock.low"
)

// OrderTopics lists every topic the order service publishes to.
var OrderTopics = []string{TopicOrderCreated, TopicOrderUpdated, TopicOrderDeleted}

// Partition key = order_id, so every event of one order keeps its order.
func PartitionKey(orderID string) []byte { return []byte(orderID) }
