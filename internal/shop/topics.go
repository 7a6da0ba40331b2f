package shop

const (
	// Everything the core tells the presentation adapter goes through one
	// topic; the envelope's event_type discriminates.
	TopicNotifications = "shop.notifications"

	// Inbound provider confirmations (webhook relay).
	TopicPaymentCaptured = "shop.payment.captured"
)

// Partition key = order_id, so events for one order keep their order.
func PartitionKey(id string) []byte { return []byte(id) }
