package messages

import "time"

// OrderNotification — задание на уведомление клиента о смене статуса.
// Кладётся в Kafka диспетчером после фиксации идемпотентной записи;
// consumer в order-api занимается собственно доставкой.
type OrderNotification struct {
	OrderID    string    `json:"order_id"`
	UserID     string    `json:"user_id"`
	PrevStatus string    `json:"prev_status,omitempty"`
	NewStatus  string    `json:"new_status"`
	Title      string    `json:"title"`
	Body       string    `json:"body"`
	OccurredAt time.Time `json:"occurred_at"`
}
