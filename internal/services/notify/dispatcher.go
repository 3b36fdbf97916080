package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/BearBump/OrderBox/internal/broker/messages"
	"github.com/BearBump/OrderBox/internal/models"
	"github.com/pkg/errors"
)

// Ledger — идемпотентный реестр уведомлений. Реализация (pgorders) обязана
// сделать "проверили и записали" атомарным по ключу (orderID, status):
// send зовётся не больше одного раза на пару за всю жизнь системы.
type Ledger interface {
	ClaimNotification(ctx context.Context, orderID, status string, payload []byte, send func(ctx context.Context) error) (bool, error)
}

type Producer interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

type Dispatcher struct {
	ledger   Ledger
	producer Producer
	topic    string
}

// New: producer == nil означает "канал доставки не сконфигурирован" —
// отправка принимается как no-op, запись в реестр всё равно делается.
func New(ledger Ledger, producer Producer, topic string) *Dispatcher {
	if topic == "" {
		topic = "order.notifications"
	}
	return &Dispatcher{ledger: ledger, producer: producer, topic: topic}
}

// Dispatch вызывается на каждом применённом переходе статуса (sweep или
// admin). Дубликат по (orderID, newStatus) молча пропускается; неуспешная
// публикация не оставляет записи и не подавит будущий повтор.
func (d *Dispatcher) Dispatch(ctx context.Context, order *models.Order, prevStatus, newStatus string) error {
	msg := messages.OrderNotification{
		OrderID:    order.ID,
		UserID:     order.UserID,
		PrevStatus: prevStatus,
		NewStatus:  newStatus,
		Title:      StatusTitle(newStatus),
		Body:       StatusBody(order, newStatus),
		OccurredAt: time.Now().UTC(),
	}

	b, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "marshal notification")
	}

	sent, err := d.ledger.ClaimNotification(ctx, order.ID, newStatus, b, func(ctx context.Context) error {
		if d.producer == nil {
			// Канала нет — принимаем как доставленное, чтобы не зациклить
			// повторы на окружениях без брокера.
			return nil
		}
		return d.producer.Publish(ctx, d.topic, []byte(order.ID), b)
	})
	if err != nil {
		return err
	}
	if !sent {
		slog.Debug("notification already sent", "order_id", order.ID, "status", newStatus)
	}
	return nil
}

// StatusTitle — пользовательский заголовок для статуса.
func StatusTitle(status string) string {
	switch status {
	case models.OrderStatusPending:
		return "Order received"
	case models.OrderStatusProcessing:
		return "Order confirmed"
	case models.OrderStatusShipping:
		return "Order on the way"
	case models.OrderStatusCompleted:
		return "Order delivered"
	case models.OrderStatusCancelled:
		return "Order cancelled"
	}
	return "Order update"
}

func StatusBody(order *models.Order, status string) string {
	switch status {
	case models.OrderStatusProcessing:
		return "We are preparing your order " + order.ID + " for shipment."
	case models.OrderStatusShipping:
		if order.ExternalShipmentRef != nil {
			return "Your order " + order.ID + " has been handed to the carrier. Tracking: " + *order.ExternalShipmentRef + "."
		}
		return "Your order " + order.ID + " has been handed to the carrier."
	case models.OrderStatusCompleted:
		return "Your order " + order.ID + " was delivered. Thank you for shopping with us."
	case models.OrderStatusCancelled:
		return "Your order " + order.ID + " has been cancelled."
	}
	return "Your order " + order.ID + " status is now " + status + "."
}
