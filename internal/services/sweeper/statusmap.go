package sweeper

import "github.com/BearBump/OrderBox/internal/models"

// rawStatusMap — явная таблица соответствия статусов перевозчика локальным.
// Неизвестный raw-статус не маппится вовсе: sweep его логирует и пропускает,
// никакой эвристики по подстрокам.
var rawStatusMap = map[string]string{
	"ready_to_pick": models.OrderStatusProcessing,
	"picking":       models.OrderStatusProcessing,

	"picked":       models.OrderStatusShipping,
	"storing":      models.OrderStatusShipping,
	"transporting": models.OrderStatusShipping,
	"sorting":      models.OrderStatusShipping,
	"delivering":   models.OrderStatusShipping,

	"delivered": models.OrderStatusCompleted,

	"cancel":   models.OrderStatusCancelled,
	"return":   models.OrderStatusCancelled,
	"returned": models.OrderStatusCancelled,
}

func MapRawStatus(raw string) (string, bool) {
	s, ok := rawStatusMap[raw]
	return s, ok
}

// statusRank задаёт направление нормального движения заказа. Sweep двигает
// статус только вперёд: отставший ответ перевозчика не откатывает заказ.
var statusRank = map[string]int{
	models.OrderStatusPending:    0,
	models.OrderStatusProcessing: 1,
	models.OrderStatusShipping:   2,
	models.OrderStatusCompleted:  3,
}

// shouldApply: mapped применяется, если это движение вперёд либо отмена
// не-терминального заказа.
func shouldApply(current, mapped string) bool {
	if current == mapped {
		return false
	}
	if models.IsTerminalOrderStatus(current) {
		return false
	}
	if mapped == models.OrderStatusCancelled {
		return true
	}
	return statusRank[mapped] > statusRank[current]
}
