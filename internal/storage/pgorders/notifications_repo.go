package pgorders

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

// ClaimNotification — идемпотентная отправка уведомления по ключу
// (order_id, status). Внутри одной транзакции:
//  1. INSERT ... ON CONFLICT DO NOTHING — если запись уже закоммичена,
//     уведомление когда-то ушло, send не зовём вообще;
//  2. send выполняется, пока строка не закоммичена: конкурентный claim по
//     тому же ключу висит на вставке до исхода нашей транзакции;
//  3. неуспешный send откатывает вставку — запись не появится и не
//     подавит будущий легитимный повтор.
//
// Возвращает true, если send был вызван и запись закоммичена.
func (s *Storage) ClaimNotification(ctx context.Context, orderID, status string, payload []byte, send func(ctx context.Context) error) (bool, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ct, err := tx.Exec(ctx, `
INSERT INTO order_notifications (order_id, status, payload, sent_at)
VALUES ($1, $2, $3, now())
ON CONFLICT (order_id, status) DO NOTHING
`, orderID, status, payload)
	if err != nil {
		return false, errors.Wrap(err, "insert notification")
	}
	if ct.RowsAffected() == 0 {
		// Уже отправляли — второй записи по этой паре не будет никогда.
		return false, nil
	}

	if err := send(ctx); err != nil {
		return false, errors.Wrap(err, "send notification")
	}

	if err := tx.Commit(ctx); err != nil {
		return false, errors.Wrap(err, "commit tx")
	}
	return true, nil
}

// NotificationExists — вспомогательная проверка для тестов/диагностики.
func (s *Storage) NotificationExists(ctx context.Context, orderID, status string) (bool, error) {
	var n int
	err := s.db.QueryRow(ctx, `
SELECT count(*) FROM order_notifications WHERE order_id = $1 AND status = $2
`, orderID, status).Scan(&n)
	if err != nil {
		return false, errors.Wrap(err, "count notifications")
	}
	return n > 0, nil
}
