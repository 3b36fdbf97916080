package pgorders

import (
	"context"
	"time"

	"github.com/BearBump/OrderBox/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

var ErrOrderNotFound = errors.New("order not found")

const orderColumns = `
  id, user_id, status, payment_status, payment_method,
  external_payment_ref, external_shipment_ref,
  shipment_claimed_at, shipment_error,
  shipping_fee, fee_degraded,
  receiver_name, receiver_phone, street, ward_code, district_id, province_id,
  paid_at, created_at, updated_at`

func scanOrder(row pgx.Row) (*models.Order, error) {
	var o models.Order
	if err := row.Scan(
		&o.ID, &o.UserID, &o.Status, &o.PaymentStatus, &o.PaymentMethod,
		&o.ExternalPaymentRef, &o.ExternalShipmentRef,
		&o.ShipmentClaimedAt, &o.ShipmentError,
		&o.ShippingFee, &o.FeeDegraded,
		&o.Shipping.ReceiverName, &o.Shipping.ReceiverPhone, &o.Shipping.Street,
		&o.Shipping.WardCode, &o.Shipping.DistrictID, &o.Shipping.ProvinceID,
		&o.PaidAt, &o.CreatedAt, &o.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, errors.Wrap(err, "scan order")
	}
	return &o, nil
}

func (s *Storage) CreateOrder(ctx context.Context, in models.OrderCreateInput, fee int64, feeDegraded bool) (*models.Order, error) {
	now := time.Now().UTC()
	id := uuid.NewString()

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
INSERT INTO orders (
  id, user_id, status, payment_status, payment_method,
  shipping_fee, fee_degraded,
  receiver_name, receiver_phone, street, ward_code, district_id, province_id,
  created_at, updated_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$14)
`, id, in.UserID, models.OrderStatusPending, models.PaymentStatusPending, in.PaymentMethod,
		fee, feeDegraded,
		in.Shipping.ReceiverName, in.Shipping.ReceiverPhone, in.Shipping.Street,
		in.Shipping.WardCode, in.Shipping.DistrictID, in.Shipping.ProvinceID, now)
	if err != nil {
		return nil, errors.Wrap(err, "insert order")
	}

	for _, it := range in.Items {
		_, err := tx.Exec(ctx, `
INSERT INTO order_items (order_id, product_id, name, quantity, unit_price, weight_g)
VALUES ($1,$2,$3,$4,$5,$6)
`, id, it.ProductID, it.Name, it.Quantity, it.UnitPrice, it.WeightG)
		if err != nil {
			return nil, errors.Wrap(err, "insert order item")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit tx")
	}

	return s.GetOrderByID(ctx, id)
}

func (s *Storage) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
	o, err := scanOrder(s.db.QueryRow(ctx, `SELECT`+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	if err := s.loadItems(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *Storage) GetOrderByPaymentRef(ctx context.Context, ref string) (*models.Order, error) {
	o, err := scanOrder(s.db.QueryRow(ctx, `SELECT`+orderColumns+` FROM orders WHERE external_payment_ref = $1`, ref))
	if err != nil {
		return nil, err
	}
	if err := s.loadItems(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *Storage) loadItems(ctx context.Context, o *models.Order) error {
	rows, err := s.db.Query(ctx, `
SELECT product_id, name, quantity, unit_price, weight_g
FROM order_items WHERE order_id = $1 ORDER BY id
`, o.ID)
	if err != nil {
		return errors.Wrap(err, "select items")
	}
	defer rows.Close()

	for rows.Next() {
		var it models.OrderItem
		if err := rows.Scan(&it.ProductID, &it.Name, &it.Quantity, &it.UnitPrice, &it.WeightG); err != nil {
			return errors.Wrap(err, "scan item")
		}
		o.Items = append(o.Items, it)
	}
	return errors.Wrap(rows.Err(), "rows")
}

// ListShippedOrders — все заказы с непустым shipment ref в нетерминальных
// статусах: вход reconciliation sweep'а. Items сюда не грузим, sweep'у они
// не нужны.
func (s *Storage) ListShippedOrders(ctx context.Context, limit int) ([]*models.Order, error) {
	if limit <= 0 || limit > 1000 {
		limit = 500
	}
	rows, err := s.db.Query(ctx, `
SELECT`+orderColumns+`
FROM orders
WHERE external_shipment_ref IS NOT NULL
  AND status NOT IN ($1, $2)
ORDER BY updated_at ASC
LIMIT $3
`, models.OrderStatusCompleted, models.OrderStatusCancelled, limit)
	if err != nil {
		return nil, errors.Wrap(err, "select shipped orders")
	}
	defer rows.Close()

	var out []*models.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, errors.Wrap(rows.Err(), "rows")
}

// ListUnconfirmedGatewayOrders — gateway-заказы, всё ещё PENDING по оплате
// спустя grace-период: кандидаты на polling-фоллбэк (webhook мог потеряться).
func (s *Storage) ListUnconfirmedGatewayOrders(ctx context.Context, olderThan time.Time, limit int) ([]*models.Order, error) {
	if limit <= 0 || limit > 1000 {
		limit = 200
	}
	rows, err := s.db.Query(ctx, `
SELECT`+orderColumns+`
FROM orders
WHERE payment_method = $1
  AND payment_status = $2
  AND status = $3
  AND external_payment_ref IS NOT NULL
  AND created_at <= $4
ORDER BY created_at ASC
LIMIT $5
`, models.PaymentMethodGateway, models.PaymentStatusPending, models.OrderStatusPending, olderThan.UTC(), limit)
	if err != nil {
		return nil, errors.Wrap(err, "select unconfirmed orders")
	}
	defer rows.Close()

	var out []*models.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, errors.Wrap(rows.Err(), "rows")
}

// UpdateStatusCAS — compare-and-set перехода статуса. false = проигрыш
// гонки (кто-то успел перевести заказ раньше); write проигравшего
// отбрасывается, не затирает чужой.
func (s *Storage) UpdateStatusCAS(ctx context.Context, id, from, to string) (bool, error) {
	ct, err := s.db.Exec(ctx, `
UPDATE orders SET status = $3, updated_at = now()
WHERE id = $1 AND status = $2
`, id, from, to)
	if err != nil {
		return false, errors.Wrap(err, "cas status")
	}
	return ct.RowsAffected() == 1, nil
}

// MarkPaidCAS: PENDING -> PAID ровно один раз. false = уже PAID (дубль
// webhook'а или гонка webhook/polling) либо заказ успел стать терминальным —
// тогда payment_status остаётся PENDING как маркер для возврата.
func (s *Storage) MarkPaidCAS(ctx context.Context, id string) (bool, error) {
	ct, err := s.db.Exec(ctx, `
UPDATE orders SET payment_status = $2, paid_at = now(), updated_at = now()
WHERE id = $1 AND payment_status = $3 AND status NOT IN ($4, $5)
`, id, models.PaymentStatusPaid, models.PaymentStatusPending,
		models.OrderStatusCancelled, models.OrderStatusCompleted)
	if err != nil {
		return false, errors.Wrap(err, "mark paid")
	}
	return ct.RowsAffected() == 1, nil
}

// SetPaymentRef выставляет external_payment_ref один раз; повторная запись
// не перетирает существующий.
func (s *Storage) SetPaymentRef(ctx context.Context, id, ref string) (bool, error) {
	ct, err := s.db.Exec(ctx, `
UPDATE orders SET external_payment_ref = $2, updated_at = now()
WHERE id = $1 AND external_payment_ref IS NULL
`, id, ref)
	if err != nil {
		return false, errors.Wrap(err, "set payment ref")
	}
	return ct.RowsAffected() == 1, nil
}

// ClaimShipment — атомарный claim на создание shipment ДО исходящего вызова
// перевозчика. Из двух конкурентных триггеров claim выигрывает один;
// терминальный заказ claim не отдаёт, даже если отмена прошла между
// чтением заказа и этим UPDATE.
func (s *Storage) ClaimShipment(ctx context.Context, id string) (bool, error) {
	ct, err := s.db.Exec(ctx, `
UPDATE orders SET shipment_claimed_at = now(), updated_at = now()
WHERE id = $1 AND shipment_claimed_at IS NULL AND external_shipment_ref IS NULL
  AND status NOT IN ($2, $3)
`, id, models.OrderStatusCancelled, models.OrderStatusCompleted)
	if err != nil {
		return false, errors.Wrap(err, "claim shipment")
	}
	return ct.RowsAffected() == 1, nil
}

// ReleaseShipmentClaim снимает claim после неудачного вызова перевозчика и
// помечает заказ для follow-up. Заказ остаётся created-but-unshipped.
func (s *Storage) ReleaseShipmentClaim(ctx context.Context, id, reason string) error {
	_, err := s.db.Exec(ctx, `
UPDATE orders SET shipment_claimed_at = NULL, shipment_error = $2, updated_at = now()
WHERE id = $1 AND external_shipment_ref IS NULL
`, id, reason)
	return errors.Wrap(err, "release shipment claim")
}

// SetShipmentRef записывает carrier-ref единожды; однажды выставленный
// ref не перезаписывается.
func (s *Storage) SetShipmentRef(ctx context.Context, id, ref string) (bool, error) {
	ct, err := s.db.Exec(ctx, `
UPDATE orders SET external_shipment_ref = $2, shipment_error = NULL, updated_at = now()
WHERE id = $1 AND external_shipment_ref IS NULL
`, id, ref)
	if err != nil {
		return false, errors.Wrap(err, "set shipment ref")
	}
	return ct.RowsAffected() == 1, nil
}
