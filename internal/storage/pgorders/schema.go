package pgorders

import (
	"context"

	"github.com/pkg/errors"
)

func (s *Storage) initSchema(ctx context.Context) error {
	stmts := []string{
		`
CREATE TABLE IF NOT EXISTS orders (
  id UUID PRIMARY KEY,
  user_id TEXT NOT NULL,
  status TEXT NOT NULL,
  payment_status TEXT NOT NULL,
  payment_method TEXT NOT NULL,
  external_payment_ref TEXT NULL,
  external_shipment_ref TEXT NULL,
  shipment_claimed_at TIMESTAMPTZ NULL,
  shipment_error TEXT NULL,
  shipping_fee BIGINT NOT NULL DEFAULT 0,
  fee_degraded BOOLEAN NOT NULL DEFAULT FALSE,
  receiver_name TEXT NOT NULL,
  receiver_phone TEXT NOT NULL,
  street TEXT NOT NULL,
  ward_code TEXT NOT NULL,
  district_id INT NOT NULL,
  province_id INT NOT NULL,
  paid_at TIMESTAMPTZ NULL,
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_orders_payment_ref ON orders(external_payment_ref) WHERE external_payment_ref IS NOT NULL`,
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_orders_shipment_ref ON orders(external_shipment_ref) WHERE external_shipment_ref IS NOT NULL`,
		`CREATE INDEX IF NOT EXISTS idx_orders_shipment_sweep ON orders(status) WHERE external_shipment_ref IS NOT NULL`,
		`CREATE INDEX IF NOT EXISTS idx_orders_payment_pending ON orders(created_at) WHERE payment_status = 'PENDING' AND payment_method = 'GATEWAY'`,
		`
CREATE TABLE IF NOT EXISTS order_items (
  id BIGSERIAL PRIMARY KEY,
  order_id UUID NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
  product_id TEXT NOT NULL,
  name TEXT NOT NULL,
  quantity INT NOT NULL,
  unit_price BIGINT NOT NULL,
  weight_g INT NOT NULL DEFAULT 0
)`,
		`CREATE INDEX IF NOT EXISTS idx_order_items_order_id ON order_items(order_id)`,
		// Идемпотентный реестр уведомлений: PK (order_id, status) и есть guard.
		`
CREATE TABLE IF NOT EXISTS order_notifications (
  order_id UUID NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
  status TEXT NOT NULL,
  payload JSONB NULL,
  sent_at TIMESTAMPTZ NOT NULL,
  PRIMARY KEY (order_id, status)
)`,
	}

	for _, q := range stmts {
		if _, err := s.db.Exec(ctx, q); err != nil {
			return errors.Wrap(err, "init schema")
		}
	}
	return nil
}
