package pgorders

import (
	"context"
	"testing"
	"time"

	"github.com/BearBump/OrderBox/internal/models"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startPostgres(t *testing.T) *Storage {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:15-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "admin",
			"POSTGRES_PASSWORD": "admin",
			"POSTGRES_DB":       "orderbox_test",
		},
		WaitingFor: wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	pgC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgC.Terminate(ctx) })

	host, err := pgC.Host(ctx)
	require.NoError(t, err)
	port, err := pgC.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	dsn := "postgres://admin:admin@" + host + ":" + port.Port() + "/orderbox_test?sslmode=disable"
	st, err := New(dsn)
	require.NoError(t, err)
	t.Cleanup(st.Close)
	return st
}

func createInput() models.OrderCreateInput {
	return models.OrderCreateInput{
		UserID: "u1",
		Items: []models.OrderItem{
			{ProductID: "p1", Name: "Widget", Quantity: 2, UnitPrice: 50000, WeightG: 300},
			{ProductID: "p2", Name: "Gadget", Quantity: 1, UnitPrice: 20000},
		},
		Shipping: models.ShippingInfo{
			ReceiverName:  "Alex",
			ReceiverPhone: "0900000000",
			Street:        "12 Main St",
			WardCode:      "W01",
			DistrictID:    1442,
			ProvinceID:    202,
		},
		PaymentMethod: models.PaymentMethodGateway,
	}
}

func TestPGOrders_RepoFlow(t *testing.T) {
	st := startPostgres(t)
	ctx := context.Background()

	o, err := st.CreateOrder(ctx, createInput(), 21000, false)
	require.NoError(t, err)
	require.NotEmpty(t, o.ID)
	require.Equal(t, models.OrderStatusPending, o.Status)
	require.Equal(t, models.PaymentStatusPending, o.PaymentStatus)
	require.Len(t, o.Items, 2)
	require.Equal(t, int64(2*50000+20000+21000), o.Amount())

	_, err = st.GetOrderByID(ctx, "00000000-0000-0000-0000-000000000000")
	require.True(t, errors.Is(err, ErrOrderNotFound))

	// payment ref — write-once
	ok, err := st.SetPaymentRef(ctx, o.ID, "260828_abc")
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = st.SetPaymentRef(ctx, o.ID, "260828_OTHER")
	require.NoError(t, err)
	require.False(t, ok)

	byRef, err := st.GetOrderByPaymentRef(ctx, "260828_abc")
	require.NoError(t, err)
	require.Equal(t, o.ID, byRef.ID)
	require.Len(t, byRef.Items, 2)

	// до grace-границы заказ — кандидат на polling
	due, err := st.ListUnconfirmedGatewayOrders(ctx, time.Now().UTC().Add(time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	due, err = st.ListUnconfirmedGatewayOrders(ctx, time.Now().UTC().Add(-time.Hour), 10)
	require.NoError(t, err)
	require.Empty(t, due)

	// оплата: ровно один выигрыш
	ok, err = st.MarkPaidCAS(ctx, o.ID)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = st.MarkPaidCAS(ctx, o.ID)
	require.NoError(t, err)
	require.False(t, ok)

	paid, err := st.GetOrderByID(ctx, o.ID)
	require.NoError(t, err)
	require.Equal(t, models.PaymentStatusPaid, paid.PaymentStatus)
	require.NotNil(t, paid.PaidAt)

	// оплаченный заказ больше не кандидат на polling
	due, err = st.ListUnconfirmedGatewayOrders(ctx, time.Now().UTC().Add(time.Minute), 10)
	require.NoError(t, err)
	require.Empty(t, due)

	// CAS статуса: проигравший write отбрасывается
	ok, err = st.UpdateStatusCAS(ctx, o.ID, models.OrderStatusPending, models.OrderStatusProcessing)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = st.UpdateStatusCAS(ctx, o.ID, models.OrderStatusPending, models.OrderStatusCancelled)
	require.NoError(t, err)
	require.False(t, ok)

	cur, err := st.GetOrderByID(ctx, o.ID)
	require.NoError(t, err)
	require.Equal(t, models.OrderStatusProcessing, cur.Status)
}

func TestPGOrders_ShipmentClaim(t *testing.T) {
	st := startPostgres(t)
	ctx := context.Background()

	o, err := st.CreateOrder(ctx, createInput(), 21000, false)
	require.NoError(t, err)

	// из двух claim'ов выигрывает один
	ok, err := st.ClaimShipment(ctx, o.ID)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = st.ClaimShipment(ctx, o.ID)
	require.NoError(t, err)
	require.False(t, ok)

	// неудачный вызов перевозчика: claim снят, причина записана
	require.NoError(t, st.ReleaseShipmentClaim(ctx, o.ID, "carrier timeout"))
	cur, err := st.GetOrderByID(ctx, o.ID)
	require.NoError(t, err)
	require.Nil(t, cur.ShipmentClaimedAt)
	require.NotNil(t, cur.ShipmentError)
	require.Equal(t, "carrier timeout", *cur.ShipmentError)

	// повторный claim после release проходит
	ok, err = st.ClaimShipment(ctx, o.ID)
	require.NoError(t, err)
	require.True(t, ok)

	// ref — write-once; запись чистит shipment_error
	ok, err = st.SetShipmentRef(ctx, o.ID, "GHN001")
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = st.SetShipmentRef(ctx, o.ID, "GHN002")
	require.NoError(t, err)
	require.False(t, ok)

	cur, err = st.GetOrderByID(ctx, o.ID)
	require.NoError(t, err)
	require.Equal(t, "GHN001", *cur.ExternalShipmentRef)
	require.Nil(t, cur.ShipmentError)

	// с выставленным ref новый claim невозможен
	ok, err = st.ClaimShipment(ctx, o.ID)
	require.NoError(t, err)
	require.False(t, ok)

	// заказ с активным shipment попадает в выборку sweep'а
	shipped, err := st.ListShippedOrders(ctx, 10)
	require.NoError(t, err)
	require.Len(t, shipped, 1)
	require.Equal(t, o.ID, shipped[0].ID)

	// терминальный статус убирает его из выборки
	ok, err = st.UpdateStatusCAS(ctx, o.ID, models.OrderStatusPending, models.OrderStatusCancelled)
	require.NoError(t, err)
	require.True(t, ok)
	shipped, err = st.ListShippedOrders(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, shipped)
}

func TestPGOrders_TerminalOrderGuards(t *testing.T) {
	st := startPostgres(t)
	ctx := context.Background()

	o, err := st.CreateOrder(ctx, createInput(), 21000, false)
	require.NoError(t, err)

	ok, err := st.UpdateStatusCAS(ctx, o.ID, models.OrderStatusPending, models.OrderStatusCancelled)
	require.NoError(t, err)
	require.True(t, ok)

	// отменённый заказ не отдаёт claim и не помечается PAID, даже если
	// отмена прошла между чтением заказа и этими UPDATE'ами
	ok, err = st.ClaimShipment(ctx, o.ID)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = st.MarkPaidCAS(ctx, o.ID)
	require.NoError(t, err)
	require.False(t, ok)

	cur, err := st.GetOrderByID(ctx, o.ID)
	require.NoError(t, err)
	require.Equal(t, models.PaymentStatusPending, cur.PaymentStatus)
	require.Nil(t, cur.ShipmentClaimedAt)
	require.Nil(t, cur.PaidAt)
}

func TestPGOrders_NotificationLedger(t *testing.T) {
	st := startPostgres(t)
	ctx := context.Background()

	o, err := st.CreateOrder(ctx, createInput(), 0, false)
	require.NoError(t, err)

	sends := 0
	send := func(ctx context.Context) error {
		sends++
		return nil
	}

	sent, err := st.ClaimNotification(ctx, o.ID, models.OrderStatusProcessing, []byte(`{"x":1}`), send)
	require.NoError(t, err)
	require.True(t, sent)
	require.Equal(t, 1, sends)

	// дубль по той же паре: send не зовётся
	sent, err = st.ClaimNotification(ctx, o.ID, models.OrderStatusProcessing, []byte(`{"x":1}`), send)
	require.NoError(t, err)
	require.False(t, sent)
	require.Equal(t, 1, sends)

	exists, err := st.NotificationExists(ctx, o.ID, models.OrderStatusProcessing)
	require.NoError(t, err)
	require.True(t, exists)

	// неуспешный send откатывает вставку: записи нет, повтор возможен
	failOnce := true
	sent, err = st.ClaimNotification(ctx, o.ID, models.OrderStatusShipping, nil, func(ctx context.Context) error {
		if failOnce {
			failOnce = false
			return errors.New("kafka down")
		}
		return nil
	})
	require.Error(t, err)
	require.False(t, sent)

	exists, err = st.NotificationExists(ctx, o.ID, models.OrderStatusShipping)
	require.NoError(t, err)
	require.False(t, exists)

	sent, err = st.ClaimNotification(ctx, o.ID, models.OrderStatusShipping, nil, func(ctx context.Context) error { return nil })
	require.NoError(t, err)
	require.True(t, sent)
}
