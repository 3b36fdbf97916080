package notify

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/BearBump/OrderBox/internal/broker/messages"
	"github.com/BearBump/OrderBox/internal/models"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

// fakeLedger повторяет контракт pgorders: claim по ключу (orderID, status),
// send зовётся только при первом claim'е, ошибка send не оставляет записи.
type fakeLedger struct {
	claimed map[string]bool
}

func newFakeLedger() *fakeLedger { return &fakeLedger{claimed: map[string]bool{}} }

func (l *fakeLedger) ClaimNotification(ctx context.Context, orderID, status string, payload []byte, send func(ctx context.Context) error) (bool, error) {
	key := orderID + "/" + status
	if l.claimed[key] {
		return false, nil
	}
	if err := send(ctx); err != nil {
		return false, err
	}
	l.claimed[key] = true
	return true, nil
}

type fakeProducer struct {
	topics []string
	keys   [][]byte
	values [][]byte
	err    error
}

func (p *fakeProducer) Publish(ctx context.Context, topic string, key, value []byte) error {
	if p.err != nil {
		return p.err
	}
	p.topics = append(p.topics, topic)
	p.keys = append(p.keys, key)
	p.values = append(p.values, value)
	return nil
}

func TestDispatcher_publishesOnce(t *testing.T) {
	l := newFakeLedger()
	p := &fakeProducer{}
	d := New(l, p, "order.notifications")

	o := &models.Order{ID: "ord-1", UserID: "u1"}
	require.NoError(t, d.Dispatch(context.Background(), o, models.OrderStatusProcessing, models.OrderStatusShipping))
	// дубликат того же перехода — молча пропускается
	require.NoError(t, d.Dispatch(context.Background(), o, models.OrderStatusProcessing, models.OrderStatusShipping))

	require.Len(t, p.values, 1)
	require.Equal(t, "order.notifications", p.topics[0])
	require.Equal(t, []byte("ord-1"), p.keys[0])

	var m messages.OrderNotification
	require.NoError(t, json.Unmarshal(p.values[0], &m))
	require.Equal(t, "ord-1", m.OrderID)
	require.Equal(t, models.OrderStatusProcessing, m.PrevStatus)
	require.Equal(t, models.OrderStatusShipping, m.NewStatus)
	require.NotEmpty(t, m.Title)
	require.NotEmpty(t, m.Body)
}

func TestDispatcher_differentStatusesAreSeparate(t *testing.T) {
	l := newFakeLedger()
	p := &fakeProducer{}
	d := New(l, p, "")

	o := &models.Order{ID: "ord-1"}
	require.NoError(t, d.Dispatch(context.Background(), o, models.OrderStatusPending, models.OrderStatusProcessing))
	require.NoError(t, d.Dispatch(context.Background(), o, models.OrderStatusProcessing, models.OrderStatusShipping))
	require.Len(t, p.values, 2)
}

func TestDispatcher_failedSendLeavesNoRecord(t *testing.T) {
	l := newFakeLedger()
	p := &fakeProducer{err: errors.New("kafka down")}
	d := New(l, p, "")

	o := &models.Order{ID: "ord-1"}
	require.Error(t, d.Dispatch(context.Background(), o, models.OrderStatusPending, models.OrderStatusProcessing))
	require.Empty(t, l.claimed)

	// после восстановления брокера повтор проходит
	p.err = nil
	require.NoError(t, d.Dispatch(context.Background(), o, models.OrderStatusPending, models.OrderStatusProcessing))
	require.Len(t, p.values, 1)
}

func TestDispatcher_nilProducerStillRecords(t *testing.T) {
	l := newFakeLedger()
	d := New(l, nil, "")

	o := &models.Order{ID: "ord-1"}
	require.NoError(t, d.Dispatch(context.Background(), o, models.OrderStatusPending, models.OrderStatusProcessing))
	require.True(t, l.claimed["ord-1/"+models.OrderStatusProcessing])
}

func TestStatusCopy(t *testing.T) {
	ref := "SHIP7"
	o := &models.Order{ID: "ord-1", ExternalShipmentRef: &ref}

	require.Equal(t, "Order on the way", StatusTitle(models.OrderStatusShipping))
	require.Contains(t, StatusBody(o, models.OrderStatusShipping), "SHIP7")
	require.Equal(t, "Order update", StatusTitle("WAT"))
}
