package payments

import (
	"context"
	"testing"
	"time"

	"github.com/BearBump/OrderBox/internal/integrations/gateway"
	"github.com/BearBump/OrderBox/internal/models"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	out       []*models.Order
	err       error
	olderThan time.Time
}

func (f *fakeRepo) ListUnconfirmedGatewayOrders(ctx context.Context, olderThan time.Time, limit int) ([]*models.Order, error) {
	f.olderThan = olderThan
	return f.out, f.err
}

type fakeGateway struct {
	paid     map[string]bool
	queryErr error
	queried  []string
}

func (f *fakeGateway) CreateIntent(ctx context.Context, req gateway.IntentRequest) (gateway.Intent, error) {
	return gateway.Intent{}, nil
}

func (f *fakeGateway) QueryStatus(ctx context.Context, transRef string) (gateway.Status, error) {
	f.queried = append(f.queried, transRef)
	if f.queryErr != nil {
		return gateway.Status{}, f.queryErr
	}
	return gateway.Status{Paid: f.paid[transRef]}, nil
}

type fakeConfirmer struct {
	applied []string
	err     error
}

func (f *fakeConfirmer) ApplyPaymentConfirmed(ctx context.Context, transRef string) error {
	f.applied = append(f.applied, transRef)
	return f.err
}

func gatewayOrder(id, ref string) *models.Order {
	return &models.Order{
		ID:                 id,
		Status:             models.OrderStatusPending,
		PaymentStatus:      models.PaymentStatusPending,
		PaymentMethod:      models.PaymentMethodGateway,
		ExternalPaymentRef: &ref,
	}
}

func TestPoller_runOnce_confirmsPaid(t *testing.T) {
	repo := &fakeRepo{out: []*models.Order{
		gatewayOrder("ord-1", "ref-1"),
		gatewayOrder("ord-2", "ref-2"),
	}}
	gw := &fakeGateway{paid: map[string]bool{"ref-1": true}}
	c := &fakeConfirmer{}
	p := New(repo, gw, c)

	p.runOnce(context.Background())

	require.Equal(t, []string{"ref-1", "ref-2"}, gw.queried)
	// ref-2 не оплачен: шлюз спрошен, подтверждение не применялось
	require.Equal(t, []string{"ref-1"}, c.applied)
	require.Equal(t, int64(2), p.Stats().TotalChecked)
	require.Equal(t, int64(1), p.Stats().TotalConfirmed)
}

func TestPoller_runOnce_graceWindowPassedToRepo(t *testing.T) {
	repo := &fakeRepo{}
	p := New(repo, &fakeGateway{}, &fakeConfirmer{}).
		WithSettings(time.Minute, 10*time.Minute, 50)

	before := time.Now().UTC()
	p.runOnce(context.Background())

	// repo должен получить границу "старше чем grace назад"
	require.WithinDuration(t, before.Add(-10*time.Minute), repo.olderThan, time.Second)
}

func TestPoller_runOnce_queryErrorContinues(t *testing.T) {
	repo := &fakeRepo{out: []*models.Order{gatewayOrder("ord-1", "ref-1")}}
	gw := &fakeGateway{queryErr: errors.New("gateway down")}
	c := &fakeConfirmer{}
	p := New(repo, gw, c)

	p.runOnce(context.Background())
	require.Empty(t, c.applied)
	require.Equal(t, int64(1), p.Stats().TotalErrors)
}

func TestPoller_runOnce_skipsOrdersWithoutRef(t *testing.T) {
	repo := &fakeRepo{out: []*models.Order{{ID: "ord-1", PaymentMethod: models.PaymentMethodGateway}}}
	gw := &fakeGateway{}
	p := New(repo, gw, &fakeConfirmer{})

	p.runOnce(context.Background())
	require.Empty(t, gw.queried)
}
