package fake

import (
	"context"
	"testing"

	"github.com/BearBump/OrderBox/internal/integrations/carrier"
	"github.com/BearBump/OrderBox/internal/models"
	"github.com/stretchr/testify/require"
)

func TestFakeClient_lifecycle(t *testing.T) {
	f := New()
	ctx := context.Background()

	q, err := f.QuoteFee(ctx, models.ShippingInfo{}, models.Parcel{ServiceTier: "light"})
	require.NoError(t, err)
	require.Equal(t, int64(22000), q.Total)

	qh, err := f.QuoteFee(ctx, models.ShippingInfo{}, models.Parcel{ServiceTier: "heavy"})
	require.NoError(t, err)
	require.Equal(t, int64(44000), qh.Total)

	ref, err := f.CreateShipment(ctx, carrier.CreateShipmentRequest{OrderID: "ord-1"})
	require.NoError(t, err)
	require.NotEmpty(t, ref)

	d, err := f.GetDetail(ctx, ref)
	require.NoError(t, err)
	require.Equal(t, ref, d.ShipmentRef)
	require.NotEmpty(t, d.CurrentRawStatus)
	require.NotEmpty(t, d.Events)

	require.NoError(t, f.CancelShipment(ctx, ref))
	_, err = f.GetDetail(ctx, ref)
	require.ErrorIs(t, err, carrier.ErrNotFound)

	// повторная отмена — эквивалент успеха
	require.NoError(t, f.CancelShipment(ctx, ref))
}

func TestFakeClient_addressTree(t *testing.T) {
	f := New()
	ctx := context.Background()

	ps, err := f.Provinces(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, ps)

	ds, err := f.Districts(ctx, ps[0].ID)
	require.NoError(t, err)
	require.NotEmpty(t, ds)
	require.Equal(t, ps[0].ID, ds[0].ProvinceID)

	ws, err := f.Wards(ctx, ds[0].ID)
	require.NoError(t, err)
	require.NotEmpty(t, ws)
	require.Equal(t, ds[0].ID, ws[0].DistrictID)
}
