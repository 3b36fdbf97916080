package freight

import (
	"testing"

	"github.com/BearBump/OrderBox/internal/models"
	"github.com/stretchr/testify/require"
)

func TestSelect_lightDefaults(t *testing.T) {
	p := Select([]models.OrderItem{
		{ProductID: "p1", Quantity: 2},
	})
	require.Equal(t, TierLight, p.ServiceTier)
	require.Equal(t, 1000, p.WeightG) // 2 * дефолтные 500г
	require.Equal(t, 20, p.LengthCm)
	require.Equal(t, 20, p.WidthCm)
	require.Equal(t, 15, p.HeightCm)
}

func TestSelect_lightKnownWeights(t *testing.T) {
	p := Select([]models.OrderItem{
		{ProductID: "p1", Quantity: 2, WeightG: 300},
		{ProductID: "p2", Quantity: 1}, // вес неизвестен
	})
	require.Equal(t, TierLight, p.ServiceTier)
	require.Equal(t, 2*300+500, p.WeightG)
}

func TestSelect_heavyBoundary(t *testing.T) {
	// 9 единиц — ещё light
	p := Select([]models.OrderItem{{ProductID: "p1", Quantity: 9, WeightG: 100}})
	require.Equal(t, TierLight, p.ServiceTier)

	// 10 единиц — heavy, стандартизованные габариты
	p = Select([]models.OrderItem{{ProductID: "p1", Quantity: 10, WeightG: 100}})
	require.Equal(t, TierHeavy, p.ServiceTier)
	require.Equal(t, 10*200, p.WeightG)
	require.Equal(t, 10, p.LengthCm)
	require.Equal(t, 10, p.WidthCm)
	require.Equal(t, 10, p.HeightCm)

	// суммируется по всем позициям
	p = Select([]models.OrderItem{
		{ProductID: "p1", Quantity: 6},
		{ProductID: "p2", Quantity: 4},
	})
	require.Equal(t, TierHeavy, p.ServiceTier)
}

func TestSelect_empty(t *testing.T) {
	p := Select(nil)
	require.Equal(t, TierLight, p.ServiceTier)
	require.Zero(t, p.WeightG)
}
