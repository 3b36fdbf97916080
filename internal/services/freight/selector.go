package freight

import "github.com/BearBump/OrderBox/internal/models"

const (
	TierLight = "light"
	TierHeavy = "heavy"
)

// Порог, с которого заказ уходит в heavy-тариф.
const heavyItemThreshold = 10

// Heavy: минимальные стандартизованные габариты на единицу — тариф heavy
// считается перевозчиком от объёма, минимальные размеры дают минимальную
// стоимость фрахта.
const (
	heavyPerItemWeightG = 200
	heavyDimCm          = 10
)

// Light: дефолтные габариты посылки и вес единицы, если товар его не знает.
const (
	lightDefaultWeightG = 500
	lightLengthCm       = 20
	lightWidthCm        = 20
	lightHeightCm       = 15
)

// Select — чистая функция выбора тарифа и габаритов по содержимому заказа.
// Никакого I/O и никаких ошибок: для любых входов есть детерминированный
// ответ.
func Select(items []models.OrderItem) models.Parcel {
	count := 0
	for _, it := range items {
		count += it.Quantity
	}

	if count >= heavyItemThreshold {
		return models.Parcel{
			ServiceTier: TierHeavy,
			WeightG:     count * heavyPerItemWeightG,
			LengthCm:    heavyDimCm,
			WidthCm:     heavyDimCm,
			HeightCm:    heavyDimCm,
		}
	}

	weight := 0
	for _, it := range items {
		w := it.WeightG
		if w <= 0 {
			w = lightDefaultWeightG
		}
		weight += w * it.Quantity
	}

	return models.Parcel{
		ServiceTier: TierLight,
		WeightG:     weight,
		LengthCm:    lightLengthCm,
		WidthCm:     lightWidthCm,
		HeightCm:    lightHeightCm,
	}
}
