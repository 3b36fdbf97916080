package carrier

import (
	"context"
	"time"

	"github.com/BearBump/OrderBox/internal/models"
	"github.com/pkg/errors"
)

// Sentinel errors — классификация ответов перевозчика.
var (
	// ErrNotFound: перевозчик не знает такой shipment. Для cancel это
	// эквивалент успеха (активного shipment уже нет), для detail — no-op.
	ErrNotFound = errors.New("carrier: shipment not found")

	// ErrRateLimited: перевозчик просит сбавить темп; повтор на следующем тике.
	ErrRateLimited = errors.New("carrier: rate limited")
)

type FeeQuote struct {
	Total int64
}

type ShipmentItem struct {
	Name     string
	Quantity int
}

type CreateShipmentRequest struct {
	OrderID     string
	Destination models.ShippingInfo
	Parcel      models.Parcel
	Items       []ShipmentItem
	CODAmount   int64 // 0 для предоплаченных заказов

	// Optional-поля: включаются в payload только если заполнены.
	// Известный remediable-класс ошибки create — отказ перевозчика по одному
	// из них; в этом случае клиент повторяет запрос один раз без них.
	Note       string
	CouponCode string
}

type StatusEvent struct {
	RawStatus string
	Timestamp time.Time
	Location  string
	Note      string
}

// Detail — нормализованное текущее состояние + сырой журнал для аудита.
// CurrentRawStatus считается по событию с максимальным Timestamp: порядок
// доставки событий перевозчиком не гарантирован.
type Detail struct {
	ShipmentRef      string
	CurrentRawStatus string
	Events           []StatusEvent
}

type Client interface {
	QuoteFee(ctx context.Context, dest models.ShippingInfo, parcel models.Parcel) (FeeQuote, error)
	CreateShipment(ctx context.Context, req CreateShipmentRequest) (string, error)
	CancelShipment(ctx context.Context, ref string) error
	GetDetail(ctx context.Context, ref string) (Detail, error)
}

// AddressClient — справочник адресов (province/district/ward) для сборки
// checkout-payload. Отдельный интерфейс: нужен только API, не sweeper'у.
type AddressClient interface {
	Provinces(ctx context.Context) ([]Province, error)
	Districts(ctx context.Context, provinceID int) ([]District, error)
	Wards(ctx context.Context, districtID int) ([]Ward, error)
}

type Province struct {
	ID   int
	Name string
}

type District struct {
	ID         int
	ProvinceID int
	Name       string
}

type Ward struct {
	Code       string
	DistrictID int
	Name       string
}

// CurrentStatus возвращает raw-статус события с максимальным timestamp.
// Пустая строка — если журнал пуст.
func CurrentStatus(events []StatusEvent) string {
	var best *StatusEvent
	for i := range events {
		if best == nil || events[i].Timestamp.After(best.Timestamp) {
			best = &events[i]
		}
	}
	if best == nil {
		return ""
	}
	return best.RawStatus
}
