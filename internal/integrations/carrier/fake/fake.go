package fake

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/BearBump/OrderBox/internal/integrations/carrier"
	"github.com/BearBump/OrderBox/internal/models"
)

// FakeClient — локальная заглушка перевозчика для демо и тестов окружения.
// Shipment'ы живут в памяти; статус детерминированно "едет" по журналу
// со временем, часть заказов доезжает до delivered.
type FakeClient struct {
	mu        sync.Mutex
	shipments map[string]time.Time // ref -> created at
	seq       int
	fee       int64
}

func New() *FakeClient {
	return &FakeClient{
		shipments: make(map[string]time.Time),
		fee:       22000,
	}
}

func (f *FakeClient) QuoteFee(ctx context.Context, dest models.ShippingInfo, parcel models.Parcel) (carrier.FeeQuote, error) {
	fee := f.fee
	if parcel.ServiceTier == "heavy" {
		fee *= 2
	}
	return carrier.FeeQuote{Total: fee}, nil
}

func (f *FakeClient) CreateShipment(ctx context.Context, req carrier.CreateShipmentRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	ref := fmt.Sprintf("FAKE%06d", f.seq)
	f.shipments[ref] = time.Now().UTC()
	return ref, nil
}

func (f *FakeClient) CancelShipment(ctx context.Context, ref string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	// not found = success-equivalent, как у настоящего клиента
	delete(f.shipments, ref)
	return nil
}

func (f *FakeClient) GetDetail(ctx context.Context, ref string) (carrier.Detail, error) {
	f.mu.Lock()
	created, ok := f.shipments[ref]
	f.mu.Unlock()
	if !ok {
		return carrier.Detail{}, carrier.ErrNotFound
	}

	// Детерминированный прогресс по хэшу ref: у части заказов журнал длиннее.
	h := fnv.New32a()
	_, _ = h.Write([]byte(ref))
	steps := []string{"ready_to_pick", "picked", "transporting", "delivering", "delivered"}
	age := int(time.Since(created) / (30 * time.Second))
	n := 1 + age
	if n > len(steps) {
		n = len(steps)
	}
	if h.Sum32()%5 == 0 && n > 3 {
		n = 3 // эти застревают в пути
	}

	events := make([]carrier.StatusEvent, 0, n)
	for i := 0; i < n; i++ {
		events = append(events, carrier.StatusEvent{
			RawStatus: steps[i],
			Timestamp: created.Add(time.Duration(i) * 30 * time.Second),
			Note:      "fake carrier update",
		})
	}

	return carrier.Detail{
		ShipmentRef:      ref,
		CurrentRawStatus: carrier.CurrentStatus(events),
		Events:           events,
	}, nil
}

// Статичный мини-справочник адресов, хватает для демо checkout'а.
func (f *FakeClient) Provinces(ctx context.Context) ([]carrier.Province, error) {
	return []carrier.Province{
		{ID: 201, Name: "Ha Noi"},
		{ID: 202, Name: "Ho Chi Minh"},
	}, nil
}

func (f *FakeClient) Districts(ctx context.Context, provinceID int) ([]carrier.District, error) {
	return []carrier.District{
		{ID: provinceID*10 + 1, ProvinceID: provinceID, Name: "District 1"},
		{ID: provinceID*10 + 2, ProvinceID: provinceID, Name: "District 2"},
	}, nil
}

func (f *FakeClient) Wards(ctx context.Context, districtID int) ([]carrier.Ward, error) {
	return []carrier.Ward{
		{Code: fmt.Sprintf("W%d1", districtID), DistrictID: districtID, Name: "Ward 1"},
		{Code: fmt.Sprintf("W%d2", districtID), DistrictID: districtID, Name: "Ward 2"},
	}, nil
}
