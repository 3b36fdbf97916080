package models

import "time"

// Локальные статусы заказа. Движение только вперёд, кроме admin override.
const (
	OrderStatusPending    = "PENDING"
	OrderStatusProcessing = "PROCESSING"
	OrderStatusShipping   = "SHIPPING"
	OrderStatusCompleted  = "COMPLETED"
	OrderStatusCancelled  = "CANCELLED"
)

const (
	PaymentStatusPending  = "PENDING"
	PaymentStatusPaid     = "PAID"
	PaymentStatusRefunded = "REFUNDED"
)

const (
	PaymentMethodCOD     = "COD"
	PaymentMethodGateway = "GATEWAY"
)

func IsValidOrderStatus(s string) bool {
	switch s {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusShipping,
		OrderStatusCompleted, OrderStatusCancelled:
		return true
	}
	return false
}

func IsTerminalOrderStatus(s string) bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled
}

type OrderItem struct {
	ProductID string
	Name      string
	Quantity  int
	UnitPrice int64
	WeightG   int // optional, 0 = unknown
}

type ShippingInfo struct {
	ReceiverName  string
	ReceiverPhone string
	Street        string
	WardCode      string
	DistrictID    int
	ProvinceID    int
}

type Order struct {
	ID     string
	UserID string

	Items []OrderItem

	Status        string
	PaymentStatus string
	PaymentMethod string

	// Внешние ссылки. Однажды записанные — не перезаписываются.
	ExternalPaymentRef  *string
	ExternalShipmentRef *string

	// Claim на создание shipment: выставляется атомарно до вызова carrier,
	// чтобы два конкурентных триггера дали ровно один исходящий вызов.
	ShipmentClaimedAt *time.Time
	ShipmentError     *string

	ShippingFee int64
	FeeDegraded bool

	Shipping ShippingInfo

	PaidAt    *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (o *Order) ItemCount() int {
	n := 0
	for _, it := range o.Items {
		n += it.Quantity
	}
	return n
}

func (o *Order) Amount() int64 {
	var sum int64
	for _, it := range o.Items {
		sum += it.UnitPrice * int64(it.Quantity)
	}
	return sum + o.ShippingFee
}

// Parcel — тариф и габариты, выбранные freight-селектором для заказа.
type Parcel struct {
	ServiceTier string // "light" | "heavy"
	WeightG     int
	LengthCm    int
	WidthCm     int
	HeightCm    int
}

type OrderCreateInput struct {
	UserID        string
	Items         []OrderItem
	Shipping      ShippingInfo
	PaymentMethod string
}
