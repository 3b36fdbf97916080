package orders

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/BearBump/OrderBox/internal/cache"
	"github.com/BearBump/OrderBox/internal/integrations/carrier"
	"github.com/BearBump/OrderBox/internal/integrations/gateway"
	"github.com/BearBump/OrderBox/internal/models"
	"github.com/BearBump/OrderBox/internal/services/freight"
	"github.com/pkg/errors"
)

type Repository interface {
	CreateOrder(ctx context.Context, in models.OrderCreateInput, fee int64, feeDegraded bool) (*models.Order, error)
	GetOrderByID(ctx context.Context, id string) (*models.Order, error)
	GetOrderByPaymentRef(ctx context.Context, ref string) (*models.Order, error)
	UpdateStatusCAS(ctx context.Context, id, from, to string) (bool, error)
	MarkPaidCAS(ctx context.Context, id string) (bool, error)
	SetPaymentRef(ctx context.Context, id, ref string) (bool, error)
	ClaimShipment(ctx context.Context, id string) (bool, error)
	ReleaseShipmentClaim(ctx context.Context, id, reason string) error
	SetShipmentRef(ctx context.Context, id, ref string) (bool, error)
}

type Notifier interface {
	Dispatch(ctx context.Context, order *models.Order, prevStatus, newStatus string) error
}

type Config struct {
	// QuoteTimeout ограничивает fee-quote при checkout'е; по его истечении
	// берём FallbackFee с флагом degraded, checkout не блокируем.
	QuoteTimeout time.Duration
	FallbackFee  int64

	// CallTimeout — потолок на остальные исходящие вызовы (create/cancel).
	CallTimeout time.Duration

	StatusTTL time.Duration
}

func (c *Config) defaults() {
	if c.QuoteTimeout <= 0 {
		c.QuoteTimeout = 3 * time.Second
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 8 * time.Second
	}
	if c.FallbackFee <= 0 {
		c.FallbackFee = 30000
	}
}

type Service struct {
	repo     Repository
	carrier  carrier.Client
	gateway  gateway.Client
	notifier Notifier
	cache    cache.BytesCache
	cfg      Config
}

func New(repo Repository, cc carrier.Client, gc gateway.Client, notifier Notifier, bc cache.BytesCache, cfg Config) *Service {
	cfg.defaults()
	return &Service{repo: repo, carrier: cc, gateway: gc, notifier: notifier, cache: bc, cfg: cfg}
}

type CreateResult struct {
	Order *models.Order
	// PaymentURL непустой для gateway-заказов: туда редиректится покупатель.
	PaymentURL string
}

// CreateOrder: считаем фрахт (с fallback'ом), пишем заказ, дальше ветвимся
// по способу оплаты. COD сразу уходит в PROCESSING и на создание shipment;
// gateway-заказ остаётся PENDING до подтверждения оплаты.
func (s *Service) CreateOrder(ctx context.Context, in models.OrderCreateInput) (CreateResult, error) {
	if err := validateCreateInput(in); err != nil {
		return CreateResult{}, err
	}

	parcel := freight.Select(in.Items)
	fee, degraded := s.QuoteFee(ctx, in.Shipping, parcel)

	order, err := s.repo.CreateOrder(ctx, in, fee, degraded)
	if err != nil {
		return CreateResult{}, err
	}

	switch in.PaymentMethod {
	case models.PaymentMethodCOD:
		if err := s.moveStatus(ctx, order, models.OrderStatusPending, models.OrderStatusProcessing); err != nil {
			return CreateResult{}, err
		}
		// Ошибка создания shipment не валит checkout: заказ создан,
		// помечен для follow-up, carrier позовём повторно.
		if err := s.EnsureShipment(ctx, order); err != nil {
			slog.Error("create shipment", "order_id", order.ID, "error", err.Error())
		}
		return CreateResult{Order: order}, nil

	case models.PaymentMethodGateway:
		callCtx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
		defer cancel()
		intent, err := s.gateway.CreateIntent(callCtx, gateway.IntentRequest{
			OrderID: order.ID,
			UserID:  order.UserID,
			Amount:  order.Amount(),
		})
		if err != nil {
			return CreateResult{}, errors.Wrap(err, "create payment intent")
		}
		if _, err := s.repo.SetPaymentRef(ctx, order.ID, intent.TransRef); err != nil {
			return CreateResult{}, err
		}
		order.ExternalPaymentRef = &intent.TransRef
		return CreateResult{Order: order, PaymentURL: intent.RedirectURL}, nil
	}

	return CreateResult{}, errors.Errorf("unsupported payment method %q", in.PaymentMethod)
}

func validateCreateInput(in models.OrderCreateInput) error {
	if in.UserID == "" {
		return errors.New("userId is required")
	}
	if len(in.Items) == 0 {
		return errors.New("items is empty")
	}
	for _, it := range in.Items {
		if it.ProductID == "" {
			return errors.New("productId is required")
		}
		if it.Quantity <= 0 {
			return errors.New("quantity must be positive")
		}
		if it.UnitPrice < 0 {
			return errors.New("unitPrice must be non-negative")
		}
	}
	if in.Shipping.ReceiverName == "" || in.Shipping.ReceiverPhone == "" {
		return errors.New("receiver name and phone are required")
	}
	if in.Shipping.WardCode == "" || in.Shipping.DistrictID == 0 {
		return errors.New("ward and district are required")
	}
	if in.PaymentMethod != models.PaymentMethodCOD && in.PaymentMethod != models.PaymentMethodGateway {
		return errors.New("unknown payment method")
	}
	return nil
}

// QuoteFee — best-effort: таймаут или ошибка перевозчика дают фиксированный
// fallback с degraded=true вместо отказа.
func (s *Service) QuoteFee(ctx context.Context, dest models.ShippingInfo, parcel models.Parcel) (fee int64, degraded bool) {
	quoteCtx, cancel := context.WithTimeout(ctx, s.cfg.QuoteTimeout)
	defer cancel()

	q, err := s.carrier.QuoteFee(quoteCtx, dest, parcel)
	if err != nil {
		slog.Warn("fee quote degraded", "error", err.Error())
		return s.cfg.FallbackFee, true
	}
	return q.Total, false
}

// EnsureShipment — единственная точка создания shipment. Атомарный claim
// до вызова перевозчика гарантирует не больше одного исходящего create на
// заказ при любом числе конкурентных триггеров.
func (s *Service) EnsureShipment(ctx context.Context, order *models.Order) error {
	if models.IsTerminalOrderStatus(order.Status) {
		return errors.Errorf("order %s is %s, shipment not created", order.ID, order.Status)
	}

	claimed, err := s.repo.ClaimShipment(ctx, order.ID)
	if err != nil {
		return err
	}
	if !claimed {
		// Кто-то уже создаёт (или создал) shipment — наша работа сделана.
		return nil
	}

	cod := int64(0)
	if order.PaymentMethod == models.PaymentMethodCOD {
		cod = order.Amount()
	}

	items := make([]carrier.ShipmentItem, 0, len(order.Items))
	for _, it := range order.Items {
		items = append(items, carrier.ShipmentItem{Name: it.Name, Quantity: it.Quantity})
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
	defer cancel()

	ref, err := s.carrier.CreateShipment(callCtx, carrier.CreateShipmentRequest{
		OrderID:     order.ID,
		Destination: order.Shipping,
		Parcel:      freight.Select(order.Items),
		Items:       items,
		CODAmount:   cod,
	})
	if err != nil {
		if relErr := s.repo.ReleaseShipmentClaim(ctx, order.ID, err.Error()); relErr != nil {
			slog.Error("release shipment claim", "order_id", order.ID, "error", relErr.Error())
		}
		return errors.Wrap(err, "create shipment")
	}

	if _, err := s.repo.SetShipmentRef(ctx, order.ID, ref); err != nil {
		return err
	}
	order.ExternalShipmentRef = &ref
	s.invalidateStatus(ctx, order.ID)
	return nil
}

// ApplyPaymentConfirmed — единая идемпотентная точка подтверждения оплаты
// для webhook'а и polling'а. Повторный вызов по тому же ref — успех без
// побочных эффектов.
func (s *Service) ApplyPaymentConfirmed(ctx context.Context, transRef string) error {
	order, err := s.repo.GetOrderByPaymentRef(ctx, transRef)
	if err != nil {
		return err
	}

	if order.PaymentStatus == models.PaymentStatusPaid {
		return nil
	}

	if models.IsTerminalOrderStatus(order.Status) {
		// Оплата догнала уже отменённый/завершённый заказ: не помечаем PAID
		// и не создаём shipment. payment_status остаётся PENDING — пара
		// (terminal, PENDING) видна оператору как кандидат на возврат.
		slog.Warn("payment confirmed for terminal order, not applied",
			"order_id", order.ID, "status", order.Status, "trans_ref", transRef)
		return nil
	}

	won, err := s.repo.MarkPaidCAS(ctx, order.ID)
	if err != nil {
		return err
	}
	if !won {
		// Дубль webhook'а обогнал нас между чтением и CAS.
		return nil
	}
	order.PaymentStatus = models.PaymentStatusPaid

	if order.Status == models.OrderStatusPending {
		if err := s.moveStatus(ctx, order, models.OrderStatusPending, models.OrderStatusProcessing); err != nil {
			return err
		}
	}

	if err := s.EnsureShipment(ctx, order); err != nil {
		slog.Error("create shipment after payment", "order_id", order.ID, "error", err.Error())
	}
	return nil
}

// CancelOrder: best-effort отмена у перевозчика (not found = уже отменён),
// затем локальный CAS в CANCELLED.
func (s *Service) CancelOrder(ctx context.Context, id string) (*models.Order, error) {
	order, err := s.repo.GetOrderByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if models.IsTerminalOrderStatus(order.Status) {
		return nil, errors.Errorf("order %s is already %s", id, order.Status)
	}

	if order.ExternalShipmentRef != nil {
		callCtx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
		err := s.carrier.CancelShipment(callCtx, *order.ExternalShipmentRef)
		cancel()
		if err != nil && !errors.Is(err, carrier.ErrNotFound) {
			return nil, errors.Wrap(err, "cancel shipment")
		}
	}

	if err := s.moveStatus(ctx, order, order.Status, models.OrderStatusCancelled); err != nil {
		return nil, err
	}
	return order, nil
}

// AdminUpdateStatus — ручной перевод статуса оператором. Единственный путь,
// которому разрешено движение "назад"; уведомление идёт тем же маршрутом,
// что и у sweeper'а.
func (s *Service) AdminUpdateStatus(ctx context.Context, id, newStatus string) (*models.Order, error) {
	if !models.IsValidOrderStatus(newStatus) {
		return nil, errors.Errorf("unknown status %q", newStatus)
	}

	order, err := s.repo.GetOrderByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.Status == newStatus {
		return order, nil
	}

	if err := s.moveStatus(ctx, order, order.Status, newStatus); err != nil {
		return nil, err
	}
	return order, nil
}

// GetOrderStatus — чтение с best-effort кэшем текущего статуса.
type StatusView struct {
	OrderID       string `json:"order_id"`
	Status        string `json:"status"`
	PaymentStatus string `json:"payment_status"`
	ShipmentRef   string `json:"shipment_ref,omitempty"`
	ShipmentError string `json:"shipment_error,omitempty"`
	FeeDegraded   bool   `json:"fee_degraded,omitempty"`
}

func (s *Service) GetOrderStatus(ctx context.Context, id string) (StatusView, error) {
	if s.cache != nil && s.cfg.StatusTTL > 0 {
		if b, ok, err := s.cache.Get(ctx, statusKey(id)); err == nil && ok {
			var v StatusView
			if json.Unmarshal(b, &v) == nil {
				return v, nil
			}
		}
	}

	order, err := s.repo.GetOrderByID(ctx, id)
	if err != nil {
		return StatusView{}, err
	}

	v := StatusView{
		OrderID:       order.ID,
		Status:        order.Status,
		PaymentStatus: order.PaymentStatus,
		FeeDegraded:   order.FeeDegraded,
	}
	if order.ExternalShipmentRef != nil {
		v.ShipmentRef = *order.ExternalShipmentRef
	}
	if order.ShipmentError != nil {
		v.ShipmentError = *order.ShipmentError
	}

	if s.cache != nil && s.cfg.StatusTTL > 0 {
		b, _ := json.Marshal(v)
		_ = s.cache.Set(ctx, statusKey(id), b, s.cfg.StatusTTL)
	}
	return v, nil
}

// moveStatus — CAS-переход + уведомление при выигрыше. Проигрыш гонки —
// ошибка для вызывающего (его представление о заказе устарело).
func (s *Service) moveStatus(ctx context.Context, order *models.Order, from, to string) error {
	won, err := s.repo.UpdateStatusCAS(ctx, order.ID, from, to)
	if err != nil {
		return err
	}
	if !won {
		return errors.Errorf("order %s status changed concurrently (expected %s)", order.ID, from)
	}
	order.Status = to
	s.invalidateStatus(ctx, order.ID)

	if s.notifier != nil {
		if err := s.notifier.Dispatch(ctx, order, from, to); err != nil {
			slog.Error("dispatch notification", "order_id", order.ID, "status", to, "error", err.Error())
		}
	}
	return nil
}

// invalidateStatus — best-effort: при недоступном кэше статус протухнет
// сам по TTL.
func (s *Service) invalidateStatus(ctx context.Context, id string) {
	if s.cache == nil || s.cfg.StatusTTL <= 0 {
		return
	}
	_ = s.cache.Delete(ctx, statusKey(id))
}

func statusKey(id string) string {
	return fmt.Sprintf("order:%s:status", id)
}
