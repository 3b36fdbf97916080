package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BearBump/OrderBox/internal/cache"
	"github.com/BearBump/OrderBox/internal/integrations/carrier"
	"github.com/BearBump/OrderBox/internal/models"
	"github.com/pkg/errors"
)

type Repository interface {
	ListShippedOrders(ctx context.Context, limit int) ([]*models.Order, error)
	UpdateStatusCAS(ctx context.Context, id, from, to string) (bool, error)
}

type Notifier interface {
	Dispatch(ctx context.Context, order *models.Order, prevStatus, newStatus string) error
}

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error)
}

// Sweeper — периодическая сверка: берём все заказы с активным shipment,
// спрашиваем перевозчика и подтягиваем локальный статус. Это страховка на
// случай пропущенных обновлений; цикл обязан быть идемпотентным.
type Sweeper struct {
	repo     Repository
	carrier  carrier.Client
	notifier Notifier
	rl       RateLimiter
	cache    cache.BytesCache

	sweepInterval      time.Duration
	batchSize          int
	concurrency        int
	orderTimeout       time.Duration
	rateLimitPerMinute int64

	triggerCh chan struct{}

	startedAtUnixNano   int64
	lastCycleUnixNano   atomic.Int64
	lastTriggerUnixNano atomic.Int64
	totalSwept          atomic.Int64
	totalApplied        atomic.Int64
	totalDeferred       atomic.Int64
	totalErrors         atomic.Int64
	inFlight            atomic.Int64
	lastErrorMu         sync.Mutex
	lastError           string
}

func New(repo Repository, cc carrier.Client, notifier Notifier, rl RateLimiter) *Sweeper {
	return &Sweeper{
		repo: repo, carrier: cc, notifier: notifier, rl: rl,
		sweepInterval:      60 * time.Second,
		batchSize:          200,
		concurrency:        10,
		orderTimeout:       15 * time.Second,
		rateLimitPerMinute: 120,
		triggerCh:          make(chan struct{}, 1),
		startedAtUnixNano:  time.Now().UTC().UnixNano(),
	}
}

func (s *Sweeper) WithSettings(sweepInterval time.Duration, batchSize, concurrency int, orderTimeout time.Duration, rlPerMin int64) *Sweeper {
	if sweepInterval > 0 {
		s.sweepInterval = sweepInterval
	}
	if batchSize > 0 {
		s.batchSize = batchSize
	}
	if concurrency > 0 {
		s.concurrency = concurrency
	}
	if orderTimeout > 0 {
		s.orderTimeout = orderTimeout
	}
	if rlPerMin > 0 {
		s.rateLimitPerMinute = rlPerMin
	}
	return s
}

func (s *Sweeper) WithCache(c cache.BytesCache) *Sweeper {
	s.cache = c
	return s
}

// Trigger forces an immediate sweep cycle (best-effort, non-blocking).
func (s *Sweeper) Trigger() {
	s.lastTriggerUnixNano.Store(time.Now().UTC().UnixNano())
	select {
	case s.triggerCh <- struct{}{}:
	default:
	}
}

type Stats struct {
	StartedAt     time.Time  `json:"startedAt"`
	LastCycleAt   *time.Time `json:"lastCycleAt,omitempty"`
	LastTriggerAt *time.Time `json:"lastTriggerAt,omitempty"`
	TotalSwept    int64      `json:"totalSwept"`
	TotalApplied  int64      `json:"totalApplied"`
	TotalDeferred int64      `json:"totalDeferred"`
	TotalErrors   int64      `json:"totalErrors"`
	InFlight      int64      `json:"inFlight"`
	LastError     string     `json:"lastError,omitempty"`
}

func (s *Sweeper) Stats() Stats {
	st := Stats{
		StartedAt:     time.Unix(0, s.startedAtUnixNano).UTC(),
		TotalSwept:    s.totalSwept.Load(),
		TotalApplied:  s.totalApplied.Load(),
		TotalDeferred: s.totalDeferred.Load(),
		TotalErrors:   s.totalErrors.Load(),
		InFlight:      s.inFlight.Load(),
	}
	if n := s.lastCycleUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastCycleAt = &t
	}
	if n := s.lastTriggerUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastTriggerAt = &t
	}
	s.lastErrorMu.Lock()
	st.LastError = s.lastError
	s.lastErrorMu.Unlock()
	return st
}

func (s *Sweeper) Run(ctx context.Context) error {
	t := time.NewTicker(s.sweepInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			s.runOnce(ctx)
		case <-s.triggerCh:
			s.runOnce(ctx)
		}
	}
}

func (s *Sweeper) runOnce(ctx context.Context) {
	now := time.Now().UTC()
	s.lastCycleUnixNano.Store(now.UnixNano())

	orders, err := s.repo.ListShippedOrders(ctx, s.batchSize)
	if err != nil {
		slog.Error("list shipped orders", "error", err.Error())
		s.recordError(err)
		return
	}
	s.totalSwept.Add(int64(len(orders)))

	sem := make(chan struct{}, s.concurrency)
	var wg sync.WaitGroup
	for _, o := range orders {
		sem <- struct{}{}
		wg.Add(1)
		oCopy := o
		s.inFlight.Add(1)
		go func() {
			defer func() {
				s.inFlight.Add(-1)
				<-sem
				wg.Done()
			}()
			if err := s.sweepOne(ctx, oCopy); err != nil {
				s.totalErrors.Add(1)
				s.recordError(err)
				slog.Error("sweep order", "order_id", oCopy.ID, "error", err.Error())
			}
		}()
	}
	wg.Wait()
}

func (s *Sweeper) recordError(err error) {
	s.lastErrorMu.Lock()
	s.lastError = err.Error()
	s.lastErrorMu.Unlock()
}

// sweepOne сверяет один заказ. Не-ошибка: unknown raw status, shipment
// not found, rate limit (всё это — defer до следующего цикла).
func (s *Sweeper) sweepOne(ctx context.Context, order *models.Order) error {
	if order.ExternalShipmentRef == nil {
		return nil
	}
	ref := *order.ExternalShipmentRef

	ctx, cancel := context.WithTimeout(ctx, s.orderTimeout)
	defer cancel()

	now := time.Now().UTC()
	if s.rl != nil && s.rateLimitPerMinute > 0 {
		minuteKey := fmt.Sprintf("rl:carrier:%s", now.Format("200601021504"))
		allowed, n, err := s.rl.Allow(ctx, minuteKey, s.rateLimitPerMinute, 70*time.Second)
		if err != nil {
			return err
		}
		if !allowed {
			// Бюджет минуты выбран: заказ дождётся следующего цикла.
			slog.Warn("carrier rate limit exceeded", "count", n)
			s.totalDeferred.Add(1)
			return nil
		}
	}

	detail, err := s.carrier.GetDetail(ctx, ref)
	if err != nil {
		switch {
		case errors.Is(err, carrier.ErrNotFound):
			slog.Warn("shipment unknown to carrier", "order_id", order.ID, "shipment_ref", ref)
			return nil
		case errors.Is(err, carrier.ErrRateLimited):
			slog.Warn("carrier asked to slow down", "order_id", order.ID)
			s.totalDeferred.Add(1)
			return nil
		}
		return err
	}

	raw := detail.CurrentRawStatus
	if raw == "" {
		return nil
	}

	mapped, ok := MapRawStatus(raw)
	if !ok {
		slog.Warn("unmapped carrier status", "order_id", order.ID, "raw_status", raw)
		return nil
	}

	if !shouldApply(order.Status, mapped) {
		return nil
	}

	won, err := s.repo.UpdateStatusCAS(ctx, order.ID, order.Status, mapped)
	if err != nil {
		return err
	}
	if !won {
		// Кто-то успел раньше (admin или предыдущий цикл); следующий
		// проход увидит свежий статус.
		return nil
	}
	s.totalApplied.Add(1)

	prev := order.Status
	order.Status = mapped

	if s.cache != nil {
		_ = s.cache.Delete(ctx, fmt.Sprintf("order:%s:status", order.ID))
	}

	if s.notifier != nil {
		if err := s.notifier.Dispatch(ctx, order, prev, mapped); err != nil {
			slog.Error("dispatch notification", "order_id", order.ID, "status", mapped, "error", err.Error())
		}
	}
	return nil
}
