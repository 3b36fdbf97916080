package payments

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/BearBump/OrderBox/internal/integrations/gateway"
	"github.com/BearBump/OrderBox/internal/models"
)

type Repository interface {
	ListUnconfirmedGatewayOrders(ctx context.Context, olderThan time.Time, limit int) ([]*models.Order, error)
}

// Confirmer — единая точка применения подтверждённой оплаты; webhook и
// polling сходятся в ней, идемпотентность — её забота.
type Confirmer interface {
	ApplyPaymentConfirmed(ctx context.Context, transRef string) error
}

// Poller — страховочный опрос шлюза для заказов, по которым webhook так и
// не пришёл. Свежие заказы (младше grace) не трогаем: их webhook ещё в пути.
type Poller struct {
	repo      Repository
	gateway   gateway.Client
	confirmer Confirmer

	pollInterval time.Duration
	grace        time.Duration
	batchSize    int

	triggerCh chan struct{}

	lastCycleUnixNano atomic.Int64
	totalChecked      atomic.Int64
	totalConfirmed    atomic.Int64
	totalErrors       atomic.Int64
}

func New(repo Repository, gc gateway.Client, confirmer Confirmer) *Poller {
	return &Poller{
		repo: repo, gateway: gc, confirmer: confirmer,
		pollInterval: 120 * time.Second,
		grace:        300 * time.Second,
		batchSize:    100,
		triggerCh:    make(chan struct{}, 1),
	}
}

func (p *Poller) WithSettings(pollInterval, grace time.Duration, batchSize int) *Poller {
	if pollInterval > 0 {
		p.pollInterval = pollInterval
	}
	if grace > 0 {
		p.grace = grace
	}
	if batchSize > 0 {
		p.batchSize = batchSize
	}
	return p
}

// Trigger forces an immediate poll cycle (best-effort, non-blocking).
func (p *Poller) Trigger() {
	select {
	case p.triggerCh <- struct{}{}:
	default:
	}
}

type Stats struct {
	LastCycleAt    *time.Time `json:"lastCycleAt,omitempty"`
	TotalChecked   int64      `json:"totalChecked"`
	TotalConfirmed int64      `json:"totalConfirmed"`
	TotalErrors    int64      `json:"totalErrors"`
}

func (p *Poller) Stats() Stats {
	st := Stats{
		TotalChecked:   p.totalChecked.Load(),
		TotalConfirmed: p.totalConfirmed.Load(),
		TotalErrors:    p.totalErrors.Load(),
	}
	if n := p.lastCycleUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastCycleAt = &t
	}
	return st
}

func (p *Poller) Run(ctx context.Context) error {
	t := time.NewTicker(p.pollInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			p.runOnce(ctx)
		case <-p.triggerCh:
			p.runOnce(ctx)
		}
	}
}

func (p *Poller) runOnce(ctx context.Context) {
	now := time.Now().UTC()
	p.lastCycleUnixNano.Store(now.UnixNano())

	orders, err := p.repo.ListUnconfirmedGatewayOrders(ctx, now.Add(-p.grace), p.batchSize)
	if err != nil {
		slog.Error("list unconfirmed orders", "error", err.Error())
		p.totalErrors.Add(1)
		return
	}

	for _, o := range orders {
		if o.ExternalPaymentRef == nil {
			continue
		}
		p.totalChecked.Add(1)

		st, err := p.gateway.QueryStatus(ctx, *o.ExternalPaymentRef)
		if err != nil {
			p.totalErrors.Add(1)
			slog.Error("query payment status", "order_id", o.ID, "error", err.Error())
			continue
		}
		if !st.Paid {
			continue
		}

		if err := p.confirmer.ApplyPaymentConfirmed(ctx, *o.ExternalPaymentRef); err != nil {
			p.totalErrors.Add(1)
			slog.Error("apply payment", "order_id", o.ID, "error", err.Error())
			continue
		}
		p.totalConfirmed.Add(1)
		slog.Info("payment confirmed by polling", "order_id", o.ID)
	}
}
