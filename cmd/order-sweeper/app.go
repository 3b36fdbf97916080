package main

import (
	"context"
	"fmt"
	"time"

	"github.com/BearBump/OrderBox/config"
	"github.com/BearBump/OrderBox/internal/broker/kafka"
	"github.com/BearBump/OrderBox/internal/cache"
	"github.com/BearBump/OrderBox/internal/cache/rediscache"
	"github.com/BearBump/OrderBox/internal/integrations/carrier"
	carrierfake "github.com/BearBump/OrderBox/internal/integrations/carrier/fake"
	"github.com/BearBump/OrderBox/internal/integrations/carrier/ghnhttp"
	"github.com/BearBump/OrderBox/internal/integrations/gateway"
	gatewayfake "github.com/BearBump/OrderBox/internal/integrations/gateway/fake"
	"github.com/BearBump/OrderBox/internal/integrations/gateway/zalopayhttp"
	"github.com/BearBump/OrderBox/internal/services/notify"
	"github.com/BearBump/OrderBox/internal/services/orders"
	"github.com/BearBump/OrderBox/internal/services/payments"
	"github.com/BearBump/OrderBox/internal/services/sweeper"
	"github.com/BearBump/OrderBox/internal/storage/pgorders"
)

// sweeperStorage — всё, что sweeper-процесс просит у хранилища: репозиторий
// заказов, выборки для сверки и опроса оплат, реестр уведомлений.
type sweeperStorage interface {
	orders.Repository
	sweeper.Repository
	payments.Repository
	notify.Ledger
}

type sweeperFactories struct {
	newStorage       func(cfg *config.Config) (st sweeperStorage, closeFn func(), err error)
	newProducer      func(cfg *config.Config) notify.Producer
	newRateLimiter   func(cfg *config.Config) sweeper.RateLimiter
	newCache         func(cfg *config.Config) cache.BytesCache
	newCarrierClient func(cfg *config.Config) carrier.Client
	newGatewayClient func(cfg *config.Config) gateway.Client
}

func defaultSweeperFactories() sweeperFactories {
	return sweeperFactories{
		newStorage: func(cfg *config.Config) (sweeperStorage, func(), error) {
			sslMode := cfg.Database.SSLMode
			if sslMode == "" {
				sslMode = "disable"
			}
			connString := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
				cfg.Database.Username, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName, sslMode)
			st, err := pgorders.New(connString)
			if err != nil {
				return nil, nil, err
			}
			return st, st.Close, nil
		},
		newProducer: func(cfg *config.Config) notify.Producer {
			brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
			return kafka.NewProducer(brokers)
		},
		newRateLimiter: func(cfg *config.Config) sweeper.RateLimiter {
			redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
			return rediscache.NewRateLimiter(redisAddr)
		},
		newCache: func(cfg *config.Config) cache.BytesCache {
			redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
			return rediscache.New(redisAddr)
		},
		newCarrierClient: func(cfg *config.Config) carrier.Client {
			// Без base_url — локальный fake, как и в order-api.
			if cfg.Carrier.BaseURL != "" {
				return ghnhttp.New(cfg.Carrier.BaseURL, cfg.Carrier.Token, cfg.Carrier.ShopID)
			}
			return carrierfake.New()
		},
		newGatewayClient: func(cfg *config.Config) gateway.Client {
			if cfg.Gateway.BaseURL != "" {
				return zalopayhttp.New(cfg.Gateway.BaseURL, cfg.Gateway.AppID, cfg.Gateway.Key1)
			}
			return gatewayfake.New(15 * time.Second)
		},
	}
}

type sweeperRuntime struct {
	sweeper  *sweeper.Sweeper
	payments *payments.Poller
}

func buildSweeperRuntime(cfg *config.Config, f sweeperFactories, st sweeperStorage) *sweeperRuntime {
	topic := cfg.Kafka.NotificationsTopicName
	if topic == "" {
		topic = "order.notifications"
	}

	producer := f.newProducer(cfg)
	rl := f.newRateLimiter(cfg)
	carrierClient := f.newCarrierClient(cfg)
	gatewayClient := f.newGatewayClient(cfg)

	var bc cache.BytesCache
	if f.newCache != nil {
		bc = f.newCache(cfg)
	}

	dispatcher := notify.New(st, producer, topic)

	svc := orders.New(st, carrierClient, gatewayClient, dispatcher, bc, orders.Config{
		QuoteTimeout: time.Duration(cfg.OrderBox.QuoteTimeoutSeconds) * time.Second,
		FallbackFee:  cfg.OrderBox.FallbackShippingFee,
		StatusTTL:    time.Duration(cfg.OrderBox.StatusTTLSeconds) * time.Second,
	})

	sw := sweeper.New(st, carrierClient, dispatcher, rl).
		WithSettings(
			time.Duration(cfg.OrderBox.SweepIntervalSeconds)*time.Second,
			cfg.OrderBox.SweepBatchSize,
			cfg.OrderBox.SweepConcurrency,
			time.Duration(cfg.OrderBox.SweepOrderTimeoutSeconds)*time.Second,
			int64(cfg.OrderBox.CarrierRateLimitPerMin),
		).
		WithCache(bc)

	pp := payments.New(st, gatewayClient, svc).
		WithSettings(
			time.Duration(cfg.OrderBox.PaymentPollIntervalSeconds)*time.Second,
			time.Duration(cfg.OrderBox.PaymentGraceSeconds)*time.Second,
			cfg.OrderBox.SweepBatchSize,
		)

	return &sweeperRuntime{sweeper: sw, payments: pp}
}

func RunOrderSweeper(ctx context.Context, cfg *config.Config, f sweeperFactories, httpOpts sweeperHTTPOpts) error {
	st, closeFn, err := f.newStorage(cfg)
	if err != nil {
		return err
	}
	if closeFn != nil {
		defer closeFn()
	}

	rt := buildSweeperRuntime(cfg, f, st)
	httpOpts.sweeper = rt.sweeper
	httpOpts.payments = rt.payments
	httpOpts.cfg = cfg

	sweepErr := make(chan error, 1)
	go func() { sweepErr <- rt.sweeper.Run(ctx) }()

	pollErr := make(chan error, 1)
	go func() { pollErr <- rt.payments.Run(ctx) }()

	httpErr := make(chan error, 1)
	go func() { httpErr <- runSweeperHTTPServer(ctx, httpOpts) }()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-sweepErr:
		return err
	case err := <-pollErr:
		return err
	case err := <-httpErr:
		return err
	}
}
