package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BearBump/OrderBox/config"
	"github.com/BearBump/OrderBox/internal/api/orders_api"
	"github.com/BearBump/OrderBox/internal/broker/kafka"
	"github.com/BearBump/OrderBox/internal/cache/rediscache"
	"github.com/BearBump/OrderBox/internal/integrations/carrier"
	carrierfake "github.com/BearBump/OrderBox/internal/integrations/carrier/fake"
	"github.com/BearBump/OrderBox/internal/integrations/carrier/ghnhttp"
	"github.com/BearBump/OrderBox/internal/integrations/gateway"
	gatewayfake "github.com/BearBump/OrderBox/internal/integrations/gateway/fake"
	"github.com/BearBump/OrderBox/internal/integrations/gateway/zalopayhttp"
	"github.com/BearBump/OrderBox/internal/services/notify"
	"github.com/BearBump/OrderBox/internal/services/orders"
	"github.com/BearBump/OrderBox/internal/storage/pgorders"
)

func main() {
	cfg, err := config.LoadConfig(os.Getenv("configPath"))
	if err != nil {
		panic(fmt.Sprintf("ошибка парсинга конфига, %v", err))
	}

	httpAddr := cfg.OrderBox.HTTPAddr
	if httpAddr == "" {
		httpAddr = ":8080"
	}
	consumerGroup := cfg.OrderBox.KafkaConsumerGroup
	if consumerGroup == "" {
		consumerGroup = "order-api"
	}
	topic := cfg.Kafka.NotificationsTopicName
	if topic == "" {
		topic = "order.notifications"
	}
	statusTTL := time.Duration(cfg.OrderBox.StatusTTLSeconds) * time.Second
	if statusTTL <= 0 {
		statusTTL = 5 * time.Minute
	}

	sslMode := cfg.Database.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	connString := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.Database.Username, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName, sslMode)
	st := mustOpenPostgresWithRetry(connString, 60*time.Second)
	defer st.Close()

	redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
	rc := rediscache.New(redisAddr)

	// Без base_url перевозчика/шлюза поднимаемся на локальных fake'ах:
	// удобно для docker compose без внешних аккаунтов.
	var carrierClient carrier.Client
	var addresses carrier.AddressClient
	if cfg.Carrier.BaseURL != "" {
		c := ghnhttp.New(cfg.Carrier.BaseURL, cfg.Carrier.Token, cfg.Carrier.ShopID)
		carrierClient, addresses = c, c
	} else {
		c := carrierfake.New()
		carrierClient, addresses = c, c
	}

	var gatewayClient gateway.Client
	if cfg.Gateway.BaseURL != "" {
		gatewayClient = zalopayhttp.New(cfg.Gateway.BaseURL, cfg.Gateway.AppID, cfg.Gateway.Key1)
	} else {
		gatewayClient = gatewayfake.New(15 * time.Second)
	}

	brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
	producer := kafka.NewProducer(brokers)
	defer func() { _ = producer.Close() }()
	dispatcher := notify.New(st, producer, topic)

	svc := orders.New(st, carrierClient, gatewayClient, dispatcher, rc, orders.Config{
		QuoteTimeout: time.Duration(cfg.OrderBox.QuoteTimeoutSeconds) * time.Second,
		FallbackFee:  cfg.OrderBox.FallbackShippingFee,
		StatusTTL:    statusTTL,
	})

	api := orders_api.New(svc, addresses, cfg.Gateway.Key2)

	consumer := kafka.NewConsumer(brokers, topic, consumerGroup)
	defer func() { _ = consumer.Close() }()

	swaggerPath := os.Getenv("swaggerPath")
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := runOrderAPI(ctx, orderAPIOpts{
		httpAddr:      httpAddr,
		swaggerPath:   swaggerPath,
		topic:         topic,
		consumerGroup: consumerGroup,
	}, api, consumer); err != nil && err != context.Canceled {
		panic(err)
	}
}

func mustOpenPostgresWithRetry(connString string, wait time.Duration) *pgorders.Storage {
	deadline := time.Now().Add(wait)
	var lastErr error
	for time.Now().Before(deadline) {
		st, err := pgorders.New(connString)
		if err == nil {
			return st
		}
		lastErr = err
		time.Sleep(1 * time.Second)
	}
	panic(fmt.Sprintf("postgres is not ready after %s: %v", wait, lastErr))
}
