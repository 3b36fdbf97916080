package config

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v4"
)

type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	Gateway  GatewayConfig  `yaml:"gateway"`
	Carrier  CarrierConfig  `yaml:"carrier"`
	OrderBox OrderBoxConfig `yaml:"orderbox"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DBName   string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

type KafkaConfig struct {
	Host                   string `yaml:"host"`
	Port                   int    `yaml:"port"`
	NotificationsTopicName string `yaml:"notifications_topic_name"`
}

type RedisConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// GatewayConfig — ключи и endpoint платёжного шлюза.
// key1 подписывает исходящие запросы, key2 проверяет входящие callback'и.
type GatewayConfig struct {
	BaseURL string `yaml:"base_url"`
	AppID   string `yaml:"app_id"`
	Key1    string `yaml:"key1"`
	Key2    string `yaml:"key2"`
}

type CarrierConfig struct {
	BaseURL        string `yaml:"base_url"`
	Token          string `yaml:"token"`
	ShopID         string `yaml:"shop_id"`
	FromDistrictID int    `yaml:"from_district_id"`
	FromWardCode   string `yaml:"from_ward_code"`
}

type OrderBoxConfig struct {
	HTTPAddr           string `yaml:"http_addr"`
	KafkaConsumerGroup string `yaml:"kafka_consumer_group"`
	StatusTTLSeconds   int    `yaml:"status_ttl_seconds"`

	SweepIntervalSeconds     int `yaml:"sweep_interval_seconds"`
	SweepConcurrency         int `yaml:"sweep_concurrency"`
	SweepBatchSize           int `yaml:"sweep_batch_size"`
	SweepOrderTimeoutSeconds int `yaml:"sweep_order_timeout_seconds"`
	CarrierRateLimitPerMin   int `yaml:"carrier_rate_limit_per_minute"`

	PaymentPollIntervalSeconds int `yaml:"payment_poll_interval_seconds"`
	PaymentGraceSeconds        int `yaml:"payment_grace_seconds"`

	QuoteTimeoutSeconds int   `yaml:"quote_timeout_seconds"`
	FallbackShippingFee int64 `yaml:"fallback_shipping_fee"`

	SweeperHTTPAddr string `yaml:"sweeper_http_addr"`
}

func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}

	return &config, nil
}
