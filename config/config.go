package config

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v4"
)

type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	ParcelHub ParcelHubConfig `yaml:"parcelhub"`
}

type DatabaseConfig struct {
	Driver   string `yaml:"driver"` // "postgres" | "memory"
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DBName   string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

// DSN returns the pgx connection string; an empty ssl_mode means "disable".
func (c DatabaseConfig) DSN() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Username, c.Password, c.Host, c.Port, c.DBName, sslMode)
}

type KafkaConfig struct {
	Host   string      `yaml:"host"`
	Port   int         `yaml:"port"`
	Topics KafkaTopics `yaml:"topics"`
}

type KafkaTopics struct {
	SyncRequests  string `yaml:"sync_requests"`
	Audit         string `yaml:"audit"`
	Notifications string `yaml:"notifications"`
}

func (c KafkaConfig) Brokers() []string {
	if c.Host == "" {
		return nil
	}
	return []string{fmt.Sprintf("%s:%d", c.Host, c.Port)}
}

type RedisConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

func (c RedisConfig) Addr() string {
	if c.Host == "" {
		return ""
	}
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type ParcelHubConfig struct {
	HTTPAddr           string `yaml:"http_addr"`
	WorkerHTTPAddr     string `yaml:"worker_http_addr"`
	WorkerGRPCAddr     string `yaml:"worker_grpc_addr"`
	KafkaConsumerGroup string `yaml:"kafka_consumer_group"`

	CarrierWebhookToken            string `yaml:"carrier_webhook_token"`
	PaymentWebhookSecret           string `yaml:"payment_webhook_secret"`
	PaymentWebhookToleranceSeconds int    `yaml:"payment_webhook_tolerance_seconds"`
	AdminToken                     string `yaml:"admin_token"`

	// Batch sync. sync_schedule is a standard 5-field cron expression.
	SyncSchedule              string `yaml:"sync_schedule"`
	SyncConcurrency           int    `yaml:"sync_concurrency"`
	SyncLockTTLSeconds        int    `yaml:"sync_lock_ttl_seconds"`
	GatewayRateLimitPerMinute int    `yaml:"gateway_rate_limit_per_minute"`
	DetectCacheTTLSeconds     int    `yaml:"detect_cache_ttl_seconds"`

	GatewayBaseURL        string `yaml:"gateway_base_url"`
	GatewayAPIKey         string `yaml:"gateway_api_key"`
	GatewayTimeoutSeconds int    `yaml:"gateway_timeout_seconds"`
	GatewayMode           string `yaml:"gateway_mode"` // "http" | "fake"
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
