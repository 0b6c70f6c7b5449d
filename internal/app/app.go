// Package app assembles the runtime dependencies shared by the api, the
// worker and the operator CLI from a loaded config.
package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/BearBump/ParcelHub/config"
	"github.com/BearBump/ParcelHub/internal/broker/kafka"
	"github.com/BearBump/ParcelHub/internal/cache/rediscache"
	"github.com/BearBump/ParcelHub/internal/integrations/carrier"
	"github.com/BearBump/ParcelHub/internal/integrations/carrier/fake"
	"github.com/BearBump/ParcelHub/internal/integrations/carrier/gatewayhttp"
	"github.com/BearBump/ParcelHub/internal/notify"
	"github.com/BearBump/ParcelHub/internal/services/tracking"
	"github.com/BearBump/ParcelHub/internal/storage"
	"github.com/BearBump/ParcelHub/internal/storage/memstore"
	"github.com/BearBump/ParcelHub/internal/storage/pgparcel"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultSyncRequestsTopic  = "parcel.sync.requested"
	DefaultAuditTopic         = "parcel.audit"
	DefaultNotificationsTopic = "parcel.notifications"

	defaultRateLimitPerMinute = 120
	defaultDetectCacheTTL     = 24 * time.Hour
	postgresWait              = 60 * time.Second
)

type Producer interface {
	PublishJSON(ctx context.Context, topic, key string, v any) error
	Close() error
}

// Factories are the seams used by the binaries' tests.
type Factories struct {
	NewStore    func(ctx context.Context, cfg *config.Config) (storage.Store, error)
	NewGateway  func(cfg *config.Config) carrier.Gateway
	NewRedis    func(cfg *config.Config) *redis.Client
	NewProducer func(cfg *config.Config) Producer
}

func DefaultFactories() Factories {
	return Factories{
		NewStore: func(ctx context.Context, cfg *config.Config) (storage.Store, error) {
			if cfg.Database.Driver == "memory" {
				return memstore.New(), nil
			}
			st, err := openPostgresWithRetry(ctx, cfg.Database.DSN(), postgresWait)
			if err != nil {
				return nil, err
			}
			return st, nil
		},
		NewGateway: func(cfg *config.Config) carrier.Gateway {
			// Без base_url работаем на локальном fake.
			if cfg.ParcelHub.GatewayMode == "http" && cfg.ParcelHub.GatewayBaseURL != "" {
				timeout := time.Duration(cfg.ParcelHub.GatewayTimeoutSeconds) * time.Second
				return gatewayhttp.New(cfg.ParcelHub.GatewayBaseURL, cfg.ParcelHub.GatewayAPIKey, timeout)
			}
			return fake.New()
		},
		NewRedis: func(cfg *config.Config) *redis.Client {
			if cfg.Redis.Addr() == "" {
				return nil
			}
			return rediscache.NewClient(cfg.Redis.Addr())
		},
		NewProducer: func(cfg *config.Config) Producer {
			brokers := cfg.Kafka.Brokers()
			if len(brokers) == 0 {
				return nil
			}
			return kafka.NewProducer(brokers)
		},
	}
}

func openPostgresWithRetry(ctx context.Context, dsn string, wait time.Duration) (*pgparcel.Storage, error) {
	deadline := time.Now().Add(wait)
	var lastErr error
	for time.Now().Before(deadline) {
		st, err := pgparcel.New(ctx, dsn)
		if err == nil {
			return st, nil
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Second):
		}
	}
	return nil, errors.Wrapf(lastErr, "postgres is not ready after %s", wait)
}

// Deps is the assembled runtime. Redis and Producer are nil when the config
// leaves them out.
type Deps struct {
	Config       *config.Config
	Logger       *slog.Logger
	Store        storage.Store
	Gateway      carrier.Gateway
	Redis        *redis.Client
	Producer     Producer
	Sink         notify.Sink
	Pipeline     *tracking.Pipeline
	Synchronizer *tracking.Synchronizer
	Topics       config.KafkaTopics

	kafkaSink *notify.KafkaSink
}

func Build(ctx context.Context, cfg *config.Config, f Factories, logger *slog.Logger) (*Deps, error) {
	if logger == nil {
		logger = slog.Default()
	}

	st, err := f.NewStore(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "open store")
	}

	d := &Deps{
		Config:   cfg,
		Logger:   logger,
		Store:    st,
		Gateway:  f.NewGateway(cfg),
		Redis:    f.NewRedis(cfg),
		Producer: f.NewProducer(cfg),
		Topics:   topics(cfg.Kafka.Topics),
	}

	d.Sink = notify.Nop{}
	if d.Producer != nil {
		d.kafkaSink = notify.NewKafkaSink(d.Producer, notify.Topics{
			Audit:         d.Topics.Audit,
			Notifications: d.Topics.Notifications,
		}, logger)
		d.Sink = d.kafkaSink
	}

	d.Pipeline = tracking.NewPipeline(st, d.Sink, logger)
	d.Synchronizer = tracking.NewSynchronizer(st, d.Gateway, d.Pipeline, logger).
		WithConcurrency(cfg.ParcelHub.SyncConcurrency)

	if d.Redis != nil {
		ttl := time.Duration(cfg.ParcelHub.DetectCacheTTLSeconds) * time.Second
		if ttl <= 0 {
			ttl = defaultDetectCacheTTL
		}
		perMin := int64(cfg.ParcelHub.GatewayRateLimitPerMinute)
		if perMin <= 0 {
			perMin = defaultRateLimitPerMinute
		}
		d.Synchronizer.
			WithDetectCache(rediscache.New(d.Redis, "parcelhub:"), ttl).
			WithLimiter(rediscache.NewRateLimiter(d.Redis).Window("parcelhub:gateway", perMin, time.Minute))
	}

	return d, nil
}

func topics(t config.KafkaTopics) config.KafkaTopics {
	if t.SyncRequests == "" {
		t.SyncRequests = DefaultSyncRequestsTopic
	}
	if t.Audit == "" {
		t.Audit = DefaultAuditTopic
	}
	if t.Notifications == "" {
		t.Notifications = DefaultNotificationsTopic
	}
	return t
}

// Ready reports whether the optional Redis dependency answers.
func (d *Deps) Ready(ctx context.Context) error {
	if d.Redis == nil {
		return nil
	}
	return errors.Wrap(d.Redis.Ping(ctx).Err(), "redis ping")
}

func (d *Deps) Close() {
	if d.kafkaSink != nil {
		d.kafkaSink.Close()
	}
	if d.Producer != nil {
		_ = d.Producer.Close()
	}
	if d.Redis != nil {
		_ = d.Redis.Close()
	}
	if d.Store != nil {
		d.Store.Close()
	}
}
