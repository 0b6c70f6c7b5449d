package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/BearBump/ParcelHub/config"
	"github.com/BearBump/ParcelHub/internal/app"
	"github.com/BearBump/ParcelHub/internal/broker/kafka"
	"github.com/BearBump/ParcelHub/internal/cache/rediscache"
	"github.com/BearBump/ParcelHub/internal/jobs"
	"github.com/redis/go-redis/v9"
)

type syncConsumer interface {
	Consume(ctx context.Context, handler kafka.Handler) error
	Close() error
}

type workerFactories struct {
	app         app.Factories
	newConsumer func(cfg *config.Config, topic, group string) syncConsumer
	newLocker   func(rc *redis.Client) jobs.Locker
}

func defaultWorkerFactories() workerFactories {
	return workerFactories{
		app: app.DefaultFactories(),
		newConsumer: func(cfg *config.Config, topic, group string) syncConsumer {
			brokers := cfg.Kafka.Brokers()
			if len(brokers) == 0 {
				return nil
			}
			return kafka.NewConsumer(brokers, topic, group).WithRetry(3, 500*time.Millisecond)
		},
		newLocker: func(rc *redis.Client) jobs.Locker {
			return rediscache.NewLocker(rc)
		},
	}
}

type workerOpts struct {
	httpAddr    string
	grpcAddr    string
	swaggerPath string

	onListen func(httpAddr, grpcAddr string)
}

func RunParcelWorker(ctx context.Context, cfg *config.Config, opts workerOpts, f workerFactories) error {
	logger := slog.Default().With("service", "parcel-worker")

	d, err := app.Build(ctx, cfg, f.app, logger)
	if err != nil {
		return err
	}
	defer d.Close()

	job := jobs.NewSyncActiveJob(d.Synchronizer, logger).WithSchedule(cfg.ParcelHub.SyncSchedule)
	if d.Redis != nil {
		job.WithLocker(f.newLocker(d.Redis), time.Duration(cfg.ParcelHub.SyncLockTTLSeconds)*time.Second)
	}

	group := cfg.ParcelHub.KafkaConsumerGroup
	if group == "" {
		group = "parcel-worker"
	}
	if c := f.newConsumer(cfg, d.Topics.SyncRequests, group); c != nil {
		defer func() { _ = c.Close() }()
		go consumeLoop(ctx, c, d.Synchronizer.HandleSyncRequest, logger)
		logger.Info("kafka consumer started", "topic", d.Topics.SyncRequests, "group", group)
	}

	errCh := make(chan error, 3)
	go func() { errCh <- job.Run(ctx) }()
	go func() {
		errCh <- runWorkerHTTPServer(ctx, workerHTTPOpts{
			httpAddr:    opts.httpAddr,
			swaggerPath: opts.swaggerPath,
			job:         job,
			ready:       d.Ready,
			onListen: func(addr string) {
				if opts.onListen != nil {
					opts.onListen(addr, "")
				}
			},
		})
	}()
	go func() {
		errCh <- runHealthServer(ctx, opts.grpcAddr, func(addr string) {
			if opts.onListen != nil {
				opts.onListen("", addr)
			}
		})
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

var (
	consumeBackoffMin = time.Second
	consumeBackoffMax = 30 * time.Second
)

// consumeLoop restarts the consumer after handler or broker errors. The
// failed message stays uncommitted and is fetched again.
func consumeLoop(ctx context.Context, c syncConsumer, handler kafka.Handler, logger *slog.Logger) {
	backoff := consumeBackoffMin
	for {
		err := c.Consume(ctx, handler)
		if ctx.Err() != nil {
			return
		}
		logger.Error("sync request consumer stopped, restarting", "error", errString(err), "backoff", backoff.String())
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > consumeBackoffMax {
			backoff = consumeBackoffMax
		}
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
