package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/BearBump/ParcelHub/config"
	"github.com/BearBump/ParcelHub/internal/app"
	"github.com/BearBump/ParcelHub/internal/broker/kafka"
	"github.com/BearBump/ParcelHub/internal/broker/messages"
	"github.com/BearBump/ParcelHub/internal/jobs"
	"github.com/BearBump/ParcelHub/internal/models"
	"github.com/BearBump/ParcelHub/internal/storage"
	"github.com/BearBump/ParcelHub/internal/storage/memstore"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// onceConsumer delivers its messages once, then blocks until ctx ends.
type onceConsumer struct {
	msgs   [][]byte
	once   sync.Once
	closed atomic.Bool
}

func (c *onceConsumer) Consume(ctx context.Context, handler kafka.Handler) error {
	var err error
	c.once.Do(func() {
		for _, m := range c.msgs {
			if err = handler(ctx, nil, m); err != nil {
				return
			}
		}
	})
	if err != nil {
		return err
	}
	<-ctx.Done()
	return ctx.Err()
}

func (c *onceConsumer) Close() error {
	c.closed.Store(true)
	return nil
}

func TestRunParcelWorker_ServesAndConsumes(t *testing.T) {
	st := memstore.New()
	p := st.AddPackage(models.Package{TrackingNumber: "RR123456785RU"})
	msg, err := json.Marshal(messages.SyncRequested{PackageID: p.ID, RequestID: "r1", RequestedAt: time.Now().UTC()})
	require.NoError(t, err)
	cons := &onceConsumer{msgs: [][]byte{msg}}

	f := defaultWorkerFactories()
	f.app.NewStore = func(ctx context.Context, cfg *config.Config) (storage.Store, error) { return st, nil }
	f.newConsumer = func(cfg *config.Config, topic, group string) syncConsumer {
		require.Equal(t, app.DefaultSyncRequestsTopic, topic)
		require.Equal(t, "parcel-worker", group)
		return cons
	}

	httpCh := make(chan string, 1)
	grpcCh := make(chan string, 1)
	opts := workerOpts{
		httpAddr: "127.0.0.1:0",
		grpcAddr: "127.0.0.1:0",
		onListen: func(httpAddr, grpcAddr string) {
			if httpAddr != "" {
				httpCh <- httpAddr
			}
			if grpcAddr != "" {
				grpcCh <- grpcAddr
			}
		},
	}
	cfg := &config.Config{ParcelHub: config.ParcelHubConfig{SyncSchedule: "@every 1h"}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- RunParcelWorker(ctx, cfg, opts, f) }()

	httpAddr := <-httpCh
	grpcAddr := <-grpcCh

	// sync request from the broker lands in the store
	require.Eventually(t, func() bool {
		evs, err := st.ListTrackingEvents(context.Background(), p.ID, 10, 0)
		return err == nil && len(evs) > 0
	}, 2*time.Second, 10*time.Millisecond)

	resp, err := http.Post("http://"+httpAddr+"/trigger", "application/json", nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + httpAddr + "/stats")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		var st jobs.Stats
		if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
			return false
		}
		return st.Runs == 1 && st.TotalProcessed == 1
	}, 2*time.Second, 20*time.Millisecond)

	conn, err := grpc.NewClient(grpcAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()
	hc, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, hc.GetStatus())

	cancel()
	select {
	case err := <-errCh:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting worker to stop")
	}
	require.True(t, cons.closed.Load())
}

func TestRunParcelWorker_StoreError(t *testing.T) {
	f := defaultWorkerFactories()
	f.app.NewStore = func(ctx context.Context, cfg *config.Config) (storage.Store, error) {
		return nil, errors.New("boom")
	}
	err := RunParcelWorker(context.Background(), &config.Config{}, workerOpts{}, f)
	require.Error(t, err)
}

type flakyConsumer struct {
	calls atomic.Int64
}

func (c *flakyConsumer) Consume(ctx context.Context, _ kafka.Handler) error {
	if c.calls.Add(1) < 3 {
		return errors.New("broker gone")
	}
	<-ctx.Done()
	return ctx.Err()
}

func (c *flakyConsumer) Close() error { return nil }

func TestConsumeLoop_Restarts(t *testing.T) {
	consumeBackoffMin, consumeBackoffMax = time.Millisecond, 2*time.Millisecond
	t.Cleanup(func() { consumeBackoffMin, consumeBackoffMax = time.Second, 30*time.Second })

	c := &flakyConsumer{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		consumeLoop(ctx, c, nil, testLogger())
		close(done)
	}()

	require.Eventually(t, func() bool { return c.calls.Load() == 3 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("consume loop did not stop")
	}
}

func TestDefaultWorkerFactories_NoBroker(t *testing.T) {
	f := defaultWorkerFactories()
	require.Nil(t, f.newConsumer(&config.Config{}, "t", "g"))
	require.NotNil(t, f.newConsumer(&config.Config{Kafka: config.KafkaConfig{Host: "localhost", Port: 9092}}, "t", "g"))
}
