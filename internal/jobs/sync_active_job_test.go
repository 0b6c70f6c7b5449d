package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/BearBump/ParcelHub/internal/cache/rediscache"
	"github.com/BearBump/ParcelHub/internal/services/tracking"
	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

type stubSyncer struct {
	calls atomic.Int64
	sum   tracking.BatchSummary
	err   error
}

func (s *stubSyncer) SyncAllActivePackages(ctx context.Context) (tracking.BatchSummary, error) {
	s.calls.Add(1)
	return s.sum, s.err
}

func (s *stubSyncer) InFlight() int64 { return 0 }

func TestRunOnce_AccumulatesStats(t *testing.T) {
	s := &stubSyncer{sum: tracking.BatchSummary{Processed: 3, Errors: 1}}
	j := NewSyncActiveJob(s, nil)

	sum, err := j.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, sum.Processed)

	st := j.Stats()
	require.EqualValues(t, 1, st.Runs)
	require.EqualValues(t, 3, st.TotalProcessed)
	require.EqualValues(t, 1, st.TotalErrors)
	require.NotNil(t, st.LastRunAt)
	require.Empty(t, st.LastError)
}

func TestRunOnce_RecordsError(t *testing.T) {
	s := &stubSyncer{err: errors.New("db down")}
	j := NewSyncActiveJob(s, nil)

	_, err := j.RunOnce(context.Background())
	require.Error(t, err)
	require.Equal(t, "db down", j.Stats().LastError)
}

func TestRunOnce_SkipsWhenLockHeld(t *testing.T) {
	mr := miniredis.RunT(t)
	rc := rediscache.NewClient(mr.Addr())
	defer rc.Close()
	locker := rediscache.NewLocker(rc)

	s := &stubSyncer{}
	j := NewSyncActiveJob(s, nil).WithLocker(locker, time.Minute)

	release, err := locker.TryLock(context.Background(), lockKey, time.Minute)
	require.NoError(t, err)
	require.NotNil(t, release)

	_, err = j.RunOnce(context.Background())
	require.ErrorIs(t, err, ErrLockHeld)
	require.Zero(t, s.calls.Load())
	require.EqualValues(t, 1, j.Stats().Skipped)

	require.NoError(t, release(context.Background()))
	_, err = j.RunOnce(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 1, s.calls.Load())
	require.False(t, mr.Exists(lockKey))
}

func TestRun_TriggerAndStop(t *testing.T) {
	s := &stubSyncer{sum: tracking.BatchSummary{Processed: 1}}
	j := NewSyncActiveJob(s, nil).WithSchedule("@every 1h")

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- j.Run(ctx) }()

	j.Trigger()
	require.Eventually(t, func() bool { return s.calls.Load() == 1 }, 2*time.Second, 10*time.Millisecond)

	st := j.Stats()
	require.NotNil(t, st.LastTriggerAt)
	require.NotNil(t, st.NextRunAt)
	require.Equal(t, "@every 1h", st.Schedule)

	cancel()
	select {
	case err := <-errCh:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("job did not stop")
	}
}

func TestRun_BadSchedule(t *testing.T) {
	j := NewSyncActiveJob(&stubSyncer{}, nil).WithSchedule("not a cron")
	require.Error(t, j.Run(context.Background()))
}
