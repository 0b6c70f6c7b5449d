// Package jobs holds the scheduled background work of the worker.
package jobs

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BearBump/ParcelHub/internal/services/tracking"
	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
)

const (
	DefaultSchedule = "*/15 * * * *"
	DefaultLockTTL  = 10 * time.Minute

	lockKey = "parcelhub:lock:sync-active"
)

// ErrLockHeld means another replica is running the batch right now.
var ErrLockHeld = errors.New("batch sync is running elsewhere")

type BatchSyncer interface {
	SyncAllActivePackages(ctx context.Context) (tracking.BatchSummary, error)
	InFlight() int64
}

type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error)
}

// SyncActiveJob runs SyncAllActivePackages on a cron schedule and on manual
// triggers. Runs never overlap within one process.
type SyncActiveJob struct {
	syncer   BatchSyncer
	locker   Locker
	lockTTL  time.Duration
	schedule string
	cron     *cron.Cron
	logger   *slog.Logger

	triggerCh chan struct{}
	runMu     sync.Mutex

	startedAtUnixNano   int64
	lastRunUnixNano     atomic.Int64
	lastTriggerUnixNano atomic.Int64
	runs                atomic.Int64
	skipped             atomic.Int64
	totalProcessed      atomic.Int64
	totalErrors         atomic.Int64
	lastErrorMu         sync.Mutex
	lastError           string
}

func NewSyncActiveJob(syncer BatchSyncer, logger *slog.Logger) *SyncActiveJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &SyncActiveJob{
		syncer:            syncer,
		lockTTL:           DefaultLockTTL,
		schedule:          DefaultSchedule,
		cron:              cron.New(),
		logger:            logger.With("component", "sync_active_job"),
		triggerCh:         make(chan struct{}, 1),
		startedAtUnixNano: time.Now().UTC().UnixNano(),
	}
}

func (j *SyncActiveJob) WithSchedule(spec string) *SyncActiveJob {
	if spec != "" {
		j.schedule = spec
	}
	return j
}

// WithLocker guards each run with a cluster-wide lock held for at most ttl.
func (j *SyncActiveJob) WithLocker(l Locker, ttl time.Duration) *SyncActiveJob {
	j.locker = l
	if ttl > 0 {
		j.lockTTL = ttl
	}
	return j
}

// Trigger requests an immediate run (best-effort, non-blocking).
func (j *SyncActiveJob) Trigger() {
	j.lastTriggerUnixNano.Store(time.Now().UTC().UnixNano())
	select {
	case j.triggerCh <- struct{}{}:
	default:
	}
}

// Run schedules the job and serves triggers until ctx ends.
func (j *SyncActiveJob) Run(ctx context.Context) error {
	if _, err := j.cron.AddFunc(j.schedule, j.Trigger); err != nil {
		return errors.Wrapf(err, "bad sync schedule %q", j.schedule)
	}
	j.cron.Start()
	j.logger.InfoContext(ctx, "sync job started", "schedule", j.schedule)
	defer func() {
		<-j.cron.Stop().Done()
		j.logger.Info("sync job stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-j.triggerCh:
			if _, err := j.RunOnce(ctx); err != nil && !errors.Is(err, ErrLockHeld) && ctx.Err() == nil {
				j.logger.ErrorContext(ctx, "batch sync failed", "error", err.Error())
			}
		}
	}
}

// RunOnce performs one guarded batch sync.
func (j *SyncActiveJob) RunOnce(ctx context.Context) (tracking.BatchSummary, error) {
	j.runMu.Lock()
	defer j.runMu.Unlock()

	if j.locker != nil {
		release, err := j.locker.TryLock(ctx, lockKey, j.lockTTL)
		if err != nil {
			j.setLastError(err)
			return tracking.BatchSummary{}, err
		}
		if release == nil {
			j.skipped.Add(1)
			j.logger.InfoContext(ctx, "batch sync skipped, lock held")
			return tracking.BatchSummary{}, ErrLockHeld
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				j.logger.Warn("release sync lock", "error", err.Error())
			}
		}()
	}

	j.lastRunUnixNano.Store(time.Now().UTC().UnixNano())
	j.runs.Add(1)

	sum, err := j.syncer.SyncAllActivePackages(ctx)
	j.totalProcessed.Add(int64(sum.Processed))
	j.totalErrors.Add(int64(sum.Errors))
	if err != nil {
		j.setLastError(err)
	}
	return sum, err
}

func (j *SyncActiveJob) setLastError(err error) {
	j.lastErrorMu.Lock()
	j.lastError = err.Error()
	j.lastErrorMu.Unlock()
}

type Stats struct {
	Schedule       string     `json:"schedule"`
	StartedAt      time.Time  `json:"startedAt"`
	LastRunAt      *time.Time `json:"lastRunAt,omitempty"`
	LastTriggerAt  *time.Time `json:"lastTriggerAt,omitempty"`
	NextRunAt      *time.Time `json:"nextRunAt,omitempty"`
	Runs           int64      `json:"runs"`
	Skipped        int64      `json:"skipped"`
	TotalProcessed int64      `json:"totalProcessed"`
	TotalErrors    int64      `json:"totalErrors"`
	InFlight       int64      `json:"inFlight"`
	LastError      string     `json:"lastError,omitempty"`
}

func (j *SyncActiveJob) Stats() Stats {
	st := Stats{
		Schedule:       j.schedule,
		StartedAt:      time.Unix(0, j.startedAtUnixNano).UTC(),
		Runs:           j.runs.Load(),
		Skipped:        j.skipped.Load(),
		TotalProcessed: j.totalProcessed.Load(),
		TotalErrors:    j.totalErrors.Load(),
		InFlight:       j.syncer.InFlight(),
	}
	if n := j.lastRunUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastRunAt = &t
	}
	if n := j.lastTriggerUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastTriggerAt = &t
	}
	if entries := j.cron.Entries(); len(entries) > 0 && !entries[0].Next.IsZero() {
		t := entries[0].Next.UTC()
		st.NextRunAt = &t
	}
	j.lastErrorMu.Lock()
	st.LastError = j.lastError
	j.lastErrorMu.Unlock()
	return st
}
