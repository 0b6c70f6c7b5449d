// Package tracking keeps packages in step with the carrier-tracking network.
package tracking

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BearBump/ParcelHub/internal/cache"
	"github.com/BearBump/ParcelHub/internal/errs"
	"github.com/BearBump/ParcelHub/internal/integrations/carrier"
	"github.com/BearBump/ParcelHub/internal/models"
	"github.com/pkg/errors"
)

type Repository interface {
	GetPackage(ctx context.Context, id uint64) (*models.Package, error)
	ListActivePackages(ctx context.Context) ([]*models.Package, error)
	SetCarrierIfEmpty(ctx context.Context, packageID uint64, code, name string) (bool, error)
}

// Limiter throttles outbound gateway calls.
type Limiter interface {
	Acquire(ctx context.Context) error
}

type BatchSummary struct {
	Processed int `json:"processed"`
	Errors    int `json:"errors"`
}

type Synchronizer struct {
	repo Repository
	gw   carrier.Gateway
	pipe *Pipeline

	cache     cache.BytesCache
	detectTTL time.Duration
	limiter   Limiter

	concurrency int
	log         *slog.Logger

	inFlight atomic.Int64
}

func NewSynchronizer(repo Repository, gw carrier.Gateway, pipe *Pipeline, logger *slog.Logger) *Synchronizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Synchronizer{
		repo:        repo,
		gw:          gw,
		pipe:        pipe,
		concurrency: 8,
		log:         logger.With("component", "tracking-sync"),
	}
}

func (s *Synchronizer) WithConcurrency(n int) *Synchronizer {
	if n > 0 {
		s.concurrency = n
	}
	return s
}

func (s *Synchronizer) WithDetectCache(c cache.BytesCache, ttl time.Duration) *Synchronizer {
	s.cache = c
	s.detectTTL = ttl
	return s
}

func (s *Synchronizer) WithLimiter(l Limiter) *Synchronizer {
	s.limiter = l
	return s
}

func (s *Synchronizer) InFlight() int64 {
	return s.inFlight.Load()
}

func (s *Synchronizer) trackable(ctx context.Context, packageID uint64) (*models.Package, error) {
	p, err := s.repo.GetPackage(ctx, packageID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(p.TrackingNumber) == "" {
		return nil, errors.Wrapf(errs.ErrPackageNotRegistrable, "package %d", packageID)
	}
	return p, nil
}

func (s *Synchronizer) acquire(ctx context.Context) error {
	if s.limiter == nil {
		return nil
	}
	return errors.Wrap(s.limiter.Acquire(ctx), "gateway rate limit")
}

// RegisterPackageTracking subscribes the package's number at the gateway,
// tagged with the package id so pushed updates resolve without a lookup.
func (s *Synchronizer) RegisterPackageTracking(ctx context.Context, packageID uint64) (carrier.RegisterResult, error) {
	p, err := s.trackable(ctx, packageID)
	if err != nil {
		return carrier.RegisterResult{}, err
	}
	if err := s.acquire(ctx); err != nil {
		return carrier.RegisterResult{}, err
	}

	res, err := s.gw.Register(ctx, []carrier.RegisterItem{{
		Number:  p.TrackingNumber,
		Carrier: p.CarrierCode,
		Tag:     strconv.FormatUint(p.ID, 10),
	}})
	if err != nil {
		return carrier.RegisterResult{}, errors.Wrap(err, "register tracking")
	}
	for _, r := range res.Rejected {
		s.log.Warn("tracking registration rejected",
			"package_id", packageID, "number", r.Number, "code", r.Code, "message", r.Message)
	}
	return res, nil
}

// SyncTrackingEvents pulls the current info for one package. Zero results from
// the gateway is a no-op.
func (s *Synchronizer) SyncTrackingEvents(ctx context.Context, packageID uint64) (ApplyResult, error) {
	p, err := s.trackable(ctx, packageID)
	if err != nil {
		return ApplyResult{PackageID: packageID}, err
	}
	if err := s.acquire(ctx); err != nil {
		return ApplyResult{PackageID: packageID}, err
	}

	infos, err := s.gw.GetInfo(ctx, []string{p.TrackingNumber})
	if err != nil {
		return ApplyResult{PackageID: packageID}, errors.Wrap(err, "get tracking info")
	}
	info, ok := pick(infos, p.TrackingNumber)
	if !ok {
		if len(infos) > 0 {
			s.log.Warn("gateway answered for another number, ignored",
				"package_id", packageID, "number", p.TrackingNumber, "got", infos[0].Number)
		} else {
			s.log.Debug("gateway returned nothing", "package_id", packageID, "number", p.TrackingNumber)
		}
		return ApplyResult{PackageID: packageID}, nil
	}
	return s.pipe.Apply(ctx, packageID, info)
}

// pick matches on the number only, so one package never receives another's checkpoints.
func pick(infos []carrier.TrackingInfo, number string) (carrier.TrackingInfo, bool) {
	number = strings.TrimSpace(number)
	for _, in := range infos {
		if strings.EqualFold(strings.TrimSpace(in.Number), number) {
			return in, true
		}
	}
	return carrier.TrackingInfo{}, false
}

// DetectAndSetCarrier fills the carrier from the gateway's first candidate.
// A package that already has a carrier costs no gateway call.
func (s *Synchronizer) DetectAndSetCarrier(ctx context.Context, packageID uint64) (string, error) {
	p, err := s.trackable(ctx, packageID)
	if err != nil {
		return "", err
	}
	if p.CarrierCode != "" {
		return p.CarrierCode, nil
	}

	candidates, err := s.detect(ctx, p.TrackingNumber)
	if err != nil {
		return "", err
	}
	if len(candidates) == 0 {
		s.log.Info("no carrier candidates", "package_id", packageID, "number", p.TrackingNumber)
		return "", nil
	}

	code := candidates[0]
	set, err := s.repo.SetCarrierIfEmpty(ctx, packageID, code, carrier.CarrierName(code))
	if err != nil {
		return "", err
	}
	if !set {
		// кто-то успел раньше, возвращаем сохранённое
		cur, err := s.repo.GetPackage(ctx, packageID)
		if err != nil {
			return "", err
		}
		return cur.CarrierCode, nil
	}
	return code, nil
}

func (s *Synchronizer) detect(ctx context.Context, number string) ([]string, error) {
	key := detectKey(number)
	if s.cache != nil && s.detectTTL > 0 {
		if b, ok, err := s.cache.Get(ctx, key); err == nil && ok {
			var out []string
			if json.Unmarshal(b, &out) == nil {
				return out, nil
			}
		}
	}

	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	out, err := s.gw.DetectCarrier(ctx, number)
	if err != nil {
		return nil, errors.Wrap(err, "detect carrier")
	}

	if s.cache != nil && s.detectTTL > 0 && len(out) > 0 {
		b, _ := json.Marshal(out)
		_ = s.cache.Set(ctx, key, b, s.detectTTL)
	}
	return out, nil
}

func detectKey(number string) string {
	return "carrier:detect:" + strings.ToUpper(strings.TrimSpace(number))
}

// UnregisterPackageTracking stops gateway tracking for the package's number.
func (s *Synchronizer) UnregisterPackageTracking(ctx context.Context, packageID uint64) error {
	p, err := s.trackable(ctx, packageID)
	if err != nil {
		return err
	}
	if err := s.acquire(ctx); err != nil {
		return err
	}
	return errors.Wrap(s.gw.DeleteTracking(ctx, []string{p.TrackingNumber}), "delete tracking")
}

// SyncAllActivePackages syncs every package with a tracking number and a
// non-terminal status. One package failing never stops the others. When ctx
// ends the partial summary is returned together with ctx.Err().
func (s *Synchronizer) SyncAllActivePackages(ctx context.Context) (BatchSummary, error) {
	pkgs, err := s.repo.ListActivePackages(ctx)
	if err != nil {
		return BatchSummary{}, errors.Wrap(err, "list active packages")
	}

	var processed, failed atomic.Int64
	sem := make(chan struct{}, s.concurrency)
	var wg sync.WaitGroup

loop:
	for _, p := range pkgs {
		if ctx.Err() != nil {
			break
		}
		select {
		case <-ctx.Done():
			break loop
		case sem <- struct{}{}:
		}

		wg.Add(1)
		s.inFlight.Add(1)
		go func(id uint64) {
			defer func() {
				if r := recover(); r != nil {
					failed.Add(1)
					s.log.Error("sync package panicked", "package_id", id, "panic", fmt.Sprint(r))
				}
				s.inFlight.Add(-1)
				<-sem
				wg.Done()
			}()
			if _, err := s.SyncTrackingEvents(ctx, id); err != nil {
				failed.Add(1)
				s.log.Error("sync package", "package_id", id, "error", err.Error())
				return
			}
			processed.Add(1)
		}(p.ID)
	}
	wg.Wait()

	sum := BatchSummary{Processed: int(processed.Load()), Errors: int(failed.Load())}
	s.log.Info("batch sync finished", "total", len(pkgs), "processed", sum.Processed, "errors", sum.Errors)
	if err := ctx.Err(); err != nil {
		return sum, err
	}
	return sum, nil
}
