package tracking

import (
	"context"
	"log/slog"
	"time"

	"github.com/BearBump/ParcelHub/internal/integrations/carrier"
	"github.com/BearBump/ParcelHub/internal/lifecycle"
	"github.com/BearBump/ParcelHub/internal/models"
	"github.com/BearBump/ParcelHub/internal/notify"
	"github.com/BearBump/ParcelHub/internal/storage"
)

const eventTypeCheckpoint = "checkpoint"

// ApplyResult reports what one carrier observation changed.
type ApplyResult struct {
	PackageID      uint64
	CarrierSet     bool
	Transition     *lifecycle.Transition
	EventsInserted int
	EventsSkipped  int
}

// Pipeline is the single place where a carrier observation becomes writes.
// Polling and webhooks both end here.
type Pipeline struct {
	tx   storage.Transactor
	sink notify.Sink
	log  *slog.Logger
	now  func() time.Time
}

func NewPipeline(tx storage.Transactor, sink notify.Sink, logger *slog.Logger) *Pipeline {
	if sink == nil {
		sink = notify.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		tx:   tx,
		sink: sink,
		log:  logger.With("component", "tracking-pipeline"),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Apply locks the package, fills the carrier if unset, proposes the mapped
// status with source carrier and inserts events not seen before.
func (p *Pipeline) Apply(ctx context.Context, packageID uint64, info carrier.TrackingInfo) (ApplyResult, error) {
	res := ApplyResult{PackageID: packageID}
	var changed *models.Package

	err := p.tx.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		res = ApplyResult{PackageID: packageID}
		changed = nil

		pkg, err := tx.LockPackage(ctx, packageID)
		if err != nil {
			return err
		}

		dirty := false
		if pkg.CarrierCode == "" && info.CarrierCode != "" {
			pkg.CarrierCode = info.CarrierCode
			pkg.CarrierName = info.CarrierName
			if pkg.CarrierName == "" {
				pkg.CarrierName = carrier.CarrierName(info.CarrierCode)
			}
			res.CarrierSet = true
			dirty = true
		}

		if proposed, ok := lifecycle.MapVendorStatus(info.StatusCode).PackageStatus(); ok {
			if tr, ok := lifecycle.Apply(pkg, proposed, lifecycle.SourceCarrier, p.now()); ok {
				res.Transition = &tr
				changed = pkg.Clone()
				dirty = true
			}
		}

		if dirty {
			if err := tx.SavePackage(ctx, pkg); err != nil {
				return err
			}
		}

		events := make([]*models.TrackingEvent, 0, len(info.Events))
		for _, e := range info.Events {
			if e.Time.IsZero() {
				res.EventsSkipped++
				continue
			}
			events = append(events, toEvent(packageID, e))
		}
		if len(events) > 0 {
			n, err := tx.InsertTrackingEvents(ctx, events)
			if err != nil {
				return err
			}
			res.EventsInserted = n
		}
		return nil
	})
	if err != nil {
		return ApplyResult{PackageID: packageID}, err
	}

	if res.EventsSkipped > 0 {
		p.log.Warn("events without parseable time skipped", "package_id", packageID, "count", res.EventsSkipped)
	}
	if res.Transition != nil {
		p.log.Info("package status changed",
			"package_id", packageID, "from", res.Transition.From, "to", res.Transition.To, "source", res.Transition.Source)
		p.sink.PackageTransitioned(ctx, changed, *res.Transition)
	}
	return res, nil
}

func toEvent(packageID uint64, e carrier.RawEvent) *models.TrackingEvent {
	ev := &models.TrackingEvent{
		PackageID:   packageID,
		EventType:   e.Code,
		Description: e.Description,
		Timestamp:   e.Time.UTC(),
	}
	if ev.EventType == "" {
		ev.EventType = eventTypeCheckpoint
	}
	if e.Location != "" {
		loc := e.Location
		ev.Location = &loc
	}
	if len(e.Raw) > 0 {
		raw := string(e.Raw)
		ev.PayloadJSON = &raw
	}
	return ev
}
