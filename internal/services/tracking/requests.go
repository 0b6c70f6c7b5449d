package tracking

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"github.com/BearBump/ParcelHub/internal/broker/messages"
	"github.com/BearBump/ParcelHub/internal/errs"
	"github.com/BearBump/ParcelHub/internal/integrations/carrier"
	"github.com/pkg/errors"
)

type Publisher interface {
	PublishJSON(ctx context.Context, topic, key string, v any) error
}

// SyncRequests publishes on-demand sync requests for the worker.
type SyncRequests struct {
	pub   Publisher
	topic string
}

func NewSyncRequests(pub Publisher, topic string) *SyncRequests {
	return &SyncRequests{pub: pub, topic: topic}
}

func (r *SyncRequests) RequestSync(ctx context.Context, packageID uint64, requestID string) error {
	return r.pub.PublishJSON(ctx, r.topic, strconv.FormatUint(packageID, 10), messages.SyncRequested{
		PackageID:   packageID,
		RequestID:   requestID,
		RequestedAt: time.Now().UTC(),
	})
}

// HandleSyncRequest is the worker-side consumer handler. Malformed messages,
// packages that cannot be tracked and errors reported by the gateway itself are
// logged and dropped. Transport and storage failures are returned so the
// message is not committed.
func (s *Synchronizer) HandleSyncRequest(ctx context.Context, _ []byte, value []byte) error {
	var m messages.SyncRequested
	if err := json.Unmarshal(value, &m); err != nil || m.PackageID == 0 {
		s.log.Warn("bad sync request dropped", "value", string(value))
		return nil
	}

	res, err := s.SyncTrackingEvents(ctx, m.PackageID)
	var gwErr *carrier.GatewayError
	switch {
	case errors.As(err, &gwErr):
		s.log.Warn("sync request rejected by gateway", "package_id", m.PackageID, "request_id", m.RequestID,
			"code", gwErr.Code, "message", gwErr.Message)
		return nil
	case errors.Is(err, errs.ErrNotFound), errors.Is(err, errs.ErrPackageNotRegistrable):
		s.log.Warn("sync request dropped", "package_id", m.PackageID, "request_id", m.RequestID, "error", err.Error())
		return nil
	case err != nil:
		return err
	}
	s.log.Info("sync request done", slog.Uint64("package_id", m.PackageID), slog.String("request_id", m.RequestID),
		slog.Int("events_inserted", res.EventsInserted), slog.Bool("status_changed", res.Transition != nil))
	return nil
}
