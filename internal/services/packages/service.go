package packages

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/BearBump/ParcelHub/internal/errs"
	"github.com/BearBump/ParcelHub/internal/lifecycle"
	"github.com/BearBump/ParcelHub/internal/models"
	"github.com/BearBump/ParcelHub/internal/notify"
	"github.com/BearBump/ParcelHub/internal/storage"
	"github.com/pkg/errors"
)

type Repository interface {
	storage.Transactor
	GetPackage(ctx context.Context, id uint64) (*models.Package, error)
	ListTrackingEvents(ctx context.Context, packageID uint64, limit, offset int) ([]*models.TrackingEvent, error)
}

type Service struct {
	repo Repository
	sink notify.Sink
	log  *slog.Logger
	now  func() time.Time
}

func New(repo Repository, sink notify.Sink, logger *slog.Logger) *Service {
	if sink == nil {
		sink = notify.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo: repo,
		sink: sink,
		log:  logger.With("component", "packages"),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) GetPackage(ctx context.Context, id uint64) (*models.Package, error) {
	return s.repo.GetPackage(ctx, id)
}

func (s *Service) ListTrackingEvents(ctx context.Context, packageID uint64, limit, offset int) ([]*models.TrackingEvent, error) {
	if _, err := s.repo.GetPackage(ctx, packageID); err != nil {
		return nil, err
	}
	return s.repo.ListTrackingEvents(ctx, packageID, limit, offset)
}

// ChangeStatus is the administrator override. It still goes through the
// state machine so stamps and audit behave like every other write path.
// Setting the current status again returns (nil, nil).
func (s *Service) ChangeStatus(ctx context.Context, packageID uint64, status string, reason string) (*lifecycle.Transition, error) {
	proposed := models.PackageStatus(strings.ToUpper(strings.TrimSpace(status)))
	if !proposed.Valid() {
		return nil, errors.Wrapf(errs.ErrInvalidStatus, "%q", status)
	}

	var tr *lifecycle.Transition
	var changed *models.Package
	err := s.repo.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		tr, changed = nil, nil

		p, err := tx.LockPackage(ctx, packageID)
		if err != nil {
			return err
		}
		t, ok := lifecycle.Apply(p, proposed, lifecycle.SourceAdmin, s.now())
		if !ok {
			return nil
		}
		if err := tx.SavePackage(ctx, p); err != nil {
			return err
		}
		tr, changed = &t, p
		return nil
	})
	if err != nil {
		return nil, err
	}

	if tr != nil {
		s.log.Info("package status overridden", "package_id", packageID, "from", tr.From, "to", tr.To, "reason", reason)
		s.sink.PackageTransitioned(ctx, changed, *tr)
	}
	return tr, nil
}
