// Package carrierhook ingests tracking updates pushed by the carrier gateway.
package carrierhook

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"strconv"
	"strings"

	"github.com/BearBump/ParcelHub/internal/errs"
	"github.com/BearBump/ParcelHub/internal/integrations/carrier"
	"github.com/BearBump/ParcelHub/internal/models"
	"github.com/BearBump/ParcelHub/internal/services/tracking"
	"github.com/pkg/errors"
)

const EventTrackingUpdated = "TRACKING_UPDATED"

type Payload struct {
	Event string `json:"event"`
	Data  Data   `json:"data"`
}

type Data struct {
	Accepted []carrier.TrackItem `json:"accepted"`
}

type Summary struct {
	Processed int `json:"processed"`
	Errors    int `json:"errors"`
}

type Repository interface {
	GetPackage(ctx context.Context, id uint64) (*models.Package, error)
	FindPackageByTrackingNumber(ctx context.Context, number string) (*models.Package, error)
}

type Applier interface {
	Apply(ctx context.Context, packageID uint64, info carrier.TrackingInfo) (tracking.ApplyResult, error)
}

type Ingestor struct {
	repo   Repository
	pipe   Applier
	secret []byte
	log    *slog.Logger
}

func New(repo Repository, pipe Applier, secret string, logger *slog.Logger) *Ingestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingestor{
		repo:   repo,
		pipe:   pipe,
		secret: []byte(secret),
		log:    logger.With("component", "carrier-webhook"),
	}
}

// Authorize compares the shared secret in constant time. An empty configured
// secret rejects everything.
func (i *Ingestor) Authorize(token string) error {
	if len(i.secret) == 0 || subtle.ConstantTimeCompare([]byte(token), i.secret) != 1 {
		return errs.ErrUnauthorized
	}
	return nil
}

// Ingest authorizes, then runs each accepted item through the tracking
// pipeline. Per-item failures are counted and never abort the rest.
func (i *Ingestor) Ingest(ctx context.Context, token string, p Payload) (Summary, error) {
	if err := i.Authorize(token); err != nil {
		return Summary{}, err
	}
	if p.Event != EventTrackingUpdated {
		i.log.Debug("event ignored", "event", p.Event)
		return Summary{}, nil
	}

	var sum Summary
	for _, item := range p.Data.Accepted {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		info := item.Info()
		if err := i.ingestOne(ctx, info); err != nil {
			sum.Errors++
			i.log.Warn("webhook item failed", "number", info.Number, "tag", info.Tag, "error", err.Error())
			continue
		}
		sum.Processed++
	}
	return sum, nil
}

func (i *Ingestor) ingestOne(ctx context.Context, info carrier.TrackingInfo) error {
	if info.Number == "" {
		return carrier.ErrInvalidNumber
	}
	pkg, err := i.resolve(ctx, info)
	if err != nil {
		return err
	}
	_, err = i.pipe.Apply(ctx, pkg.ID, info)
	return err
}

// resolve prefers the registration tag, checked against the number, then falls
// back to a lookup by tracking number.
func (i *Ingestor) resolve(ctx context.Context, info carrier.TrackingInfo) (*models.Package, error) {
	if id, err := strconv.ParseUint(strings.TrimSpace(info.Tag), 10, 64); err == nil && id > 0 {
		p, err := i.repo.GetPackage(ctx, id)
		switch {
		case err == nil && strings.EqualFold(p.TrackingNumber, info.Number):
			return p, nil
		case err != nil && !errors.Is(err, errs.ErrNotFound):
			return nil, err
		}
	}

	p, err := i.repo.FindPackageByTrackingNumber(ctx, info.Number)
	if errors.Is(err, errs.ErrNotFound) {
		return nil, errors.Wrapf(errs.ErrUnknownTrackingNumber, "%q", info.Number)
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}
