// Package storage declares the persistence ports shared by the services.
//
// Reads outside a transaction are plain lookups. Anything that moves a status
// runs inside Transactor.InTx, where Lock* methods take a row lock (or the
// adapter's equivalent) so the read-transition-write sequence is serialized
// per entity.
package storage

import (
	"context"

	"github.com/BearBump/ParcelHub/internal/models"
)

// Tx is a business transaction. Implementations must roll back when fn returns an error.
type Tx interface {
	LockPackage(ctx context.Context, id uint64) (*models.Package, error)
	LockPackagesByQuote(ctx context.Context, quoteID uint64) ([]*models.Package, error)
	SavePackage(ctx context.Context, p *models.Package) error

	// InsertTrackingEvents inserts events whose dedup key is absent and
	// returns how many rows were actually written.
	InsertTrackingEvents(ctx context.Context, events []*models.TrackingEvent) (int, error)

	LockQuote(ctx context.Context, id uint64) (*models.Quote, error)
	SaveQuoteStatus(ctx context.Context, id uint64, status models.QuoteStatus) error

	LockPaymentByGatewayID(ctx context.Context, gatewayPaymentID string) (*models.Payment, error)
	SavePaymentStatus(ctx context.Context, id uint64, status models.PaymentStatus) error
}

type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

type PackageReader interface {
	GetPackage(ctx context.Context, id uint64) (*models.Package, error)
	FindPackageByTrackingNumber(ctx context.Context, number string) (*models.Package, error)
	ListActivePackages(ctx context.Context) ([]*models.Package, error)
}

// CarrierWriter persists detected carrier data only while the package has none.
type CarrierWriter interface {
	SetCarrierIfEmpty(ctx context.Context, packageID uint64, code, name string) (bool, error)
}

type EventReader interface {
	ListTrackingEvents(ctx context.Context, packageID uint64, limit, offset int) ([]*models.TrackingEvent, error)
}

// Store is the full port implemented by every adapter.
type Store interface {
	Transactor
	PackageReader
	CarrierWriter
	EventReader
	Close()
}
