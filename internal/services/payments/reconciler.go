// Package payments reconciles payment gateway outcomes with payments, quotes
// and the packages attached to a quote.
package payments

import (
	"context"
	"log/slog"
	"time"

	"github.com/BearBump/ParcelHub/internal/errs"
	"github.com/BearBump/ParcelHub/internal/lifecycle"
	"github.com/BearBump/ParcelHub/internal/models"
	"github.com/BearBump/ParcelHub/internal/notify"
	"github.com/BearBump/ParcelHub/internal/storage"
	"github.com/pkg/errors"
)

// Gateway event types.
const (
	EventSucceeded  = "payment_intent.succeeded"
	EventFailed     = "payment_intent.payment_failed"
	EventProcessing = "payment_intent.processing"
	EventRefunded   = "charge.refunded"
)

// Event is a gateway notification after signature verification.
type Event struct {
	ID               string
	Type             string
	GatewayPaymentID string
	Verified         bool
}

// Outcome describes what a reconciliation changed. Applied is false for
// replays, ignored types and events that would move a terminal payment.
type Outcome struct {
	Applied   bool                   `json:"applied"`
	PaymentID uint64                 `json:"paymentId,omitempty"`
	From      models.PaymentStatus   `json:"from,omitempty"`
	To        models.PaymentStatus   `json:"to,omitempty"`
	Packages  []lifecycle.Transition `json:"-"`
}

type Reconciler struct {
	tx   storage.Transactor
	sink notify.Sink
	log  *slog.Logger
	now  func() time.Time
}

func New(tx storage.Transactor, sink notify.Sink, logger *slog.Logger) *Reconciler {
	if sink == nil {
		sink = notify.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		tx:   tx,
		sink: sink,
		log:  logger.With("component", "payments"),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// cascade is what a payment status change does to its quote and packages.
type cascade struct {
	quote   models.QuoteStatus
	pkg     models.PackageStatus
	enabled bool
}

func plan(eventType string, current models.PaymentStatus) (models.PaymentStatus, cascade, bool) {
	switch eventType {
	case EventSucceeded:
		if current == models.PaymentStatusSucceeded || current == models.PaymentStatusRefunded {
			return current, cascade{}, false
		}
		return models.PaymentStatusSucceeded, cascade{quote: models.QuoteStatusPaid, pkg: models.PackageStatusPaid, enabled: true}, true

	case EventFailed:
		switch current {
		case models.PaymentStatusFailed, models.PaymentStatusSucceeded, models.PaymentStatusRefunded:
			return current, cascade{}, false
		}
		return models.PaymentStatusFailed, cascade{}, true

	case EventRefunded:
		if current == models.PaymentStatusRefunded {
			return current, cascade{}, false
		}
		return models.PaymentStatusRefunded, cascade{quote: models.QuoteStatusCancelled, pkg: models.PackageStatusStored, enabled: true}, true

	case EventProcessing:
		if current != models.PaymentStatusPending {
			return current, cascade{}, false
		}
		return models.PaymentStatusProcessing, cascade{}, true
	}
	return current, cascade{}, false
}

func known(eventType string) bool {
	switch eventType {
	case EventSucceeded, EventFailed, EventRefunded, EventProcessing:
		return true
	}
	return false
}

// Reconcile applies one verified gateway event. Payment, quote and package
// writes commit together or not at all.
func (r *Reconciler) Reconcile(ctx context.Context, ev Event) (Outcome, error) {
	if !ev.Verified {
		return Outcome{}, errs.ErrUnverifiedEvent
	}
	if !known(ev.Type) {
		r.log.Debug("payment event ignored", "event_id", ev.ID, "type", ev.Type)
		return Outcome{}, nil
	}

	var out Outcome
	var pay models.Payment
	var changed []*models.Package

	err := r.tx.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		out = Outcome{}
		changed = nil

		p, err := tx.LockPaymentByGatewayID(ctx, ev.GatewayPaymentID)
		if err != nil {
			return err
		}
		pay = *p
		out.PaymentID = p.ID
		out.From = p.Status

		next, c, ok := plan(ev.Type, p.Status)
		out.To = next
		if !ok {
			return nil
		}
		if err := tx.SavePaymentStatus(ctx, p.ID, next); err != nil {
			return err
		}
		out.Applied = true
		if !c.enabled {
			return nil
		}

		q, err := tx.LockQuote(ctx, p.QuoteID)
		if err != nil {
			return errors.Wrapf(err, "quote of payment %d", p.ID)
		}
		if q.Status != c.quote {
			if err := tx.SaveQuoteStatus(ctx, q.ID, c.quote); err != nil {
				return err
			}
		}

		out.Packages, changed, err = r.movePackages(ctx, tx, q.ID, c.pkg)
		return err
	})
	if err != nil {
		return Outcome{}, err
	}

	if out.Applied {
		r.log.Info("payment status changed",
			"event_id", ev.ID, "payment_id", out.PaymentID, "from", out.From, "to", out.To, "packages", len(out.Packages))
		r.sink.PaymentTransitioned(ctx, &pay, out.From, out.To, lifecycle.SourcePayment)
		r.notifyPackages(ctx, changed, out.Packages)
	} else {
		r.log.Info("payment event was a no-op", "event_id", ev.ID, "type", ev.Type, "payment_id", out.PaymentID, "status", out.From)
	}
	return out, nil
}

func (r *Reconciler) movePackages(ctx context.Context, tx storage.Tx, quoteID uint64, to models.PackageStatus) ([]lifecycle.Transition, []*models.Package, error) {
	pkgs, err := tx.LockPackagesByQuote(ctx, quoteID)
	if err != nil {
		return nil, nil, err
	}
	now := r.now()
	var trs []lifecycle.Transition
	var changed []*models.Package
	for _, pkg := range pkgs {
		tr, ok := lifecycle.Apply(pkg, to, lifecycle.SourcePayment, now)
		if !ok {
			continue
		}
		if err := tx.SavePackage(ctx, pkg); err != nil {
			return nil, nil, err
		}
		trs = append(trs, tr)
		changed = append(changed, pkg)
	}
	return trs, changed, nil
}

func (r *Reconciler) notifyPackages(ctx context.Context, pkgs []*models.Package, trs []lifecycle.Transition) {
	for i := range trs {
		r.sink.PackageTransitioned(ctx, pkgs[i], trs[i])
	}
}

// AcceptQuote moves a PENDING quote to ACCEPTED and its packages to
// QUOTE_READY. Accepting an already accepted quote is a no-op.
func (r *Reconciler) AcceptQuote(ctx context.Context, quoteID uint64) ([]lifecycle.Transition, error) {
	var trs []lifecycle.Transition
	var changed []*models.Package

	err := r.tx.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		trs, changed = nil, nil

		q, err := tx.LockQuote(ctx, quoteID)
		if err != nil {
			return err
		}
		switch q.Status {
		case models.QuoteStatusAccepted:
			return nil
		case models.QuoteStatusPending:
		default:
			return errors.Wrapf(errs.ErrTransitionRejected, "quote %d is %s", quoteID, q.Status)
		}

		if err := tx.SaveQuoteStatus(ctx, quoteID, models.QuoteStatusAccepted); err != nil {
			return err
		}
		trs, changed, err = r.movePackages(ctx, tx, quoteID, models.PackageStatusQuoteReady)
		return err
	})
	if err != nil {
		return nil, err
	}

	r.notifyPackages(ctx, changed, trs)
	return trs, nil
}
