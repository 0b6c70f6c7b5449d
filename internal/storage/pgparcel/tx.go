package pgparcel

import (
	"context"

	"github.com/BearBump/ParcelHub/internal/errs"
	"github.com/BearBump/ParcelHub/internal/models"
	"github.com/pkg/errors"
)

type pgTx struct {
	q querier
}

func (t *pgTx) LockPackage(ctx context.Context, id uint64) (*models.Package, error) {
	p, err := scanPackage(t.q.QueryRow(ctx, `SELECT`+packageColumns+`
FROM packages
WHERE id = $1
FOR UPDATE`, id))
	if err != nil {
		return nil, notFound(err, "lock package")
	}
	return p, nil
}

func (t *pgTx) LockPackagesByQuote(ctx context.Context, quoteID uint64) ([]*models.Package, error) {
	return queryPackages(ctx, t.q, `SELECT`+packageColumns+`
FROM packages
WHERE quote_id = $1
ORDER BY id
FOR UPDATE`, quoteID)
}

// SavePackage never overwrites a stamp that is already set.
func (t *pgTx) SavePackage(ctx context.Context, p *models.Package) error {
	tag, err := t.q.Exec(ctx, `
UPDATE packages
SET
  status = $2,
  carrier_code = $3,
  carrier_name = $4,
  received_at = COALESCE(received_at, $5),
  shipped_at = COALESCE(shipped_at, $6),
  delivered_at = COALESCE(delivered_at, $7),
  updated_at = now()
WHERE id = $1
`, p.ID, string(p.Status), p.CarrierCode, p.CarrierName, p.ReceivedAt, p.ShippedAt, p.DeliveredAt)
	if err != nil {
		return errors.Wrap(err, "update package")
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(errs.ErrNotFound, "package %d", p.ID)
	}
	return nil
}

func (t *pgTx) InsertTrackingEvents(ctx context.Context, events []*models.TrackingEvent) (int, error) {
	return insertEvents(ctx, t.q, events)
}

func (t *pgTx) LockQuote(ctx context.Context, id uint64) (*models.Quote, error) {
	var q models.Quote
	var status string
	err := t.q.QueryRow(ctx, `
SELECT id, status, carrier_options, selected_carrier, total_amount, currency, created_at, updated_at
FROM quotes
WHERE id = $1
FOR UPDATE`, id).Scan(
		&q.ID, &status, &q.CarrierOptionsJSON, &q.SelectedCarrier, &q.TotalAmount, &q.Currency, &q.CreatedAt, &q.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err, "lock quote")
	}
	q.Status = models.QuoteStatus(status)
	return &q, nil
}

func (t *pgTx) SaveQuoteStatus(ctx context.Context, id uint64, status models.QuoteStatus) error {
	tag, err := t.q.Exec(ctx, `UPDATE quotes SET status = $2, updated_at = now() WHERE id = $1`, id, string(status))
	if err != nil {
		return errors.Wrap(err, "update quote")
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(errs.ErrNotFound, "quote %d", id)
	}
	return nil
}

func (t *pgTx) LockPaymentByGatewayID(ctx context.Context, gatewayPaymentID string) (*models.Payment, error) {
	var p models.Payment
	var status string
	err := t.q.QueryRow(ctx, `
SELECT id, quote_id, gateway_payment_id, status, amount, currency, created_at, updated_at
FROM payments
WHERE gateway_payment_id = $1
FOR UPDATE`, gatewayPaymentID).Scan(
		&p.ID, &p.QuoteID, &p.GatewayPaymentID, &status, &p.Amount, &p.Currency, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err, "lock payment")
	}
	p.Status = models.PaymentStatus(status)
	return &p, nil
}

func (t *pgTx) SavePaymentStatus(ctx context.Context, id uint64, status models.PaymentStatus) error {
	tag, err := t.q.Exec(ctx, `UPDATE payments SET status = $2, updated_at = now() WHERE id = $1`, id, string(status))
	if err != nil {
		return errors.Wrap(err, "update payment")
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(errs.ErrNotFound, "payment %d", id)
	}
	return nil
}
