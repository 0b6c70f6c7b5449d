package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/BearBump/ParcelHub/internal/errs"
	"github.com/BearBump/ParcelHub/internal/models"
	"github.com/pkg/errors"
)

type memTx struct {
	st    *state
	now   func() time.Time
	dirty bool
}

func (t *memTx) LockPackage(ctx context.Context, id uint64) (*models.Package, error) {
	p, ok := t.st.packages[id]
	if !ok {
		return nil, errors.Wrapf(errs.ErrNotFound, "package %d", id)
	}
	return p.Clone(), nil
}

func (t *memTx) LockPackagesByQuote(ctx context.Context, quoteID uint64) ([]*models.Package, error) {
	var out []*models.Package
	for _, p := range t.st.packages {
		if p.QuoteID != nil && *p.QuoteID == quoteID {
			out = append(out, p.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *memTx) SavePackage(ctx context.Context, p *models.Package) error {
	cur, ok := t.st.packages[p.ID]
	if !ok {
		return errors.Wrapf(errs.ErrNotFound, "package %d", p.ID)
	}
	c := p.Clone()
	// write-once stamps survive whatever the caller passes
	if cur.ReceivedAt != nil {
		c.ReceivedAt = cur.ReceivedAt
	}
	if cur.ShippedAt != nil {
		c.ShippedAt = cur.ShippedAt
	}
	if cur.DeliveredAt != nil {
		c.DeliveredAt = cur.DeliveredAt
	}
	c.UpdatedAt = t.now()
	t.st.packages[p.ID] = c
	t.dirty = true
	return nil
}

func (t *memTx) InsertTrackingEvents(ctx context.Context, events []*models.TrackingEvent) (int, error) {
	n := 0
	for _, e := range events {
		k := e.DedupKey()
		if _, ok := t.st.dedup[k]; ok {
			continue
		}
		t.st.dedup[k] = struct{}{}
		t.st.nextID++
		c := *e
		c.ID = t.st.nextID
		c.Timestamp = e.Timestamp.UTC()
		c.CreatedAt = t.now()
		t.st.events = append(t.st.events, &c)
		n++
	}
	if n > 0 {
		t.dirty = true
	}
	return n, nil
}

func (t *memTx) LockQuote(ctx context.Context, id uint64) (*models.Quote, error) {
	q, ok := t.st.quotes[id]
	if !ok {
		return nil, errors.Wrapf(errs.ErrNotFound, "quote %d", id)
	}
	c := *q
	return &c, nil
}

func (t *memTx) SaveQuoteStatus(ctx context.Context, id uint64, status models.QuoteStatus) error {
	q, ok := t.st.quotes[id]
	if !ok {
		return errors.Wrapf(errs.ErrNotFound, "quote %d", id)
	}
	q.Status = status
	q.UpdatedAt = t.now()
	t.dirty = true
	return nil
}

func (t *memTx) LockPaymentByGatewayID(ctx context.Context, gatewayPaymentID string) (*models.Payment, error) {
	for _, p := range t.st.payments {
		if p.GatewayPaymentID == gatewayPaymentID {
			c := *p
			return &c, nil
		}
	}
	return nil, errors.Wrapf(errs.ErrNotFound, "payment %q", gatewayPaymentID)
}

func (t *memTx) SavePaymentStatus(ctx context.Context, id uint64, status models.PaymentStatus) error {
	p, ok := t.st.payments[id]
	if !ok {
		return errors.Wrapf(errs.ErrNotFound, "payment %d", id)
	}
	p.Status = status
	p.UpdatedAt = t.now()
	t.dirty = true
	return nil
}
