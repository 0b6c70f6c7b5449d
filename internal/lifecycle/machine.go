// Package lifecycle holds the package status state machine and the vendor
// status mapping. Every writer of Package.Status goes through Next/Decide.
package lifecycle

import (
	"time"

	"github.com/BearBump/ParcelHub/internal/models"
)

// Source is the write path proposing a status.
type Source string

const (
	SourceCarrier Source = "carrier"
	SourcePayment Source = "payment"
	SourceAdmin   Source = "admin"
)

// commercial statuses: the package left raw logistics and belongs to the
// quote/fulfillment pipeline, carrier polling must not touch it.
var commercial = map[models.PackageStatus]struct{}{
	models.PackageStatusQuoteRequested: {},
	models.PackageStatusQuoteReady:     {},
	models.PackageStatusPaid:           {},
	models.PackageStatusPreparing:      {},
	models.PackageStatusShipped:        {},
}

// carrierTargets are the only statuses a carrier observation may propose.
var carrierTargets = map[models.PackageStatus]struct{}{
	models.PackageStatusInTransit: {},
	models.PackageStatusReceived:  {},
	models.PackageStatusStored:    {},
	models.PackageStatusReturned:  {},
	models.PackageStatusDelivered: {},
}

var paymentTargets = map[models.PackageStatus]struct{}{
	models.PackageStatusQuoteReady: {},
	models.PackageStatusPaid:       {},
	models.PackageStatusStored:     {},
}

// logisticsRank orders the non-terminal logistics statuses; carrier proposals never go down.
var logisticsRank = map[models.PackageStatus]int{
	models.PackageStatusAnnounced: 0,
	models.PackageStatusInTransit: 1,
	models.PackageStatusReceived:  2,
	models.PackageStatusStored:    3,
}

// Next returns the status to persist, or false for "no change".
func Next(current, proposed models.PackageStatus, src Source) (models.PackageStatus, bool) {
	if !proposed.Valid() || proposed == current {
		return current, false
	}

	switch src {
	case SourceAdmin:
		return proposed, true

	case SourceCarrier:
		if current.Terminal() {
			return current, false
		}
		if _, ok := commercial[current]; ok {
			return current, false
		}
		if _, ok := carrierTargets[proposed]; !ok {
			return current, false
		}
		cr, curOK := logisticsRank[current]
		pr, propOK := logisticsRank[proposed]
		if curOK && propOK && pr < cr {
			return current, false
		}
		return proposed, true

	case SourcePayment:
		if _, ok := paymentTargets[proposed]; !ok {
			return current, false
		}
		return proposed, true
	}

	return current, false
}

// Stamps tells which write-once timestamps are already present.
type Stamps struct {
	Received  bool
	Shipped   bool
	Delivered bool
}

func StampsOf(p *models.Package) Stamps {
	return Stamps{
		Received:  p.ReceivedAt != nil,
		Shipped:   p.ShippedAt != nil,
		Delivered: p.DeliveredAt != nil,
	}
}

// Decision is the pure outcome of a proposal.
type Decision struct {
	Changed      bool
	From         models.PackageStatus
	To           models.PackageStatus
	SetReceived  bool
	SetShipped   bool
	SetDelivered bool
}

func Decide(current, proposed models.PackageStatus, src Source, st Stamps) Decision {
	next, ok := Next(current, proposed, src)
	d := Decision{Changed: ok, From: current, To: next}
	if !ok {
		return d
	}
	switch next {
	case models.PackageStatusReceived:
		d.SetReceived = !st.Received
	case models.PackageStatusShipped:
		d.SetShipped = !st.Shipped
	case models.PackageStatusDelivered:
		d.SetDelivered = !st.Delivered
	}
	return d
}

// Transition describes an applied change, used for audit entries.
type Transition struct {
	PackageID uint64
	From      models.PackageStatus
	To        models.PackageStatus
	Source    Source
	At        time.Time
}

// Apply runs Decide against p and mutates it in place.
func Apply(p *models.Package, proposed models.PackageStatus, src Source, now time.Time) (Transition, bool) {
	d := Decide(p.Status, proposed, src, StampsOf(p))
	if !d.Changed {
		return Transition{}, false
	}

	now = now.UTC()
	p.Status = d.To
	if d.SetReceived {
		p.ReceivedAt = &now
	}
	if d.SetShipped {
		p.ShippedAt = &now
	}
	if d.SetDelivered {
		p.DeliveredAt = &now
	}
	p.UpdatedAt = now

	return Transition{PackageID: p.ID, From: d.From, To: d.To, Source: src, At: now}, true
}
