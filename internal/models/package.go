package models

import "time"

type PackageStatus string

// Канонические статусы посылки.
const (
	PackageStatusAnnounced      PackageStatus = "ANNOUNCED"
	PackageStatusInTransit      PackageStatus = "IN_TRANSIT"
	PackageStatusReceived       PackageStatus = "RECEIVED"
	PackageStatusStored         PackageStatus = "STORED"
	PackageStatusQuoteRequested PackageStatus = "QUOTE_REQUESTED"
	PackageStatusQuoteReady     PackageStatus = "QUOTE_READY"
	PackageStatusPaid           PackageStatus = "PAID"
	PackageStatusPreparing      PackageStatus = "PREPARING"
	PackageStatusShipped        PackageStatus = "SHIPPED"
	PackageStatusDelivered      PackageStatus = "DELIVERED"
	PackageStatusCancelled      PackageStatus = "CANCELLED"
	PackageStatusReturned       PackageStatus = "RETURNED"
)

var allPackageStatuses = []PackageStatus{
	PackageStatusAnnounced,
	PackageStatusInTransit,
	PackageStatusReceived,
	PackageStatusStored,
	PackageStatusQuoteRequested,
	PackageStatusQuoteReady,
	PackageStatusPaid,
	PackageStatusPreparing,
	PackageStatusShipped,
	PackageStatusDelivered,
	PackageStatusCancelled,
	PackageStatusReturned,
}

// AllPackageStatuses returns a copy of the canonical status list.
func AllPackageStatuses() []PackageStatus {
	return append([]PackageStatus(nil), allPackageStatuses...)
}

func (s PackageStatus) Valid() bool {
	for _, v := range allPackageStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// Terminal reports whether carrier sync may never leave the status.
func (s PackageStatus) Terminal() bool {
	switch s {
	case PackageStatusDelivered, PackageStatusCancelled, PackageStatusReturned:
		return true
	}
	return false
}

// TerminalPackageStatuses is used by repositories to select active packages.
func TerminalPackageStatuses() []PackageStatus {
	return []PackageStatus{PackageStatusDelivered, PackageStatusCancelled, PackageStatusReturned}
}

type Package struct {
	ID             uint64
	OwnerID        uint64
	TrackingNumber string
	CarrierCode    string
	CarrierName    string
	Status         PackageStatus
	ReceivedAt     *time.Time
	ShippedAt      *time.Time
	DeliveredAt    *time.Time
	QuoteID        *uint64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Clone returns a deep copy, so callers can mutate it without touching shared state.
func (p *Package) Clone() *Package {
	if p == nil {
		return nil
	}
	c := *p
	c.ReceivedAt = cloneTime(p.ReceivedAt)
	c.ShippedAt = cloneTime(p.ShippedAt)
	c.DeliveredAt = cloneTime(p.DeliveredAt)
	if p.QuoteID != nil {
		q := *p.QuoteID
		c.QuoteID = &q
	}
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
