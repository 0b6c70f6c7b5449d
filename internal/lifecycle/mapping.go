package lifecycle

import "github.com/BearBump/ParcelHub/internal/models"

// CarrierStatus is the normalized vendor status, before it becomes a package status proposal.
type CarrierStatus string

const (
	CarrierNotFound    CarrierStatus = "not_found"
	CarrierInTransit   CarrierStatus = "in_transit"
	CarrierPickupReady CarrierStatus = "pickup_ready"
	CarrierUndelivered CarrierStatus = "undelivered"
	CarrierDelivered   CarrierStatus = "delivered"
	CarrierAlert       CarrierStatus = "alert"
	CarrierUnknown     CarrierStatus = "unknown"
)

// Vendor status codes, pinned to the gateway's v2 numeric table.
const (
	VendorNotFound    = 0
	VendorNotFoundAlt = 10
	VendorInTransit   = 20
	VendorPickupReady = 30
	VendorUndelivered = 35
	VendorDelivered   = 40
	VendorAlert       = 50
)

// MapVendorStatus never fails: new vendor codes land in CarrierUnknown.
func MapVendorStatus(code int) CarrierStatus {
	switch code {
	case VendorNotFound, VendorNotFoundAlt:
		return CarrierNotFound
	case VendorInTransit:
		return CarrierInTransit
	case VendorPickupReady:
		return CarrierPickupReady
	case VendorUndelivered:
		return CarrierUndelivered
	case VendorDelivered:
		return CarrierDelivered
	case VendorAlert:
		return CarrierAlert
	default:
		return CarrierUnknown
	}
}

// PackageStatus returns the carrier-sourced proposal, false when the status proposes nothing.
func (c CarrierStatus) PackageStatus() (models.PackageStatus, bool) {
	switch c {
	case CarrierInTransit:
		return models.PackageStatusInTransit, true
	case CarrierPickupReady:
		return models.PackageStatusReceived, true
	case CarrierUndelivered:
		return models.PackageStatusReturned, true
	case CarrierDelivered:
		return models.PackageStatusDelivered, true
	case CarrierAlert:
		// Исключение у перевозчика: паркуем на складе до ручного разбора.
		return models.PackageStatusStored, true
	default:
		return "", false
	}
}
