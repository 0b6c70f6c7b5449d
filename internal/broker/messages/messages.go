package messages

import (
	"time"
)

// SyncRequested asks the worker to pull tracking info for one package.
type SyncRequested struct {
	PackageID   uint64    `json:"package_id"`
	RequestID   string    `json:"request_id,omitempty"`
	RequestedAt time.Time `json:"requested_at"`
}

type AuditRecorded struct {
	ID       string    `json:"id"`
	Entity   string    `json:"entity"` // package | payment | quote
	EntityID uint64    `json:"entity_id"`
	From     string    `json:"from"`
	To       string    `json:"to"`
	Source   string    `json:"source"`
	Reason   string    `json:"reason,omitempty"`
	At       time.Time `json:"at"`
}

type NotificationRequested struct {
	ID        string            `json:"id"`
	Kind      string            `json:"kind"`
	OwnerID   uint64            `json:"owner_id,omitempty"`
	PackageID uint64            `json:"package_id,omitempty"`
	PaymentID uint64            `json:"payment_id,omitempty"`
	Params    map[string]string `json:"params,omitempty"`
	At        time.Time         `json:"at"`
}
