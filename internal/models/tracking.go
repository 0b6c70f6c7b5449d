package models

import "time"

// TrackingEvent is an append-only carrier checkpoint of a package.
type TrackingEvent struct {
	ID          uint64
	PackageID   uint64
	EventType   string
	Description string
	Location    *string
	Timestamp   time.Time
	PayloadJSON *string
	CreatedAt   time.Time
}

// DedupKey identifies an event regardless of which path (poll or webhook) delivered it.
type DedupKey struct {
	PackageID   uint64
	Timestamp   time.Time
	Description string
}

func (e *TrackingEvent) DedupKey() DedupKey {
	return DedupKey{
		PackageID:   e.PackageID,
		Timestamp:   e.Timestamp.UTC(),
		Description: e.Description,
	}
}
