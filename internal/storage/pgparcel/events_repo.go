package pgparcel

import (
	"context"

	"github.com/BearBump/ParcelHub/internal/models"
	"github.com/pkg/errors"
)

func (s *Storage) ListTrackingEvents(ctx context.Context, packageID uint64, limit, offset int) ([]*models.TrackingEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.Query(ctx, `
SELECT
  id, package_id, event_type, description,
  location, occurred_at, payload, created_at
FROM tracking_events
WHERE package_id = $1
ORDER BY occurred_at DESC
LIMIT $2 OFFSET $3
`, packageID, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "select events")
	}
	defer rows.Close()

	out := []*models.TrackingEvent{}
	for rows.Next() {
		var e models.TrackingEvent
		if err := rows.Scan(
			&e.ID, &e.PackageID, &e.EventType, &e.Description,
			&e.Location, &e.Timestamp, &e.PayloadJSON, &e.CreatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "scan event")
		}
		out = append(out, &e)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

func insertEvents(ctx context.Context, q querier, events []*models.TrackingEvent) (int, error) {
	inserted := 0
	for _, e := range events {
		tag, err := q.Exec(ctx, `
INSERT INTO tracking_events (
  package_id, event_type, description, location, occurred_at, payload, created_at
)
VALUES ($1,$2,$3,$4,$5,$6, now())
ON CONFLICT (package_id, occurred_at, description) DO NOTHING
`, e.PackageID, e.EventType, e.Description, e.Location, e.Timestamp.UTC(), e.PayloadJSON)
		if err != nil {
			return inserted, errors.Wrap(err, "insert tracking event")
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}
