package pgparcel

import (
	"context"
	"strings"

	"github.com/BearBump/ParcelHub/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

const packageColumns = `
  id, owner_id, tracking_number, carrier_code, carrier_name, status,
  received_at, shipped_at, delivered_at, quote_id, created_at, updated_at`

func scanPackage(row pgx.Row) (*models.Package, error) {
	var p models.Package
	var status string
	if err := row.Scan(
		&p.ID, &p.OwnerID, &p.TrackingNumber, &p.CarrierCode, &p.CarrierName, &status,
		&p.ReceivedAt, &p.ShippedAt, &p.DeliveredAt, &p.QuoteID, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	p.Status = models.PackageStatus(status)
	return &p, nil
}

func queryPackages(ctx context.Context, q querier, sql string, args ...any) ([]*models.Package, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, errors.Wrap(err, "select packages")
	}
	defer rows.Close()

	var out []*models.Package
	for rows.Next() {
		p, err := scanPackage(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan package")
		}
		out = append(out, p)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

func (s *Storage) GetPackage(ctx context.Context, id uint64) (*models.Package, error) {
	p, err := scanPackage(s.db.QueryRow(ctx, `SELECT`+packageColumns+`
FROM packages
WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "get package")
	}
	return p, nil
}

func (s *Storage) FindPackageByTrackingNumber(ctx context.Context, number string) (*models.Package, error) {
	p, err := scanPackage(s.db.QueryRow(ctx, `SELECT`+packageColumns+`
FROM packages
WHERE tracking_number = $1
ORDER BY id DESC
LIMIT 1`, strings.TrimSpace(number)))
	if err != nil {
		return nil, notFound(err, "find package by tracking number")
	}
	return p, nil
}

func (s *Storage) ListActivePackages(ctx context.Context) ([]*models.Package, error) {
	terminal := make([]string, 0, 3)
	for _, st := range models.TerminalPackageStatuses() {
		terminal = append(terminal, string(st))
	}
	return queryPackages(ctx, s.db, `SELECT`+packageColumns+`
FROM packages
WHERE tracking_number <> ''
  AND status <> ALL($1)
ORDER BY id`, terminal)
}

func (s *Storage) SetCarrierIfEmpty(ctx context.Context, packageID uint64, code, name string) (bool, error) {
	tag, err := s.db.Exec(ctx, `
UPDATE packages
SET carrier_code = $2, carrier_name = $3, updated_at = now()
WHERE id = $1 AND carrier_code = ''`, packageID, code, name)
	if err != nil {
		return false, errors.Wrap(err, "set carrier")
	}
	return tag.RowsAffected() == 1, nil
}
