// Package memstore is an in-memory storage.Store. Transactions run under a
// single store-wide lock against a copy of the state that replaces the live
// state only on success.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/BearBump/ParcelHub/internal/errs"
	"github.com/BearBump/ParcelHub/internal/models"
	"github.com/BearBump/ParcelHub/internal/storage"
	"github.com/pkg/errors"
)

type state struct {
	packages map[uint64]*models.Package
	quotes   map[uint64]*models.Quote
	payments map[uint64]*models.Payment
	events   []*models.TrackingEvent
	dedup    map[models.DedupKey]struct{}
	nextID   uint64
}

type Store struct {
	mu    sync.Mutex
	st    *state
	now   func() time.Time
	txs   int
	write int
}

var _ storage.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		st: &state{
			packages: make(map[uint64]*models.Package),
			quotes:   make(map[uint64]*models.Quote),
			payments: make(map[uint64]*models.Payment),
			dedup:    make(map[models.DedupKey]struct{}),
		},
		now: func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) Close() {}

// --- seeding helpers (tests, local runs) ---

func (s *Store) AddPackage(p models.Package) *models.Package {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == 0 {
		s.st.nextID++
		p.ID = s.st.nextID
	} else if p.ID > s.st.nextID {
		s.st.nextID = p.ID
	}
	if p.Status == "" {
		p.Status = models.PackageStatusAnnounced
	}
	now := s.now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	s.st.packages[p.ID] = p.Clone()
	return p.Clone()
}

func (s *Store) AddQuote(q models.Quote) *models.Quote {
	s.mu.Lock()
	defer s.mu.Unlock()
	if q.ID == 0 {
		s.st.nextID++
		q.ID = s.st.nextID
	} else if q.ID > s.st.nextID {
		s.st.nextID = q.ID
	}
	if q.Status == "" {
		q.Status = models.QuoteStatusPending
	}
	c := q
	s.st.quotes[q.ID] = &c
	return &q
}

func (s *Store) AddPayment(p models.Payment) *models.Payment {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == 0 {
		s.st.nextID++
		p.ID = s.st.nextID
	} else if p.ID > s.st.nextID {
		s.st.nextID = p.ID
	}
	if p.Status == "" {
		p.Status = models.PaymentStatusPending
	}
	c := p
	s.st.payments[p.ID] = &c
	return &p
}

// Quote and Payment are read helpers for assertions.
func (s *Store) Quote(id uint64) (*models.Quote, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.st.quotes[id]
	if !ok {
		return nil, false
	}
	c := *q
	return &c, true
}

func (s *Store) Payment(id uint64) (*models.Payment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.st.payments[id]
	if !ok {
		return nil, false
	}
	c := *p
	return &c, true
}

// Writes counts committed transactions that changed something plus carrier writes.
func (s *Store) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write
}

// --- storage.PackageReader ---

func (s *Store) GetPackage(ctx context.Context, id uint64) (*models.Package, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.st.packages[id]
	if !ok {
		return nil, errors.Wrapf(errs.ErrNotFound, "package %d", id)
	}
	return p.Clone(), nil
}

func (s *Store) FindPackageByTrackingNumber(ctx context.Context, number string) (*models.Package, error) {
	number = strings.TrimSpace(number)
	s.mu.Lock()
	defer s.mu.Unlock()
	var found *models.Package
	for _, p := range s.st.packages {
		if number != "" && p.TrackingNumber == number {
			// самая свежая посылка с этим номером
			if found == nil || p.ID > found.ID {
				found = p
			}
		}
	}
	if found == nil {
		return nil, errors.Wrapf(errs.ErrNotFound, "tracking number %q", number)
	}
	return found.Clone(), nil
}

func (s *Store) ListActivePackages(ctx context.Context) ([]*models.Package, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Package
	for _, p := range s.st.packages {
		if p.TrackingNumber == "" || p.Status.Terminal() {
			continue
		}
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) SetCarrierIfEmpty(ctx context.Context, packageID uint64, code, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.st.packages[packageID]
	if !ok {
		return false, errors.Wrapf(errs.ErrNotFound, "package %d", packageID)
	}
	if p.CarrierCode != "" {
		return false, nil
	}
	p.CarrierCode = code
	p.CarrierName = name
	p.UpdatedAt = s.now()
	s.write++
	return true, nil
}

// --- storage.EventReader ---

func (s *Store) ListTrackingEvents(ctx context.Context, packageID uint64, limit, offset int) ([]*models.TrackingEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var all []*models.TrackingEvent
	for _, e := range s.st.events {
		if e.PackageID == packageID {
			c := *e
			all = append(all, &c)
		}
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].Timestamp.After(all[j].Timestamp) })
	if offset >= len(all) {
		return []*models.TrackingEvent{}, nil
	}
	all = all[offset:]
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// --- storage.Transactor ---

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.st.clone()
	tx := &memTx{st: work, now: s.now}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	s.st = work
	s.txs++
	if tx.dirty {
		s.write++
	}
	return nil
}

func (st *state) clone() *state {
	c := &state{
		packages: make(map[uint64]*models.Package, len(st.packages)),
		quotes:   make(map[uint64]*models.Quote, len(st.quotes)),
		payments: make(map[uint64]*models.Payment, len(st.payments)),
		events:   append([]*models.TrackingEvent(nil), st.events...),
		dedup:    make(map[models.DedupKey]struct{}, len(st.dedup)),
		nextID:   st.nextID,
	}
	for k, v := range st.packages {
		c.packages[k] = v.Clone()
	}
	for k, v := range st.quotes {
		q := *v
		c.quotes[k] = &q
	}
	for k, v := range st.payments {
		p := *v
		c.payments[k] = &p
	}
	for k := range st.dedup {
		c.dedup[k] = struct{}{}
	}
	return c
}
