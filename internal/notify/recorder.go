package notify

import (
	"context"
	"sync"

	"github.com/BearBump/ParcelHub/internal/lifecycle"
	"github.com/BearBump/ParcelHub/internal/models"
)

type PaymentChange struct {
	PaymentID uint64
	From, To  models.PaymentStatus
}

// Recorder keeps every call in memory. Used by service tests and the CLI dry output.
type Recorder struct {
	mu       sync.Mutex
	Packages []lifecycle.Transition
	Payments []PaymentChange
}

func (r *Recorder) PackageTransitioned(_ context.Context, _ *models.Package, t lifecycle.Transition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Packages = append(r.Packages, t)
}

func (r *Recorder) PaymentTransitioned(_ context.Context, pay *models.Payment, from, to models.PaymentStatus, _ lifecycle.Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Payments = append(r.Payments, PaymentChange{PaymentID: pay.ID, From: from, To: to})
}

func (r *Recorder) PackageCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Packages)
}
