package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/BearBump/ParcelHub/internal/broker/messages"
	"github.com/BearBump/ParcelHub/internal/lifecycle"
	"github.com/BearBump/ParcelHub/internal/models"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type publisherMock struct {
	mock.Mock
}

func (m *publisherMock) PublishJSON(ctx context.Context, topic, key string, v any) error {
	return m.Called(ctx, topic, key, v).Error(0)
}

var topics = Topics{Audit: "parcel.audit", Notifications: "parcel.notifications"}

func TestPackageTransitioned_DeliveredNotifies(t *testing.T) {
	pm := &publisherMock{}
	s := NewKafkaSink(pm, topics, nil)

	pm.On("PublishJSON", mock.Anything, "parcel.audit", "7", mock.MatchedBy(func(v any) bool {
		a, ok := v.(messages.AuditRecorded)
		return ok && a.From == "IN_TRANSIT" && a.To == "DELIVERED" && a.Source == "carrier" && a.ID != ""
	})).Return(nil).Once()
	pm.On("PublishJSON", mock.Anything, "parcel.notifications", "7", mock.MatchedBy(func(v any) bool {
		n, ok := v.(messages.NotificationRequested)
		return ok && n.Kind == KindPackageDelivered && n.OwnerID == 3 && n.Params["tracking_number"] == "1Z999AA1"
	})).Return(nil).Once()

	p := &models.Package{ID: 7, OwnerID: 3, TrackingNumber: "1Z999AA1"}
	s.PackageTransitioned(context.Background(), p, lifecycle.Transition{
		PackageID: 7, From: models.PackageStatusInTransit, To: models.PackageStatusDelivered,
		Source: lifecycle.SourceCarrier, At: time.Now(),
	})
	s.Close()
	pm.AssertExpectations(t)
}

func TestPackageTransitioned_InTransitOnlyAudits(t *testing.T) {
	pm := &publisherMock{}
	s := NewKafkaSink(pm, topics, nil)
	pm.On("PublishJSON", mock.Anything, "parcel.audit", "1", mock.Anything).Return(nil).Once()

	s.PackageTransitioned(context.Background(), &models.Package{ID: 1}, lifecycle.Transition{
		PackageID: 1, From: models.PackageStatusAnnounced, To: models.PackageStatusInTransit, Source: lifecycle.SourceCarrier,
	})
	s.Close()
	pm.AssertExpectations(t)
	pm.AssertNumberOfCalls(t, "PublishJSON", 1)
}

func TestPaymentTransitioned_PublishErrorIsSwallowed(t *testing.T) {
	pm := &publisherMock{}
	s := NewKafkaSink(pm, topics, nil)
	pm.On("PublishJSON", mock.Anything, mock.Anything, "9", mock.Anything).Return(errors.New("broker down")).Twice()

	require.NotPanics(t, func() {
		s.PaymentTransitioned(context.Background(), &models.Payment{ID: 9, QuoteID: 4},
			models.PaymentStatusPending, models.PaymentStatusSucceeded, lifecycle.SourcePayment)
	})
	s.Close()
	pm.AssertExpectations(t)
}

type slowPublisher struct {
	delay time.Duration
	mu    sync.Mutex
	calls int
	ctxOK bool
}

func (p *slowPublisher) PublishJSON(ctx context.Context, _, _ string, _ any) error {
	time.Sleep(p.delay)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	p.ctxOK = ctx.Err() == nil
	return nil
}

func TestKafkaSink_SlowBrokerDoesNotBlockCaller(t *testing.T) {
	pub := &slowPublisher{delay: 200 * time.Millisecond}
	s := NewKafkaSink(pub, topics, nil)

	ctx, cancel := context.WithCancel(context.Background())
	start := time.Now()
	for i := uint64(1); i <= 3; i++ {
		s.PackageTransitioned(ctx, &models.Package{ID: i}, lifecycle.Transition{
			PackageID: i, From: models.PackageStatusInTransit, To: models.PackageStatusDelivered,
			Source: lifecycle.SourceCarrier,
		})
	}
	require.Less(t, time.Since(start), 100*time.Millisecond)
	// caller's ctx ending must not cancel queued records
	cancel()

	s.Close()
	require.Equal(t, 6, pub.calls)
	require.True(t, pub.ctxOK)
}

func TestKafkaSink_FullQueueDrops(t *testing.T) {
	block := make(chan time.Time)
	pm := &publisherMock{}
	pm.On("PublishJSON", mock.Anything, "parcel.audit", mock.Anything, mock.Anything).
		WaitUntil(block).Return(nil)
	s := NewKafkaSinkSize(pm, Topics{Audit: "parcel.audit"}, 1, nil)

	require.NotPanics(t, func() {
		for i := uint64(1); i <= 10; i++ {
			s.PackageTransitioned(context.Background(), &models.Package{ID: i}, lifecycle.Transition{PackageID: i})
		}
	})
	close(block)
	s.Close()
	// one in flight plus one buffered, the rest dropped
	require.LessOrEqual(t, len(pm.Calls), 2)

	require.NotPanics(t, func() {
		s.PackageTransitioned(context.Background(), &models.Package{ID: 11}, lifecycle.Transition{PackageID: 11})
	})
}

func TestRecorder(t *testing.T) {
	r := &Recorder{}
	r.PackageTransitioned(context.Background(), &models.Package{ID: 1}, lifecycle.Transition{PackageID: 1})
	r.PaymentTransitioned(context.Background(), &models.Payment{ID: 2}, models.PaymentStatusPending, models.PaymentStatusFailed, lifecycle.SourcePayment)
	require.Equal(t, 1, r.PackageCount())
	require.Equal(t, models.PaymentStatusFailed, r.Payments[0].To)
}
