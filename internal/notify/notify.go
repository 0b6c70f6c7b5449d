// Package notify turns status changes into audit records and notification
// requests. Delivery is fire-and-forget: records are queued and published by a
// background goroutine, so a slow or failing broker never delays or fails the
// write that triggered it.
package notify

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/BearBump/ParcelHub/internal/broker/messages"
	"github.com/BearBump/ParcelHub/internal/lifecycle"
	"github.com/BearBump/ParcelHub/internal/models"
	"github.com/google/uuid"
)

// Notification kinds.
const (
	KindPackageReceived  = "package.received"
	KindPackageDelivered = "package.delivered"
	KindPackageReturned  = "package.returned"
	KindPaymentSucceeded = "payment.succeeded"
	KindPaymentFailed    = "payment.failed"
	KindPaymentRefunded  = "payment.refunded"
)

type Sink interface {
	PackageTransitioned(ctx context.Context, p *models.Package, t lifecycle.Transition)
	PaymentTransitioned(ctx context.Context, pay *models.Payment, from, to models.PaymentStatus, source lifecycle.Source)
}

type Publisher interface {
	PublishJSON(ctx context.Context, topic, key string, v any) error
}

type Topics struct {
	Audit         string
	Notifications string
}

const (
	DefaultQueueSize      = 1024
	DefaultPublishTimeout = 10 * time.Second
)

type record struct {
	topic string
	key   string
	v     any
}

type KafkaSink struct {
	pub     Publisher
	topics  Topics
	log     *slog.Logger
	now     func() time.Time
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	queue  chan record
	done   chan struct{}
}

// NewKafkaSink starts the publishing goroutine; Close drains the queue and stops it.
func NewKafkaSink(pub Publisher, topics Topics, logger *slog.Logger) *KafkaSink {
	return NewKafkaSinkSize(pub, topics, DefaultQueueSize, logger)
}

func NewKafkaSinkSize(pub Publisher, topics Topics, size int, logger *slog.Logger) *KafkaSink {
	if logger == nil {
		logger = slog.Default()
	}
	if size <= 0 {
		size = DefaultQueueSize
	}
	s := &KafkaSink{
		pub:     pub,
		topics:  topics,
		log:     logger.With("component", "notify"),
		now:     func() time.Time { return time.Now().UTC() },
		timeout: DefaultPublishTimeout,
		queue:   make(chan record, size),
		done:    make(chan struct{}),
	}
	go s.drain()
	return s
}

func (s *KafkaSink) drain() {
	defer close(s.done)
	for r := range s.queue {
		// request ctx is gone by now, each record gets its own deadline
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		if err := s.pub.PublishJSON(ctx, r.topic, r.key, r.v); err != nil {
			s.log.Warn("publish failed", "topic", r.topic, "key", r.key, "err", err)
		}
		cancel()
	}
}

// Close stops accepting records and waits until the queued ones are published.
func (s *KafkaSink) Close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()
	<-s.done
}

func (s *KafkaSink) PackageTransitioned(ctx context.Context, p *models.Package, t lifecycle.Transition) {
	key := strconv.FormatUint(p.ID, 10)
	s.publish(ctx, s.topics.Audit, key, messages.AuditRecorded{
		ID:       uuid.NewString(),
		Entity:   "package",
		EntityID: p.ID,
		From:     string(t.From),
		To:       string(t.To),
		Source:   string(t.Source),
		At:       t.At,
	})

	kind, ok := packageKind(t.To)
	if !ok {
		return
	}
	s.publish(ctx, s.topics.Notifications, key, messages.NotificationRequested{
		ID:        uuid.NewString(),
		Kind:      kind,
		OwnerID:   p.OwnerID,
		PackageID: p.ID,
		Params: map[string]string{
			"tracking_number": p.TrackingNumber,
			"carrier":         p.CarrierName,
		},
		At: t.At,
	})
}

func (s *KafkaSink) PaymentTransitioned(ctx context.Context, pay *models.Payment, from, to models.PaymentStatus, source lifecycle.Source) {
	key := strconv.FormatUint(pay.ID, 10)
	now := s.now()
	s.publish(ctx, s.topics.Audit, key, messages.AuditRecorded{
		ID:       uuid.NewString(),
		Entity:   "payment",
		EntityID: pay.ID,
		From:     string(from),
		To:       string(to),
		Source:   string(source),
		At:       now,
	})

	kind, ok := paymentKind(to)
	if !ok {
		return
	}
	s.publish(ctx, s.topics.Notifications, key, messages.NotificationRequested{
		ID:        uuid.NewString(),
		Kind:      kind,
		PaymentID: pay.ID,
		Params: map[string]string{
			"quote_id": strconv.FormatUint(pay.QuoteID, 10),
			"amount":   strconv.FormatInt(pay.Amount, 10),
			"currency": pay.Currency,
		},
		At: now,
	})
}

func (s *KafkaSink) publish(_ context.Context, topic, key string, v any) {
	if topic == "" {
		return
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.log.Warn("notify sink closed, record dropped", "topic", topic, "key", key)
		return
	}
	select {
	case s.queue <- record{topic: topic, key: key, v: v}:
	default:
		s.log.Warn("notify queue full, record dropped", "topic", topic, "key", key)
	}
}

func packageKind(st models.PackageStatus) (string, bool) {
	switch st {
	case models.PackageStatusReceived:
		return KindPackageReceived, true
	case models.PackageStatusDelivered:
		return KindPackageDelivered, true
	case models.PackageStatusReturned:
		return KindPackageReturned, true
	}
	return "", false
}

func paymentKind(st models.PaymentStatus) (string, bool) {
	switch st {
	case models.PaymentStatusSucceeded:
		return KindPaymentSucceeded, true
	case models.PaymentStatusFailed:
		return KindPaymentFailed, true
	case models.PaymentStatusRefunded:
		return KindPaymentRefunded, true
	}
	return "", false
}

type Nop struct{}

func (Nop) PackageTransitioned(context.Context, *models.Package, lifecycle.Transition) {}

func (Nop) PaymentTransitioned(context.Context, *models.Payment, models.PaymentStatus, models.PaymentStatus, lifecycle.Source) {
}
