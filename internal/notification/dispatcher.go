package notification

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sunupay/subscription-service/internal/directory"
	"github.com/sunupay/subscription-service/internal/domain"
	"github.com/sunupay/subscription-service/pkg/logger"
)

// retryDelays spaces out redelivery attempts after a sink failure
var retryDelays = []time.Duration{1 * time.Second, 5 * time.Second, 30 * time.Second}

// Sink delivers a notification to its destination
type Sink interface {
	Send(ctx context.Context, n *domain.Notification) error
}

// Dispatcher fans lifecycle notifications out to a sink from a
// background worker. Enqueue never blocks the caller; when the queue
// is full the notification is dropped and logged.
type Dispatcher struct {
	queue chan *domain.Notification
	sink  Sink
	dir   directory.UserDirectory
	log   *logger.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewDispatcher creates a dispatcher with the given queue capacity
func NewDispatcher(sink Sink, dir directory.UserDirectory, queueSize int, log *logger.Logger) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 128
	}
	return &Dispatcher{
		queue:  make(chan *domain.Notification, queueSize),
		sink:   sink,
		dir:    dir,
		log:    log,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start launches the delivery worker
func (d *Dispatcher) Start() {
	go d.run()
	d.log.Info("Notification dispatcher started")
}

// Stop drains the queue and stops the worker
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		close(d.stopCh)
	})
	<-d.doneCh
	d.log.Info("Notification dispatcher stopped")
}

// Enqueue queues a notification for delivery without blocking
func (d *Dispatcher) Enqueue(n *domain.Notification) {
	if n == nil {
		return
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}

	select {
	case d.queue <- n:
	default:
		d.log.Warnw("Notification queue full, dropping notification",
			"kind", n.Kind, "userID", n.UserID)
	}
}

func (d *Dispatcher) run() {
	defer close(d.doneCh)

	for {
		select {
		case n := <-d.queue:
			d.deliver(n)
		case <-d.stopCh:
			// Drain whatever is already queued before exiting
			for {
				select {
				case n := <-d.queue:
					d.deliver(n)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(n *domain.Notification) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if n.Contact == nil && d.dir != nil {
		contact, err := d.dir.Lookup(ctx, n.UserID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			d.log.Warnw("Failed to resolve contact", "error", err, "userID", n.UserID)
		}
		n.Contact = contact
	}

	if err := d.sendWithRetry(ctx, n); err != nil {
		d.log.Errorw("Notification delivery failed after retries",
			"error", err, "kind", n.Kind, "userID", n.UserID)
		return
	}

	d.log.Debugw("Notification delivered", "kind", n.Kind, "userID", n.UserID)
}

func (d *Dispatcher) sendWithRetry(ctx context.Context, n *domain.Notification) error {
	err := d.sink.Send(ctx, n)
	if err == nil {
		return nil
	}

	for _, delay := range retryDelays {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}

		if err = d.sink.Send(ctx, n); err == nil {
			return nil
		}
		d.log.Warnw("Notification delivery attempt failed, retrying",
			"error", err, "kind", n.Kind, "userID", n.UserID)
	}
	return err
}

// LogSink writes notifications to the log. Used when no broker is
// configured.
type LogSink struct {
	log *logger.Logger
}

// NewLogSink creates a log-backed sink
func NewLogSink(log *logger.Logger) *LogSink {
	return &LogSink{log: log}
}

// Send logs the notification
func (s *LogSink) Send(_ context.Context, n *domain.Notification) error {
	s.log.Infow("Notification",
		"kind", n.Kind,
		"userID", n.UserID,
		"subscriptionID", n.SubscriptionID,
		"tier", n.Tier)
	return nil
}
