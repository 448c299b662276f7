package service

import (
	"context"
	"sync"
	"time"

	"github.com/sunupay/subscription-service/internal/domain"
	"github.com/sunupay/subscription-service/internal/metrics"
	"github.com/sunupay/subscription-service/internal/notification"
	"github.com/sunupay/subscription-service/internal/repository"
	"github.com/sunupay/subscription-service/pkg/logger"
)

// ExpirationSweeper periodically demotes overdue active subscriptions
// to expired and warns users whose subscriptions end soon. A failure on
// one record never stops the sweep of the others.
type ExpirationSweeper struct {
	repo       repository.SubscriptionRepository
	dispatcher *notification.Dispatcher
	cache      StatusCache
	metrics    metrics.SubscriptionMetrics
	log        *logger.Logger

	interval   time.Duration
	warnWindow time.Duration
	now        func() time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewExpirationSweeper creates a sweeper. dispatcher, cache and metrics
// may be nil.
func NewExpirationSweeper(
	repo repository.SubscriptionRepository,
	dispatcher *notification.Dispatcher,
	cache StatusCache,
	m metrics.SubscriptionMetrics,
	interval, warnWindow time.Duration,
	log *logger.Logger,
) *ExpirationSweeper {
	if interval <= 0 {
		interval = 1 * time.Hour
	}
	if warnWindow <= 0 {
		warnWindow = 72 * time.Hour
	}
	return &ExpirationSweeper{
		repo:       repo,
		dispatcher: dispatcher,
		cache:      cache,
		metrics:    m,
		log:        log,
		interval:   interval,
		warnWindow: warnWindow,
		now:        time.Now,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
}

// Start runs an immediate sweep, then sweeps on every tick
func (s *ExpirationSweeper) Start(ctx context.Context) {
	go func() {
		defer close(s.doneCh)

		s.Sweep(ctx)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.Sweep(ctx)
			case <-s.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	s.log.Info("Expiration sweeper started with interval %s", s.interval)
}

// Stop stops the sweep loop
func (s *ExpirationSweeper) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
	<-s.doneCh
	s.log.Info("Expiration sweeper stopped")
}

// Sweep runs one expiry and warning pass
func (s *ExpirationSweeper) Sweep(ctx context.Context) {
	started := time.Now()
	now := s.now()
	s.expireOverdue(ctx, now)
	s.warnExpiring(ctx, now)
	if s.metrics != nil {
		s.metrics.ObserveSweepDuration(time.Since(started).Seconds())
	}
}

func (s *ExpirationSweeper) expireOverdue(ctx context.Context, now time.Time) {
	subs, err := s.repo.ListExpired(ctx, now)
	if err != nil {
		s.log.Errorw("Failed to list expired subscriptions", "error", err)
		return
	}
	if len(subs) == 0 {
		return
	}

	var expired int
	for _, sub := range subs {
		swapped, err := s.repo.UpdateStatusIf(ctx, sub.ID, domain.SubscriptionStatusActive, domain.SubscriptionStatusExpired)
		if err != nil {
			s.log.Errorw("Failed to expire subscription", "error", err, "subscriptionID", sub.ID)
			continue
		}
		if !swapped {
			// Settled concurrently, by a status check or a cancel
			continue
		}

		expired++
		if s.cache != nil {
			if err := s.cache.Invalidate(ctx, sub.UserID); err != nil {
				s.log.Warnw("Failed to invalidate cached status", "error", err, "userID", sub.UserID)
			}
		}
		if s.metrics != nil {
			s.metrics.IncExpired(string(sub.Tier))
		}
		if s.dispatcher != nil {
			s.dispatcher.Enqueue(&domain.Notification{
				UserID:         sub.UserID,
				Kind:           domain.NotificationExpired,
				SubscriptionID: sub.ID,
				Tier:           sub.Tier,
				EndDate:        sub.EndDate,
			})
		}
	}

	s.log.Infow("Expiration sweep finished", "checked", len(subs), "expired", expired)
}

func (s *ExpirationSweeper) warnExpiring(ctx context.Context, now time.Time) {
	subs, err := s.repo.ListExpiringSoon(ctx, now, s.warnWindow)
	if err != nil {
		s.log.Errorw("Failed to list expiring subscriptions", "error", err)
		return
	}

	for _, sub := range subs {
		if err := s.repo.MarkExpiryWarned(ctx, sub.ID); err != nil {
			s.log.Errorw("Failed to mark subscription warned", "error", err, "subscriptionID", sub.ID)
			continue
		}
		if s.dispatcher != nil {
			s.dispatcher.Enqueue(&domain.Notification{
				UserID:         sub.UserID,
				Kind:           domain.NotificationExpiringSoon,
				SubscriptionID: sub.ID,
				Tier:           sub.Tier,
				EndDate:        sub.EndDate,
			})
		}
	}
}
