package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sunupay/subscription-service/internal/domain"
	"github.com/sunupay/subscription-service/internal/gateway"
	"github.com/sunupay/subscription-service/internal/metrics"
	"github.com/sunupay/subscription-service/internal/notification"
	"github.com/sunupay/subscription-service/internal/repository"
	"github.com/sunupay/subscription-service/pkg/logger"
)

// InitiateResult is the outcome of starting a subscription purchase
type InitiateResult struct {
	Subscription *domain.Subscription
	RedirectURL  string
}

// SubscriptionService drives the subscription lifecycle
type SubscriptionService interface {
	// Initiate starts a purchase: it creates a gateway payment session
	// and records a pending subscription tied to it.
	Initiate(ctx context.Context, userID, tierName, provider string) (*InitiateResult, error)
	// ApplyGatewayOutcome settles a pending subscription from a verified
	// gateway callback. Redelivered callbacks are no-ops.
	ApplyGatewayOutcome(ctx context.Context, event *domain.GatewayEvent) error
	// CheckStatus reports whether the user currently has an active
	// subscription, demoting it first if its end date has passed.
	CheckStatus(ctx context.Context, userID string) (*domain.SubscriptionStatusView, error)
	History(ctx context.Context, userID string) ([]*domain.Subscription, error)
	// Cancel ends an active subscription immediately. Only the owner may
	// cancel, and only from the active status.
	Cancel(ctx context.Context, id uuid.UUID, requestingUserID string) (*domain.Subscription, error)
}

// StatusCache caches per-user status views. Implementations may be nil
// (caching disabled).
type StatusCache interface {
	GetStatus(ctx context.Context, userID string) (*domain.SubscriptionStatusView, error)
	SetStatus(ctx context.Context, userID string, view *domain.SubscriptionStatusView) error
	Invalidate(ctx context.Context, userID string) error
}

type subscriptionService struct {
	repo       repository.SubscriptionRepository
	gateways   map[string]gateway.Client
	dispatcher *notification.Dispatcher
	cache      StatusCache
	metrics    metrics.SubscriptionMetrics
	log        *logger.Logger
	now        func() time.Time
}

// NewSubscriptionService creates the subscription lifecycle service.
// cache and metrics may be nil.
func NewSubscriptionService(
	repo repository.SubscriptionRepository,
	gateways map[string]gateway.Client,
	dispatcher *notification.Dispatcher,
	cache StatusCache,
	m metrics.SubscriptionMetrics,
	log *logger.Logger,
) SubscriptionService {
	return &subscriptionService{
		repo:       repo,
		gateways:   gateways,
		dispatcher: dispatcher,
		cache:      cache,
		metrics:    m,
		log:        log,
		now:        time.Now,
	}
}

func (s *subscriptionService) Initiate(ctx context.Context, userID, tierName, provider string) (*InitiateResult, error) {
	tier, err := domain.ParseTier(tierName)
	if err != nil {
		return nil, err
	}

	client, ok := s.gateways[provider]
	if !ok {
		return nil, fmt.Errorf("%w: unknown provider %q", domain.ErrGatewayUnavailable, provider)
	}

	now := s.now()
	if current, err := s.repo.GetLatestActiveByUser(ctx, userID); err == nil {
		if current.IsCurrent(now) {
			return nil, domain.ErrAlreadySubscribed
		}
		// The active record is stale, demote it before selling a new one
		s.demote(ctx, current)
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("failed to check current subscription: %w", err)
	}

	id := uuid.New()
	started := s.now()
	result, err := client.CreateCharge(ctx, gateway.Charge{
		ReferenceID: id.String(),
		UserID:      userID,
		Tier:        tier,
		Amount:      tier.Amount(),
		Currency:    domain.Currency,
		Description: fmt.Sprintf("%s subscription", tier),
	})
	if s.metrics != nil {
		s.metrics.ObserveGatewayLatency(client.Name(), time.Since(started).Seconds())
	}
	if err != nil {
		s.log.Errorw("Gateway charge creation failed", "error", err, "userID", userID, "provider", provider)
		return nil, err
	}

	sub := &domain.Subscription{
		ID:         id,
		UserID:     userID,
		Tier:       tier,
		Status:     domain.SubscriptionStatusPending,
		Amount:     tier.Amount(),
		Currency:   domain.Currency,
		GatewayRef: result.TransactionID,
		Provider:   client.Name(),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repo.Create(ctx, sub); err != nil {
		s.log.Errorw("Failed to persist pending subscription", "error", err, "subscriptionID", id)
		return nil, domain.NewSubscriptionError("PERSIST_FAILED", "failed to record pending subscription", id.String(), err)
	}

	if s.metrics != nil {
		s.metrics.IncInitiated(string(tier))
	}
	s.log.Infow("Subscription initiated",
		"subscriptionID", id, "userID", userID, "tier", tier, "provider", client.Name())

	return &InitiateResult{
		Subscription: sub,
		RedirectURL:  result.RedirectURL,
	}, nil
}

func (s *subscriptionService) ApplyGatewayOutcome(ctx context.Context, event *domain.GatewayEvent) error {
	sub, err := s.repo.GetByGatewayRef(ctx, event.Provider, event.TransactionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.ErrUnknownTransaction
		}
		return fmt.Errorf("failed to look up transaction: %w", err)
	}

	if sub.Status != domain.SubscriptionStatusPending {
		// Gateways redeliver callbacks; a settled record stays as is
		s.log.Infow("Ignoring callback for settled subscription",
			"subscriptionID", sub.ID, "status", sub.Status, "provider", event.Provider)
		return nil
	}

	switch event.Outcome {
	case domain.GatewayOutcomeSuccess:
		return s.activate(ctx, sub)
	default:
		return s.reject(ctx, sub)
	}
}

func (s *subscriptionService) activate(ctx context.Context, sub *domain.Subscription) error {
	start := s.now()
	end := start.Add(sub.Tier.Duration())

	swapped, err := s.repo.Activate(ctx, sub.ID, start, end)
	if err != nil {
		return fmt.Errorf("failed to activate subscription: %w", err)
	}
	if !swapped {
		// Lost the race against another delivery of the same callback
		return nil
	}

	s.invalidate(ctx, sub.UserID)
	if s.metrics != nil {
		s.metrics.IncActivated(string(sub.Tier))
	}
	s.notify(&domain.Notification{
		UserID:         sub.UserID,
		Kind:           domain.NotificationActivated,
		SubscriptionID: sub.ID,
		Tier:           sub.Tier,
		EndDate:        &end,
	})

	s.log.Infow("Subscription activated",
		"subscriptionID", sub.ID, "userID", sub.UserID, "tier", sub.Tier, "endDate", end)
	return nil
}

func (s *subscriptionService) reject(ctx context.Context, sub *domain.Subscription) error {
	swapped, err := s.repo.UpdateStatusIf(ctx, sub.ID, domain.SubscriptionStatusPending, domain.SubscriptionStatusCancelled)
	if err != nil {
		return fmt.Errorf("failed to cancel subscription: %w", err)
	}
	if !swapped {
		return nil
	}

	if s.metrics != nil {
		s.metrics.IncPaymentFailed(string(sub.Tier))
	}
	s.notify(&domain.Notification{
		UserID:         sub.UserID,
		Kind:           domain.NotificationFailed,
		SubscriptionID: sub.ID,
		Tier:           sub.Tier,
	})

	s.log.Infow("Subscription payment failed",
		"subscriptionID", sub.ID, "userID", sub.UserID, "tier", sub.Tier)
	return nil
}

func (s *subscriptionService) CheckStatus(ctx context.Context, userID string) (*domain.SubscriptionStatusView, error) {
	if s.cache != nil {
		if view, err := s.cache.GetStatus(ctx, userID); err == nil && view != nil {
			// A view cached while the record was active can outlive the
			// end date; treat it as a miss so the store path demotes.
			if !view.IsActive || (view.EndDate != nil && view.EndDate.After(s.now())) {
				return view, nil
			}
		}
	}

	sub, err := s.repo.GetLatestActiveByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			view := &domain.SubscriptionStatusView{IsActive: false}
			s.cacheStatus(ctx, userID, view)
			return view, nil
		}
		return nil, fmt.Errorf("failed to query subscription status: %w", err)
	}

	now := s.now()
	if !sub.IsCurrent(now) {
		s.demote(ctx, sub)
		view := &domain.SubscriptionStatusView{IsActive: false}
		s.cacheStatus(ctx, userID, view)
		return view, nil
	}

	view := &domain.SubscriptionStatusView{
		IsActive: true,
		Tier:     sub.Tier,
		EndDate:  sub.EndDate,
	}
	s.cacheStatus(ctx, userID, view)
	return view, nil
}

// demote moves an overdue active subscription to expired and emits the
// expiry notification if this caller won the transition.
func (s *subscriptionService) demote(ctx context.Context, sub *domain.Subscription) {
	swapped, err := s.repo.UpdateStatusIf(ctx, sub.ID, domain.SubscriptionStatusActive, domain.SubscriptionStatusExpired)
	if err != nil {
		s.log.Errorw("Failed to expire subscription", "error", err, "subscriptionID", sub.ID)
		return
	}
	if !swapped {
		return
	}

	s.invalidate(ctx, sub.UserID)
	if s.metrics != nil {
		s.metrics.IncExpired(string(sub.Tier))
	}
	s.notify(&domain.Notification{
		UserID:         sub.UserID,
		Kind:           domain.NotificationExpired,
		SubscriptionID: sub.ID,
		Tier:           sub.Tier,
		EndDate:        sub.EndDate,
	})

	s.log.Infow("Subscription expired",
		"subscriptionID", sub.ID, "userID", sub.UserID, "tier", sub.Tier)
}

func (s *subscriptionService) History(ctx context.Context, userID string) ([]*domain.Subscription, error) {
	subs, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	return subs, nil
}

func (s *subscriptionService) Cancel(ctx context.Context, id uuid.UUID, requestingUserID string) (*domain.Subscription, error) {
	sub, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}

	if sub.UserID != requestingUserID {
		return nil, domain.ErrForbidden
	}
	if sub.Status != domain.SubscriptionStatusActive {
		return nil, domain.ErrInvalidState
	}

	swapped, err := s.repo.UpdateStatusIf(ctx, id, domain.SubscriptionStatusActive, domain.SubscriptionStatusCancelled)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel subscription: %w", err)
	}
	if !swapped {
		return nil, domain.ErrInvalidState
	}

	sub.Status = domain.SubscriptionStatusCancelled
	s.invalidate(ctx, sub.UserID)
	if s.metrics != nil {
		s.metrics.IncCancelled(string(sub.Tier))
	}
	s.notify(&domain.Notification{
		UserID:         sub.UserID,
		Kind:           domain.NotificationCancelled,
		SubscriptionID: sub.ID,
		Tier:           sub.Tier,
	})

	s.log.Infow("Subscription cancelled",
		"subscriptionID", sub.ID, "userID", sub.UserID, "tier", sub.Tier)
	return sub, nil
}

func (s *subscriptionService) notify(n *domain.Notification) {
	if s.dispatcher != nil {
		s.dispatcher.Enqueue(n)
	}
}

func (s *subscriptionService) cacheStatus(ctx context.Context, userID string, view *domain.SubscriptionStatusView) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SetStatus(ctx, userID, view); err != nil {
		s.log.Warnw("Failed to cache status", "error", err, "userID", userID)
	}
}

func (s *subscriptionService) invalidate(ctx context.Context, userID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, userID); err != nil {
		s.log.Warnw("Failed to invalidate cached status", "error", err, "userID", userID)
	}
}
