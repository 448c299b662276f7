package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sunupay/subscription-service/internal/domain"
)

// SubscriptionRepository defines persistence operations for subscriptions.
// Status transitions use compare-and-swap updates so that concurrent
// callbacks and the sweeper cannot double-apply a transition.
type SubscriptionRepository interface {
	Create(ctx context.Context, sub *domain.Subscription) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Subscription, error)
	GetByGatewayRef(ctx context.Context, provider, ref string) (*domain.Subscription, error)
	// GetLatestActiveByUser returns the newest active subscription for the
	// user, ErrNotFound when there is none.
	GetLatestActiveByUser(ctx context.Context, userID string) (*domain.Subscription, error)
	ListByUser(ctx context.Context, userID string) ([]*domain.Subscription, error)
	// ListExpired returns active subscriptions whose end date is at or
	// before now.
	ListExpired(ctx context.Context, now time.Time) ([]*domain.Subscription, error)
	// ListExpiringSoon returns active, not yet warned subscriptions whose
	// end date falls within the window after now.
	ListExpiringSoon(ctx context.Context, now time.Time, window time.Duration) ([]*domain.Subscription, error)
	// Activate moves a pending subscription to active and stamps its
	// dates. Returns false when the record was no longer pending.
	Activate(ctx context.Context, id uuid.UUID, start, end time.Time) (bool, error)
	// UpdateStatusIf moves a subscription from one status to another.
	// Returns false when the record was not in the expected status.
	UpdateStatusIf(ctx context.Context, id uuid.UUID, from, to domain.SubscriptionStatus) (bool, error)
	MarkExpiryWarned(ctx context.Context, id uuid.UUID) error
}

// InMemorySubscriptionRepository keeps subscriptions in a map. Used in
// tests and when no database DSN is configured.
type InMemorySubscriptionRepository struct {
	mu   sync.RWMutex
	subs map[uuid.UUID]*domain.Subscription
}

// NewInMemorySubscriptionRepository creates an empty in-memory repository
func NewInMemorySubscriptionRepository() *InMemorySubscriptionRepository {
	return &InMemorySubscriptionRepository{
		subs: make(map[uuid.UUID]*domain.Subscription),
	}
}

func (r *InMemorySubscriptionRepository) Create(_ context.Context, sub *domain.Subscription) error {
	if sub == nil || sub.UserID == "" {
		return ErrInvalidData
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.subs[sub.ID]; ok {
		return ErrDuplicate
	}
	for _, existing := range r.subs {
		if existing.Provider == sub.Provider && existing.GatewayRef == sub.GatewayRef {
			return ErrDuplicate
		}
	}

	cp := *sub
	r.subs[sub.ID] = &cp
	return nil
}

func (r *InMemorySubscriptionRepository) GetByID(_ context.Context, id uuid.UUID) (*domain.Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sub, ok := r.subs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *sub
	return &cp, nil
}

func (r *InMemorySubscriptionRepository) GetByGatewayRef(_ context.Context, provider, ref string) (*domain.Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, sub := range r.subs {
		if sub.Provider == provider && sub.GatewayRef == ref {
			cp := *sub
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (r *InMemorySubscriptionRepository) GetLatestActiveByUser(_ context.Context, userID string) (*domain.Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var latest *domain.Subscription
	for _, sub := range r.subs {
		if sub.UserID != userID || sub.Status != domain.SubscriptionStatusActive {
			continue
		}
		if latest == nil || sub.CreatedAt.After(latest.CreatedAt) {
			latest = sub
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

func (r *InMemorySubscriptionRepository) ListByUser(_ context.Context, userID string) ([]*domain.Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*domain.Subscription
	for _, sub := range r.subs {
		if sub.UserID == userID {
			cp := *sub
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (r *InMemorySubscriptionRepository) ListExpired(_ context.Context, now time.Time) ([]*domain.Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*domain.Subscription
	for _, sub := range r.subs {
		if sub.Status == domain.SubscriptionStatusActive && sub.EndDate != nil && !sub.EndDate.After(now) {
			cp := *sub
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (r *InMemorySubscriptionRepository) ListExpiringSoon(_ context.Context, now time.Time, window time.Duration) ([]*domain.Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	deadline := now.Add(window)
	var result []*domain.Subscription
	for _, sub := range r.subs {
		if sub.Status != domain.SubscriptionStatusActive || sub.ExpiryWarned || sub.EndDate == nil {
			continue
		}
		if sub.EndDate.After(now) && !sub.EndDate.After(deadline) {
			cp := *sub
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (r *InMemorySubscriptionRepository) Activate(_ context.Context, id uuid.UUID, start, end time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, ok := r.subs[id]
	if !ok {
		return false, ErrNotFound
	}
	if sub.Status != domain.SubscriptionStatusPending {
		return false, nil
	}
	sub.Status = domain.SubscriptionStatusActive
	sub.StartDate = &start
	sub.EndDate = &end
	sub.UpdatedAt = time.Now()
	return true, nil
}

func (r *InMemorySubscriptionRepository) UpdateStatusIf(_ context.Context, id uuid.UUID, from, to domain.SubscriptionStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, ok := r.subs[id]
	if !ok {
		return false, ErrNotFound
	}
	if sub.Status != from {
		return false, nil
	}
	sub.Status = to
	sub.UpdatedAt = time.Now()
	return true, nil
}

func (r *InMemorySubscriptionRepository) MarkExpiryWarned(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, ok := r.subs[id]
	if !ok {
		return ErrNotFound
	}
	sub.ExpiryWarned = true
	sub.UpdatedAt = time.Now()
	return nil
}
