package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/sunupay/subscription-service/internal/domain"
)

func newPendingSubscription(userID, ref string) *domain.Subscription {
	now := time.Now()
	return &domain.Subscription{
		ID:         uuid.New(),
		UserID:     userID,
		Tier:       domain.TierStudent,
		Status:     domain.SubscriptionStatusPending,
		Amount:     domain.TierStudent.Amount(),
		Currency:   domain.Currency,
		GatewayRef: ref,
		Provider:   "paytech",
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func TestCreateAndGet(t *testing.T) {
	repo := NewInMemorySubscriptionRepository()
	ctx := context.Background()

	sub := newPendingSubscription("user-1", "tx-1")
	if err := repo.Create(ctx, sub); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	got, err := repo.GetByID(ctx, sub.ID)
	if err != nil {
		t.Fatalf("GetByID returned error: %v", err)
	}
	if got.UserID != "user-1" || got.Status != domain.SubscriptionStatusPending {
		t.Fatalf("unexpected subscription: %+v", got)
	}

	got, err = repo.GetByGatewayRef(ctx, "paytech", "tx-1")
	if err != nil {
		t.Fatalf("GetByGatewayRef returned error: %v", err)
	}
	if got.ID != sub.ID {
		t.Fatalf("GetByGatewayRef returned wrong record: %s", got.ID)
	}

	if _, err := repo.GetByGatewayRef(ctx, "cinetpay", "tx-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for wrong provider, got %v", err)
	}
}

func TestCreateRejectsDuplicateGatewayRef(t *testing.T) {
	repo := NewInMemorySubscriptionRepository()
	ctx := context.Background()

	if err := repo.Create(ctx, newPendingSubscription("user-1", "tx-1")); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if err := repo.Create(ctx, newPendingSubscription("user-2", "tx-1")); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}

func TestActivateOnlyFromPending(t *testing.T) {
	repo := NewInMemorySubscriptionRepository()
	ctx := context.Background()

	sub := newPendingSubscription("user-1", "tx-1")
	if err := repo.Create(ctx, sub); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	start := time.Now()
	end := start.Add(30 * 24 * time.Hour)

	swapped, err := repo.Activate(ctx, sub.ID, start, end)
	if err != nil {
		t.Fatalf("Activate returned error: %v", err)
	}
	if !swapped {
		t.Fatal("expected first activation to swap")
	}

	// A redelivered callback must not re-activate
	swapped, err = repo.Activate(ctx, sub.ID, start, end)
	if err != nil {
		t.Fatalf("second Activate returned error: %v", err)
	}
	if swapped {
		t.Fatal("expected second activation to be a no-op")
	}

	got, _ := repo.GetByID(ctx, sub.ID)
	if got.Status != domain.SubscriptionStatusActive || got.EndDate == nil {
		t.Fatalf("unexpected record after activation: %+v", got)
	}
}

func TestUpdateStatusIf(t *testing.T) {
	repo := NewInMemorySubscriptionRepository()
	ctx := context.Background()

	sub := newPendingSubscription("user-1", "tx-1")
	if err := repo.Create(ctx, sub); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	swapped, err := repo.UpdateStatusIf(ctx, sub.ID, domain.SubscriptionStatusActive, domain.SubscriptionStatusExpired)
	if err != nil {
		t.Fatalf("UpdateStatusIf returned error: %v", err)
	}
	if swapped {
		t.Fatal("expected swap from wrong status to fail")
	}

	swapped, err = repo.UpdateStatusIf(ctx, sub.ID, domain.SubscriptionStatusPending, domain.SubscriptionStatusCancelled)
	if err != nil {
		t.Fatalf("UpdateStatusIf returned error: %v", err)
	}
	if !swapped {
		t.Fatal("expected swap from pending to succeed")
	}

	if _, err := repo.UpdateStatusIf(ctx, uuid.New(), domain.SubscriptionStatusPending, domain.SubscriptionStatusCancelled); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing record, got %v", err)
	}
}

func TestGetLatestActiveByUser(t *testing.T) {
	repo := NewInMemorySubscriptionRepository()
	ctx := context.Background()

	if _, err := repo.GetLatestActiveByUser(ctx, "user-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	older := newPendingSubscription("user-1", "tx-1")
	older.Status = domain.SubscriptionStatusExpired
	older.CreatedAt = time.Now().Add(-48 * time.Hour)
	newer := newPendingSubscription("user-1", "tx-2")
	newer.Status = domain.SubscriptionStatusActive
	for _, sub := range []*domain.Subscription{older, newer} {
		if err := repo.Create(ctx, sub); err != nil {
			t.Fatalf("Create returned error: %v", err)
		}
	}

	got, err := repo.GetLatestActiveByUser(ctx, "user-1")
	if err != nil {
		t.Fatalf("GetLatestActiveByUser returned error: %v", err)
	}
	if got.ID != newer.ID {
		t.Fatalf("expected newest active record, got %s", got.ID)
	}
}

func TestListExpiredAndExpiringSoon(t *testing.T) {
	repo := NewInMemorySubscriptionRepository()
	ctx := context.Background()
	now := time.Now()

	overdue := newPendingSubscription("user-1", "tx-1")
	overdue.Status = domain.SubscriptionStatusActive
	past := now.Add(-time.Hour)
	overdue.EndDate = &past

	soon := newPendingSubscription("user-2", "tx-2")
	soon.Status = domain.SubscriptionStatusActive
	in2d := now.Add(48 * time.Hour)
	soon.EndDate = &in2d

	warned := newPendingSubscription("user-3", "tx-3")
	warned.Status = domain.SubscriptionStatusActive
	warned.EndDate = &in2d
	warned.ExpiryWarned = true

	healthy := newPendingSubscription("user-4", "tx-4")
	healthy.Status = domain.SubscriptionStatusActive
	in30d := now.Add(30 * 24 * time.Hour)
	healthy.EndDate = &in30d

	for _, sub := range []*domain.Subscription{overdue, soon, warned, healthy} {
		if err := repo.Create(ctx, sub); err != nil {
			t.Fatalf("Create returned error: %v", err)
		}
	}

	expired, err := repo.ListExpired(ctx, now)
	if err != nil {
		t.Fatalf("ListExpired returned error: %v", err)
	}
	if len(expired) != 1 || expired[0].ID != overdue.ID {
		t.Fatalf("ListExpired returned %d records, want the overdue one", len(expired))
	}

	expiring, err := repo.ListExpiringSoon(ctx, now, 72*time.Hour)
	if err != nil {
		t.Fatalf("ListExpiringSoon returned error: %v", err)
	}
	if len(expiring) != 1 || expiring[0].ID != soon.ID {
		t.Fatalf("ListExpiringSoon returned %d records, want the unwarned one", len(expiring))
	}
}

func TestListByUserOrdering(t *testing.T) {
	repo := NewInMemorySubscriptionRepository()
	ctx := context.Background()

	first := newPendingSubscription("user-1", "tx-1")
	first.CreatedAt = time.Now().Add(-time.Hour)
	second := newPendingSubscription("user-1", "tx-2")
	other := newPendingSubscription("user-2", "tx-3")
	for _, sub := range []*domain.Subscription{first, second, other} {
		if err := repo.Create(ctx, sub); err != nil {
			t.Fatalf("Create returned error: %v", err)
		}
	}

	subs, err := repo.ListByUser(ctx, "user-1")
	if err != nil {
		t.Fatalf("ListByUser returned error: %v", err)
	}
	if len(subs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(subs))
	}
	if subs[0].ID != second.ID {
		t.Fatal("expected newest record first")
	}
}
