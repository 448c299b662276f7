package service

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/sunupay/subscription-service/internal/domain"
	"github.com/sunupay/subscription-service/internal/gateway"
	"github.com/sunupay/subscription-service/internal/notification"
	"github.com/sunupay/subscription-service/internal/repository"
	"github.com/sunupay/subscription-service/pkg/logger"
)

func newTestLogger() *logger.Logger {
	log := logger.New(logger.ERROR)
	log.SetOutput(io.Discard)
	return log
}

type fakeGateway struct {
	name   string
	result *gateway.ChargeResult
	err    error
	calls  int
}

func (g *fakeGateway) Name() string { return g.name }

func (g *fakeGateway) CreateCharge(_ context.Context, _ gateway.Charge) (*gateway.ChargeResult, error) {
	g.calls++
	if g.err != nil {
		return nil, g.err
	}
	return g.result, nil
}

type recordingSink struct {
	mu    sync.Mutex
	kinds []domain.NotificationKind
}

func (s *recordingSink) Send(_ context.Context, n *domain.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kinds = append(s.kinds, n.Kind)
	return nil
}

func (s *recordingSink) recorded() []domain.NotificationKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.NotificationKind(nil), s.kinds...)
}

type memoryStatusCache struct {
	mu    sync.Mutex
	views map[string]*domain.SubscriptionStatusView
}

func newMemoryStatusCache() *memoryStatusCache {
	return &memoryStatusCache{views: make(map[string]*domain.SubscriptionStatusView)}
}

func (c *memoryStatusCache) GetStatus(_ context.Context, userID string) (*domain.SubscriptionStatusView, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.views[userID], nil
}

func (c *memoryStatusCache) SetStatus(_ context.Context, userID string, view *domain.SubscriptionStatusView) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.views[userID] = view
	return nil
}

func (c *memoryStatusCache) Invalidate(_ context.Context, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.views, userID)
	return nil
}

type fixture struct {
	svc     *subscriptionService
	repo    *repository.InMemorySubscriptionRepository
	gw      *fakeGateway
	sink    *recordingSink
	drainFn func()
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	log := newTestLogger()
	repo := repository.NewInMemorySubscriptionRepository()
	gw := &fakeGateway{
		name:   "paytech",
		result: &gateway.ChargeResult{TransactionID: "tx-1", RedirectURL: "https://pay.example/tx-1"},
	}
	sink := &recordingSink{}
	dispatcher := notification.NewDispatcher(sink, nil, 16, log)
	dispatcher.Start()
	t.Cleanup(dispatcher.Stop)

	svc := &subscriptionService{
		repo:       repo,
		gateways:   map[string]gateway.Client{"paytech": gw},
		dispatcher: dispatcher,
		log:        log,
		now:        time.Now,
	}
	return &fixture{svc: svc, repo: repo, gw: gw, sink: sink, drainFn: dispatcher.Stop}
}

// drain stops the dispatcher so queued notifications are flushed
func (f *fixture) drain() {
	f.drainFn()
}

func TestInitiateHappyPath(t *testing.T) {
	f := newFixture(t)

	result, err := f.svc.Initiate(context.Background(), "user-1", "student", "paytech")
	if err != nil {
		t.Fatalf("Initiate returned error: %v", err)
	}
	if result.RedirectURL != "https://pay.example/tx-1" {
		t.Fatalf("unexpected redirect URL: %s", result.RedirectURL)
	}

	sub := result.Subscription
	if sub.Status != domain.SubscriptionStatusPending {
		t.Fatalf("expected pending status, got %s", sub.Status)
	}
	if sub.GatewayRef != "tx-1" || sub.Provider != "paytech" {
		t.Fatalf("gateway reference not recorded: %+v", sub)
	}
	if sub.Amount != 2000 || sub.Currency != "XOF" {
		t.Fatalf("unexpected pricing: %d %s", sub.Amount, sub.Currency)
	}
	if sub.StartDate != nil || sub.EndDate != nil {
		t.Fatal("pending subscription must not carry dates yet")
	}
}

func TestInitiateInvalidTier(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Initiate(context.Background(), "user-1", "platinum", "paytech")
	if !errors.Is(err, domain.ErrInvalidTier) {
		t.Fatalf("expected ErrInvalidTier, got %v", err)
	}
	if f.gw.calls != 0 {
		t.Fatal("gateway must not be called for an invalid tier")
	}
}

func TestInitiateAlreadySubscribed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Initiate(ctx, "user-1", "student", "paytech"); err != nil {
		t.Fatalf("Initiate returned error: %v", err)
	}
	if err := f.svc.ApplyGatewayOutcome(ctx, &domain.GatewayEvent{
		TransactionID: "tx-1", Outcome: domain.GatewayOutcomeSuccess, Provider: "paytech",
	}); err != nil {
		t.Fatalf("ApplyGatewayOutcome returned error: %v", err)
	}

	_, err := f.svc.Initiate(ctx, "user-1", "recruiter", "paytech")
	if !errors.Is(err, domain.ErrAlreadySubscribed) {
		t.Fatalf("expected ErrAlreadySubscribed, got %v", err)
	}
}

func TestInitiateGatewayDownLeavesNoRecord(t *testing.T) {
	f := newFixture(t)
	f.gw.err = domain.NewExternalServiceError("paytech", "REQUEST_FAILED", "connection refused", 0, nil)

	_, err := f.svc.Initiate(context.Background(), "user-1", "student", "paytech")
	if !errors.Is(err, domain.ErrGatewayUnavailable) {
		t.Fatalf("expected ErrGatewayUnavailable, got %v", err)
	}

	subs, err := f.repo.ListByUser(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("ListByUser returned error: %v", err)
	}
	if len(subs) != 0 {
		t.Fatalf("expected no orphan record, found %d", len(subs))
	}
}

func TestInitiateUnknownProvider(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Initiate(context.Background(), "user-1", "student", "wave")
	if !errors.Is(err, domain.ErrGatewayUnavailable) {
		t.Fatalf("expected ErrGatewayUnavailable, got %v", err)
	}
}

func TestApplyGatewayOutcomeSuccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result, err := f.svc.Initiate(ctx, "user-1", "advertiser", "paytech")
	if err != nil {
		t.Fatalf("Initiate returned error: %v", err)
	}

	if err := f.svc.ApplyGatewayOutcome(ctx, &domain.GatewayEvent{
		TransactionID: "tx-1", Outcome: domain.GatewayOutcomeSuccess, Provider: "paytech",
	}); err != nil {
		t.Fatalf("ApplyGatewayOutcome returned error: %v", err)
	}

	sub, err := f.repo.GetByID(ctx, result.Subscription.ID)
	if err != nil {
		t.Fatalf("GetByID returned error: %v", err)
	}
	if sub.Status != domain.SubscriptionStatusActive {
		t.Fatalf("expected active status, got %s", sub.Status)
	}
	if sub.EndDate == nil {
		t.Fatal("activation must stamp the end date")
	}
	wantEnd := time.Now().Add(30 * 24 * time.Hour)
	if diff := sub.EndDate.Sub(wantEnd); diff > time.Minute || diff < -time.Minute {
		t.Fatalf("end date %s not 30 days out", sub.EndDate)
	}

	f.drain()
	kinds := f.sink.recorded()
	if len(kinds) != 1 || kinds[0] != domain.NotificationActivated {
		t.Fatalf("expected one activated notification, got %v", kinds)
	}
}

func TestApplyGatewayOutcomeFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result, err := f.svc.Initiate(ctx, "user-1", "student", "paytech")
	if err != nil {
		t.Fatalf("Initiate returned error: %v", err)
	}

	if err := f.svc.ApplyGatewayOutcome(ctx, &domain.GatewayEvent{
		TransactionID: "tx-1", Outcome: domain.GatewayOutcomeFailure, Provider: "paytech",
	}); err != nil {
		t.Fatalf("ApplyGatewayOutcome returned error: %v", err)
	}

	sub, _ := f.repo.GetByID(ctx, result.Subscription.ID)
	if sub.Status != domain.SubscriptionStatusCancelled {
		t.Fatalf("expected cancelled status, got %s", sub.Status)
	}

	f.drain()
	kinds := f.sink.recorded()
	if len(kinds) != 1 || kinds[0] != domain.NotificationFailed {
		t.Fatalf("expected one failed notification, got %v", kinds)
	}
}

func TestApplyGatewayOutcomeReplayIsNoOp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result, err := f.svc.Initiate(ctx, "user-1", "student", "paytech")
	if err != nil {
		t.Fatalf("Initiate returned error: %v", err)
	}

	event := &domain.GatewayEvent{
		TransactionID: "tx-1", Outcome: domain.GatewayOutcomeSuccess, Provider: "paytech",
	}
	if err := f.svc.ApplyGatewayOutcome(ctx, event); err != nil {
		t.Fatalf("first delivery returned error: %v", err)
	}
	first, _ := f.repo.GetByID(ctx, result.Subscription.ID)

	// A second delivery, even with the opposite outcome, changes nothing
	if err := f.svc.ApplyGatewayOutcome(ctx, event); err != nil {
		t.Fatalf("replay returned error: %v", err)
	}
	if err := f.svc.ApplyGatewayOutcome(ctx, &domain.GatewayEvent{
		TransactionID: "tx-1", Outcome: domain.GatewayOutcomeFailure, Provider: "paytech",
	}); err != nil {
		t.Fatalf("conflicting replay returned error: %v", err)
	}

	second, _ := f.repo.GetByID(ctx, result.Subscription.ID)
	if second.Status != domain.SubscriptionStatusActive || !second.EndDate.Equal(*first.EndDate) {
		t.Fatalf("replay mutated the record: %+v", second)
	}

	f.drain()
	if kinds := f.sink.recorded(); len(kinds) != 1 {
		t.Fatalf("expected a single notification, got %v", kinds)
	}
}

func TestApplyGatewayOutcomeUnknownTransaction(t *testing.T) {
	f := newFixture(t)

	err := f.svc.ApplyGatewayOutcome(context.Background(), &domain.GatewayEvent{
		TransactionID: "tx-missing", Outcome: domain.GatewayOutcomeSuccess, Provider: "paytech",
	})
	if !errors.Is(err, domain.ErrUnknownTransaction) {
		t.Fatalf("expected ErrUnknownTransaction, got %v", err)
	}
}

func TestCheckStatusLazyDemotion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result, err := f.svc.Initiate(ctx, "user-1", "student", "paytech")
	if err != nil {
		t.Fatalf("Initiate returned error: %v", err)
	}
	if err := f.svc.ApplyGatewayOutcome(ctx, &domain.GatewayEvent{
		TransactionID: "tx-1", Outcome: domain.GatewayOutcomeSuccess, Provider: "paytech",
	}); err != nil {
		t.Fatalf("ApplyGatewayOutcome returned error: %v", err)
	}

	view, err := f.svc.CheckStatus(ctx, "user-1")
	if err != nil {
		t.Fatalf("CheckStatus returned error: %v", err)
	}
	if !view.IsActive || view.Tier != domain.TierStudent {
		t.Fatalf("expected active student view, got %+v", view)
	}

	// Jump past the end date; the next check must demote the record
	f.svc.now = func() time.Time { return time.Now().Add(31 * 24 * time.Hour) }

	view, err = f.svc.CheckStatus(ctx, "user-1")
	if err != nil {
		t.Fatalf("CheckStatus returned error: %v", err)
	}
	if view.IsActive {
		t.Fatal("expected inactive view after the end date passed")
	}

	sub, _ := f.repo.GetByID(ctx, result.Subscription.ID)
	if sub.Status != domain.SubscriptionStatusExpired {
		t.Fatalf("expected expired status, got %s", sub.Status)
	}

	f.drain()
	kinds := f.sink.recorded()
	if len(kinds) != 2 || kinds[1] != domain.NotificationExpired {
		t.Fatalf("expected activated then expired notifications, got %v", kinds)
	}
}

func TestCheckStatusStaleCachedViewDemotes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cache := newMemoryStatusCache()
	f.svc.cache = cache

	result, err := f.svc.Initiate(ctx, "user-1", "student", "paytech")
	if err != nil {
		t.Fatalf("Initiate returned error: %v", err)
	}
	if err := f.svc.ApplyGatewayOutcome(ctx, &domain.GatewayEvent{
		TransactionID: "tx-1", Outcome: domain.GatewayOutcomeSuccess, Provider: "paytech",
	}); err != nil {
		t.Fatalf("ApplyGatewayOutcome returned error: %v", err)
	}

	// Warm the cache with the active view
	view, err := f.svc.CheckStatus(ctx, "user-1")
	if err != nil {
		t.Fatalf("CheckStatus returned error: %v", err)
	}
	if !view.IsActive {
		t.Fatalf("expected active view, got %+v", view)
	}
	if cached, _ := cache.GetStatus(ctx, "user-1"); cached == nil || !cached.IsActive {
		t.Fatal("expected the active view to be cached")
	}

	// The cached view still says active, but the end date has passed;
	// the check must not trust it
	f.svc.now = func() time.Time { return time.Now().Add(31 * 24 * time.Hour) }

	view, err = f.svc.CheckStatus(ctx, "user-1")
	if err != nil {
		t.Fatalf("CheckStatus returned error: %v", err)
	}
	if view.IsActive {
		t.Fatal("cached view reported active past the end date")
	}

	sub, _ := f.repo.GetByID(ctx, result.Subscription.ID)
	if sub.Status != domain.SubscriptionStatusExpired {
		t.Fatalf("expected expired status, got %s", sub.Status)
	}
}

func TestCheckStatusNoSubscription(t *testing.T) {
	f := newFixture(t)

	view, err := f.svc.CheckStatus(context.Background(), "user-unknown")
	if err != nil {
		t.Fatalf("CheckStatus returned error: %v", err)
	}
	if view.IsActive {
		t.Fatal("expected inactive view for unknown user")
	}
}

func TestCancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result, err := f.svc.Initiate(ctx, "user-1", "student", "paytech")
	if err != nil {
		t.Fatalf("Initiate returned error: %v", err)
	}
	id := result.Subscription.ID

	// Pending records cannot be cancelled through the API
	if _, err := f.svc.Cancel(ctx, id, "user-1"); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState for pending record, got %v", err)
	}

	if err := f.svc.ApplyGatewayOutcome(ctx, &domain.GatewayEvent{
		TransactionID: "tx-1", Outcome: domain.GatewayOutcomeSuccess, Provider: "paytech",
	}); err != nil {
		t.Fatalf("ApplyGatewayOutcome returned error: %v", err)
	}

	if _, err := f.svc.Cancel(ctx, id, "user-2"); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected ErrForbidden for non-owner, got %v", err)
	}

	sub, err := f.svc.Cancel(ctx, id, "user-1")
	if err != nil {
		t.Fatalf("Cancel returned error: %v", err)
	}
	if sub.Status != domain.SubscriptionStatusCancelled {
		t.Fatalf("expected cancelled status, got %s", sub.Status)
	}

	// Terminal records stay terminal
	if _, err := f.svc.Cancel(ctx, id, "user-1"); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState for cancelled record, got %v", err)
	}

	if _, err := f.svc.Cancel(ctx, uuid.New(), "user-1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing record, got %v", err)
	}
}

func TestInitiateAfterStaleActive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Initiate(ctx, "user-1", "student", "paytech"); err != nil {
		t.Fatalf("Initiate returned error: %v", err)
	}
	if err := f.svc.ApplyGatewayOutcome(ctx, &domain.GatewayEvent{
		TransactionID: "tx-1", Outcome: domain.GatewayOutcomeSuccess, Provider: "paytech",
	}); err != nil {
		t.Fatalf("ApplyGatewayOutcome returned error: %v", err)
	}

	// Past the end date the stale record must not block a new purchase
	f.svc.now = func() time.Time { return time.Now().Add(31 * 24 * time.Hour) }
	f.gw.result = &gateway.ChargeResult{TransactionID: "tx-2", RedirectURL: "https://pay.example/tx-2"}

	result, err := f.svc.Initiate(ctx, "user-1", "recruiter", "paytech")
	if err != nil {
		t.Fatalf("Initiate after expiry returned error: %v", err)
	}
	if result.Subscription.GatewayRef != "tx-2" {
		t.Fatalf("unexpected gateway ref: %s", result.Subscription.GatewayRef)
	}

	subs, _ := f.repo.ListByUser(ctx, "user-1")
	if len(subs) != 2 {
		t.Fatalf("renewal must create a new record, found %d", len(subs))
	}
}
