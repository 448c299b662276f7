package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sunupay/subscription-service/internal/domain"
	"github.com/sunupay/subscription-service/pkg/logger"
)

const subscriptionColumns = `
	id, user_id, tier, status, amount, currency,
	start_date, end_date, gateway_ref, provider,
	expiry_warned, created_at, updated_at`

// PostgresSubscriptionRepository persists subscriptions in PostgreSQL
type PostgresSubscriptionRepository struct {
	db  *pgxpool.Pool
	log *logger.Logger
}

// NewPostgresSubscriptionRepository creates a new PostgreSQL-backed repository
func NewPostgresSubscriptionRepository(db *pgxpool.Pool, log *logger.Logger) *PostgresSubscriptionRepository {
	return &PostgresSubscriptionRepository{
		db:  db,
		log: log,
	}
}

func scanSubscription(row pgx.Row) (*domain.Subscription, error) {
	var sub domain.Subscription
	err := row.Scan(
		&sub.ID,
		&sub.UserID,
		&sub.Tier,
		&sub.Status,
		&sub.Amount,
		&sub.Currency,
		&sub.StartDate,
		&sub.EndDate,
		&sub.GatewayRef,
		&sub.Provider,
		&sub.ExpiryWarned,
		&sub.CreatedAt,
		&sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *PostgresSubscriptionRepository) collect(rows pgx.Rows) ([]*domain.Subscription, error) {
	defer rows.Close()

	var result []*domain.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}
		result = append(result, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read subscriptions: %w", err)
	}
	return result, nil
}

func (r *PostgresSubscriptionRepository) Create(ctx context.Context, sub *domain.Subscription) error {
	query := `
		INSERT INTO subscriptions (
			id, user_id, tier, status, amount, currency,
			start_date, end_date, gateway_ref, provider,
			expiry_warned, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13
		)
		RETURNING created_at, updated_at
	`

	now := time.Now()
	err := r.db.QueryRow(
		ctx,
		query,
		sub.ID,
		sub.UserID,
		sub.Tier,
		sub.Status,
		sub.Amount,
		sub.Currency,
		sub.StartDate,
		sub.EndDate,
		sub.GatewayRef,
		sub.Provider,
		sub.ExpiryWarned,
		now,
		now,
	).Scan(&sub.CreatedAt, &sub.UpdatedAt)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to create subscription: %w", err)
	}

	return nil
}

func (r *PostgresSubscriptionRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Subscription, error) {
	query := `SELECT` + subscriptionColumns + `
		FROM subscriptions
		WHERE id = $1`

	sub, err := scanSubscription(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	return sub, nil
}

func (r *PostgresSubscriptionRepository) GetByGatewayRef(ctx context.Context, provider, ref string) (*domain.Subscription, error) {
	query := `SELECT` + subscriptionColumns + `
		FROM subscriptions
		WHERE provider = $1 AND gateway_ref = $2`

	sub, err := scanSubscription(r.db.QueryRow(ctx, query, provider, ref))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get subscription by gateway ref: %w", err)
	}
	return sub, nil
}

func (r *PostgresSubscriptionRepository) GetLatestActiveByUser(ctx context.Context, userID string) (*domain.Subscription, error) {
	query := `SELECT` + subscriptionColumns + `
		FROM subscriptions
		WHERE user_id = $1 AND status = $2
		ORDER BY created_at DESC
		LIMIT 1`

	sub, err := scanSubscription(r.db.QueryRow(ctx, query, userID, domain.SubscriptionStatusActive))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get active subscription: %w", err)
	}
	return sub, nil
}

func (r *PostgresSubscriptionRepository) ListByUser(ctx context.Context, userID string) ([]*domain.Subscription, error) {
	query := `SELECT` + subscriptionColumns + `
		FROM subscriptions
		WHERE user_id = $1
		ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	return r.collect(rows)
}

func (r *PostgresSubscriptionRepository) ListExpired(ctx context.Context, now time.Time) ([]*domain.Subscription, error) {
	query := `SELECT` + subscriptionColumns + `
		FROM subscriptions
		WHERE status = $1 AND end_date <= $2`

	rows, err := r.db.Query(ctx, query, domain.SubscriptionStatusActive, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired subscriptions: %w", err)
	}
	return r.collect(rows)
}

func (r *PostgresSubscriptionRepository) ListExpiringSoon(ctx context.Context, now time.Time, window time.Duration) ([]*domain.Subscription, error) {
	query := `SELECT` + subscriptionColumns + `
		FROM subscriptions
		WHERE status = $1 AND expiry_warned = FALSE
		  AND end_date > $2 AND end_date <= $3`

	rows, err := r.db.Query(ctx, query, domain.SubscriptionStatusActive, now, now.Add(window))
	if err != nil {
		return nil, fmt.Errorf("failed to list expiring subscriptions: %w", err)
	}
	return r.collect(rows)
}

func (r *PostgresSubscriptionRepository) Activate(ctx context.Context, id uuid.UUID, start, end time.Time) (bool, error) {
	query := `
		UPDATE subscriptions
		SET status = $1, start_date = $2, end_date = $3, updated_at = $4
		WHERE id = $5 AND status = $6
	`

	result, err := r.db.Exec(ctx, query, domain.SubscriptionStatusActive, start, end, time.Now(), id, domain.SubscriptionStatusPending)
	if err != nil {
		return false, fmt.Errorf("failed to activate subscription: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

func (r *PostgresSubscriptionRepository) UpdateStatusIf(ctx context.Context, id uuid.UUID, from, to domain.SubscriptionStatus) (bool, error) {
	query := `
		UPDATE subscriptions
		SET status = $1, updated_at = $2
		WHERE id = $3 AND status = $4
	`

	result, err := r.db.Exec(ctx, query, to, time.Now(), id, from)
	if err != nil {
		return false, fmt.Errorf("failed to update subscription status: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

func (r *PostgresSubscriptionRepository) MarkExpiryWarned(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE subscriptions
		SET expiry_warned = TRUE, updated_at = $1
		WHERE id = $2
	`

	result, err := r.db.Exec(ctx, query, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to mark subscription warned: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
