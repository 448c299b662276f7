package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// SubscriptionStatus is the lifecycle status of a subscription
type SubscriptionStatus string

const (
	SubscriptionStatusPending   SubscriptionStatus = "pending"
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
	SubscriptionStatusExpired   SubscriptionStatus = "expired"
)

// Terminal reports whether the status admits no further transitions.
func (s SubscriptionStatus) Terminal() bool {
	return s == SubscriptionStatusCancelled || s == SubscriptionStatusExpired
}

// Tier is a subscription plan with a fixed price and duration
type Tier string

const (
	TierStudent    Tier = "student"
	TierAdvertiser Tier = "advertiser"
	TierRecruiter  Tier = "recruiter"
)

// tierCatalog holds the fixed pricing of each tier.
// Amounts are in XOF; the gateways bill in whole francs.
var tierCatalog = map[Tier]struct {
	amount       int64
	durationDays int
}{
	TierStudent:    {amount: 2000, durationDays: 30},
	TierAdvertiser: {amount: 5000, durationDays: 30},
	TierRecruiter:  {amount: 10000, durationDays: 30},
}

// Currency is the billing currency for all tiers
const Currency = "XOF"

// ParseTier maps a client-supplied plan name to a Tier. The historical
// frontend submits French plan names, so those aliases stay accepted.
func ParseTier(s string) (Tier, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "student", "etudiant":
		return TierStudent, nil
	case "advertiser", "annonceur":
		return TierAdvertiser, nil
	case "recruiter", "recruteur":
		return TierRecruiter, nil
	default:
		return "", ErrInvalidTier
	}
}

// Valid reports whether the tier is part of the catalog.
func (t Tier) Valid() bool {
	_, ok := tierCatalog[t]
	return ok
}

// Tiers lists the sellable tiers.
func Tiers() []Tier {
	return []Tier{TierStudent, TierAdvertiser, TierRecruiter}
}

// Amount returns the tier price in XOF.
func (t Tier) Amount() int64 {
	return tierCatalog[t].amount
}

// Duration returns the access period granted by one purchase of the tier.
func (t Tier) Duration() time.Duration {
	return time.Duration(tierCatalog[t].durationDays) * 24 * time.Hour
}

// Subscription is the central entity: one purchase attempt of one tier by
// one user. Records are never deleted; terminal records stay for audit and
// payment-history queries. Renewal creates a new record, it never extends
// an old one.
type Subscription struct {
	ID           uuid.UUID          `json:"id"`
	UserID       string             `json:"user_id"`
	Tier         Tier               `json:"tier"`
	Status       SubscriptionStatus `json:"status"`
	Amount       int64              `json:"amount"`
	Currency     string             `json:"currency"`
	StartDate    *time.Time         `json:"start_date,omitempty"`
	EndDate      *time.Time         `json:"end_date,omitempty"`
	GatewayRef   string             `json:"gateway_ref"` // gateway transaction id, unique
	Provider     string             `json:"provider"`
	ExpiryWarned bool               `json:"expiry_warned"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

// IsCurrent reports whether the record grants access at the given instant.
func (s *Subscription) IsCurrent(now time.Time) bool {
	return s.Status == SubscriptionStatusActive && s.EndDate != nil && s.EndDate.After(now)
}

// SubscriptionStatusView is the answer to a status query
type SubscriptionStatusView struct {
	IsActive bool       `json:"is_active"`
	Tier     Tier       `json:"tier,omitempty"`
	EndDate  *time.Time `json:"end_date,omitempty"`
}

// Contact holds the details needed to reach a user about their subscription
type Contact struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}
