package domain

import (
	"time"

	"github.com/google/uuid"
)

// NotificationKind classifies subscription notices
type NotificationKind string

const (
	NotificationActivated    NotificationKind = "activated"
	NotificationFailed       NotificationKind = "failed"
	NotificationExpiringSoon NotificationKind = "expiring_soon"
	NotificationExpired      NotificationKind = "expired"
	NotificationCancelled    NotificationKind = "cancelled"
)

// Notification is a fire-and-forget notice about a subscription transition.
// Delivery is best effort and never feeds back into subscription state.
type Notification struct {
	UserID         string           `json:"user_id"`
	Kind           NotificationKind `json:"kind"`
	SubscriptionID uuid.UUID        `json:"subscription_id"`
	Tier           Tier             `json:"tier"`
	EndDate        *time.Time       `json:"end_date,omitempty"`
	Contact        *Contact         `json:"contact,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
}
