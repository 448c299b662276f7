package directory

import (
	"context"
	"sync"

	"github.com/sunupay/subscription-service/internal/domain"
)

// UserDirectory resolves contact details for a user id so that
// notifications can be addressed.
type UserDirectory interface {
	Lookup(ctx context.Context, userID string) (*domain.Contact, error)
}

// StaticDirectory serves contacts from an in-memory table. Used in
// tests and single-node deployments without a user service.
type StaticDirectory struct {
	mu       sync.RWMutex
	contacts map[string]domain.Contact
}

// NewStaticDirectory creates a directory from an initial contact table
func NewStaticDirectory(contacts map[string]domain.Contact) *StaticDirectory {
	if contacts == nil {
		contacts = make(map[string]domain.Contact)
	}
	return &StaticDirectory{contacts: contacts}
}

// Lookup returns the contact for a user, domain.ErrNotFound when unknown
func (d *StaticDirectory) Lookup(_ context.Context, userID string) (*domain.Contact, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	contact, ok := d.contacts[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := contact
	return &cp, nil
}

// Register adds or replaces a contact
func (d *StaticDirectory) Register(userID string, contact domain.Contact) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.contacts[userID] = contact
}
