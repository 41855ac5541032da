package directory

import (
	"context"
	"sort"
	"sync"

	"civicdesk/internal/notification/ports"
	id "civicdesk/pkg/domain"
	"civicdesk/pkg/platform/sentinel"
)

// MemoryDirectory is the in-memory directory used in tests and local runs.
type MemoryDirectory struct {
	mu       sync.Mutex
	admins   map[id.UserID]bool
	contacts map[id.UserID]ports.Contact
}

// NewMemory constructs an empty in-memory directory.
func NewMemory() *MemoryDirectory {
	return &MemoryDirectory{
		admins:   make(map[id.UserID]bool),
		contacts: make(map[id.UserID]ports.Contact),
	}
}

// SeedAdmin registers an admin account. Inactive admins are kept so tests can
// assert they are skipped.
func (d *MemoryDirectory) SeedAdmin(adminID id.UserID, active bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.admins[adminID] = active
}

// SeedContact registers contact details for an account.
func (d *MemoryDirectory) SeedContact(userID id.UserID, contact ports.Contact) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.contacts[userID] = contact
}

// ListActiveAdmins returns every active admin, in stable order.
func (d *MemoryDirectory) ListActiveAdmins(ctx context.Context) ([]id.UserID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var admins []id.UserID
	for adminID, active := range d.admins {
		if active {
			admins = append(admins, adminID)
		}
	}
	sort.Slice(admins, func(i, j int) bool {
		return admins[i].String() < admins[j].String()
	})
	return admins, nil
}

// GetContact returns the contact details on file for an account.
func (d *MemoryDirectory) GetContact(ctx context.Context, userID id.UserID) (*ports.Contact, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	contact, ok := d.contacts[userID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &contact, nil
}
