package memory

import (
	"context"
	"sync"

	"github.com/sthaarwin/Dental-Smile-sub001/internal/app/identity"
)

// Directory is an in-memory user directory. Not suitable for production.
type Directory struct {
	mu       sync.RWMutex
	profiles map[string]identity.Profile
}

// NewDirectory builds an empty directory.
func NewDirectory() *Directory {
	return &Directory{profiles: make(map[string]identity.Profile)}
}

// Put registers or replaces a profile.
func (d *Directory) Put(profile identity.Profile) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.profiles[profile.ID] = profile
}

// Profile resolves a user's display profile.
func (d *Directory) Profile(ctx context.Context, userID string) (identity.Profile, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	profile, ok := d.profiles[userID]
	if !ok {
		return identity.Profile{}, identity.ErrProfileNotFound
	}
	return profile, nil
}
