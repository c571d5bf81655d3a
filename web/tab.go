package web

import (
	"context"
	"sync"
	"time"

	"activity/identity"
	"activity/provider"
)

// Tab is one mounted activity, scoped to a browser tab.
type Tab struct {
	id        string
	store     *identity.MemoryStore
	embedded  bool
	overrides identity.Overrides
	provider  *provider.Provider
	cancel    context.CancelFunc

	mu       sync.Mutex
	lastSeen time.Time
	authURL  string
}

func (t *Tab) Provider() *provider.Provider { return t.provider }

func (t *Tab) touch() {
	t.mu.Lock()
	t.lastSeen = time.Now()
	t.mu.Unlock()
}

func (t *Tab) seen() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastSeen
}

// prompt records the authorization URL so the loading screen can link to it.
func (t *Tab) prompt(ctx context.Context, authURL string) error {
	t.mu.Lock()
	t.authURL = authURL
	t.mu.Unlock()
	return nil
}

func (t *Tab) authorizeURL() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.authURL
}
