package app

import (
	"sync"
	"time"

	"github.com/tiffinbox/subscription-edit-service/internal/domain"
)

// EditSessions keeps the subscription loaded at the start of an edit in memory
// until the edit is applied, discarded or expires. Nothing here is persisted.
type EditSessions struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]editSessionEntry
}

type editSessionEntry struct {
	subscription domain.Subscription
	expiresAt    time.Time
}

// NewEditSessions creates a session store. A non-positive ttl defaults to 30 minutes.
func NewEditSessions(ttl time.Duration) *EditSessions {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &EditSessions{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]editSessionEntry),
	}
}

func sessionKey(userID, subscriptionID string) string {
	return userID + "\x00" + subscriptionID
}

func (e *EditSessions) Put(userID, subscriptionID string, sub domain.Subscription) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.entries[sessionKey(userID, subscriptionID)] = editSessionEntry{
		subscription: sub,
		expiresAt:    e.now().Add(e.ttl),
	}
}

func (e *EditSessions) Get(userID, subscriptionID string) (domain.Subscription, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	key := sessionKey(userID, subscriptionID)
	entry, ok := e.entries[key]
	if !ok {
		return domain.Subscription{}, false
	}
	if !e.now().Before(entry.expiresAt) {
		delete(e.entries, key)
		return domain.Subscription{}, false
	}
	return entry.subscription, true
}

func (e *EditSessions) Drop(userID, subscriptionID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.entries, sessionKey(userID, subscriptionID))
}

// Prune removes expired sessions and returns how many were removed.
func (e *EditSessions) Prune() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := e.now()
	removed := 0
	for key, entry := range e.entries {
		if !now.Before(entry.expiresAt) {
			delete(e.entries, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored sessions, expired or not.
func (e *EditSessions) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.entries)
}
