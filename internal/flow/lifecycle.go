package flow

import (
	"log/slog"
	"sync"
	"time"

	"github.com/quickrupee/loanflow/internal/models"
)

// DefaultInactivityThreshold is how long a session may sit idle before the
// next inbound event resets it to the top-level menu.
const DefaultInactivityThreshold = 30 * time.Minute

// IsStale reports whether the session's inactivity exceeds the threshold.
// Staleness is judged against the previous activity timestamp; the event
// being processed does not count as activity until after the check.
func IsStale(s *models.Session, now time.Time, threshold time.Duration) bool {
	if s == nil || s.LastActivityAt.IsZero() {
		return false
	}
	return now.Sub(s.LastActivityAt) > threshold
}

// ResetIfStale lazily resets a stale session before routing. The previous
// journey's data is discarded, not merged; language survives. Returns true
// if a reset happened.
func ResetIfStale(s *models.Session, now time.Time, threshold time.Duration) bool {
	if !IsStale(s, now, threshold) {
		return false
	}
	slog.Info("session stale, resetting", "phone", s.Phone, "idle", now.Sub(s.LastActivityAt), "journey", s.Journey)
	s.Reset()
	return true
}

// keyedMutex serializes event processing per identity while letting distinct
// identities proceed concurrently. Entries are reference-counted so the map
// does not grow with every identity ever seen.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLockEntry
}

type keyedLockEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyedLockEntry)}
}

// Lock acquires the mutex for the given key, blocking while another event for
// the same key is in flight.
func (k *keyedMutex) Lock(key string) {
	k.mu.Lock()
	entry, ok := k.locks[key]
	if !ok {
		entry = &keyedLockEntry{}
		k.locks[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()
}

// Unlock releases the mutex for the key, dropping the entry once no other
// waiter holds a reference.
func (k *keyedMutex) Unlock(key string) {
	k.mu.Lock()
	entry, ok := k.locks[key]
	if ok {
		entry.refs--
		if entry.refs <= 0 {
			delete(k.locks, key)
		}
	}
	k.mu.Unlock()

	if ok {
		entry.mu.Unlock()
	}
}
