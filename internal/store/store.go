// Package store provides storage backends for loanflow.
//
// It includes an in-memory store for tests and SQLite/PostgreSQL backed
// stores for sessions, loan records and the interaction audit trail.
package store

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/quickrupee/loanflow/internal/models"
)

// Store is the durable owner of per-user conversation state between events.
// Save after Get for the same phone within one orchestrator invocation is
// atomic with respect to other saves for that phone; the orchestrator's
// per-identity serialization guarantees no interleaving.
type Store interface {
	// GetSession returns the session for a phone, or nil if none exists.
	GetSession(phone string) (*models.Session, error)
	// SaveSession stores or replaces the session.
	SaveSession(s models.Session) error
	// GetLoanRecord returns the loan record for a phone, or nil if none exists.
	GetLoanRecord(phone string) (*models.LoanRecord, error)
	// SaveLoanRecord stores or replaces the loan record.
	SaveLoanRecord(r models.LoanRecord) error
	// AddInteraction appends one audit record.
	AddInteraction(i models.Interaction) error
	// ListStaleSessions returns phones whose last activity precedes the cutoff
	// and whose journey is not already NONE. Used by the hygiene sweep only.
	ListStaleSessions(cutoff time.Time) ([]string, error)
	// Close releases the backend.
	Close() error
}

// Opts holds configuration options for store backends.
type Opts struct {
	DSN string
}

// Option defines a configuration option for store backends.
type Option func(*Opts)

// WithSQLiteDSN sets a SQLite file path as the store DSN.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithPostgresDSN sets a PostgreSQL connection string as the store DSN.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType reports "postgres" for PostgreSQL-looking DSNs and "sqlite"
// for anything else (treated as a file path).
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}

// InMemoryStore keeps everything in process memory. Used in tests and when
// no DSN is configured.
type InMemoryStore struct {
	mu           sync.RWMutex
	sessions     map[string]models.Session
	loans        map[string]models.LoanRecord
	interactions []models.Interaction
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		sessions: make(map[string]models.Session),
		loans:    make(map[string]models.LoanRecord),
	}
}

func (s *InMemoryStore) GetSession(phone string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[phone]
	if !ok {
		return nil, nil
	}
	copied := sess
	return &copied, nil
}

func (s *InMemoryStore) SaveSession(sess models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.Phone] = sess
	return nil
}

func (s *InMemoryStore) GetLoanRecord(phone string) (*models.LoanRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.loans[phone]
	if !ok {
		return nil, nil
	}
	copied := rec
	return &copied, nil
}

func (s *InMemoryStore) SaveLoanRecord(rec models.LoanRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loans[rec.Phone] = rec
	return nil
}

func (s *InMemoryStore) AddInteraction(i models.Interaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interactions = append(s.interactions, i)
	return nil
}

// Interactions returns a copy of all recorded audit events (for tests).
func (s *InMemoryStore) Interactions() []models.Interaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Interaction, len(s.interactions))
	copy(out, s.interactions)
	return out
}

func (s *InMemoryStore) ListStaleSessions(cutoff time.Time) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var phones []string
	for phone, sess := range s.sessions {
		if sess.Journey != models.JourneyNone && sess.LastActivityAt.Before(cutoff) {
			phones = append(phones, phone)
		}
	}
	sort.Strings(phones)
	return phones, nil
}

func (s *InMemoryStore) Close() error { return nil }
