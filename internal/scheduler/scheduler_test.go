package scheduler

import (
	"testing"
	"time"

	"github.com/quickrupee/loanflow/internal/models"
	"github.com/quickrupee/loanflow/internal/store"
)

func TestAddJobValidatesExpression(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()

	if err := s.AddJob("*/10 * * * *", func() {}); err != nil {
		t.Errorf("valid expression rejected: %v", err)
	}
	if err := s.AddJob("not a cron expr", func() {}); err == nil {
		t.Error("expected error for invalid expression")
	}
}

func TestScheduleStaleSweepDefaultsSpec(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()

	if err := s.ScheduleStaleSweep(store.NewInMemoryStore(), 30*time.Minute, ""); err != nil {
		t.Errorf("expected default spec to register, got %v", err)
	}
}

func TestSweepStaleSessions(t *testing.T) {
	st := store.NewInMemoryStore()
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	threshold := 30 * time.Minute

	stale := models.NewSession("+911111111111", now.Add(-time.Hour))
	stale.Journey = models.JourneyOnboarding
	stale.CurrentStep = "income"
	stale.Answers["full_name"] = models.TextValue("Jane Doe")

	fresh := models.NewSession("+912222222222", now.Add(-5*time.Minute))
	fresh.Journey = models.JourneySupport

	for _, s := range []*models.Session{stale, fresh} {
		if err := st.SaveSession(*s); err != nil {
			t.Fatalf("seed save failed: %v", err)
		}
	}

	reset := SweepStaleSessions(st, threshold, now)
	if reset != 1 {
		t.Fatalf("expected 1 session reset, got %d", reset)
	}

	swept, err := st.GetSession("+911111111111")
	if err != nil || swept == nil {
		t.Fatalf("GetSession failed: %v / %v", swept, err)
	}
	if swept.Journey != models.JourneyNone || swept.CurrentStep != "" {
		t.Errorf("expected swept session reset, got %s/%s", swept.Journey, swept.CurrentStep)
	}
	if len(swept.Answers) != 0 {
		t.Error("expected answers discarded by sweep")
	}

	untouched, _ := st.GetSession("+912222222222")
	if untouched.Journey != models.JourneySupport {
		t.Errorf("fresh session must not be swept, got %s", untouched.Journey)
	}

	found := false
	for _, i := range st.Interactions() {
		if i.Kind == "session_swept" && i.Phone == "+911111111111" {
			found = true
		}
	}
	if !found {
		t.Error("expected session_swept interaction")
	}

	// A second run has nothing left to do.
	if again := SweepStaleSessions(st, threshold, now); again != 0 {
		t.Errorf("expected idempotent sweep, got %d resets", again)
	}
}

func TestSweepBoundaryIsStrict(t *testing.T) {
	st := store.NewInMemoryStore()
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	threshold := 30 * time.Minute

	edge := models.NewSession("+911111111111", now.Add(-threshold))
	edge.Journey = models.JourneyOnboarding
	if err := st.SaveSession(*edge); err != nil {
		t.Fatalf("seed save failed: %v", err)
	}

	if reset := SweepStaleSessions(st, threshold, now); reset != 0 {
		t.Errorf("session idle exactly at threshold must not be swept, got %d", reset)
	}
}
