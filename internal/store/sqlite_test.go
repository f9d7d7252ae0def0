package store

import (
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/quickrupee/loanflow/internal/models"
)

func newTempSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	tempDir, err := os.MkdirTemp("", "loanflow_store_test_")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tempDir) })

	st, err := NewSQLiteStore(WithSQLiteDSN(filepath.Join(tempDir, "test.db")))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestSQLiteSessionRoundTrip(t *testing.T) {
	st := newTempSQLiteStore(t)
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	got, err := st.GetSession("+919876543210")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got != nil {
		t.Fatal("expected nil for unknown phone")
	}

	sess := models.NewSession("+919876543210", now)
	sess.Journey = models.JourneyOnboarding
	sess.CurrentStep = "consent"
	sess.Language = models.LanguageHindi
	sess.Answers["full_name"] = models.TextValue("Jane Doe")
	sess.Answers["monthly_income"] = models.NumberValue(40000)
	sess.Flags["kyc_completed"] = true
	sess.Offers = []models.Offer{{ID: "OFFER1", Amount: 90000, APR: 18.0, TermMonths: 6}}
	sess.ChosenOfferID = "OFFER1"
	if err := st.SaveSession(*sess); err != nil {
		t.Fatalf("SaveSession failed: %v", err)
	}

	got, err = st.GetSession("+919876543210")
	if err != nil {
		t.Fatalf("GetSession after save failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected stored session")
	}
	if got.Journey != models.JourneyOnboarding || got.CurrentStep != "consent" {
		t.Errorf("session state not restored: %+v", got)
	}
	if got.Language != models.LanguageHindi {
		t.Errorf("language not restored: %q", got.Language)
	}
	if got.Answers["full_name"].Text != "Jane Doe" || got.Answers["monthly_income"].Number != 40000 {
		t.Errorf("answers not restored: %+v", got.Answers)
	}
	if !got.Flags["kyc_completed"] {
		t.Error("flags not restored")
	}
	if len(got.Offers) != 1 || got.ChosenOfferID != "OFFER1" {
		t.Errorf("offers not restored: %+v / %q", got.Offers, got.ChosenOfferID)
	}

	// Saving again replaces, not duplicates.
	sess.CurrentStep = "generate-offers"
	if err := st.SaveSession(*sess); err != nil {
		t.Fatalf("second SaveSession failed: %v", err)
	}
	got, _ = st.GetSession("+919876543210")
	if got.CurrentStep != "generate-offers" {
		t.Errorf("expected upsert to replace step, got %s", got.CurrentStep)
	}
}

func TestSQLiteLoanRecordRoundTrip(t *testing.T) {
	st := newTempSQLiteStore(t)
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	rec := models.LoanRecord{
		Phone: "+919876543210", ReferenceID: "REF-000123", Status: "approved",
		Amount: 90000, APR: 18.0, TermMonths: 6, Purpose: "Education",
		MonthlyIncome: 40000, EmploymentStatus: "Salaried",
		CreatedAt: now, UpdatedAt: now,
	}
	if err := st.SaveLoanRecord(rec); err != nil {
		t.Fatalf("SaveLoanRecord failed: %v", err)
	}

	got, err := st.GetLoanRecord("+919876543210")
	if err != nil || got == nil {
		t.Fatalf("GetLoanRecord failed: %v / %v", got, err)
	}
	if got.ReferenceID != "REF-000123" || got.Status != "approved" || got.Amount != 90000 {
		t.Errorf("record not restored: %+v", got)
	}

	rec.Status = "disbursed"
	if err := st.SaveLoanRecord(rec); err != nil {
		t.Fatalf("update SaveLoanRecord failed: %v", err)
	}
	got, _ = st.GetLoanRecord("+919876543210")
	if got.Status != "disbursed" {
		t.Errorf("expected upsert to replace status, got %q", got.Status)
	}
}

func TestSQLiteListStaleSessions(t *testing.T) {
	st := newTempSQLiteStore(t)
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	cutoff := now.Add(-30 * time.Minute)

	stale := models.NewSession("+911111111111", now.Add(-time.Hour))
	stale.Journey = models.JourneyOnboarding
	fresh := models.NewSession("+912222222222", now)
	fresh.Journey = models.JourneyOnboarding
	idleMenu := models.NewSession("+913333333333", now.Add(-time.Hour))

	for _, s := range []*models.Session{stale, fresh, idleMenu} {
		if err := st.SaveSession(*s); err != nil {
			t.Fatalf("seed save failed: %v", err)
		}
	}

	phones, err := st.ListStaleSessions(cutoff)
	if err != nil {
		t.Fatalf("ListStaleSessions failed: %v", err)
	}
	if len(phones) != 1 || phones[0] != "+911111111111" {
		t.Errorf("expected only the stale onboarding session, got %v", phones)
	}
}

func TestSQLiteAddInteraction(t *testing.T) {
	st := newTempSQLiteStore(t)
	err := st.AddInteraction(models.Interaction{
		Phone:     "+919876543210",
		Direction: "inbound",
		Kind:      "message",
		Payload:   map[string]string{"text": "hello"},
		Timestamp: time.Now(),
	})
	if err != nil {
		t.Fatalf("AddInteraction failed: %v", err)
	}
}

func TestSQLiteRequiresDSN(t *testing.T) {
	if _, err := NewSQLiteStore(); err == nil {
		t.Error("expected error without DSN")
	}
}

func TestPostgresStoreRoundTrip(t *testing.T) {
	// Requires a running PostgreSQL instance; set DATABASE_URL to enable.
	connStr := getenvOrSkip(t, "DATABASE_URL")
	st, err := NewPostgresStore(WithPostgresDSN(connStr))
	if err != nil {
		t.Skipf("Postgres not available: %v", err)
	}
	defer st.Close()

	now := time.Now().UTC().Truncate(time.Second)
	sess := models.NewSession("+919999999999", now)
	sess.Journey = models.JourneySupport
	sess.CurrentStep = "support-question"
	if err := st.SaveSession(*sess); err != nil {
		t.Fatalf("SaveSession failed: %v", err)
	}
	got, err := st.GetSession("+919999999999")
	if err != nil || got == nil {
		t.Fatalf("GetSession failed: %v / %v", got, err)
	}
	if got.Journey != models.JourneySupport {
		t.Errorf("unexpected session %+v", got)
	}
}

func getenvOrSkip(t *testing.T, key string) string {
	v := ""
	if val, ok := syscall.Getenv(key); ok {
		v = val
	}
	if v == "" {
		t.Skipf("env %s not set", key)
	}
	return v
}
