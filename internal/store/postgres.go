package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	_ "github.com/lib/pq"
	"github.com/quickrupee/loanflow/internal/models"
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore persists sessions, loan records and interactions in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL store with the given DSN.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewPostgresStore invoked", "DSN_set", cfg.DSN != "")

	if cfg.DSN == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		slog.Error("Failed to open PostgreSQL connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("PostgreSQL ping failed", "error", err)
		return nil, err
	}
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("PostgreSQL migrations applied")

	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) GetSession(phone string) (*models.Session, error) {
	query := `SELECT phone, journey, current_step, answers, flags, language, offers, chosen_offer_id,
		last_activity_at, created_at, updated_at FROM sessions WHERE phone = $1`

	var sess models.Session
	var answersJSON, flagsJSON, offersJSON string
	err := s.db.QueryRow(query, phone).Scan(
		&sess.Phone, &sess.Journey, &sess.CurrentStep, &answersJSON, &flagsJSON,
		&sess.Language, &offersJSON, &sess.ChosenOfferID,
		&sess.LastActivityAt, &sess.CreatedAt, &sess.UpdatedAt)
	if err == sql.ErrNoRows {
		slog.Debug("PostgresStore GetSession not found", "phone", phone)
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetSession failed", "error", err, "phone", phone)
		return nil, fmt.Errorf("failed to load session for %s: %w", phone, err)
	}
	if err := decodeSessionJSON(&sess, answersJSON, flagsJSON, offersJSON); err != nil {
		slog.Error("PostgresStore GetSession decode failed", "error", err, "phone", phone)
		return nil, err
	}
	return &sess, nil
}

func (s *PostgresStore) SaveSession(sess models.Session) error {
	answersJSON, flagsJSON, offersJSON, err := encodeSessionJSON(&sess)
	if err != nil {
		slog.Error("PostgresStore SaveSession encode failed", "error", err, "phone", sess.Phone)
		return err
	}
	query := `INSERT INTO sessions
		(phone, journey, current_step, answers, flags, language, offers, chosen_offer_id, last_activity_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (phone) DO UPDATE SET
			journey = EXCLUDED.journey,
			current_step = EXCLUDED.current_step,
			answers = EXCLUDED.answers,
			flags = EXCLUDED.flags,
			language = EXCLUDED.language,
			offers = EXCLUDED.offers,
			chosen_offer_id = EXCLUDED.chosen_offer_id,
			last_activity_at = EXCLUDED.last_activity_at,
			updated_at = EXCLUDED.updated_at`
	_, err = s.db.Exec(query, sess.Phone, sess.Journey, sess.CurrentStep, answersJSON, flagsJSON,
		sess.Language, offersJSON, sess.ChosenOfferID, sess.LastActivityAt, sess.CreatedAt, sess.UpdatedAt)
	if err != nil {
		slog.Error("PostgresStore SaveSession failed", "error", err, "phone", sess.Phone)
		return fmt.Errorf("failed to save session for %s: %w", sess.Phone, err)
	}
	slog.Debug("PostgresStore SaveSession succeeded", "phone", sess.Phone, "journey", sess.Journey, "step", sess.CurrentStep)
	return nil
}

func (s *PostgresStore) GetLoanRecord(phone string) (*models.LoanRecord, error) {
	query := `SELECT phone, reference_id, status, amount, apr, term_months, purpose,
		monthly_income, employment_status, reason, created_at, updated_at FROM loan_records WHERE phone = $1`

	var rec models.LoanRecord
	err := s.db.QueryRow(query, phone).Scan(
		&rec.Phone, &rec.ReferenceID, &rec.Status, &rec.Amount, &rec.APR, &rec.TermMonths,
		&rec.Purpose, &rec.MonthlyIncome, &rec.EmploymentStatus, &rec.Reason, &rec.CreatedAt, &rec.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetLoanRecord failed", "error", err, "phone", phone)
		return nil, fmt.Errorf("failed to load loan record for %s: %w", phone, err)
	}
	return &rec, nil
}

func (s *PostgresStore) SaveLoanRecord(rec models.LoanRecord) error {
	query := `INSERT INTO loan_records
		(phone, reference_id, status, amount, apr, term_months, purpose, monthly_income, employment_status, reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (phone) DO UPDATE SET
			reference_id = EXCLUDED.reference_id,
			status = EXCLUDED.status,
			amount = EXCLUDED.amount,
			apr = EXCLUDED.apr,
			term_months = EXCLUDED.term_months,
			purpose = EXCLUDED.purpose,
			monthly_income = EXCLUDED.monthly_income,
			employment_status = EXCLUDED.employment_status,
			reason = EXCLUDED.reason,
			updated_at = EXCLUDED.updated_at`
	_, err := s.db.Exec(query, rec.Phone, rec.ReferenceID, rec.Status, rec.Amount, rec.APR,
		rec.TermMonths, rec.Purpose, rec.MonthlyIncome, rec.EmploymentStatus, rec.Reason, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		slog.Error("PostgresStore SaveLoanRecord failed", "error", err, "phone", rec.Phone)
		return fmt.Errorf("failed to save loan record for %s: %w", rec.Phone, err)
	}
	slog.Debug("PostgresStore SaveLoanRecord succeeded", "phone", rec.Phone, "status", rec.Status)
	return nil
}

func (s *PostgresStore) AddInteraction(i models.Interaction) error {
	payloadJSON := ""
	if len(i.Payload) > 0 {
		b, err := json.Marshal(i.Payload)
		if err != nil {
			slog.Error("PostgresStore AddInteraction marshal failed", "error", err, "phone", i.Phone)
			return err
		}
		payloadJSON = string(b)
	}
	_, err := s.db.Exec(`INSERT INTO interactions (phone, direction, kind, payload, timestamp) VALUES ($1, $2, $3, $4, $5)`,
		i.Phone, i.Direction, i.Kind, payloadJSON, i.Timestamp)
	if err != nil {
		slog.Error("PostgresStore AddInteraction failed", "error", err, "phone", i.Phone)
		return fmt.Errorf("failed to insert interaction for %s: %w", i.Phone, err)
	}
	return nil
}

func (s *PostgresStore) ListStaleSessions(cutoff time.Time) ([]string, error) {
	rows, err := s.db.Query(`SELECT phone FROM sessions WHERE journey != $1 AND last_activity_at < $2`,
		models.JourneyNone, cutoff)
	if err != nil {
		slog.Error("PostgresStore ListStaleSessions query failed", "error", err)
		return nil, fmt.Errorf("failed to query stale sessions: %w", err)
	}
	defer rows.Close()

	var phones []string
	for rows.Next() {
		var phone string
		if err := rows.Scan(&phone); err != nil {
			slog.Error("PostgresStore ListStaleSessions scan failed", "error", err)
			return nil, err
		}
		phones = append(phones, phone)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	slog.Debug("PostgresStore ListStaleSessions succeeded", "count", len(phones))
	return phones, nil
}

// Close closes the PostgreSQL database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing PostgreSQL database connection")
	return s.db.Close()
}
