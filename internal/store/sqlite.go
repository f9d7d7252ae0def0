// Package store provides storage backends for loanflow.
//
// This file implements the SQLite-backed store.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/quickrupee/loanflow/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions defines the default permissions for database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore persists sessions, loan records and interactions in SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN. The DSN is a
// file path; the containing directory is created if missing.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	if cfg.DSN == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(cfg.DSN)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", cfg.DSN)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied")

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) GetSession(phone string) (*models.Session, error) {
	query := `SELECT phone, journey, current_step, answers, flags, language, offers, chosen_offer_id,
		last_activity_at, created_at, updated_at FROM sessions WHERE phone = ?`

	var sess models.Session
	var answersJSON, flagsJSON, offersJSON string
	err := s.db.QueryRow(query, phone).Scan(
		&sess.Phone, &sess.Journey, &sess.CurrentStep, &answersJSON, &flagsJSON,
		&sess.Language, &offersJSON, &sess.ChosenOfferID,
		&sess.LastActivityAt, &sess.CreatedAt, &sess.UpdatedAt)
	if err == sql.ErrNoRows {
		slog.Debug("SQLiteStore GetSession not found", "phone", phone)
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetSession failed", "error", err, "phone", phone)
		return nil, fmt.Errorf("failed to load session for %s: %w", phone, err)
	}
	if err := decodeSessionJSON(&sess, answersJSON, flagsJSON, offersJSON); err != nil {
		slog.Error("SQLiteStore GetSession decode failed", "error", err, "phone", phone)
		return nil, err
	}
	return &sess, nil
}

func (s *SQLiteStore) SaveSession(sess models.Session) error {
	answersJSON, flagsJSON, offersJSON, err := encodeSessionJSON(&sess)
	if err != nil {
		slog.Error("SQLiteStore SaveSession encode failed", "error", err, "phone", sess.Phone)
		return err
	}
	query := `INSERT OR REPLACE INTO sessions
		(phone, journey, current_step, answers, flags, language, offers, chosen_offer_id, last_activity_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = s.db.Exec(query, sess.Phone, sess.Journey, sess.CurrentStep, answersJSON, flagsJSON,
		sess.Language, offersJSON, sess.ChosenOfferID, sess.LastActivityAt, sess.CreatedAt, sess.UpdatedAt)
	if err != nil {
		slog.Error("SQLiteStore SaveSession failed", "error", err, "phone", sess.Phone)
		return fmt.Errorf("failed to save session for %s: %w", sess.Phone, err)
	}
	slog.Debug("SQLiteStore SaveSession succeeded", "phone", sess.Phone, "journey", sess.Journey, "step", sess.CurrentStep)
	return nil
}

func (s *SQLiteStore) GetLoanRecord(phone string) (*models.LoanRecord, error) {
	query := `SELECT phone, reference_id, status, amount, apr, term_months, purpose,
		monthly_income, employment_status, reason, created_at, updated_at FROM loan_records WHERE phone = ?`

	var rec models.LoanRecord
	err := s.db.QueryRow(query, phone).Scan(
		&rec.Phone, &rec.ReferenceID, &rec.Status, &rec.Amount, &rec.APR, &rec.TermMonths,
		&rec.Purpose, &rec.MonthlyIncome, &rec.EmploymentStatus, &rec.Reason, &rec.CreatedAt, &rec.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetLoanRecord failed", "error", err, "phone", phone)
		return nil, fmt.Errorf("failed to load loan record for %s: %w", phone, err)
	}
	return &rec, nil
}

func (s *SQLiteStore) SaveLoanRecord(rec models.LoanRecord) error {
	query := `INSERT OR REPLACE INTO loan_records
		(phone, reference_id, status, amount, apr, term_months, purpose, monthly_income, employment_status, reason, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.Exec(query, rec.Phone, rec.ReferenceID, rec.Status, rec.Amount, rec.APR,
		rec.TermMonths, rec.Purpose, rec.MonthlyIncome, rec.EmploymentStatus, rec.Reason, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		slog.Error("SQLiteStore SaveLoanRecord failed", "error", err, "phone", rec.Phone)
		return fmt.Errorf("failed to save loan record for %s: %w", rec.Phone, err)
	}
	slog.Debug("SQLiteStore SaveLoanRecord succeeded", "phone", rec.Phone, "status", rec.Status)
	return nil
}

func (s *SQLiteStore) AddInteraction(i models.Interaction) error {
	payloadJSON := ""
	if len(i.Payload) > 0 {
		b, err := json.Marshal(i.Payload)
		if err != nil {
			slog.Error("SQLiteStore AddInteraction marshal failed", "error", err, "phone", i.Phone)
			return err
		}
		payloadJSON = string(b)
	}
	_, err := s.db.Exec(`INSERT INTO interactions (phone, direction, kind, payload, timestamp) VALUES (?, ?, ?, ?, ?)`,
		i.Phone, i.Direction, i.Kind, payloadJSON, i.Timestamp)
	if err != nil {
		slog.Error("SQLiteStore AddInteraction failed", "error", err, "phone", i.Phone)
		return fmt.Errorf("failed to insert interaction for %s: %w", i.Phone, err)
	}
	return nil
}

func (s *SQLiteStore) ListStaleSessions(cutoff time.Time) ([]string, error) {
	rows, err := s.db.Query(`SELECT phone FROM sessions WHERE journey != ? AND last_activity_at < ?`,
		models.JourneyNone, cutoff)
	if err != nil {
		slog.Error("SQLiteStore ListStaleSessions query failed", "error", err)
		return nil, fmt.Errorf("failed to query stale sessions: %w", err)
	}
	defer rows.Close()

	var phones []string
	for rows.Next() {
		var phone string
		if err := rows.Scan(&phone); err != nil {
			slog.Error("SQLiteStore ListStaleSessions scan failed", "error", err)
			return nil, err
		}
		phones = append(phones, phone)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	slog.Debug("SQLiteStore ListStaleSessions succeeded", "count", len(phones))
	return phones, nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	return s.db.Close()
}
