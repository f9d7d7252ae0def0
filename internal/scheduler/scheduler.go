// Package scheduler provides cron-based scheduling for loanflow's background
// jobs, such as the periodic stale session sweep.
package scheduler

import (
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/quickrupee/loanflow/internal/models"
	"github.com/quickrupee/loanflow/internal/store"
)

// DefaultSweepSpec runs the hygiene sweep every 10 minutes.
const DefaultSweepSpec = "*/10 * * * *"

// Scheduler provides cron-based job scheduling.
type Scheduler struct {
	cron *cron.Cron
}

// NewScheduler creates and starts a cron scheduler.
func NewScheduler() *Scheduler {
	// Standard 5-field cron parser (min, hour, dom, month, dow) with panic recovery.
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	c := cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cron.DefaultLogger)))
	c.Start()
	return &Scheduler{cron: c}
}

// AddJob schedules a task using the provided cron expression.
// It returns an error if the expression is invalid.
func (s *Scheduler) AddJob(expr string, task func()) error {
	_, err := s.cron.AddFunc(expr, task)
	return err
}

// Stop stops the cron scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}

// ScheduleStaleSweep registers the periodic hygiene sweep: sessions idle past
// the threshold are reset to the top-level menu in storage. Staleness is also
// checked lazily on each inbound event; the sweep only keeps the stored state
// tidy for sessions that never hear from the user again.
func (s *Scheduler) ScheduleStaleSweep(st store.Store, threshold time.Duration, spec string) error {
	if spec == "" {
		spec = DefaultSweepSpec
	}
	return s.AddJob(spec, func() {
		SweepStaleSessions(st, threshold, time.Now())
	})
}

// SweepStaleSessions resets every stored session whose inactivity exceeds the
// threshold. Returns the number of sessions reset.
func SweepStaleSessions(st store.Store, threshold time.Duration, now time.Time) int {
	cutoff := now.Add(-threshold)
	phones, err := st.ListStaleSessions(cutoff)
	if err != nil {
		slog.Error("Stale sweep failed to list sessions", "error", err)
		return 0
	}

	reset := 0
	for _, phone := range phones {
		sess, err := st.GetSession(phone)
		if err != nil || sess == nil {
			continue
		}
		// Re-check under the session's own timestamp; the list query may be stale.
		if now.Sub(sess.LastActivityAt) <= threshold {
			continue
		}
		sess.Reset()
		sess.UpdatedAt = now
		if err := st.SaveSession(*sess); err != nil {
			slog.Error("Stale sweep failed to save reset session", "error", err, "phone", phone)
			continue
		}
		if err := st.AddInteraction(models.Interaction{
			Phone:     phone,
			Direction: "system",
			Kind:      "session_swept",
			Timestamp: now,
		}); err != nil {
			slog.Error("Stale sweep failed to record interaction", "error", err, "phone", phone)
		}
		reset++
	}
	if reset > 0 {
		slog.Info("Stale sweep completed", "reset", reset, "candidates", len(phones))
	}
	return reset
}
