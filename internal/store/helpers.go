package store

import (
	"encoding/json"
	"fmt"

	"github.com/quickrupee/loanflow/internal/models"
)

// encodeSessionJSON serializes the session's map and slice members for
// storage in text/JSON columns. Empty collections encode as "".
func encodeSessionJSON(s *models.Session) (answers, flags, offers string, err error) {
	if len(s.Answers) > 0 {
		b, merr := json.Marshal(s.Answers)
		if merr != nil {
			return "", "", "", fmt.Errorf("marshal answers: %w", merr)
		}
		answers = string(b)
	}
	if len(s.Flags) > 0 {
		b, merr := json.Marshal(s.Flags)
		if merr != nil {
			return "", "", "", fmt.Errorf("marshal flags: %w", merr)
		}
		flags = string(b)
	}
	if len(s.Offers) > 0 {
		b, merr := json.Marshal(s.Offers)
		if merr != nil {
			return "", "", "", fmt.Errorf("marshal offers: %w", merr)
		}
		offers = string(b)
	}
	return answers, flags, offers, nil
}

// decodeSessionJSON restores the session's map and slice members from their
// stored JSON forms. Missing values produce empty, non-nil maps so callers
// can write without nil checks.
func decodeSessionJSON(s *models.Session, answers, flags, offers string) error {
	s.Answers = make(map[string]models.FieldValue)
	if answers != "" {
		if err := json.Unmarshal([]byte(answers), &s.Answers); err != nil {
			return fmt.Errorf("unmarshal answers: %w", err)
		}
	}
	s.Flags = make(map[string]bool)
	if flags != "" {
		if err := json.Unmarshal([]byte(flags), &s.Flags); err != nil {
			return fmt.Errorf("unmarshal flags: %w", err)
		}
	}
	if offers != "" {
		if err := json.Unmarshal([]byte(offers), &s.Offers); err != nil {
			return fmt.Errorf("unmarshal offers: %w", err)
		}
	}
	return nil
}
