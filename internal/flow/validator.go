package flow

import (
	"strconv"
	"strings"
	"time"

	"github.com/quickrupee/loanflow/internal/models"
)

// DateFormats enumerates the accepted date-of-birth layouts, tried in order.
var DateFormats = []string{"02-01-2006", "02/01/2006", "2006-01-02", "02.01.2006"}

// CanonicalDateFormat is the layout dates are normalized to before storage.
const CanonicalDateFormat = "02-01-2006"

// Affirmative and negative synonyms accepted for boolean fields, covering
// both supported languages. Matching is case-insensitive.
var (
	affirmativeSynonyms = map[string]bool{
		"yes": true, "y": true, "haan": true, "haanji": true, "ha": true,
		"consent": true, "agree": true, "ok": true, "sure": true, "accept": true,
		"हाँ": true, "हां": true, "जी": true, "जी हाँ": true,
	}
	negativeSynonyms = map[string]bool{
		"no": true, "n": true, "nah": true, "na": true, "nahi": true,
		"stop": true, "reject": true, "नहीं": true, "नही": true,
	}
)

// Validator turns raw user input into typed values. It is pure: malformed
// input is an expected outcome reported through the categorized error values
// in models, never a panic.
type Validator struct {
	MinAge int
	MaxAge int
	// Now supplies the reference time for age computation. Nil means time.Now.
	Now func() time.Time
}

// NewValidator returns a validator with the standard applicant age bounds.
func NewValidator() *Validator {
	return &Validator{MinAge: models.MinApplicantAge, MaxAge: models.MaxApplicantAge}
}

func (v *Validator) now() time.Time {
	if v.Now != nil {
		return v.Now()
	}
	return time.Now()
}

// Validate dispatches on the field kind. Choice fields must go through
// ValidateChoice since they need the currently valid option set.
func (v *Validator) Validate(kind models.FieldKind, raw string) (models.FieldValue, error) {
	switch kind {
	case models.FieldName:
		return v.ValidateName(raw)
	case models.FieldDate:
		return v.ValidateDate(raw)
	case models.FieldNumeric:
		return v.ValidateNumeric(raw)
	case models.FieldBoolean:
		return v.ValidateBoolean(raw)
	case models.FieldLines:
		return v.ValidateBankLines(raw)
	default:
		return models.FieldValue{}, models.ErrUnparseable
	}
}

// ValidateName accepts any non-empty trimmed text.
func (v *Validator) ValidateName(raw string) (models.FieldValue, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return models.FieldValue{}, models.ErrEmpty
	}
	return models.TextValue(name), nil
}

// ValidateDate parses a date of birth under the accepted layouts, rejects
// future dates, and enforces the applicant age window. The value is stored in
// canonical DD-MM-YYYY form.
func (v *Validator) ValidateDate(raw string) (models.FieldValue, error) {
	input := strings.TrimSpace(raw)
	if input == "" {
		return models.FieldValue{}, models.ErrEmpty
	}
	var parsed time.Time
	var ok bool
	for _, layout := range DateFormats {
		if t, err := time.Parse(layout, input); err == nil {
			parsed, ok = t, true
			break
		}
	}
	if !ok {
		return models.FieldValue{}, models.ErrUnparseable
	}
	now := v.now()
	if parsed.After(now) {
		return models.FieldValue{}, models.ErrFutureDate
	}
	age := AgeAt(parsed, now)
	if age < v.MinAge || (v.MaxAge > 0 && age > v.MaxAge) {
		return models.FieldValue{}, models.ErrUnderage
	}
	return models.DateValue(parsed.Format(CanonicalDateFormat)), nil
}

// AgeAt returns whole years between a birth date and a reference date.
func AgeAt(dob, at time.Time) int {
	years := at.Year() - dob.Year()
	if at.Month() < dob.Month() || (at.Month() == dob.Month() && at.Day() < dob.Day()) {
		years--
	}
	return years
}

// ValidateNumeric strips currency symbols and separators, then requires a
// positive number.
func (v *Validator) ValidateNumeric(raw string) (models.FieldValue, error) {
	cleaned := strings.ToLower(strings.TrimSpace(raw))
	if cleaned == "" {
		return models.FieldValue{}, models.ErrEmpty
	}
	for _, strip := range []string{"₹", "rs.", "rs", "inr", ",", " "} {
		cleaned = strings.ReplaceAll(cleaned, strip, "")
	}
	if cleaned == "" {
		return models.FieldValue{}, models.ErrNotNumeric
	}
	n, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return models.FieldValue{}, models.ErrNotNumeric
	}
	if n <= 0 {
		return models.FieldValue{}, models.ErrNonPositive
	}
	return models.NumberValue(n), nil
}

// ValidateBoolean matches an enumerated synonym set case-insensitively in
// either supported language.
func (v *Validator) ValidateBoolean(raw string) (models.FieldValue, error) {
	candidate := strings.ToLower(strings.TrimSpace(raw))
	if candidate == "" {
		return models.FieldValue{}, models.ErrEmpty
	}
	if affirmativeSynonyms[candidate] {
		return models.BoolValue(true), nil
	}
	if negativeSynonyms[candidate] {
		return models.BoolValue(false), nil
	}
	return models.FieldValue{}, models.ErrAmbiguous
}

// ValidateChoice requires the raw input to be one of the currently valid
// option IDs for the pending step.
func (v *Validator) ValidateChoice(raw string, validOptions []string) (models.FieldValue, error) {
	selected := strings.TrimSpace(raw)
	if selected == "" {
		return models.FieldValue{}, models.ErrEmpty
	}
	for _, id := range validOptions {
		if selected == id {
			return models.ChoiceValue(selected), nil
		}
	}
	return models.FieldValue{}, models.ErrUnknownOption
}

// ValidateBankLines expects IFSC on the first line and account number on the
// second. The value is stored as "IFSC|account".
func (v *Validator) ValidateBankLines(raw string) (models.FieldValue, error) {
	if strings.TrimSpace(raw) == "" {
		return models.FieldValue{}, models.ErrEmpty
	}
	var parts []string
	for _, line := range strings.Split(raw, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			parts = append(parts, line)
		}
	}
	if len(parts) < 2 {
		return models.FieldValue{}, models.ErrUnparseable
	}
	return models.FieldValue{Kind: models.FieldLines, Text: parts[0] + "|" + parts[1]}, nil
}
