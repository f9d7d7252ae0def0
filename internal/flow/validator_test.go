package flow

import (
	"errors"
	"testing"
	"time"

	"github.com/quickrupee/loanflow/internal/models"
)

// fixedNow pins the validator clock so age computations are deterministic.
var fixedNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func newTestValidator() *Validator {
	v := NewValidator()
	v.Now = func() time.Time { return fixedNow }
	return v
}

func TestValidateName(t *testing.T) {
	v := newTestValidator()

	val, err := v.ValidateName("  Jane Doe  ")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if val.Text != "Jane Doe" {
		t.Errorf("expected trimmed name, got %q", val.Text)
	}

	if _, err := v.ValidateName("   "); !errors.Is(err, models.ErrEmpty) {
		t.Errorf("expected ErrEmpty for blank name, got %v", err)
	}
}

func TestValidateDate(t *testing.T) {
	v := newTestValidator()

	tests := []struct {
		name    string
		input   string
		want    string
		wantErr error
	}{
		{"canonical format", "31-12-1995", "31-12-1995", nil},
		{"slash format", "31/12/1995", "31-12-1995", nil},
		{"iso format", "1995-12-31", "31-12-1995", nil},
		{"dot format", "31.12.1995", "31-12-1995", nil},
		{"gibberish", "next tuesday", "", models.ErrUnparseable},
		{"empty", "", "", models.ErrEmpty},
		{"future date", "01-01-2030", "", models.ErrFutureDate},
		{"too young", "01-01-2010", "", models.ErrUnderage},
		{"too old", "01-01-1940", "", models.ErrUnderage},
		{"exactly 18 today", "15-06-2007", "15-06-2007", nil},
		{"18 tomorrow", "16-06-2007", "", models.ErrUnderage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			val, err := v.ValidateDate(tt.input)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if val.Date != tt.want {
				t.Errorf("expected canonical date %q, got %q", tt.want, val.Date)
			}
		})
	}
}

func TestValidateNumeric(t *testing.T) {
	v := newTestValidator()

	tests := []struct {
		name    string
		input   string
		want    float64
		wantErr error
	}{
		{"plain", "45000", 45000, nil},
		{"with rupee sign", "₹45,000", 45000, nil},
		{"with rs prefix", "Rs. 45000", 45000, nil},
		{"with inr", "45000 INR", 45000, nil},
		{"decimal", "45000.50", 45000.50, nil},
		{"words", "forty five", 0, models.ErrNotNumeric},
		{"negative", "-500", 0, models.ErrNonPositive},
		{"zero", "0", 0, models.ErrNonPositive},
		{"empty", "  ", 0, models.ErrEmpty},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			val, err := v.ValidateNumeric(tt.input)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if val.Number != tt.want {
				t.Errorf("expected %v, got %v", tt.want, val.Number)
			}
		})
	}
}

func TestValidateBoolean(t *testing.T) {
	v := newTestValidator()

	affirmatives := []string{"yes", "YES", "y", "haan", "agree", "ok", "हाँ"}
	for _, input := range affirmatives {
		val, err := v.ValidateBoolean(input)
		if err != nil {
			t.Errorf("expected %q to be affirmative, got error %v", input, err)
			continue
		}
		if !val.Bool {
			t.Errorf("expected %q to parse as true", input)
		}
	}

	negatives := []string{"no", "No", "nahi", "नहीं"}
	for _, input := range negatives {
		val, err := v.ValidateBoolean(input)
		if err != nil {
			t.Errorf("expected %q to be negative, got error %v", input, err)
			continue
		}
		if val.Bool {
			t.Errorf("expected %q to parse as false", input)
		}
	}

	if _, err := v.ValidateBoolean("maybe"); !errors.Is(err, models.ErrAmbiguous) {
		t.Errorf("expected ErrAmbiguous for 'maybe', got %v", err)
	}
	if _, err := v.ValidateBoolean(""); !errors.Is(err, models.ErrEmpty) {
		t.Errorf("expected ErrEmpty, got %v", err)
	}
}

func TestValidateChoice(t *testing.T) {
	v := newTestValidator()
	valid := []string{"opt_a", "opt_b"}

	val, err := v.ValidateChoice("opt_b", valid)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if val.Text != "opt_b" {
		t.Errorf("expected opt_b, got %q", val.Text)
	}

	if _, err := v.ValidateChoice("opt_c", valid); !errors.Is(err, models.ErrUnknownOption) {
		t.Errorf("expected ErrUnknownOption, got %v", err)
	}
}

func TestValidateBankLines(t *testing.T) {
	v := newTestValidator()

	val, err := v.ValidateBankLines("HDFC0001234\n50100012345678")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if val.Text != "HDFC0001234|50100012345678" {
		t.Errorf("unexpected stored value %q", val.Text)
	}

	if _, err := v.ValidateBankLines("HDFC0001234"); !errors.Is(err, models.ErrUnparseable) {
		t.Errorf("expected ErrUnparseable for single line, got %v", err)
	}
	if _, err := v.ValidateBankLines(""); !errors.Is(err, models.ErrEmpty) {
		t.Errorf("expected ErrEmpty, got %v", err)
	}
}
