package models

import (
	"errors"
	"testing"
)

func TestComputeEMI(t *testing.T) {
	tests := []struct {
		name      string
		principal float64
		rate      float64
		months    int
		want      float64
	}{
		{"standard 6 month", 90000, 18.0, 6, 15798},
		{"zero rate", 12000, 0, 12, 1000},
		{"zero months", 90000, 18.0, 0, 0},
		{"negative months", 90000, 18.0, -3, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ComputeEMI(tt.principal, tt.rate, tt.months); got != tt.want {
				t.Errorf("ComputeEMI(%v, %v, %d) = %v, want %v", tt.principal, tt.rate, tt.months, got, tt.want)
			}
		})
	}
}

func TestComputeEMIRoundsUp(t *testing.T) {
	// 1000 over 3 months at zero rate is 333.33..., which must become 334.
	if got := ComputeEMI(1000, 0, 3); got != 334 {
		t.Errorf("expected EMI rounded up to 334, got %v", got)
	}
}

func validApplication() LoanApplication {
	return LoanApplication{
		ApplicationID:    "app-1",
		CustomerPhone:    "+919876543210",
		FullName:         "Jane Doe",
		Age:              32,
		EmploymentStatus: "Salaried",
		MonthlyIncome:    40000,
		RequestedAmount:  80000,
		Purpose:          "Education",
		ConsentToCheck:   true,
	}
}

func TestLoanApplicationValidate(t *testing.T) {
	if err := (func() error { a := validApplication(); return a.Validate() })(); err != nil {
		t.Fatalf("valid application rejected: %v", err)
	}

	tests := []struct {
		name    string
		mutate  func(*LoanApplication)
		wantErr error
	}{
		{"missing phone", func(a *LoanApplication) { a.CustomerPhone = "" }, ErrMissingIdentity},
		{"missing name", func(a *LoanApplication) { a.FullName = "" }, ErrMissingName},
		{"too young", func(a *LoanApplication) { a.Age = 17 }, ErrAgeOutOfRange},
		{"too old", func(a *LoanApplication) { a.Age = 76 }, ErrAgeOutOfRange},
		{"zero income", func(a *LoanApplication) { a.MonthlyIncome = 0 }, ErrMissingIncome},
		{"no consent", func(a *LoanApplication) { a.ConsentToCheck = false }, ErrConsentMissing},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := validApplication()
			tt.mutate(&a)
			if err := a.Validate(); !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}
