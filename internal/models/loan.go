// Package models defines loan application and offer structures shared across modules.
package models

import (
	"errors"
	"math"
	"time"
)

// Offer is an immutable credit offer generated once per completed onboarding.
type Offer struct {
	ID               string  `json:"id"`
	Amount           float64 `json:"amount"`
	APR              float64 `json:"apr"`
	TermMonths       int     `json:"term_months"`
	ProcessingFeePct float64 `json:"processing_fee_pct"`
	MonthlyEMI       float64 `json:"monthly_emi"`
}

// ComputeEMI returns the monthly installment for a principal at the given
// annual rate over the given term, rounded up to the next rupee.
func ComputeEMI(principal, annualRatePct float64, months int) float64 {
	if months <= 0 {
		return 0
	}
	r := annualRatePct / 100.0 / 12.0
	if r == 0 {
		return math.Ceil(principal / float64(months))
	}
	pow := math.Pow(1+r, float64(months))
	return math.Ceil(principal * r * pow / (pow - 1))
}

// LoanApplication is a read-only projection of onboarding answers, handed to
// the decision gateway once the consent step is passed.
type LoanApplication struct {
	ApplicationID    string  `json:"application_id"`
	CustomerPhone    string  `json:"customer_phone"`
	FullName         string  `json:"full_name"`
	Age              int     `json:"age"`
	EmploymentStatus string  `json:"employment_status"`
	MonthlyIncome    float64 `json:"monthly_income"`
	RequestedAmount  float64 `json:"requested_amount"`
	Purpose          string  `json:"purpose"`
	ConsentToCheck   bool    `json:"consent_to_credit_check"`
}

// Application validation errors.
var (
	ErrMissingName     = errors.New("full name is required")
	ErrAgeOutOfRange   = errors.New("applicant age out of accepted range")
	ErrMissingIncome   = errors.New("monthly income must be positive")
	ErrConsentMissing  = errors.New("credit check consent is required")
	ErrMissingIdentity = errors.New("customer phone is required")
)

// Accepted applicant age bounds.
const (
	MinApplicantAge = 18
	MaxApplicantAge = 75
)

// Validate checks the application is complete enough to submit for a decision.
func (a *LoanApplication) Validate() error {
	if a.CustomerPhone == "" {
		return ErrMissingIdentity
	}
	if a.FullName == "" {
		return ErrMissingName
	}
	if a.Age < MinApplicantAge || a.Age > MaxApplicantAge {
		return ErrAgeOutOfRange
	}
	if a.MonthlyIncome <= 0 {
		return ErrMissingIncome
	}
	if !a.ConsentToCheck {
		return ErrConsentMissing
	}
	return nil
}

// Decision is the outcome of a final credit evaluation.
type Decision struct {
	Approved      bool    `json:"approved"`
	ReferenceID   string  `json:"reference_id"`
	OfferAmount   float64 `json:"offer_amount"`
	APR           float64 `json:"apr,omitempty"`
	MaxTermMonths int     `json:"max_term_months,omitempty"`
	Reason        string  `json:"reason,omitempty"`
}

// LoanRecord is the durable record of a decided loan, read by support and the
// post-loan menu.
type LoanRecord struct {
	Phone            string    `json:"phone"`
	ReferenceID      string    `json:"reference_id"`
	Status           string    `json:"status"` // approved, declined, disbursed
	Amount           float64   `json:"amount"`
	APR              float64   `json:"apr"`
	TermMonths       int       `json:"term_months"`
	Purpose          string    `json:"purpose"`
	MonthlyIncome    float64   `json:"monthly_income"`
	EmploymentStatus string    `json:"employment_status"`
	Reason           string    `json:"reason,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}
