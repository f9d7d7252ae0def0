// Package flow implements the dialog orchestration core: journey definitions,
// field validation, session lifecycle and the event-driven engine.
package flow

import (
	"fmt"

	"github.com/quickrupee/loanflow/internal/models"
)

// Onboarding step identifiers, in journey order.
const (
	StepLanguageSelect models.StepID = "language-select"
	StepIntentConfirm  models.StepID = "intent-confirm"
	StepName           models.StepID = "name"
	StepDOB            models.StepID = "dob"
	StepEmployment     models.StepID = "employment"
	StepIncome         models.StepID = "income"
	StepPurpose        models.StepID = "purpose"
	StepConsent        models.StepID = "consent"
	StepGenerateOffers models.StepID = "generate-offers"
	StepOfferSelect    models.StepID = "offer-select"
	StepKYCAck         models.StepID = "kyc-ack"
	StepSelfieAck      models.StepID = "selfie-ack"
	StepBankDetails    models.StepID = "bank-details"
	StepNACHAck        models.StepID = "nach-ack"
	StepAgreementAck   models.StepID = "agreement-ack"
	StepFinalDecision  models.StepID = "final-decision"
)

// Re-entrant steps for the support and post-loan tracks.
const (
	StepSupportQuestion models.StepID = "support-question"
	StepPostLoanMenu    models.StepID = "post-loan-menu"
)

// Option IDs used by choice steps and the top-level menu.
const (
	OptLangEN       = "lang_en"
	OptLangHI       = "lang_hi"
	OptGetLoan      = "intent_get_loan"
	OptSupport      = "intent_support"
	OptConsentYes   = "consent_yes"
	OptConsentNo    = "consent_no"
	OptKYCComplete  = "kyc_complete"
	OptNACHComplete = "nach_complete"
	OptAgreeYes     = "agree_yes"
	OptAgreeNo      = "agree_no"
	OptConnectAgent = "connect_agent"
	OptDownloadApp  = "download_app"
	OptSendEmail    = "send_email"
	OptPostView     = "post_view"
	OptPostPDF      = "post_download"
	OptPostRepay    = "post_repay"
	OptPostSupport  = "post_support"
	// OfferOptionPrefix precedes the offer ID in offer-selection option IDs.
	OfferOptionPrefix = "offer_select_"
	// EmploymentOptionPrefix and PurposeOptionPrefix precede a zero-based index.
	EmploymentOptionPrefix = "emp_"
	PurposeOptionPrefix    = "purpose_"
)

// SideEffect marks a step that triggers a gateway call when reached.
type SideEffect string

const (
	SideEffectNone           SideEffect = ""
	SideEffectGenerateOffers SideEffect = "generate_offers"
	SideEffectFinalDecision  SideEffect = "final_decision"
)

// Terminal is the successor of the last step in a finite journey.
const Terminal models.StepID = ""

// JourneyStep is one immutable entry in a journey's step table.
type JourneyStep struct {
	ID         models.StepID
	Input      models.InputKind
	Field      models.FieldKind // validation rule for free-text steps
	FieldName  string           // answers key the validated value is stored under
	Next       models.StepID    // Terminal marks the end of the journey
	SideEffect SideEffect
	Reentrant  bool // re-entrant steps are their own successor and never terminate
}

// onboardingSteps is the declarative table for the full loan application
// track, from language selection through agreement and final decision.
var onboardingSteps = []JourneyStep{
	{ID: StepLanguageSelect, Input: models.InputChoice, FieldName: "language", Next: StepIntentConfirm},
	{ID: StepIntentConfirm, Input: models.InputChoice, FieldName: "intent", Next: StepName},
	{ID: StepName, Input: models.InputFreeText, Field: models.FieldName, FieldName: "full_name", Next: StepDOB},
	{ID: StepDOB, Input: models.InputFreeText, Field: models.FieldDate, FieldName: "dob", Next: StepEmployment},
	{ID: StepEmployment, Input: models.InputChoice, FieldName: "employment_status", Next: StepIncome},
	{ID: StepIncome, Input: models.InputFreeText, Field: models.FieldNumeric, FieldName: "monthly_income", Next: StepPurpose},
	{ID: StepPurpose, Input: models.InputChoice, FieldName: "purpose", Next: StepConsent},
	{ID: StepConsent, Input: models.InputFreeText, Field: models.FieldBoolean, FieldName: "consent_to_credit_check", Next: StepGenerateOffers},
	{ID: StepGenerateOffers, Input: models.InputNone, Next: StepOfferSelect, SideEffect: SideEffectGenerateOffers},
	{ID: StepOfferSelect, Input: models.InputChoice, FieldName: "chosen_offer", Next: StepKYCAck},
	{ID: StepKYCAck, Input: models.InputChoice, FieldName: "kyc_completed", Next: StepSelfieAck},
	{ID: StepSelfieAck, Input: models.InputDocument, FieldName: "selfie_received", Next: StepBankDetails},
	{ID: StepBankDetails, Input: models.InputFreeText, Field: models.FieldLines, FieldName: "bank_details", Next: StepNACHAck},
	{ID: StepNACHAck, Input: models.InputChoice, FieldName: "nach_completed", Next: StepAgreementAck},
	{ID: StepAgreementAck, Input: models.InputChoice, FieldName: "agreement_signed", Next: StepFinalDecision},
	{ID: StepFinalDecision, Input: models.InputNone, Next: Terminal, SideEffect: SideEffectFinalDecision},
}

var supportSteps = []JourneyStep{
	{ID: StepSupportQuestion, Input: models.InputFreeText, Next: StepSupportQuestion, Reentrant: true},
}

var postLoanSteps = []JourneyStep{
	{ID: StepPostLoanMenu, Input: models.InputChoice, Next: StepPostLoanMenu, Reentrant: true},
}

var journeyTables = map[models.Journey][]JourneyStep{
	models.JourneyOnboarding: onboardingSteps,
	models.JourneySupport:    supportSteps,
	models.JourneyPostLoan:   postLoanSteps,
}

// StepsOf returns the ordered step table for a journey. The returned slice is
// shared and must not be mutated.
func StepsOf(j models.Journey) []JourneyStep {
	return journeyTables[j]
}

// FirstStep returns the entry step of a journey.
func FirstStep(j models.Journey) (JourneyStep, error) {
	steps := journeyTables[j]
	if len(steps) == 0 {
		return JourneyStep{}, fmt.Errorf("%w: journey %q has no steps", models.ErrStateCorruption, j)
	}
	return steps[0], nil
}

// StepByID looks up a step in the journey's table. A miss is state corruption:
// a persisted session pointing at a step the table does not know.
func StepByID(j models.Journey, id models.StepID) (JourneyStep, error) {
	for _, s := range journeyTables[j] {
		if s.ID == id {
			return s, nil
		}
	}
	return JourneyStep{}, fmt.Errorf("%w: step %q not in journey %q", models.ErrStateCorruption, id, j)
}

// NextStep returns the successor of the given step. The second return is true
// when the journey terminates after this step. Re-entrant steps are their own
// successor and never terminate.
func NextStep(j models.Journey, id models.StepID) (JourneyStep, bool, error) {
	cur, err := StepByID(j, id)
	if err != nil {
		return JourneyStep{}, false, err
	}
	if cur.Reentrant {
		return cur, false, nil
	}
	if cur.Next == Terminal {
		return JourneyStep{}, true, nil
	}
	next, err := StepByID(j, cur.Next)
	if err != nil {
		return JourneyStep{}, false, err
	}
	return next, false, nil
}
