// Package models defines the core data structures for loanflow.
//
// It includes types for sessions, inbound events and outbound prompt specs,
// which are shared across modules.
package models

import (
	"errors"
	"time"
)

// Journey identifies a top-level conversation track.
type Journey string

const (
	// JourneyNone means the user is at the top-level menu with no active track.
	JourneyNone Journey = "none"
	// JourneyOnboarding covers the loan application from name capture to agreement.
	JourneyOnboarding Journey = "onboarding"
	// JourneySupport is the re-entrant free-form support track.
	JourneySupport Journey = "support"
	// JourneyPostLoan is the re-entrant post-disbursement menu track.
	JourneyPostLoan Journey = "post_loan"
)

// IsValidJourney checks if the given journey is supported.
func IsValidJourney(j Journey) bool {
	switch j {
	case JourneyNone, JourneyOnboarding, JourneySupport, JourneyPostLoan:
		return true
	default:
		return false
	}
}

// StepID identifies one addressable position within a journey.
type StepID string

// Language is a supported conversation language.
type Language string

const (
	LanguageEnglish Language = "en"
	LanguageHindi   Language = "hi"
)

// InputKind describes what a journey step expects from the user.
type InputKind string

const (
	// InputFreeText expects typed text.
	InputFreeText InputKind = "free_text"
	// InputChoice expects one of a fixed set of option IDs.
	InputChoice InputKind = "choice"
	// InputDocument expects an image or document message.
	InputDocument InputKind = "document"
	// InputNone marks steps that advance without user input.
	InputNone InputKind = "none"
)

// FieldKind selects the validation rule applied to raw input.
type FieldKind string

const (
	FieldName    FieldKind = "name"
	FieldDate    FieldKind = "date"
	FieldNumeric FieldKind = "numeric"
	FieldBoolean FieldKind = "boolean"
	FieldChoice  FieldKind = "choice"
	FieldLines   FieldKind = "lines" // multi-line structured text (bank details)
)

// Validation failure categories. The validator returns these as error values;
// they are recoverable and map to a localized re-prompt hint.
var (
	ErrEmpty         = errors.New("input is empty")
	ErrUnparseable   = errors.New("input could not be parsed")
	ErrFutureDate    = errors.New("date is in the future")
	ErrUnderage      = errors.New("applicant below minimum age")
	ErrNotNumeric    = errors.New("input is not a number")
	ErrNonPositive   = errors.New("amount must be positive")
	ErrAmbiguous     = errors.New("ambiguous yes/no answer")
	ErrUnknownOption = errors.New("unknown option")
)

// Event-level failure categories per the orchestrator's error taxonomy.
var (
	// ErrGatewayFailure marks a decision or support gateway error. The session
	// is left unchanged and the event may be safely retried.
	ErrGatewayFailure = errors.New("gateway failure")
	// ErrStoreFailure marks a session store error. The event is not acknowledged
	// as processed.
	ErrStoreFailure = errors.New("session store failure")
	// ErrStateCorruption marks a session referencing a step or journey that the
	// journey definition does not know. The session is reset and the incident logged.
	ErrStateCorruption = errors.New("session state corruption")
)

// FieldValue is a typed answer produced by the validator. Exactly one of the
// typed members is meaningful, selected by Kind.
type FieldValue struct {
	Kind   FieldKind `json:"kind"`
	Text   string    `json:"text,omitempty"`
	Number float64   `json:"number,omitempty"`
	Date   string    `json:"date,omitempty"` // stored as DD-MM-YYYY
	Bool   bool      `json:"bool,omitempty"`
}

// TextValue builds a text field value.
func TextValue(s string) FieldValue { return FieldValue{Kind: FieldName, Text: s} }

// NumberValue builds a numeric field value.
func NumberValue(n float64) FieldValue { return FieldValue{Kind: FieldNumeric, Number: n} }

// DateValue builds a date field value from its canonical DD-MM-YYYY form.
func DateValue(s string) FieldValue { return FieldValue{Kind: FieldDate, Date: s} }

// BoolValue builds a boolean field value.
func BoolValue(b bool) FieldValue { return FieldValue{Kind: FieldBoolean, Bool: b} }

// ChoiceValue builds a choice field value holding the selected option ID.
func ChoiceValue(id string) FieldValue { return FieldValue{Kind: FieldChoice, Text: id} }

// Session is the durable conversation state for one phone number.
type Session struct {
	Phone          string                `json:"phone"`
	Journey        Journey               `json:"journey"`
	CurrentStep    StepID                `json:"current_step,omitempty"`
	Answers        map[string]FieldValue `json:"answers,omitempty"`
	Flags          map[string]bool       `json:"flags,omitempty"`
	Language       Language              `json:"language,omitempty"`
	LastActivityAt time.Time             `json:"last_activity_at"`
	Offers         []Offer               `json:"offers,omitempty"`
	ChosenOfferID  string                `json:"chosen_offer_id,omitempty"`
	CreatedAt      time.Time             `json:"created_at"`
	UpdatedAt      time.Time             `json:"updated_at"`
}

// NewSession creates a fresh session at the top-level menu.
func NewSession(phone string, now time.Time) *Session {
	return &Session{
		Phone:          phone,
		Journey:        JourneyNone,
		Answers:        make(map[string]FieldValue),
		Flags:          make(map[string]bool),
		LastActivityAt: now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Reset returns the session to the top-level menu. Language survives the
// reset; answers, flags, offers and the active journey do not.
func (s *Session) Reset() {
	s.Journey = JourneyNone
	s.CurrentStep = ""
	s.Answers = make(map[string]FieldValue)
	s.Flags = make(map[string]bool)
	s.Offers = nil
	s.ChosenOfferID = ""
}

// InboundEvent is one normalized incoming message from a messaging channel.
type InboundEvent struct {
	From       string    `json:"from"`
	Text       string    `json:"text,omitempty"`
	ButtonID   string    `json:"button_id,omitempty"`
	HasImage   bool      `json:"has_image,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
}

// PromptKind describes the shape of an outbound prompt.
type PromptKind string

const (
	PromptText     PromptKind = "text"
	PromptChoice   PromptKind = "choice"
	PromptDocument PromptKind = "document"
)

// ChoiceOption is one selectable (id, label) pair in a choice prompt.
type ChoiceOption struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// PromptSpec is a channel-agnostic outbound message. Channel adapters render
// it as native buttons where supported, or as a numbered text list otherwise.
type PromptSpec struct {
	Kind         PromptKind     `json:"kind"`
	Body         string         `json:"body"`
	Options      []ChoiceOption `json:"options,omitempty"`
	DocumentName string         `json:"document_name,omitempty"`
}

// Validation constants for prompt specs.
const (
	// MaxPromptBodyLength defines the maximum allowed length for prompt body content.
	MaxPromptBodyLength = 4096
	// MaxChoiceOptionsCount defines the maximum number of options in one choice prompt.
	MaxChoiceOptionsCount = 10
)

var (
	ErrEmptyPromptBody   = errors.New("prompt body cannot be empty")
	ErrPromptBodyTooLong = errors.New("prompt body exceeds maximum length")
	ErrNoChoiceOptions   = errors.New("choice prompt requires options")
	ErrTooManyOptions    = errors.New("too many choice options")
	ErrEmptyOptionID     = errors.New("choice option id cannot be empty")
)

// Validate performs structural validation on a PromptSpec before sending.
func (p *PromptSpec) Validate() error {
	if p.Body == "" {
		return ErrEmptyPromptBody
	}
	if len(p.Body) > MaxPromptBodyLength {
		return ErrPromptBodyTooLong
	}
	if p.Kind == PromptChoice {
		if len(p.Options) == 0 {
			return ErrNoChoiceOptions
		}
		if len(p.Options) > MaxChoiceOptionsCount {
			return ErrTooManyOptions
		}
		for _, opt := range p.Options {
			if opt.ID == "" {
				return ErrEmptyOptionID
			}
		}
	}
	return nil
}

// Interaction is one audit record of an inbound, outbound or system event.
// Recording is fire-and-forget: a failed write never blocks the conversation.
type Interaction struct {
	Phone     string            `json:"phone"`
	Direction string            `json:"direction"` // inbound, outbound, system
	Kind      string            `json:"kind"`
	Payload   map[string]string `json:"payload,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}
