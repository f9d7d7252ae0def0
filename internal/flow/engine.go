package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/quickrupee/loanflow/internal/decision"
	"github.com/quickrupee/loanflow/internal/i18n"
	"github.com/quickrupee/loanflow/internal/messaging"
	"github.com/quickrupee/loanflow/internal/models"
	"github.com/quickrupee/loanflow/internal/store"
)

// MaxPresentedOffers caps how many offers one choice prompt may present.
// Excess offers are dropped lowest-ranked-last with a logged truncation record.
const MaxPresentedOffers = 3

// awaitingLanguageFlag marks a session that has been shown the language
// chooser via the global "language" command.
const awaitingLanguageFlag = "awaiting_language"

// Sender is the outbound half of a messaging service, as seen by the engine.
type Sender interface {
	SendPrompt(ctx context.Context, to string, prompt models.PromptSpec) error
}

// SupportResponder answers free-form support questions. A nil responder
// degrades support to the built-in knowledge base.
type SupportResponder interface {
	Answer(ctx context.Context, question string, lang models.Language, loanContext string) (string, error)
}

// EngineOpts holds configuration options for the engine.
type EngineOpts struct {
	Decision            decision.Client
	Support             SupportResponder
	Validator           *Validator
	Now                 func() time.Time
	InactivityThreshold time.Duration
}

// EngineOption defines a configuration option for the engine.
type EngineOption func(*EngineOpts)

// WithDecisionClient sets the credit decision gateway.
func WithDecisionClient(c decision.Client) EngineOption {
	return func(o *EngineOpts) { o.Decision = c }
}

// WithSupportResponder sets the LLM-backed support responder.
func WithSupportResponder(r SupportResponder) EngineOption {
	return func(o *EngineOpts) { o.Support = r }
}

// WithValidator overrides the field validator.
func WithValidator(v *Validator) EngineOption {
	return func(o *EngineOpts) { o.Validator = v }
}

// WithClock overrides the engine's time source.
func WithClock(now func() time.Time) EngineOption {
	return func(o *EngineOpts) { o.Now = now }
}

// WithInactivityThreshold overrides the session staleness threshold.
func WithInactivityThreshold(d time.Duration) EngineOption {
	return func(o *EngineOpts) { o.InactivityThreshold = d }
}

// Engine is the dialog orchestrator. One inbound event is processed per call;
// events for the same phone are serialized, distinct phones run concurrently.
type Engine struct {
	store     store.Store
	sender    Sender
	decision  decision.Client
	support   SupportResponder
	validator *Validator
	locks     *keyedMutex
	now       func() time.Time
	threshold time.Duration
}

// NewEngine creates an engine bound to a store and a messaging sender.
// Without WithDecisionClient it uses the local rules engine.
func NewEngine(st store.Store, sender Sender, opts ...EngineOption) *Engine {
	var cfg EngineOpts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Decision == nil {
		cfg.Decision = decision.NewLocalClient()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Validator == nil {
		v := NewValidator()
		v.Now = cfg.Now
		cfg.Validator = v
	}
	if cfg.InactivityThreshold == 0 {
		cfg.InactivityThreshold = DefaultInactivityThreshold
	}
	slog.Debug("Engine created", "support_responder", cfg.Support != nil, "inactivity_threshold", cfg.InactivityThreshold)
	return &Engine{
		store:     st,
		sender:    sender,
		decision:  cfg.Decision,
		support:   cfg.Support,
		validator: cfg.Validator,
		locks:     newKeyedMutex(),
		now:       cfg.Now,
		threshold: cfg.InactivityThreshold,
	}
}

// HandleEvent processes one inbound event through the orchestration
// algorithm: staleness check, routing, validation, state transition and
// prompt delivery. The session is persisted only on a completed transition;
// gateway failures leave stored state untouched so the event can be retried.
func (e *Engine) HandleEvent(ctx context.Context, ev models.InboundEvent) error {
	if ev.From == "" {
		return fmt.Errorf("inbound event missing sender")
	}
	e.locks.Lock(ev.From)
	defer e.locks.Unlock(ev.From)

	now := e.now()
	slog.Debug("Engine HandleEvent invoked", "from", ev.From, "text_length", len(ev.Text), "button_id", ev.ButtonID, "has_image", ev.HasImage)

	sess, err := e.store.GetSession(ev.From)
	if err != nil {
		slog.Error("Engine failed to load session", "error", err, "from", ev.From)
		return fmt.Errorf("%w: load session for %s: %v", models.ErrStoreFailure, ev.From, err)
	}
	if sess == nil {
		sess = models.NewSession(ev.From, now)
	}

	e.audit(ev.From, "inbound", "message", map[string]string{
		"text": ev.Text, "button_id": ev.ButtonID,
	})

	expired := ResetIfStale(sess, now, e.threshold)
	pack := i18n.ForLanguage(sess.Language)
	if expired {
		e.audit(ev.From, "system", "session_expired", nil)
		e.send(ctx, ev.From, models.PromptSpec{Kind: models.PromptText, Body: pack.SessionExpired})
	}

	// The "language" command works at any point in any journey.
	if isLanguageCommand(ev.Text) {
		return e.beginLanguageChange(ctx, sess, now, pack)
	}
	if sess.Flags[awaitingLanguageFlag] {
		return e.finishLanguageChange(ctx, sess, ev, now)
	}

	// The re-entrant tracks have no terminal step; an explicit intent is the
	// only way out of them, so it is checked before journey dispatch.
	if sess.Journey == models.JourneySupport || sess.Journey == models.JourneyPostLoan {
		text := strings.ToLower(strings.TrimSpace(ev.Text))
		if ev.ButtonID == OptGetLoan || loanKeywords[text] {
			e.audit(sess.Phone, "system", "intent_switch", map[string]string{"to": string(models.JourneyOnboarding)})
			return e.enterJourney(ctx, sess, models.JourneyOnboarding, now)
		}
		if sess.Journey == models.JourneyPostLoan && (ev.ButtonID == OptSupport || supportKeywords[text]) {
			e.audit(sess.Phone, "system", "intent_switch", map[string]string{"to": string(models.JourneySupport)})
			return e.enterJourney(ctx, sess, models.JourneySupport, now)
		}
	}

	if sess.Journey == models.JourneyNone {
		return e.routeIntent(ctx, sess, ev, now)
	}
	return e.handleStep(ctx, sess, ev, now)
}

// languageCommands are the global command forms that reopen the language chooser.
var languageCommands = map[string]bool{"language": true, "bhasha": true, "भाषा": true}

func isLanguageCommand(text string) bool {
	return languageCommands[strings.ToLower(strings.TrimSpace(text))]
}

func (e *Engine) beginLanguageChange(ctx context.Context, sess *models.Session, now time.Time, pack i18n.Pack) error {
	sess.Flags[awaitingLanguageFlag] = true
	if err := e.saveSession(sess, now); err != nil {
		return err
	}
	e.send(ctx, sess.Phone, models.PromptSpec{
		Kind:    models.PromptChoice,
		Body:    pack.LanguagePrompt,
		Options: languageOptions(pack),
	})
	return nil
}

func (e *Engine) finishLanguageChange(ctx context.Context, sess *models.Session, ev models.InboundEvent, now time.Time) error {
	pack := i18n.ForLanguage(sess.Language)
	chooser := models.PromptSpec{Kind: models.PromptChoice, Body: pack.LanguagePrompt, Options: languageOptions(pack)}
	switch messaging.ResolveOptionID(chooser, ev) {
	case OptLangEN:
		sess.Language = models.LanguageEnglish
	case OptLangHI:
		sess.Language = models.LanguageHindi
	default:
		e.send(ctx, sess.Phone, models.PromptSpec{Kind: models.PromptText, Body: pack.InvalidChoice})
		e.send(ctx, sess.Phone, chooser)
		return e.saveSession(sess, now)
	}
	delete(sess.Flags, awaitingLanguageFlag)
	if err := e.saveSession(sess, now); err != nil {
		return err
	}
	pack = i18n.ForLanguage(sess.Language)
	e.send(ctx, sess.Phone, models.PromptSpec{Kind: models.PromptText, Body: pack.LanguageChanged})
	e.resendCurrent(ctx, sess, pack)
	return nil
}

// resendCurrent re-announces the session's pending step, or the top-level
// menu when no journey is active.
func (e *Engine) resendCurrent(ctx context.Context, sess *models.Session, pack i18n.Pack) {
	if sess.Journey == models.JourneyNone {
		e.send(ctx, sess.Phone, models.PromptSpec{Kind: models.PromptChoice, Body: pack.MainMenuIntro, Options: mainMenuOptions(pack)})
		return
	}
	step, err := StepByID(sess.Journey, sess.CurrentStep)
	if err != nil {
		slog.Error("Engine resendCurrent step lookup failed", "error", err, "phone", sess.Phone)
		return
	}
	e.send(ctx, sess.Phone, PromptForStep(step, sess, pack))
}

// Intent keyword tables for routing from the top-level menu.
var (
	loanKeywords    = map[string]bool{"apply": true, "loan": true, "get loan": true, "start": true, "restart": true}
	supportKeywords = map[string]bool{"support": true, "help": true, "emi": true, "statement": true, "status": true, "issue": true, "problem": true, "agent": true}
)

// routeIntent handles an event for a session with no active journey. Loan and
// support intents (button, numbered menu reply or keyword) open their tracks;
// customers with a decided loan land on the post-loan menu; anything else
// re-shows the top-level menu and leaves the session where it was.
func (e *Engine) routeIntent(ctx context.Context, sess *models.Session, ev models.InboundEvent, now time.Time) error {
	text := strings.ToLower(strings.TrimSpace(ev.Text))
	pack := i18n.ForLanguage(sess.Language)
	menu := models.PromptSpec{Kind: models.PromptChoice, Body: pack.MainMenuIntro, Options: mainMenuOptions(pack)}
	selected := messaging.ResolveOptionID(menu, ev)

	if selected == OptSupport || supportKeywords[text] {
		return e.enterJourney(ctx, sess, models.JourneySupport, now)
	}
	if selected == OptGetLoan || loanKeywords[text] {
		return e.enterJourney(ctx, sess, models.JourneyOnboarding, now)
	}

	rec, err := e.store.GetLoanRecord(sess.Phone)
	if err != nil {
		slog.Error("Engine routeIntent loan record lookup failed", "error", err, "phone", sess.Phone)
	} else if rec != nil && rec.Status != "declined" {
		return e.enterJourney(ctx, sess, models.JourneyPostLoan, now)
	}

	e.send(ctx, sess.Phone, menu)
	return e.saveSession(sess, now)
}

// enterJourney switches the session to a journey's entry step and announces
// it. Sessions with a known language skip the language chooser.
func (e *Engine) enterJourney(ctx context.Context, sess *models.Session, j models.Journey, now time.Time) error {
	first, err := FirstStep(j)
	if err != nil {
		return e.recoverCorruption(ctx, sess, now, err)
	}
	sess.Journey = j
	sess.CurrentStep = first.ID
	if j == models.JourneyOnboarding && sess.Language != "" && first.ID == StepLanguageSelect {
		sess.CurrentStep = StepIntentConfirm
	}
	if err := e.saveSession(sess, now); err != nil {
		return err
	}
	e.audit(sess.Phone, "system", "journey_started", map[string]string{"journey": string(j)})
	pack := i18n.ForLanguage(sess.Language)
	step, err := StepByID(sess.Journey, sess.CurrentStep)
	if err != nil {
		return e.recoverCorruption(ctx, sess, now, err)
	}
	e.send(ctx, sess.Phone, PromptForStep(step, sess, pack))
	return nil
}

// handleStep processes an event against the session's pending step.
func (e *Engine) handleStep(ctx context.Context, sess *models.Session, ev models.InboundEvent, now time.Time) error {
	switch sess.Journey {
	case models.JourneySupport:
		return e.handleSupport(ctx, sess, ev, now)
	case models.JourneyPostLoan:
		return e.handlePostLoan(ctx, sess, ev, now)
	}

	step, err := StepByID(sess.Journey, sess.CurrentStep)
	if err != nil {
		return e.recoverCorruption(ctx, sess, now, err)
	}
	pack := i18n.ForLanguage(sess.Language)

	switch step.Input {
	case models.InputChoice:
		return e.handleChoiceStep(ctx, sess, step, ev, now, pack)
	case models.InputFreeText:
		return e.handleTextStep(ctx, sess, step, ev, now, pack)
	case models.InputDocument:
		return e.handleDocumentStep(ctx, sess, step, ev, now, pack)
	default:
		// Side-effect steps expect no input; re-running the side effect here
		// would double-charge the gateway, so just advance.
		return e.advance(ctx, sess, step, now, pack)
	}
}

// handleChoiceStep resolves the reply against the step's options and applies
// the step-specific transition.
func (e *Engine) handleChoiceStep(ctx context.Context, sess *models.Session, step JourneyStep, ev models.InboundEvent, now time.Time, pack i18n.Pack) error {
	prompt := PromptForStep(step, sess, pack)
	choice, err := e.validator.ValidateChoice(messaging.ResolveOptionID(prompt, ev), optionIDs(prompt))
	if err != nil {
		// Routing miss: re-show the current menu.
		slog.Debug("Engine routing miss", "phone", sess.Phone, "step", step.ID, "text", ev.Text, "button_id", ev.ButtonID)
		e.send(ctx, sess.Phone, models.PromptSpec{Kind: models.PromptText, Body: pack.InvalidChoice})
		e.send(ctx, sess.Phone, prompt)
		return e.saveSession(sess, now)
	}
	selected := choice.Text

	switch step.ID {
	case StepLanguageSelect:
		if selected == OptLangHI {
			sess.Language = models.LanguageHindi
		} else {
			sess.Language = models.LanguageEnglish
		}
		sess.Answers[step.FieldName] = models.ChoiceValue(selected)
		return e.advance(ctx, sess, step, now, i18n.ForLanguage(sess.Language))

	case StepIntentConfirm:
		if selected == OptSupport {
			return e.enterJourney(ctx, sess, models.JourneySupport, now)
		}
		sess.Answers[step.FieldName] = models.ChoiceValue(selected)
		return e.advance(ctx, sess, step, now, pack)

	case StepEmployment:
		sess.Answers[step.FieldName] = models.TextValue(labelForOption(prompt, selected))
		return e.advance(ctx, sess, step, now, pack)

	case StepPurpose:
		sess.Answers[step.FieldName] = models.TextValue(labelForOption(prompt, selected))
		return e.advance(ctx, sess, step, now, pack)

	case StepOfferSelect:
		if selected == OptConnectAgent {
			return e.escalate(ctx, sess, now, pack, "offer_stage")
		}
		offerID := strings.TrimPrefix(selected, OfferOptionPrefix)
		if findOffer(sess.Offers, offerID) == nil {
			e.send(ctx, sess.Phone, models.PromptSpec{Kind: models.PromptText, Body: pack.InvalidChoice})
			e.send(ctx, sess.Phone, prompt)
			return e.saveSession(sess, now)
		}
		sess.ChosenOfferID = offerID
		sess.Answers[step.FieldName] = models.ChoiceValue(offerID)
		return e.advance(ctx, sess, step, now, pack)

	case StepKYCAck:
		sess.Flags["kyc_completed"] = true
		e.send(ctx, sess.Phone, models.PromptSpec{Kind: models.PromptText, Body: pack.KYCCompleted})
		return e.advance(ctx, sess, step, now, pack)

	case StepNACHAck:
		sess.Flags["nach_completed"] = true
		e.send(ctx, sess.Phone, models.PromptSpec{Kind: models.PromptText, Body: pack.NACHDone})
		return e.advance(ctx, sess, step, now, pack)

	case StepAgreementAck:
		if selected == OptAgreeNo {
			e.audit(sess.Phone, "system", "agreement_declined", nil)
			e.send(ctx, sess.Phone, models.PromptSpec{Kind: models.PromptText, Body: pack.AgreementDeclined})
			sess.Reset()
			return e.saveSession(sess, now)
		}
		sess.Flags["agreement_signed"] = true
		e.send(ctx, sess.Phone, models.PromptSpec{Kind: models.PromptText, Body: pack.AgreementSigned})
		return e.advance(ctx, sess, step, now, pack)

	default:
		sess.Answers[step.FieldName] = models.ChoiceValue(selected)
		return e.advance(ctx, sess, step, now, pack)
	}
}

// handleTextStep validates free text input and either stores the typed value
// and advances, or re-prompts with a hint.
func (e *Engine) handleTextStep(ctx context.Context, sess *models.Session, step JourneyStep, ev models.InboundEvent, now time.Time, pack i18n.Pack) error {
	value, err := e.validator.Validate(step.Field, ev.Text)
	if err != nil {
		slog.Debug("Engine validation failure", "phone", sess.Phone, "step", step.ID, "error", err)
		e.audit(sess.Phone, "system", "validation_failure", map[string]string{"step": string(step.ID), "error": err.Error()})
		e.send(ctx, sess.Phone, models.PromptSpec{Kind: models.PromptText, Body: HintForValidationError(err, step, pack)})
		e.send(ctx, sess.Phone, PromptForStep(step, sess, pack))
		return e.saveSession(sess, now)
	}

	if step.ID == StepConsent && !value.Bool {
		e.audit(sess.Phone, "system", "consent_declined", nil)
		e.send(ctx, sess.Phone, models.PromptSpec{Kind: models.PromptText, Body: pack.ConsentRequired})
		e.send(ctx, sess.Phone, PromptForStep(step, sess, pack))
		return e.saveSession(sess, now)
	}

	sess.Answers[step.FieldName] = value
	return e.advance(ctx, sess, step, now, pack)
}

// handleDocumentStep handles image-bearing steps (the selfie capture).
func (e *Engine) handleDocumentStep(ctx context.Context, sess *models.Session, step JourneyStep, ev models.InboundEvent, now time.Time, pack i18n.Pack) error {
	if !ev.HasImage {
		e.send(ctx, sess.Phone, PromptForStep(step, sess, pack))
		return e.saveSession(sess, now)
	}
	sess.Flags[step.FieldName] = true
	e.send(ctx, sess.Phone, models.PromptSpec{Kind: models.PromptText, Body: pack.SelfieReceived})
	return e.advance(ctx, sess, step, now, pack)
}

// advance moves past a completed step, running side-effect steps until the
// next input-bearing step is announced or the journey ends. Gateway failures
// abort without persisting, so the stored session still points at the
// completed step and the event can be retried.
func (e *Engine) advance(ctx context.Context, sess *models.Session, completed JourneyStep, now time.Time, pack i18n.Pack) error {
	current := completed
	for {
		next, terminal, err := NextStep(sess.Journey, current.ID)
		if err != nil {
			return e.recoverCorruption(ctx, sess, now, err)
		}
		if terminal {
			sess.Reset()
			return e.saveSession(sess, now)
		}
		sess.CurrentStep = next.ID

		switch next.SideEffect {
		case SideEffectGenerateOffers:
			done, err := e.generateOffers(ctx, sess, now, pack)
			if err != nil || done {
				return err
			}
			current = next
			continue
		case SideEffectFinalDecision:
			return e.finalDecision(ctx, sess, now, pack)
		}

		if err := e.saveSession(sess, now); err != nil {
			return err
		}
		e.send(ctx, sess.Phone, PromptForStep(next, sess, pack))
		return nil
	}
}

// generateOffers runs the offer side effect. It returns done=true when the
// journey was concluded (rejection); otherwise the caller continues advancing
// to the offer-selection step.
func (e *Engine) generateOffers(ctx context.Context, sess *models.Session, now time.Time, pack i18n.Pack) (bool, error) {
	e.send(ctx, sess.Phone, models.PromptSpec{Kind: models.PromptText, Body: pack.DecisionSubmit})

	app := e.buildApplication(sess, now)
	offers, err := e.decision.ProposeOffers(ctx, app)
	if err != nil {
		slog.Error("Engine offer generation failed", "error", err, "phone", sess.Phone)
		e.audit(sess.Phone, "system", "gateway_failure", map[string]string{"stage": "propose_offers", "error": err.Error()})
		e.send(ctx, sess.Phone, models.PromptSpec{Kind: models.PromptText, Body: pack.TryAgainLater})
		return true, fmt.Errorf("%w: propose offers: %v", models.ErrGatewayFailure, err)
	}

	if len(offers) == 0 {
		e.audit(sess.Phone, "system", "application_rejected", map[string]string{"stage": "offers"})
		e.send(ctx, sess.Phone, models.PromptSpec{Kind: models.PromptText, Body: fmt.Sprintf(pack.DecisionRejected, "policy")})
		sess.Reset()
		return true, e.saveSession(sess, now)
	}

	if len(offers) > MaxPresentedOffers {
		slog.Warn("Engine truncating offers beyond presentation cap",
			"phone", sess.Phone, "returned", len(offers), "cap", MaxPresentedOffers)
		e.audit(sess.Phone, "system", "offers_truncated", map[string]string{
			"returned": fmt.Sprintf("%d", len(offers)),
			"shown":    fmt.Sprintf("%d", MaxPresentedOffers),
		})
		offers = offers[:MaxPresentedOffers]
	}

	sess.Offers = offers
	return false, nil
}

// finalDecision runs the terminal side effect: settle the application,
// persist the loan record and route the customer onward.
func (e *Engine) finalDecision(ctx context.Context, sess *models.Session, now time.Time, pack i18n.Pack) error {
	app := e.buildApplication(sess, now)
	chosen := findOffer(sess.Offers, sess.ChosenOfferID)

	dec, err := e.decision.FinalDecision(ctx, app, chosen)
	if err != nil {
		slog.Error("Engine final decision failed", "error", err, "phone", sess.Phone)
		e.audit(sess.Phone, "system", "gateway_failure", map[string]string{"stage": "final_decision", "error": err.Error()})
		e.send(ctx, sess.Phone, models.PromptSpec{Kind: models.PromptText, Body: pack.TryAgainLater})
		return fmt.Errorf("%w: final decision: %v", models.ErrGatewayFailure, err)
	}

	rec := models.LoanRecord{
		Phone:            sess.Phone,
		ReferenceID:      dec.ReferenceID,
		Amount:           dec.OfferAmount,
		APR:              dec.APR,
		TermMonths:       dec.MaxTermMonths,
		Purpose:          app.Purpose,
		MonthlyIncome:    app.MonthlyIncome,
		EmploymentStatus: app.EmploymentStatus,
		Reason:           dec.Reason,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if !dec.Approved {
		rec.Status = "declined"
		if err := e.store.SaveLoanRecord(rec); err != nil {
			slog.Error("Engine failed to save declined loan record", "error", err, "phone", sess.Phone)
		}
		e.audit(sess.Phone, "system", "final_reject", map[string]string{"reason": dec.Reason})
		e.send(ctx, sess.Phone, models.PromptSpec{Kind: models.PromptText, Body: fmt.Sprintf(pack.FinalReject, dec.Reason)})
		sess.Reset()
		return e.saveSession(sess, now)
	}

	rec.Status = "disbursed"
	if err := e.store.SaveLoanRecord(rec); err != nil {
		slog.Error("Engine failed to save loan record", "error", err, "phone", sess.Phone)
		e.send(ctx, sess.Phone, models.PromptSpec{Kind: models.PromptText, Body: pack.TryAgainLater})
		return fmt.Errorf("%w: save loan record: %v", models.ErrStoreFailure, err)
	}
	e.audit(sess.Phone, "outbound", "disbursed", map[string]string{"amount": fmt.Sprintf("%.0f", dec.OfferAmount), "reference": dec.ReferenceID})
	e.send(ctx, sess.Phone, models.PromptSpec{Kind: models.PromptText, Body: fmt.Sprintf(pack.FinalApproval, dec.OfferAmount, dec.ReferenceID)})

	// Decided customers land on the post-loan menu.
	sess.Journey = models.JourneyPostLoan
	sess.CurrentStep = StepPostLoanMenu
	sess.Answers = make(map[string]models.FieldValue)
	sess.Flags = make(map[string]bool)
	sess.Offers = nil
	if err := e.saveSession(sess, now); err != nil {
		return err
	}
	step, _ := StepByID(models.JourneyPostLoan, StepPostLoanMenu)
	e.send(ctx, sess.Phone, PromptForStep(step, sess, pack))
	return nil
}

// buildApplication projects the session's answers into a loan application.
func (e *Engine) buildApplication(sess *models.Session, now time.Time) models.LoanApplication {
	age := 0
	if dob := sess.Answers["dob"].Date; dob != "" {
		if t, err := time.Parse(CanonicalDateFormat, dob); err == nil {
			age = AgeAt(t, now)
		}
	}
	income := sess.Answers["monthly_income"].Number
	requested := income * 2
	if chosen := findOffer(sess.Offers, sess.ChosenOfferID); chosen != nil {
		requested = chosen.Amount
	}
	return models.LoanApplication{
		ApplicationID:    uuid.NewString(),
		CustomerPhone:    sess.Phone,
		FullName:         sess.Answers["full_name"].Text,
		Age:              age,
		EmploymentStatus: sess.Answers["employment_status"].Text,
		MonthlyIncome:    income,
		RequestedAmount:  requested,
		Purpose:          sess.Answers["purpose"].Text,
		ConsentToCheck:   sess.Answers["consent_to_credit_check"].Bool,
	}
}

// recoverCorruption handles a session referencing an unknown step or journey:
// log the incident, reset to the top-level menu and re-orient the user.
func (e *Engine) recoverCorruption(ctx context.Context, sess *models.Session, now time.Time, cause error) error {
	slog.Error("Engine state corruption, resetting session", "error", cause, "phone", sess.Phone,
		"journey", sess.Journey, "step", sess.CurrentStep)
	e.audit(sess.Phone, "system", "state_corruption", map[string]string{"error": cause.Error()})
	sess.Reset()
	if err := e.saveSession(sess, now); err != nil {
		return err
	}
	pack := i18n.ForLanguage(sess.Language)
	e.send(ctx, sess.Phone, models.PromptSpec{Kind: models.PromptChoice, Body: pack.MainMenuIntro, Options: mainMenuOptions(pack)})
	return nil
}

// saveSession stamps activity and persists. A store error is fatal for this
// event only; the caller's transport decides whether to redeliver.
func (e *Engine) saveSession(sess *models.Session, now time.Time) error {
	sess.LastActivityAt = now
	sess.UpdatedAt = now
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = now
	}
	if err := e.store.SaveSession(*sess); err != nil {
		slog.Error("Engine failed to save session", "error", err, "phone", sess.Phone)
		return fmt.Errorf("%w: save session for %s: %v", models.ErrStoreFailure, sess.Phone, err)
	}
	return nil
}

// send delivers a prompt, logging and auditing but never failing the event:
// outbound delivery problems must not corrupt the state transition.
func (e *Engine) send(ctx context.Context, to string, prompt models.PromptSpec) {
	if err := e.sender.SendPrompt(ctx, to, prompt); err != nil {
		slog.Error("Engine failed to send prompt", "error", err, "to", to, "kind", prompt.Kind)
		return
	}
	e.audit(to, "outbound", "prompt", map[string]string{"kind": string(prompt.Kind), "body": prompt.Body})
}

// audit records one interaction, fire and forget.
func (e *Engine) audit(phone, direction, kind string, payload map[string]string) {
	i := models.Interaction{
		Phone:     phone,
		Direction: direction,
		Kind:      kind,
		Payload:   payload,
		Timestamp: e.now(),
	}
	if err := e.store.AddInteraction(i); err != nil {
		slog.Error("Engine failed to record interaction", "error", err, "phone", phone, "kind", kind)
	}
}

// optionIDs lists a prompt's option IDs for choice validation.
func optionIDs(p models.PromptSpec) []string {
	ids := make([]string, 0, len(p.Options))
	for _, opt := range p.Options {
		ids = append(ids, opt.ID)
	}
	return ids
}

// labelForOption returns the label of the option with the given ID.
func labelForOption(p models.PromptSpec, id string) string {
	for _, opt := range p.Options {
		if opt.ID == id {
			return opt.Label
		}
	}
	return id
}

// findOffer returns the stored offer with the given ID, or nil.
func findOffer(offers []models.Offer, id string) *models.Offer {
	if id == "" {
		return nil
	}
	for i := range offers {
		if offers[i].ID == id {
			return &offers[i]
		}
	}
	return nil
}
