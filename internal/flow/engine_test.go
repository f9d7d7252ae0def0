package flow

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/quickrupee/loanflow/internal/i18n"
	"github.com/quickrupee/loanflow/internal/models"
	"github.com/quickrupee/loanflow/internal/store"
)

var baseTime = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

const testPhone = "+919876543210"

// recordingSender captures outbound prompts for assertions.
type recordingSender struct {
	mu   sync.Mutex
	sent []models.PromptSpec
	err  error
}

func (r *recordingSender) SendPrompt(ctx context.Context, to string, prompt models.PromptSpec) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, prompt)
	return nil
}

func (r *recordingSender) prompts() []models.PromptSpec {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.PromptSpec, len(r.sent))
	copy(out, r.sent)
	return out
}

func (r *recordingSender) last() models.PromptSpec {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.sent) == 0 {
		return models.PromptSpec{}
	}
	return r.sent[len(r.sent)-1]
}

func (r *recordingSender) containsBody(sub string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.sent {
		if strings.Contains(p.Body, sub) {
			return true
		}
	}
	return false
}

func (r *recordingSender) clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = nil
}

// stubDecision is a scripted credit gateway.
type stubDecision struct {
	offers    []models.Offer
	offersErr error
	dec       models.Decision
	decErr    error

	proposeCalls int
	finalCalls   int
}

func (d *stubDecision) ProposeOffers(ctx context.Context, app models.LoanApplication) ([]models.Offer, error) {
	d.proposeCalls++
	return d.offers, d.offersErr
}

func (d *stubDecision) FinalDecision(ctx context.Context, app models.LoanApplication, chosen *models.Offer) (models.Decision, error) {
	d.finalCalls++
	return d.dec, d.decErr
}

// stubResponder is a scripted LLM support backend.
type stubResponder struct {
	answer       string
	err          error
	lastQuestion string
}

func (s *stubResponder) Answer(ctx context.Context, question string, lang models.Language, loanContext string) (string, error) {
	s.lastQuestion = question
	return s.answer, s.err
}

func testOffers() []models.Offer {
	return []models.Offer{
		{ID: "OFFER1", Amount: 90000, APR: 18.0, TermMonths: 6, ProcessingFeePct: 3.0, MonthlyEMI: 15798},
		{ID: "OFFER2", Amount: 103500, APR: 21.0, TermMonths: 9, ProcessingFeePct: 2.5, MonthlyEMI: 12530},
		{ID: "OFFER3", Amount: 121500, APR: 24.0, TermMonths: 12, ProcessingFeePct: 2.0, MonthlyEMI: 11489},
	}
}

func newTestEngine(t *testing.T, opts ...EngineOption) (*Engine, *store.InMemoryStore, *recordingSender) {
	t.Helper()
	st := store.NewInMemoryStore()
	sender := &recordingSender{}
	all := append([]EngineOption{WithClock(func() time.Time { return baseTime })}, opts...)
	return NewEngine(st, sender, all...), st, sender
}

func say(t *testing.T, e *Engine, text string) {
	t.Helper()
	ev := models.InboundEvent{From: testPhone, Text: text, ReceivedAt: baseTime}
	if err := e.HandleEvent(context.Background(), ev); err != nil {
		t.Fatalf("HandleEvent(%q) failed: %v", text, err)
	}
}

func mustSession(t *testing.T, st *store.InMemoryStore) *models.Session {
	t.Helper()
	sess, err := st.GetSession(testPhone)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if sess == nil {
		t.Fatal("expected a stored session")
	}
	return sess
}

func hasInteraction(st *store.InMemoryStore, kind string) bool {
	for _, i := range st.Interactions() {
		if i.Kind == kind {
			return true
		}
	}
	return false
}

func TestHandleEventRequiresSender(t *testing.T) {
	e, _, _ := newTestEngine(t)
	err := e.HandleEvent(context.Background(), models.InboundEvent{Text: "hi"})
	if err == nil {
		t.Fatal("expected error for event without sender")
	}
}

func TestFullOnboardingToDisbursal(t *testing.T) {
	dec := &stubDecision{
		offers: testOffers(),
		dec: models.Decision{
			Approved:      true,
			ReferenceID:   "REF-000123",
			OfferAmount:   90000,
			APR:           18.0,
			MaxTermMonths: 6,
		},
	}
	e, st, sender := newTestEngine(t, WithDecisionClient(dec))
	en := i18n.ForLanguage(models.LanguageEnglish)

	say(t, e, "hi")
	sess := mustSession(t, st)
	if sess.Journey != models.JourneyNone {
		t.Fatalf("expected greeting to show the menu without starting a journey, got %s", sess.Journey)
	}
	if !sender.containsBody(en.MainMenuIntro) {
		t.Fatal("expected top-level menu to be sent")
	}

	say(t, e, "1") // Get a loan
	sess = mustSession(t, st)
	if sess.Journey != models.JourneyOnboarding || sess.CurrentStep != StepLanguageSelect {
		t.Fatalf("expected language-select, got %s/%s", sess.Journey, sess.CurrentStep)
	}
	if !sender.containsBody(en.LanguagePrompt) {
		t.Fatal("expected language chooser to be sent")
	}

	say(t, e, "1") // English
	sess = mustSession(t, st)
	if sess.Language != models.LanguageEnglish {
		t.Fatalf("expected language en, got %q", sess.Language)
	}
	if sess.CurrentStep != StepIntentConfirm {
		t.Fatalf("expected intent-confirm, got %s", sess.CurrentStep)
	}

	say(t, e, "1") // Get a loan
	say(t, e, "Jane Doe")
	say(t, e, "15-08-1992")
	say(t, e, "1") // Salaried
	say(t, e, "₹40,000")
	say(t, e, "2") // purpose
	sess = mustSession(t, st)
	if sess.CurrentStep != StepConsent {
		t.Fatalf("expected consent, got %s", sess.CurrentStep)
	}
	if sess.Answers["full_name"].Text != "Jane Doe" {
		t.Errorf("name not stored: %+v", sess.Answers["full_name"])
	}
	if sess.Answers["monthly_income"].Number != 40000 {
		t.Errorf("income not stored: %+v", sess.Answers["monthly_income"])
	}

	sender.clear()
	say(t, e, "yes") // consent, triggers offer generation
	sess = mustSession(t, st)
	if dec.proposeCalls != 1 {
		t.Fatalf("expected one ProposeOffers call, got %d", dec.proposeCalls)
	}
	if sess.CurrentStep != StepOfferSelect {
		t.Fatalf("expected offer-select, got %s", sess.CurrentStep)
	}
	if len(sess.Offers) != 3 {
		t.Fatalf("expected 3 stored offers, got %d", len(sess.Offers))
	}
	if !sender.containsBody(en.DecisionSubmit) {
		t.Error("expected submission acknowledgment before offers")
	}
	offerPrompt := sender.last()
	if offerPrompt.Kind != models.PromptChoice || len(offerPrompt.Options) != 4 {
		t.Fatalf("expected 3 offers plus agent option, got %d options", len(offerPrompt.Options))
	}

	say(t, e, "1") // first offer
	sess = mustSession(t, st)
	if sess.ChosenOfferID != "OFFER1" {
		t.Fatalf("expected OFFER1 chosen, got %q", sess.ChosenOfferID)
	}
	if sess.CurrentStep != StepKYCAck {
		t.Fatalf("expected kyc-ack, got %s", sess.CurrentStep)
	}

	say(t, e, "1") // KYC done
	sess = mustSession(t, st)
	if !sess.Flags["kyc_completed"] {
		t.Error("expected kyc_completed flag")
	}
	if sess.CurrentStep != StepSelfieAck {
		t.Fatalf("expected selfie-ack, got %s", sess.CurrentStep)
	}

	// A text-only reply does not satisfy the selfie step.
	say(t, e, "here you go")
	if mustSession(t, st).CurrentStep != StepSelfieAck {
		t.Fatal("expected selfie step to re-prompt on text-only reply")
	}
	if err := e.HandleEvent(context.Background(), models.InboundEvent{From: testPhone, HasImage: true, ReceivedAt: baseTime}); err != nil {
		t.Fatalf("selfie event failed: %v", err)
	}
	sess = mustSession(t, st)
	if !sess.Flags["selfie_received"] {
		t.Error("expected selfie_received flag")
	}
	if sess.CurrentStep != StepBankDetails {
		t.Fatalf("expected bank-details, got %s", sess.CurrentStep)
	}

	say(t, e, "HDFC0001234\n50100012345678")
	say(t, e, "1") // NACH done
	sess = mustSession(t, st)
	if sess.CurrentStep != StepAgreementAck {
		t.Fatalf("expected agreement-ack, got %s", sess.CurrentStep)
	}

	sender.clear()
	say(t, e, "1") // I agree
	if dec.finalCalls != 1 {
		t.Fatalf("expected one FinalDecision call, got %d", dec.finalCalls)
	}
	sess = mustSession(t, st)
	if sess.Journey != models.JourneyPostLoan || sess.CurrentStep != StepPostLoanMenu {
		t.Fatalf("expected post-loan menu after disbursal, got %s/%s", sess.Journey, sess.CurrentStep)
	}
	if !sender.containsBody("REF-000123") {
		t.Error("expected approval message to carry the loan reference")
	}

	rec, err := st.GetLoanRecord(testPhone)
	if err != nil || rec == nil {
		t.Fatalf("expected stored loan record, got %v / %v", rec, err)
	}
	if rec.Status != "disbursed" {
		t.Errorf("expected status disbursed, got %q", rec.Status)
	}
	if rec.ReferenceID != "REF-000123" || rec.Amount != 90000 {
		t.Errorf("unexpected record contents: %+v", rec)
	}
}

func TestInvalidIncomeReprompts(t *testing.T) {
	e, st, sender := newTestEngine(t)
	seedOnboardingAt(t, st, StepIncome)
	en := i18n.ForLanguage(models.LanguageEnglish)

	say(t, e, "-500")
	sess := mustSession(t, st)
	if sess.CurrentStep != StepIncome {
		t.Fatalf("expected step unchanged, got %s", sess.CurrentStep)
	}
	if _, stored := sess.Answers["monthly_income"]; stored {
		t.Error("rejected input must not be stored")
	}
	if !sender.containsBody(en.NonPositiveHint) {
		t.Error("expected non-positive hint")
	}
	if !hasInteraction(st, "validation_failure") {
		t.Error("expected validation_failure interaction")
	}

	sender.clear()
	say(t, e, "40000")
	sess = mustSession(t, st)
	if sess.CurrentStep != StepPurpose {
		t.Fatalf("expected advance after valid retry, got %s", sess.CurrentStep)
	}
	if sess.Answers["monthly_income"].Number != 40000 {
		t.Errorf("income not stored after retry: %+v", sess.Answers["monthly_income"])
	}
}

func TestConsentDeclinedBlocksAdvance(t *testing.T) {
	e, st, sender := newTestEngine(t)
	seedOnboardingAt(t, st, StepConsent)
	en := i18n.ForLanguage(models.LanguageEnglish)

	say(t, e, "no")
	sess := mustSession(t, st)
	if sess.CurrentStep != StepConsent {
		t.Fatalf("expected to stay on consent, got %s", sess.CurrentStep)
	}
	if !sender.containsBody(en.ConsentRequired) {
		t.Error("expected consent-required message")
	}
	if !hasInteraction(st, "consent_declined") {
		t.Error("expected consent_declined interaction")
	}
}

func TestRoutingMissRepromptsMenu(t *testing.T) {
	e, st, sender := newTestEngine(t)
	seedOnboardingAt(t, st, StepEmployment)
	en := i18n.ForLanguage(models.LanguageEnglish)

	say(t, e, "purple monkey")
	sess := mustSession(t, st)
	if sess.CurrentStep != StepEmployment {
		t.Fatalf("expected step unchanged on routing miss, got %s", sess.CurrentStep)
	}
	if !sender.containsBody(en.InvalidChoice) {
		t.Error("expected invalid-choice notice")
	}
	last := sender.last()
	if last.Kind != models.PromptChoice || last.Body != en.AskEmployment {
		t.Errorf("expected employment menu re-sent, got %+v", last)
	}
}

func TestGatewayFailureLeavesStateUntouched(t *testing.T) {
	dec := &stubDecision{offersErr: errors.New("upstream 503")}
	e, st, sender := newTestEngine(t, WithDecisionClient(dec))
	seedOnboardingAt(t, st, StepConsent)
	en := i18n.ForLanguage(models.LanguageEnglish)

	ev := models.InboundEvent{From: testPhone, Text: "yes", ReceivedAt: baseTime}
	err := e.HandleEvent(context.Background(), ev)
	if !errors.Is(err, models.ErrGatewayFailure) {
		t.Fatalf("expected ErrGatewayFailure, got %v", err)
	}
	sess := mustSession(t, st)
	if sess.CurrentStep != StepConsent {
		t.Fatalf("expected stored session untouched at consent, got %s", sess.CurrentStep)
	}
	if len(sess.Offers) != 0 {
		t.Error("expected no offers persisted on gateway failure")
	}
	if !sender.containsBody(en.TryAgainLater) {
		t.Error("expected try-again-later notice")
	}
	if !hasInteraction(st, "gateway_failure") {
		t.Error("expected gateway_failure interaction")
	}
}

func TestOfferOverflowTruncates(t *testing.T) {
	five := append(testOffers(),
		models.Offer{ID: "OFFER4", Amount: 130000, APR: 26.0, TermMonths: 18},
		models.Offer{ID: "OFFER5", Amount: 150000, APR: 28.0, TermMonths: 24},
	)
	dec := &stubDecision{offers: five}
	e, st, sender := newTestEngine(t, WithDecisionClient(dec))
	seedOnboardingAt(t, st, StepConsent)

	say(t, e, "yes")
	sess := mustSession(t, st)
	if len(sess.Offers) != MaxPresentedOffers {
		t.Fatalf("expected %d offers after truncation, got %d", MaxPresentedOffers, len(sess.Offers))
	}
	if sess.Offers[0].ID != "OFFER1" || sess.Offers[2].ID != "OFFER3" {
		t.Errorf("expected first three offers kept, got %+v", sess.Offers)
	}
	if !hasInteraction(st, "offers_truncated") {
		t.Error("expected offers_truncated interaction")
	}
	last := sender.last()
	if len(last.Options) != MaxPresentedOffers+1 {
		t.Errorf("expected %d presented options, got %d", MaxPresentedOffers+1, len(last.Options))
	}
}

func TestNoOffersRejectsAndResets(t *testing.T) {
	dec := &stubDecision{offers: nil}
	e, st, sender := newTestEngine(t, WithDecisionClient(dec))
	seedOnboardingAt(t, st, StepConsent)

	say(t, e, "yes")
	sess := mustSession(t, st)
	if sess.Journey != models.JourneyNone {
		t.Fatalf("expected session reset after rejection, got journey %s", sess.Journey)
	}
	if !hasInteraction(st, "application_rejected") {
		t.Error("expected application_rejected interaction")
	}
	if !sender.containsBody("policy") {
		t.Error("expected rejection message with reason")
	}
}

func TestAgreementDeclineResets(t *testing.T) {
	e, st, sender := newTestEngine(t)
	seedOnboardingAt(t, st, StepAgreementAck)
	en := i18n.ForLanguage(models.LanguageEnglish)

	say(t, e, "2") // I do not agree
	sess := mustSession(t, st)
	if sess.Journey != models.JourneyNone {
		t.Fatalf("expected reset on agreement decline, got journey %s", sess.Journey)
	}
	if !sender.containsBody(en.AgreementDeclined) {
		t.Error("expected agreement-declined message")
	}
	if !hasInteraction(st, "agreement_declined") {
		t.Error("expected agreement_declined interaction")
	}
}

func TestFinalRejectionStoresDeclinedRecord(t *testing.T) {
	dec := &stubDecision{
		offers: testOffers(),
		dec:    models.Decision{Approved: false, Reason: "Low credit score"},
	}
	e, st, sender := newTestEngine(t, WithDecisionClient(dec))
	seedOnboardingAt(t, st, StepAgreementAck)

	say(t, e, "1") // I agree
	sess := mustSession(t, st)
	if sess.Journey != models.JourneyNone {
		t.Fatalf("expected reset after final rejection, got journey %s", sess.Journey)
	}
	rec, err := st.GetLoanRecord(testPhone)
	if err != nil || rec == nil {
		t.Fatalf("expected declined loan record, got %v / %v", rec, err)
	}
	if rec.Status != "declined" || rec.Reason != "Low credit score" {
		t.Errorf("unexpected record: %+v", rec)
	}
	if !sender.containsBody("Low credit score") {
		t.Error("expected rejection reason in outbound message")
	}
}

func TestStaleSessionResetsOnNextEvent(t *testing.T) {
	e, st, sender := newTestEngine(t)
	sess := seedOnboardingAt(t, st, StepIncome)
	sess.LastActivityAt = baseTime.Add(-31 * time.Minute)
	if err := st.SaveSession(*sess); err != nil {
		t.Fatalf("seed save failed: %v", err)
	}
	en := i18n.ForLanguage(models.LanguageEnglish)

	say(t, e, "hello")
	got := mustSession(t, st)
	if !sender.containsBody(en.SessionExpired) {
		t.Error("expected session-expired notice")
	}
	if got.Journey != models.JourneyNone {
		t.Fatalf("expected reset session back at the menu, got %s/%s", got.Journey, got.CurrentStep)
	}
	if len(got.Answers) != 0 {
		t.Error("expected answers discarded by staleness reset")
	}
	if !hasInteraction(st, "session_expired") {
		t.Error("expected session_expired interaction")
	}

	// Language survives, so re-entry skips the language chooser.
	say(t, e, "loan")
	got = mustSession(t, st)
	if got.Journey != models.JourneyOnboarding || got.CurrentStep != StepIntentConfirm {
		t.Fatalf("expected fresh onboarding at intent-confirm, got %s/%s", got.Journey, got.CurrentStep)
	}
}

func TestLanguageCommandMidJourney(t *testing.T) {
	e, st, sender := newTestEngine(t)
	seedOnboardingAt(t, st, StepIncome)
	hi := i18n.ForLanguage(models.LanguageHindi)

	say(t, e, "language")
	sess := mustSession(t, st)
	if !sess.Flags[awaitingLanguageFlag] {
		t.Fatal("expected awaiting-language flag set")
	}

	sender.clear()
	say(t, e, "2") // Hindi
	sess = mustSession(t, st)
	if sess.Language != models.LanguageHindi {
		t.Fatalf("expected hindi, got %q", sess.Language)
	}
	if sess.Flags[awaitingLanguageFlag] {
		t.Error("expected awaiting-language flag cleared")
	}
	if sess.CurrentStep != StepIncome {
		t.Fatalf("expected pending step preserved, got %s", sess.CurrentStep)
	}
	if !sender.containsBody(hi.LanguageChanged) {
		t.Error("expected confirmation in the new language")
	}
	if sender.last().Body != hi.AskIncome {
		t.Errorf("expected income re-prompt in hindi, got %q", sender.last().Body)
	}
}

func TestExistingCustomerLandsOnPostLoanMenu(t *testing.T) {
	e, st, sender := newTestEngine(t)
	if err := st.SaveLoanRecord(models.LoanRecord{
		Phone: testPhone, ReferenceID: "REF-000042", Status: "disbursed",
		Amount: 90000, APR: 18.0, TermMonths: 6,
	}); err != nil {
		t.Fatalf("seed record failed: %v", err)
	}

	say(t, e, "hello")
	sess := mustSession(t, st)
	if sess.Journey != models.JourneyPostLoan || sess.CurrentStep != StepPostLoanMenu {
		t.Fatalf("expected post-loan menu, got %s/%s", sess.Journey, sess.CurrentStep)
	}
	if sender.last().Kind != models.PromptChoice {
		t.Error("expected post-loan menu prompt")
	}
}

func TestDeclinedCustomerNotRoutedToPostLoan(t *testing.T) {
	e, st, _ := newTestEngine(t)
	if err := st.SaveLoanRecord(models.LoanRecord{
		Phone: testPhone, ReferenceID: "REF-000043", Status: "declined",
	}); err != nil {
		t.Fatalf("seed record failed: %v", err)
	}

	say(t, e, "hello")
	sess := mustSession(t, st)
	if sess.Journey != models.JourneyNone {
		t.Fatalf("expected declined customer back at the menu, got %s", sess.Journey)
	}

	say(t, e, "apply")
	sess = mustSession(t, st)
	if sess.Journey != models.JourneyOnboarding {
		t.Fatalf("expected onboarding for declined customer, got %s", sess.Journey)
	}
}

func TestLoanKeywordStartsOnboardingDespiteRecord(t *testing.T) {
	e, st, _ := newTestEngine(t)
	if err := st.SaveLoanRecord(models.LoanRecord{
		Phone: testPhone, ReferenceID: "REF-000044", Status: "disbursed",
	}); err != nil {
		t.Fatalf("seed record failed: %v", err)
	}

	say(t, e, "apply")
	sess := mustSession(t, st)
	if sess.Journey != models.JourneyOnboarding {
		t.Fatalf("expected explicit loan keyword to start onboarding, got %s", sess.Journey)
	}
}

func TestCorruptedStepResetsSession(t *testing.T) {
	e, st, sender := newTestEngine(t)
	sess := models.NewSession(testPhone, baseTime)
	sess.Journey = models.JourneyOnboarding
	sess.CurrentStep = "bogus-step"
	sess.Language = models.LanguageEnglish
	if err := st.SaveSession(*sess); err != nil {
		t.Fatalf("seed save failed: %v", err)
	}

	say(t, e, "anything")
	got := mustSession(t, st)
	if got.Journey != models.JourneyNone {
		t.Fatalf("expected reset after corruption, got journey %s", got.Journey)
	}
	if !hasInteraction(st, "state_corruption") {
		t.Error("expected state_corruption interaction")
	}
	if sender.last().Kind != models.PromptChoice {
		t.Error("expected top-level menu after recovery")
	}
}

func TestOfferSelectAgentEscalates(t *testing.T) {
	e, st, sender := newTestEngine(t)
	sess := seedOnboardingAt(t, st, StepOfferSelect)
	sess.Offers = testOffers()
	if err := st.SaveSession(*sess); err != nil {
		t.Fatalf("seed save failed: %v", err)
	}
	en := i18n.ForLanguage(models.LanguageEnglish)

	say(t, e, "4") // last option: talk to an agent
	got := mustSession(t, st)
	if got.Journey != models.JourneyNone {
		t.Fatalf("expected agent handoff to end the automated track, got %s/%s", got.Journey, got.CurrentStep)
	}
	if !sender.containsBody(en.SupportHandoff) {
		t.Error("expected agent handoff message")
	}
	if !hasInteraction(st, "support_escalation") {
		t.Error("expected support_escalation interaction")
	}
}

func TestConcurrentEventsForDistinctPhones(t *testing.T) {
	e, st, _ := newTestEngine(t)

	var wg sync.WaitGroup
	phones := []string{"+911111111111", "+912222222222", "+913333333333"}
	for _, phone := range phones {
		wg.Add(1)
		go func(p string) {
			defer wg.Done()
			ev := models.InboundEvent{From: p, Text: "apply", ReceivedAt: baseTime}
			if err := e.HandleEvent(context.Background(), ev); err != nil {
				t.Errorf("HandleEvent(%s) failed: %v", p, err)
			}
		}(phone)
	}
	wg.Wait()

	for _, phone := range phones {
		sess, err := st.GetSession(phone)
		if err != nil || sess == nil {
			t.Fatalf("expected session for %s, got %v / %v", phone, sess, err)
		}
		if sess.Journey != models.JourneyOnboarding {
			t.Errorf("expected onboarding for %s, got %s", phone, sess.Journey)
		}
	}
}

func TestUnmatchedInputAtMenuLeavesSessionUntouched(t *testing.T) {
	e, st, sender := newTestEngine(t)
	sess := models.NewSession(testPhone, baseTime.Add(-5*time.Minute))
	sess.Language = models.LanguageEnglish
	if err := st.SaveSession(*sess); err != nil {
		t.Fatalf("seed save failed: %v", err)
	}
	en := i18n.ForLanguage(models.LanguageEnglish)

	say(t, e, "xyzzy gibberish")
	got := mustSession(t, st)
	if got.Journey != models.JourneyNone || got.CurrentStep != "" {
		t.Fatalf("expected session to stay at the menu, got %s/%s", got.Journey, got.CurrentStep)
	}
	if len(got.Answers) != 0 {
		t.Error("expected no answers recorded")
	}
	if !got.LastActivityAt.Equal(baseTime) {
		t.Errorf("expected activity timestamp refreshed, got %v", got.LastActivityAt)
	}
	last := sender.last()
	if last.Kind != models.PromptChoice || last.Body != en.MainMenuIntro {
		t.Errorf("expected top-level menu re-sent, got %+v", last)
	}

	say(t, e, "1")
	got = mustSession(t, st)
	if got.Journey != models.JourneyOnboarding {
		t.Fatalf("expected menu reply to start onboarding, got %s", got.Journey)
	}
}

func TestRetriedEventYieldsSamePrompt(t *testing.T) {
	e, st, sender := newTestEngine(t)
	seedOnboardingAt(t, st, StepIncome)
	snapshot := mustSession(t, st)

	say(t, e, "₹40,000")
	first := sender.prompts()

	// Redelivery of the same event before the first save landed: restore the
	// pre-event session and process it again.
	if err := st.SaveSession(*snapshot); err != nil {
		t.Fatalf("restore save failed: %v", err)
	}
	sender.clear()
	say(t, e, "₹40,000")
	second := sender.prompts()

	if !reflect.DeepEqual(first, second) {
		t.Fatalf("expected identical prompts on redelivery:\nfirst  %+v\nsecond %+v", first, second)
	}
}

func TestConcurrentEventsForSamePhoneSerialized(t *testing.T) {
	e, st, _ := newTestEngine(t)
	seedOnboardingAt(t, st, StepName)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ev := models.InboundEvent{From: testPhone, Text: "Jane Doe", ReceivedAt: baseTime}
			if err := e.HandleEvent(context.Background(), ev); err != nil {
				t.Errorf("HandleEvent failed: %v", err)
			}
		}()
	}
	wg.Wait()

	// Exactly one event answers the name step; the other nine arrive at the
	// dob step, fail date validation and only re-prompt.
	sess := mustSession(t, st)
	if sess.CurrentStep != StepDOB {
		t.Fatalf("expected session parked at dob, got %s", sess.CurrentStep)
	}
	failures := 0
	for _, i := range st.Interactions() {
		if i.Kind == "validation_failure" {
			failures++
		}
	}
	if failures != 9 {
		t.Errorf("expected 9 validation failures, got %d", failures)
	}
}

func TestDOBValidationUsesEngineClock(t *testing.T) {
	e, st, sender := newTestEngine(t)
	seedOnboardingAt(t, st, StepDOB)
	en := i18n.ForLanguage(models.LanguageEnglish)

	// Seventeen on the injected clock even though the wall clock says adult.
	say(t, e, "16-06-2007")
	sess := mustSession(t, st)
	if sess.CurrentStep != StepDOB {
		t.Fatalf("expected dob step to reject the underage date, got %s", sess.CurrentStep)
	}
	if !sender.containsBody(en.UnderageHint) {
		t.Error("expected underage hint")
	}
}

// seedOnboardingAt stores an English onboarding session parked at the given
// step, with the answers earlier steps would have collected.
func seedOnboardingAt(t *testing.T, st *store.InMemoryStore, step models.StepID) *models.Session {
	t.Helper()
	sess := models.NewSession(testPhone, baseTime)
	sess.Journey = models.JourneyOnboarding
	sess.CurrentStep = step
	sess.Language = models.LanguageEnglish
	sess.Answers["full_name"] = models.TextValue("Jane Doe")
	sess.Answers["dob"] = models.DateValue("15-08-1992")
	sess.Answers["employment_status"] = models.TextValue("Salaried")
	sess.Answers["monthly_income"] = models.NumberValue(40000)
	sess.Answers["purpose"] = models.TextValue("Medical emergency")
	sess.Answers["consent_to_credit_check"] = models.BoolValue(true)
	if step == StepAgreementAck {
		sess.Offers = testOffers()
		sess.ChosenOfferID = "OFFER1"
		sess.Flags["kyc_completed"] = true
		sess.Flags["selfie_received"] = true
		sess.Flags["nach_completed"] = true
	}
	if err := st.SaveSession(*sess); err != nil {
		t.Fatalf("seed save failed: %v", err)
	}
	return sess
}
