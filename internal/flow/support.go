package flow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/quickrupee/loanflow/internal/i18n"
	"github.com/quickrupee/loanflow/internal/messaging"
	"github.com/quickrupee/loanflow/internal/models"
)

// Static contact points offered by the support track.
const (
	appDownloadURL = "https://play.google.com/store/apps/details?id=com.quickrupee.loans"
	supportEmail   = "care@quickrupee.com"
)

// kbEntry is one canned answer matched by substring against the question.
type kbEntry struct {
	question string
	answer   string
}

// supportKB answers the most common questions without a gateway round trip.
var supportKB = []kbEntry{
	{"how can i pay my emi", "You can pay via the QuickRupee app, netbanking or UPI. Reply PAY LINK for a payment link."},
	{"pay my emi", "You can pay via the QuickRupee app, netbanking or UPI. Reply PAY LINK for a payment link."},
	{"check my loan status", "Open the QuickRupee app > My Loans, or ask me to show loan details."},
	{"loan status", "Open the QuickRupee app > My Loans, or ask me to show loan details."},
}

// kbAnswer returns the first knowledge base hit for the question, or "".
func kbAnswer(question string) string {
	q := strings.ToLower(question)
	for _, entry := range supportKB {
		if strings.Contains(q, entry.question) {
			return entry.answer
		}
	}
	return ""
}

// handleSupport processes one event on the re-entrant support track: static
// shortcuts first, then the knowledge base, then the LLM responder, and
// finally escalation to a human agent.
func (e *Engine) handleSupport(ctx context.Context, sess *models.Session, ev models.InboundEvent, now time.Time) error {
	pack := i18n.ForLanguage(sess.Language)
	prompt := PromptForStep(supportSteps[0], sess, pack)

	switch messaging.ResolveOptionID(prompt, ev) {
	case OptConnectAgent:
		return e.escalate(ctx, sess, now, pack, "user_request")
	case OptDownloadApp:
		e.send(ctx, sess.Phone, models.PromptSpec{Kind: models.PromptText,
			Body: fmt.Sprintf("%s: %s", pack.DownloadApp, appDownloadURL)})
		return e.saveSession(sess, now)
	case OptSendEmail:
		e.send(ctx, sess.Phone, models.PromptSpec{Kind: models.PromptText,
			Body: fmt.Sprintf("%s: %s", pack.SendEmail, supportEmail)})
		return e.saveSession(sess, now)
	}

	question := strings.TrimSpace(ev.Text)
	if question == "" {
		e.send(ctx, sess.Phone, prompt)
		return e.saveSession(sess, now)
	}

	if answer := kbAnswer(question); answer != "" {
		e.audit(sess.Phone, "outbound", "support_answer", map[string]string{"source": "kb", "question": question})
		e.send(ctx, sess.Phone, models.PromptSpec{Kind: models.PromptText, Body: answer})
		e.sendSupportClosing(ctx, sess, pack)
		return e.saveSession(sess, now)
	}

	if e.support != nil {
		answer, err := e.support.Answer(ctx, question, sess.Language, e.loanContextJSON(sess.Phone))
		if err != nil {
			slog.Error("Engine support responder failed", "error", err, "phone", sess.Phone)
			e.audit(sess.Phone, "system", "gateway_failure", map[string]string{"stage": "support", "error": err.Error()})
			e.send(ctx, sess.Phone, models.PromptSpec{Kind: models.PromptText, Body: pack.TryAgainLater})
			return fmt.Errorf("%w: support responder: %v", models.ErrGatewayFailure, err)
		}
		if answer != "" {
			e.audit(sess.Phone, "outbound", "support_answer", map[string]string{"source": "llm", "question": question})
			e.send(ctx, sess.Phone, models.PromptSpec{Kind: models.PromptText, Body: answer})
			e.sendSupportClosing(ctx, sess, pack)
			return e.saveSession(sess, now)
		}
	}

	e.audit(sess.Phone, "system", "support_escalation", map[string]string{"reason": "no_match", "question": question})
	e.send(ctx, sess.Phone, models.PromptSpec{
		Kind: models.PromptChoice,
		Body: pack.SupportNoAnswer,
		Options: []models.ChoiceOption{
			{ID: OptConnectAgent, Label: pack.ConnectAgent},
			{ID: OptSendEmail, Label: pack.SendEmail},
		},
	})
	return e.saveSession(sess, now)
}

func (e *Engine) sendSupportClosing(ctx context.Context, sess *models.Session, pack i18n.Pack) {
	e.send(ctx, sess.Phone, models.PromptSpec{
		Kind:    models.PromptChoice,
		Body:    pack.SupportClosing,
		Options: []models.ChoiceOption{{ID: OptConnectAgent, Label: pack.ConnectAgent}},
	})
}

// escalate hands the conversation to a human agent and ends the automated
// track; the next inbound message starts again from the top-level menu.
func (e *Engine) escalate(ctx context.Context, sess *models.Session, now time.Time, pack i18n.Pack, reason string) error {
	slog.Info("Engine escalating to human agent", "phone", sess.Phone, "reason", reason)
	e.audit(sess.Phone, "system", "support_escalation", map[string]string{"reason": reason})
	e.send(ctx, sess.Phone, models.PromptSpec{Kind: models.PromptText, Body: pack.SupportHandoff})
	e.send(ctx, sess.Phone, models.PromptSpec{Kind: models.PromptText, Body: pack.SupportEscalAck})
	sess.Reset()
	return e.saveSession(sess, now)
}

// loanContextJSON serializes the caller's loan record for LLM grounding.
// Lookup failures degrade to an empty context rather than failing support.
func (e *Engine) loanContextJSON(phone string) string {
	rec, err := e.store.GetLoanRecord(phone)
	if err != nil || rec == nil {
		return ""
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return ""
	}
	return string(b)
}

// handlePostLoan processes one event on the re-entrant post-loan menu.
func (e *Engine) handlePostLoan(ctx context.Context, sess *models.Session, ev models.InboundEvent, now time.Time) error {
	pack := i18n.ForLanguage(sess.Language)
	prompt := PromptForStep(postLoanSteps[0], sess, pack)

	switch messaging.ResolveOptionID(prompt, ev) {
	case OptPostView:
		rec, err := e.store.GetLoanRecord(sess.Phone)
		if err != nil {
			slog.Error("Engine post-loan record lookup failed", "error", err, "phone", sess.Phone)
			e.send(ctx, sess.Phone, models.PromptSpec{Kind: models.PromptText, Body: pack.TryAgainLater})
			return fmt.Errorf("%w: load loan record for %s: %v", models.ErrStoreFailure, sess.Phone, err)
		}
		if rec == nil {
			e.send(ctx, sess.Phone, models.PromptSpec{Kind: models.PromptText, Body: pack.NoLoanFound})
		} else {
			e.send(ctx, sess.Phone, models.PromptSpec{Kind: models.PromptText, Body: renderLoanDetails(rec)})
		}

	case OptPostPDF:
		e.send(ctx, sess.Phone, models.PromptSpec{Kind: models.PromptDocument, Body: pack.PostLoanPDFInfo, DocumentName: pack.AgreementDoc})

	case OptPostRepay:
		e.send(ctx, sess.Phone, models.PromptSpec{Kind: models.PromptText, Body: pack.PostLoanRepayInfo})

	case OptPostSupport:
		return e.enterJourney(ctx, sess, models.JourneySupport, now)

	default:
		e.send(ctx, sess.Phone, models.PromptSpec{Kind: models.PromptText, Body: pack.InvalidChoice})
	}

	e.send(ctx, sess.Phone, prompt)
	return e.saveSession(sess, now)
}

// renderLoanDetails formats a loan record for display.
func renderLoanDetails(rec *models.LoanRecord) string {
	return fmt.Sprintf("Loan ID: %s\nStatus: %s\nAmount: ₹%.0f\nAPR: %.2f%%\nTenure: %d months\nPurpose: %s",
		rec.ReferenceID, rec.Status, rec.Amount, rec.APR, rec.TermMonths, rec.Purpose)
}
