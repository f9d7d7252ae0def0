// Package decision provides the credit decision gateway used during
// onboarding. A local rules engine serves development and tests; an HTTP
// client delegates to a remote decision backend when one is configured.
package decision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"net/http"
	"time"

	"github.com/quickrupee/loanflow/internal/models"
)

// Client evaluates loan applications. ProposeOffers runs after the consent
// step and returns zero offers when the applicant is declined. FinalDecision
// runs after the agreement step and settles the application.
type Client interface {
	ProposeOffers(ctx context.Context, app models.LoanApplication) ([]models.Offer, error)
	FinalDecision(ctx context.Context, app models.LoanApplication, chosen *models.Offer) (models.Decision, error)
}

// Opts holds configuration options for decision clients.
type Opts struct {
	BaseURL    string
	HTTPClient *http.Client
	ScoreFunc  func() int
}

// Option defines a configuration option for decision clients.
type Option func(*Opts)

// WithBaseURL sets the remote decision backend base URL.
func WithBaseURL(url string) Option {
	return func(o *Opts) { o.BaseURL = url }
}

// WithHTTPClient sets the HTTP client used for backend calls.
func WithHTTPClient(c *http.Client) Option {
	return func(o *Opts) { o.HTTPClient = c }
}

// WithScoreFunc overrides the credit score source of the local rules engine.
func WithScoreFunc(f func() int) Option {
	return func(o *Opts) { o.ScoreFunc = f }
}

// Underwriting thresholds and offer shape for the local rules engine.
const (
	MinApprovalScore = 690
	MaxOfferAmount   = 150000
	incomeMultiplier = 10
	baseOfferRatio   = 0.6
)

// LocalClient applies fixed underwriting rules without any external call.
type LocalClient struct {
	score func() int
	refID func() string
}

// NewLocalClient creates a local rules client. Without WithScoreFunc the
// simulated bureau score is drawn uniformly from [700, 900].
func NewLocalClient(opts ...Option) *LocalClient {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	score := cfg.ScoreFunc
	if score == nil {
		rng := rand.New(rand.NewSource(time.Now().UnixNano()))
		score = func() int { return 700 + rng.Intn(201) }
	}
	return &LocalClient{
		score: score,
		refID: newReferenceID,
	}
}

func newReferenceID() string {
	return fmt.Sprintf("REF-%06d", rand.Intn(900000)+100000)
}

// ProposeOffers returns three tiered offers for an approved applicant, or an
// empty slice when the simulated score falls below the approval threshold.
func (c *LocalClient) ProposeOffers(ctx context.Context, app models.LoanApplication) ([]models.Offer, error) {
	if err := app.Validate(); err != nil {
		return nil, fmt.Errorf("invalid application: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	score := c.score()
	if score < MinApprovalScore {
		slog.Info("LocalClient declined applicant", "phone", app.CustomerPhone, "score", score)
		return nil, nil
	}

	maxAmount := app.MonthlyIncome * incomeMultiplier
	if maxAmount > MaxOfferAmount {
		maxAmount = MaxOfferAmount
	}
	base := math.Round(maxAmount * baseOfferRatio)

	tiers := []struct {
		mult   float64
		months int
		apr    float64
		feePct float64
	}{
		{1.0, 6, 18.0, 3.0},
		{1.15, 9, 21.0, 2.5},
		{1.35, 12, 24.0, 2.0},
	}

	offers := make([]models.Offer, 0, len(tiers))
	for i, t := range tiers {
		amount := math.Round(base * t.mult)
		offers = append(offers, models.Offer{
			ID:               fmt.Sprintf("OFFER%d", i+1),
			Amount:           amount,
			APR:              t.apr,
			TermMonths:       t.months,
			ProcessingFeePct: t.feePct,
			MonthlyEMI:       models.ComputeEMI(amount, t.apr, t.months),
		})
	}
	slog.Debug("LocalClient proposed offers", "phone", app.CustomerPhone, "score", score, "count", len(offers))
	return offers, nil
}

// FinalDecision re-runs the rules and settles the application. A chosen offer
// exceeding the eligible ceiling is rejected rather than clamped.
func (c *LocalClient) FinalDecision(ctx context.Context, app models.LoanApplication, chosen *models.Offer) (models.Decision, error) {
	if err := app.Validate(); err != nil {
		return models.Decision{}, fmt.Errorf("invalid application: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return models.Decision{}, err
	}

	score := c.score()
	ref := c.refID()
	if score < MinApprovalScore {
		slog.Info("LocalClient final decision rejected", "phone", app.CustomerPhone, "score", score)
		return models.Decision{
			Approved:    false,
			ReferenceID: ref,
			Reason:      "Low credit score",
		}, nil
	}

	maxAmount := app.MonthlyIncome * incomeMultiplier
	if maxAmount > MaxOfferAmount {
		maxAmount = MaxOfferAmount
	}

	amount := maxAmount
	apr := 18.0
	term := 12
	if chosen != nil {
		if chosen.Amount > maxAmount {
			slog.Info("LocalClient rejected over-ceiling offer", "phone", app.CustomerPhone,
				"chosen_amount", chosen.Amount, "max_amount", maxAmount)
			return models.Decision{
				Approved:    false,
				ReferenceID: ref,
				Reason:      "Selected amount exceeds eligible amount",
			}, nil
		}
		amount = chosen.Amount
		apr = chosen.APR
		term = chosen.TermMonths
	}

	slog.Debug("LocalClient final decision approved", "phone", app.CustomerPhone, "amount", amount, "reference", ref)
	return models.Decision{
		Approved:      true,
		ReferenceID:   ref,
		OfferAmount:   amount,
		APR:           apr,
		MaxTermMonths: term,
	}, nil
}

// HTTPClient delegates decisions to a remote backend.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClient creates a client for a remote decision backend.
func NewHTTPClient(opts ...Option) (*HTTPClient, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("decision backend URL not set")
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &HTTPClient{baseURL: cfg.BaseURL, client: client}, nil
}

type finalDecisionRequest struct {
	Application models.LoanApplication `json:"application"`
	ChosenOffer *models.Offer          `json:"chosen_offer,omitempty"`
}

func (c *HTTPClient) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		slog.Error("Decision backend request failed", "error", err, "path", path)
		return fmt.Errorf("decision backend request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		slog.Error("Decision backend returned non-OK status", "status", resp.StatusCode, "path", path)
		return fmt.Errorf("decision backend returned status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *HTTPClient) ProposeOffers(ctx context.Context, app models.LoanApplication) ([]models.Offer, error) {
	if err := app.Validate(); err != nil {
		return nil, fmt.Errorf("invalid application: %w", err)
	}
	var out struct {
		Offers []models.Offer `json:"offers"`
	}
	if err := c.post(ctx, "/v1/offers", app, &out); err != nil {
		return nil, err
	}
	slog.Debug("Decision backend proposed offers", "phone", app.CustomerPhone, "count", len(out.Offers))
	return out.Offers, nil
}

func (c *HTTPClient) FinalDecision(ctx context.Context, app models.LoanApplication, chosen *models.Offer) (models.Decision, error) {
	if err := app.Validate(); err != nil {
		return models.Decision{}, fmt.Errorf("invalid application: %w", err)
	}
	var out models.Decision
	if err := c.post(ctx, "/v1/decision", finalDecisionRequest{Application: app, ChosenOffer: chosen}, &out); err != nil {
		return models.Decision{}, err
	}
	slog.Debug("Decision backend final decision", "phone", app.CustomerPhone, "approved", out.Approved)
	return out, nil
}
