package decision

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/quickrupee/loanflow/internal/models"
)

func testApplication() models.LoanApplication {
	return models.LoanApplication{
		ApplicationID:    "app-1",
		CustomerPhone:    "+919876543210",
		FullName:         "Jane Doe",
		Age:              32,
		EmploymentStatus: "Salaried",
		MonthlyIncome:    20000,
		RequestedAmount:  50000,
		Purpose:          "Medical emergency",
		ConsentToCheck:   true,
	}
}

func fixedScore(n int) Option {
	return WithScoreFunc(func() int { return n })
}

func TestProposeOffersApproved(t *testing.T) {
	c := NewLocalClient(fixedScore(720))

	offers, err := c.ProposeOffers(context.Background(), testApplication())
	if err != nil {
		t.Fatalf("ProposeOffers failed: %v", err)
	}
	if len(offers) != 3 {
		t.Fatalf("expected 3 offers, got %d", len(offers))
	}

	// Income 20000 gives a ceiling of 150000 (capped) and a base of 90000.
	wantAmounts := []float64{90000, 103500, 121500}
	wantTerms := []int{6, 9, 12}
	wantAPRs := []float64{18.0, 21.0, 24.0}
	wantFees := []float64{3.0, 2.5, 2.0}
	for i, o := range offers {
		if o.Amount != wantAmounts[i] {
			t.Errorf("offer %d amount = %v, want %v", i, o.Amount, wantAmounts[i])
		}
		if o.TermMonths != wantTerms[i] {
			t.Errorf("offer %d term = %d, want %d", i, o.TermMonths, wantTerms[i])
		}
		if o.APR != wantAPRs[i] {
			t.Errorf("offer %d APR = %v, want %v", i, o.APR, wantAPRs[i])
		}
		if o.ProcessingFeePct != wantFees[i] {
			t.Errorf("offer %d fee = %v, want %v", i, o.ProcessingFeePct, wantFees[i])
		}
		if o.MonthlyEMI != models.ComputeEMI(o.Amount, o.APR, o.TermMonths) {
			t.Errorf("offer %d EMI mismatch: %v", i, o.MonthlyEMI)
		}
	}
}

func TestProposeOffersIncomeCeiling(t *testing.T) {
	c := NewLocalClient(fixedScore(720))
	app := testApplication()
	app.MonthlyIncome = 5000 // ceiling 50000, base 30000

	offers, err := c.ProposeOffers(context.Background(), app)
	if err != nil {
		t.Fatalf("ProposeOffers failed: %v", err)
	}
	if offers[0].Amount != 30000 {
		t.Errorf("expected base offer 30000, got %v", offers[0].Amount)
	}
}

func TestProposeOffersLowScoreDeclines(t *testing.T) {
	c := NewLocalClient(fixedScore(650))

	offers, err := c.ProposeOffers(context.Background(), testApplication())
	if err != nil {
		t.Fatalf("expected a clean decline, got error %v", err)
	}
	if len(offers) != 0 {
		t.Errorf("expected no offers for score below threshold, got %d", len(offers))
	}
}

func TestProposeOffersInvalidApplication(t *testing.T) {
	c := NewLocalClient(fixedScore(720))
	app := testApplication()
	app.ConsentToCheck = false

	if _, err := c.ProposeOffers(context.Background(), app); err == nil {
		t.Error("expected error for application without consent")
	}
}

func TestProposeOffersCancelledContext(t *testing.T) {
	c := NewLocalClient(fixedScore(720))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := c.ProposeOffers(ctx, testApplication()); err == nil {
		t.Error("expected error for cancelled context")
	}
}

func TestFinalDecisionApprovedWithChosenOffer(t *testing.T) {
	c := NewLocalClient(fixedScore(720))
	chosen := &models.Offer{ID: "OFFER2", Amount: 103500, APR: 21.0, TermMonths: 9}

	dec, err := c.FinalDecision(context.Background(), testApplication(), chosen)
	if err != nil {
		t.Fatalf("FinalDecision failed: %v", err)
	}
	if !dec.Approved {
		t.Fatalf("expected approval, got %+v", dec)
	}
	if dec.OfferAmount != 103500 || dec.APR != 21.0 || dec.MaxTermMonths != 9 {
		t.Errorf("expected chosen offer terms, got %+v", dec)
	}
	if len(dec.ReferenceID) != 10 || dec.ReferenceID[:4] != "REF-" {
		t.Errorf("unexpected reference ID %q", dec.ReferenceID)
	}
}

func TestFinalDecisionWithoutChosenOffer(t *testing.T) {
	c := NewLocalClient(fixedScore(720))

	dec, err := c.FinalDecision(context.Background(), testApplication(), nil)
	if err != nil {
		t.Fatalf("FinalDecision failed: %v", err)
	}
	if !dec.Approved {
		t.Fatalf("expected approval, got %+v", dec)
	}
	if dec.OfferAmount != 150000 || dec.MaxTermMonths != 12 {
		t.Errorf("expected eligible ceiling terms, got %+v", dec)
	}
}

func TestFinalDecisionLowScoreRejects(t *testing.T) {
	c := NewLocalClient(fixedScore(650))

	dec, err := c.FinalDecision(context.Background(), testApplication(), nil)
	if err != nil {
		t.Fatalf("FinalDecision failed: %v", err)
	}
	if dec.Approved {
		t.Fatal("expected rejection")
	}
	if dec.Reason != "Low credit score" {
		t.Errorf("unexpected reason %q", dec.Reason)
	}
}

func TestFinalDecisionOverCeilingRejects(t *testing.T) {
	c := NewLocalClient(fixedScore(720))
	app := testApplication()
	app.MonthlyIncome = 5000 // ceiling 50000
	chosen := &models.Offer{ID: "OFFER3", Amount: 121500, APR: 24.0, TermMonths: 12}

	dec, err := c.FinalDecision(context.Background(), app, chosen)
	if err != nil {
		t.Fatalf("FinalDecision failed: %v", err)
	}
	if dec.Approved {
		t.Fatal("expected rejection for over-ceiling offer")
	}
	if dec.Reason != "Selected amount exceeds eligible amount" {
		t.Errorf("unexpected reason %q", dec.Reason)
	}
}

func TestHTTPClientRequiresBaseURL(t *testing.T) {
	if _, err := NewHTTPClient(); err == nil {
		t.Error("expected error without base URL")
	}
}

func TestHTTPClientProposeOffers(t *testing.T) {
	offers := []models.Offer{{ID: "OFFER1", Amount: 90000, APR: 18.0, TermMonths: 6}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/offers" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var app models.LoanApplication
		if err := json.NewDecoder(r.Body).Decode(&app); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if app.CustomerPhone != "+919876543210" {
			t.Errorf("unexpected application %+v", app)
		}
		json.NewEncoder(w).Encode(map[string]any{"offers": offers})
	}))
	defer srv.Close()

	c, err := NewHTTPClient(WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("NewHTTPClient failed: %v", err)
	}
	got, err := c.ProposeOffers(context.Background(), testApplication())
	if err != nil {
		t.Fatalf("ProposeOffers failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != "OFFER1" {
		t.Errorf("unexpected offers %+v", got)
	}
}

func TestHTTPClientFinalDecision(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/decision" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req struct {
			Application models.LoanApplication `json:"application"`
			ChosenOffer *models.Offer          `json:"chosen_offer"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.ChosenOffer == nil || req.ChosenOffer.ID != "OFFER1" {
			t.Errorf("expected chosen offer in request, got %+v", req.ChosenOffer)
		}
		json.NewEncoder(w).Encode(models.Decision{Approved: true, ReferenceID: "REF-000321", OfferAmount: 90000})
	}))
	defer srv.Close()

	c, err := NewHTTPClient(WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("NewHTTPClient failed: %v", err)
	}
	dec, err := c.FinalDecision(context.Background(), testApplication(), &models.Offer{ID: "OFFER1", Amount: 90000})
	if err != nil {
		t.Fatalf("FinalDecision failed: %v", err)
	}
	if !dec.Approved || dec.ReferenceID != "REF-000321" {
		t.Errorf("unexpected decision %+v", dec)
	}
}

func TestHTTPClientNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	c, err := NewHTTPClient(WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("NewHTTPClient failed: %v", err)
	}
	if _, err := c.ProposeOffers(context.Background(), testApplication()); err == nil {
		t.Error("expected error for non-OK backend status")
	}
}
