// Package api provides the HTTP surface of loanflow.
//
// It exposes a health check, an inbound event injection endpoint for testing
// and channel bridges, a session inspection endpoint, and the Twilio webhook
// when the Twilio channel is active.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/quickrupee/loanflow/internal/flow"
	"github.com/quickrupee/loanflow/internal/messaging"
	"github.com/quickrupee/loanflow/internal/models"
	"github.com/quickrupee/loanflow/internal/store"
)

// DefaultAddr is the default listen address for the API server.
const DefaultAddr = ":8080"

// Opts holds configuration options for the API server.
type Opts struct {
	Addr string
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// Server wires the engine, store and messaging service into HTTP handlers.
type Server struct {
	engine     *flow.Engine
	store      store.Store
	msgService messaging.Service
	httpServer *http.Server
}

// NewServer creates the API server.
func NewServer(engine *flow.Engine, st store.Store, msgService messaging.Service, opts ...Option) *Server {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}

	s := &Server{engine: engine, store: st, msgService: msgService}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.healthHandler)
	mux.HandleFunc("/events", s.eventsHandler)
	mux.HandleFunc("/sessions/", s.sessionHandler)
	if ts, ok := msgService.(*messaging.TwilioService); ok {
		mux.HandleFunc("/webhook/twilio", ts.WebhookHandler)
		slog.Debug("Server registered Twilio webhook endpoint")
	}

	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// Run starts the HTTP server and blocks until the context is cancelled or
// the listener fails.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server listening", "addr", s.httpServer.Addr)
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		slog.Info("API server shutting down")
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success("healthy"))
}

// eventsHandler injects one inbound event into the engine. It is the bridge
// used by tests and external channel adapters.
func (s *Server) eventsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var ev models.InboundEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		slog.Warn("Server.eventsHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	canonicalFrom, err := s.msgService.ValidateAndCanonicalizeRecipient(ev.From)
	if err != nil {
		slog.Warn("Server.eventsHandler: sender validation failed", "error", err, "from", ev.From)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}
	ev.From = canonicalFrom
	if ev.ReceivedAt.IsZero() {
		ev.ReceivedAt = time.Now()
	}

	if err := s.engine.HandleEvent(r.Context(), ev); err != nil {
		slog.Error("Server.eventsHandler: engine failed", "error", err, "from", ev.From)
		switch {
		case errors.Is(err, models.ErrGatewayFailure):
			writeJSONResponse(w, http.StatusBadGateway, models.Error("Gateway failure, retry the event"))
		case errors.Is(err, models.ErrStoreFailure):
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Store failure, event not processed"))
		default:
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to process event"))
		}
		return
	}

	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Event processed", nil))
}

// sessionHandler returns the stored session for a phone number.
func (s *Server) sessionHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	phone := strings.TrimPrefix(r.URL.Path, "/sessions/")
	if phone == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Missing phone number"))
		return
	}

	sess, err := s.store.GetSession(phone)
	if err != nil {
		slog.Error("Server.sessionHandler: failed to load session", "error", err, "phone", phone)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load session"))
		return
	}
	if sess == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Session not found"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(sess))
}
