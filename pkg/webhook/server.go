// Package webhook is the ingress half of the pipeline: it authenticates
// inbound webhook calls with a shared-secret HMAC signature and enqueues the
// validated payload, verbatim, for the indexer worker.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"

	"github.com/rs/zerolog"

	"github.com/confsearch/talk-indexer/pkg/messagepipeline"
)

// maxBodyBytes caps the accepted webhook payload size.
const maxBodyBytes = 1 << 20

// ServerConfig holds the ingress HTTP settings.
type ServerConfig struct {
	HTTPPort      string
	WebhookSecret string
}

// Server is the ingress HTTP server. Handlers are stateless; the only shared
// state is the publisher connection and the secret, both read-only after
// construction.
type Server struct {
	logger     zerolog.Logger
	secret     string
	publisher  messagepipeline.MessagePublisher
	httpServer *http.Server
	mux        *http.ServeMux
	actualAddr string
	mu         sync.RWMutex
}

// NewServer creates the ingress server and registers its routes.
func NewServer(cfg ServerConfig, publisher messagepipeline.MessagePublisher, logger zerolog.Logger) *Server {
	s := &Server{
		logger:    logger.With().Str("component", "WebhookServer").Logger(),
		secret:    cfg.WebhookSecret,
		publisher: publisher,
		mux:       http.NewServeMux(),
	}
	s.mux.HandleFunc("/webhook", s.handleWebhook)
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/", s.handleRoot)
	s.httpServer = &http.Server{
		Addr:    cfg.HTTPPort,
		Handler: s.mux,
	}
	return s
}

// Mux returns the underlying ServeMux. Used by tests.
func (s *Server) Mux() *http.ServeMux { return s.mux }

// Start begins serving in a background goroutine.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on port %s: %w", s.httpServer.Addr, err)
	}

	s.mu.Lock()
	s.actualAddr = listener.Addr().String()
	s.mu.Unlock()

	s.logger.Info().Str("address", listener.Addr().String()).Msg("HTTP server starting to listen")

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("HTTP server failed")
		}
	}()
	return nil
}

// Shutdown gracefully stops the HTTP server, respecting the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("Shutting down HTTP server...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return err
	}
	s.logger.Info().Msg("HTTP server stopped.")
	return nil
}

// GetHTTPPort returns the port the server is actually listening on.
func (s *Server) GetHTTPPort() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, port, err := net.SplitHostPort(s.actualAddr)
	if err != nil {
		return s.httpServer.Addr
	}
	return ":" + port
}

// handleWebhook verifies the signature over the raw body bytes before any
// parsing, so re-serialization can never break the signature, then forwards
// the body verbatim onto the queue.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to read request body"})
		return
	}

	if !VerifySignature(body, r.Header.Get("X-Webhook-Signature"), s.secret) {
		s.logger.Warn().Msg("Rejected webhook call with invalid signature.")
		s.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Invalid signature"})
		return
	}

	attributes := map[string]string{
		"eventType": headerOrUnknown(r, "X-Event-Type"),
		"eventId":   headerOrUnknown(r, "X-Event-Id"),
	}

	if err := s.publisher.Publish(r.Context(), body, attributes); err != nil {
		s.logger.Error().Err(err).Msg("Failed to enqueue webhook event.")
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	s.logger.Info().
		Str("event_type", attributes["eventType"]).
		Str("event_id", attributes["eventId"]).
		Msg("Webhook event queued.")
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "queued"})
}

// handleHealth responds to liveness probes independent of all other state.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleRoot serves a static banner on the exact root path only.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("talk-indexer webhook ingress"))
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error().Err(err).Msg("Failed to write response.")
	}
}

// headerOrUnknown returns the named header, or "unknown" when missing.
// Header lookup is case-insensitive per net/http canonicalization.
func headerOrUnknown(r *http.Request, name string) string {
	if v := r.Header.Get(name); v != "" {
		return v
	}
	return "unknown"
}
