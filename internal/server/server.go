// Package server exposes the verification pipeline over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mattjoyce/commitgate/internal/auth"
	"github.com/mattjoyce/commitgate/internal/ledger"
	"github.com/mattjoyce/commitgate/internal/pipeline"
	"github.com/mattjoyce/commitgate/internal/secrets"
	"github.com/mattjoyce/commitgate/internal/upstream"
	"github.com/mattjoyce/commitgate/internal/webhook"
)

// Handler processes one webhook delivery.
type Handler interface {
	Handle(ctx context.Context, ev webhook.Event) (pipeline.Outcome, error)
}

// VerdictLister serves the operator verdict query.
type VerdictLister interface {
	List(ctx context.Context, f ledger.Filter) ([]ledger.Entry, error)
}

// Config configures the HTTP surface.
type Config struct {
	Listen      string
	WebhookPath string
	MaxBodySize int64
	// WriteTimeout must exceed the invocation budget plus report grace.
	WriteTimeout time.Duration
	// OpsToken enables /v1/verdicts when non-nil.
	OpsToken auth.TokenSource
}

// Server represents the HTTP server.
type Server struct {
	config   Config
	handler  Handler
	verdicts VerdictLister
	logger   *slog.Logger
	server   *http.Server
}

// New creates a new server instance. verdicts may be nil.
func New(config Config, handler Handler, verdicts VerdictLister, logger *slog.Logger) *Server {
	if config.WebhookPath == "" {
		config.WebhookPath = "/webhook/github"
	}
	if config.MaxBodySize <= 0 {
		config.MaxBodySize = 1 << 20
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = 60 * time.Second
	}
	return &Server{
		config:   config,
		handler:  handler,
		verdicts: verdicts,
		logger:   logger,
	}
}

// Start starts the HTTP server (blocking).
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.config.Listen,
		Handler:      s.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("http server starting", "listen", s.config.Listen, "webhook_path", s.config.WebhookPath)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("http server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.WriteTimeout)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("http server error: %w", err)
	}
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Post(s.config.WebhookPath, s.handleWebhook)
	r.Get("/healthz", s.handleHealth)

	if s.config.OpsToken != nil && s.verdicts != nil {
		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(s.config.OpsToken))
			r.Get("/v1/verdicts", s.handleListVerdicts)
		})
	}
	return r
}

// loggingMiddleware logs HTTP requests (excludes sensitive payloads).
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
			"remote_addr", r.RemoteAddr,
		)
	})
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, s.config.MaxBodySize+1))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	if int64(len(body)) > s.config.MaxBodySize {
		s.respondError(w, http.StatusRequestEntityTooLarge, "payload too large")
		return
	}

	out, err := s.handler.Handle(r.Context(), webhook.Event{Headers: r.Header.Clone(), Body: body})
	var (
		retrievalErr *secrets.RetrievalError
		reportErr    *upstream.ReportError
	)
	switch {
	case errors.As(err, &retrievalErr):
		s.respondError(w, http.StatusInternalServerError, "internal error")
	case errors.Is(err, webhook.ErrUnauthenticated):
		s.respondError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, webhook.ErrMalformedEvent):
		s.respondError(w, http.StatusBadRequest, "malformed event")
	case errors.As(err, &reportErr):
		s.respondJSON(w, http.StatusBadGateway, newVerdictResponse(out, "report_failed"))
	case err != nil:
		s.logger.Error("webhook handling failed", "error", err)
		s.respondError(w, http.StatusInternalServerError, "internal error")
	case out.Kind == webhook.KindPing:
		s.respondJSON(w, http.StatusOK, statusResponse{Status: "pong"})
	case out.Kind == webhook.KindIgnored:
		s.respondJSON(w, http.StatusAccepted, statusResponse{Status: "ignored", InvocationID: out.InvocationID})
	default:
		s.respondJSON(w, http.StatusOK, newVerdictResponse(out, "reported"))
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.respondJSON(w, http.StatusOK, statusResponse{Status: "ok"})
}

func (s *Server) handleListVerdicts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := ledger.Filter{Repository: q.Get("repository"), SHA: q.Get("sha")}
	if f.SHA != "" && !ledger.ValidSHAPrefix(f.SHA) {
		s.respondError(w, http.StatusBadRequest, ledger.ErrInvalidSHA.Error())
		return
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 500 {
			s.respondError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		f.Limit = n
	}

	entries, err := s.verdicts.List(r.Context(), f)
	if err != nil {
		s.logger.Error("verdict query failed", "error", err)
		s.respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if entries == nil {
		entries = []ledger.Entry{}
	}
	s.respondJSON(w, http.StatusOK, verdictListResponse{Verdicts: entries})
}

// respondJSON sends a JSON response.
func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError sends a JSON error response.
func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, errorResponse{Error: message})
}
