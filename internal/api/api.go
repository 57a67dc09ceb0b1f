// Package api serves PromptForge's HTTP interface.
//
// It exposes the chat endpoint that drives questionnaires and model calls, the template
// catalog (including registration of custom templates), conversation inspection and
// reset, the persona catalog and an optional Twilio webhook.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/BTreeMap/PromptForge/internal/flow"
	"github.com/BTreeMap/PromptForge/internal/models"
	"github.com/BTreeMap/PromptForge/internal/store"
	"github.com/BTreeMap/PromptForge/internal/templates"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultAddr is the listen address when none is configured.
	DefaultAddr = ":8080"
	// DefaultShutdownTimeout bounds graceful shutdown.
	DefaultShutdownTimeout = 5 * time.Second
	// DefaultUserID identifies callers until authentication exists.
	DefaultUserID = "anonymous"
	// UserIDHeader optionally carries the caller's user id.
	UserIDHeader = "X-User-ID"

	maxRequestBodySize = 1 << 20 // 1MB
	readHeaderTimeout  = 10 * time.Second
	serviceVersion     = "1.0.0"
)

// Server holds the dependencies of the HTTP handlers.
type Server struct {
	chat      *flow.ChatFlow
	templates *templates.Store
	st        store.Store
	loader    *templates.Loader
	webhook   http.HandlerFunc
	addr      string
}

// Option configures a Server.
type Option func(*Server)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(s *Server) { s.addr = addr }
}

// WithTemplateLoader also writes templates registered over HTTP to the loader's directory.
func WithTemplateLoader(l *templates.Loader) Option {
	return func(s *Server) { s.loader = l }
}

// WithTwilioWebhook mounts h at POST /webhooks/twilio.
func WithTwilioWebhook(h http.HandlerFunc) Option {
	return func(s *Server) { s.webhook = h }
}

// NewServer creates a Server. tmpl must be the store the chat flow's engine reads from.
func NewServer(chat *flow.ChatFlow, tmpl *templates.Store, st store.Store, opts ...Option) *Server {
	s := &Server{chat: chat, templates: tmpl, st: st, addr: DefaultAddr}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.addr
}

// Router builds the HTTP handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
	})

	r.Get("/", s.indexHandler)
	r.Get("/health", s.healthHandler)

	r.Route("/api", func(r chi.Router) {
		r.Post("/chat", s.chatHandler)

		r.Get("/templates", s.listTemplatesHandler)
		r.Post("/templates", s.createTemplateHandler)
		r.Get("/templates/{id}", s.getTemplateHandler)

		r.Get("/conversations/{id}", s.getConversationHandler)
		r.Delete("/conversations/{id}", s.deleteConversationHandler)
		r.Post("/conversations/{id}/reset", s.resetConversationHandler)

		r.Get("/personas", s.listPersonasHandler)
	})

	if s.webhook != nil {
		r.Post("/webhooks/twilio", s.webhook)
	}
	return r
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("Server.Run: listening", "addr", s.addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
		defer cancel()
		slog.Info("Server.Run: shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
