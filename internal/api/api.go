// Package api provides the HTTP surface for SnapList.
//
// It exposes the Twilio inbound webhook, a web-chat message endpoint that
// drives the same dialogue engine, and draft inspection endpoints.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/snaplist/snaplist/internal/dialog"
	"github.com/snaplist/snaplist/internal/messaging"
	"github.com/snaplist/snaplist/internal/store"
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

// Server wires the dialogue engine, store, and messaging channel into an
// HTTP server.
type Server struct {
	engine *dialog.Engine
	store  store.Store
	twilio *messaging.TwilioService // nil when the channel is whatsmeow or absent
	addr   string
	srv    *http.Server
}

// NewServer creates an API server. The Twilio service may be nil; the
// webhook endpoint then responds 404.
func NewServer(engine *dialog.Engine, st store.Store, twilio *messaging.TwilioService, opts ...Option) *Server {
	cfg := Opts{Addr: DefaultAddr}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Server{
		engine: engine,
		store:  st,
		twilio: twilio,
		addr:   cfg.Addr,
	}
}

// Run starts the HTTP server and blocks until the context is cancelled or
// the listener fails.
func (s *Server) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/v1/messages", s.messagesHandler)
	mux.HandleFunc("/v1/drafts", s.draftsHandler)
	if s.twilio != nil {
		mux.HandleFunc("/webhook/twilio", s.twilio.WebhookHandler)
	}

	s.srv = &http.Server{
		Addr:              s.addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server listening", "addr", s.addr)
		errCh <- s.srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down API server: %w", err)
		}
		return nil
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("API server failed: %w", err)
		}
		return nil
	}
}
