// ABOUTME: HTTP gateway wiring credentials, sessions, and the ledger
// ABOUTME: Owns routing, authentication enforcement, and server lifecycle

package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/2389/greenlight/internal/credentials"
	"github.com/2389/greenlight/internal/ledger"
	"github.com/2389/greenlight/internal/session"
)

// SessionCookieName is the name of the operator session cookie.
const SessionCookieName = "greenlight_session"

// shutdownTimeout bounds graceful shutdown on exit.
const shutdownTimeout = 5 * time.Second

// Gateway routes inbound connections to the credential store, session
// manager, and request ledger, enforcing authentication before any
// privileged operation.
type Gateway struct {
	creds      *credentials.Store
	sessions   *session.Manager
	ledger     *ledger.Ledger
	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a gateway over the given collaborators.
func New(creds *credentials.Store, sessions *session.Manager, ldgr *ledger.Ledger, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		creds:    creds,
		sessions: sessions,
		ledger:   ldgr,
		logger:   logger.With("component", "gateway"),
	}
}

// Handler builds the route table. Expired sessions are swept before each
// request is processed.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()

	// Public routes (no auth required)
	mux.HandleFunc("GET /health", g.handleHealth)
	mux.HandleFunc("GET /login", g.handleLoginPage)
	mux.HandleFunc("POST /login", g.handleLogin)
	mux.HandleFunc("GET /{$}", g.handleConsole)

	// Privileged API routes
	mux.HandleFunc("GET /api/requests", g.requireAuth(g.handleListRequests))
	mux.HandleFunc("POST /api/requests/{id}/decision", g.requireAuth(g.handleDecision))

	return g.sweepSessions(mux)
}

// sweepSessions removes expired sessions before each inbound request.
func (g *Gateway) sweepSessions(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		g.sessions.Sweep()
		next.ServeHTTP(w, r)
	})
}

// Run serves the gateway on addr until the context is cancelled or the
// listener fails, then shuts down gracefully. Handlers run on their own
// goroutines, so a long ledger wait elsewhere never stalls the accept loop.
func (g *Gateway) Run(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	g.httpServer = &http.Server{
		Handler:           g.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := g.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	g.logger.Info("gateway listening", "addr", listener.Addr().String())

	var serverErr error
	select {
	case <-ctx.Done():
	case serverErr = <-errCh:
		g.logger.Error("server error", "error", serverErr)
	}

	shutdownErr := g.gracefulShutdown()
	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown stops the server with a fresh context and timeout; the
// run context is already cancelled by the time shutdown begins.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	g.logger.Info("shutting down gateway")
	return g.httpServer.Shutdown(ctx)
}
