// Package server exposes the relay over HTTP.
//
// Routes:
//
//	GET {ws_path}     WebSocket upgrade, one connection.Actor per socket
//	GET /health       liveness and counters
//	GET {metrics}     Prometheus scrape endpoint
//	GET /debug/users  registered nicknames
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rickgao/peerlink/internal/audit"
	"github.com/rickgao/peerlink/internal/config"
	"github.com/rickgao/peerlink/internal/connection"
	"github.com/rickgao/peerlink/internal/router"
)

// Server accepts WebSocket connections and runs an actor for each.
type Server struct {
	cfg     *config.Config
	connCfg connection.Config
	router  *router.Router
	logger  *slog.Logger

	auditStats func() audit.WriterMetrics

	upgrader websocket.Upgrader
	httpSrv  *http.Server
	listener net.Listener

	// Parent context of every actor; cancelled on Shutdown.
	connCtx    context.Context
	connCancel context.CancelFunc
	mu         sync.Mutex
	closing    bool
	conns      sync.WaitGroup
	active     atomic.Int64

	serveErr chan error
}

// New creates a server. cfg must already be validated.
func New(cfg *config.Config, rt *router.Router, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	connCtx, connCancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:        cfg,
		connCfg:    connection.ConfigFrom(cfg),
		router:     rt,
		logger:     logger,
		connCtx:    connCtx,
		connCancel: connCancel,
		serveErr:   make(chan error, 1),
	}

	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  cfg.Server.ReadBufferSize,
		WriteBufferSize: cfg.Server.WriteBufferSize,
		CheckOrigin:     s.checkOrigin,
	}

	s.httpSrv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// SetAuditStats makes /health report the audit writer's counters.
func (s *Server) SetAuditStats(fn func() audit.WriterMetrics) {
	s.auditStats = fn
}

// Start binds the listen address and serves in the background. A bind
// failure is returned immediately.
func (s *Server) Start(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.cfg.Server.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Server.ListenAddr, err)
	}
	s.listener = ln

	go func() {
		err := s.httpSrv.Serve(ln)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.serveErr <- err
		}
		close(s.serveErr)
	}()

	s.logger.Info("relay listening",
		"addr", ln.Addr().String(),
		"ws_path", s.cfg.Server.WSPath,
	)
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Errors reports a failure of the accept loop after Start.
func (s *Server) Errors() <-chan error {
	return s.serveErr
}

// ActiveConnections returns the number of running actors.
func (s *Server) ActiveConnections() int64 {
	return s.active.Load()
}

// Shutdown stops accepting, closes every live connection with 1001 and
// waits for their teardown, bounded by ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()

	err := s.httpSrv.Shutdown(ctx)
	s.connCancel()

	done := make(chan struct{})
	go func() {
		s.conns.Wait()
		close(done)
	}()

	select {
	case <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("waiting for %d connections: %w", s.active.Load(), ctx.Err())
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		s.logger.Debug("websocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}

	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
			time.Now().Add(time.Second))
		conn.Close()
		return
	}
	s.conns.Add(1)
	s.mu.Unlock()

	s.active.Add(1)
	defer func() {
		s.active.Add(-1)
		s.conns.Done()
	}()

	connection.New(s.connCfg, conn, s.router, s.logger).Run(s.connCtx)
}

// checkOrigin accepts any origin unless check_origin is set. Requests
// without an Origin header come from non-browser clients and are allowed.
func (s *Server) checkOrigin(r *http.Request) bool {
	if !s.cfg.Server.CheckOrigin {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	return slices.ContainsFunc(s.cfg.Server.AllowedOrigins, func(allowed string) bool {
		return strings.EqualFold(allowed, host)
	})
}
