package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/peerlink/internal/mailbox"
	"github.com/rickgao/peerlink/internal/metrics"
	"github.com/rickgao/peerlink/internal/protocol"
	"github.com/rickgao/peerlink/internal/router"
)

// Actor runs one accepted WebSocket connection.
type Actor struct {
	cfg    Config
	conn   *websocket.Conn
	router *router.Router
	logger *slog.Logger

	id      uuid.UUID
	mailbox *mailbox.Mailbox
	session *router.Session
}

// New creates an actor for conn. Run must be called exactly once.
func New(cfg Config, conn *websocket.Conn, rt *router.Router, logger *slog.Logger) *Actor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultConfig().WriteTimeout
	}

	id := uuid.New()
	mb := mailbox.New(cfg.MailboxSize)
	peer := conn.RemoteAddr().String()

	return &Actor{
		cfg:     cfg,
		conn:    conn,
		router:  rt,
		logger:  logger.With("conn_id", id, "remote_addr", peer),
		id:      id,
		mailbox: mb,
		session: router.NewSession(id, peer, mb),
	}
}

// ID returns the connection ID used in logs and audit records.
func (a *Actor) ID() uuid.UUID {
	return a.id
}

// Run serves the connection until the peer goes away, a transport error
// occurs, or ctx is cancelled. The socket is closed and the connection's
// nicknames are released before Run returns. A normal close returns nil.
func (a *Actor) Run(ctx context.Context) error {
	start := time.Now()
	metrics.ConnectionsTotal.Inc()
	metrics.ConnectionsActive.Inc()
	defer func() {
		metrics.ConnectionsActive.Dec()
		metrics.ConnectionDuration.Observe(time.Since(start).Seconds())
	}()

	if a.cfg.ReadLimit > 0 {
		a.conn.SetReadLimit(a.cfg.ReadLimit)
	}
	if a.cfg.ReadTimeout > 0 {
		a.conn.SetReadDeadline(time.Now().Add(a.cfg.ReadTimeout))
		a.conn.SetPongHandler(func(string) error {
			return a.conn.SetReadDeadline(time.Now().Add(a.cfg.ReadTimeout))
		})
	}

	a.logger.Info("connection opened")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.readLoop(gctx) })
	g.Go(func() error { return a.writeLoop(gctx) })
	if a.cfg.PingInterval > 0 {
		g.Go(func() error { return a.heartbeatLoop(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		a.shutdown(ctx.Err() != nil)
		return nil
	})

	err := g.Wait()
	a.router.Release(a.session)

	err = classify(ctx, err)
	if err != nil {
		a.logger.Warn("connection closed with error",
			"error", err,
			"duration", time.Since(start),
		)
		return err
	}
	a.logger.Info("connection closed", "duration", time.Since(start))
	return nil
}

// shutdown stops every loop: closing the mailbox wakes the writer and any
// producer blocked on it, closing the socket unblocks the reader.
func (a *Actor) shutdown(relayStopping bool) {
	a.mailbox.Close()

	code := websocket.CloseNormalClosure
	if relayStopping {
		code = websocket.CloseGoingAway
	}
	a.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(code, ""),
		time.Now().Add(time.Second),
	)
	a.conn.Close()
}

// readLoop decodes inbound frames and dispatches them. It always returns a
// non-nil error so the errgroup cancels its siblings.
func (a *Actor) readLoop(ctx context.Context) error {
	for {
		msgType, data, err := a.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				return ErrPeerClosed
			}
			return fmt.Errorf("read: %w", err)
		}
		if a.cfg.ReadTimeout > 0 {
			a.conn.SetReadDeadline(time.Now().Add(a.cfg.ReadTimeout))
		}

		if msgType != websocket.TextMessage {
			if err := a.rejectFrame(ctx, binaryFrameError); err != nil {
				return err
			}
			continue
		}

		msg, err := protocol.Decode(data)
		if err != nil {
			if err := a.rejectFrame(ctx, err.Error()); err != nil {
				return err
			}
			continue
		}

		if err := a.router.Dispatch(ctx, a.session, msg); err != nil {
			return err
		}
	}
}

// rejectFrame answers an undecodable frame. The connection stays open.
func (a *Actor) rejectFrame(ctx context.Context, description string) error {
	metrics.DecodeErrors.Inc()
	a.logger.Debug("rejected inbound frame", "reason", description)
	return a.mailbox.Send(ctx, protocol.ErrorDeserializingJSON{Description: description})
}

// writeLoop drains the mailbox onto the socket. Only Events are written;
// anything else is skipped.
func (a *Actor) writeLoop(ctx context.Context) error {
	for {
		msg, err := a.mailbox.Receive(ctx)
		if err != nil {
			return err
		}

		if !protocol.IsEvent(msg) {
			metrics.IgnoredMessages.WithLabelValues("outbound").Inc()
			a.logger.Error("dropping non-event from mailbox", "type", msg.Kind())
			continue
		}

		data, err := protocol.Encode(msg)
		if err != nil {
			a.logger.Error("encode event failed", "type", msg.Kind(), "error", err)
			continue
		}

		a.conn.SetWriteDeadline(time.Now().Add(a.cfg.WriteTimeout))
		if err := a.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return fmt.Errorf("write: %w", err)
		}
		metrics.EventsSent.WithLabelValues(string(msg.Kind())).Inc()
	}
}

// heartbeatLoop sends keepalive pings. WriteControl is safe to call
// concurrently with the writer.
func (a *Actor) heartbeatLoop(ctx context.Context) error {
	ticker := time.NewTicker(a.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			deadline := time.Now().Add(a.cfg.WriteTimeout)
			if err := a.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return fmt.Errorf("ping: %w", err)
			}
		}
	}
}

// classify drops the errors that mean "the connection ended normally".
func classify(ctx context.Context, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrPeerClosed), errors.Is(err, mailbox.ErrClosed):
		return nil
	case ctx.Err() != nil:
		// Relay shutdown closed the socket under the reader.
		return nil
	}
	return err
}
