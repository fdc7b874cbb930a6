package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/rickgao/peerlink/internal/audit"
	"github.com/rickgao/peerlink/internal/mailbox"
	"github.com/rickgao/peerlink/internal/metrics"
	"github.com/rickgao/peerlink/internal/protocol"
	"github.com/rickgao/peerlink/internal/registry"
)

// Router dispatches inbound commands against the registry.
type Router struct {
	registry *registry.Registry
	recorder audit.Recorder
	logger   *slog.Logger

	// Stats (atomic operations for thread safety)
	commands        atomic.Int64
	registrations   atomic.Int64
	replacements    atomic.Int64
	unregistrations atomic.Int64
	listRequests    atomic.Int64
	deliveries      atomic.Int64
	misses          atomic.Int64
	ignoredEvents   atomic.Int64
	released        atomic.Int64
}

// New creates a Router. A nil recorder disables auditing.
func New(reg *registry.Registry, recorder audit.Recorder, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	if recorder == nil {
		recorder = audit.Nop{}
	}
	return &Router{
		registry: reg,
		recorder: recorder,
		logger:   logger,
	}
}

// Registry returns the registry the router mutates.
func (r *Router) Registry() *registry.Registry {
	return r.registry
}

// Dispatch applies msg on behalf of s.
//
// The only error returned is a failure to enqueue a reply into the sender's
// own mailbox, which means the sender's connection is going away. Routing
// misses are answered in-band and are not errors.
func (r *Router) Dispatch(ctx context.Context, s *Session, msg protocol.Message) error {
	cmd, ok := msg.(protocol.Command)
	if !ok {
		r.ignoredEvents.Add(1)
		metrics.IgnoredMessages.WithLabelValues("inbound").Inc()
		r.logger.Debug("ignoring inbound event",
			"conn_id", s.ConnID,
			"type", msg.Kind(),
		)
		return nil
	}

	r.commands.Add(1)
	metrics.CommandsTotal.WithLabelValues(string(cmd.Kind())).Inc()

	switch c := cmd.(type) {
	case protocol.Register:
		return r.register(ctx, s, c)
	case protocol.DisconnectUser:
		r.disconnectUser(s, c)
		return nil
	case protocol.GetActiveUsersList:
		return r.listUsers(ctx, s, c)
	case protocol.SendFile:
		return r.sendFile(ctx, s, c)
	}

	// A Command type added to protocol without a case here.
	r.logger.Warn("no route for command", "conn_id", s.ConnID, "type", cmd.Kind())
	return nil
}

// Release removes every nickname s registered that still points at s.
// Called once when the connection's actor pair has stopped.
func (r *Router) Release(s *Session) {
	for _, nick := range s.Nicknames() {
		if !r.registry.UnregisterIfOwner(nick, s.Mailbox) {
			continue
		}
		r.released.Add(1)
		r.recorder.Record(audit.NewRecord(audit.KindDisconnect, s.ConnID, nick, s.Peer))
		r.logger.Info("peer released",
			"conn_id", s.ConnID,
			"nickname", nick,
		)
	}
	clear(s.nicknames)
	metrics.RegisteredPeers.Set(float64(r.registry.Len()))
}

// Stats returns current router statistics.
func (r *Router) Stats() RouterStats {
	return RouterStats{
		CommandsReceived: r.commands.Load(),
		Registrations:    r.registrations.Load(),
		Replacements:     r.replacements.Load(),
		Unregistrations:  r.unregistrations.Load(),
		ListRequests:     r.listRequests.Load(),
		Deliveries:       r.deliveries.Load(),
		Misses:           r.misses.Load(),
		IgnoredEvents:    r.ignoredEvents.Load(),
		Released:         r.released.Load(),
	}
}

func (r *Router) register(ctx context.Context, s *Session, c protocol.Register) error {
	replaced := r.registry.Register(c.Nickname, s.Mailbox)
	s.nicknames[c.Nickname] = struct{}{}

	r.registrations.Add(1)
	metrics.RegisteredPeers.Set(float64(r.registry.Len()))

	kind := audit.KindRegister
	if replaced {
		// The displaced connection is not told; it simply stops being
		// reachable under this name.
		r.replacements.Add(1)
		kind = audit.KindReplace
		metrics.Registrations.WithLabelValues("replaced").Inc()
		r.logger.Warn("nickname taken over by new connection",
			"conn_id", s.ConnID,
			"nickname", c.Nickname,
			"remote_addr", s.Peer,
		)
	} else {
		metrics.Registrations.WithLabelValues("new").Inc()
		r.logger.Info("peer registered",
			"conn_id", s.ConnID,
			"nickname", c.Nickname,
			"remote_addr", s.Peer,
		)
	}
	r.recorder.Record(audit.NewRecord(kind, s.ConnID, c.Nickname, s.Peer))

	return r.reply(ctx, s, protocol.RegisterSuccess{})
}

func (r *Router) disconnectUser(s *Session, c protocol.DisconnectUser) {
	delete(s.nicknames, c.Nickname)

	if !r.registry.Unregister(c.Nickname) {
		r.logger.Debug("disconnect for unknown nickname",
			"conn_id", s.ConnID,
			"nickname", c.Nickname,
		)
		return
	}

	r.unregistrations.Add(1)
	metrics.RegisteredPeers.Set(float64(r.registry.Len()))
	r.recorder.Record(audit.NewRecord(audit.KindUnregister, s.ConnID, c.Nickname, s.Peer))
	r.logger.Info("peer unregistered",
		"conn_id", s.ConnID,
		"nickname", c.Nickname,
	)
}

func (r *Router) listUsers(ctx context.Context, s *Session, c protocol.GetActiveUsersList) error {
	r.listRequests.Add(1)
	names := r.registry.List(c.Exclude)
	return r.reply(ctx, s, protocol.ActiveUsersList{Names: names})
}

func (r *Router) sendFile(ctx context.Context, s *Session, c protocol.SendFile) error {
	target, ok := r.registry.Lookup(c.Recipient)
	if ok {
		err := target.Send(ctx, protocol.ReceiveFile{Ticket: c.Ticket})
		if err == nil {
			r.deliveries.Add(1)
			metrics.Rendezvous.WithLabelValues("delivered").Inc()
			rec := audit.NewRecord(audit.KindDelivered, s.ConnID, c.Recipient, s.Peer)
			rec.TicketLen = len(c.Ticket)
			r.recorder.Record(rec)
			r.logger.Debug("ticket delivered",
				"conn_id", s.ConnID,
				"recipient", c.Recipient,
			)
			return nil
		}
		if !errors.Is(err, mailbox.ErrClosed) {
			// Our own context ended while the recipient's mailbox was full.
			return fmt.Errorf("deliver to %q: %w", c.Recipient, err)
		}
		// Recipient is tearing down; its entry is about to go.
		r.logger.Debug("recipient mailbox closed",
			"conn_id", s.ConnID,
			"recipient", c.Recipient,
		)
	}

	r.misses.Add(1)
	metrics.Rendezvous.WithLabelValues("not_found").Inc()
	rec := audit.NewRecord(audit.KindRecipientMissing, s.ConnID, c.Recipient, s.Peer)
	rec.TicketLen = len(c.Ticket)
	r.recorder.Record(rec)
	return r.reply(ctx, s, protocol.UserNotFound{})
}

func (r *Router) reply(ctx context.Context, s *Session, ev protocol.Event) error {
	if err := s.Mailbox.Send(ctx, ev); err != nil {
		return fmt.Errorf("reply %s: %w", ev.Kind(), err)
	}
	return nil
}
