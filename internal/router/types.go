package router

import (
	"sort"

	"github.com/google/uuid"

	"github.com/rickgao/peerlink/internal/mailbox"
)

// Session is the router's view of one connection.
// It is owned by that connection's reader and must not be shared.
type Session struct {
	ConnID  uuid.UUID
	Peer    string // Remote address, for logs and audit
	Mailbox *mailbox.Mailbox

	// Nicknames this connection registered, for cleanup on Release.
	nicknames map[string]struct{}
}

// NewSession creates a session for a connection whose outbound queue is mb.
func NewSession(connID uuid.UUID, peer string, mb *mailbox.Mailbox) *Session {
	return &Session{
		ConnID:    connID,
		Peer:      peer,
		Mailbox:   mb,
		nicknames: make(map[string]struct{}),
	}
}

// Nicknames returns the nicknames registered through this session, sorted.
func (s *Session) Nicknames() []string {
	out := make([]string, 0, len(s.nicknames))
	for n := range s.nicknames {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// RouterStats contains runtime statistics.
type RouterStats struct {
	CommandsReceived int64
	Registrations    int64
	Replacements     int64 // Registrations that displaced another connection
	Unregistrations  int64
	ListRequests     int64
	Deliveries       int64 // send_file delivered to a recipient
	Misses           int64 // send_file with unknown recipient
	IgnoredEvents    int64 // Events received inbound
	Released         int64 // Nicknames removed by connection teardown
}
