// Package audit records presence and rendezvous outcomes.
//
// Routing code reports to a Recorder. Nop discards everything; Writer
// batches records into PostgreSQL. Recording never blocks routing: when the
// Writer's queue is full the record is dropped and counted.
//
// Tickets are never stored, only their length.
package audit

import (
	"time"

	"github.com/google/uuid"
)

// Kind identifies what happened.
type Kind string

const (
	KindRegister         Kind = "register"
	KindReplace          Kind = "replace"    // Register displaced another connection
	KindUnregister       Kind = "unregister" // DisconnectUser command
	KindDisconnect       Kind = "disconnect" // Connection teardown cleanup
	KindDelivered        Kind = "send_file_delivered"
	KindRecipientMissing Kind = "send_file_not_found"
)

// Record is one audit row.
type Record struct {
	ID         uuid.UUID
	OccurredAt time.Time
	Kind       Kind
	ConnID     uuid.UUID // Connection that caused the event
	Nickname   string    // Nickname acted on (recipient for send_file)
	Peer       string    // Remote address of ConnID
	TicketLen  int       // send_file only
}

// Recorder accepts audit records. Implementations must not block.
type Recorder interface {
	Record(r Record)
}

// Nop is a Recorder that discards records.
type Nop struct{}

// Record implements Recorder.
func (Nop) Record(Record) {}

// NewRecord stamps a record with a fresh ID and the current time.
func NewRecord(kind Kind, connID uuid.UUID, nickname, peer string) Record {
	return Record{
		ID:         uuid.New(),
		OccurredAt: time.Now().UTC(),
		Kind:       kind,
		ConnID:     connID,
		Nickname:   nickname,
		Peer:       peer,
	}
}
