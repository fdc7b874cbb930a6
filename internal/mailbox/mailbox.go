// Package mailbox implements the per-connection outbound queue.
//
// A Mailbox is bounded, FIFO, and has exactly one consumer (the connection's
// writer) and any number of producers (its own reader plus the readers of
// other connections routing messages to it). Producers suspend while the
// mailbox is full; nothing is ever dropped.
package mailbox

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/rickgao/peerlink/internal/protocol"
)

// DefaultCapacity is the queue size used when none is configured.
const DefaultCapacity = 100

// ErrClosed is returned by Send and Receive after Close.
var ErrClosed = errors.New("mailbox closed")

// Mailbox is a bounded multi-producer single-consumer message queue.
type Mailbox struct {
	items chan protocol.Message

	// done is closed by Close. items is never closed so that a producer
	// racing with Close cannot panic.
	done      chan struct{}
	closeOnce sync.Once

	// Stats
	totalSent     atomic.Int64
	totalReceived atomic.Int64
	blockedSends  atomic.Int64
}

// Stats contains mailbox statistics.
type Stats struct {
	Depth         int
	Capacity      int
	TotalSent     int64
	TotalReceived int64
	BlockedSends  int64 // Sends that found the mailbox full and had to wait
}

// New creates a mailbox holding at most capacity messages.
func New(capacity int) *Mailbox {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Mailbox{
		items: make(chan protocol.Message, capacity),
		done:  make(chan struct{}),
	}
}

// Send enqueues msg, waiting for space if the mailbox is full.
// Returns ErrClosed if the mailbox is (or becomes) closed, or ctx.Err() if the
// producer's context ends first.
func (m *Mailbox) Send(ctx context.Context, msg protocol.Message) error {
	select {
	case <-m.done:
		return ErrClosed
	default:
	}

	// Fast path
	select {
	case m.items <- msg:
		m.totalSent.Add(1)
		return nil
	default:
	}

	m.blockedSends.Add(1)
	select {
	case m.items <- msg:
		m.totalSent.Add(1)
		return nil
	case <-m.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive dequeues the oldest message, waiting while the mailbox is empty.
// Returns ErrClosed once the mailbox is closed, or ctx.Err() on cancellation.
func (m *Mailbox) Receive(ctx context.Context) (protocol.Message, error) {
	select {
	case <-m.done:
		return nil, ErrClosed
	default:
	}

	select {
	case msg := <-m.items:
		m.totalReceived.Add(1)
		return msg, nil
	case <-m.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close closes the mailbox and wakes every waiting producer and consumer.
// Messages still queued are discarded. Safe to call more than once.
func (m *Mailbox) Close() {
	m.closeOnce.Do(func() {
		close(m.done)
	})
}

// Closed reports whether Close has been called.
func (m *Mailbox) Closed() bool {
	select {
	case <-m.done:
		return true
	default:
		return false
	}
}

// Len returns the number of queued messages.
func (m *Mailbox) Len() int {
	return len(m.items)
}

// Cap returns the mailbox capacity.
func (m *Mailbox) Cap() int {
	return cap(m.items)
}

// Stats returns a snapshot of mailbox statistics.
func (m *Mailbox) Stats() Stats {
	return Stats{
		Depth:         len(m.items),
		Capacity:      cap(m.items),
		TotalSent:     m.totalSent.Load(),
		TotalReceived: m.totalReceived.Load(),
		BlockedSends:  m.blockedSends.Load(),
	}
}
