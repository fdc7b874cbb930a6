package router

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/peerlink/internal/audit"
	"github.com/rickgao/peerlink/internal/mailbox"
	"github.com/rickgao/peerlink/internal/protocol"
	"github.com/rickgao/peerlink/internal/registry"
)

// recorder collects audit records in memory.
type recorder struct {
	records []audit.Record
}

func (r *recorder) Record(rec audit.Record) { r.records = append(r.records, rec) }

func (r *recorder) kinds() []audit.Kind {
	out := make([]audit.Kind, len(r.records))
	for i, rec := range r.records {
		out[i] = rec.Kind
	}
	return out
}

func newTestRouter() (*Router, *recorder) {
	rec := &recorder{}
	return New(registry.New(), rec, nil), rec
}

func newSession(peer string) *Session {
	return NewSession(uuid.New(), peer, mailbox.New(16))
}

// drain returns everything currently queued in mb.
func drain(t *testing.T, mb *mailbox.Mailbox) []protocol.Message {
	t.Helper()
	var out []protocol.Message
	for mb.Len() > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		msg, err := mb.Receive(ctx)
		cancel()
		if err != nil {
			t.Fatalf("Receive error: %v", err)
		}
		out = append(out, msg)
	}
	return out
}

func dispatch(t *testing.T, r *Router, s *Session, msg protocol.Message) {
	t.Helper()
	if err := r.Dispatch(context.Background(), s, msg); err != nil {
		t.Fatalf("Dispatch(%T) error: %v", msg, err)
	}
}

func TestRouter_RegisterRepliesSuccess(t *testing.T) {
	r, rec := newTestRouter()
	alice := newSession("10.0.0.1:1000")

	dispatch(t, r, alice, protocol.Register{Nickname: "alice"})

	got := drain(t, alice.Mailbox)
	want := []protocol.Message{protocol.RegisterSuccess{}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("replies = %v, want %v", got, want)
	}
	if mb, ok := r.Registry().Lookup("alice"); !ok || mb != alice.Mailbox {
		t.Error("alice not registered to her own mailbox")
	}
	if !reflect.DeepEqual(alice.Nicknames(), []string{"alice"}) {
		t.Errorf("Nicknames() = %v, want [alice]", alice.Nicknames())
	}
	if !reflect.DeepEqual(rec.kinds(), []audit.Kind{audit.KindRegister}) {
		t.Errorf("audit kinds = %v, want [register]", rec.kinds())
	}
}

func TestRouter_ListContainsBothPeers(t *testing.T) {
	r, _ := newTestRouter()
	alice := newSession("a")
	bob := newSession("b")

	dispatch(t, r, alice, protocol.Register{Nickname: "alice"})
	dispatch(t, r, bob, protocol.Register{Nickname: "bob"})
	drain(t, alice.Mailbox)
	drain(t, bob.Mailbox)

	tests := []struct {
		name    string
		exclude string
		want    []string
	}{
		{"exclude nothing", "", []string{"alice", "bob"}},
		{"exclude self", "alice", []string{"bob"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dispatch(t, r, alice, protocol.GetActiveUsersList{Exclude: tt.exclude})
			got := drain(t, alice.Mailbox)
			want := []protocol.Message{protocol.ActiveUsersList{Names: tt.want}}
			if !reflect.DeepEqual(got, want) {
				t.Errorf("replies = %v, want %v", got, want)
			}
		})
	}
}

func TestRouter_ListOnEmptyRegistry(t *testing.T) {
	r, _ := newTestRouter()
	s := newSession("a")

	dispatch(t, r, s, protocol.GetActiveUsersList{Exclude: ""})

	got := drain(t, s.Mailbox)
	if len(got) != 1 {
		t.Fatalf("got %d replies, want 1", len(got))
	}
	list, ok := got[0].(protocol.ActiveUsersList)
	if !ok || len(list.Names) != 0 {
		t.Errorf("reply = %#v, want empty ActiveUsersList", got[0])
	}
}

func TestRouter_SendFileDelivered(t *testing.T) {
	r, rec := newTestRouter()
	alice := newSession("a")
	bob := newSession("b")

	dispatch(t, r, alice, protocol.Register{Nickname: "alice"})
	drain(t, alice.Mailbox)

	dispatch(t, r, bob, protocol.SendFile{Recipient: "alice", Ticket: "T1"})

	got := drain(t, alice.Mailbox)
	want := []protocol.Message{protocol.ReceiveFile{Ticket: "T1"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("alice received %v, want %v", got, want)
	}
	if replies := drain(t, bob.Mailbox); len(replies) != 0 {
		t.Errorf("sender got replies %v, want none", replies)
	}

	last := rec.records[len(rec.records)-1]
	if last.Kind != audit.KindDelivered || last.TicketLen != 2 || last.Nickname != "alice" {
		t.Errorf("audit record = %+v, want delivered to alice with ticket_len 2", last)
	}
	if got := r.Stats().Deliveries; got != 1 {
		t.Errorf("Deliveries = %d, want 1", got)
	}
}

func TestRouter_SendFileUnknownRecipient(t *testing.T) {
	r, _ := newTestRouter()
	alice := newSession("a")
	bob := newSession("b")

	dispatch(t, r, alice, protocol.Register{Nickname: "alice"})
	drain(t, alice.Mailbox)

	dispatch(t, r, bob, protocol.SendFile{Recipient: "ghost", Ticket: "T1"})

	got := drain(t, bob.Mailbox)
	want := []protocol.Message{protocol.UserNotFound{}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("sender replies = %v, want %v", got, want)
	}
	if other := drain(t, alice.Mailbox); len(other) != 0 {
		t.Errorf("bystander received %v, want nothing", other)
	}
	if got := r.Stats().Misses; got != 1 {
		t.Errorf("Misses = %d, want 1", got)
	}
}

func TestRouter_SendFileToClosedMailbox(t *testing.T) {
	r, _ := newTestRouter()
	alice := newSession("a")
	bob := newSession("b")

	dispatch(t, r, alice, protocol.Register{Nickname: "alice"})
	alice.Mailbox.Close()

	dispatch(t, r, bob, protocol.SendFile{Recipient: "alice", Ticket: "T1"})

	got := drain(t, bob.Mailbox)
	want := []protocol.Message{protocol.UserNotFound{}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("sender replies = %v, want %v", got, want)
	}
}

func TestRouter_ReRegisterMovesNickname(t *testing.T) {
	r, rec := newTestRouter()
	first := newSession("a1")
	second := newSession("a2")
	bob := newSession("b")

	dispatch(t, r, first, protocol.Register{Nickname: "alice"})
	dispatch(t, r, second, protocol.Register{Nickname: "alice"})
	drain(t, first.Mailbox)
	drain(t, second.Mailbox)

	dispatch(t, r, bob, protocol.SendFile{Recipient: "alice", Ticket: "T2"})

	if got := drain(t, first.Mailbox); len(got) != 0 {
		t.Errorf("displaced connection received %v, want nothing", got)
	}
	got := drain(t, second.Mailbox)
	want := []protocol.Message{protocol.ReceiveFile{Ticket: "T2"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("latest registrant received %v, want %v", got, want)
	}

	if rec.kinds()[1] != audit.KindReplace {
		t.Errorf("second audit kind = %s, want replace", rec.kinds()[1])
	}
	if got := r.Stats().Replacements; got != 1 {
		t.Errorf("Replacements = %d, want 1", got)
	}

	// Releasing the displaced connection must not evict the new owner.
	r.Release(first)
	if mb, ok := r.Registry().Lookup("alice"); !ok || mb != second.Mailbox {
		t.Error("Release of displaced connection removed the new registrant")
	}
}

func TestRouter_DisconnectUser(t *testing.T) {
	r, _ := newTestRouter()
	alice := newSession("a")
	bob := newSession("b")

	dispatch(t, r, alice, protocol.Register{Nickname: "alice"})
	drain(t, alice.Mailbox)

	dispatch(t, r, alice, protocol.DisconnectUser{Nickname: "alice"})
	if got := drain(t, alice.Mailbox); len(got) != 0 {
		t.Errorf("DisconnectUser produced replies %v, want none", got)
	}

	dispatch(t, r, bob, protocol.GetActiveUsersList{Exclude: ""})
	got := drain(t, bob.Mailbox)
	if list := got[0].(protocol.ActiveUsersList); len(list.Names) != 0 {
		t.Errorf("list after disconnect = %v, want empty", list.Names)
	}

	dispatch(t, r, bob, protocol.SendFile{Recipient: "alice", Ticket: "T1"})
	got = drain(t, bob.Mailbox)
	if !reflect.DeepEqual(got, []protocol.Message{protocol.UserNotFound{}}) {
		t.Errorf("send after disconnect = %v, want [UserNotFound]", got)
	}
	if len(alice.Nicknames()) != 0 {
		t.Errorf("Nicknames() = %v after DisconnectUser, want empty", alice.Nicknames())
	}
}

func TestRouter_DisconnectUnknownIsNoop(t *testing.T) {
	r, rec := newTestRouter()
	s := newSession("a")

	dispatch(t, r, s, protocol.DisconnectUser{Nickname: "never-registered"})

	if got := drain(t, s.Mailbox); len(got) != 0 {
		t.Errorf("replies = %v, want none", got)
	}
	if len(rec.records) != 0 {
		t.Errorf("audit records = %v, want none", rec.records)
	}
	if got := r.Stats().Unregistrations; got != 0 {
		t.Errorf("Unregistrations = %d, want 0", got)
	}
}

func TestRouter_InboundEventsIgnored(t *testing.T) {
	r, rec := newTestRouter()
	s := newSession("a")

	events := []protocol.Message{
		protocol.RegisterSuccess{},
		protocol.ActiveUsersList{Names: []string{"x"}},
		protocol.ReceiveFile{Ticket: "T"},
		protocol.ErrorDeserializingJSON{Description: "d"},
		protocol.UserNotFound{},
	}
	for _, ev := range events {
		dispatch(t, r, s, ev)
	}

	if got := drain(t, s.Mailbox); len(got) != 0 {
		t.Errorf("replies = %v, want none", got)
	}
	if r.Registry().Len() != 0 || len(rec.records) != 0 {
		t.Error("inbound events changed state")
	}
	stats := r.Stats()
	if stats.IgnoredEvents != int64(len(events)) || stats.CommandsReceived != 0 {
		t.Errorf("Stats = %+v, want %d ignored and 0 commands", stats, len(events))
	}
}

func TestRouter_Release(t *testing.T) {
	r, rec := newTestRouter()
	s := newSession("a")

	dispatch(t, r, s, protocol.Register{Nickname: "alice"})
	dispatch(t, r, s, protocol.Register{Nickname: "alice-laptop"})

	r.Release(s)

	if r.Registry().Len() != 0 {
		t.Errorf("registry has %v after Release, want empty", r.Registry().List(""))
	}
	if got := r.Stats().Released; got != 2 {
		t.Errorf("Released = %d, want 2", got)
	}
	kinds := rec.kinds()
	if kinds[len(kinds)-1] != audit.KindDisconnect {
		t.Errorf("last audit kind = %s, want disconnect", kinds[len(kinds)-1])
	}
}

func TestRouter_ReplyToClosedSenderFails(t *testing.T) {
	r, _ := newTestRouter()
	s := newSession("a")
	s.Mailbox.Close()

	err := r.Dispatch(context.Background(), s, protocol.GetActiveUsersList{})
	if !errors.Is(err, mailbox.ErrClosed) {
		t.Errorf("Dispatch error = %v, want ErrClosed", err)
	}
}

func TestRouter_DeliveryWaitsForFullRecipient(t *testing.T) {
	r, _ := newTestRouter()
	alice := NewSession(uuid.New(), "a", mailbox.New(1))
	bob := newSession("b")

	dispatch(t, r, alice, protocol.Register{Nickname: "alice"}) // fills alice's mailbox

	done := make(chan error, 1)
	go func() {
		done <- r.Dispatch(context.Background(), bob, protocol.SendFile{Recipient: "alice", Ticket: "T"})
	}()

	select {
	case err := <-done:
		t.Fatalf("Dispatch returned before space was available: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if msg, _ := alice.Mailbox.Receive(ctx); msg != (protocol.RegisterSuccess{}) {
		t.Fatalf("first message = %v, want RegisterSuccess", msg)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Dispatch error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Dispatch did not resume")
	}

	if msg, _ := alice.Mailbox.Receive(ctx); msg != (protocol.ReceiveFile{Ticket: "T"}) {
		t.Errorf("second message = %v, want ReceiveFile(T)", msg)
	}
}
