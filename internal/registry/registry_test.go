package registry

import (
	"fmt"
	"reflect"
	"sync"
	"testing"

	"github.com/rickgao/peerlink/internal/mailbox"
)

func TestRegistry_RegisterLookup(t *testing.T) {
	r := New()
	alice := mailbox.New(1)

	if replaced := r.Register("alice", alice); replaced {
		t.Error("Register on empty registry reported replaced")
	}

	got, ok := r.Lookup("alice")
	if !ok {
		t.Fatal("Lookup(alice) not found")
	}
	if got != alice {
		t.Error("Lookup(alice) returned a different mailbox")
	}

	if _, ok := r.Lookup("bob"); ok {
		t.Error("Lookup(bob) found an entry that was never registered")
	}
}

func TestRegistry_RegisterReplaces(t *testing.T) {
	r := New()
	first := mailbox.New(1)
	second := mailbox.New(1)

	r.Register("alice", first)
	if replaced := r.Register("alice", second); !replaced {
		t.Error("second Register did not report replaced")
	}
	if replaced := r.Register("alice", second); replaced {
		t.Error("re-registering the same mailbox reported replaced")
	}

	got, _ := r.Lookup("alice")
	if got != second {
		t.Error("Lookup returned the displaced mailbox")
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}
}

func TestRegistry_Unregister(t *testing.T) {
	r := New()
	r.Register("alice", mailbox.New(1))

	if !r.Unregister("alice") {
		t.Error("Unregister(alice) = false, want true")
	}
	if _, ok := r.Lookup("alice"); ok {
		t.Error("alice still registered after Unregister")
	}
	if r.Unregister("alice") {
		t.Error("second Unregister(alice) = true, want false")
	}
	if r.Unregister("never-seen") {
		t.Error("Unregister of unknown nickname = true, want false")
	}
}

func TestRegistry_UnregisterIfOwner(t *testing.T) {
	r := New()
	old := mailbox.New(1)
	current := mailbox.New(1)

	r.Register("alice", old)
	r.Register("alice", current)

	if r.UnregisterIfOwner("alice", old) {
		t.Error("UnregisterIfOwner removed an entry owned by another mailbox")
	}
	if got, _ := r.Lookup("alice"); got != current {
		t.Error("entry changed after failed UnregisterIfOwner")
	}

	if !r.UnregisterIfOwner("alice", current) {
		t.Error("UnregisterIfOwner(current) = false, want true")
	}
	if _, ok := r.Lookup("alice"); ok {
		t.Error("alice still registered")
	}
	if r.UnregisterIfOwner("alice", current) {
		t.Error("UnregisterIfOwner on missing entry = true, want false")
	}
}

func TestRegistry_List(t *testing.T) {
	r := New()
	for _, name := range []string{"carol", "alice", "bob"} {
		r.Register(name, mailbox.New(1))
	}

	tests := []struct {
		name    string
		exclude string
		want    []string
	}{
		{"exclude nothing", "", []string{"alice", "bob", "carol"}},
		{"exclude alice", "alice", []string{"bob", "carol"}},
		{"exclude unknown", "dave", []string{"alice", "bob", "carol"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.List(tt.exclude)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("List(%q) = %v, want %v", tt.exclude, got, tt.want)
			}
		})
	}
}

func TestRegistry_ListEmpty(t *testing.T) {
	got := New().List("")
	if got == nil || len(got) != 0 {
		t.Errorf("List on empty registry = %#v, want empty non-nil slice", got)
	}
}

func TestRegistry_Concurrent(t *testing.T) {
	r := New()
	const workers = 16
	const perWorker = 100

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			mb := mailbox.New(1)
			for i := 0; i < perWorker; i++ {
				name := fmt.Sprintf("peer-%d-%d", w, i)
				r.Register(name, mb)
				r.Lookup(name)
				r.List(name)
				if i%2 == 1 {
					r.UnregisterIfOwner(name, mb)
				}
			}
		}(w)
	}
	wg.Wait()

	if got, want := r.Len(), workers*perWorker/2; got != want {
		t.Errorf("Len() = %d, want %d", got, want)
	}
}
