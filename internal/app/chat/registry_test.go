package chat

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"

	"groupchat/internal/app/user"
	"groupchat/internal/pkg/errs"
)

type presenceEvent struct {
	userID string
	online bool
}

type presenceLog struct {
	mu     sync.Mutex
	events []presenceEvent
}

func (p *presenceLog) record(id user.Identity, online bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, presenceEvent{id.UserID, online})
}

func (p *presenceLog) all() []presenceEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]presenceEvent(nil), p.events...)
}

func TestRegistryRegisterAndLookup(t *testing.T) {
	var log presenceLog
	r := NewRegistry(log.record)

	c := newFakeConn("c1")
	r.Attach(c)

	if _, ok := r.Lookup("c1"); ok {
		t.Fatal("Expected an attached but unregistered connection to have no identity")
	}

	alice := identity("AAAA0001", "alice")
	if err := r.Register("c1", alice); err != nil {
		t.Fatalf("Register() error: %v", err)
	}

	got, ok := r.Lookup("c1")
	if !ok || got != alice {
		t.Errorf("Lookup() = %+v, %v", got, ok)
	}
	if connID, ok := r.LookupByUser("AAAA0001"); !ok || connID != "c1" {
		t.Errorf("LookupByUser() = %q, %v", connID, ok)
	}
	if !r.IsOnline("AAAA0001") || r.IsOnline("BBBB0002") {
		t.Error("Unexpected online state")
	}

	// Same connection, same user: no second online transition.
	if err := r.Register("c1", alice); err != nil {
		t.Fatalf("Register() again error: %v", err)
	}

	events := log.all()
	if len(events) != 1 || events[0] != (presenceEvent{"AAAA0001", true}) {
		t.Errorf("Unexpected presence events %+v", events)
	}
}

func TestRegistryRejectsMalformedIdentity(t *testing.T) {
	r := NewRegistry(nil)
	r.Attach(newFakeConn("c1"))

	bad := []user.Identity{
		{UserID: "", DisplayName: "x"},
		{UserID: "A B", DisplayName: "x"},
		{UserID: "A:B", DisplayName: "x"},
		{UserID: "AAAA0001", DisplayName: ""},
	}
	for _, id := range bad {
		if err := r.Register("c1", id); errs.KindOf(err) != errs.KindValidation {
			t.Errorf("Register(%+v) = %v, want validation error", id, err)
		}
	}

	if err := r.Register("missing", identity("AAAA0001", "alice")); err != ErrUnknownConnection {
		t.Errorf("Expected ErrUnknownConnection, got %v", err)
	}
}

func TestRegistryLastRegistrationWins(t *testing.T) {
	var log presenceLog
	r := NewRegistry(log.record)

	first, second := newFakeConn("c1"), newFakeConn("c2")
	r.Attach(first)
	r.Attach(second)

	alice := identity("AAAA0001", "alice")
	_ = r.Register("c1", alice)
	_ = r.Register("c2", alice)

	if connID, _ := r.LookupByUser("AAAA0001"); connID != "c2" {
		t.Errorf("Expected the newer connection to be active, got %q", connID)
	}
	if _, ok := r.Lookup("c1"); ok {
		t.Error("Expected the displaced connection to lose its identity")
	}

	if first.count(EventSessionReplaced) != 1 {
		t.Errorf("Expected sessionReplaced on the displaced connection, got %v", first.types())
	}
	if first.kickCount != 1 || first.kickCode != CloseSessionReplaced {
		t.Errorf("Expected kick with code %d, got %d x%d", CloseSessionReplaced, first.kickCode, first.kickCount)
	}

	// The displaced connection going away must not mark alice offline.
	r.Unregister("c1")
	if !r.IsOnline("AAAA0001") {
		t.Error("Expected alice to stay online")
	}

	r.Unregister("c2")
	if r.IsOnline("AAAA0001") {
		t.Error("Expected alice to be offline")
	}

	want := []presenceEvent{{"AAAA0001", true}, {"AAAA0001", false}}
	got := log.all()
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("Presence events = %+v, want %+v", got, want)
	}
}

func TestRegistryReRegisterAsAnotherUser(t *testing.T) {
	var log presenceLog
	r := NewRegistry(log.record)
	r.Attach(newFakeConn("c1"))

	_ = r.Register("c1", identity("AAAA0001", "alice"))
	_ = r.Register("c1", identity("BBBB0002", "bob"))

	if r.IsOnline("AAAA0001") {
		t.Error("Expected the previous user to be released")
	}
	if !r.IsOnline("BBBB0002") {
		t.Error("Expected the new user to be online")
	}

	got := log.all()
	want := []presenceEvent{{"AAAA0001", true}, {"AAAA0001", false}, {"BBBB0002", true}}
	if len(got) != len(want) {
		t.Fatalf("Presence events = %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Event %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestRegistryUnregisterIsIdempotent(t *testing.T) {
	var log presenceLog
	r := NewRegistry(log.record)
	r.Attach(newFakeConn("c1"))
	_ = r.Register("c1", identity("AAAA0001", "alice"))

	r.Unregister("c1")
	r.Unregister("c1")
	r.Unregister("never-attached")

	if r.Len() != 0 {
		t.Errorf("Len() = %d, want 0", r.Len())
	}
	if n := len(log.all()); n != 2 {
		t.Errorf("Expected one online and one offline event, got %d", n)
	}
}

func TestRegistrySendDropsMissingTarget(t *testing.T) {
	r := NewRegistry(nil)
	c := newFakeConn("c1")
	r.Attach(c)
	_ = r.Register("c1", identity("AAAA0001", "alice"))

	if r.Send("gone", NewEnvelope(EventErrorMessage, nil)) {
		t.Error("Expected send to a missing connection to report false")
	}
	if r.SendToUser("BBBB0002", NewEnvelope(EventErrorMessage, nil)) {
		t.Error("Expected send to an offline user to report false")
	}
	if !r.SendToUser("AAAA0001", NewEnvelope(EventPresenceChanged, nil)) || c.count(EventPresenceChanged) != 1 {
		t.Error("Expected targeted send to reach alice")
	}
}

func TestRegistryConcurrentRegisterUnregister(t *testing.T) {
	r := NewRegistry(nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			id := string(rune('A'+i%26)) + "USER"
			connID := id + "-" + string(rune('a'+i%7))
			r.Attach(newFakeConn(connID))
			_ = r.Register(connID, identity(id, "user"))
			r.Lookup(connID)
			r.LookupByUser(id)
			r.Unregister(connID)
		}(i)
	}
	wg.Wait()

	if r.Len() != 0 {
		t.Errorf("Len() = %d after all connections left", r.Len())
	}
}

func TestRegistryLateOfflineDoesNotOverrideNewSession(t *testing.T) {
	var (
		log     presenceLog
		gated   atomic.Bool
		entered = make(chan struct{})
		release = make(chan struct{})
	)
	r := NewRegistry(func(id user.Identity, online bool) {
		if !online && gated.CompareAndSwap(true, false) {
			close(entered)
			<-release
		}
		log.record(id, online)
	})

	alice := identity("AAAA0001", "alice")
	r.Attach(newFakeConn("c1"))
	r.Attach(newFakeConn("c2"))
	_ = r.Register("c1", alice)

	gated.Store(true)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		r.Unregister("c1")
	}()
	<-entered

	// alice reconnects while the offline fan-out for c1 is still in flight.
	go func() {
		defer wg.Done()
		_ = r.Register("c2", alice)
	}()
	for !r.IsOnline("AAAA0001") {
		runtime.Gosched()
	}
	close(release)
	wg.Wait()

	want := []presenceEvent{{"AAAA0001", true}, {"AAAA0001", false}, {"AAAA0001", true}}
	got := log.all()
	if len(got) != len(want) {
		t.Fatalf("Presence events = %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Event %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestRegistryPresenceSettlesOnCurrentState(t *testing.T) {
	var log presenceLog
	r := NewRegistry(log.record)
	alice := identity("AAAA0001", "alice")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for n := 0; n < 100; n++ {
				connID := fmt.Sprintf("c%d-%d", i, n)
				r.Attach(newFakeConn(connID))
				_ = r.Register(connID, alice)
				if n%3 != 0 {
					r.Unregister(connID)
				}
			}
		}(i)
	}
	wg.Wait()

	events := log.all()
	if len(events) == 0 {
		t.Fatal("Expected presence events")
	}
	for i := 1; i < len(events); i++ {
		if events[i].online == events[i-1].online {
			t.Fatalf("Event %d repeats state %v", i, events[i].online)
		}
	}
	if last := events[len(events)-1]; last.online != r.IsOnline("AAAA0001") {
		t.Errorf("Last delivered presence %v, registry says %v", last.online, r.IsOnline("AAAA0001"))
	}
}
