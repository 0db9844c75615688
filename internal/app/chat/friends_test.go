package chat

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"groupchat/internal/app/store"
	"groupchat/internal/app/store/memstore"
	"groupchat/internal/pkg/errs"
)

func TestSendRequestNotifiesBothSides(t *testing.T) {
	h := newTestHub(t)

	alice := h.connect(t, "c1", "AAAA0001", "alice", false)
	bob := h.connect(t, "c2", "BBBB0002", "bob", false)

	h.send(t, alice, EventSendFriendRequest, SendFriendRequestPayload{FromID: "AAAA0001", ToID: "BBBB0002"})

	received := bob.last(t, EventFriendRequestReceived).Payload.(FriendRequestPayload)
	if received.FromID != "AAAA0001" || received.FromName != "alice" || received.ToName != "bob" {
		t.Errorf("Unexpected request payload %+v", received)
	}

	sent := alice.last(t, EventFriendRequestSent).Payload.(FriendRequestPayload)
	if sent.RequestID != received.RequestID {
		t.Errorf("Ack carries request %q, push carries %q", sent.RequestID, received.RequestID)
	}
}

func TestSendRequestToOfflineUserIsStored(t *testing.T) {
	h := newTestHub(t)
	ctx := context.Background()

	fr, err := h.Friends().SendRequest(ctx, identity("AAAA0001", "alice"), "CCCC0003")
	if err != nil {
		t.Fatalf("SendRequest() error: %v", err)
	}

	pending, _ := h.Friends().PendingFor(ctx, "CCCC0003")
	if len(pending) != 1 || pending[0].ID != fr.ID {
		t.Errorf("PendingFor() = %+v", pending)
	}
}

func TestSendRequestGuards(t *testing.T) {
	h := newTestHub(t)
	ctx := context.Background()
	alice := identity("AAAA0001", "alice")

	if _, err := h.Friends().SendRequest(ctx, alice, "AAAA0001"); errs.KindOf(err) != errs.KindValidation {
		t.Errorf("Self request: expected validation error, got %v", err)
	}

	if _, err := h.Friends().SendRequest(ctx, alice, "FFFF9999"); errs.KindOf(err) != errs.KindNotFound {
		t.Errorf("Unknown target: expected not_found error, got %v", err)
	}

	_ = h.store.InsertFriendship(ctx, store.NewFriendship("DDDD0004", "AAAA0001", time.Now()))
	if _, err := h.Friends().SendRequest(ctx, alice, "DDDD0004"); !errs.HasCode(err, errs.ErrAlreadyFriends) {
		t.Errorf("Existing edge: expected ErrAlreadyFriends, got %v", err)
	}
}

func TestDuplicatePendingRequestIsRejected(t *testing.T) {
	h := newTestHub(t)
	ctx := context.Background()
	alice := identity("AAAA0001", "alice")

	if _, err := h.Friends().SendRequest(ctx, alice, "BBBB0002"); err != nil {
		t.Fatalf("First request failed: %v", err)
	}

	_, err := h.Friends().SendRequest(ctx, alice, "BBBB0002")
	if errs.KindOf(err) != errs.KindConflict {
		t.Errorf("Expected conflict error, got %v", err)
	}

	count, _ := h.Friends().PendingCount(ctx, "BBBB0002")
	if count != 1 {
		t.Errorf("Expected one pending record, got %d", count)
	}

	// The opposite direction is a different ordered pair.
	if _, err := h.Friends().SendRequest(ctx, identity("BBBB0002", "bob"), "AAAA0001"); err != nil {
		t.Errorf("Reverse request failed: %v", err)
	}
}

func TestAcceptCreatesOneEdge(t *testing.T) {
	h := newTestHub(t)
	ctx := context.Background()

	alice := h.connect(t, "c1", "AAAA0001", "alice", false)
	bob := h.connect(t, "c2", "BBBB0002", "bob", false)

	fr, err := h.Friends().SendRequest(ctx, identity("AAAA0001", "alice"), "BBBB0002")
	if err != nil {
		t.Fatalf("SendRequest() error: %v", err)
	}

	h.send(t, bob, EventAcceptFriendRequest, FriendRequestActionPayload{RequestID: fr.ID, FromID: "AAAA0001", ToID: "BBBB0002"})

	edges, _ := h.store.ListFriendships(ctx, "AAAA0001")
	if len(edges) != 1 || edges[0].Other("AAAA0001") != "BBBB0002" {
		t.Fatalf("Expected one edge, got %+v", edges)
	}

	accepted := alice.last(t, EventFriendRequestAccepted).Payload.(FriendPayload)
	if accepted.UserID != "BBBB0002" || accepted.DisplayName != "bob" {
		t.Errorf("Unexpected accepted payload %+v", accepted)
	}
	added := bob.last(t, EventFriendAdded).Payload.(FriendPayload)
	if added.UserID != "AAAA0001" || !added.Online {
		t.Errorf("Unexpected friendAdded payload %+v", added)
	}

	stored, _ := h.store.FindFriendRequest(ctx, fr.ID)
	if stored.Status != store.RequestAccepted || stored.RespondedAt == nil {
		t.Errorf("Expected accepted request with response time, got %+v", stored)
	}

	// A second accept is silently ignored.
	h.send(t, bob, EventAcceptFriendRequest, FriendRequestActionPayload{RequestID: fr.ID})
	if bob.count(EventErrorMessage) != 0 {
		t.Errorf("Second accept should be silent, got %v", bob.types())
	}
	if edges, _ := h.store.ListFriendships(ctx, "AAAA0001"); len(edges) != 1 {
		t.Errorf("Expected one edge after second accept, got %d", len(edges))
	}
}

// flakyFriendships fails the first friendship insert.
type flakyFriendships struct {
	*memstore.MemStore
	failed atomic.Bool
}

func (s *flakyFriendships) InsertFriendship(ctx context.Context, f store.Friendship) error {
	if s.failed.CompareAndSwap(false, true) {
		return archiveError("connection reset")
	}
	return s.MemStore.InsertFriendship(ctx, f)
}

func TestAcceptReopensRequestWhenEdgeFails(t *testing.T) {
	ms := memstore.New()
	h := newTestHubWith(t, ms, &flakyFriendships{MemStore: ms})
	ctx := context.Background()

	alice := h.connect(t, "c1", "AAAA0001", "alice", false)
	h.connect(t, "c2", "BBBB0002", "bob", false)

	fr, err := h.Friends().SendRequest(ctx, identity("AAAA0001", "alice"), "BBBB0002")
	if err != nil {
		t.Fatalf("SendRequest() error: %v", err)
	}

	err = h.Friends().Accept(ctx, fr.ID, identity("BBBB0002", "bob"))
	if !errs.HasCode(err, errs.ErrStoreUnavailable) {
		t.Fatalf("Expected ErrStoreUnavailable, got %v", err)
	}

	stored, _ := ms.FindFriendRequest(ctx, fr.ID)
	if stored.Status != store.RequestPending || stored.RespondedAt != nil {
		t.Fatalf("Expected the request back in pending, got %+v", stored)
	}
	if alice.count(EventFriendRequestAccepted) != 0 {
		t.Error("Sender was told about an accept that did not stick")
	}

	if err := h.Friends().Accept(ctx, fr.ID, identity("BBBB0002", "bob")); err != nil {
		t.Fatalf("Retried Accept() error: %v", err)
	}
	if edges, _ := ms.ListFriendships(ctx, "AAAA0001"); len(edges) != 1 {
		t.Errorf("Expected one edge after the retry, got %d", len(edges))
	}
	if alice.count(EventFriendRequestAccepted) != 1 {
		t.Errorf("Expected one friendRequestAccepted, got %v", alice.types())
	}
}

func TestConcurrentAcceptCreatesAtMostOneEdge(t *testing.T) {
	h := newTestHub(t)
	ctx := context.Background()

	fr, err := h.Friends().SendRequest(ctx, identity("AAAA0001", "alice"), "BBBB0002")
	if err != nil {
		t.Fatalf("SendRequest() error: %v", err)
	}

	counting := &countingFriendships{MemStore: h.store}
	friends := NewFriends(counting, h.Registry())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := friends.Accept(ctx, fr.ID, identity("BBBB0002", "bob")); err != nil {
				t.Errorf("Accept() error: %v", err)
			}
		}()
	}
	wg.Wait()

	if n := counting.inserts(); n != 1 {
		t.Errorf("Expected exactly one edge insert, got %d", n)
	}
	if edges, _ := h.store.ListFriendships(ctx, "BBBB0002"); len(edges) != 1 {
		t.Errorf("Expected one edge, got %d", len(edges))
	}
}

func TestAcceptOnlyByAddressee(t *testing.T) {
	h := newTestHub(t)
	ctx := context.Background()

	fr, _ := h.Friends().SendRequest(ctx, identity("AAAA0001", "alice"), "BBBB0002")

	err := h.Friends().Accept(ctx, fr.ID, identity("CCCC0003", "carol"))
	if errs.KindOf(err) != errs.KindAuthorization {
		t.Errorf("Expected authorization error, got %v", err)
	}
	if err := h.Friends().Accept(ctx, fr.ID, identity("AAAA0001", "alice")); errs.KindOf(err) != errs.KindAuthorization {
		t.Errorf("Sender accepting own request: expected authorization error, got %v", err)
	}

	if edges, _ := h.store.ListFriendships(ctx, "AAAA0001"); len(edges) != 0 {
		t.Errorf("Expected no edge, got %+v", edges)
	}
}

func TestAcceptUnknownRequestIsIgnored(t *testing.T) {
	h := newTestHub(t)
	bob := h.connect(t, "c2", "BBBB0002", "bob", false)

	h.send(t, bob, EventAcceptFriendRequest, FriendRequestActionPayload{RequestID: "00000000-0000-0000-0000-00000000dead"})

	if bob.count(EventErrorMessage) != 0 || bob.count(EventFriendAdded) != 0 {
		t.Errorf("Expected no reaction, got %v", bob.types())
	}
}

func TestRejectCreatesNoEdge(t *testing.T) {
	h := newTestHub(t)
	ctx := context.Background()

	alice := h.connect(t, "c1", "AAAA0001", "alice", false)
	bob := h.connect(t, "c2", "BBBB0002", "bob", false)

	fr, _ := h.Friends().SendRequest(ctx, identity("AAAA0001", "alice"), "BBBB0002")
	h.send(t, bob, EventRejectFriendRequest, FriendRequestActionPayload{RequestID: fr.ID})

	rejected := alice.last(t, EventFriendRequestRejected).Payload.(FriendPayload)
	if rejected.UserID != "BBBB0002" {
		t.Errorf("Unexpected rejected payload %+v", rejected)
	}

	if edges, _ := h.store.ListFriendships(ctx, "AAAA0001"); len(edges) != 0 {
		t.Errorf("Expected no edge, got %+v", edges)
	}

	// Rejected is terminal.
	if err := h.Friends().Accept(ctx, fr.ID, identity("BBBB0002", "bob")); err != nil {
		t.Errorf("Accept() after reject: %v", err)
	}
	stored, _ := h.store.FindFriendRequest(ctx, fr.ID)
	if stored.Status != store.RequestRejected {
		t.Errorf("Expected status to stay rejected, got %s", stored.Status)
	}
}

func TestRespondMismatchedToID(t *testing.T) {
	h := newTestHub(t)
	bob := h.connect(t, "c2", "BBBB0002", "bob", false)

	h.send(t, bob, EventAcceptFriendRequest, FriendRequestActionPayload{RequestID: "x", ToID: "CCCC0003"})

	got := bob.last(t, EventErrorMessage).Payload.(ErrorPayload)
	if got.Code != errs.ErrIdentityMismatch {
		t.Errorf("Expected ErrIdentityMismatch, got %+v", got)
	}
}

func TestPresenceReachesOnlineFriendsOnly(t *testing.T) {
	h := newTestHub(t)
	ctx := context.Background()

	_ = h.store.InsertFriendship(ctx, store.NewFriendship("AAAA0001", "BBBB0002", time.Now()))
	_ = h.store.InsertFriendship(ctx, store.NewFriendship("AAAA0001", "DDDD0004", time.Now()))

	bob := h.connect(t, "c2", "BBBB0002", "bob", false)
	carol := h.connect(t, "c3", "CCCC0003", "carol", false)
	bob.reset()
	carol.reset()

	alice := h.connect(t, "c1", "AAAA0001", "alice", false)

	online := bob.last(t, EventPresenceChanged).Payload.(PresencePayload)
	if online.UserID != "AAAA0001" || !online.Online || online.DisplayName != "alice" {
		t.Errorf("Unexpected presence payload %+v", online)
	}
	if carol.count(EventPresenceChanged) != 0 {
		t.Error("Presence reached a non-friend")
	}

	h.Detach(alice.ID())

	events := bob.events(EventPresenceChanged)
	if len(events) != 2 || events[1].Payload.(PresencePayload).Online {
		t.Errorf("Expected an offline notification, got %+v", events)
	}
	if carol.count(EventPresenceChanged) != 0 {
		t.Error("Presence reached a non-friend")
	}
}

func TestFriendListOnlineFlags(t *testing.T) {
	h := newTestHub(t)
	ctx := context.Background()

	_ = h.store.InsertFriendship(ctx, store.NewFriendship("AAAA0001", "BBBB0002", time.Now()))
	_ = h.store.InsertFriendship(ctx, store.NewFriendship("CCCC0003", "AAAA0001", time.Now()))
	h.connect(t, "c2", "BBBB0002", "Bobby", false)

	friends, err := h.Friends().List(ctx, "AAAA0001")
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(friends) != 2 {
		t.Fatalf("Expected two friends, got %+v", friends)
	}
	if friends[0].UserID != "BBBB0002" || !friends[0].Online || friends[0].DisplayName != "Bobby" {
		t.Errorf("Unexpected first friend %+v", friends[0])
	}
	if friends[1].UserID != "CCCC0003" || friends[1].Online || friends[1].DisplayName != "carol" {
		t.Errorf("Unexpected second friend %+v", friends[1])
	}
}

// countingFriendships counts edge inserts that reach the store.
type countingFriendships struct {
	*memstore.MemStore
	mu sync.Mutex
	n  int
}

func (c *countingFriendships) InsertFriendship(ctx context.Context, f store.Friendship) error {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
	return c.MemStore.InsertFriendship(ctx, f)
}

func (c *countingFriendships) inserts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}
