// Package storetest holds the behavioral checks every store.Store implementation
// must pass. Implementation packages call Run from their own tests.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"groupchat/internal/app/store"
)

// Factory returns a fresh, empty store for one subtest.
type Factory func(t *testing.T) store.Store

// Run executes the conformance suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("Accounts", func(t *testing.T) { testAccounts(t, newStore(t)) })
	t.Run("Rooms", func(t *testing.T) { testRooms(t, newStore(t)) })
	t.Run("Messages", func(t *testing.T) { testMessages(t, newStore(t)) })
	t.Run("Friendships", func(t *testing.T) { testFriendships(t, newStore(t)) })
	t.Run("FriendRequests", func(t *testing.T) { testFriendRequests(t, newStore(t)) })
	t.Run("RequestStatusIsCompareAndSwap", func(t *testing.T) { testRequestCAS(t, newStore(t)) })
	t.Run("RequestRevertToPending", func(t *testing.T) { testRequestRevert(t, newStore(t)) })
	t.Run("SeedDefaultRooms", func(t *testing.T) { testSeed(t, newStore(t)) })
}

func testAccounts(t *testing.T, s store.Store) {
	ctx := context.Background()

	u := &store.User{UserID: "AAAA0001", Username: "alice", Email: "alice@example.com", PasswordHash: "x", IsAdmin: true, CreatedAt: time.Now()}
	if err := s.CreateUser(ctx, u); err != nil {
		t.Fatalf("CreateUser() error: %v", err)
	}

	dup := &store.User{UserID: "AAAA0002", Username: "alice", Email: "other@example.com", CreatedAt: time.Now()}
	if err := s.CreateUser(ctx, dup); !errors.Is(err, store.ErrDuplicate) {
		t.Errorf("Expected ErrDuplicate for duplicate username, got %v", err)
	}

	byID, err := s.FindUserByID(ctx, "AAAA0001")
	if err != nil || byID.Username != "alice" {
		t.Fatalf("FindUserByID() = %+v, %v", byID, err)
	}

	byName, err := s.FindUserByName(ctx, "alice")
	if err != nil || byName.UserID != "AAAA0001" {
		t.Fatalf("FindUserByName() = %+v, %v", byName, err)
	}

	if _, err := s.FindUserByID(ctx, "MISSING0"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	admin, err := s.IsAdmin(ctx, "AAAA0001")
	if err != nil || !admin {
		t.Errorf("IsAdmin() = %v, %v", admin, err)
	}
}

func testRooms(t *testing.T, s store.Store) {
	ctx := context.Background()
	now := time.Now()

	rooms := []*store.Room{
		{Name: "Zeta", Kind: store.RoomPublic, CreatedBy: "system", CreatedAt: now},
		{Name: "Alpha", Kind: store.RoomPublic, CreatedBy: "system", CreatedAt: now},
		{Name: "private:A:B", Kind: store.RoomPrivate, Members: []string{"A", "B"}, CreatedBy: "A", CreatedAt: now},
		{Name: "group:g:A:B:C", DisplayName: "g", Kind: store.RoomGroup, Members: []string{"A", "B", "C"}, CreatedBy: "A", CreatedAt: now},
	}
	for _, r := range rooms {
		if err := s.InsertRoom(ctx, r); err != nil {
			t.Fatalf("InsertRoom(%s) error: %v", r.Name, err)
		}
	}

	if err := s.InsertRoom(ctx, &store.Room{Name: "Alpha", Kind: store.RoomPublic, CreatedAt: now}); !errors.Is(err, store.ErrDuplicate) {
		t.Errorf("Expected ErrDuplicate, got %v", err)
	}

	group, err := s.FindRoom(ctx, "group:g:A:B:C")
	if err != nil {
		t.Fatalf("FindRoom() error: %v", err)
	}
	if group.Kind != store.RoomGroup || len(group.Members) != 3 || !group.HasMember("C") {
		t.Errorf("Unexpected group record %+v", group)
	}

	visibleToC, err := s.ListRoomsVisibleTo(ctx, "C")
	if err != nil {
		t.Fatalf("ListRoomsVisibleTo() error: %v", err)
	}
	assertRoomNames(t, visibleToC, "Alpha", "Zeta", "group:g:A:B:C")

	visibleToA, _ := s.ListRoomsVisibleTo(ctx, "A")
	assertRoomNames(t, visibleToA, "Alpha", "Zeta", "group:g:A:B:C", "private:A:B")

	deleted, err := s.DeleteRoom(ctx, "private:A:B")
	if err != nil || deleted {
		t.Errorf("DeleteRoom() must only delete public rooms, got %v, %v", deleted, err)
	}

	deleted, err = s.DeleteRoom(ctx, "Zeta")
	if err != nil || !deleted {
		t.Fatalf("DeleteRoom() = %v, %v", deleted, err)
	}
	if _, err := s.FindRoom(ctx, "Zeta"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected deleted room to be gone, got %v", err)
	}

	deleted, _ = s.DeleteRoom(ctx, "Zeta")
	if deleted {
		t.Error("Expected second delete to report false")
	}
}

func assertRoomNames(t *testing.T, rooms []store.Room, want ...string) {
	t.Helper()
	if len(rooms) != len(want) {
		t.Fatalf("Expected rooms %v, got %d rooms (%+v)", want, len(rooms), rooms)
	}
	for i, name := range want {
		if rooms[i].Name != name {
			t.Errorf("Room %d: expected %q, got %q", i, name, rooms[i].Name)
		}
	}
}

func testMessages(t *testing.T, s store.Store) {
	ctx := context.Background()
	now := time.Now()

	_ = s.InsertRoom(ctx, &store.Room{Name: "Genel", Kind: store.RoomPublic, CreatedAt: now})
	_ = s.InsertRoom(ctx, &store.Room{Name: "Gone", Kind: store.RoomPublic, CreatedAt: now})

	texts := []string{"one", "two", "three"}
	for i, text := range texts {
		msg := &store.Message{ID: "m" + text, Room: "Genel", UserID: "A", DisplayName: "alice", Text: text, Timestamp: "10:00", CreatedAt: now.Add(time.Duration(i) * time.Second)}
		if err := s.InsertMessage(ctx, msg); err != nil {
			t.Fatalf("InsertMessage() error: %v", err)
		}
	}
	_ = s.InsertMessage(ctx, &store.Message{ID: "orphan", Room: "Gone", Text: "bye", CreatedAt: now})
	_ = s.InsertMessage(ctx, &store.Message{ID: "orphan2", Room: "Gone", Text: "bye again", CreatedAt: now.Add(time.Second)})

	last2, err := s.ListMessages(ctx, "Genel", 2)
	if err != nil {
		t.Fatalf("ListMessages() error: %v", err)
	}
	if len(last2) != 2 || last2[0].Text != "two" || last2[1].Text != "three" {
		t.Errorf("Expected the two latest messages oldest first, got %+v", last2)
	}

	if _, err := s.DeleteRoom(ctx, "Gone"); err != nil {
		t.Fatalf("DeleteRoom() error: %v", err)
	}
	purged, err := s.PurgeOrphanMessages(ctx)
	if err != nil || purged != 2 {
		t.Errorf("PurgeOrphanMessages() = %d, %v; want 2", purged, err)
	}

	removed, err := s.DeleteMessagesByRoom(ctx, "Genel")
	if err != nil || removed != 3 {
		t.Errorf("DeleteMessagesByRoom() = %d, %v; want 3", removed, err)
	}
	left, _ := s.ListMessages(ctx, "Genel", 100)
	if len(left) != 0 {
		t.Errorf("Expected no messages left, got %d", len(left))
	}
}

func testFriendships(t *testing.T, s store.Store) {
	ctx := context.Background()

	if err := s.InsertFriendship(ctx, store.NewFriendship("B", "A", time.Now())); err != nil {
		t.Fatalf("InsertFriendship() error: %v", err)
	}
	if err := s.InsertFriendship(ctx, store.NewFriendship("A", "B", time.Now())); !errors.Is(err, store.ErrDuplicate) {
		t.Errorf("Expected ErrDuplicate for the reversed pair, got %v", err)
	}
	_ = s.InsertFriendship(ctx, store.NewFriendship("C", "A", time.Now()))

	for _, pair := range [][2]string{{"A", "B"}, {"B", "A"}} {
		if _, err := s.FindFriendshipBetween(ctx, pair[0], pair[1]); err != nil {
			t.Errorf("FindFriendshipBetween(%s, %s) error: %v", pair[0], pair[1], err)
		}
	}
	if _, err := s.FindFriendshipBetween(ctx, "B", "C"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	edges, err := s.ListFriendships(ctx, "A")
	if err != nil || len(edges) != 2 {
		t.Fatalf("ListFriendships() = %+v, %v", edges, err)
	}
	if edges[0].Other("A") != "B" || edges[1].Other("A") != "C" {
		t.Errorf("Unexpected friends %+v", edges)
	}
}

func testFriendRequests(t *testing.T, s store.Store) {
	ctx := context.Background()
	now := time.Now()

	first := &store.FriendRequest{ID: "00000000-0000-0000-0000-000000000001", FromID: "A", FromName: "alice", ToID: "B", ToName: "bob", Status: store.RequestPending, CreatedAt: now}
	if err := s.InsertFriendRequest(ctx, first); err != nil {
		t.Fatalf("InsertFriendRequest() error: %v", err)
	}

	dup := &store.FriendRequest{ID: "00000000-0000-0000-0000-000000000002", FromID: "A", ToID: "B", Status: store.RequestPending, CreatedAt: now}
	if err := s.InsertFriendRequest(ctx, dup); !errors.Is(err, store.ErrDuplicate) {
		t.Errorf("Expected ErrDuplicate for a second pending request, got %v", err)
	}

	reverse := &store.FriendRequest{ID: "00000000-0000-0000-0000-000000000003", FromID: "C", FromName: "carol", ToID: "B", ToName: "bob", Status: store.RequestPending, CreatedAt: now.Add(time.Second)}
	if err := s.InsertFriendRequest(ctx, reverse); err != nil {
		t.Fatalf("InsertFriendRequest() error: %v", err)
	}

	pending, err := s.FindPendingRequest(ctx, "A", "B")
	if err != nil || pending.ID != first.ID {
		t.Fatalf("FindPendingRequest() = %+v, %v", pending, err)
	}
	if _, err := s.FindPendingRequest(ctx, "B", "A"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Pending lookup must be directional, got %v", err)
	}

	list, err := s.ListPendingRequestsFor(ctx, "B")
	if err != nil || len(list) != 2 || list[0].FromID != "C" {
		t.Errorf("Expected two pending requests newest first, got %+v, %v", list, err)
	}

	ok, err := s.UpdateRequestStatus(ctx, first.ID, store.RequestPending, store.RequestRejected, now)
	if err != nil || !ok {
		t.Fatalf("UpdateRequestStatus() = %v, %v", ok, err)
	}
	count, _ := s.CountPendingRequestsFor(ctx, "B")
	if count != 1 {
		t.Errorf("Expected 1 pending request, got %d", count)
	}

	got, _ := s.FindFriendRequest(ctx, first.ID)
	if got.Status != store.RequestRejected || got.RespondedAt == nil {
		t.Errorf("Expected rejected request with response time, got %+v", got)
	}

	again := &store.FriendRequest{ID: "00000000-0000-0000-0000-000000000004", FromID: "A", ToID: "B", Status: store.RequestPending, CreatedAt: now}
	if err := s.InsertFriendRequest(ctx, again); err != nil {
		t.Errorf("A new pending request after a terminal one must be allowed, got %v", err)
	}

	if _, err := s.FindFriendRequest(ctx, "00000000-0000-0000-0000-00000000ffff"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func testRequestCAS(t *testing.T, s store.Store) {
	ctx := context.Background()

	fr := &store.FriendRequest{ID: "00000000-0000-0000-0000-0000000000aa", FromID: "A", ToID: "B", Status: store.RequestPending, CreatedAt: time.Now()}
	if err := s.InsertFriendRequest(ctx, fr); err != nil {
		t.Fatalf("InsertFriendRequest() error: %v", err)
	}

	const workers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.UpdateRequestStatus(ctx, fr.ID, store.RequestPending, store.RequestAccepted, time.Now())
			if err != nil {
				t.Errorf("UpdateRequestStatus() error: %v", err)
				return
			}
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("Expected exactly one successful transition, got %d", wins)
	}

	ok, _ := s.UpdateRequestStatus(ctx, fr.ID, store.RequestPending, store.RequestRejected, time.Now())
	if ok {
		t.Error("A terminal request must not change again")
	}
}

func testRequestRevert(t *testing.T, s store.Store) {
	ctx := context.Background()

	fr := &store.FriendRequest{ID: "00000000-0000-0000-0000-0000000000bb", FromID: "A", ToID: "B", Status: store.RequestPending, CreatedAt: time.Now()}
	if err := s.InsertFriendRequest(ctx, fr); err != nil {
		t.Fatalf("InsertFriendRequest() error: %v", err)
	}

	if ok, err := s.UpdateRequestStatus(ctx, fr.ID, store.RequestPending, store.RequestAccepted, time.Now()); err != nil || !ok {
		t.Fatalf("accept: ok=%v err=%v", ok, err)
	}
	if ok, err := s.UpdateRequestStatus(ctx, fr.ID, store.RequestAccepted, store.RequestPending, time.Now()); err != nil || !ok {
		t.Fatalf("revert: ok=%v err=%v", ok, err)
	}

	got, err := s.FindFriendRequest(ctx, fr.ID)
	if err != nil {
		t.Fatalf("FindFriendRequest() error: %v", err)
	}
	if got.Status != store.RequestPending || got.RespondedAt != nil {
		t.Errorf("Expected a pending request without response time, got %+v", got)
	}

	n, err := s.CountPendingRequestsFor(ctx, "B")
	if err != nil || n != 1 {
		t.Errorf("CountPendingRequestsFor() = %d, %v; want 1", n, err)
	}
}

func testSeed(t *testing.T, s store.Store) {
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := store.SeedDefaultRooms(ctx, s); err != nil {
			t.Fatalf("SeedDefaultRooms() run %d error: %v", i, err)
		}
	}

	rooms, _ := s.ListRoomsVisibleTo(ctx, "nobody")
	if len(rooms) != len(store.DefaultRooms) {
		t.Errorf("Expected %d rooms, got %d", len(store.DefaultRooms), len(rooms))
	}
}
