package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	"groupchat/internal/app/store"
	"groupchat/internal/app/store/memstore"
	"groupchat/internal/pkg/errs"
)

func TestDeleteProtectedRoomsAlwaysConflict(t *testing.T) {
	h := newTestHub(t)
	h.connect(t, "c1", "AAAA0001", "alice", true)
	h.connect(t, "c2", "BBBB0002", "bob", false)

	protected := append([]string{}, store.DefaultRooms...)
	protected = append(protected, PrivateRoomName("AAAA0001", "BBBB0002"), GroupRoomName("g", "AAAA0001", "BBBB0002", "CCCC0003"))

	for _, name := range protected {
		for _, requester := range []string{"AAAA0001", "BBBB0002"} {
			_, err := h.Admin().DeleteRoom(context.Background(), name, requester)
			if errs.KindOf(err) != errs.KindConflict {
				t.Errorf("DeleteRoom(%q) by %s = %v, want conflict", name, requester, err)
			}
		}
	}

	if _, err := h.store.FindRoom(context.Background(), "Genel"); err != nil {
		t.Errorf("Default room was removed: %v", err)
	}
}

func TestDeleteRoomRequiresAdmin(t *testing.T) {
	h := newTestHub(t)
	h.addRoom(t, store.Room{Name: "Kitaplar", Kind: store.RoomPublic})

	bob := h.connect(t, "c2", "BBBB0002", "bob", false)
	h.send(t, bob, EventDeleteRoom, DeleteRoomPayload{RoomName: "Kitaplar", RequesterID: "BBBB0002"})

	got := bob.last(t, EventRoomDeleteFailed).Payload.(ErrorPayload)
	if got.Kind != errs.KindAuthorization {
		t.Errorf("Expected authorization error, got %+v", got)
	}

	if _, err := h.store.FindRoom(context.Background(), "Kitaplar"); err != nil {
		t.Errorf("Room should still exist: %v", err)
	}
}

func TestDeleteRoomUnconfirmedAdminClaim(t *testing.T) {
	h := newTestHub(t)
	h.addRoom(t, store.Room{Name: "Kitaplar", Kind: store.RoomPublic})

	// bob claims admin but the Account Store says otherwise.
	bob := h.connect(t, "c2", "BBBB0002", "bob", true)
	if id, _ := h.Registry().Lookup(bob.ID()); id.IsAdmin {
		t.Fatal("Unconfirmed admin claim was accepted")
	}

	_, err := h.Admin().DeleteRoom(context.Background(), "Kitaplar", "BBBB0002")
	if !errs.HasCode(err, errs.ErrAdminRequired) {
		t.Errorf("Expected ErrAdminRequired, got %v", err)
	}
}

func TestAdminDeletesPublicRoom(t *testing.T) {
	h := newTestHub(t)
	ctx := context.Background()
	h.addRoom(t, store.Room{Name: "Kitaplar", Kind: store.RoomPublic})

	alice := h.connect(t, "c1", "AAAA0001", "alice", true)
	bob := h.connect(t, "c2", "BBBB0002", "bob", false)
	carol := h.connect(t, "c3", "CCCC0003", "carol", false)

	h.send(t, bob, EventJoinRoom, RoomPayload{Room: "Kitaplar"})
	h.send(t, carol, EventJoinRoom, RoomPayload{Room: "Kitaplar"})
	h.send(t, bob, EventSendMessage, SendMessagePayload{Room: "Kitaplar", Text: "ilk mesaj"})

	h.send(t, alice, EventDeleteRoom, DeleteRoomPayload{RoomName: "Kitaplar", RequesterID: "AAAA0001"})
	if alice.count(EventRoomDeleteFailed) != 0 {
		t.Fatalf("Delete failed: %+v", alice.last(t, EventRoomDeleteFailed).Payload)
	}

	for _, c := range []*fakeConn{bob, carol} {
		got := c.last(t, EventRoomDeleted).Payload.(RoomDeletedPayload)
		if got.Room != "Kitaplar" || got.ArchiveKey != "" {
			t.Errorf("Unexpected roomDeleted on %s: %+v", c.ID(), got)
		}
	}
	forAdmin := alice.last(t, EventRoomDeleted).Payload.(RoomDeletedPayload)
	if forAdmin.ArchiveKey != "archives/Kitaplar.json" {
		t.Errorf("Expected the admin to receive the archive key, got %+v", forAdmin)
	}

	transcript, ok := h.archiver.transcript("Kitaplar")
	if !ok || len(transcript) != 1 || transcript[0].Text != "ilk mesaj" {
		t.Errorf("Unexpected transcript %+v", transcript)
	}

	if _, err := h.store.FindRoom(ctx, "Kitaplar"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Room record should be gone, got %v", err)
	}
	if msgs, _ := h.store.ListMessages(ctx, "Kitaplar", 10); len(msgs) != 0 {
		t.Errorf("Messages should be gone, got %d", len(msgs))
	}

	// The room can no longer be published to or joined.
	bob.reset()
	h.send(t, bob, EventSendMessage, SendMessagePayload{Room: "Kitaplar", Text: "hala burada misiniz"})
	if got := bob.last(t, EventErrorMessage).Payload.(ErrorPayload); got.Code != errs.ErrRoomNotJoined {
		t.Errorf("Expected ErrRoomNotJoined, got %+v", got)
	}
	if n := carol.count(EventMessageReceived); n != 1 {
		t.Errorf("Carol should only have the message sent before deletion, got %d", n)
	}

	h.send(t, bob, EventJoinRoom, RoomPayload{Room: "Kitaplar"})
	if got := bob.last(t, EventErrorMessage).Payload.(ErrorPayload); got.Kind != errs.KindNotFound {
		t.Errorf("Expected not_found on join, got %+v", got)
	}
}

func TestAdminFallbackToAccountStore(t *testing.T) {
	h := newTestHub(t)
	h.addRoom(t, store.Room{Name: "Kitaplar", Kind: store.RoomPublic})

	// alice is an admin in the Account Store and is not connected.
	d, err := h.Admin().DeleteRoom(context.Background(), "Kitaplar", "AAAA0001")
	if err != nil {
		t.Fatalf("DeleteRoom() error: %v", err)
	}
	if d.Room != "Kitaplar" || len(d.Subscribers) != 0 {
		t.Errorf("Unexpected deletion %+v", d)
	}
}

func TestDeleteUnknownRoom(t *testing.T) {
	h := newTestHub(t)

	_, err := h.Admin().DeleteRoom(context.Background(), "Nowhere", "AAAA0001")
	if !errs.HasCode(err, errs.ErrRoomNotFound) {
		t.Errorf("Expected ErrRoomNotFound, got %v", err)
	}
}

func TestDeleteRoomBestEffortSteps(t *testing.T) {
	ms := memstore.New()
	h := newTestHubWith(t, ms, failingMessages{ms})
	ctx := context.Background()
	h.archiver.fail = true

	h.addRoom(t, store.Room{Name: "Kitaplar", Kind: store.RoomPublic})
	_ = ms.InsertMessage(ctx, &store.Message{ID: "m1", Room: "Kitaplar", Text: "x", CreatedAt: time.Now()})

	d, err := h.Admin().DeleteRoom(ctx, "Kitaplar", "AAAA0001")
	if err != nil {
		t.Fatalf("DeleteRoom() should succeed despite archive and cascade failures: %v", err)
	}
	if d.ArchiveKey != "" {
		t.Errorf("Expected no archive key, got %q", d.ArchiveKey)
	}

	// The janitor repairs the failed cascade.
	if n := h.PurgeOrphans(ctx); n != 1 {
		t.Errorf("PurgeOrphans() = %d, want 1", n)
	}
}
