package chat

import (
	"context"
	"testing"
	"time"

	"groupchat/internal/app/store"
	"groupchat/internal/app/store/memstore"
	"groupchat/internal/pkg/errs"
)

func TestDispatchRejectsMalformedFrames(t *testing.T) {
	h := newTestHub(t)
	c := newFakeConn("c1")
	h.Attach(c)

	frames := map[string]int{
		`not json`:                          errs.ErrInvalidJSONFormat,
		`{"payload":{}}`:                    errs.ErrInvalidParams,
		`{"type":42}`:                       errs.ErrInvalidParams,
		`{"type":"dance","payload":{}}`:     errs.ErrUnknownEvent,
		`{"type":"joinRoom"}`:               errs.ErrInvalidParams,
		`{"type":"joinRoom","payload":"x"}`: errs.ErrInvalidJSONFormat,
		`{"type":"register","payload":{}}`:  errs.ErrInvalidIdentity,
	}

	for raw, code := range frames {
		c.reset()
		h.Dispatch(context.Background(), c.ID(), nil, []byte(raw))

		got := c.last(t, EventErrorMessage).Payload.(ErrorPayload)
		if got.Code != code {
			t.Errorf("Frame %s: code = %d, want %d", raw, got.Code, code)
		}
	}
}

func TestDispatchRequiresRegistration(t *testing.T) {
	h := newTestHub(t)
	c := newFakeConn("c1")
	h.Attach(c)

	h.send(t, c, EventSendMessage, SendMessagePayload{Room: "Genel", Text: "merhaba"})

	got := c.last(t, EventErrorMessage).Payload.(ErrorPayload)
	if got.Code != errs.ErrNotRegistered || got.Event != EventSendMessage {
		t.Errorf("Expected ErrNotRegistered, got %+v", got)
	}

	// Anonymous connections may still join public rooms.
	h.send(t, c, EventJoinRoom, RoomPayload{Room: "Genel", DisplayName: "guest"})
	if !h.Rooms().IsSubscribed("Genel", c.ID()) {
		t.Error("Expected an anonymous join to succeed")
	}
}

func TestDispatchSendMessageRequiresJoin(t *testing.T) {
	h := newTestHub(t)
	alice := h.connect(t, "c1", "AAAA0001", "alice", false)

	h.send(t, alice, EventSendMessage, SendMessagePayload{Room: "Genel", Text: "merhaba"})
	if got := alice.last(t, EventErrorMessage).Payload.(ErrorPayload); got.Code != errs.ErrRoomNotJoined {
		t.Errorf("Expected ErrRoomNotJoined, got %+v", got)
	}

	h.send(t, alice, EventJoinRoom, RoomPayload{Room: "Genel"})
	h.send(t, alice, EventSendMessage, SendMessagePayload{Room: "Genel", Text: "  merhaba  "})

	got := alice.last(t, EventMessageReceived).Payload.(MessagePayload)
	if got.Text != "merhaba" || got.UserID != "AAAA0001" || got.DisplayName != "alice" {
		t.Errorf("Unexpected message %+v", got)
	}
}

func TestDispatchRejectsOversizedMessage(t *testing.T) {
	h := newTestHub(t)
	alice := h.connect(t, "c1", "AAAA0001", "alice", false)
	h.send(t, alice, EventJoinRoom, RoomPayload{Room: "Genel"})

	long := make([]rune, MaxMessageLength+1)
	for i := range long {
		long[i] = 'ğ'
	}
	h.send(t, alice, EventSendMessage, SendMessagePayload{Room: "Genel", Text: string(long)})

	got := alice.last(t, EventErrorMessage).Payload.(ErrorPayload)
	if got.Code != errs.ErrMessageTooLong || got.Message != "Message must be between 1 and 500 characters." {
		t.Errorf("Unexpected error %+v", got)
	}
}

func TestDispatchCallerIDMustMatch(t *testing.T) {
	h := newTestHub(t)
	alice := h.connect(t, "c1", "AAAA0001", "alice", false)
	h.connect(t, "c2", "BBBB0002", "bob", false)

	h.send(t, alice, EventSendFriendRequest, SendFriendRequestPayload{FromID: "CCCC0003", ToID: "BBBB0002"})
	if got := alice.last(t, EventErrorMessage).Payload.(ErrorPayload); got.Code != errs.ErrIdentityMismatch {
		t.Errorf("Expected ErrIdentityMismatch, got %+v", got)
	}

	h.send(t, alice, EventDeleteRoom, DeleteRoomPayload{RoomName: "Kitaplar", RequesterID: "BBBB0002"})
	if got := alice.last(t, EventRoomDeleteFailed).Payload.(ErrorPayload); got.Code != errs.ErrIdentityMismatch {
		t.Errorf("Expected ErrIdentityMismatch, got %+v", got)
	}
}

// panicStore panics on friend lookups.
type panicStore struct {
	*memstore.MemStore
}

func (panicStore) ListFriendships(context.Context, string) ([]store.Friendship, error) {
	panic("boom")
}

func TestDispatchContainsPanics(t *testing.T) {
	ms := memstore.New()
	h := newTestHubWith(t, ms, panicStore{ms})

	c := newFakeConn("c1")
	h.Attach(c)

	// Registration triggers presence fan-out, which panics inside the store.
	h.send(t, c, EventRegister, RegisterPayload{UserID: "AAAA0001", DisplayName: "alice"})

	got := c.last(t, EventErrorMessage).Payload.(ErrorPayload)
	if got.Kind != errs.KindInternal || got.Message == "boom" {
		t.Errorf("Expected a detail-free internal error, got %+v", got)
	}

	// The hub keeps serving the connection.
	h.send(t, c, EventJoinRoom, RoomPayload{Room: "Genel"})
	if !h.Rooms().IsSubscribed("Genel", c.ID()) {
		t.Error("Expected the connection to keep working after a panic")
	}
}

func TestJanitorPurgesOrphans(t *testing.T) {
	ms := memstore.New()
	ctx := context.Background()
	_ = ms.InsertMessage(ctx, &store.Message{ID: "m1", Room: "Gone", Text: "x", CreatedAt: time.Now()})

	h := NewHub(HubConfig{Store: ms, JanitorInterval: 10 * time.Millisecond})
	defer h.Shutdown()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if msgs, _ := ms.ListMessages(ctx, "Gone", 10); len(msgs) == 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Error("Janitor did not purge the orphan message")
}

func TestShutdownClosesConnections(t *testing.T) {
	h := NewHub(HubConfig{Store: memstore.New(), JanitorInterval: -1})

	c := newFakeConn("c1")
	h.Attach(c)

	h.Shutdown()
	h.Shutdown()

	if c.kickCount != 1 {
		t.Errorf("Expected one kick on shutdown, got %d", c.kickCount)
	}
}
