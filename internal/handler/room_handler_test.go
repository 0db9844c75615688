package handler

import (
	"context"
	"net/http"
	"net/url"
	"testing"
	"time"

	"groupchat/internal/app/chat"
	"groupchat/internal/app/store"
	"groupchat/internal/pkg/errs"
)

func TestCreateAndListRooms(t *testing.T) {
	ts := newTestServer(t)
	bob := ts.addUser(t, "bob", "bob@example.com", false)
	token := ts.token(t, bob)

	res, out := ts.do(t, http.MethodPost, "/api/rooms", token, map[string]string{"name": "Kitap"})
	expectOK(t, res, out)

	var created struct {
		Room store.Room `json:"room"`
	}
	out.decode(t, &created)
	if created.Room.Name != "Kitap" || created.Room.Kind != store.RoomPublic || created.Room.CreatedBy != bob.UserID {
		t.Fatalf("created room = %+v", created.Room)
	}

	res, out = ts.do(t, http.MethodPost, "/api/rooms", token, map[string]string{"name": "Kitap"})
	expectError(t, res, out, http.StatusConflict, errs.ErrRoomExists)

	res, out = ts.do(t, http.MethodGet, "/api/rooms", token, nil)
	expectOK(t, res, out)

	var listed struct {
		Rooms []store.Room `json:"rooms"`
	}
	out.decode(t, &listed)
	if len(listed.Rooms) != 1 || listed.Rooms[0].Name != "Kitap" {
		t.Fatalf("rooms = %+v", listed.Rooms)
	}
}

func TestCreateRoomRejectsReservedNames(t *testing.T) {
	ts := newTestServer(t)
	token := ts.token(t, ts.addUser(t, "bob", "bob@example.com", false))

	for _, name := range []string{"", chat.PrivatePrefix + "AAAA:BBBB", "this room name is far too long to be accepted"} {
		res, out := ts.do(t, http.MethodPost, "/api/rooms", token, map[string]string{"name": name})
		expectError(t, res, out, http.StatusBadRequest, errs.ErrInvalidRoomName)
	}
}

func TestListRoomsHidesOtherPrivateRooms(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.addUser(t, "alice", "alice@example.com", false)
	bob := ts.addUser(t, "bob", "bob@example.com", false)
	carol := ts.addUser(t, "carol", "carol@example.com", false)

	ctx := context.Background()
	for _, r := range []store.Room{
		{Name: "Genel", Kind: store.RoomPublic, CreatedBy: "system", CreatedAt: time.Now()},
		{
			Name:      chat.PrivateRoomName(alice.UserID, bob.UserID),
			Kind:      store.RoomPrivate,
			Members:   []string{alice.UserID, bob.UserID},
			CreatedBy: alice.UserID,
			CreatedAt: time.Now(),
		},
	} {
		r := r
		if err := ts.store.InsertRoom(ctx, &r); err != nil {
			t.Fatalf("insert room: %v", err)
		}
	}

	count := func(u store.User) int {
		res, out := ts.do(t, http.MethodGet, "/api/rooms", ts.token(t, u), nil)
		expectOK(t, res, out)
		var listed struct {
			Rooms []store.Room `json:"rooms"`
		}
		out.decode(t, &listed)
		return len(listed.Rooms)
	}

	if n := count(alice); n != 2 {
		t.Fatalf("alice sees %d rooms, want 2", n)
	}
	if n := count(carol); n != 1 {
		t.Fatalf("carol sees %d rooms, want 1", n)
	}
}

func TestListMessages(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.addUser(t, "alice", "alice@example.com", false)
	bob := ts.addUser(t, "bob", "bob@example.com", false)
	carol := ts.addUser(t, "carol", "carol@example.com", false)

	ctx := context.Background()
	roomName := chat.PrivateRoomName(alice.UserID, bob.UserID)
	room := store.Room{
		Name:      roomName,
		Kind:      store.RoomPrivate,
		Members:   []string{alice.UserID, bob.UserID},
		CreatedBy: alice.UserID,
		CreatedAt: time.Now(),
	}
	if err := ts.store.InsertRoom(ctx, &room); err != nil {
		t.Fatalf("insert room: %v", err)
	}
	for _, text := range []string{"hi", "hello"} {
		msg := store.Message{
			ID:          text,
			Room:        roomName,
			UserID:      alice.UserID,
			DisplayName: "alice",
			Text:        text,
			Private:     true,
			CreatedAt:   time.Now(),
		}
		if err := ts.store.InsertMessage(ctx, &msg); err != nil {
			t.Fatalf("insert message: %v", err)
		}
	}

	path := "/api/messages?room=" + url.QueryEscape(roomName)

	res, out := ts.do(t, http.MethodGet, path, ts.token(t, bob), nil)
	expectOK(t, res, out)
	var history struct {
		Messages []store.Message `json:"messages"`
	}
	out.decode(t, &history)
	if len(history.Messages) != 2 || history.Messages[0].Text != "hi" || history.Messages[1].Text != "hello" {
		t.Fatalf("history = %+v", history.Messages)
	}

	res, out = ts.do(t, http.MethodGet, path, ts.token(t, carol), nil)
	expectError(t, res, out, http.StatusForbidden, errs.ErrRoomMembersOnly)

	res, out = ts.do(t, http.MethodGet, "/api/messages?room=Nowhere", ts.token(t, bob), nil)
	expectError(t, res, out, http.StatusNotFound, errs.ErrRoomNotFound)

	res, out = ts.do(t, http.MethodGet, "/api/messages", ts.token(t, bob), nil)
	expectError(t, res, out, http.StatusBadRequest, errs.ErrInvalidParams)
}
