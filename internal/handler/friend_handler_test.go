package handler

import (
	"context"
	"net/http"
	"testing"
	"time"

	"groupchat/internal/app/chat"
	"groupchat/internal/app/store"
)

func TestFriendEndpoints(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.addUser(t, "alice", "alice@example.com", false)
	bob := ts.addUser(t, "bob", "bob@example.com", false)
	carol := ts.addUser(t, "carol", "carol@example.com", false)

	ctx := context.Background()
	if err := ts.store.InsertFriendship(ctx, store.NewFriendship(alice.UserID, bob.UserID, time.Now())); err != nil {
		t.Fatalf("insert friendship: %v", err)
	}
	req := store.FriendRequest{
		ID:        "req-1",
		FromID:    carol.UserID,
		FromName:  "carol",
		ToID:      alice.UserID,
		ToName:    "alice",
		Status:    store.RequestPending,
		CreatedAt: time.Now(),
	}
	if err := ts.store.InsertFriendRequest(ctx, &req); err != nil {
		t.Fatalf("insert request: %v", err)
	}

	token := ts.token(t, alice)

	res, out := ts.do(t, http.MethodGet, "/api/friends", token, nil)
	expectOK(t, res, out)
	var friends struct {
		Friends []chat.Friend `json:"friends"`
	}
	out.decode(t, &friends)
	if len(friends.Friends) != 1 || friends.Friends[0].UserID != bob.UserID || friends.Friends[0].DisplayName != "bob" {
		t.Fatalf("friends = %+v", friends.Friends)
	}
	if friends.Friends[0].Online {
		t.Fatal("bob has no connection and must be offline")
	}

	res, out = ts.do(t, http.MethodGet, "/api/friend-requests", token, nil)
	expectOK(t, res, out)
	var pending struct {
		Requests []store.FriendRequest `json:"requests"`
	}
	out.decode(t, &pending)
	if len(pending.Requests) != 1 || pending.Requests[0].ID != "req-1" {
		t.Fatalf("requests = %+v", pending.Requests)
	}

	res, out = ts.do(t, http.MethodGet, "/api/friend-requests/count", token, nil)
	expectOK(t, res, out)
	var count struct {
		Count int64 `json:"count"`
	}
	out.decode(t, &count)
	if count.Count != 1 {
		t.Fatalf("count = %d, want 1", count.Count)
	}

	res, out = ts.do(t, http.MethodGet, "/api/friend-requests/count", ts.token(t, carol), nil)
	expectOK(t, res, out)
	out.decode(t, &count)
	if count.Count != 0 {
		t.Fatalf("sender count = %d, want 0", count.Count)
	}
}
