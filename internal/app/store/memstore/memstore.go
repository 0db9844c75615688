/*
Package memstore is an in-process implementation of store.Store.

It keeps every record in maps behind one RWMutex and returns copies, so callers can
never mutate stored state. It backs the core's tests and STORE_DRIVER=memory.
*/
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"groupchat/internal/app/store"
)

// MemStore implements store.Store in memory.
type MemStore struct {
	mu sync.RWMutex

	users       map[string]store.User // keyed by user id
	rooms       map[string]store.Room
	messages    []store.Message
	friendships map[[2]string]store.Friendship
	requests    map[string]store.FriendRequest
	requestSeq  []string // insertion order of request ids
}

var _ store.Store = (*MemStore)(nil)

// New returns an empty MemStore.
func New() *MemStore {
	return &MemStore{
		users:       make(map[string]store.User),
		rooms:       make(map[string]store.Room),
		friendships: make(map[[2]string]store.Friendship),
		requests:    make(map[string]store.FriendRequest),
	}
}

// Close is a no-op.
func (s *MemStore) Close() error { return nil }

// --- Accounts ---

func (s *MemStore) CreateUser(ctx context.Context, u *store.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if existing.UserID == u.UserID || existing.Username == u.Username || strings.EqualFold(existing.Email, u.Email) {
			return store.ErrDuplicate
		}
	}
	s.users[u.UserID] = *u
	return nil
}

func (s *MemStore) FindUserByID(ctx context.Context, userID string) (*store.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[userID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &u, nil
}

func (s *MemStore) FindUserByName(ctx context.Context, username string) (*store.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.Username == username {
			found := u
			return &found, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *MemStore) IsAdmin(ctx context.Context, userID string) (bool, error) {
	u, err := s.FindUserByID(ctx, userID)
	if err != nil {
		return false, err
	}
	return u.IsAdmin, nil
}

// --- Rooms ---

func copyRoom(r store.Room) store.Room {
	if r.Members != nil {
		r.Members = append([]string(nil), r.Members...)
	}
	return r
}

func (s *MemStore) InsertRoom(ctx context.Context, room *store.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rooms[room.Name]; ok {
		return store.ErrDuplicate
	}
	s.rooms[room.Name] = copyRoom(*room)
	return nil
}

func (s *MemStore) FindRoom(ctx context.Context, name string) (*store.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rooms[name]
	if !ok {
		return nil, store.ErrNotFound
	}
	r = copyRoom(r)
	return &r, nil
}

func (s *MemStore) ListRoomsVisibleTo(ctx context.Context, userID string) ([]store.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var public, member []store.Room
	for _, r := range s.rooms {
		switch {
		case r.Kind == store.RoomPublic:
			public = append(public, copyRoom(r))
		case r.HasMember(userID):
			member = append(member, copyRoom(r))
		}
	}

	sort.Slice(public, func(i, j int) bool { return public[i].Name < public[j].Name })
	sort.Slice(member, func(i, j int) bool { return member[i].Name < member[j].Name })

	return append(public, member...), nil
}

func (s *MemStore) DeleteRoom(ctx context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[name]
	if !ok || r.Kind != store.RoomPublic {
		return false, nil
	}
	delete(s.rooms, name)
	return true, nil
}

// --- Messages ---

func (s *MemStore) InsertMessage(ctx context.Context, msg *store.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = append(s.messages, *msg)
	return nil
}

func (s *MemStore) ListMessages(ctx context.Context, room string, limit int) ([]store.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []store.Message
	for _, m := range s.messages {
		if m.Room == room {
			out = append(out, m)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (s *MemStore) DeleteMessagesByRoom(ctx context.Context, room string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.filterMessages(func(m store.Message) bool { return m.Room != room }), nil
}

func (s *MemStore) PurgeOrphanMessages(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.filterMessages(func(m store.Message) bool {
		_, ok := s.rooms[m.Room]
		return ok
	}), nil
}

// filterMessages keeps the messages matching keep and returns how many were removed.
// Callers hold the write lock.
func (s *MemStore) filterMessages(keep func(store.Message) bool) int64 {
	kept := s.messages[:0]
	var removed int64
	for _, m := range s.messages {
		if keep(m) {
			kept = append(kept, m)
		} else {
			removed++
		}
	}
	s.messages = kept
	return removed
}

// --- Friends ---

func pairKey(a, b string) [2]string {
	if b < a {
		a, b = b, a
	}
	return [2]string{a, b}
}

func (s *MemStore) InsertFriendship(ctx context.Context, f store.Friendship) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := pairKey(f.UserA, f.UserB)
	if _, ok := s.friendships[key]; ok {
		return store.ErrDuplicate
	}
	s.friendships[key] = store.NewFriendship(f.UserA, f.UserB, f.CreatedAt)
	return nil
}

func (s *MemStore) FindFriendshipBetween(ctx context.Context, a, b string) (*store.Friendship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.friendships[pairKey(a, b)]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &f, nil
}

func (s *MemStore) ListFriendships(ctx context.Context, userID string) ([]store.Friendship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []store.Friendship
	for _, f := range s.friendships {
		if f.UserA == userID || f.UserB == userID {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Other(userID) < out[j].Other(userID) })
	return out, nil
}

func (s *MemStore) InsertFriendRequest(ctx context.Context, fr *store.FriendRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.requests[fr.ID]; ok {
		return store.ErrDuplicate
	}
	for _, existing := range s.requests {
		if existing.Status == store.RequestPending && existing.FromID == fr.FromID && existing.ToID == fr.ToID {
			return store.ErrDuplicate
		}
	}
	s.requests[fr.ID] = *fr
	s.requestSeq = append(s.requestSeq, fr.ID)
	return nil
}

func (s *MemStore) FindFriendRequest(ctx context.Context, id string) (*store.FriendRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fr, ok := s.requests[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &fr, nil
}

func (s *MemStore) FindPendingRequest(ctx context.Context, fromID, toID string) (*store.FriendRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, fr := range s.requests {
		if fr.Status == store.RequestPending && fr.FromID == fromID && fr.ToID == toID {
			found := fr
			return &found, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *MemStore) UpdateRequestStatus(ctx context.Context, id string, from, to store.RequestStatus, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fr, ok := s.requests[id]
	if !ok || fr.Status != from {
		return false, nil
	}
	fr.Status = to
	fr.RespondedAt = &at
	if to == store.RequestPending {
		fr.RespondedAt = nil
	}
	s.requests[id] = fr
	return true, nil
}

// ListPendingRequestsFor returns pending requests addressed to userID, newest first.
func (s *MemStore) ListPendingRequestsFor(ctx context.Context, userID string) ([]store.FriendRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []store.FriendRequest
	for i := len(s.requestSeq) - 1; i >= 0; i-- {
		fr := s.requests[s.requestSeq[i]]
		if fr.ToID == userID && fr.Status == store.RequestPending {
			out = append(out, fr)
		}
	}
	return out, nil
}

func (s *MemStore) CountPendingRequestsFor(ctx context.Context, userID string) (int64, error) {
	pending, err := s.ListPendingRequestsFor(ctx, userID)
	return int64(len(pending)), err
}
