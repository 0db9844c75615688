package chat

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"groupchat/internal/app/store"
	"groupchat/internal/pkg/errs"
	"groupchat/internal/pkg/logx"
	"groupchat/internal/pkg/randx"
)

// room is the live state of one room: who is subscribed right now.
type room struct {
	name string
	kind store.RoomKind

	// mu guards subs and dead.
	mu   sync.RWMutex
	subs map[string]struct{}

	// dead is set once the room left the engine's map; a dead room takes no new subscribers.
	dead bool

	// publishMu serializes publishes so every subscriber sees the same order.
	publishMu sync.Mutex
}

// Rooms is the broadcast engine: per-room subscriber sets and message fan-out.
type Rooms struct {
	// mu guards the rooms and drops maps. It is always taken before a room's own mutex.
	mu    sync.RWMutex
	rooms map[string]*room

	// drops counts Drop calls per room name. Subscribe reads it before checking the
	// store and refuses to revive a room whose count moved in between.
	drops map[string]uint64

	store    store.Store
	registry *Registry

	now    func() time.Time
	logger zerolog.Logger
}

// NewRooms constructs a broadcast engine delivering through registry.
func NewRooms(st store.Store, registry *Registry) *Rooms {
	return &Rooms{
		rooms:    make(map[string]*room),
		drops:    make(map[string]uint64),
		store:    st,
		registry: registry,
		now:      time.Now,
		logger:   logx.Component("Rooms"),
	}
}

// Subscribe adds connID to a room's subscribers. The room must exist in the store;
// private and group rooms only admit their members. Joining a public room tells the
// existing subscribers. Subscribing twice is a no-op.
func (e *Rooms) Subscribe(ctx context.Context, roomName, connID, displayName string) error {
	gen := e.dropCount(roomName)

	rec, err := e.findRoom(ctx, roomName)
	if err != nil {
		return err
	}

	id, registered := e.registry.Lookup(connID)
	if rec.Kind != store.RoomPublic && (!registered || !rec.HasMember(id.UserID)) {
		return errs.NewError(errs.ErrRoomMembersOnly)
	}
	if registered {
		displayName = id.DisplayName
	}

	var existing []string
	for {
		r, ok := e.getOrCreate(rec.Name, rec.Kind, gen)
		if !ok {
			return errs.NewError(errs.ErrRoomNotFound)
		}

		r.mu.Lock()
		if r.dead {
			r.mu.Unlock()
			continue
		}
		if _, ok := r.subs[connID]; ok {
			r.mu.Unlock()
			return nil
		}
		existing = make([]string, 0, len(r.subs))
		for sub := range r.subs {
			existing = append(existing, sub)
		}
		r.subs[connID] = struct{}{}
		r.mu.Unlock()
		break
	}

	e.logger.Debug().Str("room", roomName).Str("conn_id", connID).Msg("Subscribed.")

	if rec.Kind == store.RoomPublic && len(existing) > 0 {
		if displayName == "" {
			displayName = "Someone"
		}
		notice := e.systemMessage(rec.Name, fmt.Sprintf("%s joined the room.", displayName))
		env := NewEnvelope(EventMessageReceived, messagePayload(notice, true))
		for _, sub := range existing {
			e.registry.Send(sub, env)
		}
	}

	return nil
}

// Unsubscribe removes connID from a room. Unsubscribing twice is a no-op.
func (e *Rooms) Unsubscribe(roomName, connID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.removeLocked(roomName, connID)
}

// UnsubscribeAll removes connID from every room. Called on disconnect.
func (e *Rooms) UnsubscribeAll(connID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for name := range e.rooms {
		e.removeLocked(name, connID)
	}
}

// removeLocked must be called with e.mu held.
func (e *Rooms) removeLocked(roomName, connID string) {
	r, ok := e.rooms[roomName]
	if !ok {
		return
	}

	r.mu.Lock()
	delete(r.subs, connID)
	if len(r.subs) == 0 {
		r.dead = true
		delete(e.rooms, roomName)
	}
	r.mu.Unlock()
}

// IsSubscribed reports whether connID currently receives messages of roomName.
func (e *Rooms) IsSubscribed(roomName, connID string) bool {
	r := e.get(roomName)
	if r == nil {
		return false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.subs[connID]
	return ok && !r.dead
}

// Subscribers returns a sorted snapshot of a room's subscribers.
func (e *Rooms) Subscribers(roomName string) []string {
	r := e.get(roomName)
	if r == nil {
		return nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	return sortedKeys(r.subs)
}

// Publish delivers msg to a snapshot of the room's subscribers, then appends it to
// the store with flags from the room's kind. A store failure is logged only.
func (e *Rooms) Publish(ctx context.Context, roomName string, msg store.Message) (store.Message, error) {
	r := e.get(roomName)
	if r == nil {
		return msg, errs.NewError(errs.ErrRoomNotJoined)
	}

	r.publishMu.Lock()

	r.mu.RLock()
	if r.dead {
		r.mu.RUnlock()
		r.publishMu.Unlock()
		return msg, errs.NewError(errs.ErrRoomNotJoined)
	}
	snapshot := sortedKeys(r.subs)
	r.mu.RUnlock()

	msg.Room = r.name
	msg.Private = r.kind == store.RoomPrivate
	msg.Group = r.kind == store.RoomGroup

	env := NewEnvelope(EventMessageReceived, messagePayload(msg, false))
	for _, connID := range snapshot {
		e.registry.Send(connID, env)
	}

	r.publishMu.Unlock()

	e.persist(ctx, msg)
	return msg, nil
}

// Drop removes a room from the engine and returns the subscribers it had. A
// Subscribe whose store check ran before the Drop fails with ErrRoomNotFound.
func (e *Rooms) Drop(roomName string) []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.drops[roomName]++

	r, ok := e.rooms[roomName]
	if !ok {
		return nil
	}
	delete(e.rooms, roomName)

	r.mu.Lock()
	defer r.mu.Unlock()

	r.dead = true
	subs := sortedKeys(r.subs)
	r.subs = make(map[string]struct{})
	return subs
}

// NewMessage builds a message stamped with the current time.
func (e *Rooms) NewMessage(roomName, userID, displayName, text string) store.Message {
	now := e.now()
	return store.Message{
		ID:          randx.MessageID(),
		Room:        roomName,
		UserID:      userID,
		DisplayName: displayName,
		Text:        text,
		Timestamp:   now.Format(MessageTimeLayout),
		CreatedAt:   now,
	}
}

func (e *Rooms) systemMessage(roomName, text string) store.Message {
	return e.NewMessage(roomName, SystemUserID, "System", text)
}

func (e *Rooms) persist(ctx context.Context, msg store.Message) {
	ctx, cancel := storeContext(ctx)
	defer cancel()

	if err := e.store.InsertMessage(ctx, &msg); err != nil {
		e.logger.Error().Err(err).
			Str("room", msg.Room).
			Str("message_id", msg.ID).
			Msg("Failed to persist message; live delivery already done.")
	}
}

func (e *Rooms) findRoom(ctx context.Context, name string) (*store.Room, error) {
	ctx, cancel := storeContext(ctx)
	defer cancel()

	rec, err := e.store.FindRoom(ctx, name)
	if errors.Is(err, store.ErrNotFound) {
		return nil, errs.NewError(errs.ErrRoomNotFound)
	}
	if err != nil {
		return nil, errs.NewError(errs.ErrStoreUnavailable, err)
	}
	return rec, nil
}

func (e *Rooms) get(name string) *room {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.rooms[name]
}

func (e *Rooms) dropCount(name string) uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.drops[name]
}

// getOrCreate returns the live room, creating it unless name was dropped since gen
// was read.
func (e *Rooms) getOrCreate(name string, kind store.RoomKind, gen uint64) (*room, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.drops[name] != gen {
		return nil, false
	}

	r, ok := e.rooms[name]
	if !ok {
		r = &room{
			name: name,
			kind: kind,
			subs: make(map[string]struct{}),
		}
		e.rooms[name] = r
	}
	return r, true
}

func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
