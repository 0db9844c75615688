package chat

import (
	"errors"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"groupchat/internal/app/user"
	"groupchat/internal/pkg/errs"
	"groupchat/internal/pkg/logx"
)

// CloseSessionReplaced is the WebSocket close code sent to a connection whose user
// registered again from another connection.
const CloseSessionReplaced = 4001

// ErrUnknownConnection is returned when registering a connection that was never attached.
var ErrUnknownConnection = errors.New("unknown connection")

// Conn is one live transport session as seen by the core.
type Conn interface {
	// ID returns the transport-assigned connection id.
	ID() string

	// Send queues env without blocking. It reports false when the frame was dropped.
	Send(env Envelope) bool

	// Kick closes the connection with the given close code.
	Kick(code int, reason string)
}

// PresenceFunc is called after a user goes online or offline. Calls are serialized
// and carry the user's state at call time, so a late transition never overrides a
// newer one. It must not register or unregister connections.
type PresenceFunc func(id user.Identity, online bool)

type entry struct {
	conn     Conn
	identity user.Identity
}

func (e *entry) registered() bool {
	return !e.identity.IsZero()
}

// Registry maps connections to identities and users to their active connection.
type Registry struct {
	// mu guards conns and byUser together.
	mu sync.RWMutex

	// conns holds every attached connection, registered or not.
	conns map[string]*entry

	// byUser points each online user id at its active connection id.
	byUser map[string]string

	onPresence PresenceFunc

	// presenceMu serializes presence delivery. announced holds the users whose
	// last delivered state was online.
	presenceMu sync.Mutex
	announced  map[string]bool

	logger zerolog.Logger
}

// NewRegistry constructs an empty Registry. onPresence may be nil.
func NewRegistry(onPresence PresenceFunc) *Registry {
	return &Registry{
		conns:      make(map[string]*entry),
		byUser:     make(map[string]string),
		onPresence: onPresence,
		announced:  make(map[string]bool),
		logger:     logx.Component("Registry"),
	}
}

// Attach tracks a new anonymous connection.
func (r *Registry) Attach(conn Conn) {
	r.mu.Lock()
	r.conns[conn.ID()] = &entry{conn: conn}
	r.mu.Unlock()

	r.logger.Debug().Str("conn_id", conn.ID()).Msg("Connection attached.")
}

// Register binds id to the connection. The last registration for a user id wins:
// an earlier connection of the same user is told so and closed.
func (r *Registry) Register(connID string, id user.Identity) error {
	if err := ValidateIdentity(id); err != nil {
		return err
	}

	var (
		displaced Conn
		wentOn    bool
		wentOff   user.Identity
	)

	r.mu.Lock()
	e, ok := r.conns[connID]
	if !ok {
		r.mu.Unlock()
		return ErrUnknownConnection
	}

	// Re-registering the same connection as someone else releases the old user.
	if prev := e.identity; !prev.IsZero() && prev.UserID != id.UserID && r.byUser[prev.UserID] == connID {
		delete(r.byUser, prev.UserID)
		wentOff = prev
	}

	activeID, online := r.byUser[id.UserID]
	if online && activeID != connID {
		if old, ok := r.conns[activeID]; ok {
			old.identity = user.Identity{}
			displaced = old.conn
		}
	}

	e.identity = id
	r.byUser[id.UserID] = connID
	wentOn = !online
	r.mu.Unlock()

	if displaced != nil {
		r.logger.Info().
			Str("user_id", id.UserID).
			Str("old_conn_id", displaced.ID()).
			Str("new_conn_id", connID).
			Msg("Session replaced by a newer connection.")

		displaced.Send(NewErrorEnvelope(EventSessionReplaced, EventRegister, errs.NewError(errs.ErrSessionKicked)))
		displaced.Kick(CloseSessionReplaced, "session replaced")
	}

	if !wentOff.IsZero() {
		r.notify(wentOff, false)
	}
	if wentOn {
		r.notify(id, true)
	}

	return nil
}

// Lookup returns the identity registered on a connection.
func (r *Registry) Lookup(connID string) (user.Identity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.conns[connID]
	if !ok || !e.registered() {
		return user.Identity{}, false
	}
	return e.identity, true
}

// LookupByUser returns the active connection of a user.
func (r *Registry) LookupByUser(userID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	connID, ok := r.byUser[userID]
	return connID, ok
}

// LookupUser returns the identity of an online user.
func (r *Registry) LookupUser(userID string) (user.Identity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	connID, ok := r.byUser[userID]
	if !ok {
		return user.Identity{}, false
	}
	return r.conns[connID].identity, true
}

// IsOnline reports whether userID has an active connection.
func (r *Registry) IsOnline(userID string) bool {
	_, ok := r.LookupByUser(userID)
	return ok
}

// Unregister forgets a connection. It is a no-op for unknown ids. The user goes
// offline only if this connection was still their active one.
func (r *Registry) Unregister(connID string) {
	var wentOff user.Identity

	r.mu.Lock()
	e, ok := r.conns[connID]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.conns, connID)
	if e.registered() && r.byUser[e.identity.UserID] == connID {
		delete(r.byUser, e.identity.UserID)
		wentOff = e.identity
	}
	r.mu.Unlock()

	r.logger.Debug().Str("conn_id", connID).Msg("Connection unregistered.")

	if !wentOff.IsZero() {
		r.notify(wentOff, false)
	}
}

// Send delivers env to one connection. A missing target is silently dropped.
func (r *Registry) Send(connID string, env Envelope) bool {
	r.mu.RLock()
	e, ok := r.conns[connID]
	r.mu.RUnlock()

	if !ok {
		return false
	}
	return e.conn.Send(env)
}

// SendToUser delivers env to the active connection of userID, if any.
func (r *Registry) SendToUser(userID string, env Envelope) bool {
	connID, ok := r.LookupByUser(userID)
	if !ok {
		return false
	}
	return r.Send(connID, env)
}

// Broadcast delivers env to every attached connection.
func (r *Registry) Broadcast(env Envelope) {
	r.mu.RLock()
	conns := make([]Conn, 0, len(r.conns))
	for _, e := range r.conns {
		conns = append(conns, e.conn)
	}
	r.mu.RUnlock()

	for _, c := range conns {
		c.Send(env)
	}
}

// CloseAll kicks every attached connection. Used on shutdown.
func (r *Registry) CloseAll(reason string) {
	r.mu.RLock()
	conns := make([]Conn, 0, len(r.conns))
	for _, e := range r.conns {
		conns = append(conns, e.conn)
	}
	r.mu.RUnlock()

	for _, c := range conns {
		c.Kick(websocket.CloseGoingAway, reason)
	}
}

// Len returns the number of attached connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

func (r *Registry) notify(id user.Identity, online bool) {
	if r.onPresence == nil {
		return
	}

	r.presenceMu.Lock()
	defer r.presenceMu.Unlock()

	// Transitions can reach here out of order. Deliver the state the user is in
	// now, and only when it differs from what friends last saw.
	online = r.IsOnline(id.UserID)
	if r.announced[id.UserID] == online {
		return
	}
	if online {
		r.announced[id.UserID] = true
	} else {
		delete(r.announced, id.UserID)
	}

	r.onPresence(id, online)
}
