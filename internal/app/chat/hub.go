/*
Package chat contains the real-time core of the chat server.

This file defines the Hub, the entry point used by the transport layer. It owns the
registry, the broadcast engine and the workflow components, routes decoded events to
them, and runs a janitor that purges messages left behind by interrupted room deletions.
*/
package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"groupchat/internal/app/storage"
	"groupchat/internal/app/store"
	"groupchat/internal/app/user"
	"groupchat/internal/pkg/auth/jwt"
	"groupchat/internal/pkg/errs"
	"groupchat/internal/pkg/logx"
)

// DefaultJanitorInterval is how often orphan messages are purged.
const DefaultJanitorInterval = 10 * time.Minute

// HubConfig wires the Hub's collaborators.
type HubConfig struct {
	Store    store.Store
	Archiver storage.Archiver

	// JanitorInterval defaults to DefaultJanitorInterval; a negative value disables the janitor.
	JanitorInterval time.Duration
}

// Hub coordinates every live connection of the process.
type Hub struct {
	store store.Store

	registry    *Registry
	rooms       *Rooms
	friends     *Friends
	provisioner *Provisioner
	admin       *Admin
	identities  *IdentityResolver

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	logger zerolog.Logger
}

// NewHub constructs a Hub and starts its janitor.
func NewHub(cfg HubConfig) *Hub {
	h := &Hub{
		store:  cfg.Store,
		stop:   make(chan struct{}),
		logger: logx.Component("Hub"),
	}

	h.registry = NewRegistry(h.onPresence)
	h.rooms = NewRooms(cfg.Store, h.registry)
	h.friends = NewFriends(cfg.Store, h.registry)
	h.provisioner = NewProvisioner(cfg.Store, h.registry)
	h.admin = NewAdmin(cfg.Store, cfg.Archiver, h.registry, h.rooms)
	h.identities = NewIdentityResolver(cfg.Store)

	interval := cfg.JanitorInterval
	if interval == 0 {
		interval = DefaultJanitorInterval
	}
	if interval > 0 {
		h.wg.Add(1)
		go h.runJanitor(interval)
	}

	return h
}

func (h *Hub) Registry() *Registry       { return h.registry }
func (h *Hub) Rooms() *Rooms             { return h.rooms }
func (h *Hub) Friends() *Friends         { return h.friends }
func (h *Hub) Provisioner() *Provisioner { return h.provisioner }
func (h *Hub) Admin() *Admin             { return h.admin }

// Attach starts tracking a transport connection.
func (h *Hub) Attach(conn Conn) {
	h.registry.Attach(conn)
}

// Detach drops a connection from every room and from the registry.
func (h *Hub) Detach(connID string) {
	h.rooms.UnsubscribeAll(connID)
	h.registry.Unregister(connID)
}

// Dispatch handles one inbound frame from connID. session is the verified token of
// the connection, or nil for anonymous connections. A failure is reported to the
// sender only; a panic in a handler is contained here.
func (h *Hub) Dispatch(ctx context.Context, connID string, session *jwt.Payload, frame []byte) {
	event := EventType("")

	defer func() {
		if rec := recover(); rec != nil {
			h.logger.Error().
				Str("conn_id", connID).
				Str("event", string(event)).
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Msg("Event handler panicked.")
			h.reply(connID, event, errs.NewError(errs.ErrUnknown, fmt.Errorf("panic: %v", rec)))
		}
	}()

	if !gjson.ValidBytes(frame) {
		h.reply(connID, event, errs.NewError(errs.ErrInvalidJSONFormat))
		return
	}

	typ := gjson.GetBytes(frame, "type")
	if typ.Type != gjson.String || typ.String() == "" {
		h.reply(connID, event, errs.NewError(errs.ErrInvalidParams))
		return
	}
	event = EventType(typ.String())
	payload := gjson.GetBytes(frame, "payload").Raw

	if err := h.route(ctx, connID, session, event, payload); err != nil {
		h.reply(connID, event, err)
	}
}

// reply sends err to connID with the failure event matching the request.
func (h *Hub) reply(connID string, event EventType, err error) {
	if errs.KindOf(err) == errs.KindInternal {
		h.logger.Warn().Err(err).Str("conn_id", connID).Str("event", string(event)).Msg("Event failed.")
	}

	out := EventErrorMessage
	switch event {
	case EventCreateGroup:
		out = EventGroupProvisionFailed
	case EventDeleteRoom:
		out = EventRoomDeleteFailed
	}
	h.registry.Send(connID, NewErrorEnvelope(out, event, err))
}

type validator interface {
	Validate() error
}

// decode unmarshals a raw payload into dst and validates it.
func decode(raw string, dst validator) error {
	if raw == "" {
		return errs.NewError(errs.ErrInvalidParams)
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return errs.NewError(errs.ErrInvalidJSONFormat)
	}
	return dst.Validate()
}

func (h *Hub) route(ctx context.Context, connID string, session *jwt.Payload, event EventType, raw string) error {
	switch event {
	case EventRegister:
		return h.handleRegister(ctx, connID, session, raw)
	case EventJoinRoom:
		return h.handleJoinRoom(ctx, connID, raw)
	case EventLeaveRoom:
		return h.handleLeaveRoom(connID, raw)
	case EventSendMessage, EventStartPrivateChat, EventCreateGroup, EventSendFriendRequest,
		EventAcceptFriendRequest, EventRejectFriendRequest, EventDeleteRoom:
	default:
		return errs.NewError(errs.ErrUnknownEvent)
	}

	caller, ok := h.registry.Lookup(connID)
	if !ok {
		return errs.NewError(errs.ErrNotRegistered)
	}

	switch event {
	case EventSendMessage:
		return h.handleSendMessage(ctx, connID, caller, raw)
	case EventStartPrivateChat:
		return h.handleStartPrivateChat(ctx, caller, raw)
	case EventCreateGroup:
		return h.handleCreateGroup(ctx, caller, raw)
	case EventSendFriendRequest:
		return h.handleSendFriendRequest(ctx, caller, raw)
	case EventAcceptFriendRequest:
		return h.handleFriendResponse(ctx, caller, raw, h.friends.Accept)
	case EventRejectFriendRequest:
		return h.handleFriendResponse(ctx, caller, raw, h.friends.Reject)
	default:
		return h.handleDeleteRoom(ctx, caller, raw)
	}
}

// mustBeCaller rejects payload ids that name someone other than the caller.
// An empty id means "the caller".
func mustBeCaller(caller user.Identity, claimed string) error {
	if claimed != "" && claimed != caller.UserID {
		return errs.NewError(errs.ErrIdentityMismatch)
	}
	return nil
}

func (h *Hub) handleRegister(ctx context.Context, connID string, session *jwt.Payload, raw string) error {
	var p RegisterPayload
	if err := json.Unmarshal([]byte(raw), &p); raw == "" || err != nil {
		return errs.NewError(errs.ErrInvalidParams)
	}

	id, err := h.identities.Resolve(ctx, p, session)
	if err != nil {
		return err
	}

	if err := h.registry.Register(connID, id); err != nil {
		return err
	}

	h.logger.Info().
		Str("conn_id", connID).
		Str("user_id", id.UserID).
		Bool("is_admin", id.IsAdmin).
		Msg("Connection registered.")

	h.registry.Send(connID, NewEnvelope(EventRegistered, RegisteredPayload{Identity: id, ConnectionID: connID}))
	return nil
}

func (h *Hub) handleJoinRoom(ctx context.Context, connID, raw string) error {
	var p RoomPayload
	if err := decode(raw, &p); err != nil {
		return err
	}
	return h.rooms.Subscribe(ctx, p.Room, connID, p.DisplayName)
}

func (h *Hub) handleLeaveRoom(connID, raw string) error {
	var p RoomPayload
	if err := decode(raw, &p); err != nil {
		return err
	}
	h.rooms.Unsubscribe(p.Room, connID)
	return nil
}

func (h *Hub) handleSendMessage(ctx context.Context, connID string, caller user.Identity, raw string) error {
	var p SendMessagePayload
	if err := decode(raw, &p); err != nil {
		return err
	}

	if !h.rooms.IsSubscribed(p.Room, connID) {
		return errs.NewError(errs.ErrRoomNotJoined)
	}

	msg := h.rooms.NewMessage(p.Room, caller.UserID, caller.DisplayName, p.Text)
	_, err := h.rooms.Publish(ctx, p.Room, msg)
	return err
}

func (h *Hub) handleStartPrivateChat(ctx context.Context, caller user.Identity, raw string) error {
	var p StartPrivateChatPayload
	if err := decode(raw, &p); err != nil {
		return err
	}
	if err := mustBeCaller(caller, p.FromID); err != nil {
		return err
	}

	_, err := h.provisioner.StartPrivateChat(ctx, caller, p.ToID)
	return err
}

func (h *Hub) handleCreateGroup(ctx context.Context, caller user.Identity, raw string) error {
	var p CreateGroupPayload
	if err := decode(raw, &p); err != nil {
		return err
	}
	if err := mustBeCaller(caller, p.CreatorID); err != nil {
		return err
	}

	_, err := h.provisioner.CreateGroup(ctx, p.Label, caller, p.User1ID, p.User2ID)
	return err
}

func (h *Hub) handleSendFriendRequest(ctx context.Context, caller user.Identity, raw string) error {
	var p SendFriendRequestPayload
	if err := decode(raw, &p); err != nil {
		return err
	}
	if err := mustBeCaller(caller, p.FromID); err != nil {
		return err
	}

	_, err := h.friends.SendRequest(ctx, caller, p.ToID)
	return err
}

func (h *Hub) handleFriendResponse(
	ctx context.Context,
	caller user.Identity,
	raw string,
	respond func(context.Context, string, user.Identity) error,
) error {
	var p FriendRequestActionPayload
	if err := decode(raw, &p); err != nil {
		return err
	}
	if err := mustBeCaller(caller, p.ToID); err != nil {
		return err
	}

	return respond(ctx, p.RequestID, caller)
}

func (h *Hub) handleDeleteRoom(ctx context.Context, caller user.Identity, raw string) error {
	var p DeleteRoomPayload
	if err := decode(raw, &p); err != nil {
		return err
	}
	if err := mustBeCaller(caller, p.RequesterID); err != nil {
		return err
	}

	_, err := h.admin.DeleteRoom(ctx, p.RoomName, caller.UserID)
	return err
}

// onPresence runs the friend fan-out for registry transitions.
func (h *Hub) onPresence(id user.Identity, online bool) {
	h.logger.Debug().Str("user_id", id.UserID).Bool("online", online).Msg("Presence changed.")
	h.friends.NotifyPresence(context.Background(), id, online)
}

// runJanitor periodically removes messages whose room no longer exists.
func (h *Hub) runJanitor(interval time.Duration) {
	defer h.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	h.logger.Info().Dur("interval", interval).Msg("Janitor started.")

	for {
		select {
		case <-ticker.C:
			h.PurgeOrphans(context.Background())
		case <-h.stop:
			h.logger.Info().Msg("Janitor stopped.")
			return
		}
	}
}

// PurgeOrphans deletes messages left behind by room deletions whose cascade failed.
func (h *Hub) PurgeOrphans(ctx context.Context) int64 {
	ctx, cancel := storeContext(ctx)
	defer cancel()

	n, err := h.store.PurgeOrphanMessages(ctx)
	if err != nil {
		h.logger.Error().Err(err).Msg("Orphan message purge failed.")
		return 0
	}
	if n > 0 {
		h.logger.Info().Int64("messages", n).Msg("Orphan messages purged.")
	}
	return n
}

// Shutdown stops the janitor and closes every connection.
func (h *Hub) Shutdown() {
	h.stopOnce.Do(func() {
		h.logger.Info().Msg("Shutting down Hub...")

		close(h.stop)
		h.wg.Wait()

		h.registry.CloseAll("server shutting down")

		h.logger.Info().Int("connections", h.registry.Len()).Msg("Hub shutdown complete.")
	})
}
