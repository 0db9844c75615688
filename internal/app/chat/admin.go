package chat

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"groupchat/internal/app/storage"
	"groupchat/internal/app/store"
	"groupchat/internal/pkg/errs"
	"groupchat/internal/pkg/logx"
)

// ArchiveMessageLimit caps the number of messages written to a room transcript.
const ArchiveMessageLimit = 10000

// Deletion is the outcome of a successful room deletion.
type Deletion struct {
	Room        string
	ArchiveKey  string
	Messages    int64
	Subscribers []string
}

// Admin executes privileged room operations.
type Admin struct {
	store    store.Store
	archiver storage.Archiver
	registry *Registry
	rooms    *Rooms

	logger zerolog.Logger
}

// NewAdmin constructs the room admin authority. archiver may be nil.
func NewAdmin(st store.Store, archiver storage.Archiver, registry *Registry, rooms *Rooms) *Admin {
	if archiver == nil {
		archiver = storage.NopArchiver{}
	}
	return &Admin{
		store:    st,
		archiver: archiver,
		registry: registry,
		rooms:    rooms,
		logger:   logx.Component("Admin"),
	}
}

// DeleteRoom deletes a public room on behalf of an admin.
//
// Default rooms and every private or group room are protected whatever the
// requester's rights. The transcript is archived first, then the room record is
// removed, then its messages. Message removal is best effort; leftovers are purged
// by the hub's janitor. Live subscribers and the requester receive roomDeleted.
func (a *Admin) DeleteRoom(ctx context.Context, roomName, requesterID string) (*Deletion, error) {
	if IsProtectedRoom(roomName) {
		return nil, errs.NewError(errs.ErrRoomProtected)
	}
	if !a.isAdmin(ctx, requesterID) {
		return nil, errs.NewError(errs.ErrAdminRequired)
	}

	rec, err := a.findRoom(ctx, roomName)
	if err != nil {
		return nil, err
	}
	if rec.Kind != store.RoomPublic {
		return nil, errs.NewError(errs.ErrRoomProtected)
	}

	archiveKey := a.archive(ctx, roomName)

	sctx, cancel := storeContext(ctx)
	deleted, err := a.store.DeleteRoom(sctx, roomName)
	cancel()
	if err != nil {
		return nil, errs.NewError(errs.ErrStoreUnavailable, err)
	}
	if !deleted {
		return nil, errs.NewError(errs.ErrRoomNotFound)
	}

	sctx, cancel = storeContext(ctx)
	removed, err := a.store.DeleteMessagesByRoom(sctx, roomName)
	cancel()
	if err != nil {
		a.logger.Error().Err(err).Str("room", roomName).Msg("Message cascade failed; janitor will purge leftovers.")
	}

	d := &Deletion{
		Room:        roomName,
		ArchiveKey:  archiveKey,
		Messages:    removed,
		Subscribers: a.rooms.Drop(roomName),
	}

	env := NewEnvelope(EventRoomDeleted, RoomDeletedPayload{Room: roomName, DeletedBy: requesterID})
	requesterConn, _ := a.registry.LookupByUser(requesterID)
	for _, connID := range d.Subscribers {
		if connID != requesterConn {
			a.registry.Send(connID, env)
		}
	}
	a.registry.SendToUser(requesterID, NewEnvelope(EventRoomDeleted, RoomDeletedPayload{
		Room:       roomName,
		DeletedBy:  requesterID,
		ArchiveKey: archiveKey,
	}))

	a.logger.Info().
		Str("room", roomName).
		Str("requester_id", requesterID).
		Int64("messages", removed).
		Int("subscribers", len(d.Subscribers)).
		Str("archive_key", archiveKey).
		Msg("Room deleted.")

	return d, nil
}

// isAdmin trusts the live registration first and falls back to the Account Store.
func (a *Admin) isAdmin(ctx context.Context, userID string) bool {
	if id, ok := a.registry.LookupUser(userID); ok {
		return id.IsAdmin
	}

	ctx, cancel := storeContext(ctx)
	defer cancel()

	admin, err := a.store.IsAdmin(ctx, userID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			a.logger.Error().Err(err).Str("user_id", userID).Msg("Admin lookup failed.")
		}
		return false
	}
	return admin
}

func (a *Admin) findRoom(ctx context.Context, name string) (*store.Room, error) {
	ctx, cancel := storeContext(ctx)
	defer cancel()

	rec, err := a.store.FindRoom(ctx, name)
	if errors.Is(err, store.ErrNotFound) {
		return nil, errs.NewError(errs.ErrRoomNotFound)
	}
	if err != nil {
		return nil, errs.NewError(errs.ErrStoreUnavailable, err)
	}
	return rec, nil
}

// archive uploads the room transcript and returns its key, or "" when archiving is
// disabled or failed.
func (a *Admin) archive(ctx context.Context, roomName string) string {
	sctx, cancel := storeContext(ctx)
	msgs, err := a.store.ListMessages(sctx, roomName, ArchiveMessageLimit)
	cancel()
	if err != nil {
		a.logger.Error().Err(err).Str("room", roomName).Msg("Transcript skipped: message lookup failed.")
		return ""
	}

	key, err := a.archiver.ArchiveRoom(ctx, roomName, msgs)
	if err != nil {
		a.logger.Error().Err(err).Str("room", roomName).Msg("Transcript upload failed; deleting anyway.")
		return ""
	}
	return key
}
