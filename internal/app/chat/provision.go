package chat

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"groupchat/internal/app/store"
	"groupchat/internal/app/user"
	"groupchat/internal/pkg/errs"
	"groupchat/internal/pkg/logx"
)

// Provisioner creates rooms: private rooms, group rooms and public rooms.
type Provisioner struct {
	store    store.Store
	registry *Registry

	now    func() time.Time
	logger zerolog.Logger
}

// NewProvisioner constructs a Provisioner.
func NewProvisioner(st store.Store, registry *Registry) *Provisioner {
	return &Provisioner{
		store:    st,
		registry: registry,
		now:      time.Now,
		logger:   logx.Component("Provisioner"),
	}
}

// StartPrivateChat ensures the private room between from and toID exists and tells
// both sides about it. The target must be online.
func (p *Provisioner) StartPrivateChat(ctx context.Context, from user.Identity, toID string) (*store.Room, error) {
	if from.UserID == toID {
		return nil, errs.NewError(errs.ErrSelfTarget)
	}
	if err := ValidateUserID(toID); err != nil {
		return nil, err
	}

	to, online := p.registry.LookupUser(toID)
	if !online {
		return nil, errs.NewError(errs.ErrUserOffline)
	}

	rec := &store.Room{
		Name:      PrivateRoomName(from.UserID, to.UserID),
		Kind:      store.RoomPrivate,
		Members:   sortedMembers(from.UserID, to.UserID),
		CreatedBy: from.UserID,
		CreatedAt: p.now(),
	}

	rec, err := p.ensureRoom(ctx, rec)
	if err != nil {
		return nil, err
	}

	p.registry.SendToUser(from.UserID, NewEnvelope(EventRoomProvisioned, RoomProvisionedPayload{
		Room:     rec.Name,
		Kind:     rec.Kind,
		PeerID:   to.UserID,
		PeerName: to.DisplayName,
	}))
	p.registry.SendToUser(to.UserID, NewEnvelope(EventRoomProvisioned, RoomProvisionedPayload{
		Room:     rec.Name,
		Kind:     rec.Kind,
		PeerID:   from.UserID,
		PeerName: from.DisplayName,
	}))

	return rec, nil
}

// ensureRoom inserts rec unless a room with the same name already exists, and
// returns the stored record.
func (p *Provisioner) ensureRoom(ctx context.Context, rec *store.Room) (*store.Room, error) {
	ctx, cancel := storeContext(ctx)
	defer cancel()

	existing, err := p.store.FindRoom(ctx, rec.Name)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, errs.NewError(errs.ErrStoreUnavailable, err)
	}

	err = p.store.InsertRoom(ctx, rec)
	switch {
	case err == nil:
		p.logger.Info().Str("room", rec.Name).Str("kind", string(rec.Kind)).Msg("Room provisioned.")
		return rec, nil
	case errors.Is(err, store.ErrDuplicate):
		return rec, nil
	default:
		return nil, errs.NewError(errs.ErrStoreUnavailable, err)
	}
}

// CreateGroup persists a three-member group room and tells each member.
// The two members must be distinct, differ from the creator and be online.
func (p *Provisioner) CreateGroup(ctx context.Context, label string, creator user.Identity, memberA, memberB string) (*store.Room, error) {
	if err := ValidateGroupLabel(label); err != nil {
		return nil, err
	}
	if memberA == memberB || memberA == creator.UserID || memberB == creator.UserID {
		return nil, errs.NewError(errs.ErrInvalidGroupMembers)
	}

	a, onlineA := p.registry.LookupUser(memberA)
	b, onlineB := p.registry.LookupUser(memberB)
	if !onlineA || !onlineB {
		return nil, errs.NewError(errs.ErrUserOffline)
	}

	rec := &store.Room{
		Name:        GroupRoomName(label, creator.UserID, memberA, memberB),
		DisplayName: label,
		Kind:        store.RoomGroup,
		Members:     sortedMembers(creator.UserID, memberA, memberB),
		CreatedBy:   creator.UserID,
		CreatedAt:   p.now(),
	}

	if err := p.insert(ctx, rec); err != nil {
		return nil, err
	}

	payload := GroupProvisionedPayload{
		Room:      rec.Name,
		Kind:      rec.Kind,
		Label:     label,
		CreatorID: creator.UserID,
		Members: []Member{
			{UserID: creator.UserID, DisplayName: creator.DisplayName},
			{UserID: a.UserID, DisplayName: a.DisplayName},
			{UserID: b.UserID, DisplayName: b.DisplayName},
		},
	}
	env := NewEnvelope(EventGroupProvisioned, payload)
	for _, m := range payload.Members {
		p.registry.SendToUser(m.UserID, env)
	}

	return rec, nil
}

// CreatePublicRoom persists a public room and announces it to every connection.
func (p *Provisioner) CreatePublicRoom(ctx context.Context, name string, creator user.Identity) (*store.Room, error) {
	if err := ValidatePublicRoomName(name); err != nil {
		return nil, err
	}

	rec := &store.Room{
		Name:      name,
		Kind:      store.RoomPublic,
		CreatedBy: creator.UserID,
		CreatedAt: p.now(),
	}

	if err := p.insert(ctx, rec); err != nil {
		return nil, err
	}

	p.registry.Broadcast(NewEnvelope(EventRoomCreated, rec))
	return rec, nil
}

func (p *Provisioner) insert(ctx context.Context, rec *store.Room) error {
	ctx, cancel := storeContext(ctx)
	defer cancel()

	err := p.store.InsertRoom(ctx, rec)
	switch {
	case err == nil:
		p.logger.Info().Str("room", rec.Name).Str("kind", string(rec.Kind)).Msg("Room created.")
		return nil
	case errors.Is(err, store.ErrDuplicate):
		return errs.NewError(errs.ErrRoomExists)
	default:
		return errs.NewError(errs.ErrStoreUnavailable, err)
	}
}

// RoomsVisibleTo lists the public rooms plus the private and group rooms userID belongs to.
func (p *Provisioner) RoomsVisibleTo(ctx context.Context, userID string) ([]store.Room, error) {
	ctx, cancel := storeContext(ctx)
	defer cancel()

	rooms, err := p.store.ListRoomsVisibleTo(ctx, userID)
	if err != nil {
		return nil, errs.NewError(errs.ErrStoreUnavailable, err)
	}
	return rooms, nil
}

// History returns the latest messages of a room userID may read.
func (p *Provisioner) History(ctx context.Context, roomName, userID string, limit int) ([]store.Message, error) {
	ctx, cancel := storeContext(ctx)
	defer cancel()

	rec, err := p.store.FindRoom(ctx, roomName)
	if errors.Is(err, store.ErrNotFound) {
		return nil, errs.NewError(errs.ErrRoomNotFound)
	}
	if err != nil {
		return nil, errs.NewError(errs.ErrStoreUnavailable, err)
	}
	if rec.Kind != store.RoomPublic && !rec.HasMember(userID) {
		return nil, errs.NewError(errs.ErrRoomMembersOnly)
	}

	msgs, err := p.store.ListMessages(ctx, rec.Name, limit)
	if err != nil {
		return nil, errs.NewError(errs.ErrStoreUnavailable, err)
	}
	return msgs, nil
}

func sortedMembers(ids ...string) []string {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return sortedKeys(set)
}
