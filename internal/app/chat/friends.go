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
	"groupchat/internal/pkg/randx"
)

// Friend is one entry of a user's friend list.
type Friend struct {
	UserID      string    `json:"userID"`
	DisplayName string    `json:"displayName"`
	Online      bool      `json:"online"`
	Since       time.Time `json:"since"`
}

// Friends runs the friend-request state machine and presence fan-out.
//
// A request moves pending -> accepted or pending -> rejected exactly once. Both
// transitions are a compare-and-swap in the store, so concurrent responses to the
// same request resolve to a single winner and at most one friendship edge.
type Friends struct {
	store    store.Store
	registry *Registry

	now    func() time.Time
	logger zerolog.Logger
}

// NewFriends constructs the workflow.
func NewFriends(st store.Store, registry *Registry) *Friends {
	return &Friends{
		store:    st,
		registry: registry,
		now:      time.Now,
		logger:   logx.Component("Friends"),
	}
}

// SendRequest records a pending request from sender to toID, pushes it to the
// target if online and acknowledges the sender.
func (f *Friends) SendRequest(ctx context.Context, sender user.Identity, toID string) (*store.FriendRequest, error) {
	if sender.UserID == toID {
		return nil, errs.NewError(errs.ErrSelfTarget)
	}

	ctx, cancel := storeContext(ctx)
	defer cancel()

	target, err := f.store.FindUserByID(ctx, toID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, errs.NewError(errs.ErrUserNotFound)
	}
	if err != nil {
		return nil, errs.NewError(errs.ErrStoreUnavailable, err)
	}

	_, err = f.store.FindFriendshipBetween(ctx, sender.UserID, toID)
	switch {
	case err == nil:
		return nil, errs.NewError(errs.ErrAlreadyFriends)
	case !errors.Is(err, store.ErrNotFound):
		return nil, errs.NewError(errs.ErrStoreUnavailable, err)
	}

	_, err = f.store.FindPendingRequest(ctx, sender.UserID, toID)
	switch {
	case err == nil:
		return nil, errs.NewError(errs.ErrRequestPending)
	case !errors.Is(err, store.ErrNotFound):
		return nil, errs.NewError(errs.ErrStoreUnavailable, err)
	}

	fr := &store.FriendRequest{
		ID:        randx.RequestID(),
		FromID:    sender.UserID,
		FromName:  sender.DisplayName,
		ToID:      target.UserID,
		ToName:    target.Username,
		Status:    store.RequestPending,
		CreatedAt: f.now(),
	}

	err = f.store.InsertFriendRequest(ctx, fr)
	if errors.Is(err, store.ErrDuplicate) {
		return nil, errs.NewError(errs.ErrRequestPending)
	}
	if err != nil {
		return nil, errs.NewError(errs.ErrStoreUnavailable, err)
	}

	f.logger.Info().
		Str("request_id", fr.ID).
		Str("from_id", fr.FromID).
		Str("to_id", fr.ToID).
		Msg("Friend request sent.")

	payload := friendRequestPayload(fr)
	f.registry.SendToUser(fr.ToID, NewEnvelope(EventFriendRequestReceived, payload))
	f.registry.SendToUser(fr.FromID, NewEnvelope(EventFriendRequestSent, payload))

	return fr, nil
}

// Accept moves a pending request to accepted and creates the friendship edge. If the
// edge cannot be written the request goes back to pending.
// Unknown requests and requests already answered are ignored.
func (f *Friends) Accept(ctx context.Context, requestID string, accepter user.Identity) error {
	fr, won, err := f.respond(ctx, requestID, accepter, store.RequestAccepted)
	if err != nil || !won {
		return err
	}

	ctx, cancel := storeContext(ctx)
	defer cancel()

	err = f.store.InsertFriendship(ctx, store.NewFriendship(fr.FromID, fr.ToID, f.now()))
	if err != nil && !errors.Is(err, store.ErrDuplicate) {
		f.reopen(ctx, fr.ID)
		return errs.NewError(errs.ErrStoreUnavailable, err)
	}

	f.logger.Info().
		Str("request_id", fr.ID).
		Str("user_a", fr.FromID).
		Str("user_b", fr.ToID).
		Msg("Friend request accepted.")

	f.registry.SendToUser(fr.FromID, NewEnvelope(EventFriendRequestAccepted, FriendPayload{
		RequestID:   fr.ID,
		UserID:      fr.ToID,
		DisplayName: accepter.DisplayName,
		Online:      true,
	}))
	f.registry.SendToUser(fr.ToID, NewEnvelope(EventFriendAdded, FriendPayload{
		RequestID:   fr.ID,
		UserID:      fr.FromID,
		DisplayName: fr.FromName,
		Online:      f.registry.IsOnline(fr.FromID),
	}))

	return nil
}

// reopen moves an accepted request back to pending after its edge could not be
// written, so the addressee can accept it again.
func (f *Friends) reopen(ctx context.Context, requestID string) {
	ok, err := f.store.UpdateRequestStatus(ctx, requestID, store.RequestAccepted, store.RequestPending, f.now())
	if err != nil || !ok {
		f.logger.Error().Err(err).
			Str("request_id", requestID).
			Bool("reopened", ok).
			Msg("Accepted friend request has no friendship edge.")
		return
	}
	f.logger.Warn().Str("request_id", requestID).Msg("Friend request reopened after a failed accept.")
}

// Reject moves a pending request to rejected. No edge is created.
func (f *Friends) Reject(ctx context.Context, requestID string, rejecter user.Identity) error {
	fr, won, err := f.respond(ctx, requestID, rejecter, store.RequestRejected)
	if err != nil || !won {
		return err
	}

	f.logger.Info().Str("request_id", fr.ID).Msg("Friend request rejected.")

	f.registry.SendToUser(fr.FromID, NewEnvelope(EventFriendRequestRejected, FriendPayload{
		RequestID:   fr.ID,
		UserID:      fr.ToID,
		DisplayName: rejecter.DisplayName,
		Online:      true,
	}))

	return nil
}

// respond performs the guarded status transition. won is false when the request is
// unknown or another response got there first.
func (f *Friends) respond(ctx context.Context, requestID string, responder user.Identity, to store.RequestStatus) (*store.FriendRequest, bool, error) {
	ctx, cancel := storeContext(ctx)
	defer cancel()

	fr, err := f.store.FindFriendRequest(ctx, requestID)
	if errors.Is(err, store.ErrNotFound) {
		f.logger.Debug().Str("request_id", requestID).Msg("Response to unknown friend request ignored.")
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errs.NewError(errs.ErrStoreUnavailable, err)
	}

	if fr.ToID != responder.UserID {
		return nil, false, errs.NewError(errs.ErrRequestNotAddressee)
	}
	if fr.Status != store.RequestPending {
		return nil, false, nil
	}

	won, err := f.store.UpdateRequestStatus(ctx, fr.ID, store.RequestPending, to, f.now())
	if err != nil {
		return nil, false, errs.NewError(errs.ErrStoreUnavailable, err)
	}
	if !won {
		f.logger.Debug().Str("request_id", requestID).Msg("Friend request already answered.")
	}
	return fr, won, nil
}

// NotifyPresence tells every online friend of id that id went online or offline.
// Cost is proportional to the user's friend count.
func (f *Friends) NotifyPresence(ctx context.Context, id user.Identity, online bool) {
	ctx, cancel := storeContext(ctx)
	defer cancel()

	edges, err := f.store.ListFriendships(ctx, id.UserID)
	if err != nil {
		f.logger.Error().Err(err).Str("user_id", id.UserID).Msg("Presence fan-out skipped: friend lookup failed.")
		return
	}

	env := NewEnvelope(EventPresenceChanged, PresencePayload{
		UserID:      id.UserID,
		DisplayName: id.DisplayName,
		Online:      online,
	})

	for _, edge := range edges {
		f.registry.SendToUser(edge.Other(id.UserID), env)
	}
}

// List returns the friends of userID with their live online flag.
func (f *Friends) List(ctx context.Context, userID string) ([]Friend, error) {
	ctx, cancel := storeContext(ctx)
	defer cancel()

	edges, err := f.store.ListFriendships(ctx, userID)
	if err != nil {
		return nil, errs.NewError(errs.ErrStoreUnavailable, err)
	}

	friends := make([]Friend, 0, len(edges))
	for _, edge := range edges {
		other := edge.Other(userID)

		friend := Friend{UserID: other, Since: edge.CreatedAt}
		if live, ok := f.registry.LookupUser(other); ok {
			friend.DisplayName = live.DisplayName
			friend.Online = true
		} else if u, err := f.store.FindUserByID(ctx, other); err == nil {
			friend.DisplayName = u.Username
		}
		friends = append(friends, friend)
	}

	return friends, nil
}

// PendingFor lists the pending requests addressed to userID, newest first.
func (f *Friends) PendingFor(ctx context.Context, userID string) ([]store.FriendRequest, error) {
	ctx, cancel := storeContext(ctx)
	defer cancel()

	requests, err := f.store.ListPendingRequestsFor(ctx, userID)
	if err != nil {
		return nil, errs.NewError(errs.ErrStoreUnavailable, err)
	}
	return requests, nil
}

// PendingCount counts the pending requests addressed to userID.
func (f *Friends) PendingCount(ctx context.Context, userID string) (int64, error) {
	ctx, cancel := storeContext(ctx)
	defer cancel()

	n, err := f.store.CountPendingRequestsFor(ctx, userID)
	if err != nil {
		return 0, errs.NewError(errs.ErrStoreUnavailable, err)
	}
	return n, nil
}
