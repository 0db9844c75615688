/*
Package handler provides HTTP handler functions for listing, creating and reading rooms.
*/
package handler

import (
	"net/http"
	"strings"

	"groupchat/internal/app/user"
	"groupchat/internal/pkg/auth/jwt"
	"groupchat/internal/pkg/errs"
	"groupchat/internal/pkg/logx"
	"groupchat/internal/pkg/req"
	"groupchat/internal/pkg/resp"
)

// HistoryLimit is the number of messages returned by the history endpoint.
const HistoryLimit = 100

// sessionIdentity maps the session token onto a chat identity.
func sessionIdentity(p *jwt.Payload) user.Identity {
	return user.Identity{
		UserID:      p.UserID,
		DisplayName: p.DisplayName,
		IsAdmin:     p.IsAdmin,
	}
}

// HandleListRooms returns the public rooms plus the private and group rooms of the caller.
func HandleListRooms(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)

		rooms, err := deps.Hub.Provisioner().RoomsVisibleTo(r.Context(), identity.UserID)
		if err != nil {
			logx.Error(err, "list_rooms: lookup failed", "user_id", identity.UserID)
			resp.RespondError(w, r, errs.From(err))
			return
		}

		resp.RespondSuccess(w, r, map[string]any{
			"rooms": rooms,
		})
	}
}

type CreateRoomInput struct {
	Name string `json:"name"`
}

// HandleCreateRoom creates a public room and announces it to every connection.
func HandleCreateRoom(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)

		var input CreateRoomInput
		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		room, err := deps.Hub.Provisioner().CreatePublicRoom(r.Context(), strings.TrimSpace(input.Name), sessionIdentity(identity))
		if err != nil {
			resp.RespondError(w, r, errs.From(err))
			return
		}

		resp.RespondSuccess(w, r, map[string]any{
			"room": room,
		})
	}
}

// HandleListMessages returns the latest messages of a room the caller may read.
func HandleListMessages(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)

		roomName := r.URL.Query().Get("room")
		if roomName == "" {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		msgs, err := deps.Hub.Provisioner().History(r.Context(), roomName, identity.UserID, HistoryLimit)
		if err != nil {
			resp.RespondError(w, r, errs.From(err))
			return
		}

		resp.RespondSuccess(w, r, map[string]any{
			"room":     roomName,
			"messages": msgs,
		})
	}
}
