package handler

import (
	"net/http"

	"groupchat/internal/pkg/auth/jwt"
	"groupchat/internal/pkg/errs"
	"groupchat/internal/pkg/resp"
)

// HandleListFriends returns the caller's friends with their live online flag.
func HandleListFriends(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)

		friends, err := deps.Hub.Friends().List(r.Context(), identity.UserID)
		if err != nil {
			resp.RespondError(w, r, errs.From(err))
			return
		}

		resp.RespondSuccess(w, r, map[string]any{
			"friends": friends,
		})
	}
}

// HandleListFriendRequests returns the pending requests addressed to the caller.
func HandleListFriendRequests(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)

		requests, err := deps.Hub.Friends().PendingFor(r.Context(), identity.UserID)
		if err != nil {
			resp.RespondError(w, r, errs.From(err))
			return
		}

		resp.RespondSuccess(w, r, map[string]any{
			"requests": requests,
		})
	}
}

func HandleCountFriendRequests(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)

		n, err := deps.Hub.Friends().PendingCount(r.Context(), identity.UserID)
		if err != nil {
			resp.RespondError(w, r, errs.From(err))
			return
		}

		resp.RespondSuccess(w, r, map[string]any{
			"count": n,
		})
	}
}
