/*
Package handler provides the HTTP handler function for WebSocket connection upgrading and initialization.

This file contains HandleWebSocket, which authenticates the optional session token,
upgrades the HTTP connection to WebSocket and starts the client lifecycle.
*/
package handler

import (
	"net/http"

	"github.com/gorilla/websocket"

	"groupchat/internal/app/chat"
	"groupchat/internal/pkg/auth/jwt"
	"groupchat/internal/pkg/errs"
	"groupchat/internal/pkg/limiter"
	"groupchat/internal/pkg/logx"
	"groupchat/internal/pkg/resp"
)

// HandleWebSocket creates an HTTP HandlerFunc to process WebSocket connection requests.
//
// The token query parameter is optional. Without it the connection may still register,
// but an admin claim is then confirmed against the account store. A token that fails
// validation rejects the upgrade.
func HandleWebSocket(deps *AppDeps, upgrader websocket.Upgrader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var session *jwt.Payload
		if token := r.URL.Query().Get("token"); token != "" {
			payload, err := jwt.ParseToken(token, deps.Config.JWTSecret)
			if err != nil {
				logx.Warn("WebSocket request rejected: invalid token", "ip", logx.AnonymizeIP(limiter.ClientIP(r)), "error", err.Error())
				resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
				return
			}
			session = payload
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logx.Error(err, "Failed to upgrade connection to WebSocket")
			return
		}

		client := chat.NewClient(deps.Hub, conn, session)
		deps.Hub.Attach(client)

		go client.WritePump()

		logx.Info("WebSocket connection established", "conn_id", client.ID(), "authenticated", session != nil)

		client.ReadPump()
	}
}
