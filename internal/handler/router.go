/*
Package handler provides the HTTP handlers and routing setup for the group chat server.

This file defines the main Router, applying necessary middleware like logging, CORS,
and IP-based rate limiting before delegating requests to specific handlers (API and WebSocket).
*/
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"golang.org/x/time/rate"

	"groupchat/internal/pkg/auth/jwt"
	"groupchat/internal/pkg/limiter"
	"groupchat/internal/pkg/logx"
	"groupchat/internal/pkg/resp"
)

const (
	AuthRate     = 0.2
	AuthBurst    = 5
	ConnectRate  = 0.5
	ConnectBurst = 10
	RoomRate     = 0.05
	RoomBurst    = 3
)

// Limiters groups the IP rate limiters used by the router so the caller can stop
// their sweepers on shutdown.
type Limiters struct {
	Auth    *limiter.KeyedLimiter
	Connect *limiter.KeyedLimiter
	Room    *limiter.KeyedLimiter
}

// NewLimiters builds the default limiters.
func NewLimiters() *Limiters {
	return &Limiters{
		Auth:    limiter.NewKeyedLimiter(rate.Limit(AuthRate), AuthBurst),
		Connect: limiter.NewKeyedLimiter(rate.Limit(ConnectRate), ConnectBurst),
		Room:    limiter.NewKeyedLimiter(rate.Limit(RoomRate), RoomBurst),
	}
}

// Close stops every limiter.
func (l *Limiters) Close() {
	l.Auth.Close()
	l.Connect.Close()
	l.Room.Close()
}

// Router sets up the main HTTP routing table (chi.Router) for the application.
// It configures CORS, applies global and per-route middleware and mounts the REST API
// next to the WebSocket endpoint.
func Router(deps *AppDeps, limiters *Limiters) http.Handler {
	r := chi.NewRouter()

	allowedOrigins := make(map[string]struct{})
	for _, origin := range deps.Config.AllowedOrigins {
		allowedOrigins[origin] = struct{}{}
	}

	wsUpgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if deps.Config.IsDevelopment() {
				return true
			}

			origin := r.Header.Get("Origin")
			if _, ok := allowedOrigins[origin]; ok {
				return true
			}

			logx.Warn("WebSocket connection rejected: Origin not allowed.", "origin", origin)
			return false
		},
	}

	corsAllowedOrigins := []string{}
	if deps.Config.IsDevelopment() {
		corsAllowedOrigins = []string{"*"}
	} else if len(deps.Config.AllowedOrigins) > 0 {
		corsAllowedOrigins = deps.Config.AllowedOrigins
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   corsAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{},
		AllowCredentials: true,
		MaxAge:           300,
	})
	r.Use(c.Handler)

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logx.RequestLogger())
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		resp.RespondSuccess(w, r, map[string]any{
			"status":      "ok",
			"service":     "Group Chat Server",
			"connections": deps.Hub.Registry().Len(),
		})
	})

	r.Route("/api", func(api chi.Router) {
		api.Use(jwt.IdentityExtractorMiddleware(deps.Config.JWTSecret))

		api.Route("/auth", func(auth chi.Router) {
			auth.Use(limiters.Auth.Middleware)
			auth.Post("/register", HandleRegister(deps))
			auth.Post("/login", HandleLogin(deps))
		})

		api.Group(func(private chi.Router) {
			private.Use(jwt.RequireIdentity)

			private.Get("/user/profile", HandleGetUserProfile(deps))

			private.Get("/rooms", HandleListRooms(deps))
			private.With(limiters.Room.Middleware).Post("/rooms", HandleCreateRoom(deps))
			private.Get("/messages", HandleListMessages(deps))

			private.Get("/friends", HandleListFriends(deps))
			private.Get("/friend-requests", HandleListFriendRequests(deps))
			private.Get("/friend-requests/count", HandleCountFriendRequests(deps))

			private.Get("/admin/archive", HandleArchiveDownload(deps))
		})
	})

	r.With(limiters.Connect.Middleware).Get("/ws", HandleWebSocket(deps, wsUpgrader))

	return r
}
