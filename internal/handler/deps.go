package handler

import (
	"groupchat/internal/app/chat"
	"groupchat/internal/app/storage"
	"groupchat/internal/app/store"
	"groupchat/internal/configs"
)

// AppDeps carries the collaborators shared by every HTTP handler.
type AppDeps struct {
	Hub      *chat.Hub
	Config   *configs.AppConfig
	Store    store.Store
	Archiver storage.Archiver
}
