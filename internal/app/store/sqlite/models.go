package sqlite

import (
	"time"

	"groupchat/internal/app/store"
)

type userRow struct {
	UserID       string    `gorm:"type:TEXT NOT NULL;primaryKey"`
	Username     string    `gorm:"type:TEXT NOT NULL;uniqueIndex"`
	Email        string    `gorm:"type:TEXT NOT NULL;uniqueIndex"`
	PasswordHash string    `gorm:"type:TEXT NOT NULL"`
	IsAdmin      bool      `gorm:"not null;default:false"`
	CreatedAt    time.Time `gorm:"not null"`
}

func (userRow) TableName() string { return "users" }

func (r userRow) toModel() *store.User {
	return &store.User{
		UserID:       r.UserID,
		Username:     r.Username,
		Email:        r.Email,
		PasswordHash: r.PasswordHash,
		IsAdmin:      r.IsAdmin,
		CreatedAt:    r.CreatedAt,
	}
}

type roomRow struct {
	Name        string    `gorm:"type:TEXT NOT NULL;primaryKey"`
	DisplayName string    `gorm:"type:TEXT NOT NULL;default:''"`
	Kind        string    `gorm:"type:TEXT NOT NULL;index"`
	CreatedBy   string    `gorm:"type:TEXT NOT NULL"`
	CreatedAt   time.Time `gorm:"not null"`
}

func (roomRow) TableName() string { return "rooms" }

type roomMemberRow struct {
	RoomName string `gorm:"type:TEXT NOT NULL;primaryKey"`
	UserID   string `gorm:"type:TEXT NOT NULL;primaryKey;index"`
}

func (roomMemberRow) TableName() string { return "room_members" }

type messageRow struct {
	Seq         uint64    `gorm:"primaryKey;autoIncrement"`
	ID          string    `gorm:"type:TEXT NOT NULL;uniqueIndex"`
	Room        string    `gorm:"type:TEXT NOT NULL;index"`
	UserID      string    `gorm:"type:TEXT NOT NULL"`
	DisplayName string    `gorm:"type:TEXT NOT NULL"`
	Text        string    `gorm:"type:TEXT NOT NULL"`
	Private     bool      `gorm:"not null"`
	Group       bool      `gorm:"column:is_group;not null"`
	Timestamp   string    `gorm:"type:TEXT NOT NULL"`
	CreatedAt   time.Time `gorm:"not null"`
}

func (messageRow) TableName() string { return "messages" }

func (r messageRow) toModel() store.Message {
	return store.Message{
		ID:          r.ID,
		Room:        r.Room,
		UserID:      r.UserID,
		DisplayName: r.DisplayName,
		Text:        r.Text,
		Private:     r.Private,
		Group:       r.Group,
		Timestamp:   r.Timestamp,
		CreatedAt:   r.CreatedAt,
	}
}

type friendshipRow struct {
	UserA     string    `gorm:"type:TEXT NOT NULL;primaryKey"`
	UserB     string    `gorm:"type:TEXT NOT NULL;primaryKey;index"`
	CreatedAt time.Time `gorm:"not null"`
}

func (friendshipRow) TableName() string { return "friendships" }

type friendRequestRow struct {
	ID          string    `gorm:"type:TEXT NOT NULL;primaryKey"`
	FromID      string    `gorm:"type:TEXT NOT NULL;index"`
	FromName    string    `gorm:"type:TEXT NOT NULL"`
	ToID        string    `gorm:"type:TEXT NOT NULL;index"`
	ToName      string    `gorm:"type:TEXT NOT NULL"`
	Status      string    `gorm:"type:TEXT NOT NULL"`
	CreatedAt   time.Time `gorm:"not null"`
	RespondedAt *time.Time
}

func (friendRequestRow) TableName() string { return "friend_requests" }

func (r friendRequestRow) toModel() *store.FriendRequest {
	return &store.FriendRequest{
		ID:          r.ID,
		FromID:      r.FromID,
		FromName:    r.FromName,
		ToID:        r.ToID,
		ToName:      r.ToName,
		Status:      store.RequestStatus(r.Status),
		CreatedAt:   r.CreatedAt,
		RespondedAt: r.RespondedAt,
	}
}
