/*
Package store defines the durable records of the chat system and the contracts of the
Account Store and Persistence Store that the realtime core depends on.

Implementations live in internal/app/db (Postgres), store/sqlite (embedded SQLite)
and store/memstore (in-process, used by tests and local development).
*/
package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a looked-up record does not exist.
	ErrNotFound = errors.New("store: record not found")

	// ErrDuplicate is returned when an insert violates a uniqueness rule.
	ErrDuplicate = errors.New("store: duplicate record")
)

// Accounts is the Account Store.
type Accounts interface {
	CreateUser(ctx context.Context, u *User) error
	FindUserByID(ctx context.Context, userID string) (*User, error)
	FindUserByName(ctx context.Context, username string) (*User, error)
	IsAdmin(ctx context.Context, userID string) (bool, error)
}

// Rooms persists room records.
type Rooms interface {
	// InsertRoom fails with ErrDuplicate when the name is taken.
	InsertRoom(ctx context.Context, room *Room) error
	FindRoom(ctx context.Context, name string) (*Room, error)
	// ListRoomsVisibleTo returns all public rooms plus private/group rooms listing userID.
	ListRoomsVisibleTo(ctx context.Context, userID string) ([]Room, error)
	// DeleteRoom removes a public room and reports whether a record was deleted.
	DeleteRoom(ctx context.Context, name string) (bool, error)
}

// Messages persists chat messages.
type Messages interface {
	InsertMessage(ctx context.Context, msg *Message) error
	// ListMessages returns the most recent limit messages of room, oldest first.
	ListMessages(ctx context.Context, room string, limit int) ([]Message, error)
	DeleteMessagesByRoom(ctx context.Context, room string) (int64, error)
	// PurgeOrphanMessages removes messages whose room record no longer exists.
	PurgeOrphanMessages(ctx context.Context) (int64, error)
}

// Friends persists friendship edges and friend requests.
type Friends interface {
	// InsertFriendship fails with ErrDuplicate when the pair already has an edge.
	InsertFriendship(ctx context.Context, f Friendship) error
	FindFriendshipBetween(ctx context.Context, a, b string) (*Friendship, error)
	ListFriendships(ctx context.Context, userID string) ([]Friendship, error)

	// InsertFriendRequest fails with ErrDuplicate when a pending request exists for the
	// same ordered pair.
	InsertFriendRequest(ctx context.Context, fr *FriendRequest) error
	FindFriendRequest(ctx context.Context, id string) (*FriendRequest, error)
	FindPendingRequest(ctx context.Context, fromID, toID string) (*FriendRequest, error)
	// UpdateRequestStatus moves request id from status from to status to and reports
	// whether the swap happened; it is the only way a request changes state. Moving a
	// request back to pending clears its response time.
	UpdateRequestStatus(ctx context.Context, id string, from, to RequestStatus, at time.Time) (bool, error)
	ListPendingRequestsFor(ctx context.Context, userID string) ([]FriendRequest, error)
	CountPendingRequestsFor(ctx context.Context, userID string) (int64, error)
}

// Store is the full Persistence Store plus the Account Store.
type Store interface {
	Accounts
	Rooms
	Messages
	Friends

	Close() error
}

// DefaultRooms are seeded at startup and can never be deleted.
var DefaultRooms = []string{"Genel", "Teknoloji", "Spor", "Müzik", "Oyun"}

// IsDefaultRoom reports whether name is one of DefaultRooms.
func IsDefaultRoom(name string) bool {
	for _, r := range DefaultRooms {
		if r == name {
			return true
		}
	}
	return false
}

// SeedDefaultRooms inserts DefaultRooms, ignoring the ones that already exist.
func SeedDefaultRooms(ctx context.Context, rooms Rooms) error {
	for _, name := range DefaultRooms {
		err := rooms.InsertRoom(ctx, &Room{
			Name:      name,
			Kind:      RoomPublic,
			CreatedBy: "system",
			CreatedAt: time.Now(),
		})
		if err != nil && !errors.Is(err, ErrDuplicate) {
			return err
		}
	}
	return nil
}
