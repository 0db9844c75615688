package store

import "time"

// RoomKind tags a room with its naming class.
type RoomKind string

const (
	RoomPublic  RoomKind = "public"
	RoomPrivate RoomKind = "private"
	RoomGroup   RoomKind = "group"
)

// RequestStatus is the state of a friend request.
type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestAccepted RequestStatus = "accepted"
	RequestRejected RequestStatus = "rejected"
)

// User is an account record owned by the Account Store.
type User struct {
	UserID       string    `json:"userId"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	IsAdmin      bool      `json:"isAdmin"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Room is a durable room record. Members is only set for private and group rooms.
type Room struct {
	Name        string    `json:"name"`
	DisplayName string    `json:"displayName,omitempty"`
	Kind        RoomKind  `json:"kind"`
	Members     []string  `json:"members,omitempty"`
	CreatedBy   string    `json:"createdBy"`
	CreatedAt   time.Time `json:"createdAt"`
}

// HasMember reports whether userID belongs to the room's fixed member set.
func (r *Room) HasMember(userID string) bool {
	for _, m := range r.Members {
		if m == userID {
			return true
		}
	}
	return false
}

// Message is a persisted chat message.
type Message struct {
	ID          string    `json:"id"`
	Room        string    `json:"room"`
	UserID      string    `json:"userId"`
	DisplayName string    `json:"displayName"`
	Text        string    `json:"text"`
	Private     bool      `json:"private"`
	Group       bool      `json:"group"`
	Timestamp   string    `json:"timestamp"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Friendship is an unordered edge, stored with UserA < UserB.
type Friendship struct {
	UserA     string    `json:"userA"`
	UserB     string    `json:"userB"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewFriendship orders the pair so both directions map to the same record.
func NewFriendship(a, b string, at time.Time) Friendship {
	if b < a {
		a, b = b, a
	}
	return Friendship{UserA: a, UserB: b, CreatedAt: at}
}

// Other returns the side of the edge that is not userID.
func (f Friendship) Other(userID string) string {
	if f.UserA == userID {
		return f.UserB
	}
	return f.UserA
}

// FriendRequest is a directional proposal to create a Friendship.
type FriendRequest struct {
	ID          string        `json:"id"`
	FromID      string        `json:"fromId"`
	FromName    string        `json:"fromName"`
	ToID        string        `json:"toId"`
	ToName      string        `json:"toName"`
	Status      RequestStatus `json:"status"`
	CreatedAt   time.Time     `json:"createdAt"`
	RespondedAt *time.Time    `json:"respondedAt,omitempty"`
}
