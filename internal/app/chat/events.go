/*
Package chat contains the real-time core: the connection registry, the room broadcast
engine, private/group room provisioning, the friend-request workflow with presence
fan-out, and admin-gated room deletion.

This file defines the event surface. Every inbound event carries a typed payload that
validates itself before any component sees it; every outbound event is wrapped in an
Envelope stamped with the server time.
*/
package chat

import (
	"strings"
	"time"
	"unicode/utf8"

	"groupchat/internal/app/store"
	"groupchat/internal/app/user"
	"groupchat/internal/pkg/errs"
)

// EventType names an inbound or outbound event.
type EventType string

// Inbound events.
const (
	EventRegister            EventType = "register"
	EventSendMessage         EventType = "sendMessage"
	EventJoinRoom            EventType = "joinRoom"
	EventLeaveRoom           EventType = "leaveRoom"
	EventStartPrivateChat    EventType = "startPrivateChat"
	EventCreateGroup         EventType = "createGroup"
	EventSendFriendRequest   EventType = "sendFriendRequest"
	EventAcceptFriendRequest EventType = "acceptFriendRequest"
	EventRejectFriendRequest EventType = "rejectFriendRequest"
	EventDeleteRoom          EventType = "deleteRoom"
)

// Outbound events.
const (
	EventRegistered            EventType = "registered"
	EventMessageReceived       EventType = "messageReceived"
	EventRoomProvisioned       EventType = "roomProvisioned"
	EventGroupProvisioned      EventType = "groupProvisioned"
	EventGroupProvisionFailed  EventType = "groupProvisionFailed"
	EventFriendRequestReceived EventType = "friendRequestReceived"
	EventFriendRequestSent     EventType = "friendRequestSent"
	EventFriendRequestAccepted EventType = "friendRequestAccepted"
	EventFriendRequestRejected EventType = "friendRequestRejected"
	EventFriendAdded           EventType = "friendAdded"
	EventRoomDeleted           EventType = "roomDeleted"
	EventRoomDeleteFailed      EventType = "roomDeleteFailed"
	EventRoomCreated           EventType = "roomCreated"
	EventPresenceChanged       EventType = "presenceChanged"
	EventSessionReplaced       EventType = "sessionReplaced"
	EventErrorMessage          EventType = "errorMessage"
)

const (
	// MaxMessageLength bounds the text of a chat message, in runes.
	MaxMessageLength = 500

	// MessageTimeLayout formats the wall-clock time shown next to a message.
	MessageTimeLayout = "15:04"

	// SystemUserID marks messages generated by the server.
	SystemUserID = "system"
)

// Envelope is the outbound wire format.
type Envelope struct {
	Type      EventType `json:"type"`
	Payload   any       `json:"payload,omitempty"`
	Timestamp int64     `json:"timestamp"`
}

// NewEnvelope stamps payload with the current time in unix milliseconds.
func NewEnvelope(t EventType, payload any) Envelope {
	return Envelope{
		Type:      t,
		Payload:   payload,
		Timestamp: time.Now().UnixMilli(),
	}
}

// ErrorPayload carries a failure back to the client. Only the kind and a readable
// reason cross the boundary.
type ErrorPayload struct {
	Code    int       `json:"code"`
	Kind    errs.Kind `json:"kind"`
	Message string    `json:"message"`
	Event   EventType `json:"event,omitempty"`
}

// NewErrorEnvelope converts err into an envelope of type t.
func NewErrorEnvelope(t EventType, event EventType, err error) Envelope {
	customErr := errs.From(err)
	return NewEnvelope(t, ErrorPayload{
		Code:    customErr.Code,
		Kind:    customErr.Kind,
		Message: customErr.Message,
		Event:   event,
	})
}

// --- inbound payloads ---

// RegisterPayload binds an identity to the connection.
type RegisterPayload struct {
	UserID      string `json:"userID"`
	DisplayName string `json:"displayName"`
	IsAdmin     bool   `json:"isAdmin"`
}

func (p *RegisterPayload) Validate() error {
	p.UserID = strings.TrimSpace(p.UserID)
	p.DisplayName = strings.TrimSpace(p.DisplayName)
	if err := ValidateUserID(p.UserID); err != nil {
		return err
	}
	return ValidateDisplayName(p.DisplayName)
}

// SendMessagePayload publishes text into a joined room.
type SendMessagePayload struct {
	DisplayName string `json:"displayName"`
	Text        string `json:"text"`
	Room        string `json:"room"`
}

func (p *SendMessagePayload) Validate() error {
	p.Text = strings.TrimSpace(p.Text)
	if n := utf8.RuneCountInString(p.Text); n == 0 || n > MaxMessageLength {
		return errs.NewError(errs.ErrMessageTooLong, MaxMessageLength)
	}
	if p.Room == "" {
		return errs.NewError(errs.ErrInvalidRoomName)
	}
	return nil
}

// RoomPayload is shared by joinRoom and leaveRoom.
type RoomPayload struct {
	Room        string `json:"room"`
	DisplayName string `json:"displayName"`
}

func (p *RoomPayload) Validate() error {
	p.DisplayName = strings.TrimSpace(p.DisplayName)
	if p.Room == "" {
		return errs.NewError(errs.ErrInvalidRoomName)
	}
	return nil
}

// StartPrivateChatPayload asks for a private room with an online user.
type StartPrivateChatPayload struct {
	FromID      string `json:"fromID"`
	ToID        string `json:"toID"`
	DisplayName string `json:"displayName"`
}

func (p *StartPrivateChatPayload) Validate() error {
	p.ToID = strings.TrimSpace(p.ToID)
	return ValidateUserID(p.ToID)
}

// CreateGroupPayload asks for a three-member group room.
type CreateGroupPayload struct {
	Label       string `json:"label"`
	User1ID     string `json:"user1ID"`
	User2ID     string `json:"user2ID"`
	CreatorID   string `json:"creatorID"`
	CreatorName string `json:"creatorName"`
}

func (p *CreateGroupPayload) Validate() error {
	p.Label = strings.TrimSpace(p.Label)
	p.User1ID = strings.TrimSpace(p.User1ID)
	p.User2ID = strings.TrimSpace(p.User2ID)
	if err := ValidateGroupLabel(p.Label); err != nil {
		return err
	}
	if ValidateUserID(p.User1ID) != nil || ValidateUserID(p.User2ID) != nil {
		return errs.NewError(errs.ErrInvalidGroupMembers)
	}
	return nil
}

// SendFriendRequestPayload proposes a friendship.
type SendFriendRequestPayload struct {
	FromID   string `json:"fromID"`
	FromName string `json:"fromName"`
	ToID     string `json:"toID"`
}

func (p *SendFriendRequestPayload) Validate() error {
	p.ToID = strings.TrimSpace(p.ToID)
	return ValidateUserID(p.ToID)
}

// FriendRequestActionPayload is shared by acceptFriendRequest and rejectFriendRequest.
// FromID is the original sender and ToID the responding user.
type FriendRequestActionPayload struct {
	RequestID string `json:"requestID"`
	FromID    string `json:"fromID"`
	ToID      string `json:"toID"`
}

func (p *FriendRequestActionPayload) Validate() error {
	if strings.TrimSpace(p.RequestID) == "" {
		return errs.NewError(errs.ErrInvalidParams)
	}
	return nil
}

// DeleteRoomPayload asks an admin-only deletion of a public room.
type DeleteRoomPayload struct {
	RoomName    string `json:"roomName"`
	RequesterID string `json:"requesterID"`
}

func (p *DeleteRoomPayload) Validate() error {
	if p.RoomName == "" {
		return errs.NewError(errs.ErrInvalidRoomName)
	}
	return nil
}

// --- outbound payloads ---

// RegisteredPayload confirms a registration.
type RegisteredPayload struct {
	user.Identity
	ConnectionID string `json:"connectionID"`
}

// MessagePayload is a chat message as seen by clients.
type MessagePayload struct {
	ID          string `json:"id"`
	Room        string `json:"room"`
	UserID      string `json:"userID"`
	DisplayName string `json:"displayName"`
	Text        string `json:"text"`
	Private     bool   `json:"private"`
	Group       bool   `json:"group"`
	System      bool   `json:"system,omitempty"`
	Time        string `json:"time"`
}

func messagePayload(m store.Message, system bool) MessagePayload {
	return MessagePayload{
		ID:          m.ID,
		Room:        m.Room,
		UserID:      m.UserID,
		DisplayName: m.DisplayName,
		Text:        m.Text,
		Private:     m.Private,
		Group:       m.Group,
		System:      system,
		Time:        m.Timestamp,
	}
}

// RoomProvisionedPayload announces a private room. Peer is the other participant.
type RoomProvisionedPayload struct {
	Room     string         `json:"room"`
	Kind     store.RoomKind `json:"kind"`
	PeerID   string         `json:"peerID"`
	PeerName string         `json:"peerName"`
}

// Member is one participant of a group room.
type Member struct {
	UserID      string `json:"userID"`
	DisplayName string `json:"displayName"`
}

// GroupProvisionedPayload announces a group room to each member.
type GroupProvisionedPayload struct {
	Room      string         `json:"room"`
	Kind      store.RoomKind `json:"kind"`
	Label     string         `json:"label"`
	CreatorID string         `json:"creatorID"`
	Members   []Member       `json:"members"`
}

// FriendRequestPayload describes a pending request.
type FriendRequestPayload struct {
	RequestID string    `json:"requestID"`
	FromID    string    `json:"fromID"`
	FromName  string    `json:"fromName"`
	ToID      string    `json:"toID"`
	ToName    string    `json:"toName"`
	CreatedAt time.Time `json:"createdAt"`
}

func friendRequestPayload(fr *store.FriendRequest) FriendRequestPayload {
	return FriendRequestPayload{
		RequestID: fr.ID,
		FromID:    fr.FromID,
		FromName:  fr.FromName,
		ToID:      fr.ToID,
		ToName:    fr.ToName,
		CreatedAt: fr.CreatedAt,
	}
}

// FriendPayload names the other side of a friendship change.
type FriendPayload struct {
	RequestID   string `json:"requestID,omitempty"`
	UserID      string `json:"userID"`
	DisplayName string `json:"displayName"`
	Online      bool   `json:"online"`
}

// PresencePayload reports a friend going online or offline.
type PresencePayload struct {
	UserID      string `json:"userID"`
	DisplayName string `json:"displayName"`
	Online      bool   `json:"online"`
}

// RoomDeletedPayload tells clients to drop a room.
type RoomDeletedPayload struct {
	Room       string `json:"room"`
	DeletedBy  string `json:"deletedBy"`
	ArchiveKey string `json:"archiveKey,omitempty"`
}
