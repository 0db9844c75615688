/*
Package errs provides the application error type and its code table.

Every code belongs to one taxonomy Kind. Only the kind, code and the human-readable
message ever reach a client; wrapped causes stay on the server side.
*/
package errs

// 1xxx: Request and payload validation
const (
	// ErrInvalidParams indicates that request parameter validation failed.
	ErrInvalidParams = 1001

	// ErrUnsupportedMediaType indicates that the request Content-Type is not supported.
	ErrUnsupportedMediaType = 1002

	// ErrInvalidJSONFormat indicates that the request body is not valid JSON.
	ErrInvalidJSONFormat = 1003

	// ErrExtraContentInBody indicates trailing data after the JSON body.
	ErrExtraContentInBody = 1004

	// ErrRateLimitExceeded indicates that the caller is sending too fast.
	ErrRateLimitExceeded = 1007

	// ErrUnknownEvent indicates an inbound realtime event type the server does not handle.
	ErrUnknownEvent = 1101

	// ErrInvalidIdentity indicates a malformed register payload.
	ErrInvalidIdentity = 1102

	// ErrNotRegistered indicates an event that requires a registered identity.
	ErrNotRegistered = 1103

	// ErrMessageTooLong indicates that chat text exceeded the allowed size.
	ErrMessageTooLong = 1104

	// ErrInvalidRoomName indicates an empty, oversized or reserved room name.
	ErrInvalidRoomName = 1105

	// ErrInvalidGroupMembers indicates a group whose members are not three distinct users.
	ErrInvalidGroupMembers = 1106

	// ErrSelfTarget indicates a private chat or friend request addressed to oneself.
	ErrSelfTarget = 1107
)

// 2xxx: Rooms
const (
	// ErrRoomNotFound indicates that the room does not exist.
	ErrRoomNotFound = 2103

	// ErrRoomNotJoined indicates a publish into a room the connection has not joined.
	ErrRoomNotJoined = 2104

	// ErrRoomExists indicates that a room with the same name already exists.
	ErrRoomExists = 2105

	// ErrRoomProtected indicates a deletion attempt on a default, private or group room.
	ErrRoomProtected = 2106

	// ErrRoomMembersOnly indicates a join attempt on a private or group room by a non-member.
	ErrRoomMembersOnly = 2107

	// ErrArchiveNotFound indicates an unknown transcript key or a disabled archive.
	ErrArchiveNotFound = 2108
)

// 3xxx: Users, sessions, presence
const (
	// ErrUnauthorized indicates that the request needs a signed-in user.
	ErrUnauthorized = 3001

	// ErrAdminRequired indicates a privileged action by a non-admin.
	ErrAdminRequired = 3002

	// ErrIdentityMismatch indicates an event acting on behalf of another user id.
	ErrIdentityMismatch = 3003

	// ErrSessionKicked indicates the connection was replaced by a newer registration.
	ErrSessionKicked = 3004

	// ErrUserNotFound indicates an unknown account.
	ErrUserNotFound = 3005

	// ErrUserOffline indicates that the addressed user has no live connection.
	ErrUserOffline = 3006

	// ErrUserAlreadyExists indicates a duplicate username or email at registration.
	ErrUserAlreadyExists = 3007

	// ErrInvalidCredentials indicates a failed login.
	ErrInvalidCredentials = 3008

	// ErrInvalidPassword indicates a password that does not meet the length rule.
	ErrInvalidPassword = 3009
)

// 4xxx: Friendship workflow
const (
	// ErrAlreadyFriends indicates that a friendship edge already exists.
	ErrAlreadyFriends = 4001

	// ErrRequestPending indicates a pending request for the same ordered pair.
	ErrRequestPending = 4002

	// ErrRequestNotAddressee indicates an accept/reject by someone other than the addressee.
	ErrRequestNotAddressee = 4003
)

// 5xxx: Internal
const (
	// ErrUnknown represents an unclassified internal error.
	ErrUnknown = 5000

	// ErrStoreUnavailable indicates that the persistence store failed.
	ErrStoreUnavailable = 5001
)
