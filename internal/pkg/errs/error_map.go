package errs

import "net/http"

// errorMap holds the template for every code: kind, client message and HTTP status.
var errorMap = map[int]CustomError{
	// 1xxx
	ErrInvalidParams:        {Code: ErrInvalidParams, Kind: KindValidation, Message: "Invalid request parameters."},
	ErrUnsupportedMediaType: {Code: ErrUnsupportedMediaType, Kind: KindValidation, Message: "Unsupported request format.", Status: http.StatusUnsupportedMediaType},
	ErrInvalidJSONFormat:    {Code: ErrInvalidJSONFormat, Kind: KindValidation, Message: "Malformed JSON."},
	ErrExtraContentInBody:   {Code: ErrExtraContentInBody, Kind: KindValidation, Message: "Request contains unexpected data."},
	ErrRateLimitExceeded:    {Code: ErrRateLimitExceeded, Kind: KindValidation, Message: "Too many requests. Please slow down.", Status: http.StatusTooManyRequests},
	ErrUnknownEvent:         {Code: ErrUnknownEvent, Kind: KindValidation, Message: "Unsupported event type."},
	ErrInvalidIdentity:      {Code: ErrInvalidIdentity, Kind: KindValidation, Message: "Invalid user id or display name."},
	ErrNotRegistered:        {Code: ErrNotRegistered, Kind: KindValidation, Message: "Register the connection first."},
	ErrMessageTooLong:       {Code: ErrMessageTooLong, Kind: KindValidation, Message: "Message must be between 1 and %d characters."},
	ErrInvalidRoomName:      {Code: ErrInvalidRoomName, Kind: KindValidation, Message: "Invalid room name."},
	ErrInvalidGroupMembers:  {Code: ErrInvalidGroupMembers, Kind: KindValidation, Message: "A group needs two other, distinct members."},
	ErrSelfTarget:           {Code: ErrSelfTarget, Kind: KindValidation, Message: "You cannot do this with yourself."},

	// 2xxx
	ErrRoomNotFound:    {Code: ErrRoomNotFound, Kind: KindNotFound, Message: "Room not found.", Status: http.StatusNotFound},
	ErrRoomNotJoined:   {Code: ErrRoomNotJoined, Kind: KindNotFound, Message: "You have not joined this room."},
	ErrRoomExists:      {Code: ErrRoomExists, Kind: KindConflict, Message: "A room with this name already exists.", Status: http.StatusConflict},
	ErrRoomProtected:   {Code: ErrRoomProtected, Kind: KindConflict, Message: "This room is protected and cannot be deleted."},
	ErrRoomMembersOnly: {Code: ErrRoomMembersOnly, Kind: KindAuthorization, Message: "Only members can join this room.", Status: http.StatusForbidden},
	ErrArchiveNotFound: {Code: ErrArchiveNotFound, Kind: KindNotFound, Message: "Archive not found.", Status: http.StatusNotFound},

	// 3xxx
	ErrUnauthorized:       {Code: ErrUnauthorized, Kind: KindAuthorization, Message: "Please sign in to continue.", Status: http.StatusUnauthorized},
	ErrAdminRequired:      {Code: ErrAdminRequired, Kind: KindAuthorization, Message: "Admin privileges are required.", Status: http.StatusForbidden},
	ErrIdentityMismatch:   {Code: ErrIdentityMismatch, Kind: KindAuthorization, Message: "You can only act as yourself.", Status: http.StatusForbidden},
	ErrSessionKicked:      {Code: ErrSessionKicked, Kind: KindConflict, Message: "You were signed in from another connection."},
	ErrUserNotFound:       {Code: ErrUserNotFound, Kind: KindNotFound, Message: "User not found.", Status: http.StatusNotFound},
	ErrUserOffline:        {Code: ErrUserOffline, Kind: KindOfflineTarget, Message: "The user is offline or the id is wrong."},
	ErrUserAlreadyExists:  {Code: ErrUserAlreadyExists, Kind: KindConflict, Message: "Username or email is already taken.", Status: http.StatusConflict},
	ErrInvalidCredentials: {Code: ErrInvalidCredentials, Kind: KindAuthorization, Message: "Incorrect username or password.", Status: http.StatusUnauthorized},
	ErrInvalidPassword:    {Code: ErrInvalidPassword, Kind: KindValidation, Message: "Password must be at least 6 characters."},

	// 4xxx
	ErrAlreadyFriends:      {Code: ErrAlreadyFriends, Kind: KindConflict, Message: "You are already friends."},
	ErrRequestPending:      {Code: ErrRequestPending, Kind: KindConflict, Message: "A friend request is already pending."},
	ErrRequestNotAddressee: {Code: ErrRequestNotAddressee, Kind: KindAuthorization, Message: "This friend request is not addressed to you."},

	// 5xxx
	ErrUnknown:          {Code: ErrUnknown, Kind: KindInternal, Message: "Something went wrong. Please try again.", Status: http.StatusInternalServerError},
	ErrStoreUnavailable: {Code: ErrStoreUnavailable, Kind: KindInternal, Message: "Service temporarily unavailable.", Status: http.StatusServiceUnavailable},
}
