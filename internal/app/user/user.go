/*
Package user contains the identity attached to a live chat connection.

An Identity is produced by the chat package's identity resolution when a connection
registers, and is cached read-only for the lifetime of that registration.
*/
package user

// Identity is the validated user information bound to a registered connection.
// Fields use JSON tags for serialization in WebSocket messages.
type Identity struct {

	// UserID is the stable id derived from the account email.
	UserID string `json:"userID"`

	// DisplayName is the name shown to other participants.
	DisplayName string `json:"displayName"`

	// IsAdmin grants room deletion.
	IsAdmin bool `json:"isAdmin"`
}

// IsZero reports whether the identity is unset.
func (i Identity) IsZero() bool {
	return i.UserID == ""
}
