package jwt

import "github.com/golang-jwt/jwt"

// Payload is the claim set of a session token issued at login.
type Payload struct {
	jwt.StandardClaims

	// UserID is the stable account id derived from the email.
	UserID string `json:"uid"`

	// DisplayName is the username shown to other participants.
	DisplayName string `json:"name"`

	// IsAdmin mirrors the account's admin flag at issue time.
	IsAdmin bool `json:"adm,omitempty"`
}
