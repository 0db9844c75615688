/*
Package randx derives and generates identifiers.

User ids are derived deterministically from the account email so that the same
person always maps to the same id. Records created at runtime (messages, friend
requests, archive objects) get UUID v4 ids.
*/
package randx

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
)

// UserIDLength is the number of hex characters kept from the email digest.
const UserIDLength = 8

// NormalizeEmail trims and lower-cases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// UserID returns the stable user id for an email: the first UserIDLength
// upper-case hex characters of SHA-256 over the normalized address.
func UserID(email string) string {
	sum := sha256.Sum256([]byte(NormalizeEmail(email)))
	return strings.ToUpper(hex.EncodeToString(sum[:]))[:UserIDLength]
}

// MessageID generates a UUID v4 string for a chat message.
func MessageID() string {
	return uuid.New().String()
}

// RequestID generates a UUID v4 string for a friend request.
func RequestID() string {
	return uuid.New().String()
}

// IsValidUUID reports whether s parses as a UUID.
func IsValidUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
