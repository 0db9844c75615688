package chat

import (
	"sort"
	"strings"
	"unicode/utf8"

	"groupchat/internal/app/store"
	"groupchat/internal/pkg/errs"
)

const (
	// PrivatePrefix starts every private room name.
	PrivatePrefix = "private:"

	// GroupPrefix starts every group room name.
	GroupPrefix = "group:"

	// nameSeparator joins the parts of a derived room name. User ids and group
	// labels may not contain it.
	nameSeparator = ":"

	// MaxRoomNameLength bounds public room names and group labels, in runes.
	MaxRoomNameLength = 30
)

// PrivateRoomName returns the canonical name of the private room between a and b.
// The result does not depend on argument order.
func PrivateRoomName(a, b string) string {
	ids := []string{a, b}
	sort.Strings(ids)
	return PrivatePrefix + strings.Join(ids, nameSeparator)
}

// GroupRoomName returns the canonical name of a three-member group room.
// The member ids are sorted, so any ordering of the same participants yields the same name.
func GroupRoomName(label, creator, memberA, memberB string) string {
	ids := []string{creator, memberA, memberB}
	sort.Strings(ids)
	return GroupPrefix + label + nameSeparator + strings.Join(ids, nameSeparator)
}

// KindOf classifies a room name.
func KindOf(name string) store.RoomKind {
	switch {
	case strings.HasPrefix(name, PrivatePrefix):
		return store.RoomPrivate
	case strings.HasPrefix(name, GroupPrefix):
		return store.RoomGroup
	default:
		return store.RoomPublic
	}
}

// IsProtectedRoom reports whether a room can never be deleted: the default rooms
// and every private or group room.
func IsProtectedRoom(name string) bool {
	return store.IsDefaultRoom(name) || KindOf(name) != store.RoomPublic
}

// ValidatePublicRoomName checks a user-chosen public room name.
func ValidatePublicRoomName(name string) error {
	if name == "" || utf8.RuneCountInString(name) > MaxRoomNameLength {
		return errs.NewError(errs.ErrInvalidRoomName)
	}
	if strings.Contains(name, nameSeparator) || KindOf(name) != store.RoomPublic {
		return errs.NewError(errs.ErrInvalidRoomName)
	}
	return nil
}

// ValidateGroupLabel checks the free-text label of a group room.
func ValidateGroupLabel(label string) error {
	if label == "" || utf8.RuneCountInString(label) > MaxRoomNameLength || strings.Contains(label, nameSeparator) {
		return errs.NewError(errs.ErrInvalidRoomName)
	}
	return nil
}
