package chat

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"groupchat/internal/app/store"
	"groupchat/internal/app/user"
	"groupchat/internal/pkg/auth/jwt"
	"groupchat/internal/pkg/errs"
	"groupchat/internal/pkg/logx"
)

const (
	// MaxUserIDLength bounds a user id.
	MaxUserIDLength = 64

	// MaxDisplayNameLength bounds a display name, in runes.
	MaxDisplayNameLength = 50

	// StoreTimeout bounds every store call made by the chat core.
	StoreTimeout = 5 * time.Second
)

// storeContext derives the context used for a single store call.
func storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, StoreTimeout)
}

// ValidateUserID checks the shape of a user id. Ids are opaque but must be usable
// as a component of a derived room name.
func ValidateUserID(id string) error {
	if id == "" || len(id) > MaxUserIDLength || strings.Contains(id, nameSeparator) {
		return errs.NewError(errs.ErrInvalidIdentity)
	}
	for _, r := range id {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return errs.NewError(errs.ErrInvalidIdentity)
		}
	}
	return nil
}

// ValidateDisplayName checks a trimmed display name.
func ValidateDisplayName(name string) error {
	if n := utf8.RuneCountInString(name); n == 0 || n > MaxDisplayNameLength {
		return errs.NewError(errs.ErrInvalidIdentity)
	}
	return nil
}

// ValidateIdentity checks every field of an identity.
func ValidateIdentity(id user.Identity) error {
	if err := ValidateUserID(id.UserID); err != nil {
		return err
	}
	return ValidateDisplayName(id.DisplayName)
}

// IdentityResolver turns a register payload into a trusted Identity.
type IdentityResolver struct {
	accounts store.Accounts
	logger   zerolog.Logger
}

// NewIdentityResolver constructs an IdentityResolver backed by the Account Store.
func NewIdentityResolver(accounts store.Accounts) *IdentityResolver {
	return &IdentityResolver{
		accounts: accounts,
		logger:   logx.Component("IdentityResolver"),
	}
}

// Resolve validates p and decides the admin flag.
//
// When the connection carries a verified session token the payload must name the
// same user, and the admin flag comes from the token. Otherwise a claimed admin flag
// is only honored if the Account Store confirms it.
func (r *IdentityResolver) Resolve(ctx context.Context, p RegisterPayload, session *jwt.Payload) (user.Identity, error) {
	if err := p.Validate(); err != nil {
		return user.Identity{}, err
	}

	id := user.Identity{
		UserID:      p.UserID,
		DisplayName: p.DisplayName,
	}

	if session != nil {
		if session.UserID != p.UserID {
			return user.Identity{}, errs.NewError(errs.ErrIdentityMismatch)
		}
		id.IsAdmin = session.IsAdmin
		return id, nil
	}

	if p.IsAdmin {
		id.IsAdmin = r.isAdmin(ctx, p.UserID)
		if !id.IsAdmin {
			r.logger.Warn().Str("user_id", p.UserID).Msg("Unconfirmed admin claim ignored.")
		}
	}

	return id, nil
}

// isAdmin asks the Account Store, treating any failure as "not an admin".
func (r *IdentityResolver) isAdmin(ctx context.Context, userID string) bool {
	if r.accounts == nil {
		return false
	}

	ctx, cancel := storeContext(ctx)
	defer cancel()

	admin, err := r.accounts.IsAdmin(ctx, userID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			r.logger.Error().Err(err).Str("user_id", userID).Msg("Admin lookup failed.")
		}
		return false
	}
	return admin
}
