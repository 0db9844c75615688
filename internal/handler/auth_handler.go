/*
Package handler provides HTTP handler functions for user authentication and management.
*/
package handler

import (
	"errors"
	"net/http"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"

	"groupchat/internal/app/store"
	"groupchat/internal/pkg/auth/jwt"
	"groupchat/internal/pkg/errs"
	"groupchat/internal/pkg/logx"
	"groupchat/internal/pkg/randx"
	"groupchat/internal/pkg/req"
	"groupchat/internal/pkg/resp"
)

const (
	MaxUsernameLength = 20
	MinPasswordLength = 6
	MaxPasswordLength = 72
)

type RegisterInput struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate normalizes the input and checks every field.
func (in *RegisterInput) Validate() *errs.CustomError {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = randx.NormalizeEmail(in.Email)

	if in.Username == "" || utf8.RuneCountInString(in.Username) > MaxUsernameLength {
		return errs.NewError(errs.ErrInvalidParams)
	}
	if addr, err := mail.ParseAddress(in.Email); err != nil || addr.Address != in.Email {
		return errs.NewError(errs.ErrInvalidParams)
	}

	passwordLen := utf8.RuneCountInString(in.Password)
	if passwordLen < MinPasswordLength || len(in.Password) > MaxPasswordLength {
		return errs.NewError(errs.ErrInvalidPassword)
	}
	return nil
}

// HandleRegister creates an account. The user id is derived from the email, and the
// account is an admin when the email matches the configured admin address.
func HandleRegister(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input RegisterInput
		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		if customErr := input.Validate(); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		hashedPassword, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
		if err != nil {
			logx.Error(err, "register: password hashing failed")
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}

		user := &store.User{
			UserID:       randx.UserID(input.Email),
			Username:     input.Username,
			Email:        input.Email,
			PasswordHash: string(hashedPassword),
			IsAdmin:      deps.Config.AdminEmail != "" && input.Email == deps.Config.AdminEmail,
			CreatedAt:    time.Now(),
		}

		if err := deps.Store.CreateUser(r.Context(), user); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				logx.Warn("registration conflict: username or email already exists", "username", input.Username)
				resp.RespondError(w, r, errs.NewError(errs.ErrUserAlreadyExists))
				return
			}

			logx.Error(err, "failed to create user")
			resp.RespondError(w, r, errs.NewError(errs.ErrStoreUnavailable))
			return
		}

		logx.Info("User registered", "user_id", user.UserID, "is_admin", user.IsAdmin)

		resp.RespondSuccess(w, r, map[string]any{
			"user": user,
		})
	}
}

type LoginInput struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// HandleLogin verifies user credentials and issues a session token.
func HandleLogin(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input LoginInput
		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		input.Username = strings.TrimSpace(input.Username)
		if input.Username == "" || input.Password == "" {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		user, err := deps.Store.FindUserByName(r.Context(), input.Username)
		if err != nil {
			if !errors.Is(err, store.ErrNotFound) {
				logx.Error(err, "login: user lookup failed")
				resp.RespondError(w, r, errs.NewError(errs.ErrStoreUnavailable))
				return
			}
			logx.Warn("login: unknown username", "username", input.Username)
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidCredentials))
			return
		}

		if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.Password)); err != nil {
			logx.Warn("login: password mismatch", "username", input.Username)
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidCredentials))
			return
		}

		payload := &jwt.Payload{
			UserID:      user.UserID,
			DisplayName: user.Username,
			IsAdmin:     user.IsAdmin,
		}

		token, err := jwt.GenerateToken(payload, deps.Config.JWTSecret, jwt.SessionExpiration)
		if err != nil {
			logx.Error(err, "login: jwt generation failed")
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}

		logx.Info("User logged in", "user_id", user.UserID)

		resp.RespondSuccess(w, r, map[string]any{
			"token": token,
			"user":  user,
		})
	}
}

// HandleGetUserProfile returns the account behind the session token.
func HandleGetUserProfile(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)

		user, err := deps.Store.FindUserByID(r.Context(), identity.UserID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				logx.Warn("get_user_profile: user not found", "user_id", identity.UserID)
				resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
				return
			}
			logx.Error(err, "get_user_profile: lookup failed", "user_id", identity.UserID)
			resp.RespondError(w, r, errs.NewError(errs.ErrStoreUnavailable))
			return
		}

		resp.RespondSuccess(w, r, map[string]any{
			"user":   user,
			"online": deps.Hub.Registry().IsOnline(user.UserID),
		})
	}
}
