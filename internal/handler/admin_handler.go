package handler

import (
	"errors"
	"net/http"
	"time"

	"groupchat/internal/app/storage"
	"groupchat/internal/pkg/auth/jwt"
	"groupchat/internal/pkg/errs"
	"groupchat/internal/pkg/logx"
	"groupchat/internal/pkg/resp"
)

// ArchiveLinkExpiration is the lifetime of a presigned transcript URL.
const ArchiveLinkExpiration = 15 * time.Minute

// HandleArchiveDownload redirects an admin to a presigned URL of an archived transcript.
// The admin flag is read from the account store, not from the token.
func HandleArchiveDownload(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)

		isAdmin, err := deps.Store.IsAdmin(r.Context(), identity.UserID)
		if err != nil || !isAdmin {
			logx.Warn("archive_download: non-admin request", "user_id", identity.UserID)
			resp.RespondError(w, r, errs.NewError(errs.ErrAdminRequired))
			return
		}

		key := r.URL.Query().Get("key")
		if !storage.IsTranscriptKey(key) {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		url, err := deps.Archiver.PresignDownload(r.Context(), key, ArchiveLinkExpiration)
		if err != nil {
			if errors.Is(err, storage.ErrArchiveDisabled) {
				resp.RespondError(w, r, errs.NewError(errs.ErrArchiveNotFound))
				return
			}
			logx.Error(err, "archive_download: presign failed", "key", key)
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}

		http.Redirect(w, r, url, http.StatusFound)
	}
}
