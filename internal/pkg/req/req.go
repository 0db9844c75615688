/*
Package req decodes HTTP request bodies into typed inputs.
*/
package req

import (
	"encoding/json"
	"net/http"
	"strings"

	"groupchat/internal/pkg/errs"
)

// MaxJSONBody caps the size of JSON request bodies.
const MaxJSONBody int64 = 64 << 10 // 64 KB

// BindJSON decodes a single JSON object from the request body into dst, rejecting
// unknown fields and trailing data.
func BindJSON(w http.ResponseWriter, r *http.Request, dst any) *errs.CustomError {
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		return errs.NewError(errs.ErrUnsupportedMediaType)
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxJSONBody)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		return errs.NewError(errs.ErrInvalidJSONFormat)
	}

	if decoder.More() {
		return errs.NewError(errs.ErrExtraContentInBody)
	}

	return nil
}
