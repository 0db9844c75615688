package errs

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"groupchat/internal/pkg/logx"
)

// Kind is the error taxonomy visible to clients.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindNotFound      Kind = "not_found"
	KindConflict      Kind = "conflict"
	KindAuthorization Kind = "authorization"
	KindOfflineTarget Kind = "offline_target"
	KindInternal      Kind = "internal"
)

// CustomError is the error type returned by every business operation.
type CustomError struct {
	// Code is the business error code (see error_codes.go).
	Code int

	// Kind is the taxonomy bucket of Code.
	Kind Kind

	// Message is the client-facing description.
	Message string

	// Status is the HTTP status used when the error is returned over REST.
	Status int
}

// Error implements the error interface.
func (e CustomError) Error() string {
	return fmt.Sprintf("%s error %d (HTTP %d): %s", e.Kind, e.Code, e.Status, e.Message)
}

// Is matches another *CustomError with the same code, so errors.Is works against
// values built with NewError.
func (e *CustomError) Is(target error) bool {
	var other *CustomError
	if errors.As(target, &other) {
		return other.Code == e.Code
	}
	return false
}

// NewError builds a *CustomError from the code table. details format the message when
// the template has placeholders; for ErrUnknown the first detail may be the underlying
// error, which is logged and never exposed.
func NewError(code int, details ...any) *CustomError {
	templateErr, ok := errorMap[code]
	if !ok {
		logx.Error(
			fmt.Errorf("unknown error code %d", code),
			"Unknown error code requested",
			"requested_code", code,
		)
		unknown := errorMap[ErrUnknown]
		return &unknown
	}

	customErr := templateErr
	if customErr.Status == 0 {
		customErr.Status = http.StatusBadRequest
	}

	if len(details) == 0 {
		return &customErr
	}

	if customErr.Kind == KindInternal {
		if cause, ok := details[0].(error); ok {
			logx.Error(cause, "Internal error", "code", code)
		}
		return &customErr
	}

	if strings.Contains(customErr.Message, "%") {
		customErr.Message = fmt.Sprintf(customErr.Message, details...)
	}

	return &customErr
}

// KindOf returns the taxonomy kind of err, KindInternal for foreign errors.
func KindOf(err error) Kind {
	var customErr *CustomError
	if errors.As(err, &customErr) {
		return customErr.Kind
	}
	return KindInternal
}

// From converts any error to a *CustomError, hiding the detail of foreign errors.
func From(err error) *CustomError {
	if err == nil {
		return nil
	}
	var customErr *CustomError
	if errors.As(err, &customErr) {
		return customErr
	}
	return NewError(ErrUnknown, err)
}

// HasCode reports whether err is a *CustomError with the given code.
func HasCode(err error, code int) bool {
	var customErr *CustomError
	return errors.As(err, &customErr) && customErr.Code == code
}
