package engine

import (
	"errors"
	"fmt"

	"humantask/internal/engine/auth"
	"humantask/internal/engine/lifecycle"
	"humantask/internal/repo"
)

// ErrorKind classifies failures for callers on the other side of a transport.
type ErrorKind string

const (
	KindPermissionDenied   ErrorKind = "permission_denied"
	KindStatusPrecondition ErrorKind = "status_precondition"
	KindNotFound           ErrorKind = "not_found"
	KindNotApplicable      ErrorKind = "not_applicable"
	KindBadRequest         ErrorKind = "bad_request"
	KindConflict           ErrorKind = "conflict"
	KindTimeout            ErrorKind = "timeout"
	KindInternal           ErrorKind = "internal"
)

// ValidationError reports a malformed request.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// KindOf maps err onto an ErrorKind.
func KindOf(err error) ErrorKind {
	var pd auth.PermissionDeniedError
	var se lifecycle.StatusError
	var na lifecycle.NotApplicableError
	var ve ValidationError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &pd):
		return KindPermissionDenied
	case errors.As(err, &se):
		return KindStatusPrecondition
	case errors.As(err, &na):
		return KindNotApplicable
	case errors.As(err, &ve):
		return KindBadRequest
	case errors.Is(err, repo.ErrNotFound):
		return KindNotFound
	case errors.Is(err, repo.ErrConflict):
		return KindConflict
	}
	return KindInternal
}
