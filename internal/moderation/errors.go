package moderation

import (
	"errors"
	"fmt"
)

// Errors returned by the engine. Callers match them with errors.Is.
var (
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("conflict")
	ErrAlreadyProcessed = errors.New("already processed")
	ErrAlreadyClosed    = errors.New("review session already closed")
	ErrSessionClosed    = errors.New("session closed")
	ErrInvalidCategory  = errors.New("invalid report category")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrPermissionDenied = errors.New("permission denied")
	ErrUpstream         = errors.New("upstream failure")

	ErrDuplicateReport = fmt.Errorf("%w: a pending report for this content already exists", ErrConflict)
	ErrSessionOpen     = fmt.Errorf("%w: content already has an open review session", ErrConflict)
	ErrAlreadyExtended = fmt.Errorf("%w: review session already extended", ErrAlreadyProcessed)
)

// ErrStale is returned by Store compare-and-set writes when the row no longer
// matches the expected state (someone else resolved, closed or extended it).
var ErrStale = errors.New("stale write")

// upstream wraps a Content Store or Identity service failure.
func upstream(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUpstream, err)
}

// invalidArg builds an ErrInvalidArgument with a message.
func invalidArg(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}
