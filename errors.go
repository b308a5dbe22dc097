package bifrost

import (
	"errors"
	"fmt"
)

var (
	// ErrLoadFailed is returned when a session lookup fails in Load.
	ErrLoadFailed = errors.New("bifrost: could not load session data")

	// ErrSaveFailed is returned when Save cannot look up or persist a session.
	ErrSaveFailed = errors.New("bifrost: could not save session data")

	// ErrTouchFailed is returned when Touch cannot look up or persist a session.
	ErrTouchFailed = errors.New("bifrost: could not touch session data")

	// ErrDeleteFailed is returned when Delete cannot look up or expire a session.
	ErrDeleteFailed = errors.New("bifrost: could not delete session data")

	// ErrStoreClosed is returned by operations on a closed SessionStore.
	ErrStoreClosed = errors.New("bifrost: store is closed")
)

// DecodingError is returned when a persisted row cannot be turned back into
// a Record.
type DecodingError struct {
	Field string
	Err   error
}

func (e *DecodingError) Error() string {
	return fmt.Sprintf("bifrost: cannot decode field %q: %v", e.Field, e.Err)
}

func (e *DecodingError) Unwrap() error {
	return e.Err
}

// opError wraps cause so that errors.Is matches both kind and cause.
func opError(kind, cause error) error {
	return fmt.Errorf("%w: %w", kind, cause)
}
