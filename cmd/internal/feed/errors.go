package feed

import (
	"errors"
	"fmt"
)

var (
	// ErrSourceUnavailable reports that the paged source could not serve a batch.
	// The assembler absorbs it and ends the page early.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrInvalidCursor reports a cursor that is malformed, tampered with, or
	// minted under a different sort configuration. Callers restart from a nil cursor.
	ErrInvalidCursor = errors.New("invalid cursor")

	// ErrLookupFailed reports that the consumer's seen-set could not be loaded.
	ErrLookupFailed = errors.New("seen-set lookup failed")

	// ErrInvalidSort reports a sort configuration that fails validation.
	ErrInvalidSort = errors.New("invalid sort config")

	// ErrInvalidPageSize reports a page size outside [1, MaxPageSize].
	ErrInvalidPageSize = errors.New("invalid page size")
)

// OpError is a typed operation error with a stable Op + Kind contract for callers/tests.
// Kind is one of the sentinels above; Err carries the underlying cause when there is one.
type OpError struct {
	Op   string
	Kind error
	Msg  string
	Err  error
}

func (e OpError) Error() string {
	s := fmt.Sprintf("%s: %v", e.Op, e.Kind)
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e OpError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// IsInvalidCursor reports whether err represents ErrInvalidCursor.
func IsInvalidCursor(err error) bool { return errors.Is(err, ErrInvalidCursor) }

// IsLookupFailed reports whether err represents ErrLookupFailed.
func IsLookupFailed(err error) bool { return errors.Is(err, ErrLookupFailed) }

// IsSourceUnavailable reports whether err represents ErrSourceUnavailable.
func IsSourceUnavailable(err error) bool { return errors.Is(err, ErrSourceUnavailable) }
