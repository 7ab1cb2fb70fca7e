package store

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound reports a point lookup miss. Read operations return it
	// instead of failing for "no rows".
	ErrNotFound = errors.New("historydb: not found")
	// ErrInvalidState reports an operation not permitted for the entity's
	// current state or shape.
	ErrInvalidState = errors.New("historydb: invalid state")
	// ErrStoreUnavailable reports a transient backend failure. Callers own
	// the retry decision; append with a fixed message id, feedback updates,
	// and point lookups are all safe to retry.
	ErrStoreUnavailable = errors.New("historydb: store unavailable")
)

var errNotOpen = errors.New("store not opened; call store.Open first")

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, ErrStoreUnavailable, err)
}

func invalidState(format string, a ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidState, fmt.Sprintf(format, a...))
}

func notFound(what, id string) error {
	return fmt.Errorf("%w: %s %s", ErrNotFound, what, id)
}
