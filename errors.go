package surgecache

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound: the entity is absent in the backing store, including hits
	// on a confirmed-absent tombstone. Terminal; do not retry.
	ErrNotFound = errors.New("surgecache: not found")

	// ErrLockUnavailable: the rebuild lock stayed contended past the retry
	// ceiling. Transient; the caller should report temporarily-unavailable.
	ErrLockUnavailable = errors.New("surgecache: lock unavailable")
)

// StoreError reports that the shared store or the backing store could not be
// reached. It is never folded into ErrNotFound.
type StoreError struct {
	Op  string // "get", "set", "del", "load", "lock"
	Key string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("surgecache: %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }
