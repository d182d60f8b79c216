package state

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound matches any *NotFoundError.
	ErrNotFound = errors.New("session not found")
	// ErrNoCurrentRecord is returned by operations that need a current record.
	ErrNoCurrentRecord = errors.New("no current session record")
	// ErrInvalidSessionID rejects IDs that are not storage-safe.
	ErrInvalidSessionID = errors.New("invalid session id")
)

// PersistenceError reports a failed primary write. Report carries the
// outcome of every location in the round.
type PersistenceError struct {
	SessionID string
	Report    WriteReport
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist session %s: %v", e.SessionID, e.Report.Err())
}

func (e *PersistenceError) Unwrap() error {
	return e.Report.primaryErr()
}

// NotFoundError reports a restore target with no primary record.
type NotFoundError struct {
	SessionID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("session %s not found", e.SessionID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// CorruptRecordError reports a primary record that cannot be decoded into
// a StateRecord.
type CorruptRecordError struct {
	SessionID string
	Err       error
}

func (e *CorruptRecordError) Error() string {
	return fmt.Sprintf("session %s is corrupt: %v", e.SessionID, e.Err)
}

func (e *CorruptRecordError) Unwrap() error {
	return e.Err
}
