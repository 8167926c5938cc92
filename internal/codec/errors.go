package codec

import (
	"errors"
	"fmt"
)

// CorruptSnapshotError reports bytes that are not a valid ledger database
// image.
type CorruptSnapshotError struct {
	// Reason is a short description of the failed check.
	Reason string

	// Err is the underlying driver error, if any.
	Err error
}

func (e *CorruptSnapshotError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("corrupt snapshot: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("corrupt snapshot: %s", e.Reason)
}

func (e *CorruptSnapshotError) Unwrap() error {
	return e.Err
}

// IsCorrupt reports whether err is a CorruptSnapshotError.
// Uses errors.As to handle wrapped errors.
func IsCorrupt(err error) bool {
	var ce *CorruptSnapshotError
	return errors.As(err, &ce)
}

func corrupt(reason string, err error) *CorruptSnapshotError {
	return &CorruptSnapshotError{Reason: reason, Err: err}
}
