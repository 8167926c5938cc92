package remote

import (
	"errors"
	"fmt"
)

// RemoteUnavailableError reports a network or service failure while talking
// to the backup slot.
type RemoteUnavailableError struct {
	Op      string // "get", "put" or "delete"
	Account string

	// StatusCode is the HTTP status, or 0 if no response was received.
	StatusCode int

	Err error
}

func (e *RemoteUnavailableError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("remote %s for account %q: status %d: %v", e.Op, e.Account, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("remote %s for account %q: %v", e.Op, e.Account, e.Err)
}

func (e *RemoteUnavailableError) Unwrap() error {
	return e.Err
}

// IsUnavailable reports whether err is a RemoteUnavailableError.
// Uses errors.As to handle wrapped errors.
func IsUnavailable(err error) bool {
	var re *RemoteUnavailableError
	return errors.As(err, &re)
}

func unavailable(op, account string, status int, err error) *RemoteUnavailableError {
	return &RemoteUnavailableError{Op: op, Account: account, StatusCode: status, Err: err}
}
