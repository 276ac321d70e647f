// Package drafterr defines the error taxonomy shared by the draft engine.
package drafterr

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrUnauthorized is returned when an access token is missing or invalid.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidInput is returned for arguments outside a function's domain.
	ErrInvalidInput = errors.New("invalid input")
	// ErrInvalidCatchupToken is returned when a catch-up cursor names an event the
	// league's server-originated log does not contain.
	ErrInvalidCatchupToken = errors.New("invalid catch-up token")
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")
)

// RejectedError is a pick that failed validation. It is surfaced to the
// requesting client only.
type RejectedError struct {
	Reason string
}

func (e *RejectedError) Error() string {
	return "pick rejected: " + e.Reason
}

// Rejected builds a RejectedError.
func Rejected(reason string) error {
	return &RejectedError{Reason: reason}
}

// InvalidStateError is a lifecycle transition attempted from a state that does
// not allow it. Callers treat it as a benign race with a concurrent invocation.
type InvalidStateError struct {
	LeagueID uuid.UUID
	State    string
	Op       string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("%s not allowed for league %s in state %s", e.Op, e.LeagueID, e.State)
}

// IsRejected reports whether err is a pick rejection and returns its reason.
func IsRejected(err error) (string, bool) {
	var rej *RejectedError
	if errors.As(err, &rej) {
		return rej.Reason, true
	}
	return "", false
}

// IsInvalidState reports whether err is an InvalidStateError.
func IsInvalidState(err error) bool {
	var ise *InvalidStateError
	return errors.As(err, &ise)
}
