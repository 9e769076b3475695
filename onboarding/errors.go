package onboarding

import (
	"errors"
	"fmt"
)

type codedError struct {
	code string
	msg  string
}

func (e *codedError) Error() string { return e.msg }

// Code exposes a stable identifier for handler summaries.
func (e *codedError) Code() string { return e.code }

var (
	// ErrUnauthorized signals an admin decision from an identity outside the reviewer set.
	ErrUnauthorized error = &codedError{code: "UNAUTHORIZED", msg: "onboarding: sender is not a reviewer"}
	// ErrMalformedEvent signals an inbound event that cannot be resolved.
	ErrMalformedEvent error = &codedError{code: "MALFORMED_EVENT", msg: "onboarding: malformed event"}
)

// PersistenceError reports a store failure. Actions depending on the failed
// write are never dispatched.
type PersistenceError struct {
	Op     string
	UserID int64
	Err    error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("onboarding: %s user %d: %v", e.Op, e.UserID, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Code exposes a stable identifier for handler summaries.
func (e *PersistenceError) Code() string { return "PERSISTENCE" }

// DispatchError reports an action the transport did not accept.
type DispatchError struct {
	Action Action
	Err    error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("onboarding: dispatch %s to %d: %v", e.Action.Kind, e.Action.To, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// Code exposes a stable identifier for handler summaries.
func (e *DispatchError) Code() string { return "DISPATCH" }

// IsPersistence reports whether err carries a PersistenceError.
func IsPersistence(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}
