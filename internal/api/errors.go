package api

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidToken is returned before any network call when the token is
	// empty or a placeholder value.
	ErrInvalidToken = errors.New("invalid or missing token")
	// ErrMissingToken is returned when a successful login carries no token.
	ErrMissingToken = errors.New("missing token")
)

// AuthError reports a failed login, registration or current-user lookup.
// Status is 0 when no response was received.
type AuthError struct {
	Op     string
	Status int
	Detail string
	Err    error
}

func (e *AuthError) Error() string {
	switch {
	case e.Detail != "":
		return fmt.Sprintf("%s failed: %s", e.Op, e.Detail)
	case e.Err != nil:
		return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("%s failed with status %d", e.Op, e.Status)
	}
}

func (e *AuthError) Unwrap() error { return e.Err }

// MessageError reports a failed history fetch or send. Callers decide
// whether to degrade or to show it.
type MessageError struct {
	Op     string
	Status int
	Err    error
}

func (e *MessageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: unexpected status %d", e.Op, e.Status)
}

func (e *MessageError) Unwrap() error { return e.Err }
