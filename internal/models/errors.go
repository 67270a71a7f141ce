package models

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by the session, agent, dispatch and messaging
// packages. Callers match them with errors.Is.
var (
	ErrNotFound           = errors.New("not found")
	ErrAccessDenied       = errors.New("access denied")
	ErrAlreadyClaimed     = errors.New("session already claimed")
	ErrCapacityExceeded   = errors.New("agent capacity exceeded")
	ErrSessionNotActive   = errors.New("session not active")
	ErrAlreadyClosed      = errors.New("session already closed")
	ErrSessionAlreadyOpen = errors.New("requester already has an open session")
	ErrUnknownAgent       = errors.New("unknown agent")
	ErrCapacityBelowLoad  = errors.New("capacity below current load")
	ErrSelfAssignment     = errors.New("agent cannot serve own session")
)

// SessionAlreadyOpenError carries the id of the requester's existing open
// session.
type SessionAlreadyOpenError struct {
	SessionID string
}

func (e *SessionAlreadyOpenError) Error() string {
	return fmt.Sprintf("%s: %s", ErrSessionAlreadyOpen, e.SessionID)
}

func (e *SessionAlreadyOpenError) Is(target error) bool {
	return target == ErrSessionAlreadyOpen
}
