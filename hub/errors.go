//
// Copyright (C) 2026 Open-Harness. All rights reserved.
//
// open-harness is licensed under the Apache License Version 2.0.
//
//

package hub

import (
	"errors"
	"fmt"
)

// Errors.
var (
	// ErrExecutionActive is returned by Start while an execution is running
	// or paused; one hub drives exactly one execution at a time.
	ErrExecutionActive = errors.New("an execution is already active")
	// ErrMessageRequired is returned by Resume when no message is supplied;
	// the downstream agent call needs input to continue the conversation.
	ErrMessageRequired = errors.New("resume message is required")
)

// SessionNotFoundError is returned by Resume when no paused session exists
// for the given id.
type SessionNotFoundError struct {
	SessionID string
}

// Error implements the error interface.
func (e *SessionNotFoundError) Error() string {
	return fmt.Sprintf("session not found: %s", e.SessionID)
}

// SessionAlreadyRunningError is returned by Resume when the session is
// currently running rather than paused.
type SessionAlreadyRunningError struct {
	SessionID string
}

// Error implements the error interface.
func (e *SessionAlreadyRunningError) Error() string {
	return fmt.Sprintf("session already running: %s", e.SessionID)
}
