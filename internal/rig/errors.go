package rig

import (
	"errors"
	"fmt"
)

// Domain errors for the rig package.
var (
	// ErrCommandTimeout is returned when no response arrives in time.
	ErrCommandTimeout = errors.New("rig: command timed out")

	// ErrCommandFailed is returned when the device answers with an error.
	// The concrete error is a *CommandError.
	ErrCommandFailed = errors.New("rig: command failed")

	// ErrInvalidResponse is returned when a response cannot be decoded.
	ErrInvalidResponse = errors.New("rig: invalid response")

	// ErrNotStarted is returned by Call before Start has subscribed to responses.
	ErrNotStarted = errors.New("rig: client not started")

	// ErrRateLimited is returned when the command rate limiter rejects a call.
	ErrRateLimited = errors.New("rig: command rate limited")
)

// CommandError is an error reported by the device for a command.
type CommandError struct {
	Method  string
	Code    int
	Message string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("rig: %s failed: %s (code %d)", e.Method, e.Message, e.Code)
}

// Unwrap lets errors.Is match ErrCommandFailed.
func (e *CommandError) Unwrap() error {
	return ErrCommandFailed
}
