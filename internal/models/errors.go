package models

import "errors"

// Sentinel errors for the orchestration domain. Callers wrap them with
// fmt.Errorf("...: %w", err) and transport layers map them with errors.Is.
var (
	// ErrNotFound covers both missing records and records the caller does
	// not own. The two cases are indistinguishable on the wire.
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidState is returned when an action targets an execution or
	// checkpoint that is not in the state the action requires.
	ErrInvalidState = errors.New("invalid state for requested action")

	// ErrValidation is returned for malformed or incomplete input.
	ErrValidation = errors.New("validation failed")

	// ErrUpstream is returned when a call to the crew runner fails.
	ErrUpstream = errors.New("crew runner request failed")

	// ErrTooManyConnections is returned when a caller exceeds the
	// per-user streaming connection cap.
	ErrTooManyConnections = errors.New("connection limit reached")

	// ErrDuplicateEvent is returned when an inbound webhook event has
	// already been recorded as an activity.
	ErrDuplicateEvent = errors.New("event already processed")
)
