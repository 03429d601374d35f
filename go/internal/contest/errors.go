package contest

import "errors"

var (
	// ErrNotAParticipant is returned when a readiness change targets someone who
	// was never registered in the session
	ErrNotAParticipant = errors.New("not a participant of this session")
	// ErrSessionNotFound is returned for operations against an unknown session key
	ErrSessionNotFound = errors.New("session not found")
	// ErrUnauthorized is returned when the requester is neither the session owner nor an administrator
	ErrUnauthorized = errors.New("only the quiz owner or an administrator can do this")
	// ErrNoActiveTimer is returned when cancelling a session whose timer is idle
	ErrNoActiveTimer = errors.New("no active timer for this session")
	// ErrSchedulerStopped is returned when starting a timer after Shutdown
	ErrSchedulerStopped = errors.New("timer scheduler is shut down")
)
