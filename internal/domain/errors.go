package domain

import "errors"

var (
	// ErrNotFound indicates resource not found
	ErrNotFound = errors.New("resource not found")
	// ErrInvalidRequest indicates invalid request
	ErrInvalidRequest = errors.New("invalid request")
	// ErrNotConnected indicates the transport is not open
	ErrNotConnected = errors.New("transport not connected")
	// ErrSessionActive indicates a session is already starting or active
	ErrSessionActive = errors.New("session already active")
	// ErrNoSession indicates no active session
	ErrNoSession = errors.New("no active session")
	// ErrInvalidFrame indicates a malformed wire frame
	ErrInvalidFrame = errors.New("invalid frame")
	// ErrUntrustedOrigin indicates a cross-frame message from an origin
	// outside the allow-list
	ErrUntrustedOrigin = errors.New("untrusted origin")
)
