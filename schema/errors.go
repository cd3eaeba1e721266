package schema

import "errors"

var (
	// ErrInvalidRequest indicates a malformed request payload.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrSpawn indicates the child process or its pty could not be created.
	ErrSpawn = errors.New("spawn failed")
	// ErrSessionNotFound indicates a requested session could not be found.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionExited indicates the session's child process has exited.
	ErrSessionExited = errors.New("session exited")
	// ErrNoSessions indicates no sessions are attached.
	ErrNoSessions = errors.New("no sessions")
	// ErrEmptyCommand indicates an attach request without a command.
	ErrEmptyCommand = errors.New("empty command")
	// ErrManagerClosed indicates the manager has been shut down.
	ErrManagerClosed = errors.New("manager closed")
	// ErrNoCredentials indicates no usable API credentials were found.
	ErrNoCredentials = errors.New("no credentials")
	// ErrTokenExpired indicates the stored access token has expired.
	ErrTokenExpired = errors.New("access token expired")
)
