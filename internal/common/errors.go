// Package common defines sentinel errors and small helpers shared by the
// relay server, its storage adapters and the reference client. Callers
// should match the errors with errors.Is.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrorAlreadyExists = errors.New("already exists")

	// Service-level errors.
	ErrorInternal   = errors.New("internal error")
	ErrorValidation = errors.New("validation error")

	// Ticket errors (invalid, malformed or expired JWT).
	ErrInvalidToken = errors.New("invalid token")

	// Protocol errors.
	ErrMalformedFrame   = errors.New("malformed frame")
	ErrInvalidUsername  = errors.New("invalid username")
	ErrUnexpectedReply  = errors.New("unexpected reply")
	ErrSessionClosed    = errors.New("session closed")
	ErrNotAuthenticated = errors.New("not authenticated")

	// Handshake errors.
	ErrInvalidPublicValue = errors.New("invalid diffie-hellman public value")
	ErrNoSecret           = errors.New("no connection secret")
	ErrConnIDInUse        = errors.New("connection id in use")
	ErrNoPeerKey          = errors.New("no key for peer")
)
