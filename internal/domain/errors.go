package domain

import "errors"

var (
	ErrNotFound     = errors.New("resource not found")
	ErrUnauthorized = errors.New("unauthorized access")
	ErrForbidden    = errors.New("forbidden")
	ErrConflict     = errors.New("resource already exists")
	ErrInvalidInput = errors.New("invalid input")

	// ErrRoomClosed rejects new messages in a CLOSED room. The customer's
	// next get-or-create opens a fresh ACTIVE room instead.
	ErrRoomClosed = errors.New("room is closed")
)
