package session

import "errors"

var (
	// ErrSessionNotFound is returned for an unknown chat id.
	ErrSessionNotFound = errors.New("session not found")
	// ErrEmptyMessage is returned when a chat request carries no text.
	ErrEmptyMessage = errors.New("message is required")
	// ErrInvalidID is returned for a chat id the store cannot hold.
	ErrInvalidID = errors.New("invalid chat id")
)
