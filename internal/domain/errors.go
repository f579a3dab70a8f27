package domain

import "errors"

var (
	ErrContestNotFound  = errors.New("contest not found")
	ErrInvalidEvent     = errors.New("invalid submission event")
	ErrUnauthorized     = errors.New("invalid or expired token")
	ErrForbidden        = errors.New("not allowed")
	ErrMalformedMessage = errors.New("malformed message")
	ErrUnknownMessage   = errors.New("unknown message type")
)
