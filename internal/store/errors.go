package store

import "errors"

var (
	// ErrApplicationNotFound is also returned by ownership checks on
	// applications the caller does not own, so that ownership is never
	// revealed to non-owners.
	ErrApplicationNotFound = errors.New("oauth application not found")
	ErrClientIDNotFound    = errors.New("client id not found")
	ErrSecretNotFound      = errors.New("oauth secret not found")
	ErrParamsCheckFailed   = errors.New("params check failed")
	ErrUserNotFound        = errors.New("user not found")
)
