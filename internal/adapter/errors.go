package adapter

import (
	"errors"
)

var (
	// ErrNotFound is returned when a requested resource (e.g. the target folder) is not found.
	ErrNotFound = errors.New("resource not found")

	// ErrUnauthorized is returned when the provider rejects the access token.
	ErrUnauthorized = errors.New("storage provider rejected credentials")

	// ErrLimitExceeded is returned when a file exceeds a storage limit.
	ErrLimitExceeded = errors.New("storage limit exceeded")
)
