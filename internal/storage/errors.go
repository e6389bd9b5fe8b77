package storage

import "errors"

var (
	// ErrKeyNotFound is returned when no API key matches the given id or secret.
	ErrKeyNotFound = errors.New("API key not found")

	// ErrDuplicateSecret is returned when an insert would violate the
	// uniqueness of secret_key. With 192-bit random secrets this is
	// practically unreachable, but it must surface as a defined failure
	// rather than a silent overwrite.
	ErrDuplicateSecret = errors.New("secret key already exists")
)
