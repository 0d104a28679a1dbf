package subscription

import "errors"

var (
	// ErrProfileNotFound is returned when no profile matches the lookup key
	ErrProfileNotFound = errors.New("profile not found")

	// ErrInvalidPatch is returned when an update carries no fields
	ErrInvalidPatch = errors.New("invalid patch")

	// ErrStorageUnavailable is returned when the backing store cannot be reached
	ErrStorageUnavailable = errors.New("storage unavailable")
)
