package directory

import "errors"

var (
	// ErrListingNotFound is returned when no listing matches the lookup key
	ErrListingNotFound = errors.New("listing not found")

	// ErrLeadNotFound is returned when no quote request matches the id
	ErrLeadNotFound = errors.New("quote request not found")

	// ErrInvalidInput is returned when required fields are missing or malformed
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotOwner is returned when an account operates on a lead it does not own
	ErrNotOwner = errors.New("not the listing owner")
)
