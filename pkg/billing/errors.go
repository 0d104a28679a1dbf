package billing

import "errors"

var (
	// ErrProviderNotConfigured is returned when a provider is not properly configured
	ErrProviderNotConfigured = errors.New("billing provider not configured")

	// ErrInvalidWebhookSignature is returned when webhook signature validation fails
	ErrInvalidWebhookSignature = errors.New("invalid webhook signature")

	// ErrInvalidWebhookPayload is returned when webhook payload cannot be parsed
	ErrInvalidWebhookPayload = errors.New("invalid webhook payload")

	// ErrAccountNotFound is returned when an account cannot be resolved in the provider's system
	ErrAccountNotFound = errors.New("account not found in billing provider")

	// ErrCustomerNotFound is returned when an account has no billing customer yet
	ErrCustomerNotFound = errors.New("customer not found in billing provider")

	// ErrProviderAPIError is returned when the provider's API returns an error
	ErrProviderAPIError = errors.New("billing provider API error")

	// ErrPriceNotConfigured is returned when no price is configured for a purchase kind
	ErrPriceNotConfigured = errors.New("price not configured")
)
