package subscription

import "strings"

// FromProviderStatus maps a billing-provider subscription status to the
// internal 3-state vocabulary. Total over strings: unrecognized values
// map to StatusPending so an unknown provider state never silently
// grants entitlement.
func FromProviderStatus(providerStatus string) Status {
	switch strings.ToLower(strings.TrimSpace(providerStatus)) {
	case "active", "trialing":
		return StatusActive
	case "canceled", "unpaid", "incomplete_expired":
		return StatusCanceled
	default:
		// incomplete, past_due, paused, and anything unrecognized
		return StatusPending
	}
}
