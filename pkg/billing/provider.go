package billing

import (
	"context"
	"net/http"
)

// Provider is the generic interface a billing backend must implement.
// Keeping this boundary lets the application swap providers without
// touching the reconciliation core.
type Provider interface {
	// Name returns the provider name (e.g., "stripe")
	Name() string

	// WebhookHandler returns the HTTP handler that processes real-time
	// events. The implementation handles signature verification, event
	// normalization, and profile reconciliation internally.
	WebhookHandler() http.Handler

	// SyncAccount forces a synchronization of the account's
	// subscription status from the provider into the profile store.
	// Used for "restore" flows and nightly reconciliation jobs.
	// Returns the resulting status string and any error.
	SyncAccount(ctx context.Context, accountID string) (string, error)
}
