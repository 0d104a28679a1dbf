package billing

import "time"

// Metrics defines the interface for tracking billing provider operations.
// All methods are optional - providers should gracefully handle nil metrics.
type Metrics interface {
	// RecordWebhookEvent records a webhook event received from the billing provider.
	// eventType: the provider event type (e.g., "invoice.paid")
	// status: "success", "skipped" or "error"
	RecordWebhookEvent(provider, eventType, status string)

	// RecordWebhookProcessingDuration records how long it took to process a webhook.
	RecordWebhookProcessingDuration(provider, eventType string, duration time.Duration)

	// RecordWebhookError records a webhook processing error.
	// errorType: the type of error (e.g., "auth_failed", "invalid_payload", "processing_error")
	RecordWebhookError(provider, errorType string)

	// RecordAccountSync records an account synchronization operation.
	// status: "success" or "error"
	RecordAccountSync(provider, status string)

	// RecordAccountSyncDuration records how long an account sync took.
	RecordAccountSyncDuration(provider string, duration time.Duration)

	// RecordStatusChange records when a profile's subscription status changes.
	RecordStatusChange(provider, fromStatus, toStatus string)

	// RecordAPICall records an API call to the billing provider.
	// endpoint: the API endpoint called (e.g., "/checkout/sessions")
	// status: outcome label (e.g., "success", "error", "customer_not_found")
	RecordAPICall(provider, endpoint, status string)

	// RecordAPICallDuration records how long an API call took.
	RecordAPICallDuration(provider, endpoint string, duration time.Duration)
}

// NoopMetrics is a no-op implementation of the Metrics interface.
type NoopMetrics struct{}

func (n *NoopMetrics) RecordWebhookEvent(_, _, _ string)                            {}
func (n *NoopMetrics) RecordWebhookProcessingDuration(_, _ string, _ time.Duration) {}
func (n *NoopMetrics) RecordWebhookError(_, _ string)                               {}
func (n *NoopMetrics) RecordAccountSync(_, _ string)                                {}
func (n *NoopMetrics) RecordAccountSyncDuration(_ string, _ time.Duration)          {}
func (n *NoopMetrics) RecordStatusChange(_, _, _ string)                            {}
func (n *NoopMetrics) RecordAPICall(_, _, _ string)                                 {}
func (n *NoopMetrics) RecordAPICallDuration(_, _ string, _ time.Duration)           {}
