package billing

import (
	"net/http"

	"github.com/ridgelist/ridgelist/pkg/subscription"
)

// Config defines the standard configuration all providers should accept
type Config struct {
	// Profiles is the profile store that webhook events reconcile into.
	Profiles subscription.Store

	// WebhookSecret is used to verify incoming webhook requests against
	// the raw request body. Provider-specific config (e.g.
	// stripe.Config.StripeWebhookSecret) takes precedence when set.
	WebhookSecret string

	// APIKey is used for outbound API calls to the billing provider
	// (subscription lookups, checkout, SyncAccount). Provider-specific
	// config takes precedence when set.
	APIKey string

	// HTTPClient is an optional HTTP client for API calls.
	// If nil, a default client with 10s timeout will be used.
	HTTPClient *http.Client

	// Logger is an optional structured logger. If nil, logs are
	// silently discarded.
	Logger subscription.Logger

	// Metrics is an optional metrics collector for billing operations.
	// If nil, metrics are silently ignored (no-op).
	// Use billing/metrics/prometheus.DefaultMetrics(namespace) for
	// Prometheus metrics.
	Metrics Metrics
}
