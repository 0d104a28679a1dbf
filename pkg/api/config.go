package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/ridgelist/ridgelist/pkg/directory"
	"github.com/ridgelist/ridgelist/pkg/subscription"
)

// BillingProvider is the billing surface the API handler needs.
// *stripe.Provider satisfies it.
type BillingProvider interface {
	WebhookHandler() http.Handler
	CheckoutURL(ctx context.Context, accountID, successURL, cancelURL string) (string, error)
	BoostCheckoutURL(ctx context.Context, accountID, boostKind, successURL, cancelURL string) (string, error)
	PortalURL(ctx context.Context, accountID, returnURL string) (string, error)
	SyncAccount(ctx context.Context, accountID string) (string, error)
}

// Config holds configuration for the ridgelist API handler
type Config struct {
	// Profiles is the profile store (required)
	Profiles subscription.Store

	// Billing is the billing provider used for checkout, portal, boost
	// and webhook handling (required)
	Billing BillingProvider

	// Directory is the listing/lead service (required)
	Directory *directory.Service

	// GetAccountID extracts the authenticated account id from an HTTP
	// request (required). Authentication itself is an upstream
	// concern; this handler only consumes its result.
	GetAccountID func(*http.Request) string

	// BaseURL is the external site URL used to build checkout
	// success/cancel and portal return URLs (required, https:// or
	// http://localhost for dev).
	BaseURL string

	// QuotesWebhookSecret authenticates the database webhook that
	// fires on quote-request inserts. Empty disables the endpoint.
	QuotesWebhookSecret string

	// AdminSecret authenticates the admin feature-toggle endpoint.
	// Empty disables the endpoint.
	AdminSecret string

	// Logger is optional; nil discards logs.
	Logger subscription.Logger
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Profiles == nil {
		return fmt.Errorf("profiles store is required")
	}
	if c.Billing == nil {
		return fmt.Errorf("billing provider is required")
	}
	if c.Directory == nil {
		return fmt.Errorf("directory service is required")
	}
	if c.GetAccountID == nil {
		return fmt.Errorf("getAccountID is required")
	}
	if c.BaseURL == "" {
		return fmt.Errorf("base URL is required")
	}
	return nil
}

// NewHandler creates a new API handler with the given configuration
func NewHandler(config Config) (*Handler, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if config.Logger == nil {
		config.Logger = &subscription.NoopLogger{}
	}
	return &Handler{config: config}, nil
}

// FromHeader returns a GetAccountID function that extracts the account
// id from a header (e.g. set by an auth proxy).
func FromHeader(headerName string) func(*http.Request) string {
	return func(r *http.Request) string {
		return r.Header.Get(headerName)
	}
}

// FromContext returns a GetAccountID function that extracts the
// account id from the request context.
func FromContext(key interface{}) func(*http.Request) string {
	return func(r *http.Request) string {
		if accountID, ok := r.Context().Value(key).(string); ok {
			return accountID
		}
		return ""
	}
}
