// Package stripe implements the billing.Provider interface for Stripe:
// webhook verification and normalization, profile reconciliation,
// checkout/portal session creation, and full API resync.
package stripe

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v83"

	"github.com/ridgelist/ridgelist/pkg/billing"
	"github.com/ridgelist/ridgelist/pkg/billing/internal"
	"github.com/ridgelist/ridgelist/pkg/subscription"
)

const (
	providerName             = "stripe"
	defaultHTTPTimeout       = 10 * time.Second
	defaultRateLimitWindow   = time.Minute
	defaultRateLimitRequests = 100
	maxWebhookBodyBytes      = 256 * 1024

	// accountMetadataKey links Stripe objects back to profile ids.
	// Set on checkout sessions and subscription data; read by the
	// normalizer as the authoritative lookup key.
	accountMetadataKey = "account_id"
)

// Config extends billing.Config with Stripe-specific options
type Config struct {
	billing.Config // Base config (Profiles, Logger, Metrics, ...)

	// Stripe-specific
	StripeAPIKey        string
	StripeWebhookSecret string

	// SubscriptionPriceID is the recurring price used by CheckoutURL.
	SubscriptionPriceID string

	// BoostPriceIDs maps one-time boost kinds (e.g. "week", "month")
	// to Stripe price ids, used by BoostCheckoutURL.
	BoostPriceIDs map[string]string
}

// apiClient is the subset of the Stripe API the provider calls. The
// concrete client is injected so tests can substitute a double.
type apiClient interface {
	RetrieveSubscription(ctx context.Context, id string) (*stripe.Subscription, error)
	ListSubscriptions(ctx context.Context, customerID string) ([]*stripe.Subscription, error)
	CreateCustomer(ctx context.Context, email, accountID string) (*stripe.Customer, error)
	CreateCheckoutSession(ctx context.Context, params *stripe.CheckoutSessionCreateParams) (*stripe.CheckoutSession, error)
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (*stripe.BillingPortalSession, error)
}

// Provider implements the billing.Provider interface for Stripe
type Provider struct {
	profiles      subscription.Store
	reconciler    *subscription.Reconciler
	config        Config
	api           apiClient
	webhookSecret []byte
	rateLimiter   *internal.RateLimiter
	logger        subscription.Logger
	metrics       billing.Metrics
}

// NewProvider creates a new Stripe billing provider. The
// Stripe-specific credentials win over the generic billing.Config
// ones; either set is accepted.
func NewProvider(config Config) (*Provider, error) {
	if config.Profiles == nil {
		return nil, billing.ErrProviderNotConfigured
	}

	apiKey := strings.TrimSpace(config.StripeAPIKey)
	if apiKey == "" {
		apiKey = strings.TrimSpace(config.APIKey)
	}
	if apiKey == "" {
		return nil, billing.ErrProviderNotConfigured
	}

	webhookSecret := strings.TrimSpace(config.StripeWebhookSecret)
	if webhookSecret == "" {
		webhookSecret = strings.TrimSpace(config.WebhookSecret)
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}

	logger := config.Logger
	if logger == nil {
		logger = &subscription.NoopLogger{}
	}

	metrics := config.Metrics
	if metrics == nil {
		metrics = &billing.NoopMetrics{}
	}

	return &Provider{
		profiles:      config.Profiles,
		reconciler:    subscription.NewReconciler(config.Profiles, logger),
		config:        config,
		api:           &realClient{client: stripe.NewClient(apiKey, stripe.WithBackends(stripe.NewBackends(httpClient)))},
		webhookSecret: []byte(webhookSecret),
		rateLimiter:   internal.NewRateLimiter(defaultRateLimitRequests, defaultRateLimitWindow),
		logger:        logger,
		metrics:       metrics,
	}, nil
}

// Name returns the provider name
func (p *Provider) Name() string {
	return providerName
}

// WebhookHandler returns the HTTP handler for Stripe webhooks
func (p *Provider) WebhookHandler() http.Handler {
	return p.rateLimiter.Middleware(http.HandlerFunc(p.handleWebhook))
}

// realClient adapts *stripe.Client to the apiClient interface.
type realClient struct {
	client *stripe.Client
}

func (c *realClient) RetrieveSubscription(ctx context.Context, id string) (*stripe.Subscription, error) {
	return c.client.V1Subscriptions.Retrieve(ctx, id, nil)
}

func (c *realClient) ListSubscriptions(ctx context.Context, customerID string) ([]*stripe.Subscription, error) {
	params := &stripe.SubscriptionListParams{}
	params.Customer = stripe.String(customerID)
	params.Status = stripe.String("all")

	var subs []*stripe.Subscription
	for sub, err := range c.client.V1Subscriptions.List(ctx, params) {
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, nil
}

func (c *realClient) CreateCustomer(ctx context.Context, email, accountID string) (*stripe.Customer, error) {
	params := &stripe.CustomerCreateParams{
		Email: stripe.String(email),
	}
	params.AddMetadata(accountMetadataKey, accountID)
	return c.client.V1Customers.Create(ctx, params)
}

func (c *realClient) CreateCheckoutSession(ctx context.Context, params *stripe.CheckoutSessionCreateParams) (*stripe.CheckoutSession, error) {
	return c.client.V1CheckoutSessions.Create(ctx, params)
}

func (c *realClient) CreatePortalSession(ctx context.Context, customerID, returnURL string) (*stripe.BillingPortalSession, error) {
	params := &stripe.BillingPortalSessionCreateParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	return c.client.V1BillingPortalSessions.Create(ctx, params)
}
