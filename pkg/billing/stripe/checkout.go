package stripe

import (
	"context"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v83"

	"github.com/ridgelist/ridgelist/pkg/billing"
	"github.com/ridgelist/ridgelist/pkg/subscription"
)

// EnsureCustomer returns the account's Stripe customer id, creating
// the customer lazily on first checkout. The id is set once and then
// stable; profiles that already carry one are returned as-is.
func (p *Provider) EnsureCustomer(ctx context.Context, accountID string) (string, error) {
	profile, err := p.profiles.GetProfile(ctx, accountID)
	if err != nil {
		return "", fmt.Errorf("%w: %s", billing.ErrAccountNotFound, subscription.Pseudonymize(accountID))
	}
	if profile.StripeCustomerID != "" {
		return profile.StripeCustomerID, nil
	}

	startTime := time.Now()
	customer, err := p.api.CreateCustomer(ctx, profile.Email, accountID)
	if err != nil {
		p.metrics.RecordAPICall(providerName, "/customers", "error")
		return "", fmt.Errorf("%w: create customer: %v", billing.ErrProviderAPIError, err)
	}
	p.metrics.RecordAPICall(providerName, "/customers", "success")
	p.metrics.RecordAPICallDuration(providerName, "/customers", time.Since(startTime))

	patch := subscription.Patch{StripeCustomerID: subscription.StringPtr(customer.ID)}
	if err := p.profiles.UpdateProfile(ctx, accountID, patch); err != nil {
		return "", fmt.Errorf("persist customer id: %w", err)
	}

	p.logger.Info("stripe customer created",
		subscription.Field{Key: "account", Value: subscription.Pseudonymize(accountID)},
		subscription.Field{Key: "customer", Value: subscription.Pseudonymize(customer.ID)})
	return customer.ID, nil
}

// CheckoutURL creates a subscription-mode Checkout Session for the
// account and returns the URL to redirect to.
func (p *Provider) CheckoutURL(ctx context.Context, accountID, successURL, cancelURL string) (string, error) {
	if p.config.SubscriptionPriceID == "" {
		return "", fmt.Errorf("%w: subscription price", billing.ErrPriceNotConfigured)
	}

	customerID, err := p.EnsureCustomer(ctx, accountID)
	if err != nil {
		return "", err
	}

	params := &stripe.CheckoutSessionCreateParams{
		Mode:     stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		Customer: stripe.String(customerID),
		LineItems: []*stripe.CheckoutSessionCreateLineItemParams{
			{
				Price:    stripe.String(p.config.SubscriptionPriceID),
				Quantity: stripe.Int64(1),
			},
		},
		AllowPromotionCodes: stripe.Bool(true),
		SuccessURL:          stripe.String(successURL),
		CancelURL:           stripe.String(cancelURL),
	}

	// The metadata is what the webhook normalizer keys on; without it
	// reconciliation falls back to the customer-id match.
	params.SubscriptionData = &stripe.CheckoutSessionCreateSubscriptionDataParams{}
	params.SubscriptionData.AddMetadata(accountMetadataKey, accountID)
	params.AddMetadata(accountMetadataKey, accountID)

	return p.createSession(ctx, params)
}

// BoostCheckoutURL creates a one-time payment-mode Checkout Session
// for a listing boost. Unknown boost kinds are a client error.
func (p *Provider) BoostCheckoutURL(ctx context.Context, accountID, boostKind, successURL, cancelURL string) (string, error) {
	priceID, ok := p.config.BoostPriceIDs[boostKind]
	if !ok || priceID == "" {
		return "", fmt.Errorf("%w: boost %q", billing.ErrPriceNotConfigured, boostKind)
	}

	customerID, err := p.EnsureCustomer(ctx, accountID)
	if err != nil {
		return "", err
	}

	params := &stripe.CheckoutSessionCreateParams{
		Mode:     stripe.String(string(stripe.CheckoutSessionModePayment)),
		Customer: stripe.String(customerID),
		LineItems: []*stripe.CheckoutSessionCreateLineItemParams{
			{
				Price:    stripe.String(priceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(successURL),
		CancelURL:  stripe.String(cancelURL),
	}
	params.AddMetadata(accountMetadataKey, accountID)
	params.AddMetadata("boost_kind", boostKind)

	return p.createSession(ctx, params)
}

// PortalURL creates a Customer Portal session so the account can
// manage its subscription, update payment methods, or cancel.
func (p *Provider) PortalURL(ctx context.Context, accountID, returnURL string) (string, error) {
	profile, err := p.profiles.GetProfile(ctx, accountID)
	if err != nil || profile.StripeCustomerID == "" {
		p.metrics.RecordAPICall(providerName, "/billing_portal/sessions", "customer_not_found")
		return "", fmt.Errorf("%w: %s", billing.ErrCustomerNotFound, subscription.Pseudonymize(accountID))
	}

	startTime := time.Now()
	session, err := p.api.CreatePortalSession(ctx, profile.StripeCustomerID, returnURL)
	if err != nil {
		p.metrics.RecordAPICall(providerName, "/billing_portal/sessions", "error")
		return "", fmt.Errorf("%w: create portal session: %v", billing.ErrProviderAPIError, err)
	}
	p.metrics.RecordAPICall(providerName, "/billing_portal/sessions", "success")
	p.metrics.RecordAPICallDuration(providerName, "/billing_portal/sessions", time.Since(startTime))

	return session.URL, nil
}

func (p *Provider) createSession(ctx context.Context, params *stripe.CheckoutSessionCreateParams) (string, error) {
	startTime := time.Now()
	session, err := p.api.CreateCheckoutSession(ctx, params)
	if err != nil {
		p.metrics.RecordAPICall(providerName, "/checkout/sessions", "error")
		p.metrics.RecordAPICallDuration(providerName, "/checkout/sessions", time.Since(startTime))
		return "", fmt.Errorf("%w: create checkout session: %v", billing.ErrProviderAPIError, err)
	}
	p.metrics.RecordAPICall(providerName, "/checkout/sessions", "success")
	p.metrics.RecordAPICallDuration(providerName, "/checkout/sessions", time.Since(startTime))

	return session.URL, nil
}
