package stripe

import (
	"context"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v83"

	"github.com/ridgelist/ridgelist/pkg/billing"
	"github.com/ridgelist/ridgelist/pkg/subscription"
)

// SyncAccount reconciles the account's profile against the live state
// of the Stripe API instead of waiting for webhooks. Used for
// "restore" flows and nightly reconciliation jobs.
func (p *Provider) SyncAccount(ctx context.Context, accountID string) (string, error) {
	startTime := time.Now()

	profile, err := p.profiles.GetProfile(ctx, accountID)
	if err != nil {
		p.metrics.RecordAccountSync(providerName, "error")
		return "", fmt.Errorf("%w: %s", billing.ErrAccountNotFound, subscription.Pseudonymize(accountID))
	}
	if profile.StripeCustomerID == "" {
		// Never checked out; nothing to sync against.
		p.metrics.RecordAccountSync(providerName, "skipped")
		return string(profile.Status), nil
	}

	subs, err := p.api.ListSubscriptions(ctx, profile.StripeCustomerID)
	if err != nil {
		p.metrics.RecordAPICall(providerName, "/subscriptions/list", "error")
		p.metrics.RecordAccountSync(providerName, "error")
		p.metrics.RecordAccountSyncDuration(providerName, time.Since(startTime))
		return "", fmt.Errorf("%w: list subscriptions: %v", billing.ErrProviderAPIError, err)
	}
	p.metrics.RecordAPICall(providerName, "/subscriptions/list", "success")

	status, best := resolveStatus(subs)

	patch := subscription.Patch{Status: subscription.StatusPtr(status)}
	if best != nil {
		patch.StripeSubscriptionID = subscription.StringPtr(best.ID)
		if end := subscriptionPeriodEnd(best); end != nil {
			patch.CurrentPeriodEnd = end
		}
	}

	if err := p.profiles.UpdateProfile(ctx, accountID, patch); err != nil {
		p.metrics.RecordAccountSync(providerName, "error")
		p.metrics.RecordAccountSyncDuration(providerName, time.Since(startTime))
		return "", fmt.Errorf("persist sync result: %w", err)
	}

	if profile.Status != status {
		p.metrics.RecordStatusChange(providerName, string(profile.Status), string(status))
	}
	p.metrics.RecordAccountSync(providerName, "success")
	p.metrics.RecordAccountSyncDuration(providerName, time.Since(startTime))

	p.logger.Info("account synced from stripe",
		subscription.Field{Key: "account", Value: subscription.Pseudonymize(accountID)},
		subscription.Field{Key: "status", Value: string(status)})
	return string(status), nil
}

// resolveStatus picks the profile status from the customer's full
// subscription list: any entitled subscription wins, otherwise the
// mapped status of the most recently created one. A customer with no
// subscriptions at all is canceled.
func resolveStatus(subs []*stripe.Subscription) (subscription.Status, *stripe.Subscription) {
	if len(subs) == 0 {
		return subscription.StatusCanceled, nil
	}

	var newest *stripe.Subscription
	for _, sub := range subs {
		st := subscription.FromProviderStatus(string(sub.Status))
		if st.Entitled() {
			return st, sub
		}
		if newest == nil || sub.Created > newest.Created {
			newest = sub
		}
	}
	return subscription.FromProviderStatus(string(newest.Status)), newest
}
