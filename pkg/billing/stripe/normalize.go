package stripe

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v83"

	"github.com/ridgelist/ridgelist/pkg/billing"
	"github.com/ridgelist/ridgelist/pkg/subscription"
)

// normalizeEvent maps a verified Stripe event to the internal
// NormalizedEvent. Unrecognized event types come back as EventIgnored.
func (p *Provider) normalizeEvent(ctx context.Context, event *stripe.Event) (subscription.NormalizedEvent, error) {
	switch event.Type {
	case "checkout.session.completed":
		return p.normalizeCheckoutCompleted(ctx, event)
	case "customer.subscription.created", "customer.subscription.updated":
		return normalizeSubscriptionChanged(event)
	case "customer.subscription.deleted":
		return normalizeSubscriptionDeleted(event)
	case "invoice.paid", "invoice.payment_succeeded":
		return normalizeInvoicePaid(event)
	case "invoice.payment_failed":
		return normalizeInvoicePaymentFailed(event)
	default:
		return subscription.NormalizedEvent{Kind: subscription.EventIgnored}, nil
	}
}

// normalizeCheckoutCompleted handles checkout.session.completed.
//
// Payment may still be settling when the session completes, so the
// status comes from the referenced subscription's live state, never an
// unconditional active. Without a subscription reference the grant
// defaults to pending - entitlement without confirmed payment is a
// billing-integrity risk.
func (p *Provider) normalizeCheckoutCompleted(ctx context.Context, event *stripe.Event) (subscription.NormalizedEvent, error) {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return subscription.NormalizedEvent{}, fmt.Errorf("%w: checkout session: %v", billing.ErrInvalidWebhookPayload, err)
	}

	ev := subscription.NormalizedEvent{
		Kind:   subscription.EventCheckoutCompleted,
		Status: subscription.StatusPending,
	}
	if session.Metadata != nil {
		ev.AccountID = session.Metadata[accountMetadataKey]
	}
	if session.Customer != nil {
		ev.CustomerID = session.Customer.ID
	}
	if session.Subscription != nil {
		ev.SubscriptionID = session.Subscription.ID
	}

	if ev.SubscriptionID != "" {
		sub, err := p.api.RetrieveSubscription(ctx, ev.SubscriptionID)
		if err != nil {
			p.metrics.RecordAPICall(providerName, "/subscriptions/retrieve", "error")
			return subscription.NormalizedEvent{}, fmt.Errorf("%w: fetch subscription %s: %v", billing.ErrProviderAPIError, ev.SubscriptionID, err)
		}
		p.metrics.RecordAPICall(providerName, "/subscriptions/retrieve", "success")
		ev.Status = subscription.FromProviderStatus(string(sub.Status))
		if end := subscriptionPeriodEnd(sub); end != nil {
			ev.PeriodEnd = end
		}
	}
	return ev, nil
}

func normalizeSubscriptionChanged(event *stripe.Event) (subscription.NormalizedEvent, error) {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return subscription.NormalizedEvent{}, fmt.Errorf("%w: subscription: %v", billing.ErrInvalidWebhookPayload, err)
	}

	ev := subscription.NormalizedEvent{
		Kind:           subscription.EventSubscriptionChanged,
		SubscriptionID: sub.ID,
		Status:         subscription.FromProviderStatus(string(sub.Status)),
		PeriodEnd:      rawPeriodEnd(event.Data.Raw),
	}
	if sub.Metadata != nil {
		ev.AccountID = sub.Metadata[accountMetadataKey]
	}
	if sub.Customer != nil {
		ev.CustomerID = sub.Customer.ID
	}
	return ev, nil
}

func normalizeSubscriptionDeleted(event *stripe.Event) (subscription.NormalizedEvent, error) {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return subscription.NormalizedEvent{}, fmt.Errorf("%w: subscription: %v", billing.ErrInvalidWebhookPayload, err)
	}

	ev := subscription.NormalizedEvent{
		Kind:   subscription.EventSubscriptionDeleted,
		Status: subscription.StatusCanceled,
	}
	if sub.Customer != nil {
		ev.CustomerID = sub.Customer.ID
	}
	return ev, nil
}

func normalizeInvoicePaid(event *stripe.Event) (subscription.NormalizedEvent, error) {
	customerID, subscriptionID, err := invoiceRefs(event.Data.Raw)
	if err != nil {
		return subscription.NormalizedEvent{}, err
	}
	if subscriptionID == "" {
		// Not a subscription invoice
		return subscription.NormalizedEvent{Kind: subscription.EventIgnored}, nil
	}
	return subscription.NormalizedEvent{
		Kind:           subscription.EventInvoicePaid,
		CustomerID:     customerID,
		SubscriptionID: subscriptionID,
		Status:         subscription.StatusActive,
	}, nil
}

func normalizeInvoicePaymentFailed(event *stripe.Event) (subscription.NormalizedEvent, error) {
	customerID, _, err := invoiceRefs(event.Data.Raw)
	if err != nil {
		return subscription.NormalizedEvent{}, err
	}
	return subscription.NormalizedEvent{
		Kind:       subscription.EventInvoicePaymentFailed,
		CustomerID: customerID,
		Status:     subscription.StatusPending,
	}, nil
}

// invoiceRefs extracts customer and subscription references from a raw
// invoice payload. Both fields arrive either as an id string or as an
// expanded object depending on the event's API version.
func invoiceRefs(raw json.RawMessage) (customerID, subscriptionID string, err error) {
	var data map[string]interface{}
	if err := json.Unmarshal(raw, &data); err != nil {
		return "", "", fmt.Errorf("%w: invoice: %v", billing.ErrInvalidWebhookPayload, err)
	}
	return refID(data["customer"]), refID(data["subscription"]), nil
}

func refID(v interface{}) string {
	switch ref := v.(type) {
	case string:
		return ref
	case map[string]interface{}:
		if id, ok := ref["id"].(string); ok {
			return id
		}
	}
	return ""
}

// rawPeriodEnd digs current_period_end out of a raw subscription
// payload. Older API versions carry it at the top level, newer ones on
// each subscription item.
func rawPeriodEnd(raw json.RawMessage) *time.Time {
	var data struct {
		CurrentPeriodEnd int64 `json:"current_period_end"`
		Items            struct {
			Data []struct {
				CurrentPeriodEnd int64 `json:"current_period_end"`
			} `json:"data"`
		} `json:"items"`
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil
	}

	ts := data.CurrentPeriodEnd
	if ts == 0 {
		for _, item := range data.Items.Data {
			if item.CurrentPeriodEnd > ts {
				ts = item.CurrentPeriodEnd
			}
		}
	}
	if ts == 0 {
		return nil
	}
	t := time.Unix(ts, 0).UTC()
	return &t
}

// subscriptionPeriodEnd reads the period end from an API-fetched
// subscription's items.
func subscriptionPeriodEnd(sub *stripe.Subscription) *time.Time {
	if sub == nil || sub.Items == nil {
		return nil
	}
	var ts int64
	for _, item := range sub.Items.Data {
		if item.CurrentPeriodEnd > ts {
			ts = item.CurrentPeriodEnd
		}
	}
	if ts == 0 {
		return nil
	}
	t := time.Unix(ts, 0).UTC()
	return &t
}
