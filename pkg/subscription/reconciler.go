package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// EventKind identifies a normalized billing event.
type EventKind string

const (
	// EventCheckoutCompleted is emitted when a checkout flow finishes.
	EventCheckoutCompleted EventKind = "checkout_completed"
	// EventSubscriptionChanged covers subscription create and update.
	EventSubscriptionChanged EventKind = "subscription_changed"
	// EventSubscriptionDeleted is emitted when a subscription ends.
	EventSubscriptionDeleted EventKind = "subscription_deleted"
	// EventInvoicePaid is emitted when a subscription invoice settles.
	EventInvoicePaid EventKind = "invoice_paid"
	// EventInvoicePaymentFailed is emitted when a payment attempt fails.
	EventInvoicePaymentFailed EventKind = "invoice_payment_failed"
	// EventIgnored marks an unrecognized provider event; acknowledged
	// without effect.
	EventIgnored EventKind = "ignored"
)

// NormalizedEvent is the provider-agnostic representation of a billing
// event. It exists only to drive one profile mutation and is never
// persisted.
type NormalizedEvent struct {
	Kind EventKind

	// AccountID is the explicit account reference carried in event
	// metadata. Most authoritative lookup key when present.
	AccountID string

	// CustomerID is the provider's billing-customer reference.
	// Fallback lookup key when AccountID is absent.
	CustomerID string

	// SubscriptionID is the provider's subscription reference, when
	// the event carries one.
	SubscriptionID string

	Status Status

	// PeriodEnd is the paid-period expiry carried by subscription
	// events; nil when the event does not include one.
	PeriodEnd *time.Time
}

// Reconciler applies normalized billing events to the profile store.
// Each application is a single targeted update; the store's per-row
// atomicity is the only concurrency control. Events are assumed to
// arrive close to in-order; there is no sequence-number rejection, so
// concurrent delivery resolves as last-write-wins and the provider's
// redelivery is relied on for recovery.
type Reconciler struct {
	store  Store
	logger Logger
}

// NewReconciler creates a reconciler over the given store.
// A nil logger defaults to NoopLogger.
func NewReconciler(store Store, logger Logger) *Reconciler {
	if logger == nil {
		logger = &NoopLogger{}
	}
	return &Reconciler{store: store, logger: logger}
}

// Reconcile applies the event to the persisted profile. Idempotent:
// applying the same event twice leaves the profile in the same state.
//
// A lookup miss (no profile for the key) is logged and swallowed - the
// profile may not exist yet or belong to different environment data,
// and retrying cannot fix it. Store failures are returned so the
// caller surfaces a retryable status to the provider.
func (r *Reconciler) Reconcile(ctx context.Context, ev NormalizedEvent) error {
	if ev.Kind == EventIgnored {
		return nil
	}

	patch := r.buildPatch(ev)
	if patch.IsZero() {
		r.logger.Debug("event carried no profile fields",
			Field{Key: "kind", Value: string(ev.Kind)})
		return nil
	}

	// Account reference beats customer reference: the metadata we put
	// on checkout is authoritative, a customer-id match is best-effort.
	var err error
	switch {
	case ev.AccountID != "":
		err = r.store.UpdateProfile(ctx, ev.AccountID, patch)
	case ev.CustomerID != "":
		err = r.store.UpdateProfileByCustomerID(ctx, ev.CustomerID, patch)
	default:
		r.logger.Warn("event carried no lookup key",
			Field{Key: "kind", Value: string(ev.Kind)})
		return nil
	}

	if errors.Is(err, ErrProfileNotFound) {
		r.logger.Warn("no profile matched billing event",
			Field{Key: "kind", Value: string(ev.Kind)},
			Field{Key: "account", Value: Pseudonymize(ev.AccountID)},
			Field{Key: "customer", Value: Pseudonymize(ev.CustomerID)})
		return nil
	}
	if err != nil {
		return fmt.Errorf("reconcile %s: %w", ev.Kind, err)
	}

	r.logger.Info("profile reconciled",
		Field{Key: "kind", Value: string(ev.Kind)},
		Field{Key: "status", Value: string(ev.Status)},
		Field{Key: "account", Value: Pseudonymize(ev.AccountID)},
		Field{Key: "customer", Value: Pseudonymize(ev.CustomerID)})
	return nil
}

// buildPatch maps the event onto a partial profile update. Only fields
// the event actually carries are included, so stale events cannot blank
// out what they do not know about.
func (r *Reconciler) buildPatch(ev NormalizedEvent) Patch {
	patch := Patch{Status: StatusPtr(ev.Status)}

	// An active status always records the billing customer behind it.
	if ev.CustomerID != "" {
		patch.StripeCustomerID = StringPtr(ev.CustomerID)
	}
	if ev.SubscriptionID != "" {
		patch.StripeSubscriptionID = StringPtr(ev.SubscriptionID)
	}
	if ev.PeriodEnd != nil {
		end := ev.PeriodEnd.UTC()
		patch.CurrentPeriodEnd = &end
	}
	return patch
}
