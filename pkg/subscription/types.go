package subscription

import (
	"context"
	"time"
)

// Status is the application's reduced subscription status vocabulary.
// Every provider status collapses to one of these three values.
type Status string

const (
	// StatusActive means the account holds a paid (or trialing) subscription.
	StatusActive Status = "active"
	// StatusPending means payment is unsettled or the subscription is in a
	// recoverable bad state (past_due, incomplete, paused, ...).
	StatusPending Status = "pending"
	// StatusCanceled means the subscription ended or is unrecoverable.
	StatusCanceled Status = "canceled"
)

// Entitled reports whether the status grants the right to publish a
// listing and read the leads inbox. Only StatusActive qualifies;
// pending is deliberately not entitled (fail-safe).
func (s Status) Entitled() bool {
	return s == StatusActive
}

// Profile is the persisted per-account record holding billing state.
// Created at account signup; billing fields are populated lazily.
type Profile struct {
	ID       string
	Email    string
	FullName string

	// StripeCustomerID is set once, the first time a checkout is
	// initiated, and is stable afterwards.
	StripeCustomerID string

	// StripeSubscriptionID may change when a customer re-subscribes.
	StripeSubscriptionID string

	Status Status

	// CurrentPeriodEnd is the paid-period expiry. Advisory only; the
	// gate does not enforce it.
	CurrentPeriodEnd *time.Time

	UpdatedAt time.Time
}

// Entitled reports whether this profile may publish/manage a listing.
func (p *Profile) Entitled() bool {
	return p != nil && p.Status.Entitled()
}

// Patch is a partial Profile update. Only non-nil fields are written,
// so repeated application of the same patch is a no-op beyond the
// first.
type Patch struct {
	Status               *Status
	StripeCustomerID     *string
	StripeSubscriptionID *string
	CurrentPeriodEnd     *time.Time
}

// IsZero reports whether the patch carries no fields.
func (p Patch) IsZero() bool {
	return p.Status == nil && p.StripeCustomerID == nil &&
		p.StripeSubscriptionID == nil && p.CurrentPeriodEnd == nil
}

// Store defines the interface for profile persistence.
// Implementations perform each update as a single atomic row write.
type Store interface {
	// GetProfile retrieves a profile by account id.
	// Returns ErrProfileNotFound if no profile exists.
	GetProfile(ctx context.Context, accountID string) (*Profile, error)

	// GetProfileByCustomerID retrieves a profile by its Stripe
	// customer reference. Returns ErrProfileNotFound on zero matches.
	GetProfileByCustomerID(ctx context.Context, customerID string) (*Profile, error)

	// UpdateProfile applies a patch to the profile with the given
	// account id. Returns ErrProfileNotFound if no row matched; must
	// never create a profile.
	UpdateProfile(ctx context.Context, accountID string, patch Patch) error

	// UpdateProfileByCustomerID applies a patch to the profile whose
	// StripeCustomerID matches. Returns ErrProfileNotFound on zero
	// matches; must never create a profile.
	UpdateProfileByCustomerID(ctx context.Context, customerID string, patch Patch) error
}

// StatusPtr returns a pointer to s, for building patches.
func StatusPtr(s Status) *Status { return &s }

// StringPtr returns a pointer to s, for building patches.
func StringPtr(s string) *string { return &s }
