package subscription

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore is a minimal in-memory Store for reconciler tests.
type fakeStore struct {
	profiles map[string]*Profile
	failWith error
}

func newFakeStore() *fakeStore {
	return &fakeStore{profiles: make(map[string]*Profile)}
}

func (s *fakeStore) add(p *Profile) { s.profiles[p.ID] = p }

func (s *fakeStore) GetProfile(_ context.Context, accountID string) (*Profile, error) {
	if s.failWith != nil {
		return nil, s.failWith
	}
	p, ok := s.profiles[accountID]
	if !ok {
		return nil, ErrProfileNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *fakeStore) GetProfileByCustomerID(_ context.Context, customerID string) (*Profile, error) {
	if s.failWith != nil {
		return nil, s.failWith
	}
	for _, p := range s.profiles {
		if p.StripeCustomerID == customerID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrProfileNotFound
}

func (s *fakeStore) UpdateProfile(_ context.Context, accountID string, patch Patch) error {
	if s.failWith != nil {
		return s.failWith
	}
	p, ok := s.profiles[accountID]
	if !ok {
		return ErrProfileNotFound
	}
	applyTestPatch(p, patch)
	return nil
}

func (s *fakeStore) UpdateProfileByCustomerID(_ context.Context, customerID string, patch Patch) error {
	if s.failWith != nil {
		return s.failWith
	}
	for _, p := range s.profiles {
		if p.StripeCustomerID == customerID {
			applyTestPatch(p, patch)
			return nil
		}
	}
	return ErrProfileNotFound
}

func applyTestPatch(p *Profile, patch Patch) {
	if patch.Status != nil {
		p.Status = *patch.Status
	}
	if patch.StripeCustomerID != nil {
		p.StripeCustomerID = *patch.StripeCustomerID
	}
	if patch.StripeSubscriptionID != nil {
		p.StripeSubscriptionID = *patch.StripeSubscriptionID
	}
	if patch.CurrentPeriodEnd != nil {
		p.CurrentPeriodEnd = patch.CurrentPeriodEnd
	}
}

func TestReconcilePrefersAccountID(t *testing.T) {
	store := newFakeStore()
	store.add(&Profile{ID: "acct_1", StripeCustomerID: "cus_other"})
	store.add(&Profile{ID: "acct_2", StripeCustomerID: "cus_1"})
	r := NewReconciler(store, nil)

	// Both keys present and pointing at different profiles; the
	// account reference must win.
	err := r.Reconcile(context.Background(), NormalizedEvent{
		Kind:       EventCheckoutCompleted,
		AccountID:  "acct_1",
		CustomerID: "cus_1",
		Status:     StatusActive,
	})
	require.NoError(t, err)

	assert.Equal(t, StatusActive, store.profiles["acct_1"].Status)
	assert.Equal(t, Status(""), store.profiles["acct_2"].Status)
}

func TestReconcileFallsBackToCustomerID(t *testing.T) {
	store := newFakeStore()
	store.add(&Profile{ID: "acct_1", StripeCustomerID: "cus_1", Status: StatusActive})
	r := NewReconciler(store, nil)

	err := r.Reconcile(context.Background(), NormalizedEvent{
		Kind:       EventSubscriptionDeleted,
		CustomerID: "cus_1",
		Status:     StatusCanceled,
	})
	require.NoError(t, err)
	assert.Equal(t, StatusCanceled, store.profiles["acct_1"].Status)
}

func TestReconcilePaymentFailedSuspends(t *testing.T) {
	store := newFakeStore()
	store.add(&Profile{ID: "acct_2", StripeCustomerID: "cus_2", Status: StatusActive})
	r := NewReconciler(store, nil)

	err := r.Reconcile(context.Background(), NormalizedEvent{
		Kind:       EventInvoicePaymentFailed,
		CustomerID: "cus_2",
		Status:     StatusPending,
	})
	require.NoError(t, err)
	assert.Equal(t, StatusPending, store.profiles["acct_2"].Status)
}

func TestReconcileIdempotent(t *testing.T) {
	store := newFakeStore()
	end := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	store.add(&Profile{ID: "acct_1"})
	r := NewReconciler(store, nil)

	ev := NormalizedEvent{
		Kind:           EventSubscriptionChanged,
		AccountID:      "acct_1",
		CustomerID:     "cus_1",
		SubscriptionID: "sub_1",
		Status:         StatusActive,
		PeriodEnd:      &end,
	}

	require.NoError(t, r.Reconcile(context.Background(), ev))
	first := *store.profiles["acct_1"]
	require.NoError(t, r.Reconcile(context.Background(), ev))
	assert.Equal(t, first, *store.profiles["acct_1"])
}

func TestReconcileOrphanEventSwallowed(t *testing.T) {
	store := newFakeStore()
	r := NewReconciler(store, nil)

	// No profile matches; a retry cannot fix that, so the event is
	// acknowledged rather than bounced back for redelivery.
	err := r.Reconcile(context.Background(), NormalizedEvent{
		Kind:       EventSubscriptionDeleted,
		CustomerID: "cus_ghost",
		Status:     StatusCanceled,
	})
	assert.NoError(t, err)
}

func TestReconcileStoreFailurePropagates(t *testing.T) {
	store := newFakeStore()
	store.failWith = ErrStorageUnavailable
	r := NewReconciler(store, nil)

	err := r.Reconcile(context.Background(), NormalizedEvent{
		Kind:      EventCheckoutCompleted,
		AccountID: "acct_1",
		Status:    StatusActive,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStorageUnavailable))
}

func TestReconcileIgnoredEventIsNoop(t *testing.T) {
	store := newFakeStore()
	store.failWith = ErrStorageUnavailable // would fail if touched
	r := NewReconciler(store, nil)

	assert.NoError(t, r.Reconcile(context.Background(), NormalizedEvent{Kind: EventIgnored}))
}

func TestReconcileNoLookupKey(t *testing.T) {
	store := newFakeStore()
	r := NewReconciler(store, nil)

	assert.NoError(t, r.Reconcile(context.Background(), NormalizedEvent{
		Kind:   EventInvoicePaid,
		Status: StatusActive,
	}))
}

func TestBuildPatchOmitsAbsentFields(t *testing.T) {
	r := NewReconciler(newFakeStore(), nil)

	patch := r.buildPatch(NormalizedEvent{
		Kind:   EventInvoicePaymentFailed,
		Status: StatusPending,
	})
	require.NotNil(t, patch.Status)
	assert.Nil(t, patch.StripeCustomerID)
	assert.Nil(t, patch.StripeSubscriptionID)
	assert.Nil(t, patch.CurrentPeriodEnd)
}
