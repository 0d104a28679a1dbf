package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ridgelist/ridgelist/pkg/directory"
	"github.com/ridgelist/ridgelist/pkg/subscription"
)

func TestUpdateProfileNeverCreates(t *testing.T) {
	s := New()

	err := s.UpdateProfile(context.Background(), "ghost",
		subscription.Patch{Status: subscription.StatusPtr(subscription.StatusActive)})
	assert.ErrorIs(t, err, subscription.ErrProfileNotFound)

	err = s.UpdateProfileByCustomerID(context.Background(), "cus_ghost",
		subscription.Patch{Status: subscription.StatusPtr(subscription.StatusActive)})
	assert.ErrorIs(t, err, subscription.ErrProfileNotFound)

	_, err = s.GetProfile(context.Background(), "ghost")
	assert.ErrorIs(t, err, subscription.ErrProfileNotFound)
}

func TestUpdateProfileRejectsEmptyPatch(t *testing.T) {
	s := New()
	s.SeedProfile(&subscription.Profile{ID: "acct_1"})

	err := s.UpdateProfile(context.Background(), "acct_1", subscription.Patch{})
	assert.ErrorIs(t, err, subscription.ErrInvalidPatch)
}

func TestUpdateProfilePartialPatch(t *testing.T) {
	s := New()
	end := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	s.SeedProfile(&subscription.Profile{
		ID:               "acct_1",
		Email:            "owner@example.com",
		StripeCustomerID: "cus_1",
		Status:           subscription.StatusActive,
		CurrentPeriodEnd: &end,
	})

	// Only the status field is patched; everything else must survive.
	err := s.UpdateProfile(context.Background(), "acct_1",
		subscription.Patch{Status: subscription.StatusPtr(subscription.StatusPending)})
	require.NoError(t, err)

	p, err := s.GetProfile(context.Background(), "acct_1")
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusPending, p.Status)
	assert.Equal(t, "cus_1", p.StripeCustomerID)
	assert.Equal(t, "owner@example.com", p.Email)
	require.NotNil(t, p.CurrentPeriodEnd)
	assert.True(t, p.CurrentPeriodEnd.Equal(end))
	assert.False(t, p.UpdatedAt.IsZero())
}

func TestLookupByCustomerID(t *testing.T) {
	s := New()
	s.SeedProfile(&subscription.Profile{ID: "acct_1", StripeCustomerID: "cus_1"})

	p, err := s.GetProfileByCustomerID(context.Background(), "cus_1")
	require.NoError(t, err)
	assert.Equal(t, "acct_1", p.ID)

	// Empty customer id must never match a profile with an empty field.
	s.SeedProfile(&subscription.Profile{ID: "acct_2"})
	_, err = s.GetProfileByCustomerID(context.Background(), "")
	assert.ErrorIs(t, err, subscription.ErrProfileNotFound)
}

func TestGetProfileReturnsCopy(t *testing.T) {
	s := New()
	s.SeedProfile(&subscription.Profile{ID: "acct_1", Status: subscription.StatusActive})

	p, err := s.GetProfile(context.Background(), "acct_1")
	require.NoError(t, err)
	p.Status = subscription.StatusCanceled

	again, err := s.GetProfile(context.Background(), "acct_1")
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusActive, again.Status)
}

func TestUpsertListingKeepsIdentityOnResave(t *testing.T) {
	s := New()

	first := &directory.Listing{ID: "l1", OwnerID: "owner_1", Slug: "biz", BusinessName: "Biz"}
	require.NoError(t, s.UpsertListing(context.Background(), first))
	require.NoError(t, s.SetListingFeatured(context.Background(), "l1", true))

	second := &directory.Listing{ID: "l2", OwnerID: "owner_1", Slug: "biz-renamed", BusinessName: "Biz Renamed"}
	require.NoError(t, s.UpsertListing(context.Background(), second))
	assert.Equal(t, "l1", second.ID)

	got, err := s.GetListing(context.Background(), "l1")
	require.NoError(t, err)
	assert.Equal(t, "Biz Renamed", got.BusinessName)
	assert.True(t, got.IsFeatured)
	assert.False(t, got.CreatedAt.IsZero())

	_, err = s.GetListing(context.Background(), "l2")
	assert.ErrorIs(t, err, directory.ErrListingNotFound)
}

func TestLeadsByListingNewestFirst(t *testing.T) {
	s := New()
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"lead_a", "lead_b", "lead_c"} {
		require.NoError(t, s.CreateLead(context.Background(), &directory.QuoteRequest{
			ID:        id,
			ListingID: "l1",
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		}))
	}
	require.NoError(t, s.CreateLead(context.Background(), &directory.QuoteRequest{
		ID:        "other",
		ListingID: "l2",
		CreatedAt: base,
	}))

	leads, err := s.LeadsByListing(context.Background(), "l1")
	require.NoError(t, err)
	require.Len(t, leads, 3)
	assert.Equal(t, "lead_c", leads[0].ID)
	assert.Equal(t, "lead_a", leads[2].ID)
}

func TestMarkLeadReadIsSticky(t *testing.T) {
	s := New()
	require.NoError(t, s.CreateLead(context.Background(), &directory.QuoteRequest{
		ID:        "lead_1",
		ListingID: "l1",
	}))

	first := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.MarkLeadRead(context.Background(), "lead_1", first))
	require.NoError(t, s.MarkLeadRead(context.Background(), "lead_1", first.Add(time.Hour)))

	lead, err := s.GetLead(context.Background(), "lead_1")
	require.NoError(t, err)
	require.NotNil(t, lead.ReadAt)
	assert.True(t, lead.ReadAt.Equal(first))

	assert.ErrorIs(t, s.MarkLeadRead(context.Background(), "ghost", first), directory.ErrLeadNotFound)
}
