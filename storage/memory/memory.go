// Package memory provides in-memory implementations of the ridgelist
// store interfaces. Primarily intended for testing and development.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ridgelist/ridgelist/pkg/directory"
	"github.com/ridgelist/ridgelist/pkg/subscription"
)

// Storage implements subscription.Store, directory.ListingStore and
// directory.LeadStore using in-memory maps.
type Storage struct {
	mu       sync.RWMutex
	profiles map[string]*subscription.Profile
	listings map[string]*directory.Listing // keyed by listing id
	leads    map[string]*directory.QuoteRequest
}

// New creates a new in-memory storage adapter
func New() *Storage {
	return &Storage{
		profiles: make(map[string]*subscription.Profile),
		listings: make(map[string]*directory.Listing),
		leads:    make(map[string]*directory.QuoteRequest),
	}
}

// SeedProfile inserts a profile directly, bypassing the no-create rule
// of the update methods. Signup is an external collaborator in
// production; tests and dev use this instead.
func (s *Storage) SeedProfile(p *subscription.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *p
	s.profiles[p.ID] = &cp
}

// GetProfile implements subscription.Store
func (s *Storage) GetProfile(ctx context.Context, accountID string) (*subscription.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[accountID]
	if !ok {
		return nil, subscription.ErrProfileNotFound
	}

	// Return a copy to prevent external mutations
	cp := *p
	return &cp, nil
}

// GetProfileByCustomerID implements subscription.Store
func (s *Storage) GetProfileByCustomerID(ctx context.Context, customerID string) (*subscription.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p := s.findByCustomerLocked(customerID)
	if p == nil {
		return nil, subscription.ErrProfileNotFound
	}

	cp := *p
	return &cp, nil
}

// UpdateProfile implements subscription.Store
func (s *Storage) UpdateProfile(ctx context.Context, accountID string, patch subscription.Patch) error {
	if patch.IsZero() {
		return subscription.ErrInvalidPatch
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[accountID]
	if !ok {
		return subscription.ErrProfileNotFound
	}
	applyPatch(p, patch)
	return nil
}

// UpdateProfileByCustomerID implements subscription.Store
func (s *Storage) UpdateProfileByCustomerID(ctx context.Context, customerID string, patch subscription.Patch) error {
	if patch.IsZero() {
		return subscription.ErrInvalidPatch
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.findByCustomerLocked(customerID)
	if p == nil {
		return subscription.ErrProfileNotFound
	}
	applyPatch(p, patch)
	return nil
}

func (s *Storage) findByCustomerLocked(customerID string) *subscription.Profile {
	if customerID == "" {
		return nil
	}
	for _, p := range s.profiles {
		if p.StripeCustomerID == customerID {
			return p
		}
	}
	return nil
}

func applyPatch(p *subscription.Profile, patch subscription.Patch) {
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
		end := *patch.CurrentPeriodEnd
		p.CurrentPeriodEnd = &end
	}
	p.UpdatedAt = time.Now().UTC()
}

// UpsertListing implements directory.ListingStore
func (s *Storage) UpsertListing(ctx context.Context, listing *directory.Listing) error {
	if listing == nil || listing.OwnerID == "" {
		return fmt.Errorf("invalid listing")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// One listing per owner: re-save keeps the existing id and the
	// admin-owned featured flag.
	for id, existing := range s.listings {
		if existing.OwnerID == listing.OwnerID {
			cp := *listing
			cp.ID = id
			cp.IsFeatured = existing.IsFeatured
			cp.CreatedAt = existing.CreatedAt
			cp.UpdatedAt = time.Now().UTC()
			s.listings[id] = &cp
			listing.ID = id
			return nil
		}
	}

	cp := *listing
	now := time.Now().UTC()
	cp.CreatedAt = now
	cp.UpdatedAt = now
	s.listings[cp.ID] = &cp
	return nil
}

// GetListing implements directory.ListingStore
func (s *Storage) GetListing(ctx context.Context, id string) (*directory.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.listings[id]
	if !ok {
		return nil, directory.ErrListingNotFound
	}
	cp := *l
	return &cp, nil
}

// GetListingByOwner implements directory.ListingStore
func (s *Storage) GetListingByOwner(ctx context.Context, ownerID string) (*directory.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, l := range s.listings {
		if l.OwnerID == ownerID {
			cp := *l
			return &cp, nil
		}
	}
	return nil, directory.ErrListingNotFound
}

// GetListingBySlug implements directory.ListingStore
func (s *Storage) GetListingBySlug(ctx context.Context, slugStr string) (*directory.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, l := range s.listings {
		if l.Slug == slugStr {
			cp := *l
			return &cp, nil
		}
	}
	return nil, directory.ErrListingNotFound
}

// SetListingFeatured implements directory.ListingStore
func (s *Storage) SetListingFeatured(ctx context.Context, id string, featured bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.listings[id]
	if !ok {
		return directory.ErrListingNotFound
	}
	l.IsFeatured = featured
	l.UpdatedAt = time.Now().UTC()
	return nil
}

// SetListingPublished implements directory.ListingStore
func (s *Storage) SetListingPublished(ctx context.Context, id string, published bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.listings[id]
	if !ok {
		return directory.ErrListingNotFound
	}
	l.IsPublished = published
	l.UpdatedAt = time.Now().UTC()
	return nil
}

// CreateLead implements directory.LeadStore
func (s *Storage) CreateLead(ctx context.Context, lead *directory.QuoteRequest) error {
	if lead == nil || lead.ID == "" || lead.ListingID == "" {
		return fmt.Errorf("invalid quote request")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *lead
	s.leads[cp.ID] = &cp
	return nil
}

// LeadsByListing implements directory.LeadStore
func (s *Storage) LeadsByListing(ctx context.Context, listingID string) ([]*directory.QuoteRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*directory.QuoteRequest
	for _, lead := range s.leads {
		if lead.ListingID == listingID {
			cp := *lead
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// GetLead implements directory.LeadStore
func (s *Storage) GetLead(ctx context.Context, id string) (*directory.QuoteRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lead, ok := s.leads[id]
	if !ok {
		return nil, directory.ErrLeadNotFound
	}
	cp := *lead
	return &cp, nil
}

// MarkLeadRead implements directory.LeadStore
func (s *Storage) MarkLeadRead(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	lead, ok := s.leads[id]
	if !ok {
		return directory.ErrLeadNotFound
	}
	if lead.ReadAt == nil {
		t := at.UTC()
		lead.ReadAt = &t
	}
	return nil
}
