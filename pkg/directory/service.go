package directory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gosimple/slug"

	"github.com/ridgelist/ridgelist/pkg/subscription"
)

const (
	maxSlugLen    = 60
	defaultState  = "NC"
	fallbackSlug  = "business"
)

// ListingInput is the owner-supplied listing content. The publish flag
// is a request, not a grant; the service decides.
type ListingInput struct {
	BusinessName string
	Category     string
	City         string
	County       string
	State        string
	ServiceArea  string
	Headline     string
	Description  string
	Phone        string
	Website      string
	EmailPublic  string
	LogoURL      string
	CoverURL     string
	Publish      bool
}

// Service coordinates listings and leads with the subscription gate.
type Service struct {
	listings ListingStore
	leads    LeadStore
	profiles subscription.Store
	notifier Notifier
	logger   subscription.Logger
}

// NewService creates a directory service. notifier may be nil (leads
// are stored but owners are not emailed); a nil logger defaults to
// NoopLogger.
func NewService(listings ListingStore, leads LeadStore, profiles subscription.Store, notifier Notifier, logger subscription.Logger) *Service {
	if logger == nil {
		logger = &subscription.NoopLogger{}
	}
	return &Service{
		listings: listings,
		leads:    leads,
		profiles: profiles,
		notifier: notifier,
		logger:   logger,
	}
}

// SaveListing upserts the owner's listing. The publish request is only
// honored when the owner's profile is entitled - the subscription is
// re-checked here, never trusted from the client.
func (s *Service) SaveListing(ctx context.Context, ownerID string, in ListingInput) (*Listing, error) {
	if ownerID == "" || strings.TrimSpace(in.BusinessName) == "" {
		return nil, fmt.Errorf("%w: owner and business name are required", ErrInvalidInput)
	}

	entitled := false
	profile, err := s.profiles.GetProfile(ctx, ownerID)
	if err == nil {
		entitled = profile.Entitled()
	} else {
		// A missing profile means no subscription; save as unpublished.
		s.logger.Warn("profile lookup failed during listing save",
			subscription.Field{Key: "owner", Value: subscription.Pseudonymize(ownerID)},
			subscription.Field{Key: "error", Value: err.Error()})
	}

	state := strings.TrimSpace(in.State)
	if state == "" {
		state = defaultState
	}

	listing := &Listing{
		ID:           uuid.NewString(),
		OwnerID:      ownerID,
		Slug:         Slugify(in.BusinessName),
		BusinessName: strings.TrimSpace(in.BusinessName),
		Category:     strings.TrimSpace(in.Category),
		City:         strings.TrimSpace(in.City),
		County:       strings.TrimSpace(in.County),
		State:        state,
		ServiceArea:  strings.TrimSpace(in.ServiceArea),
		Headline:     strings.TrimSpace(in.Headline),
		Description:  strings.TrimSpace(in.Description),
		Phone:        strings.TrimSpace(in.Phone),
		Website:      strings.TrimSpace(in.Website),
		EmailPublic:  strings.TrimSpace(in.EmailPublic),
		LogoURL:      strings.TrimSpace(in.LogoURL),
		CoverURL:     strings.TrimSpace(in.CoverURL),
		IsPublished:  in.Publish && entitled,
	}

	if err := s.listings.UpsertListing(ctx, listing); err != nil {
		return nil, fmt.Errorf("save listing: %w", err)
	}

	s.logger.Info("listing saved",
		subscription.Field{Key: "owner", Value: subscription.Pseudonymize(ownerID)},
		subscription.Field{Key: "slug", Value: listing.Slug},
		subscription.Field{Key: "published", Value: listing.IsPublished})
	return listing, nil
}

// SetFeatured is the admin toggle for the featured flag.
func (s *Service) SetFeatured(ctx context.Context, listingID string, featured bool) error {
	return s.listings.SetListingFeatured(ctx, listingID, featured)
}

// Unpublish removes a listing from the public directory, e.g. when the
// owner's subscription lapses.
func (s *Service) Unpublish(ctx context.Context, listingID string) error {
	return s.listings.SetListingPublished(ctx, listingID, false)
}

// GetBySlug retrieves a listing by its public slug.
func (s *Service) GetBySlug(ctx context.Context, slugStr string) (*Listing, error) {
	return s.listings.GetListingBySlug(ctx, slugStr)
}

// SubmitQuoteRequest stores a consumer lead against a listing and, when
// a notifier is configured, emails the listing owner. Notification
// failures never fail the submission.
func (s *Service) SubmitQuoteRequest(ctx context.Context, listingID, name, email, phone, message string) (*QuoteRequest, error) {
	if listingID == "" || strings.TrimSpace(name) == "" || strings.TrimSpace(email) == "" {
		return nil, fmt.Errorf("%w: listing, name and email are required", ErrInvalidInput)
	}

	listing, err := s.listings.GetListing(ctx, listingID)
	if err != nil {
		return nil, err
	}

	lead := &QuoteRequest{
		ID:             uuid.NewString(),
		ListingID:      listing.ID,
		RequesterName:  strings.TrimSpace(name),
		RequesterEmail: strings.TrimSpace(email),
		RequesterPhone: strings.TrimSpace(phone),
		Message:        strings.TrimSpace(message),
		Status:         LeadStatusNew,
		CreatedAt:      time.Now().UTC(),
	}

	if err := s.leads.CreateLead(ctx, lead); err != nil {
		return nil, fmt.Errorf("create quote request: %w", err)
	}

	if s.notifier != nil {
		if _, err := s.NotifyOwner(ctx, lead); err != nil {
			s.logger.Warn("lead notification failed",
				subscription.Field{Key: "listing", Value: listing.ID},
				subscription.Field{Key: "error", Value: err.Error()})
		}
	}

	return lead, nil
}

// NotifyOwner resolves the lead's listing owner and sends the new-lead
// email. Missing listing or owner email is a graceful no-op; the
// returned skip reason is empty when the email was sent.
func (s *Service) NotifyOwner(ctx context.Context, lead *QuoteRequest) (string, error) {
	if s.notifier == nil {
		return "notifier not configured", nil
	}

	listing, err := s.listings.GetListing(ctx, lead.ListingID)
	if err != nil {
		s.logger.Warn("lead references unknown listing",
			subscription.Field{Key: "listing", Value: lead.ListingID})
		return "listing not found", nil
	}

	owner, err := s.profiles.GetProfile(ctx, listing.OwnerID)
	if err != nil || owner.Email == "" {
		s.logger.Warn("listing owner has no email",
			subscription.Field{Key: "listing", Value: listing.ID})
		return "owner email not found", nil
	}

	if err := s.notifier.NotifyNewLead(ctx, owner.Email, listing, lead); err != nil {
		return "", err
	}
	return "", nil
}

// Leads returns the owner's inbox, newest first. The caller is
// expected to have passed the subscription gate already (middleware);
// this only resolves the owner's listing.
func (s *Service) Leads(ctx context.Context, ownerID string) ([]*QuoteRequest, error) {
	listing, err := s.listings.GetListingByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return s.leads.LeadsByListing(ctx, listing.ID)
}

// MarkLeadRead stamps the lead's read time, once. Ownership is checked
// so one owner cannot mark another's leads.
func (s *Service) MarkLeadRead(ctx context.Context, ownerID, leadID string) error {
	lead, err := s.leads.GetLead(ctx, leadID)
	if err != nil {
		return err
	}
	listing, err := s.listings.GetListing(ctx, lead.ListingID)
	if err != nil {
		return err
	}
	if listing.OwnerID != ownerID {
		return ErrNotOwner
	}
	return s.leads.MarkLeadRead(ctx, leadID, time.Now().UTC())
}

// Slugify converts a business name into a URL slug, capped at 60
// characters to match the public listing path scheme.
func Slugify(name string) string {
	s := slug.Make(strings.TrimSpace(name))
	if s == "" {
		s = fallbackSlug
	}
	if len(s) > maxSlugLen {
		s = strings.Trim(s[:maxSlugLen], "-")
	}
	return s
}
