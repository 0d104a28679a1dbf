// Package directory implements the listing and quote-request (lead)
// domain of the ridgelist application.
package directory

import (
	"context"
	"time"
)

// Listing is a published business page. One per owner account.
type Listing struct {
	ID           string
	OwnerID      string
	Slug         string
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

	// IsPublished is only ever true for entitled owners; the service
	// re-checks the subscription server-side on every save.
	IsPublished bool

	// IsFeatured is admin-controlled and survives owner re-saves.
	IsFeatured bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// LeadStatus tracks an owner's handling of a quote request.
type LeadStatus string

const (
	LeadStatusNew       LeadStatus = "new"
	LeadStatusContacted LeadStatus = "contacted"
	LeadStatusClosed    LeadStatus = "closed"
)

// QuoteRequest is a consumer-submitted lead against a listing.
type QuoteRequest struct {
	ID             string
	ListingID      string
	RequesterName  string
	RequesterEmail string
	RequesterPhone string
	Message        string
	Status         LeadStatus
	CreatedAt      time.Time
	ReadAt         *time.Time
}

// ListingStore defines the interface for listing persistence.
type ListingStore interface {
	// UpsertListing inserts or replaces the owner's listing. The
	// featured flag and creation time of an existing row are kept.
	UpsertListing(ctx context.Context, listing *Listing) error

	// GetListing retrieves a listing by id.
	// Returns ErrListingNotFound if no listing exists.
	GetListing(ctx context.Context, id string) (*Listing, error)

	// GetListingByOwner retrieves the owner's listing.
	GetListingByOwner(ctx context.Context, ownerID string) (*Listing, error)

	// GetListingBySlug retrieves a listing by its public slug.
	GetListingBySlug(ctx context.Context, slug string) (*Listing, error)

	// SetListingFeatured flips the admin featured flag.
	SetListingFeatured(ctx context.Context, id string, featured bool) error

	// SetListingPublished flips the publish flag.
	SetListingPublished(ctx context.Context, id string, published bool) error
}

// LeadStore defines the interface for quote-request persistence.
type LeadStore interface {
	CreateLead(ctx context.Context, lead *QuoteRequest) error
	GetLead(ctx context.Context, id string) (*QuoteRequest, error)
	LeadsByListing(ctx context.Context, listingID string) ([]*QuoteRequest, error)
	MarkLeadRead(ctx context.Context, id string, at time.Time) error
}
