// Package postgres provides a PostgreSQL implementation of the
// ridgelist store interfaces. Profile updates are single targeted
// UPDATE statements; the row-level atomicity of the database is the
// only concurrency control the webhook reconciler relies on.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ridgelist/ridgelist/pkg/directory"
	"github.com/ridgelist/ridgelist/pkg/subscription"
)

// Storage implements subscription.Store, directory.ListingStore and
// directory.LeadStore using PostgreSQL.
type Storage struct {
	pool   *pgxpool.Pool
	config Config
}

// Config holds PostgreSQL storage configuration
type Config struct {
	// ConnectionString is the PostgreSQL connection string
	ConnectionString string

	// Pool configuration
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		MaxConns:        10,
		MinConns:        2,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
	}
}

// Schema is the DDL for the tables this adapter reads and writes.
// Applied by EnsureSchema; safe to run repeatedly.
const Schema = `
CREATE TABLE IF NOT EXISTS profiles (
	id                     TEXT PRIMARY KEY,
	email                  TEXT NOT NULL DEFAULT '',
	full_name              TEXT NOT NULL DEFAULT '',
	stripe_customer_id     TEXT NOT NULL DEFAULT '',
	stripe_subscription_id TEXT NOT NULL DEFAULT '',
	subscription_status    TEXT NOT NULL DEFAULT 'pending',
	current_period_end     TIMESTAMPTZ,
	updated_at             TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS profiles_stripe_customer_idx
	ON profiles (stripe_customer_id) WHERE stripe_customer_id <> '';

CREATE TABLE IF NOT EXISTS listings (
	id            TEXT PRIMARY KEY,
	owner_id      TEXT NOT NULL UNIQUE,
	slug          TEXT NOT NULL,
	business_name TEXT NOT NULL,
	category      TEXT NOT NULL DEFAULT '',
	city          TEXT NOT NULL DEFAULT '',
	county        TEXT NOT NULL DEFAULT '',
	state         TEXT NOT NULL DEFAULT 'NC',
	service_area  TEXT NOT NULL DEFAULT '',
	headline      TEXT NOT NULL DEFAULT '',
	description   TEXT NOT NULL DEFAULT '',
	phone         TEXT NOT NULL DEFAULT '',
	website       TEXT NOT NULL DEFAULT '',
	email_public  TEXT NOT NULL DEFAULT '',
	logo_url      TEXT NOT NULL DEFAULT '',
	cover_url     TEXT NOT NULL DEFAULT '',
	is_published  BOOLEAN NOT NULL DEFAULT FALSE,
	is_featured   BOOLEAN NOT NULL DEFAULT FALSE,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS listings_slug_idx ON listings (slug);

CREATE TABLE IF NOT EXISTS quote_requests (
	id              TEXT PRIMARY KEY,
	listing_id      TEXT NOT NULL REFERENCES listings (id) ON DELETE CASCADE,
	requester_name  TEXT NOT NULL,
	requester_email TEXT NOT NULL,
	requester_phone TEXT NOT NULL DEFAULT '',
	message         TEXT NOT NULL DEFAULT '',
	status          TEXT NOT NULL DEFAULT 'new',
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	read_at         TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS quote_requests_listing_idx
	ON quote_requests (listing_id, created_at DESC);
`

// New creates a new PostgreSQL storage adapter
func New(ctx context.Context, config Config) (*Storage, error) {
	if config.ConnectionString == "" {
		return nil, fmt.Errorf("connection string is required")
	}

	poolConfig, err := pgxpool.ParseConfig(config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	if config.MaxConns > 0 {
		poolConfig.MaxConns = config.MaxConns
	}
	if config.MinConns > 0 {
		poolConfig.MinConns = config.MinConns
	}
	if config.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = config.MaxConnLifetime
	}
	if config.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = config.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Storage{pool: pool, config: config}, nil
}

// EnsureSchema creates the tables this adapter needs if they do not
// already exist.
func (s *Storage) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close closes the PostgreSQL connection pool
func (s *Storage) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

const profileColumns = `id, email, full_name, stripe_customer_id, stripe_subscription_id,
	subscription_status, current_period_end, updated_at`

func scanProfile(row pgx.Row) (*subscription.Profile, error) {
	var p subscription.Profile
	var status string
	err := row.Scan(
		&p.ID,
		&p.Email,
		&p.FullName,
		&p.StripeCustomerID,
		&p.StripeSubscriptionID,
		&status,
		&p.CurrentPeriodEnd,
		&p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, subscription.ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	p.Status = subscription.Status(status)
	return &p, nil
}

// GetProfile implements subscription.Store
func (s *Storage) GetProfile(ctx context.Context, accountID string) (*subscription.Profile, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE id = $1`, accountID)
	return scanProfile(row)
}

// GetProfileByCustomerID implements subscription.Store
func (s *Storage) GetProfileByCustomerID(ctx context.Context, customerID string) (*subscription.Profile, error) {
	if customerID == "" {
		return nil, subscription.ErrProfileNotFound
	}
	row := s.pool.QueryRow(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE stripe_customer_id = $1`, customerID)
	return scanProfile(row)
}

// UpdateProfile implements subscription.Store
func (s *Storage) UpdateProfile(ctx context.Context, accountID string, patch subscription.Patch) error {
	return s.updateProfileBy(ctx, "id", accountID, patch)
}

// UpdateProfileByCustomerID implements subscription.Store
func (s *Storage) UpdateProfileByCustomerID(ctx context.Context, customerID string, patch subscription.Patch) error {
	if customerID == "" {
		return subscription.ErrProfileNotFound
	}
	return s.updateProfileBy(ctx, "stripe_customer_id", customerID, patch)
}

// updateProfileBy builds a targeted UPDATE covering only the fields the
// patch carries. Zero affected rows means no matching profile; the
// update never creates one.
func (s *Storage) updateProfileBy(ctx context.Context, keyColumn, key string, patch subscription.Patch) error {
	if patch.IsZero() {
		return subscription.ErrInvalidPatch
	}

	var sets []string
	var args []interface{}
	add := func(column string, value interface{}) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if patch.Status != nil {
		add("subscription_status", string(*patch.Status))
	}
	if patch.StripeCustomerID != nil {
		add("stripe_customer_id", *patch.StripeCustomerID)
	}
	if patch.StripeSubscriptionID != nil {
		add("stripe_subscription_id", *patch.StripeSubscriptionID)
	}
	if patch.CurrentPeriodEnd != nil {
		add("current_period_end", patch.CurrentPeriodEnd.UTC())
	}
	add("updated_at", time.Now().UTC())

	args = append(args, key)
	query := fmt.Sprintf(`UPDATE profiles SET %s WHERE %s = $%d`,
		strings.Join(sets, ", "), keyColumn, len(args))

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return subscription.ErrProfileNotFound
	}
	return nil
}

// SeedProfile inserts or replaces a profile row directly. Signup is an
// external collaborator in production; dev tooling and tests use this.
func (s *Storage) SeedProfile(ctx context.Context, p *subscription.Profile) error {
	if p == nil || p.ID == "" {
		return fmt.Errorf("invalid profile")
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO profiles (id, email, full_name, stripe_customer_id, stripe_subscription_id,
				subscription_status, current_period_end, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (id) DO UPDATE SET
				email = EXCLUDED.email,
				full_name = EXCLUDED.full_name,
				stripe_customer_id = EXCLUDED.stripe_customer_id,
				stripe_subscription_id = EXCLUDED.stripe_subscription_id,
				subscription_status = EXCLUDED.subscription_status,
				current_period_end = EXCLUDED.current_period_end,
				updated_at = EXCLUDED.updated_at`,
		p.ID, p.Email, p.FullName, p.StripeCustomerID, p.StripeSubscriptionID,
		string(p.Status), p.CurrentPeriodEnd, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to seed profile: %w", err)
	}
	return nil
}

const listingColumns = `id, owner_id, slug, business_name, category, city, county, state,
	service_area, headline, description, phone, website, email_public, logo_url, cover_url,
	is_published, is_featured, created_at, updated_at`

func scanListing(row pgx.Row) (*directory.Listing, error) {
	var l directory.Listing
	err := row.Scan(
		&l.ID, &l.OwnerID, &l.Slug, &l.BusinessName, &l.Category, &l.City, &l.County,
		&l.State, &l.ServiceArea, &l.Headline, &l.Description, &l.Phone, &l.Website,
		&l.EmailPublic, &l.LogoURL, &l.CoverURL, &l.IsPublished, &l.IsFeatured,
		&l.CreatedAt, &l.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, directory.ErrListingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get listing: %w", err)
	}
	return &l, nil
}

// UpsertListing implements directory.ListingStore. One listing per
// owner: a re-save keeps the existing row's id, featured flag and
// creation time.
func (s *Storage) UpsertListing(ctx context.Context, listing *directory.Listing) error {
	if listing == nil || listing.OwnerID == "" {
		return fmt.Errorf("invalid listing")
	}

	row := s.pool.QueryRow(ctx,
		`INSERT INTO listings (id, owner_id, slug, business_name, category, city, county, state,
				service_area, headline, description, phone, website, email_public, logo_url, cover_url,
				is_published, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, now(), now())
			ON CONFLICT (owner_id) DO UPDATE SET
				slug = EXCLUDED.slug,
				business_name = EXCLUDED.business_name,
				category = EXCLUDED.category,
				city = EXCLUDED.city,
				county = EXCLUDED.county,
				state = EXCLUDED.state,
				service_area = EXCLUDED.service_area,
				headline = EXCLUDED.headline,
				description = EXCLUDED.description,
				phone = EXCLUDED.phone,
				website = EXCLUDED.website,
				email_public = EXCLUDED.email_public,
				logo_url = EXCLUDED.logo_url,
				cover_url = EXCLUDED.cover_url,
				is_published = EXCLUDED.is_published,
				updated_at = now()
			RETURNING id`,
		listing.ID, listing.OwnerID, listing.Slug, listing.BusinessName, listing.Category,
		listing.City, listing.County, listing.State, listing.ServiceArea, listing.Headline,
		listing.Description, listing.Phone, listing.Website, listing.EmailPublic,
		listing.LogoURL, listing.CoverURL, listing.IsPublished,
	)

	var id string
	if err := row.Scan(&id); err != nil {
		return fmt.Errorf("failed to upsert listing: %w", err)
	}
	listing.ID = id
	return nil
}

// GetListing implements directory.ListingStore
func (s *Storage) GetListing(ctx context.Context, id string) (*directory.Listing, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+listingColumns+` FROM listings WHERE id = $1`, id)
	return scanListing(row)
}

// GetListingByOwner implements directory.ListingStore
func (s *Storage) GetListingByOwner(ctx context.Context, ownerID string) (*directory.Listing, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+listingColumns+` FROM listings WHERE owner_id = $1`, ownerID)
	return scanListing(row)
}

// GetListingBySlug implements directory.ListingStore
func (s *Storage) GetListingBySlug(ctx context.Context, slug string) (*directory.Listing, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+listingColumns+` FROM listings WHERE slug = $1 ORDER BY created_at LIMIT 1`, slug)
	return scanListing(row)
}

// SetListingFeatured implements directory.ListingStore
func (s *Storage) SetListingFeatured(ctx context.Context, id string, featured bool) error {
	return s.setListingFlag(ctx, "is_featured", id, featured)
}

// SetListingPublished implements directory.ListingStore
func (s *Storage) SetListingPublished(ctx context.Context, id string, published bool) error {
	return s.setListingFlag(ctx, "is_published", id, published)
}

func (s *Storage) setListingFlag(ctx context.Context, column, id string, value bool) error {
	tag, err := s.pool.Exec(ctx,
		fmt.Sprintf(`UPDATE listings SET %s = $1, updated_at = now() WHERE id = $2`, column),
		value, id)
	if err != nil {
		return fmt.Errorf("failed to update listing: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return directory.ErrListingNotFound
	}
	return nil
}

// CreateLead implements directory.LeadStore
func (s *Storage) CreateLead(ctx context.Context, lead *directory.QuoteRequest) error {
	if lead == nil || lead.ID == "" || lead.ListingID == "" {
		return fmt.Errorf("invalid quote request")
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO quote_requests
				(id, listing_id, requester_name, requester_email, requester_phone, message, status, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		lead.ID, lead.ListingID, lead.RequesterName, lead.RequesterEmail,
		lead.RequesterPhone, lead.Message, string(lead.Status), lead.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create quote request: %w", err)
	}
	return nil
}

const leadColumns = `id, listing_id, requester_name, requester_email, requester_phone,
	message, status, created_at, read_at`

func scanLead(row pgx.Row) (*directory.QuoteRequest, error) {
	var lead directory.QuoteRequest
	var status string
	err := row.Scan(
		&lead.ID, &lead.ListingID, &lead.RequesterName, &lead.RequesterEmail,
		&lead.RequesterPhone, &lead.Message, &status, &lead.CreatedAt, &lead.ReadAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, directory.ErrLeadNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get quote request: %w", err)
	}
	lead.Status = directory.LeadStatus(status)
	return &lead, nil
}

// GetLead implements directory.LeadStore
func (s *Storage) GetLead(ctx context.Context, id string) (*directory.QuoteRequest, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+leadColumns+` FROM quote_requests WHERE id = $1`, id)
	return scanLead(row)
}

// LeadsByListing implements directory.LeadStore
func (s *Storage) LeadsByListing(ctx context.Context, listingID string) ([]*directory.QuoteRequest, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+leadColumns+` FROM quote_requests
			WHERE listing_id = $1 ORDER BY created_at DESC`, listingID)
	if err != nil {
		return nil, fmt.Errorf("failed to list quote requests: %w", err)
	}
	defer rows.Close()

	var out []*directory.QuoteRequest
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, lead)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list quote requests: %w", err)
	}
	return out, nil
}

// MarkLeadRead implements directory.LeadStore. The read time is set
// once and kept on repeat calls.
func (s *Storage) MarkLeadRead(ctx context.Context, id string, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE quote_requests SET read_at = COALESCE(read_at, $1) WHERE id = $2`,
		at.UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to mark quote request read: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return directory.ErrLeadNotFound
	}
	return nil
}
