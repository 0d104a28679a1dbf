// Package rediscache provides a read-through Redis cache in front of a
// subscription.Store. Reads hit Redis first; writes go straight to the
// backing store and invalidate the cached entry, so the entitlement
// checks on every gated request stay cheap without serving stale
// billing state after a webhook lands.
package rediscache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ridgelist/ridgelist/pkg/subscription"
)

// Store wraps a subscription.Store with a Redis profile cache.
type Store struct {
	backing subscription.Store
	client  redis.UniversalClient
	config  Config
	logger  subscription.Logger
}

// Config holds Redis cache configuration
type Config struct {
	// KeyPrefix is prepended to all Redis keys (default: "ridgelist:")
	KeyPrefix string

	// ProfileTTL bounds staleness when an invalidation is lost
	// (default: 5 minutes).
	ProfileTTL time.Duration
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		KeyPrefix:  "ridgelist:",
		ProfileTTL: 5 * time.Minute,
	}
}

// New creates a Redis-cached store in front of backing.
// The client can be *redis.Client, *redis.ClusterClient, or *redis.Ring.
func New(backing subscription.Store, client redis.UniversalClient, config Config, logger subscription.Logger) (*Store, error) {
	if backing == nil {
		return nil, fmt.Errorf("backing store is required")
	}
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = "ridgelist:"
	}
	if config.ProfileTTL == 0 {
		config.ProfileTTL = 5 * time.Minute
	}
	if logger == nil {
		logger = &subscription.NoopLogger{}
	}
	return &Store{backing: backing, client: client, config: config, logger: logger}, nil
}

func (s *Store) profileKey(accountID string) string {
	return s.config.KeyPrefix + "profile:" + accountID
}

// GetProfile implements subscription.Store with a read-through cache.
// Cache failures degrade to the backing store, never to an error.
func (s *Store) GetProfile(ctx context.Context, accountID string) (*subscription.Profile, error) {
	key := s.profileKey(accountID)

	data, err := s.client.Get(ctx, key).Bytes()
	if err == nil {
		var p subscription.Profile
		if err := json.Unmarshal(data, &p); err == nil {
			return &p, nil
		}
		// Corrupt entry; drop it and fall through to the store.
		_ = s.client.Del(ctx, key).Err()
	} else if err != redis.Nil {
		s.logger.Warn("profile cache read failed",
			subscription.Field{Key: "error", Value: err.Error()})
	}

	p, err := s.backing.GetProfile(ctx, accountID)
	if err != nil {
		return nil, err
	}
	s.cacheProfile(ctx, key, p)
	return p, nil
}

// GetProfileByCustomerID implements subscription.Store. Customer-id
// lookups come from webhook reconciliation, not from request-path
// entitlement checks, so they skip the cache entirely.
func (s *Store) GetProfileByCustomerID(ctx context.Context, customerID string) (*subscription.Profile, error) {
	return s.backing.GetProfileByCustomerID(ctx, customerID)
}

// UpdateProfile implements subscription.Store. Write-through with
// invalidation: the cached entry is dropped after a successful update.
func (s *Store) UpdateProfile(ctx context.Context, accountID string, patch subscription.Patch) error {
	if err := s.backing.UpdateProfile(ctx, accountID, patch); err != nil {
		return err
	}
	s.invalidate(ctx, accountID)
	return nil
}

// UpdateProfileByCustomerID implements subscription.Store. The account
// id behind the customer is not known here, so the profile is resolved
// first to invalidate its cache entry.
func (s *Store) UpdateProfileByCustomerID(ctx context.Context, customerID string, patch subscription.Patch) error {
	p, err := s.backing.GetProfileByCustomerID(ctx, customerID)
	if err != nil {
		return err
	}
	if err := s.backing.UpdateProfile(ctx, p.ID, patch); err != nil {
		return err
	}
	s.invalidate(ctx, p.ID)
	return nil
}

func (s *Store) cacheProfile(ctx context.Context, key string, p *subscription.Profile) {
	data, err := json.Marshal(p)
	if err != nil {
		return
	}
	if err := s.client.Set(ctx, key, data, s.config.ProfileTTL).Err(); err != nil {
		s.logger.Warn("profile cache write failed",
			subscription.Field{Key: "error", Value: err.Error()})
	}
}

func (s *Store) invalidate(ctx context.Context, accountID string) {
	if err := s.client.Del(ctx, s.profileKey(accountID)).Err(); err != nil {
		s.logger.Warn("profile cache invalidation failed",
			subscription.Field{Key: "account", Value: subscription.Pseudonymize(accountID)},
			subscription.Field{Key: "error", Value: err.Error()})
	}
}

// Ping verifies the Redis connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
