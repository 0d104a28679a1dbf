// Package gin provides Gin middleware for subscription gating
package gin

import (
	"errors"
	"net/http"

	gongin "github.com/gin-gonic/gin"

	"github.com/ridgelist/ridgelist/pkg/subscription"
)

// AccountIDExtractor extracts the account ID from a Gin context
// Return empty string if the caller is not authenticated
type AccountIDExtractor func(c *gongin.Context) string

// Config holds middleware configuration
type Config struct {
	// Profiles is the profile store (required)
	Profiles subscription.Store

	// GetAccountID extracts account ID from context (required)
	GetAccountID AccountIDExtractor

	// NotEntitledStatusCode is the HTTP status code returned when the
	// profile is not active. Default: 402 (Payment Required)
	NotEntitledStatusCode int

	// OnNotEntitled is called when the profile is not active
	// If nil, uses default response: NotEntitledStatusCode JSON
	OnNotEntitled func(c *gongin.Context, status subscription.Status)

	// OnUnauthorized is called when the caller is not authenticated
	// If nil, returns 401 Unauthorized
	OnUnauthorized func(c *gongin.Context)

	// OnError is called when the profile lookup fails
	// If nil, returns 500 Internal Server Error
	OnError func(c *gongin.Context, err error)
}

// RequireSubscription creates a Gin middleware that only admits
// requests from accounts with an active subscription
func RequireSubscription(cfg Config) gongin.HandlerFunc {
	// Validate required configuration at startup (fail fast)
	if cfg.Profiles == nil {
		panic("ridgelist/gin: Config.Profiles is required")
	}
	if cfg.GetAccountID == nil {
		panic("ridgelist/gin: Config.GetAccountID is required")
	}
	if cfg.NotEntitledStatusCode == 0 {
		cfg.NotEntitledStatusCode = http.StatusPaymentRequired
	}

	return func(c *gongin.Context) {
		accountID := cfg.GetAccountID(c)
		if accountID == "" {
			if cfg.OnUnauthorized != nil {
				cfg.OnUnauthorized(c)
			} else {
				c.JSON(http.StatusUnauthorized, gongin.H{"error": "unauthorized"})
			}
			c.Abort()
			return
		}

		profile, err := cfg.Profiles.GetProfile(c.Request.Context(), accountID)
		if err != nil {
			if errors.Is(err, subscription.ErrProfileNotFound) {
				notEntitled(cfg, c, subscription.StatusCanceled)
				return
			}
			if cfg.OnError != nil {
				cfg.OnError(c, err)
			} else {
				c.JSON(http.StatusInternalServerError, gongin.H{"error": "subscription check failed"})
			}
			c.Abort()
			return
		}

		if !profile.Entitled() {
			notEntitled(cfg, c, profile.Status)
			return
		}

		c.Next()
	}
}

func notEntitled(cfg Config, c *gongin.Context, status subscription.Status) {
	if cfg.OnNotEntitled != nil {
		cfg.OnNotEntitled(c, status)
	} else {
		c.JSON(cfg.NotEntitledStatusCode, gongin.H{
			"error":  "subscription required",
			"status": string(status),
		})
	}
	c.Abort()
}

// FromContext returns an AccountIDExtractor that gets the account ID
// from a Gin context key (e.g. set by an auth middleware)
func FromContext(key string) AccountIDExtractor {
	return func(c *gongin.Context) string {
		if accountID, ok := c.Get(key); ok {
			if s, ok := accountID.(string); ok {
				return s
			}
		}
		return ""
	}
}

// FromHeader returns an AccountIDExtractor that gets the account ID
// from a header
func FromHeader(headerName string) AccountIDExtractor {
	return func(c *gongin.Context) string {
		return c.GetHeader(headerName)
	}
}
