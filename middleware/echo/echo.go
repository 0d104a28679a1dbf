// Package echo provides Echo middleware for subscription gating
package echo

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ridgelist/ridgelist/pkg/subscription"
)

// AccountIDExtractor extracts the account ID from an Echo context
// Return empty string if the caller is not authenticated
type AccountIDExtractor func(c echo.Context) string

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
	OnNotEntitled func(c echo.Context, status subscription.Status) error

	// OnUnauthorized is called when the caller is not authenticated
	// If nil, returns 401 Unauthorized
	OnUnauthorized func(c echo.Context) error

	// OnError is called when the profile lookup fails
	// If nil, returns 500 Internal Server Error
	OnError func(c echo.Context, err error) error
}

// RequireSubscription creates an Echo middleware that only admits
// requests from accounts with an active subscription
func RequireSubscription(cfg Config) echo.MiddlewareFunc {
	// Validate required configuration at startup (fail fast)
	if cfg.Profiles == nil {
		panic("ridgelist/echo: Config.Profiles is required")
	}
	if cfg.GetAccountID == nil {
		panic("ridgelist/echo: Config.GetAccountID is required")
	}
	if cfg.NotEntitledStatusCode == 0 {
		cfg.NotEntitledStatusCode = http.StatusPaymentRequired
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			accountID := cfg.GetAccountID(c)
			if accountID == "" {
				if cfg.OnUnauthorized != nil {
					return cfg.OnUnauthorized(c)
				}
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			}

			profile, err := cfg.Profiles.GetProfile(c.Request().Context(), accountID)
			if err != nil {
				if errors.Is(err, subscription.ErrProfileNotFound) {
					return notEntitled(cfg, c, subscription.StatusCanceled)
				}
				if cfg.OnError != nil {
					return cfg.OnError(c, err)
				}
				return c.JSON(http.StatusInternalServerError, map[string]string{"error": "subscription check failed"})
			}

			if !profile.Entitled() {
				return notEntitled(cfg, c, profile.Status)
			}

			return next(c)
		}
	}
}

func notEntitled(cfg Config, c echo.Context, status subscription.Status) error {
	if cfg.OnNotEntitled != nil {
		return cfg.OnNotEntitled(c, status)
	}
	return c.JSON(cfg.NotEntitledStatusCode, map[string]string{
		"error":  "subscription required",
		"status": string(status),
	})
}

// FromContext returns an AccountIDExtractor that gets the account ID
// from an Echo context key (e.g. set by an auth middleware)
func FromContext(key string) AccountIDExtractor {
	return func(c echo.Context) string {
		if accountID, ok := c.Get(key).(string); ok {
			return accountID
		}
		return ""
	}
}

// FromHeader returns an AccountIDExtractor that gets the account ID
// from a header
func FromHeader(headerName string) AccountIDExtractor {
	return func(c echo.Context) string {
		return c.Request().Header.Get(headerName)
	}
}
