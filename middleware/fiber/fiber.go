// Package fiber provides Fiber middleware for subscription gating
package fiber

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/ridgelist/ridgelist/pkg/subscription"
)

// AccountIDExtractor extracts the account ID from a Fiber context
// Return empty string if the caller is not authenticated
type AccountIDExtractor func(c *fiber.Ctx) string

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
	OnNotEntitled func(c *fiber.Ctx, status subscription.Status) error

	// OnUnauthorized is called when the caller is not authenticated
	// If nil, returns 401 Unauthorized
	OnUnauthorized func(c *fiber.Ctx) error

	// OnError is called when the profile lookup fails
	// If nil, returns 500 Internal Server Error
	OnError func(c *fiber.Ctx, err error) error
}

// RequireSubscription creates a Fiber middleware that only admits
// requests from accounts with an active subscription
func RequireSubscription(cfg Config) fiber.Handler {
	// Validate required configuration at startup (fail fast)
	if cfg.Profiles == nil {
		panic("ridgelist/fiber: Config.Profiles is required")
	}
	if cfg.GetAccountID == nil {
		panic("ridgelist/fiber: Config.GetAccountID is required")
	}
	if cfg.NotEntitledStatusCode == 0 {
		cfg.NotEntitledStatusCode = fiber.StatusPaymentRequired
	}

	return func(c *fiber.Ctx) error {
		accountID := cfg.GetAccountID(c)
		if accountID == "" {
			if cfg.OnUnauthorized != nil {
				return cfg.OnUnauthorized(c)
			}
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
		}

		profile, err := cfg.Profiles.GetProfile(c.UserContext(), accountID)
		if err != nil {
			if errors.Is(err, subscription.ErrProfileNotFound) {
				return notEntitled(cfg, c, subscription.StatusCanceled)
			}
			if cfg.OnError != nil {
				return cfg.OnError(c, err)
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "subscription check failed"})
		}

		if !profile.Entitled() {
			return notEntitled(cfg, c, profile.Status)
		}

		return c.Next()
	}
}

func notEntitled(cfg Config, c *fiber.Ctx, status subscription.Status) error {
	if cfg.OnNotEntitled != nil {
		return cfg.OnNotEntitled(c, status)
	}
	return c.Status(cfg.NotEntitledStatusCode).JSON(fiber.Map{
		"error":  "subscription required",
		"status": string(status),
	})
}

// FromLocals returns an AccountIDExtractor that gets the account ID
// from Fiber locals (e.g. set by an auth middleware)
func FromLocals(key string) AccountIDExtractor {
	return func(c *fiber.Ctx) string {
		if accountID, ok := c.Locals(key).(string); ok {
			return accountID
		}
		return ""
	}
}

// FromHeader returns an AccountIDExtractor that gets the account ID
// from a header
func FromHeader(headerName string) AccountIDExtractor {
	return func(c *fiber.Ctx) string {
		return c.Get(headerName)
	}
}
