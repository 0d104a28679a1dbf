// Package http provides HTTP middleware for subscription gating
package http

import (
	"errors"
	"net/http"

	"github.com/ridgelist/ridgelist/pkg/subscription"
)

// AccountIDExtractor extracts the account ID from an HTTP request
// Return empty string if the caller is not authenticated
type AccountIDExtractor func(r *http.Request) string

// Config holds middleware configuration
type Config struct {
	// Profiles is the profile store (required)
	Profiles subscription.Store

	// GetAccountID extracts account ID from request (required)
	GetAccountID AccountIDExtractor

	// OnNotEntitled is called when the profile is not active
	// If nil, returns 402 Payment Required
	OnNotEntitled func(w http.ResponseWriter, r *http.Request, status subscription.Status)

	// OnUnauthorized is called when the caller is not authenticated
	// If nil, returns 401 Unauthorized
	OnUnauthorized func(w http.ResponseWriter, r *http.Request)

	// OnError is called when the profile lookup fails
	// If nil, returns 500 Internal Server Error
	OnError func(w http.ResponseWriter, r *http.Request, err error)
}

// RequireSubscription creates an HTTP middleware that only admits
// requests from accounts with an active subscription. The check always
// hits the store; entitlement is never trusted from the client.
func RequireSubscription(config Config) func(http.Handler) http.Handler {
	if config.Profiles == nil {
		panic("ridgelist/http: Config.Profiles is required")
	}
	if config.GetAccountID == nil {
		panic("ridgelist/http: Config.GetAccountID is required")
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			accountID := config.GetAccountID(r)
			if accountID == "" {
				if config.OnUnauthorized != nil {
					config.OnUnauthorized(w, r)
				} else {
					http.Error(w, "Unauthorized", http.StatusUnauthorized)
				}
				return
			}

			profile, err := config.Profiles.GetProfile(r.Context(), accountID)
			if err != nil {
				// A missing profile is a caller without a subscription,
				// not a server fault.
				if errors.Is(err, subscription.ErrProfileNotFound) {
					notEntitled(config, w, r, subscription.StatusCanceled)
					return
				}
				if config.OnError != nil {
					config.OnError(w, r, err)
				} else {
					http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				}
				return
			}

			if !profile.Entitled() {
				notEntitled(config, w, r, profile.Status)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func notEntitled(config Config, w http.ResponseWriter, r *http.Request, status subscription.Status) {
	if config.OnNotEntitled != nil {
		config.OnNotEntitled(w, r, status)
		return
	}
	http.Error(w, "Subscription required", http.StatusPaymentRequired)
}

// HandlerFunc creates an HTTP middleware that enforces the subscription
// gate (HandlerFunc version)
func HandlerFunc(config Config) func(http.HandlerFunc) http.HandlerFunc {
	middleware := RequireSubscription(config)
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			middleware(next).ServeHTTP(w, r)
		}
	}
}

// ContextKey is a type for context keys
type ContextKey string

const (
	// AccountIDKey is the context key for account ID
	AccountIDKey ContextKey = "ridgelist:accountID"
)

// FromContext returns an AccountIDExtractor that gets the account ID
// from the request context
func FromContext(key ContextKey) AccountIDExtractor {
	return func(r *http.Request) string {
		if accountID, ok := r.Context().Value(key).(string); ok {
			return accountID
		}
		return ""
	}
}

// FromHeader returns an AccountIDExtractor that gets the account ID
// from a header (e.g. set by an auth proxy)
func FromHeader(headerName string) AccountIDExtractor {
	return func(r *http.Request) string {
		return r.Header.Get(headerName)
	}
}
