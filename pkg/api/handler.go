// Package api exposes the ridgelist HTTP surface: billing redirects,
// the Stripe webhook, the quote-notification webhook, the admin
// feature toggle, and the account's subscription self-view.
package api

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ridgelist/ridgelist/pkg/billing"
	"github.com/ridgelist/ridgelist/pkg/directory"
	"github.com/ridgelist/ridgelist/pkg/subscription"
)

// Handler provides the application's HTTP endpoints
type Handler struct {
	config Config
}

// Routes mounts all endpoints on a chi router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Method(http.MethodPost, "/api/stripe/webhook", h.config.Billing.WebhookHandler())
	r.Post("/api/stripe/checkout", h.Checkout)
	r.Post("/api/stripe/portal", h.Portal)
	r.Post("/api/stripe/boost", h.Boost)
	r.Post("/api/stripe/sync", h.Sync)
	r.Post("/api/quotes/notify", h.QuoteNotify)
	r.Post("/api/admin/feature", h.AdminFeature)
	r.Get("/api/me/subscription", h.MySubscription)

	h.directoryRoutes(r)

	return r
}

// Checkout starts a subscription checkout and returns the hosted URL.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	accountID := h.config.GetAccountID(r)
	if accountID == "" {
		h.writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	url, err := h.config.Billing.CheckoutURL(r.Context(), accountID,
		h.config.BaseURL+"/dashboard?checkout=success",
		h.config.BaseURL+"/pricing?checkout=cancel")
	if err != nil {
		h.writeBillingError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, RedirectResponse{URL: url})
}

// Portal opens the Stripe customer portal for subscription management.
func (h *Handler) Portal(w http.ResponseWriter, r *http.Request) {
	accountID := h.config.GetAccountID(r)
	if accountID == "" {
		h.writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	url, err := h.config.Billing.PortalURL(r.Context(), accountID, h.config.BaseURL+"/account")
	if err != nil {
		h.writeBillingError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, RedirectResponse{URL: url})
}

// Boost starts a one-time payment checkout for a listing boost.
func (h *Handler) Boost(w http.ResponseWriter, r *http.Request) {
	accountID := h.config.GetAccountID(r)
	if accountID == "" {
		h.writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	var req boostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.BoostKind == "" {
		h.writeError(w, http.StatusBadRequest, "invalid boost type")
		return
	}

	url, err := h.config.Billing.BoostCheckoutURL(r.Context(), accountID, req.BoostKind,
		h.config.BaseURL+"/dashboard", h.config.BaseURL+"/dashboard")
	if err != nil {
		if errors.Is(err, billing.ErrPriceNotConfigured) {
			h.writeError(w, http.StatusBadRequest, "invalid boost type")
			return
		}
		h.writeBillingError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, RedirectResponse{URL: url})
}

// Sync forces a resynchronization of the account's subscription status
// from the Stripe API ("restore purchases").
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	accountID := h.config.GetAccountID(r)
	if accountID == "" {
		h.writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	status, err := h.config.Billing.SyncAccount(r.Context(), accountID)
	if err != nil {
		h.writeBillingError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": status})
}

// MySubscription returns the account's own billing state.
func (h *Handler) MySubscription(w http.ResponseWriter, r *http.Request) {
	accountID := h.config.GetAccountID(r)
	if accountID == "" {
		h.writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	profile, err := h.config.Profiles.GetProfile(r.Context(), accountID)
	if err != nil {
		if errors.Is(err, subscription.ErrProfileNotFound) {
			h.writeError(w, http.StatusNotFound, "profile not found")
			return
		}
		h.writeError(w, http.StatusInternalServerError, "profile lookup failed")
		return
	}

	h.writeJSON(w, http.StatusOK, SubscriptionResponse{
		AccountID:        profile.ID,
		Status:           string(profile.Status),
		Entitled:         profile.Entitled(),
		CurrentPeriodEnd: profile.CurrentPeriodEnd,
		HasCustomer:      profile.StripeCustomerID != "",
		HasSubscription:  profile.StripeSubscriptionID != "",
	})
}

// QuoteNotify is the database-webhook target fired on quote-request
// inserts. Authenticated by shared secret; every skip path returns 200
// so the upstream webhook never retry-storms.
func (h *Handler) QuoteNotify(w http.ResponseWriter, r *http.Request) {
	if h.config.QuotesWebhookSecret == "" {
		// No secret means the endpoint is disabled, not broken. 404
		// keeps the upstream webhook from retry-storming a 5xx.
		h.writeError(w, http.StatusNotFound, "not found")
		return
	}
	if !secretMatches(r.Header.Get("X-Webhook-Secret"), h.config.QuotesWebhookSecret) {
		h.writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var payload quoteNotifyPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	record := payload.quoteRecord
	if payload.Record != nil {
		record = *payload.Record
	}
	if record.ListingID == "" {
		h.writeJSON(w, http.StatusOK, okResponse{OK: true, Skipped: "no listing_id"})
		return
	}

	lead := &directory.QuoteRequest{
		ID:             record.ID,
		ListingID:      record.ListingID,
		RequesterName:  record.RequesterName,
		RequesterEmail: record.RequesterEmail,
		RequesterPhone: record.RequesterPhone,
		Message:        record.Message,
	}
	skipped, err := h.config.Directory.NotifyOwner(r.Context(), lead)
	if err != nil {
		// Delivery failure is reported but still acknowledged; the
		// lead is already stored and retrying the email is not worth a
		// webhook retry storm.
		emailed := false
		h.writeJSON(w, http.StatusOK, okResponse{OK: true, Emailed: &emailed})
		return
	}
	if skipped != "" {
		h.writeJSON(w, http.StatusOK, okResponse{OK: true, Skipped: skipped})
		return
	}

	emailed := true
	h.writeJSON(w, http.StatusOK, okResponse{OK: true, Emailed: &emailed})
}

// AdminFeature toggles a listing's featured flag. Admin-only via
// shared secret.
func (h *Handler) AdminFeature(w http.ResponseWriter, r *http.Request) {
	if h.config.AdminSecret == "" {
		h.writeError(w, http.StatusNotFound, "not found")
		return
	}
	if !secretMatches(r.Header.Get("X-Admin-Secret"), h.config.AdminSecret) {
		h.writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req featureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ListingID == "" || req.Featured == nil {
		h.writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	if err := h.config.Directory.SetFeatured(r.Context(), req.ListingID, *req.Featured); err != nil {
		if errors.Is(err, directory.ErrListingNotFound) {
			h.writeError(w, http.StatusNotFound, "listing not found")
			return
		}
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, okResponse{OK: true})
}

func (h *Handler) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.config.Logger.Error("failed to encode response",
			subscription.Field{Key: "error", Value: err.Error()})
	}
}

func (h *Handler) writeError(w http.ResponseWriter, code int, msg string) {
	h.writeJSON(w, code, errorResponse{Error: msg})
}

func (h *Handler) writeBillingError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, billing.ErrAccountNotFound):
		h.writeError(w, http.StatusNotFound, "profile not found")
	case errors.Is(err, billing.ErrCustomerNotFound):
		h.writeError(w, http.StatusConflict, "no billing customer for account")
	case errors.Is(err, billing.ErrPriceNotConfigured):
		h.writeError(w, http.StatusInternalServerError, "billing price not configured")
	default:
		h.config.Logger.Error("billing operation failed",
			subscription.Field{Key: "error", Value: err.Error()})
		h.writeError(w, http.StatusInternalServerError, "billing operation failed")
	}
}

// secretMatches compares a presented secret against the expected one in
// constant time.
func secretMatches(presented, expected string) bool {
	return subtle.ConstantTimeCompare([]byte(presented), []byte(expected)) == 1
}
