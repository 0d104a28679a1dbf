package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	middlewarehttp "github.com/ridgelist/ridgelist/middleware/http"
	"github.com/ridgelist/ridgelist/pkg/directory"
)

type listingRequest struct {
	BusinessName string `json:"business_name"`
	Category     string `json:"category"`
	City         string `json:"city"`
	County       string `json:"county"`
	State        string `json:"state"`
	ServiceArea  string `json:"service_area"`
	Headline     string `json:"headline"`
	Description  string `json:"description"`
	Phone        string `json:"phone"`
	Website      string `json:"website"`
	EmailPublic  string `json:"email_public"`
	LogoURL      string `json:"logo_url"`
	CoverURL     string `json:"cover_url"`
	Publish      bool   `json:"publish"`
}

type listingResponse struct {
	ID           string `json:"id"`
	Slug         string `json:"slug"`
	BusinessName string `json:"business_name"`
	Category     string `json:"category,omitempty"`
	City         string `json:"city,omitempty"`
	County       string `json:"county,omitempty"`
	State        string `json:"state"`
	ServiceArea  string `json:"service_area,omitempty"`
	Headline     string `json:"headline,omitempty"`
	Description  string `json:"description,omitempty"`
	Phone        string `json:"phone,omitempty"`
	Website      string `json:"website,omitempty"`
	EmailPublic  string `json:"email_public,omitempty"`
	LogoURL      string `json:"logo_url,omitempty"`
	CoverURL     string `json:"cover_url,omitempty"`
	IsPublished  bool   `json:"is_published"`
	IsFeatured   bool   `json:"is_featured"`
}

func toListingResponse(l *directory.Listing) listingResponse {
	return listingResponse{
		ID:           l.ID,
		Slug:         l.Slug,
		BusinessName: l.BusinessName,
		Category:     l.Category,
		City:         l.City,
		County:       l.County,
		State:        l.State,
		ServiceArea:  l.ServiceArea,
		Headline:     l.Headline,
		Description:  l.Description,
		Phone:        l.Phone,
		Website:      l.Website,
		EmailPublic:  l.EmailPublic,
		LogoURL:      l.LogoURL,
		CoverURL:     l.CoverURL,
		IsPublished:  l.IsPublished,
		IsFeatured:   l.IsFeatured,
	}
}

type quoteSubmitRequest struct {
	ListingID string `json:"listing_id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Message   string `json:"message"`
}

type leadResponse struct {
	ID             string `json:"id"`
	RequesterName  string `json:"requester_name"`
	RequesterEmail string `json:"requester_email"`
	RequesterPhone string `json:"requester_phone,omitempty"`
	Message        string `json:"message,omitempty"`
	Status         string `json:"status"`
	CreatedAt      string `json:"created_at"`
	Read           bool   `json:"read"`
}

// directoryRoutes mounts the listing and lead endpoints. The leads
// inbox sits behind the subscription gate: lead access is the paid
// feature, and the gate re-checks the store on every request.
func (h *Handler) directoryRoutes(r chi.Router) {
	r.Get("/api/listings/{slug}", h.ListingBySlug)
	r.Post("/api/quotes", h.SubmitQuote)
	r.Put("/api/me/listing", h.SaveListing)

	gate := middlewarehttp.RequireSubscription(middlewarehttp.Config{
		Profiles:     h.config.Profiles,
		GetAccountID: middlewarehttp.AccountIDExtractor(h.config.GetAccountID),
	})
	r.Group(func(r chi.Router) {
		r.Use(gate)
		r.Get("/api/me/leads", h.Leads)
		r.Post("/api/me/leads/{id}/read", h.MarkLeadRead)
	})
}

// ListingBySlug is the public listing page lookup. Unpublished
// listings are not served.
func (h *Handler) ListingBySlug(w http.ResponseWriter, r *http.Request) {
	listing, err := h.config.Directory.GetBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil || !listing.IsPublished {
		h.writeError(w, http.StatusNotFound, "listing not found")
		return
	}
	h.writeJSON(w, http.StatusOK, toListingResponse(listing))
}

// SaveListing upserts the authenticated owner's listing. Publishing is
// requested here but granted by the service based on entitlement.
func (h *Handler) SaveListing(w http.ResponseWriter, r *http.Request) {
	accountID := h.config.GetAccountID(r)
	if accountID == "" {
		h.writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	var req listingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	listing, err := h.config.Directory.SaveListing(r.Context(), accountID, directory.ListingInput{
		BusinessName: req.BusinessName,
		Category:     req.Category,
		City:         req.City,
		County:       req.County,
		State:        req.State,
		ServiceArea:  req.ServiceArea,
		Headline:     req.Headline,
		Description:  req.Description,
		Phone:        req.Phone,
		Website:      req.Website,
		EmailPublic:  req.EmailPublic,
		LogoURL:      req.LogoURL,
		CoverURL:     req.CoverURL,
		Publish:      req.Publish,
	})
	if err != nil {
		if errors.Is(err, directory.ErrInvalidInput) {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.writeError(w, http.StatusInternalServerError, "failed to save listing")
		return
	}
	h.writeJSON(w, http.StatusOK, toListingResponse(listing))
}

// SubmitQuote is the public lead-capture endpoint.
func (h *Handler) SubmitQuote(w http.ResponseWriter, r *http.Request) {
	var req quoteSubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	lead, err := h.config.Directory.SubmitQuoteRequest(r.Context(), req.ListingID,
		req.Name, req.Email, req.Phone, req.Message)
	if err != nil {
		switch {
		case errors.Is(err, directory.ErrListingNotFound):
			h.writeError(w, http.StatusNotFound, "listing not found")
		case errors.Is(err, directory.ErrInvalidInput):
			h.writeError(w, http.StatusBadRequest, err.Error())
		default:
			h.writeError(w, http.StatusInternalServerError, "failed to submit quote request")
		}
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]string{"id": lead.ID})
}

// Leads returns the authenticated owner's inbox. Gated: reaching this
// handler means the subscription check already passed.
func (h *Handler) Leads(w http.ResponseWriter, r *http.Request) {
	accountID := h.config.GetAccountID(r)

	leads, err := h.config.Directory.Leads(r.Context(), accountID)
	if err != nil {
		if errors.Is(err, directory.ErrListingNotFound) {
			h.writeJSON(w, http.StatusOK, []leadResponse{})
			return
		}
		h.writeError(w, http.StatusInternalServerError, "failed to load leads")
		return
	}

	out := make([]leadResponse, 0, len(leads))
	for _, lead := range leads {
		out = append(out, leadResponse{
			ID:             lead.ID,
			RequesterName:  lead.RequesterName,
			RequesterEmail: lead.RequesterEmail,
			RequesterPhone: lead.RequesterPhone,
			Message:        lead.Message,
			Status:         string(lead.Status),
			CreatedAt:      lead.CreatedAt.UTC().Format(time.RFC3339),
			Read:           lead.ReadAt != nil,
		})
	}
	h.writeJSON(w, http.StatusOK, out)
}

// MarkLeadRead stamps a lead's read time for the authenticated owner.
func (h *Handler) MarkLeadRead(w http.ResponseWriter, r *http.Request) {
	accountID := h.config.GetAccountID(r)

	err := h.config.Directory.MarkLeadRead(r.Context(), accountID, chi.URLParam(r, "id"))
	if err != nil {
		switch {
		case errors.Is(err, directory.ErrNotOwner):
			h.writeError(w, http.StatusForbidden, "not your lead")
		case errors.Is(err, directory.ErrLeadNotFound), errors.Is(err, directory.ErrListingNotFound):
			h.writeError(w, http.StatusNotFound, "lead not found")
		default:
			h.writeError(w, http.StatusInternalServerError, "failed to mark lead read")
		}
		return
	}
	h.writeJSON(w, http.StatusOK, okResponse{OK: true})
}
