package api

import "time"

// SubscriptionResponse is the account's own view of its billing state.
type SubscriptionResponse struct {
	AccountID        string     `json:"account_id"`
	Status           string     `json:"status"` // "active", "pending", "canceled"
	Entitled         bool       `json:"entitled"`
	CurrentPeriodEnd *time.Time `json:"current_period_end,omitempty"`
	HasCustomer      bool       `json:"has_customer"`
	HasSubscription  bool       `json:"has_subscription"`
}

// RedirectResponse carries a hosted-page URL for the client to follow.
type RedirectResponse struct {
	URL string `json:"url"`
}

// quoteNotifyPayload is the database-webhook envelope for quote-request
// inserts. The record may arrive nested or at the top level.
type quoteNotifyPayload struct {
	Record *quoteRecord `json:"record"`
	quoteRecord
}

type quoteRecord struct {
	ID             string `json:"id"`
	ListingID      string `json:"listing_id"`
	RequesterName  string `json:"requester_name"`
	RequesterEmail string `json:"requester_email"`
	RequesterPhone string `json:"requester_phone"`
	Message        string `json:"message"`
}

type featureRequest struct {
	ListingID string `json:"listing_id"`
	Featured  *bool  `json:"featured"`
}

type boostRequest struct {
	BoostKind string `json:"boost_type"`
}

type okResponse struct {
	OK      bool   `json:"ok"`
	Skipped string `json:"skipped,omitempty"`
	Emailed *bool  `json:"emailed,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}
