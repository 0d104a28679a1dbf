package stripe

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v83"

	"github.com/ridgelist/ridgelist/pkg/billing"
	"github.com/ridgelist/ridgelist/pkg/billing/internal"
	"github.com/ridgelist/ridgelist/pkg/subscription"
)

type webhookResponse struct {
	Received bool `json:"received"`
}

type webhookError struct {
	Error string `json:"error"`
}

// handleWebhook processes incoming Stripe webhook events.
//
// Status codes follow the retry contract: 4xx for conditions retry
// cannot fix (bad signature, malformed payload), 5xx for conditions it
// can (missing secret, store failure). Lookup misses and unrecognized
// event types acknowledge 200 so Stripe never retry-storms orphans.
func (p *Provider) handleWebhook(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	setSecurityHeaders(w)

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if len(p.webhookSecret) == 0 {
		// Deployment error, not a client error. 5xx keeps the event
		// queued on Stripe's side until an operator fixes the config.
		_ = internal.WriteJSON(w, http.StatusInternalServerError, webhookError{Error: "webhook secret not configured"})
		p.metrics.RecordWebhookError(providerName, "not_configured")
		return
	}

	// The raw bytes must flow into signature verification unmodified;
	// verifying a re-serialized body breaks on canonicalization.
	body, err := internal.ReadBodyStrict(w, r, maxWebhookBodyBytes)
	if err != nil {
		if errors.Is(err, internal.ErrPayloadTooLarge) {
			_ = internal.WriteJSON(w, http.StatusRequestEntityTooLarge, webhookError{Error: "payload too large"})
			p.metrics.RecordWebhookError(providerName, "payload_too_large")
		} else {
			_ = internal.WriteJSON(w, http.StatusBadRequest, webhookError{Error: "invalid payload"})
			p.metrics.RecordWebhookError(providerName, "invalid_payload")
		}
		return
	}

	event, err := p.verifyEvent(body, r.Header.Get("Stripe-Signature"))
	if err != nil {
		_ = internal.WriteJSON(w, http.StatusUnauthorized, webhookError{Error: "signature verification failed"})
		p.metrics.RecordWebhookError(providerName, "auth_failed")
		p.logger.Warn("webhook signature rejected",
			subscription.Field{Key: "error", Value: err.Error()})
		return
	}

	eventType := string(event.Type)
	if eventType == "" {
		eventType = "UNKNOWN"
	}

	ev, err := p.normalizeEvent(r.Context(), &event)
	if err != nil {
		if errors.Is(err, billing.ErrInvalidWebhookPayload) {
			_ = internal.WriteJSON(w, http.StatusBadRequest, webhookError{Error: "malformed event payload"})
			p.metrics.RecordWebhookEvent(providerName, eventType, "error")
			p.metrics.RecordWebhookError(providerName, "invalid_payload")
			return
		}
		// Supplementary API lookup failed; Stripe redelivers.
		_ = internal.WriteJSON(w, http.StatusInternalServerError, webhookError{Error: "failed to process webhook"})
		p.metrics.RecordWebhookEvent(providerName, eventType, "error")
		p.metrics.RecordWebhookError(providerName, "processing_error")
		p.metrics.RecordWebhookProcessingDuration(providerName, eventType, time.Since(startTime))
		return
	}

	if ev.Kind == subscription.EventIgnored {
		_ = internal.WriteJSON(w, http.StatusOK, webhookResponse{Received: true})
		p.metrics.RecordWebhookEvent(providerName, eventType, "skipped")
		return
	}

	if err := p.reconciler.Reconcile(r.Context(), ev); err != nil {
		_ = internal.WriteJSON(w, http.StatusInternalServerError, webhookError{Error: "failed to process webhook"})
		p.metrics.RecordWebhookEvent(providerName, eventType, "error")
		p.metrics.RecordWebhookError(providerName, "processing_error")
		p.metrics.RecordWebhookProcessingDuration(providerName, eventType, time.Since(startTime))
		return
	}

	_ = internal.WriteJSON(w, http.StatusOK, webhookResponse{Received: true})
	p.metrics.RecordWebhookEvent(providerName, eventType, "success")
	p.metrics.RecordWebhookProcessingDuration(providerName, eventType, time.Since(startTime))
}

// verifyEvent checks the signature over the raw body and decodes the
// event envelope. Failures wrap billing.ErrInvalidWebhookSignature.
func (p *Provider) verifyEvent(body []byte, sigHeader string) (stripe.Event, error) {
	event, err := stripe.ConstructEvent(body, sigHeader, string(p.webhookSecret))
	if err != nil {
		return stripe.Event{}, fmt.Errorf("%w: %v", billing.ErrInvalidWebhookSignature, err)
	}
	return event, nil
}

func setSecurityHeaders(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Content-Type-Options", "nosniff")
}
