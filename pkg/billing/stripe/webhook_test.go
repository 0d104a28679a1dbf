package stripe

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v83"

	"github.com/ridgelist/ridgelist/pkg/billing"
	"github.com/ridgelist/ridgelist/pkg/subscription"
	"github.com/ridgelist/ridgelist/storage/memory"
)

// signPayload builds a Stripe-Signature header for the raw body, the
// same scheme stripe.ConstructEvent verifies: HMAC-SHA256 over
// "<timestamp>.<payload>".
func signPayload(body []byte, secret string, at time.Time) string {
	ts := at.Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts, body)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func postWebhook(t *testing.T, p *Provider, body []byte, sig string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
	if sig != "" {
		req.Header.Set("Stripe-Signature", sig)
	}
	p.WebhookHandler().ServeHTTP(rec, req)
	return rec
}

func TestWebhookRejectsMissingSignature(t *testing.T) {
	p := newTestProvider(t, memory.New(), &fakeAPI{})
	body := []byte(`{"id":"evt_1","type":"customer.subscription.deleted","data":{"object":{}}}`)

	rec := postWebhook(t, p, body, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWebhookRejectsTamperedBody(t *testing.T) {
	p := newTestProvider(t, memory.New(), &fakeAPI{})
	body := []byte(`{"id":"evt_1","type":"customer.subscription.deleted","data":{"object":{"customer":"cus_1"}}}`)
	sig := signPayload(body, testWebhookSecret, time.Now())

	tampered := bytes.Replace(body, []byte("cus_1"), []byte("cus_2"), 1)
	rec := postWebhook(t, p, tampered, sig)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWebhookAcceptsGenericSecretSignature(t *testing.T) {
	p, err := NewProvider(Config{
		Config: billing.Config{
			Profiles:      memory.New(),
			APIKey:        "sk_generic_key",
			WebhookSecret: "whsec_generic",
		},
	})
	require.NoError(t, err)
	p.api = &fakeAPI{}

	body := []byte(`{"id":"evt_1","type":"payment_intent.created","data":{"object":{}}}`)
	rec := postWebhook(t, p, body, signPayload(body, "whsec_generic", time.Now()))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestVerifyEventWrapsSignatureError(t *testing.T) {
	p := newTestProvider(t, memory.New(), &fakeAPI{})
	body := []byte(`{"id":"evt_1","type":"customer.subscription.deleted","data":{"object":{}}}`)

	_, err := p.verifyEvent(body, "t=1,v1=deadbeef")
	assert.ErrorIs(t, err, billing.ErrInvalidWebhookSignature)
}

func TestWebhookRejectsWrongSecret(t *testing.T) {
	p := newTestProvider(t, memory.New(), &fakeAPI{})
	body := []byte(`{"id":"evt_1","type":"customer.subscription.deleted","data":{"object":{}}}`)
	sig := signPayload(body, "whsec_other", time.Now())

	rec := postWebhook(t, p, body, sig)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWebhookRejectsStaleTimestamp(t *testing.T) {
	p := newTestProvider(t, memory.New(), &fakeAPI{})
	body := []byte(`{"id":"evt_1","type":"customer.subscription.deleted","data":{"object":{}}}`)
	sig := signPayload(body, testWebhookSecret, time.Now().Add(-time.Hour))

	rec := postWebhook(t, p, body, sig)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWebhookMethodNotAllowed(t *testing.T) {
	p := newTestProvider(t, memory.New(), &fakeAPI{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/webhook", nil)
	p.WebhookHandler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestWebhookSecretNotConfigured(t *testing.T) {
	p := newTestProvider(t, memory.New(), &fakeAPI{})
	p.webhookSecret = nil

	body := []byte(`{"id":"evt_1","type":"customer.subscription.deleted","data":{"object":{}}}`)
	rec := postWebhook(t, p, body, signPayload(body, testWebhookSecret, time.Now()))
	// 5xx so the provider keeps the event queued until config is fixed.
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestWebhookEmptyBody(t *testing.T) {
	p := newTestProvider(t, memory.New(), &fakeAPI{})

	rec := postWebhook(t, p, nil, "t=1,v1=abc")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhookPayloadTooLarge(t *testing.T) {
	p := newTestProvider(t, memory.New(), &fakeAPI{})

	body := bytes.Repeat([]byte("a"), maxWebhookBodyBytes+1)
	rec := postWebhook(t, p, body, "t=1,v1=abc")
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestWebhookSubscriptionDeletedCancels(t *testing.T) {
	store := memory.New()
	store.SeedProfile(&subscription.Profile{
		ID:               "acct_1",
		StripeCustomerID: "cus_1",
		Status:           subscription.StatusActive,
	})
	p := newTestProvider(t, store, &fakeAPI{})

	body := []byte(`{"id":"evt_1","type":"customer.subscription.deleted","data":{"object":{"id":"sub_1","customer":"cus_1","status":"canceled"}}}`)
	rec := postWebhook(t, p, body, signPayload(body, testWebhookSecret, time.Now()))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"received":true`)

	profile, err := store.GetProfile(t.Context(), "acct_1")
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusCanceled, profile.Status)
	assert.False(t, profile.Entitled())
}

func TestWebhookInvoicePaymentFailedSuspends(t *testing.T) {
	store := memory.New()
	store.SeedProfile(&subscription.Profile{
		ID:               "acct_2",
		StripeCustomerID: "cus_2",
		Status:           subscription.StatusActive,
	})
	p := newTestProvider(t, store, &fakeAPI{})

	body := []byte(`{"id":"evt_2","type":"invoice.payment_failed","data":{"object":{"customer":"cus_2","subscription":"sub_2"}}}`)
	rec := postWebhook(t, p, body, signPayload(body, testWebhookSecret, time.Now()))

	require.Equal(t, http.StatusOK, rec.Code)
	profile, err := store.GetProfile(t.Context(), "acct_2")
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusPending, profile.Status)
}

func TestWebhookInvoicePaidActivates(t *testing.T) {
	store := memory.New()
	store.SeedProfile(&subscription.Profile{
		ID:               "acct_1",
		StripeCustomerID: "cus_1",
		Status:           subscription.StatusPending,
	})
	p := newTestProvider(t, store, &fakeAPI{})

	// Expanded-object references must resolve the same as plain ids.
	body := []byte(`{"id":"evt_3","type":"invoice.paid","data":{"object":{"customer":{"id":"cus_1"},"subscription":{"id":"sub_1"}}}}`)
	rec := postWebhook(t, p, body, signPayload(body, testWebhookSecret, time.Now()))

	require.Equal(t, http.StatusOK, rec.Code)
	profile, err := store.GetProfile(t.Context(), "acct_1")
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusActive, profile.Status)
	assert.Equal(t, "sub_1", profile.StripeSubscriptionID)
}

func TestWebhookNonSubscriptionInvoiceIgnored(t *testing.T) {
	store := memory.New()
	store.SeedProfile(&subscription.Profile{
		ID:               "acct_1",
		StripeCustomerID: "cus_1",
		Status:           subscription.StatusPending,
	})
	p := newTestProvider(t, store, &fakeAPI{})

	body := []byte(`{"id":"evt_4","type":"invoice.paid","data":{"object":{"customer":"cus_1"}}}`)
	rec := postWebhook(t, p, body, signPayload(body, testWebhookSecret, time.Now()))

	require.Equal(t, http.StatusOK, rec.Code)
	profile, err := store.GetProfile(t.Context(), "acct_1")
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusPending, profile.Status)
}

func TestWebhookCheckoutCompletedUsesLiveSubscriptionState(t *testing.T) {
	store := memory.New()
	store.SeedProfile(&subscription.Profile{ID: "acct_1"})
	api := &fakeAPI{
		subscriptionsByID: map[string]*stripe.Subscription{
			"sub_1": {
				ID:     "sub_1",
				Status: stripe.SubscriptionStatusActive,
				Items: &stripe.SubscriptionItemList{
					Data: []*stripe.SubscriptionItem{{CurrentPeriodEnd: 1790000000}},
				},
			},
		},
	}
	p := newTestProvider(t, store, api)

	body := []byte(`{"id":"evt_5","type":"checkout.session.completed","data":{"object":{"customer":"cus_1","subscription":"sub_1","metadata":{"account_id":"acct_1"}}}}`)
	rec := postWebhook(t, p, body, signPayload(body, testWebhookSecret, time.Now()))

	require.Equal(t, http.StatusOK, rec.Code)
	profile, err := store.GetProfile(t.Context(), "acct_1")
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusActive, profile.Status)
	assert.Equal(t, "cus_1", profile.StripeCustomerID)
	assert.Equal(t, "sub_1", profile.StripeSubscriptionID)
	require.NotNil(t, profile.CurrentPeriodEnd)
	assert.Equal(t, int64(1790000000), profile.CurrentPeriodEnd.Unix())
}

func TestWebhookCheckoutCompletedAPIFailureRetries(t *testing.T) {
	store := memory.New()
	store.SeedProfile(&subscription.Profile{ID: "acct_1"})
	p := newTestProvider(t, store, &fakeAPI{retrieveErr: fmt.Errorf("stripe down")})

	body := []byte(`{"id":"evt_6","type":"checkout.session.completed","data":{"object":{"subscription":"sub_1","metadata":{"account_id":"acct_1"}}}}`)
	rec := postWebhook(t, p, body, signPayload(body, testWebhookSecret, time.Now()))

	// 5xx so Stripe redelivers once the API is reachable again.
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	profile, err := store.GetProfile(t.Context(), "acct_1")
	require.NoError(t, err)
	assert.Equal(t, subscription.Status(""), profile.Status)
}

func TestWebhookUnknownEventAcknowledged(t *testing.T) {
	p := newTestProvider(t, memory.New(), &fakeAPI{})

	body := []byte(`{"id":"evt_7","type":"charge.refunded","data":{"object":{}}}`)
	rec := postWebhook(t, p, body, signPayload(body, testWebhookSecret, time.Now()))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"received":true`)
}

func TestWebhookOrphanEventAcknowledged(t *testing.T) {
	p := newTestProvider(t, memory.New(), &fakeAPI{})

	body := []byte(`{"id":"evt_8","type":"customer.subscription.deleted","data":{"object":{"customer":"cus_ghost"}}}`)
	rec := postWebhook(t, p, body, signPayload(body, testWebhookSecret, time.Now()))

	// No matching profile; a retry cannot fix it, so ack.
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWebhookMalformedEventObject(t *testing.T) {
	p := newTestProvider(t, memory.New(), &fakeAPI{})

	body := []byte(`{"id":"evt_9","type":"customer.subscription.updated","data":{"object":[1,2,3]}}`)
	rec := postWebhook(t, p, body, signPayload(body, testWebhookSecret, time.Now()))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhookIdempotentRedelivery(t *testing.T) {
	store := memory.New()
	store.SeedProfile(&subscription.Profile{
		ID:               "acct_1",
		StripeCustomerID: "cus_1",
		Status:           subscription.StatusActive,
	})
	p := newTestProvider(t, store, &fakeAPI{})

	body := []byte(`{"id":"evt_10","type":"customer.subscription.deleted","data":{"object":{"customer":"cus_1"}}}`)
	for i := 0; i < 3; i++ {
		rec := postWebhook(t, p, body, signPayload(body, testWebhookSecret, time.Now()))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	profile, err := store.GetProfile(t.Context(), "acct_1")
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusCanceled, profile.Status)
}

func TestWebhookSecurityHeaders(t *testing.T) {
	p := newTestProvider(t, memory.New(), &fakeAPI{})
	body := []byte(`{"id":"evt_11","type":"charge.refunded","data":{"object":{}}}`)

	rec := postWebhook(t, p, body, signPayload(body, testWebhookSecret, time.Now()))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestWebhookRateLimited(t *testing.T) {
	p := newTestProvider(t, memory.New(), &fakeAPI{})
	body := []byte(`{"id":"evt_12","type":"charge.refunded","data":{"object":{}}}`)

	var limited bool
	for i := 0; i < defaultRateLimitRequests+5; i++ {
		rec := postWebhook(t, p, body, signPayload(body, testWebhookSecret, time.Now()))
		if rec.Code == http.StatusTooManyRequests {
			limited = true
			break
		}
	}
	assert.True(t, limited, "expected rate limiting to kick in")
}
