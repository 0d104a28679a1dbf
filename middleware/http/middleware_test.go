package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ridgelist/ridgelist/pkg/subscription"
	"github.com/ridgelist/ridgelist/storage/memory"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func doRequest(handler http.Handler, accountID string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/leads", nil)
	if accountID != "" {
		req.Header.Set("X-Account-ID", accountID)
	}
	handler.ServeHTTP(rec, req)
	return rec
}

func TestRequireSubscription(t *testing.T) {
	store := memory.New()
	store.SeedProfile(&subscription.Profile{ID: "active_user", Status: subscription.StatusActive})
	store.SeedProfile(&subscription.Profile{ID: "pending_user", Status: subscription.StatusPending})
	store.SeedProfile(&subscription.Profile{ID: "canceled_user", Status: subscription.StatusCanceled})

	handler := RequireSubscription(Config{
		Profiles:     store,
		GetAccountID: FromHeader("X-Account-ID"),
	})(okHandler())

	tests := []struct {
		name      string
		accountID string
		wantCode  int
	}{
		{"active passes", "active_user", http.StatusOK},
		{"pending blocked", "pending_user", http.StatusPaymentRequired},
		{"canceled blocked", "canceled_user", http.StatusPaymentRequired},
		{"unknown profile blocked", "ghost", http.StatusPaymentRequired},
		{"unauthenticated", "", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := doRequest(handler, tt.accountID); rec.Code != tt.wantCode {
				t.Errorf("code = %d, want %d", rec.Code, tt.wantCode)
			}
		})
	}
}

func TestRequireSubscriptionCustomHooks(t *testing.T) {
	store := memory.New()
	store.SeedProfile(&subscription.Profile{ID: "pending_user", Status: subscription.StatusPending})

	var gotStatus subscription.Status
	handler := RequireSubscription(Config{
		Profiles:     store,
		GetAccountID: FromHeader("X-Account-ID"),
		OnNotEntitled: func(w http.ResponseWriter, r *http.Request, status subscription.Status) {
			gotStatus = status
			w.WriteHeader(http.StatusForbidden)
		},
	})(okHandler())

	rec := doRequest(handler, "pending_user")
	if rec.Code != http.StatusForbidden {
		t.Errorf("code = %d, want 403", rec.Code)
	}
	if gotStatus != subscription.StatusPending {
		t.Errorf("status = %q, want pending", gotStatus)
	}
}

func TestRequireSubscriptionPanicsWithoutStore(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	RequireSubscription(Config{GetAccountID: FromHeader("X-Account-ID")})
}

func TestHandlerFuncVariant(t *testing.T) {
	store := memory.New()
	store.SeedProfile(&subscription.Profile{ID: "active_user", Status: subscription.StatusActive})

	called := false
	h := HandlerFunc(Config{
		Profiles:     store,
		GetAccountID: FromHeader("X-Account-ID"),
	})(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})

	rec := doRequest(h, "active_user")
	if rec.Code != http.StatusOK || !called {
		t.Errorf("code = %d, called = %v", rec.Code, called)
	}
}
