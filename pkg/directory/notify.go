package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"time"
)

const (
	resendEndpoint     = "https://api.resend.com/emails"
	defaultFromAddress = "Ridgelist <no-reply@ridgelist.app>"
	defaultSendTimeout = 10 * time.Second
)

// Notifier delivers new-lead notifications to listing owners.
type Notifier interface {
	NotifyNewLead(ctx context.Context, ownerEmail string, listing *Listing, lead *QuoteRequest) error
}

// ResendNotifier sends lead notifications through the Resend email API.
type ResendNotifier struct {
	apiKey     string
	from       string
	endpoint   string
	httpClient *http.Client
}

// NewResendNotifier creates a Resend-backed notifier. from may be
// empty to use the default sender; httpClient may be nil.
func NewResendNotifier(apiKey, from string, httpClient *http.Client) *ResendNotifier {
	if from == "" {
		from = defaultFromAddress
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultSendTimeout}
	}
	return &ResendNotifier{
		apiKey:     apiKey,
		from:       from,
		endpoint:   resendEndpoint,
		httpClient: httpClient,
	}
}

type resendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

// NotifyNewLead implements Notifier.
func (n *ResendNotifier) NotifyNewLead(ctx context.Context, ownerEmail string, listing *Listing, lead *QuoteRequest) error {
	if n.apiKey == "" {
		// Not configured - treated as a no-op so lead intake never
		// depends on email delivery.
		return nil
	}

	payload := resendRequest{
		From:    n.from,
		To:      []string{ownerEmail},
		Subject: fmt.Sprintf("New quote request: %s", listing.BusinessName),
		HTML:    leadEmailHTML(listing, lead),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build notification request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+n.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send notification: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
		return fmt.Errorf("resend returned %d: %s", resp.StatusCode, string(detail))
	}
	return nil
}

func leadEmailHTML(listing *Listing, lead *QuoteRequest) string {
	esc := html.EscapeString
	return fmt.Sprintf(`<div style="font-family: ui-sans-serif, system-ui; line-height: 1.5">
  <h2>New quote request</h2>
  <p><strong>Business:</strong> %s</p>
  <p><strong>Name:</strong> %s</p>
  <p><strong>Email:</strong> %s</p>
  <p><strong>Phone:</strong> %s</p>
  <p><strong>Message:</strong></p>
  <pre style="white-space:pre-wrap">%s</pre>
  <p>View this lead in your dashboard.</p>
</div>`,
		esc(listing.BusinessName),
		esc(lead.RequesterName),
		esc(lead.RequesterEmail),
		esc(lead.RequesterPhone),
		esc(lead.Message))
}
