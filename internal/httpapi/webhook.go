package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// WebhookEvent names the occasions SPEC_FULL.md §6 fires a webhook for.
type WebhookEvent string

const (
	WebhookConnect      WebhookEvent = "connect"
	WebhookDisconnect   WebhookEvent = "disconnect"
	WebhookIntermission WebhookEvent = "intermission"
)

// WebhookPayload is the JSON body POSTed to the configured URL.
type WebhookPayload struct {
	Event WebhookEvent `json:"event"`
	Name  string       `json:"name,omitempty"`
	CN    int          `json:"cn,omitempty"`
	Map   string       `json:"map,omitempty"`
}

// Webhook fires best-effort, non-blocking POSTs to an external URL, per
// spec.md §7's "external service failures are non-fatal" tier.
type Webhook struct {
	url    string
	client *http.Client
	log    zerolog.Logger
}

// NewWebhook constructs a Webhook sink. An empty url disables firing.
func NewWebhook(url string, log zerolog.Logger) *Webhook {
	return &Webhook{
		url:    url,
		client: &http.Client{Timeout: 5 * time.Second},
		log:    log.With().Str("component", "webhook").Logger(),
	}
}

// Fire posts payload asynchronously; failures are logged at warn and never
// block the caller (the game loop).
func (w *Webhook) Fire(payload WebhookPayload) {
	if w.url == "" {
		return
	}
	go func() {
		body, err := json.Marshal(payload)
		if err != nil {
			w.log.Warn().Err(err).Msg("marshal webhook payload")
			return
		}
		resp, err := w.client.Post(w.url, "application/json", bytes.NewReader(body))
		if err != nil {
			w.log.Warn().Err(err).Str("event", string(payload.Event)).Msg("webhook post failed")
			return
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 300 {
			w.log.Warn().Int("status", resp.StatusCode).Msg("webhook non-2xx response")
		}
	}()
}
