package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultAPIEndpoint is the hosted email API used when none is configured.
const DefaultAPIEndpoint = "https://api.resend.com/emails"

// APISettings configure delivery through a hosted email API.
type APISettings struct {
	Enabled  bool
	Endpoint string
	APIKey   string
	From     string
	Timeout  time.Duration
}

// APIError is returned when the email API answers with a non-2xx status.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("mail api: unexpected status %d", e.StatusCode)
}

type apiPayload struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html,omitempty"`
	Text    string   `json:"text,omitempty"`
}

// APIMailer posts messages as JSON to a Resend compatible endpoint.
type APIMailer struct {
	cfg    APISettings
	client *http.Client
}

// NewAPIMailer validates the settings and builds an APIMailer. A nil client gets a
// default one bounded by the configured timeout.
func NewAPIMailer(cfg APISettings, client *http.Client) (*APIMailer, error) {
	if cfg.Enabled && strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("mail api: api key is required when enabled")
	}
	if strings.TrimSpace(cfg.Endpoint) == "" {
		cfg.Endpoint = DefaultAPIEndpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &APIMailer{cfg: cfg, client: client}, nil
}

// Enabled reports whether an API key was configured.
func (m *APIMailer) Enabled() bool {
	return m != nil && m.cfg.Enabled
}

// Send delivers msg. Non-2xx answers are returned as *APIError.
func (m *APIMailer) Send(ctx context.Context, msg Message) error {
	if !m.cfg.Enabled {
		return ErrDisabled
	}

	from, recipients, err := prepare(msg, m.cfg.From)
	if err != nil {
		return err
	}

	body, err := json.Marshal(apiPayload{
		From:    from,
		To:      recipients,
		Subject: escapeHeader(msg.Subject),
		HTML:    msg.HTML,
		Text:    msg.Text,
	})
	if err != nil {
		return fmt.Errorf("mail api: encode payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("mail api: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+m.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("mail api: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
