// Package shopify is a minimal Admin API client for the customer operations the
// password reset flow needs.
package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/charlesng35/storefront/pkg/logger"
)

const (
	// DefaultAPIVersion is the Admin API version used when none is configured.
	DefaultAPIVersion = "2024-10"
	defaultTimeout    = 10 * time.Second
	maxErrorBody      = 4096
)

var (
	// ErrNotConfigured is returned when the shop domain or admin token is missing.
	ErrNotConfigured = errors.New("shopify: shop domain and admin token are required")
	// ErrUnavailable is returned while the circuit breaker is open.
	ErrUnavailable = errors.New("shopify: admin api temporarily unavailable")
)

// Config captures the Admin API connection parameters.
type Config struct {
	ShopDomain string
	AdminToken string
	APIVersion string
	Timeout    time.Duration
}

// Configured reports whether both the shop domain and admin token are present.
func (c Config) Configured() bool {
	return strings.TrimSpace(c.ShopDomain) != "" && strings.TrimSpace(c.AdminToken) != ""
}

// Customer is the subset of the Admin API customer resource the storefront uses.
type Customer struct {
	ID                int64  `json:"id"`
	Email             string `json:"email"`
	AdminGraphQLAPIID string `json:"admin_graphql_api_id"`
}

// GID returns the global id of the customer, deriving it from the numeric id when the
// API omitted it.
func (c Customer) GID() string {
	if c.AdminGraphQLAPIID != "" {
		return c.AdminGraphQLAPIID
	}
	return CustomerGID(c.ID)
}

// StatusError is returned when the Admin API answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("shopify: unexpected status %d", e.StatusCode)
}

// StatusCode extracts the HTTP status from err, or 0 when err is not a StatusError.
func StatusCode(err error) int {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode
	}
	return 0
}

// Client talks to the Shopify Admin REST API. It never retries.
type Client struct {
	cfg        Config
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	log        *zap.Logger
}

// Option customises the Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL overrides the https://{shop}/admin/api/{version} prefix.
func WithBaseURL(base string) Option {
	return func(c *Client) {
		if base = strings.TrimRight(strings.TrimSpace(base), "/"); base != "" {
			c.baseURL = base
		}
	}
}

// WithBreakerSettings replaces the circuit breaker configuration.
func WithBreakerSettings(settings gobreaker.Settings) Option {
	return func(c *Client) {
		c.breaker = newBreaker(settings)
	}
}

// NewClient builds an Admin API client. It fails with ErrNotConfigured when the shop
// domain or token is missing.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	if !cfg.Configured() {
		return nil, ErrNotConfigured
	}

	cfg.ShopDomain = normaliseDomain(cfg.ShopDomain)
	if strings.TrimSpace(cfg.APIVersion) == "" {
		cfg.APIVersion = DefaultAPIVersion
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	client := &Client{
		cfg:        cfg,
		baseURL:    fmt.Sprintf("https://%s/admin/api/%s", cfg.ShopDomain, cfg.APIVersion),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		log:        logger.WithModule("shopify"),
	}
	client.breaker = newBreaker(gobreaker.Settings{Name: "shopify-admin"})

	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

func newBreaker(settings gobreaker.Settings) *gobreaker.CircuitBreaker {
	if settings.Name == "" {
		settings.Name = "shopify-admin"
	}
	if settings.MaxRequests == 0 {
		settings.MaxRequests = 1
	}
	if settings.Interval == 0 {
		settings.Interval = 30 * time.Second
	}
	if settings.Timeout == 0 {
		settings.Timeout = 30 * time.Second
	}
	if settings.ReadyToTrip == nil {
		settings.ReadyToTrip = func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		}
	}
	if settings.IsSuccessful == nil {
		// A 4xx is an answer about the request, not a sign the API is down.
		settings.IsSuccessful = func(err error) bool {
			if err == nil {
				return true
			}
			code := StatusCode(err)
			return code >= 400 && code < 500 && code != http.StatusTooManyRequests
		}
	}
	return gobreaker.NewCircuitBreaker(settings)
}

// SearchCustomersByEmail returns the customers whose email matches exactly.
func (c *Client) SearchCustomersByEmail(ctx context.Context, email string) ([]Customer, error) {
	query := url.Values{}
	query.Set("query", "email:"+email)
	query.Set("fields", "id,email,admin_graphql_api_id")

	var payload struct {
		Customers []Customer `json:"customers"`
	}
	if err := c.do(ctx, http.MethodGet, "/customers/search.json?"+query.Encode(), nil, &payload); err != nil {
		return nil, err
	}

	matches := payload.Customers[:0]
	for _, customer := range payload.Customers {
		if strings.EqualFold(strings.TrimSpace(customer.Email), strings.TrimSpace(email)) {
			matches = append(matches, customer)
		}
	}
	return matches, nil
}

// UpdateCustomerPassword sets a new password for the customer with the given numeric id.
func (c *Client) UpdateCustomerPassword(ctx context.Context, numericID, password string) (*Customer, error) {
	id, err := parseNumeric(numericID)
	if err != nil {
		return nil, err
	}

	body := map[string]any{
		"customer": map[string]any{
			"id":                    id,
			"password":              password,
			"password_confirmation": password,
		},
	}

	var payload struct {
		Customer Customer `json:"customer"`
	}
	if err := c.do(ctx, http.MethodPut, "/customers/"+numericID+".json", body, &payload); err != nil {
		return nil, err
	}
	return &payload.Customer, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	var reqBody []byte
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("shopify: encode request: %w", err)
		}
		reqBody = encoded
	}

	respBody, err := c.breaker.Execute(func() (interface{}, error) {
		return c.roundTrip(ctx, method, path, reqBody)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrUnavailable
	}
	if err != nil {
		return err
	}

	if result == nil {
		return nil
	}
	raw, _ := respBody.([]byte)
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, result); err != nil {
		return fmt.Errorf("shopify: decode response: %w", err)
	}
	return nil
}

func (c *Client) roundTrip(ctx context.Context, method, path string, reqBody []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	var bodyReader io.Reader
	if reqBody != nil {
		bodyReader = bytes.NewReader(reqBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("shopify: create request: %w", err)
	}
	req.Header.Set("X-Shopify-Access-Token", c.cfg.AdminToken)
	req.Header.Set("Accept", "application/json")
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("shopify: %s %s: %w", method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.log.Warn("admin api request failed",
			zap.String("method", method),
			zap.String("path", req.URL.Path),
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(raw)),
		)
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("shopify: read response: %w", err)
	}
	return raw, nil
}

func normaliseDomain(domain string) string {
	domain = strings.TrimSpace(domain)
	domain = strings.TrimPrefix(domain, "https://")
	domain = strings.TrimPrefix(domain, "http://")
	return strings.TrimRight(domain, "/")
}
