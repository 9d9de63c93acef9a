package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/charlesng35/storefront/internal/api"
	"github.com/charlesng35/storefront/internal/app"
	"github.com/charlesng35/storefront/internal/middleware"
	"github.com/charlesng35/storefront/internal/monitoring"
	"github.com/charlesng35/storefront/internal/resettoken"
	"github.com/charlesng35/storefront/internal/services"
	"github.com/charlesng35/storefront/internal/shopify"
	"github.com/charlesng35/storefront/pkg/mail"
)

// SiteURL is the storefront origin used in reset links during tests.
const SiteURL = "https://scooters.example.com"

// Env encapsulates a fully-wired API instance backed by a fake Admin API, a recording
// mailer and a file token store in a temporary directory.
type Env struct {
	T       *testing.T
	Router  *gin.Engine
	Store   *resettoken.FileStore
	Shopify *FakeShopify
	Mailer  *RecordingMailer
	Config  *app.Config

	mu  sync.Mutex
	now time.Time
}

type envOptions struct {
	withoutDirectory bool
	rateLimit        int
	health           *monitoring.HealthManager
	serviceOpts      []services.PasswordResetOption
	mailer           mail.Mailer
}

// EnvOption customises NewEnv.
type EnvOption func(*envOptions)

// WithoutDirectory builds the service without Admin API credentials.
func WithoutDirectory() EnvOption {
	return func(o *envOptions) { o.withoutDirectory = true }
}

// WithRateLimit caps requests per client on the reset POST endpoints.
func WithRateLimit(requests int) EnvOption {
	return func(o *envOptions) { o.rateLimit = requests }
}

// WithHealth mounts the health routes backed by manager.
func WithHealth(manager *monitoring.HealthManager) EnvOption {
	return func(o *envOptions) { o.health = manager }
}

// WithMailer replaces the recording mailer handed to the reset service.
func WithMailer(mailer mail.Mailer) EnvOption {
	return func(o *envOptions) { o.mailer = mailer }
}

// WithServiceOptions forwards options to the reset service.
func WithServiceOptions(opts ...services.PasswordResetOption) EnvOption {
	return func(o *envOptions) { o.serviceOpts = append(o.serviceOpts, opts...) }
}

// NewEnv provisions a fresh handler test environment.
func NewEnv(t *testing.T, opts ...EnvOption) *Env {
	t.Helper()

	gin.SetMode(gin.TestMode)

	options := envOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	env := &Env{
		T:       t,
		Shopify: NewFakeShopify(t),
		Mailer:  &RecordingMailer{},
		now:     time.Date(2026, 5, 2, 10, 0, 0, 0, time.UTC),
	}

	store, err := resettoken.NewFileStore(filepath.Join(t.TempDir(), "reset-tokens.json"), resettoken.WithClock(env.Now))
	require.NoError(t, err)
	env.Store = store

	var directory services.CustomerDirectory
	if !options.withoutDirectory {
		client, err := shopify.NewClient(
			shopify.Config{ShopDomain: "volt-scooters.myshopify.com", AdminToken: "shpat_test"},
			shopify.WithBaseURL(env.Shopify.URL()),
		)
		require.NoError(t, err)
		directory = client
	}

	serviceOpts := append([]services.PasswordResetOption{
		services.WithResetSiteURL(SiteURL),
		services.WithResetFrom("support@scooters.example.com"),
		services.WithResetClock(env.Now),
	}, options.serviceOpts...)

	var mailer mail.Mailer = env.Mailer
	if options.mailer != nil {
		mailer = options.mailer
	}

	svc, err := services.NewPasswordResetService(store, directory, mailer, serviceOpts...)
	require.NoError(t, err)

	env.Config = &app.Config{
		Reset: app.ResetConfig{
			RateLimit: app.RateLimitConfig{Requests: options.rateLimit, Window: time.Minute},
		},
		Monitoring: app.MonitoringConfig{
			Prometheus: app.PrometheusConfig{Enabled: true, Endpoint: "/metrics"},
			Health:     app.HealthConfig{Enabled: true},
		},
	}

	router, err := api.NewRouter(api.Dependencies{
		Config:    env.Config,
		Resets:    svc,
		Health:    options.health,
		RateStore: middleware.NewMemoryRateStore(),
	})
	require.NoError(t, err)
	env.Router = router

	return env
}

// Now returns the environment clock.
func (e *Env) Now() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.now
}

// Advance moves the environment clock forward.
func (e *Env) Advance(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.now = e.now.Add(d)
}

// Request executes an HTTP request against the test router, JSON encoding body when set.
func (e *Env) Request(method, path string, body any) *httptest.ResponseRecorder {
	e.T.Helper()

	var reader *bytes.Reader
	if body != nil {
		var raw []byte
		switch v := body.(type) {
		case string:
			raw = []byte(v)
		default:
			encoded, err := json.Marshal(body)
			require.NoError(e.T, err)
			raw = encoded
		}
		reader = bytes.NewReader(raw)
	}

	var req *http.Request
	if reader != nil {
		req = httptest.NewRequest(method, path, reader)
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}

	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)
	return w
}

// ProbePath builds the GET probe URL for token and customerID.
func ProbePath(token, customerID string) string {
	query := url.Values{}
	query.Set("token", token)
	query.Set("id", customerID)
	return "/api/auth/password/reset?" + query.Encode()
}

// DecodeBody parses a flat JSON response object.
func DecodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body
}

// RecordingMailer captures every message instead of delivering it.
type RecordingMailer struct {
	mu   sync.Mutex
	sent []mail.Message
	err  error
}

// Send records msg or returns the configured failure.
func (m *RecordingMailer) Send(_ context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

// Fail makes subsequent sends return err.
func (m *RecordingMailer) Fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Sent returns a copy of the recorded messages.
func (m *RecordingMailer) Sent() []mail.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mail.Message(nil), m.sent...)
}

var resetLinkPattern = regexp.MustCompile(regexp.QuoteMeta(SiteURL) + `/[^?\s]+\?token=([^&\s"]+)&id=([^\s"<]+)`)

// LastLink extracts the token and customer id from the most recent reset email.
func (m *RecordingMailer) LastLink(t *testing.T) (token, customerID string) {
	t.Helper()

	sent := m.Sent()
	require.NotEmpty(t, sent, "no reset email recorded")

	match := resetLinkPattern.FindStringSubmatch(sent[len(sent)-1].Text)
	require.Len(t, match, 3, sent[len(sent)-1].Text)

	token, err := url.QueryUnescape(match[1])
	require.NoError(t, err)
	customerID, err = url.QueryUnescape(match[2])
	require.NoError(t, err)
	return token, customerID
}

// PasswordUpdate is one password change accepted by FakeShopify.
type PasswordUpdate struct {
	ID           int64
	Password     string
	Confirmation string
}

// FakeShopify serves the two Admin REST endpoints the reset flow calls.
type FakeShopify struct {
	server *httptest.Server

	mu           sync.Mutex
	customers    map[string]int64
	updates      []PasswordUpdate
	updateStatus int
	searchStatus int
	searches     int
}

// NewFakeShopify starts the fake and closes it when the test ends.
func NewFakeShopify(t *testing.T) *FakeShopify {
	t.Helper()

	fake := &FakeShopify{customers: make(map[string]int64)}
	fake.server = httptest.NewServer(http.HandlerFunc(fake.serve))
	t.Cleanup(fake.server.Close)
	return fake
}

// URL is the Admin API base URL.
func (f *FakeShopify) URL() string {
	return f.server.URL + "/admin/api/" + shopify.DefaultAPIVersion
}

// AddCustomer registers a customer and returns its global id.
func (f *FakeShopify) AddCustomer(email string, id int64) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.customers[strings.ToLower(email)] = id
	return shopify.CustomerGID(id)
}

// FailUpdates makes the password update endpoint answer with status.
func (f *FakeShopify) FailUpdates(status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateStatus = status
}

// FailSearches makes the customer search endpoint answer with status.
func (f *FakeShopify) FailSearches(status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searchStatus = status
}

// Searches returns how many customer searches were served.
func (f *FakeShopify) Searches() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.searches
}

// Updates returns the accepted password changes.
func (f *FakeShopify) Updates() []PasswordUpdate {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]PasswordUpdate(nil), f.updates...)
}

var customerPath = regexp.MustCompile(`/customers/(\d+)\.json$`)

func (f *FakeShopify) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/customers/search.json"):
		f.searches++
		if f.searchStatus != 0 {
			w.WriteHeader(f.searchStatus)
			_, _ = w.Write([]byte(`{"errors":"search failed"}`))
			return
		}
		email := strings.TrimPrefix(r.URL.Query().Get("query"), "email:")
		customers := []map[string]any{}
		if id, ok := f.customers[strings.ToLower(email)]; ok {
			customers = append(customers, map[string]any{
				"id":                   id,
				"email":                email,
				"admin_graphql_api_id": shopify.CustomerGID(id),
			})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"customers": customers})

	case r.Method == http.MethodPut && customerPath.MatchString(r.URL.Path):
		if f.updateStatus != 0 {
			w.WriteHeader(f.updateStatus)
			_, _ = w.Write([]byte(`{"errors":{"password":["is too weak"]}}`))
			return
		}

		var payload struct {
			Customer struct {
				ID                   int64  `json:"id"`
				Password             string `json:"password"`
				PasswordConfirmation string `json:"password_confirmation"`
			} `json:"customer"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		var email string
		for address, id := range f.customers {
			if id == payload.Customer.ID {
				email = address
			}
		}
		if email == "" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"errors":"Not Found"}`))
			return
		}

		f.updates = append(f.updates, PasswordUpdate{
			ID:           payload.Customer.ID,
			Password:     payload.Customer.Password,
			Confirmation: payload.Customer.PasswordConfirmation,
		})
		_ = json.NewEncoder(w).Encode(map[string]any{
			"customer": map[string]any{
				"id":                   payload.Customer.ID,
				"email":                email,
				"admin_graphql_api_id": shopify.CustomerGID(payload.Customer.ID),
			},
		})

	default:
		w.WriteHeader(http.StatusNotFound)
		_, _ = fmt.Fprintf(w, `{"errors":"no route for %s %s"}`, r.Method, r.URL.Path)
	}
}
