package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf16"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/charlesng35/storefront/internal/resettoken"
	"github.com/charlesng35/storefront/internal/shopify"
	"github.com/charlesng35/storefront/pkg/logger"
	"github.com/charlesng35/storefront/pkg/mail"
	"github.com/charlesng35/storefront/pkg/metrics"
)

const (
	// MinPasswordLength is the shortest password accepted by CompleteReset.
	MinPasswordLength = 8

	defaultResetPagePath = "reset-password"
)

var (
	ErrInvalidEmail         = errors.New("password reset: invalid email")
	ErrResetNotConfigured   = errors.New("password reset: service not configured")
	ErrEmailDelivery        = errors.New("password reset: email delivery failed")
	ErrTokenStorage         = errors.New("password reset: token storage failed")
	ErrResetInputRequired   = errors.New("password reset: customer id, token and password are required")
	ErrPasswordTooShort     = fmt.Errorf("password reset: password must be at least %d characters", MinPasswordLength)
	ErrResetTokenInvalid    = errors.New("password reset: invalid or expired token")
	ErrResetTokenMismatch   = errors.New("password reset: token does not belong to this customer")
	ErrInvalidCustomerID    = errors.New("password reset: invalid customer id")
	ErrCustomerNotFound     = errors.New("password reset: customer not found")
	ErrDirectoryAuth        = errors.New("password reset: directory authentication failed")
	ErrPasswordPolicy       = errors.New("password reset: password does not meet policy")
	ErrDirectoryUnavailable = errors.New("password reset: directory unavailable")
)

// PriorTokenPolicy decides what happens to a customer's outstanding tokens when a new
// one is issued.
type PriorTokenPolicy string

const (
	// PriorTokensAllow leaves earlier tokens valid until they expire.
	PriorTokensAllow PriorTokenPolicy = "allow"
	// PriorTokensInvalidate revokes earlier tokens before issuing a new one.
	PriorTokensInvalidate PriorTokenPolicy = "invalidate"
)

// ParsePriorTokenPolicy maps a configuration value onto a policy.
func ParsePriorTokenPolicy(value string) (PriorTokenPolicy, error) {
	switch PriorTokenPolicy(strings.ToLower(strings.TrimSpace(value))) {
	case "", PriorTokensAllow:
		return PriorTokensAllow, nil
	case PriorTokensInvalidate:
		return PriorTokensInvalidate, nil
	default:
		return "", fmt.Errorf("password reset: unknown prior token policy %q", value)
	}
}

// CustomerDirectory is the customer account API the reset flow depends on.
type CustomerDirectory interface {
	SearchCustomersByEmail(ctx context.Context, email string) ([]shopify.Customer, error)
	UpdateCustomerPassword(ctx context.Context, numericID, password string) (*shopify.Customer, error)
}

// CompleteResetInput carries the fields submitted from the reset form.
type CompleteResetInput struct {
	CustomerID string
	Token      string
	Password   string
}

// CompleteResetResult describes the customer whose password was changed.
type CompleteResetResult struct {
	CustomerID string
	Email      string
}

// PasswordResetOption customises the PasswordResetService.
type PasswordResetOption func(*PasswordResetService)

// WithResetSiteURL sets the public storefront URL reset links point at.
func WithResetSiteURL(siteURL string) PasswordResetOption {
	return func(s *PasswordResetService) {
		s.siteURL = strings.TrimRight(strings.TrimSpace(siteURL), "/")
	}
}

// WithResetPagePath sets the storefront path of the reset form.
func WithResetPagePath(path string) PasswordResetOption {
	return func(s *PasswordResetService) {
		if path = strings.Trim(strings.TrimSpace(path), "/"); path != "" {
			s.pagePath = path
		}
	}
}

// WithResetFrom sets the sender address of reset emails.
func WithResetFrom(from string) PasswordResetOption {
	return func(s *PasswordResetService) {
		s.from = strings.TrimSpace(from)
	}
}

// WithResetShopName sets the shop name shown in reset emails.
func WithResetShopName(name string) PasswordResetOption {
	return func(s *PasswordResetService) {
		if name = strings.TrimSpace(name); name != "" {
			s.shopName = name
		}
	}
}

// WithResetClock injects a custom time source.
func WithResetClock(clock func() time.Time) PasswordResetOption {
	return func(s *PasswordResetService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithResetTokenGenerator replaces the random token source.
func WithResetTokenGenerator(gen func() string) PasswordResetOption {
	return func(s *PasswordResetService) {
		if gen != nil {
			s.newToken = gen
		}
	}
}

// WithPriorTokenPolicy selects how earlier tokens are treated on re-request.
func WithPriorTokenPolicy(policy PriorTokenPolicy) PasswordResetOption {
	return func(s *PasswordResetService) {
		if policy != "" {
			s.priorTokens = policy
		}
	}
}

// PasswordResetService runs the forgot-password workflow against the customer
// directory. A nil directory or mailer marks the service as not configured; requests
// then fail with ErrResetNotConfigured.
type PasswordResetService struct {
	store     resettoken.Store
	directory CustomerDirectory
	mailer    mail.Mailer

	siteURL     string
	pagePath    string
	from        string
	shopName    string
	priorTokens PriorTokenPolicy
	now         func() time.Time
	newToken    func() string
	log         *zap.Logger
}

// NewPasswordResetService constructs the service. The token store is mandatory.
func NewPasswordResetService(store resettoken.Store, directory CustomerDirectory, mailer mail.Mailer, opts ...PasswordResetOption) (*PasswordResetService, error) {
	if store == nil {
		return nil, errors.New("password reset service: token store is required")
	}

	service := &PasswordResetService{
		store:       store,
		directory:   directory,
		mailer:      mailer,
		pagePath:    defaultResetPagePath,
		shopName:    "our store",
		priorTokens: PriorTokensAllow,
		now:         time.Now,
		newToken:    uuid.NewString,
		log:         logger.WithModule("password_reset"),
	}

	for _, opt := range opts {
		opt(service)
	}

	return service, nil
}

// RequestReset issues a token and emails a reset link when the address belongs to a
// customer. Unknown addresses and lookup failures return nil so callers cannot tell
// them apart from a sent email.
func (s *PasswordResetService) RequestReset(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if !strings.Contains(email, "@") {
		metrics.ResetRequests.WithLabelValues("invalid").Inc()
		return ErrInvalidEmail
	}

	if s.directory == nil || !mail.Enabled(s.mailer) || s.siteURL == "" {
		metrics.ResetRequests.WithLabelValues("not_configured").Inc()
		s.log.Error("password reset request rejected: service not configured",
			zap.Bool("directory", s.directory != nil),
			zap.Bool("mailer", mail.Enabled(s.mailer)),
			zap.Bool("site_url", s.siteURL != ""),
		)
		return ErrResetNotConfigured
	}

	customers, err := s.directory.SearchCustomersByEmail(ctx, email)
	if err != nil {
		metrics.ResetRequests.WithLabelValues("lookup_failed").Inc()
		s.log.Warn("customer lookup failed", zap.Int("status", shopify.StatusCode(err)), zap.Error(err))
		return nil
	}
	if len(customers) == 0 {
		metrics.ResetRequests.WithLabelValues("unknown_account").Inc()
		return nil
	}

	customerID := customers[0].GID()

	if s.priorTokens == PriorTokensInvalidate {
		if removed, err := s.store.DeleteByCustomer(ctx, customerID); err != nil {
			s.log.Warn("failed to revoke earlier reset tokens", zap.String("customer_id", customerID), zap.Error(err))
		} else if removed > 0 {
			s.log.Info("revoked earlier reset tokens", zap.String("customer_id", customerID), zap.Int("count", removed))
		}
	}

	token := resettoken.Token{
		Token:      s.newToken(),
		Email:      email,
		CustomerID: customerID,
		IssuedAt:   s.now(),
	}
	if err := s.store.Put(ctx, token); err != nil {
		metrics.ResetRequests.WithLabelValues("storage_failed").Inc()
		return fmt.Errorf("%w: %v", ErrTokenStorage, err)
	}

	message, err := s.resetMessage(email, s.resetLink(token.Token, customerID))
	if err == nil {
		err = s.mailer.Send(ctx, message)
	}
	if err != nil {
		if delErr := s.store.Delete(ctx, token.Token); delErr != nil {
			s.log.Error("failed to roll back reset token", zap.String("customer_id", customerID), zap.Error(delErr))
		}
		if errors.Is(err, mail.ErrDisabled) {
			metrics.ResetRequests.WithLabelValues("not_configured").Inc()
			s.log.Error("password reset email not sent: delivery disabled")
			return ErrResetNotConfigured
		}

		metrics.ResetRequests.WithLabelValues("delivery_failed").Inc()
		s.log.Error("failed to send password reset email", zap.String("customer_id", customerID), zap.Error(err))
		return fmt.Errorf("%w: %v", ErrEmailDelivery, err)
	}

	metrics.ResetRequests.WithLabelValues("sent").Inc()
	s.log.Info("password reset email sent", zap.String("customer_id", customerID))
	return nil
}

// ValidateToken reports whether token is live and bound to customerID without
// consuming it.
func (s *PasswordResetService) ValidateToken(ctx context.Context, token, customerID string) (*resettoken.Token, error) {
	token = strings.TrimSpace(token)
	customerID = strings.TrimSpace(customerID)
	if token == "" || customerID == "" {
		return nil, ErrResetInputRequired
	}

	record, err := s.store.Get(ctx, token)
	if errors.Is(err, resettoken.ErrNotFound) {
		return nil, ErrResetTokenInvalid
	}
	if err != nil {
		s.log.Error("failed to read reset token", zap.Error(err))
		return nil, ErrResetTokenInvalid
	}

	if record.CustomerID != customerID {
		s.log.Warn("reset token presented for another customer", zap.String("customer_id", customerID))
		return nil, ErrResetTokenMismatch
	}
	return record, nil
}

// CompleteReset validates the token, updates the password in the directory and
// consumes the token.
func (s *PasswordResetService) CompleteReset(ctx context.Context, input CompleteResetInput) (*CompleteResetResult, error) {
	customerID := strings.TrimSpace(input.CustomerID)
	token := strings.TrimSpace(input.Token)
	if customerID == "" || token == "" || input.Password == "" {
		s.recordCompletion("invalid")
		return nil, ErrResetInputRequired
	}
	// counted in UTF-16 code units to match the browser's length check
	if len(utf16.Encode([]rune(input.Password))) < MinPasswordLength {
		s.recordCompletion("invalid")
		return nil, ErrPasswordTooShort
	}

	if s.directory == nil {
		s.recordCompletion("not_configured")
		s.log.Error("password reset completion rejected: directory not configured")
		return nil, ErrResetNotConfigured
	}

	record, err := s.ValidateToken(ctx, token, customerID)
	if err != nil {
		s.recordCompletion("invalid_token")
		return nil, err
	}

	numericID, err := shopify.NumericID(record.CustomerID)
	if err != nil {
		s.recordCompletion("invalid")
		return nil, ErrInvalidCustomerID
	}

	customer, err := s.directory.UpdateCustomerPassword(ctx, numericID, input.Password)
	if err != nil {
		mapped := mapDirectoryError(err)
		s.recordCompletion(outcomeFor(mapped))
		s.log.Error("customer password update failed",
			zap.String("customer_id", record.CustomerID),
			zap.Int("status", shopify.StatusCode(err)),
			zap.Error(err),
		)
		return nil, mapped
	}

	if err := s.store.Delete(ctx, record.Token); err != nil {
		s.log.Error("failed to consume reset token after password change",
			zap.String("customer_id", record.CustomerID),
			zap.Error(err),
		)
	}

	email := record.Email
	if customer != nil && strings.TrimSpace(customer.Email) != "" {
		email = customer.Email
	}

	s.recordCompletion("success")
	s.log.Info("customer password reset", zap.String("customer_id", record.CustomerID))
	return &CompleteResetResult{CustomerID: record.CustomerID, Email: email}, nil
}

func (s *PasswordResetService) resetLink(token, customerID string) string {
	return fmt.Sprintf("%s/%s?token=%s&id=%s", s.siteURL, s.pagePath, url.QueryEscape(token), url.QueryEscape(customerID))
}

func (s *PasswordResetService) recordCompletion(outcome string) {
	metrics.ResetCompletions.WithLabelValues(outcome).Inc()
}

func mapDirectoryError(err error) error {
	switch shopify.StatusCode(err) {
	case http.StatusNotFound:
		return ErrCustomerNotFound
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrDirectoryAuth
	case http.StatusUnprocessableEntity:
		return ErrPasswordPolicy
	}
	if errors.Is(err, shopify.ErrInvalidID) {
		return ErrInvalidCustomerID
	}
	return ErrDirectoryUnavailable
}

func outcomeFor(err error) string {
	switch {
	case errors.Is(err, ErrCustomerNotFound):
		return "customer_not_found"
	case errors.Is(err, ErrDirectoryAuth):
		return "directory_auth"
	case errors.Is(err, ErrPasswordPolicy):
		return "password_policy"
	default:
		return "directory_unavailable"
	}
}
