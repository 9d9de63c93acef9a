// Package resettoken stores single-use password reset tokens with a fixed lifetime.
package resettoken

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/charlesng35/storefront/pkg/logger"
)

// DefaultTTL is how long a reset token stays redeemable after it was issued.
const DefaultTTL = time.Hour

var (
	// ErrNotFound is returned by Get for unknown, consumed or expired tokens.
	ErrNotFound = errors.New("resettoken: token not found or expired")
	// ErrPersist is returned when a write fails and the store cannot keep the token.
	// The file store only returns it for strict durability; the Redis and database
	// stores always return it from Put.
	ErrPersist = errors.New("resettoken: persist tokens")
	// ErrExpired is returned by Put when the token's lifetime has already elapsed.
	ErrExpired = errors.New("resettoken: token already expired")
	// ErrInvalidToken is returned by Put for records missing required fields.
	ErrInvalidToken = errors.New("resettoken: token, email and customer id are required")
)

// Token is the record kept for an issued reset token.
type Token struct {
	Token      string
	Email      string
	CustomerID string
	IssuedAt   time.Time
}

// Expired reports whether the token is past its lifetime at now. A token is still
// valid when exactly ttl has elapsed.
func (t Token) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(t.IssuedAt) > ttl
}

func (t Token) validate() error {
	if t.Token == "" || t.Email == "" || t.CustomerID == "" {
		return ErrInvalidToken
	}
	return nil
}

// Store persists reset tokens. Get never returns an expired token.
type Store interface {
	Put(ctx context.Context, token Token) error
	Get(ctx context.Context, token string) (*Token, error)
	Delete(ctx context.Context, token string) error
	DeleteByCustomer(ctx context.Context, customerID string) (int, error)
	Sweep(ctx context.Context) (int, error)
}

// Option configures a Store implementation.
type Option func(*options)

type options struct {
	clock      func() time.Time
	ttl        time.Duration
	bestEffort bool
	log        *zap.Logger
}

func defaultOptions(module string) options {
	return options{
		clock:      time.Now,
		ttl:        DefaultTTL,
		bestEffort: true,
		log:        logger.WithModule(module),
	}
}

func applyOptions(module string, opts []Option) options {
	cfg := defaultOptions(module)
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

// WithClock overrides the time source used for issue and expiry checks.
func WithClock(clock func() time.Time) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithTTL overrides the token lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(o *options) {
		if ttl > 0 {
			o.ttl = ttl
		}
	}
}

// WithBestEffortDurability selects whether persistence failures are logged and
// swallowed (true, the default) or returned as ErrPersist (false).
func WithBestEffortDurability(enabled bool) Option {
	return func(o *options) {
		o.bestEffort = enabled
	}
}

// WithLogger sets the logger used for persistence diagnostics.
func WithLogger(log *zap.Logger) Option {
	return func(o *options) {
		if log != nil {
			o.log = log
		}
	}
}

// truncate drops sub-millisecond precision so in-memory and persisted records agree.
func truncate(t time.Time) time.Time {
	return time.UnixMilli(t.UnixMilli())
}
