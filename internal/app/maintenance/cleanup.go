package maintenance

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/storefront/internal/models"
	"github.com/charlesng35/storefront/internal/monitoring"
	"github.com/charlesng35/storefront/internal/resettoken"
	"github.com/charlesng35/storefront/pkg/logger"
)

const (
	defaultTokenSpec = "@every 10m"
	defaultCacheSpec = "@hourly"

	jobTokenSweep   = "reset_token_sweep"
	jobCacheCleanup = "cache_cleanup"
)

// Cleaner schedules background maintenance: sweeping expired reset tokens and pruning
// expired rows from the SQL cache table.
type Cleaner struct {
	tokens resettoken.Store
	db     *gorm.DB
	cron   *cron.Cron
	now    func() time.Time
	log    *zap.Logger

	tokenSchedule string
	cacheSchedule string
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithNow overrides the clock used for cache expiry comparisons.
func WithNow(now func() time.Time) Option {
	return func(cleaner *Cleaner) {
		if now != nil {
			cleaner.now = now
		}
	}
}

// WithTokenSchedule overrides the cron specification for the reset token sweep.
func WithTokenSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.tokenSchedule = spec
		}
	}
}

// WithCacheSchedule overrides the cron specification for cache table pruning.
func WithCacheSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.cacheSchedule = spec
		}
	}
}

// WithCacheDatabase enables pruning of the SQL cache table.
func WithCacheDatabase(db *gorm.DB) Option {
	return func(cleaner *Cleaner) {
		cleaner.db = db
	}
}

// NewCleaner constructs a Cleaner. A nil token store and no cache database leave
// nothing to schedule.
func NewCleaner(tokens resettoken.Store, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		tokens:        tokens,
		now:           time.Now,
		tokenSchedule: defaultTokenSpec,
		cacheSchedule: defaultCacheSpec,
		log:           logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	return cleaner
}

// Start registers the cleanup jobs and launches the scheduler.
func (c *Cleaner) Start() error {
	if c.tokens == nil && c.db == nil {
		return nil
	}

	if c.tokens != nil {
		if _, err := c.cron.AddFunc(c.tokenSchedule, func() {
			if err := c.sweepTokens(context.Background()); err != nil {
				c.log.Warn("reset token sweep failed", zap.Error(err))
			}
		}); err != nil {
			return fmt.Errorf("schedule %s: %w", jobTokenSweep, err)
		}
	}

	if c.db != nil {
		if _, err := c.cron.AddFunc(c.cacheSchedule, func() {
			if err := c.pruneCache(context.Background()); err != nil {
				c.log.Warn("cache cleanup failed", zap.Error(err))
			}
		}); err != nil {
			return fmt.Errorf("schedule %s: %w", jobCacheCleanup, err)
		}
	}

	c.cron.Start()
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce executes every configured cleanup sequentially. Used in tests and during
// graceful shutdown.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error
	if c.tokens != nil {
		errs = multierr.Append(errs, c.sweepTokens(ctx))
	}
	if c.db != nil {
		errs = multierr.Append(errs, c.pruneCache(ctx))
	}
	return errs
}

func (c *Cleaner) sweepTokens(ctx context.Context) error {
	start := time.Now()
	removed, err := c.tokens.Sweep(ctx)
	record(jobTokenSweep, err, time.Since(start))
	if err != nil {
		return fmt.Errorf("sweep reset tokens: %w", err)
	}
	if removed > 0 {
		c.log.Info("expired reset tokens removed", zap.Int("count", removed))
	}
	return nil
}

func (c *Cleaner) pruneCache(ctx context.Context) error {
	start := time.Now()
	removed, err := CleanupCacheEntries(ctx, c.db, c.now())
	record(jobCacheCleanup, err, time.Since(start))
	if err != nil {
		return err
	}
	if removed > 0 {
		c.log.Info("expired cache entries removed", zap.Int64("count", removed))
	}
	return nil
}

func record(job string, err error, duration time.Duration) {
	if err != nil {
		monitoring.RecordMaintenanceRun(job, "failure", err.Error(), duration)
		return
	}
	monitoring.RecordMaintenanceRun(job, "success", "", duration)
}

// CleanupCacheEntries deletes cache rows whose expiry is before now. Rows without an
// expiry are kept.
func CleanupCacheEntries(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	if db == nil {
		return 0, fmt.Errorf("cleanup cache: db is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	result := db.WithContext(ctx).
		Where("expires_at > ? AND expires_at < ?", time.Time{}, now).
		Delete(&models.CacheEntry{})
	if result.Error != nil {
		return 0, fmt.Errorf("cleanup cache: %w", result.Error)
	}
	return result.RowsAffected, nil
}
