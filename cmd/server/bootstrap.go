package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/storefront/internal/api"
	"github.com/charlesng35/storefront/internal/app"
	"github.com/charlesng35/storefront/internal/app/maintenance"
	"github.com/charlesng35/storefront/internal/cache"
	"github.com/charlesng35/storefront/internal/database"
	"github.com/charlesng35/storefront/internal/middleware"
	"github.com/charlesng35/storefront/internal/monitoring"
	"github.com/charlesng35/storefront/internal/monitoring/checks"
	"github.com/charlesng35/storefront/internal/resettoken"
	"github.com/charlesng35/storefront/internal/services"
	"github.com/charlesng35/storefront/internal/shopify"
	"github.com/charlesng35/storefront/pkg/logger"
	"github.com/charlesng35/storefront/pkg/mail"
)

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB        *gorm.DB
	Redis     redis.UniversalClient
	Tokens    resettoken.Store
	Resets    *services.PasswordResetService
	Health    *monitoring.HealthManager
	Cleaner   *maintenance.Cleaner
	RateStore middleware.RateStore
	Router    *gin.Engine
}

// bootstrapRuntime initialises the token store, collaborators, services and the HTTP router.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			stack.Shutdown(context.Background(), log)
		}
	}()

	// enable gin debug mode
	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.Health = monitoring.NewHealthManager(cfg.Monitoring.Health.Timeout)
	stack.Health.RegisterLiveness(monitoring.NewCheck("process", func(context.Context) monitoring.ProbeResult {
		return monitoring.ProbeResult{Status: monitoring.StatusUp}
	}))

	if err := stack.initialiseTokenStore(ctx, cfg, log); err != nil {
		return nil, err
	}

	stack.Resets, err = newPasswordResetService(cfg, stack.Tokens, log)
	if err != nil {
		return nil, err
	}

	cleanerOpts := []maintenance.Option{maintenance.WithTokenSchedule(cfg.Reset.SweepSchedule)}
	if stack.DB != nil {
		cleanerOpts = append(cleanerOpts, maintenance.WithCacheDatabase(stack.DB))
	}
	stack.Cleaner = maintenance.NewCleaner(stack.Tokens, cleanerOpts...)
	if err := stack.Cleaner.Start(); err != nil {
		return nil, fmt.Errorf("start maintenance jobs: %w", err)
	}
	stack.Health.RegisterReadiness(checks.Maintenance(time.Hour))

	stack.Router, err = api.NewRouter(api.Dependencies{
		Config:    cfg,
		Resets:    stack.Resets,
		Health:    stack.Health,
		RateStore: stack.RateStore,
	})
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

func (s *runtimeStack) initialiseTokenStore(ctx context.Context, cfg *app.Config, log *zap.Logger) error {
	opts := []resettoken.Option{resettoken.WithBestEffortDurability(cfg.Reset.BestEffortDurability)}

	switch backend := strings.ToLower(strings.TrimSpace(cfg.Store.Backend)); backend {
	case app.StoreBackendRedis:
		client, err := cache.NewRedisClient(ctx, cfg.Store.RedisClientConfig())
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		s.Redis = client
		log.Info("redis connected", zap.String("addr", cfg.Store.Redis.Address))

		store, err := resettoken.NewRedisStore(client, opts...)
		if err != nil {
			return fmt.Errorf("initialise redis token store: %w", err)
		}
		s.Tokens = store
		s.RateStore = middleware.NewSharedRateStore(cache.NewRedisStore(client))
		s.Health.RegisterReadiness(checks.Redis("redis", client))

	case app.StoreBackendDatabase:
		db, err := initialiseDatabase(cfg.Store.Database)
		if err != nil {
			return err
		}
		s.DB = db

		store, err := resettoken.NewDatabaseStore(db, opts...)
		if err != nil {
			return fmt.Errorf("initialise database token store: %w", err)
		}
		s.Tokens = store
		s.RateStore = middleware.NewSharedRateStore(cache.NewDatabaseStore(db))
		s.Health.RegisterReadiness(checks.Database(db))

	default:
		store, err := resettoken.NewFileStore(cfg.Store.File.Path, opts...)
		if err != nil {
			return fmt.Errorf("initialise file token store: %w", err)
		}
		s.Tokens = store
		s.RateStore = middleware.NewMemoryRateStore()
		s.Health.RegisterReadiness(checks.TokenFile(store.Path()))
		log.Info("reset tokens stored on disk", zap.String("path", store.Path()))
	}

	return nil
}

func newPasswordResetService(cfg *app.Config, tokens resettoken.Store, log *zap.Logger) (*services.PasswordResetService, error) {
	var directory services.CustomerDirectory
	if shopCfg := cfg.Shopify.ClientConfig(); shopCfg.Configured() {
		client, err := shopify.NewClient(shopCfg)
		if err != nil {
			return nil, fmt.Errorf("initialise shopify client: %w", err)
		}
		directory = client
	} else {
		log.Warn("shopify admin api not configured; password reset requests will fail")
	}

	mailer, err := newMailer(cfg.Email)
	if err != nil {
		return nil, err
	}
	if !mail.Enabled(mailer) {
		log.Warn("email provider not configured; password reset requests will fail", zap.String("provider", cfg.Email.Provider))
	}

	if strings.TrimSpace(cfg.Site.BaseURL) == "" {
		log.Warn("site.base_url not configured; password reset requests will fail")
	}

	policy, err := cfg.Reset.PriorTokenPolicy()
	if err != nil {
		return nil, err
	}

	svc, err := services.NewPasswordResetService(tokens, directory, mailer,
		services.WithResetSiteURL(cfg.Site.BaseURL),
		services.WithResetPagePath(cfg.Reset.PagePath),
		services.WithResetFrom(cfg.Email.From),
		services.WithResetShopName(cfg.Site.ShopName),
		services.WithPriorTokenPolicy(policy),
	)
	if err != nil {
		return nil, fmt.Errorf("initialise password reset service: %w", err)
	}
	return svc, nil
}

// newMailer builds the configured provider. A provider without credentials still
// returns a mailer; mail.Enabled reports false for it.
func newMailer(cfg app.EmailConfig) (mail.Mailer, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case app.EmailProviderSMTP:
		mailer, err := mail.NewSMTPMailer(cfg.SMTPSettings())
		if err != nil {
			return nil, fmt.Errorf("initialise smtp mailer: %w", err)
		}
		return mailer, nil
	default:
		mailer, err := mail.NewAPIMailer(cfg.APISettings(), nil)
		if err != nil {
			return nil, fmt.Errorf("initialise email api mailer: %w", err)
		}
		return mailer, nil
	}
}

// Shutdown gracefully stops background jobs and releases resources.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) {
	if s == nil {
		return
	}

	if s.Cleaner != nil {
		stopCtx := s.Cleaner.Stop()
		<-stopCtx.Done()
		if err := s.Cleaner.RunOnce(ctx); err != nil {
			log.Warn("maintenance shutdown cleanup failed", zap.Error(err))
		}
		s.Cleaner = nil
	}

	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			log.Warn("redis shutdown", zap.Error(err))
		}
		s.Redis = nil
	}

	if s.DB != nil {
		if err := database.Close(s.DB); err != nil {
			log.Warn("failed to close database", zap.Error(err))
		}
		s.DB = nil
	}
}

func initialiseDatabase(cfg app.DatabaseConfig) (*gorm.DB, error) {
	dbCfg := cfg.ConnectionConfig()
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.AutoMigrate(db); err != nil {
		_ = database.Close(db)
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	logger.WithModule("database").Info("database connected", zap.String("driver", strings.ToLower(dbCfg.Driver)))
	return db, nil
}
