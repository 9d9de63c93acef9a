package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"go.uber.org/multierr"

	"github.com/charlesng35/storefront/internal/services"
)

// Config represents the runtime configuration for the storefront reset service.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Site       SiteConfig       `mapstructure:"site"`
	Shopify    ShopifyConfig    `mapstructure:"shopify"`
	Email      EmailConfig      `mapstructure:"email"`
	Reset      ResetConfig      `mapstructure:"reset"`
	Store      StoreConfig      `mapstructure:"store"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	LogLevel        string        `mapstructure:"log_level"`
	LogFormat       string        `mapstructure:"log_format"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	TrustedProxies  []string      `mapstructure:"trusted_proxies"`
}

// SiteConfig describes the public storefront the reset links point at.
type SiteConfig struct {
	BaseURL  string `mapstructure:"base_url"`
	ShopName string `mapstructure:"shop_name"`
}

// ShopifyConfig holds the Admin API credentials.
type ShopifyConfig struct {
	ShopDomain string        `mapstructure:"shop_domain"`
	AdminToken string        `mapstructure:"admin_token"`
	APIVersion string        `mapstructure:"api_version"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// EmailConfig captures outbound email settings.
type EmailConfig struct {
	Provider string         `mapstructure:"provider"`
	From     string         `mapstructure:"from"`
	API      EmailAPIConfig `mapstructure:"api"`
	SMTP     SMTPConfig     `mapstructure:"smtp"`
}

// EmailAPIConfig configures the hosted email API provider.
type EmailAPIConfig struct {
	Endpoint string        `mapstructure:"endpoint"`
	Key      string        `mapstructure:"key"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// SMTPConfig defines SMTP dialer settings for sending email.
type SMTPConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	UseTLS   bool          `mapstructure:"use_tls"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// ResetConfig tunes the password reset flow.
type ResetConfig struct {
	PagePath             string          `mapstructure:"page_path"`
	PriorTokens          string          `mapstructure:"prior_tokens"`
	BestEffortDurability bool            `mapstructure:"best_effort_durability"`
	SweepSchedule        string          `mapstructure:"sweep_schedule"`
	RateLimit            RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig bounds requests per client on the reset endpoints.
type RateLimitConfig struct {
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

// StoreConfig selects where reset tokens live.
type StoreConfig struct {
	Backend  string           `mapstructure:"backend"`
	File     FileStoreConfig  `mapstructure:"file"`
	Redis    RedisStoreConfig `mapstructure:"redis"`
	Database DatabaseConfig   `mapstructure:"database"`
}

// FileStoreConfig points at the JSON token file.
type FileStoreConfig struct {
	Path string `mapstructure:"path"`
}

// RedisStoreConfig holds Redis connection options.
type RedisStoreConfig struct {
	Address  string        `mapstructure:"address"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TLS      bool          `mapstructure:"tls"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// DatabaseConfig describes connection options for the supported databases.
type DatabaseConfig struct {
	Driver       string            `mapstructure:"driver"`
	Path         string            `mapstructure:"path"`
	DSN          string            `mapstructure:"dsn"`
	Host         string            `mapstructure:"host"`
	Port         int               `mapstructure:"port"`
	User         string            `mapstructure:"user"`
	Password     string            `mapstructure:"password"`
	Name         string            `mapstructure:"name"`
	Options      map[string]string `mapstructure:"options"`
	MaxOpenConns int               `mapstructure:"max_open_conns"`
}

// MonitoringConfig enables health checks and metrics.
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
	Health     HealthConfig     `mapstructure:"health_check"`
}

// PrometheusConfig toggles metrics endpoints.
type PrometheusConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// HealthConfig toggles health endpoints.
type HealthConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Timeout time.Duration `mapstructure:"timeout"`
}

const (
	StoreBackendFile     = "file"
	StoreBackendRedis    = "redis"
	StoreBackendDatabase = "database"

	EmailProviderAPI  = "api"
	EmailProviderSMTP = "smtp"
)

// LoadConfig initialises application configuration using Viper with sensible defaults.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.NewWithOptions(viper.ExperimentalBindStruct())
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("./config")
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	setDefaults(v)

	v.SetEnvPrefix("STOREFRONT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var cfgErr viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgErr) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config, decodeHook()); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_format", "json")
	v.SetDefault("server.shutdown_timeout", "15s")

	v.SetDefault("site.shop_name", "our store")

	v.SetDefault("shopify.api_version", "2024-10")
	v.SetDefault("shopify.timeout", "10s")

	v.SetDefault("email.provider", EmailProviderAPI)
	v.SetDefault("email.api.endpoint", "https://api.resend.com/emails")
	v.SetDefault("email.api.timeout", "10s")
	v.SetDefault("email.smtp.enabled", false)
	v.SetDefault("email.smtp.port", 587)
	v.SetDefault("email.smtp.use_tls", true)
	v.SetDefault("email.smtp.timeout", "10s")

	v.SetDefault("reset.page_path", "reset-password")
	v.SetDefault("reset.prior_tokens", string(services.PriorTokensAllow))
	v.SetDefault("reset.best_effort_durability", true)
	v.SetDefault("reset.sweep_schedule", "@every 10m")
	v.SetDefault("reset.rate_limit.requests", 10)
	v.SetDefault("reset.rate_limit.window", "1m")

	v.SetDefault("store.backend", StoreBackendFile)
	v.SetDefault("store.file.path", "./data/reset-tokens.json")
	v.SetDefault("store.redis.address", "127.0.0.1:6379")
	v.SetDefault("store.redis.db", 0)
	v.SetDefault("store.redis.timeout", "5s")
	v.SetDefault("store.database.driver", "sqlite")
	v.SetDefault("store.database.path", "./data/storefront.sqlite")

	v.SetDefault("monitoring.prometheus.enabled", true)
	v.SetDefault("monitoring.prometheus.endpoint", "/metrics")
	v.SetDefault("monitoring.health_check.enabled", true)
	v.SetDefault("monitoring.health_check.timeout", "2s")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate reports every setting that cannot be honoured. Missing credentials are not
// errors; the reset endpoints answer with a configuration error until they are set.
func (c Config) Validate() error {
	var errs error

	switch strings.ToLower(c.Store.Backend) {
	case StoreBackendFile:
		if strings.TrimSpace(c.Store.File.Path) == "" {
			errs = multierr.Append(errs, errors.New("config: store.file.path is required"))
		}
	case StoreBackendRedis, StoreBackendDatabase:
	default:
		errs = multierr.Append(errs, fmt.Errorf("config: unknown store.backend %q", c.Store.Backend))
	}

	switch strings.ToLower(c.Email.Provider) {
	case EmailProviderAPI, EmailProviderSMTP:
	default:
		errs = multierr.Append(errs, fmt.Errorf("config: unknown email.provider %q", c.Email.Provider))
	}

	if _, err := c.Reset.PriorTokenPolicy(); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("config: reset.prior_tokens: %w", err))
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = multierr.Append(errs, fmt.Errorf("config: invalid server.port %d", c.Server.Port))
	}

	return errs
}

// PriorTokenPolicy parses reset.prior_tokens.
func (c ResetConfig) PriorTokenPolicy() (services.PriorTokenPolicy, error) {
	return services.ParsePriorTokenPolicy(c.PriorTokens)
}
