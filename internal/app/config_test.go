package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/storefront/internal/services"
)

func TestLoadConfigFromFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join("testdata"))
	require.NoError(t, err)

	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, "debug", cfg.Server.LogLevel)
	require.Equal(t, []string{"10.0.0.0/8", "192.168.0.0/16"}, cfg.Server.TrustedProxies)
	require.Equal(t, 15*time.Second, cfg.Server.ShutdownTimeout)

	require.Equal(t, "https://scooters.example.com", cfg.Site.BaseURL)
	require.Equal(t, "Volt Scooters", cfg.Site.ShopName)

	require.Equal(t, "volt-scooters.myshopify.com", cfg.Shopify.ShopDomain)
	require.Equal(t, "2024-10", cfg.Shopify.APIVersion)
	require.Equal(t, 5*time.Second, cfg.Shopify.Timeout)

	require.Equal(t, EmailProviderSMTP, cfg.Email.Provider)
	require.Equal(t, "smtp.example.com", cfg.Email.SMTP.Host)
	require.Equal(t, 2525, cfg.Email.SMTP.Port)
	require.True(t, cfg.Email.SMTP.UseTLS)
	require.Equal(t, 15*time.Second, cfg.Email.SMTP.Timeout)

	require.Equal(t, "account/reset", cfg.Reset.PagePath)
	require.False(t, cfg.Reset.BestEffortDurability)
	require.Equal(t, "@every 10m", cfg.Reset.SweepSchedule)
	require.Equal(t, 3, cfg.Reset.RateLimit.Requests)
	require.Equal(t, 30*time.Second, cfg.Reset.RateLimit.Window)

	policy, err := cfg.Reset.PriorTokenPolicy()
	require.NoError(t, err)
	require.Equal(t, services.PriorTokensInvalidate, policy)

	require.Equal(t, StoreBackendRedis, cfg.Store.Backend)
	require.Equal(t, "redis.internal:6380", cfg.Store.Redis.Address)
	require.Equal(t, 2, cfg.Store.Redis.DB)
	require.Equal(t, "require", cfg.Store.Database.Options["sslmode"])
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, 8000, cfg.Server.Port)
	require.Equal(t, "reset-password", cfg.Reset.PagePath)
	require.True(t, cfg.Reset.BestEffortDurability)
	require.Equal(t, StoreBackendFile, cfg.Store.Backend)
	require.Equal(t, "./data/reset-tokens.json", cfg.Store.File.Path)
	require.Equal(t, 10*time.Second, cfg.Shopify.Timeout)
	require.Equal(t, "/metrics", cfg.Monitoring.Prometheus.Endpoint)
	require.Equal(t, 2*time.Second, cfg.Monitoring.Health.Timeout)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("STOREFRONT_SHOPIFY_ADMIN_TOKEN", "shpat_env")
	t.Setenv("STOREFRONT_SITE_BASE_URL", "https://env.example.com")
	t.Setenv("STOREFRONT_EMAIL_API_KEY", "re_env")

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, "shpat_env", cfg.Shopify.AdminToken)
	require.Equal(t, "https://env.example.com", cfg.Site.BaseURL)
	require.True(t, cfg.Email.APISettings().Enabled)
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	dir := t.TempDir()
	content := []byte("store:\n  backend: memcached\nemail:\n  provider: carrier-pigeon\nreset:\n  prior_tokens: sometimes\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), content, 0o600))

	_, err := LoadConfig(dir)
	require.Error(t, err)
	require.ErrorContains(t, err, "store.backend")
	require.ErrorContains(t, err, "email.provider")
	require.ErrorContains(t, err, "reset.prior_tokens")
}

func TestConfigAdapters(t *testing.T) {
	cfg := Config{
		Shopify: ShopifyConfig{ShopDomain: " shop.myshopify.com ", AdminToken: "token", Timeout: 3 * time.Second},
		Email: EmailConfig{
			From: "support@example.com",
			API:  EmailAPIConfig{Endpoint: "https://mail.example.com/emails", Key: "key", Timeout: time.Second},
			SMTP: SMTPConfig{Enabled: true, Host: "smtp.example.com", Port: 25},
		},
		Store: StoreConfig{
			Redis:    RedisStoreConfig{Address: " 127.0.0.1:6379 ", DB: 3, Timeout: time.Second},
			Database: DatabaseConfig{Driver: "mysql", Host: "db", User: "u", Name: "n"},
		},
	}

	shopifyCfg := cfg.Shopify.ClientConfig()
	require.Equal(t, "shop.myshopify.com", shopifyCfg.ShopDomain)
	require.True(t, shopifyCfg.Configured())

	api := cfg.Email.APISettings()
	require.True(t, api.Enabled)
	require.Equal(t, "support@example.com", api.From)
	require.Equal(t, "https://mail.example.com/emails", api.Endpoint)

	smtp := cfg.Email.SMTPSettings()
	require.Equal(t, "support@example.com", smtp.From)
	require.Equal(t, 25, smtp.Port)

	redisCfg := cfg.Store.RedisClientConfig()
	require.Equal(t, "127.0.0.1:6379", redisCfg.Address)
	require.Equal(t, 3, redisCfg.DB)

	dbCfg := cfg.Store.Database.ConnectionConfig()
	require.Equal(t, "mysql", dbCfg.Driver)
	require.Equal(t, "n", dbCfg.Name)
}
