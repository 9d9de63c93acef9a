package app

import (
	"strings"

	"github.com/charlesng35/storefront/internal/cache"
	"github.com/charlesng35/storefront/internal/database"
	"github.com/charlesng35/storefront/internal/shopify"
)

// RedisClientConfig converts the Redis store section into the cache package representation.
func (c StoreConfig) RedisClientConfig() cache.RedisConfig {
	return cache.RedisConfig{
		Address:  strings.TrimSpace(c.Redis.Address),
		Username: strings.TrimSpace(c.Redis.Username),
		Password: c.Redis.Password,
		DB:       c.Redis.DB,
		TLS:      c.Redis.TLS,
		Timeout:  c.Redis.Timeout,
	}
}

// ConnectionConfig converts the database store section into database.Config.
func (c DatabaseConfig) ConnectionConfig() database.Config {
	return database.Config{
		Driver:       strings.TrimSpace(c.Driver),
		Path:         strings.TrimSpace(c.Path),
		DSN:          strings.TrimSpace(c.DSN),
		Host:         strings.TrimSpace(c.Host),
		Port:         c.Port,
		User:         c.User,
		Password:     c.Password,
		Name:         c.Name,
		Options:      c.Options,
		MaxOpenConns: c.MaxOpenConns,
	}
}

// ClientConfig converts the Shopify section into shopify.Config.
func (c ShopifyConfig) ClientConfig() shopify.Config {
	return shopify.Config{
		ShopDomain: strings.TrimSpace(c.ShopDomain),
		AdminToken: strings.TrimSpace(c.AdminToken),
		APIVersion: strings.TrimSpace(c.APIVersion),
		Timeout:    c.Timeout,
	}
}
