package api

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/charlesng35/storefront/internal/app"
	"github.com/charlesng35/storefront/internal/middleware"
	"github.com/charlesng35/storefront/internal/monitoring"
	"github.com/charlesng35/storefront/internal/services"
)

// Dependencies bundles everything the router needs. Health and RateStore are optional.
type Dependencies struct {
	Config    *app.Config
	Resets    *services.PasswordResetService
	Health    *monitoring.HealthManager
	RateStore middleware.RateStore
}

// NewRouter builds the Gin engine, wires middleware and registers the reset, health and
// metrics routes.
func NewRouter(deps Dependencies) (*gin.Engine, error) {
	if deps.Config == nil {
		return nil, errors.New("config must be provided")
	}
	if deps.Resets == nil {
		return nil, errors.New("password reset service must be provided")
	}
	cfg := deps.Config

	r := gin.New()
	r.HandleMethodNotAllowed = true
	if err := r.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		return nil, err
	}

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())

	r.NoRoute(middleware.NotFoundHandler)
	r.NoMethod(middleware.MethodNotAllowedHandler)

	rateStore := deps.RateStore
	if rateStore == nil {
		rateStore = middleware.NewMemoryRateStore()
	}

	registerPasswordResetRoutes(r, deps.Resets, middleware.RateLimit(rateStore, cfg.Reset.RateLimit.Requests, cfg.Reset.RateLimit.Window))

	var health *monitoring.HealthManager
	if cfg.Monitoring.Health.Enabled {
		health = deps.Health
	}
	registerHealthRoutes(r, health)

	if cfg.Monitoring.Prometheus.Enabled {
		endpoint := strings.TrimSpace(cfg.Monitoring.Prometheus.Endpoint)
		if endpoint == "" {
			endpoint = "/metrics"
		}
		r.GET(endpoint, gin.WrapH(promhttp.Handler()))
	}

	return r, nil
}
