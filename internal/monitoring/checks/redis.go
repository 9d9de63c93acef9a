package checks

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/charlesng35/storefront/internal/monitoring"
)

// Redis returns a readiness probe for a go-redis client. A nil client reports degraded.
func Redis(name string, client redis.UniversalClient) monitoring.Check {
	if name == "" {
		name = "redis"
	}
	return monitoring.NewCheck(name, func(ctx context.Context) monitoring.ProbeResult {
		start := time.Now()
		if client == nil {
			return monitoring.ProbeResult{
				Status:   monitoring.StatusDegraded,
				Details:  "redis unavailable",
				Duration: time.Since(start),
			}
		}

		return monitoring.ResultFromError(name, client.Ping(ctx).Err(), time.Since(start))
	})
}
