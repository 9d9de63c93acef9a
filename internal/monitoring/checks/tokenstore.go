package checks

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charlesng35/storefront/internal/monitoring"
)

// TokenFile verifies that the reset token file directory exists or can be created and
// accepts writes. A failure is reported as degraded: the store keeps working from memory.
func TokenFile(path string) monitoring.Check {
	return monitoring.NewCheck("token_store", func(ctx context.Context) monitoring.ProbeResult {
		start := time.Now()
		if err := probeWritable(filepath.Dir(path)); err != nil {
			return monitoring.ProbeResult{
				Status:   monitoring.StatusDegraded,
				Details:  err.Error(),
				Duration: time.Since(start),
			}
		}
		return monitoring.ProbeResult{Status: monitoring.StatusUp, Duration: time.Since(start)}
	})
}

func probeWritable(dir string) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	probe, err := os.CreateTemp(dir, ".probe-*")
	if err != nil {
		return fmt.Errorf("write %s: %w", dir, err)
	}
	name := probe.Name()
	_ = probe.Close()
	return os.Remove(name)
}
