package checks

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/charlesng35/storefront/internal/monitoring"
)

func TestTokenFileWritable(t *testing.T) {
	check := TokenFile(filepath.Join(t.TempDir(), "cache", "reset-tokens.json"))
	result := check.Run(context.Background())
	require.Equal(t, monitoring.StatusUp, result.Status)
}

func TestTokenFileBlocked(t *testing.T) {
	parent := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(parent, []byte("x"), 0o600))

	result := TokenFile(filepath.Join(parent, "reset-tokens.json")).Run(context.Background())
	require.Equal(t, monitoring.StatusDegraded, result.Status)
	require.NotEmpty(t, result.Details)
}

func TestDatabaseCheck(t *testing.T) {
	require.Equal(t, monitoring.StatusDown, Database(nil).Run(context.Background()).Status)

	db, err := gorm.Open(sqlite.Open("file:checks?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.Equal(t, monitoring.StatusUp, Database(db).Run(context.Background()).Status)
}

func TestRedisCheckNilClient(t *testing.T) {
	result := Redis("", nil).Run(context.Background())
	require.Equal(t, monitoring.StatusDegraded, result.Status)
}

func TestMaintenanceCheck(t *testing.T) {
	monitoring.RecordMaintenanceRun("checks_test_sweep", "failure", "timeout", time.Second)

	result := Maintenance(0).Run(context.Background())
	require.Equal(t, monitoring.StatusDown, result.Status)
	require.Contains(t, result.Details, "checks_test_sweep")
}
