package maintenance

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/require"

	testutil "github.com/charlesng35/storefront/internal/database/testutil"
	"github.com/charlesng35/storefront/internal/models"
	"github.com/charlesng35/storefront/internal/monitoring"
	"github.com/charlesng35/storefront/internal/resettoken"
)

func TestRunOnceSweepsExpiredTokens(t *testing.T) {
	now := time.Date(2024, 2, 10, 15, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	store, err := resettoken.NewFileStore(filepath.Join(t.TempDir(), "tokens.json"), resettoken.WithClock(clock))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.Put(ctx, resettoken.Token{
		Token:      "expired",
		Email:      "old@example.com",
		CustomerID: "gid://shopify/Customer/1",
		IssuedAt:   now.Add(-2 * time.Hour),
	}))
	require.NoError(t, store.Put(ctx, resettoken.Token{
		Token:      "active",
		Email:      "new@example.com",
		CustomerID: "gid://shopify/Customer/2",
		IssuedAt:   now.Add(-time.Minute),
	}))

	cleaner := NewCleaner(store)
	require.NoError(t, cleaner.RunOnce(ctx))
	require.Equal(t, 1, store.Len())

	_, err = store.Get(ctx, "active")
	require.NoError(t, err)

	var found bool
	for _, job := range monitoring.MaintenanceSnapshot() {
		if job.Job == jobTokenSweep {
			found = true
			require.Equal(t, "success", job.LastStatus)
		}
	}
	require.True(t, found)
}

func TestCleanupCacheEntries(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	now := time.Date(2024, 2, 10, 15, 0, 0, 0, time.UTC)

	entries := []models.CacheEntry{
		{Key: "expired", Value: []byte("1"), ExpiresAt: now.Add(-time.Minute)},
		{Key: "active", Value: []byte("2"), ExpiresAt: now.Add(time.Minute)},
		{Key: "forever", Value: []byte("3")},
	}
	require.NoError(t, db.Create(&entries).Error)

	removed, err := CleanupCacheEntries(context.Background(), db, now)
	require.NoError(t, err)
	require.EqualValues(t, 1, removed)

	var remaining []models.CacheEntry
	require.NoError(t, db.Find(&remaining).Error)
	keys := make([]string, 0, len(remaining))
	for _, entry := range remaining {
		keys = append(keys, entry.Key)
	}
	require.ElementsMatch(t, []string{"active", "forever"}, keys)

	_, err = CleanupCacheEntries(context.Background(), nil, now)
	require.Error(t, err)
}

func TestRunOnceAggregatesErrors(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	cleaner := NewCleaner(failingStore{}, WithCacheDatabase(db))

	require.NoError(t, db.Migrator().DropTable(&models.CacheEntry{}))

	err := cleaner.RunOnce(context.Background())
	require.Error(t, err)
	require.ErrorContains(t, err, "sweep reset tokens")
	require.ErrorContains(t, err, "cleanup cache")
}

func TestStartSchedulesJobs(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	store, err := resettoken.NewFileStore(filepath.Join(t.TempDir(), "tokens.json"))
	require.NoError(t, err)

	scheduler := cron.New()
	cleaner := NewCleaner(store,
		WithCron(scheduler),
		WithCacheDatabase(db),
		WithTokenSchedule("@every 1m"),
		WithCacheSchedule("@every 2m"),
	)

	require.NoError(t, cleaner.Start())
	require.Len(t, scheduler.Entries(), 2)
	<-cleaner.Stop().Done()
}

func TestStartRejectsInvalidSchedule(t *testing.T) {
	cleaner := NewCleaner(failingStore{}, WithTokenSchedule("not a schedule"))
	require.Error(t, cleaner.Start())
}

func TestStartWithoutJobs(t *testing.T) {
	scheduler := cron.New()
	cleaner := NewCleaner(nil, WithCron(scheduler))
	require.NoError(t, cleaner.Start())
	require.Empty(t, scheduler.Entries())
	require.NoError(t, cleaner.RunOnce(context.Background()))
}

type failingStore struct{}

func (failingStore) Put(context.Context, resettoken.Token) error { return errors.New("boom") }

func (failingStore) Get(context.Context, string) (*resettoken.Token, error) {
	return nil, resettoken.ErrNotFound
}

func (failingStore) Delete(context.Context, string) error { return errors.New("boom") }

func (failingStore) DeleteByCustomer(context.Context, string) (int, error) {
	return 0, errors.New("boom")
}

func (failingStore) Sweep(context.Context) (int, error) { return 0, errors.New("boom") }
