package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"address-route-optimizer/internal/database"
	"address-route-optimizer/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), "nested", DefaultDBFileName))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStoreReopenKeepsSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultDBFileName)
	store, err := New(path)
	require.NoError(t, err)
	require.NoError(t, store.Results().Add(context.Background(), &models.StoredResult{RunID: "r1", Filename: "a.xlsx", URL: "u", Backend: "matrix"}))
	require.NoError(t, store.Close())

	reopened, err := New(path)
	require.NoError(t, err)
	defer reopened.Close()

	list, err := reopened.Results().List(context.Background())
	require.NoError(t, err)
	assert.Len(t, list, 1)
	assert.Equal(t, path, reopened.GetDBPath())
	assert.NoError(t, reopened.HealthCheck(context.Background()))
}

func TestGeocodeCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	cache := newTestStore(t).GeocodeCache()

	miss, err := cache.Get(ctx, "nominatim", "Rue A, 1000 Lausanne")
	require.NoError(t, err)
	assert.Nil(t, miss)

	require.NoError(t, cache.Set(ctx, &models.GeocodeCacheEntry{
		Address:     "Rue A, 1000 Lausanne",
		Provider:    "nominatim",
		Coords:      models.Coordinates{Lat: 46.5197, Lng: 6.6323},
		DisplayName: "Rue A, Lausanne",
	}))

	hit, err := cache.Get(ctx, "nominatim", "Rue A, 1000 Lausanne")
	require.NoError(t, err)
	require.NotNil(t, hit)
	assert.Equal(t, 46.5197, hit.Coords.Lat)
	assert.Equal(t, "Rue A, Lausanne", hit.DisplayName)

	other, err := cache.Get(ctx, "google", "Rue A, 1000 Lausanne")
	require.NoError(t, err)
	assert.Nil(t, other)

	require.NoError(t, cache.Clear(ctx))
	cleared, err := cache.Get(ctx, "nominatim", "Rue A, 1000 Lausanne")
	require.NoError(t, err)
	assert.Nil(t, cleared)
}

func TestDistanceCacheRoundsKeys(t *testing.T) {
	ctx := context.Background()
	cache := newTestStore(t).DistanceCache()

	origin := models.Coordinates{Lat: 46.519712, Lng: 6.632301}
	dest := models.Coordinates{Lat: 46.99, Lng: 6.93}
	require.NoError(t, cache.SetBatch(ctx, []models.DistanceCacheEntry{
		{Origin: origin, Destination: dest, DistanceMeters: 70000, DurationSecs: 3600},
	}))

	nearby := models.Coordinates{Lat: 46.519708, Lng: 6.632304}
	entry, err := cache.Get(ctx, nearby, dest)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, 3600.0, entry.DurationSecs)

	reverse, err := cache.Get(ctx, dest, origin)
	require.NoError(t, err)
	assert.Nil(t, reverse)

	require.NoError(t, cache.Set(ctx, &models.DistanceCacheEntry{Origin: origin, Destination: dest, DistanceMeters: 1, DurationSecs: 2}))
	entry, err = cache.Get(ctx, origin, dest)
	require.NoError(t, err)
	assert.Equal(t, 1.0, entry.DistanceMeters)

	require.NoError(t, cache.Clear(ctx))
	entry, err = cache.Get(ctx, origin, dest)
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestResultsAddListClear(t *testing.T) {
	ctx := context.Background()
	results := newTestStore(t).Results()

	older := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
	require.NoError(t, results.Add(ctx, &models.StoredResult{
		RunID: "run-1", Filename: "first.xlsx", URL: "https://www.google.com/maps/dir/A/B",
		Backend: "matrix", CreatedAt: older,
	}))
	require.NoError(t, results.Add(ctx, &models.StoredResult{
		RunID: "run-2", Filename: "second.csv", URL: "https://www.google.com/maps/dir/C",
		Backend: "coordinate", Errors: []string{"Rue X: no results found"}, CreatedAt: older.Add(time.Hour),
	}))

	list, err := results.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "run-2", list[0].RunID)
	assert.Equal(t, []string{"Rue X: no results found"}, list[0].Errors)
	assert.Equal(t, "run-1", list[1].RunID)
	assert.Empty(t, list[1].Errors)
	assert.True(t, list[1].CreatedAt.Equal(older))

	got, err := results.Get(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "first.xlsx", got.Filename)

	_, err = results.Get(ctx, "missing")
	assert.ErrorIs(t, err, database.ErrNotFound)

	require.NoError(t, results.Clear(ctx))
	list, err = results.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestResultsDuplicateRunIDRejected(t *testing.T) {
	ctx := context.Background()
	results := newTestStore(t).Results()

	require.NoError(t, results.Add(ctx, &models.StoredResult{RunID: "same", Filename: "a", URL: "u", Backend: "b"}))
	assert.Error(t, results.Add(ctx, &models.StoredResult{RunID: "same", Filename: "a", URL: "u", Backend: "b"}))
}
