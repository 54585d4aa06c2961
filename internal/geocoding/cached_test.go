package geocoding

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"address-route-optimizer/internal/models"
)

type memoryCache struct {
	mu      sync.Mutex
	entries map[string]models.GeocodeCacheEntry
	failGet bool
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: make(map[string]models.GeocodeCacheEntry)}
}

func (c *memoryCache) Get(ctx context.Context, provider, address string) (*models.GeocodeCacheEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failGet {
		return nil, errors.New("cache down")
	}
	if e, ok := c.entries[provider+"|"+address]; ok {
		return &e, nil
	}
	return nil, nil
}

func (c *memoryCache) Set(ctx context.Context, entry *models.GeocodeCacheEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[entry.Provider+"|"+entry.Address] = *entry
	return nil
}

type countingGeocoder struct {
	calls   int
	results map[string]models.Coordinates
}

func (g *countingGeocoder) Name() string { return "fake" }

func (g *countingGeocoder) Geocode(ctx context.Context, address string) (*Result, error) {
	g.calls++
	coords, ok := g.results[address]
	if !ok {
		return nil, &ErrGeocodingFailed{Address: address, Provider: "fake", Reason: "no results found", NotFound: true}
	}
	return &Result{Coords: coords, Provider: "fake"}, nil
}

func TestCachedGeocoderHitSkipsProvider(t *testing.T) {
	inner := &countingGeocoder{results: map[string]models.Coordinates{"Rue A": {Lat: 1, Lng: 2}}}
	cache := newMemoryCache()
	g := NewCachedGeocoder(inner, cache)

	first, err := g.Geocode(context.Background(), "Rue A")
	require.NoError(t, err)
	second, err := g.Geocode(context.Background(), "Rue A")
	require.NoError(t, err)

	assert.Equal(t, first.Coords, second.Coords)
	assert.Equal(t, 1, inner.calls)
	assert.Equal(t, "fake", g.Name())
}

func TestCachedGeocoderDoesNotCacheFailures(t *testing.T) {
	inner := &countingGeocoder{results: map[string]models.Coordinates{}}
	g := NewCachedGeocoder(inner, newMemoryCache())

	_, err := g.Geocode(context.Background(), "Nowhere")
	require.Error(t, err)
	_, err = g.Geocode(context.Background(), "Nowhere")
	require.Error(t, err)

	assert.True(t, IsNotFound(err))
	assert.Equal(t, 2, inner.calls)
}

func TestCachedGeocoderBrokenCacheFallsThrough(t *testing.T) {
	inner := &countingGeocoder{results: map[string]models.Coordinates{"Rue A": {Lat: 1, Lng: 2}}}
	cache := newMemoryCache()
	cache.failGet = true

	result, err := NewCachedGeocoder(inner, cache).Geocode(context.Background(), "Rue A")

	require.NoError(t, err)
	assert.Equal(t, 2.0, result.Coords.Lng)
}

func TestNewCachedGeocoderNilCache(t *testing.T) {
	inner := &countingGeocoder{}
	assert.Same(t, inner, NewCachedGeocoder(inner, nil).(*countingGeocoder))
}
