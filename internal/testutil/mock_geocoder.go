package testutil

import (
	"context"
	"sync"

	"address-route-optimizer/internal/geocoding"
	"address-route-optimizer/internal/models"
)

// MockGeocoder resolves addresses from a fixed table. Unknown addresses are
// reported as not found. Safe for concurrent use.
type MockGeocoder struct {
	ProviderName string
	Coords       map[string]models.Coordinates
	// Failures maps an address to a non-not-found failure reason
	Failures map[string]string

	mu    sync.Mutex
	calls map[string]int
}

func NewMockGeocoder(coords map[string]models.Coordinates) *MockGeocoder {
	if coords == nil {
		coords = make(map[string]models.Coordinates)
	}
	return &MockGeocoder{
		ProviderName: "mock",
		Coords:       coords,
		Failures:     make(map[string]string),
		calls:        make(map[string]int),
	}
}

func (g *MockGeocoder) Name() string { return g.ProviderName }

func (g *MockGeocoder) Geocode(ctx context.Context, address string) (*geocoding.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	g.mu.Lock()
	g.calls[address]++
	g.mu.Unlock()

	if reason, ok := g.Failures[address]; ok {
		return nil, &geocoding.ErrGeocodingFailed{Address: address, Provider: g.ProviderName, Reason: reason}
	}
	coords, ok := g.Coords[address]
	if !ok {
		return nil, &geocoding.ErrGeocodingFailed{Address: address, Provider: g.ProviderName, Reason: "no results found", NotFound: true}
	}
	return &geocoding.Result{Coords: coords, DisplayName: address, Provider: g.ProviderName}, nil
}

// Calls returns how many times address was looked up
func (g *MockGeocoder) Calls(address string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[address]
}

// TotalCalls returns the number of lookups across all addresses
func (g *MockGeocoder) TotalCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	total := 0
	for _, c := range g.calls {
		total += c
	}
	return total
}

// MockGeocodeCache is an in-memory geocoding.Cache
type MockGeocodeCache struct {
	mu      sync.Mutex
	entries map[string]models.GeocodeCacheEntry
}

func NewMockGeocodeCache() *MockGeocodeCache {
	return &MockGeocodeCache{entries: make(map[string]models.GeocodeCacheEntry)}
}

func (c *MockGeocodeCache) Get(ctx context.Context, provider, address string) (*models.GeocodeCacheEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok := c.entries[provider+"|"+address]; ok {
		return &entry, nil
	}
	return nil, nil
}

func (c *MockGeocodeCache) Set(ctx context.Context, entry *models.GeocodeCacheEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[entry.Provider+"|"+entry.Address] = *entry
	return nil
}

// Count returns the number of entries in the cache
func (c *MockGeocodeCache) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
