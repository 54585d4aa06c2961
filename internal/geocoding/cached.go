package geocoding

import (
	"context"
	"log"

	"address-route-optimizer/internal/metrics"
	"address-route-optimizer/internal/models"
)

// Cache stores successful lookups keyed by provider and address
type Cache interface {
	Get(ctx context.Context, provider, address string) (*models.GeocodeCacheEntry, error)
	Set(ctx context.Context, entry *models.GeocodeCacheEntry) error
}

type cachedGeocoder struct {
	inner Geocoder
	cache Cache
}

// NewCachedGeocoder wraps inner with a read-through cache. Failures are never cached,
// so a transient outage does not pin an address as unresolved.
func NewCachedGeocoder(inner Geocoder, cache Cache) Geocoder {
	if cache == nil {
		return inner
	}
	return &cachedGeocoder{inner: inner, cache: cache}
}

func (c *cachedGeocoder) Name() string { return c.inner.Name() }

func (c *cachedGeocoder) Geocode(ctx context.Context, address string) (*Result, error) {
	provider := c.inner.Name()

	entry, err := c.cache.Get(ctx, provider, address)
	if err != nil {
		// A broken cache degrades to direct lookups
		log.Printf("[WARN] Geocode cache read failed: provider=%s address=%s err=%v", provider, address, err)
	}
	if entry != nil {
		metrics.CacheLookups.WithLabelValues("geocode", "hit").Inc()
		return &Result{Coords: entry.Coords, DisplayName: entry.DisplayName, Provider: provider}, nil
	}
	metrics.CacheLookups.WithLabelValues("geocode", "miss").Inc()

	result, err := c.inner.Geocode(ctx, address)
	if err != nil {
		return nil, err
	}

	if err := c.cache.Set(ctx, &models.GeocodeCacheEntry{
		Address:     address,
		Provider:    provider,
		Coords:      result.Coords,
		DisplayName: result.DisplayName,
	}); err != nil {
		log.Printf("[WARN] Geocode cache write failed: provider=%s address=%s err=%v", provider, address, err)
	}

	return result, nil
}
