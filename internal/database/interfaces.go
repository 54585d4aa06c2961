package database

import (
	"context"

	"address-route-optimizer/internal/models"
)

// DataStore is the interface for data persistence
type DataStore interface {
	Close() error
	HealthCheck(ctx context.Context) error
	GeocodeCache() GeocodeCacheRepository
	DistanceCache() DistanceCacheRepository
	Results() ResultRepository
}

// GeocodeCacheRepository handles geocode cache persistence
type GeocodeCacheRepository interface {
	Get(ctx context.Context, provider, address string) (*models.GeocodeCacheEntry, error)
	Set(ctx context.Context, entry *models.GeocodeCacheEntry) error
	Clear(ctx context.Context) error
}

// DistanceCacheRepository handles distance cache persistence
type DistanceCacheRepository interface {
	Get(ctx context.Context, origin, dest models.Coordinates) (*models.DistanceCacheEntry, error)
	Set(ctx context.Context, entry *models.DistanceCacheEntry) error
	SetBatch(ctx context.Context, entries []models.DistanceCacheEntry) error
	Clear(ctx context.Context) error
}

// ResultRepository handles the resolved-file history
type ResultRepository interface {
	Add(ctx context.Context, r *models.StoredResult) error
	Get(ctx context.Context, runID string) (*models.StoredResult, error)
	List(ctx context.Context) ([]models.StoredResult, error)
	Clear(ctx context.Context) error
}
