// Package app opens the stores and caches a process needs and hands out
// pipelines configured from them.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/redis/go-redis/v9"

	"address-route-optimizer/internal/config"
	"address-route-optimizer/internal/database"
	"address-route-optimizer/internal/distance"
	"address-route-optimizer/internal/geocoding"
	"address-route-optimizer/internal/handlers"
	"address-route-optimizer/internal/pipeline"
	"address-route-optimizer/internal/sqlite"
)

type geocodeCache interface {
	geocoding.Cache
	Clear(ctx context.Context) error
}

// App holds the opened stores for one process
type App struct {
	Config *config.Config
	Store  database.DataStore

	redis        *redis.Client
	geocodeCache geocodeCache
}

// Open validates cfg and opens the SQLite store and, when configured, Redis
func Open(ctx context.Context, cfg *config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	dbPath := cfg.DBPath
	if dbPath == "" {
		p, err := database.GetDefaultDBPath()
		if err != nil {
			return nil, err
		}
		dbPath = p
	}

	store, err := sqlite.New(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize data store: %w", err)
	}

	a := &App{Config: cfg, Store: store, geocodeCache: store.GeocodeCache()}

	if client := geocoding.OpenRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB); client != nil {
		if err := client.Ping(ctx).Err(); err != nil {
			log.Printf("[WARN] Redis unavailable at %s, using SQLite geocode cache: %v", cfg.Redis.Addr, err)
			client.Close()
		} else {
			log.Printf("Using Redis geocode cache at %s", cfg.Redis.Addr)
			a.redis = client
			a.geocodeCache = geocoding.NewRedisCache(client, cfg.Redis.TTL.Duration)
		}
	}

	return a, nil
}

// Close releases the stores
func (a *App) Close() error {
	var errs []error
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	errs = append(errs, a.Store.Close())
	return errors.Join(errs...)
}

// HealthCheck pings every open store
func (a *App) HealthCheck(ctx context.Context) error {
	if err := a.Store.HealthCheck(ctx); err != nil {
		return fmt.Errorf("sqlite: %w", err)
	}
	if a.redis != nil {
		if err := a.redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

func (a *App) deps() pipeline.Deps {
	return pipeline.Deps{
		GeocodeCache:  a.geocodeCache,
		DistanceCache: a.Store.DistanceCache(),
	}
}

// Pipeline builds a pipeline from the configuration. Non-empty start and
// mode override the configured values.
func (a *App) Pipeline(start, mode string) (*pipeline.Pipeline, error) {
	cfg, err := a.Config.Pipeline()
	if err != nil {
		return nil, err
	}
	if start = strings.TrimSpace(start); start != "" {
		cfg.Start = start
	}
	if mode = strings.TrimSpace(mode); mode != "" {
		cfg.Mode = distance.ParseMode(mode)
	}
	return pipeline.New(cfg, a.deps())
}

// Geocoder returns the cached geocoder single lookups go through: Google when
// an API key is configured, Nominatim otherwise
func (a *App) Geocoder() (geocoding.Geocoder, error) {
	cfg, err := a.Config.Pipeline()
	if err != nil {
		return nil, err
	}
	if cfg.APIKey != "" {
		g, err := geocoding.NewGoogleGeocoder(cfg.APIKey, geocoding.GoogleOptions{BaseURL: cfg.GoogleURL, Policy: cfg.Policy})
		if err != nil {
			return nil, err
		}
		return geocoding.NewCachedGeocoder(g, a.geocodeCache), nil
	}
	return geocoding.NewCachedGeocoder(geocoding.NewNominatimGeocoder(geocoding.NominatimOptions{
		BaseURL:   cfg.NominatimURL,
		UserAgent: cfg.UserAgent,
		Interval:  cfg.NominatimInterval,
		Policy:    cfg.Policy,
	}), a.geocodeCache), nil
}

// Handler returns the HTTP handler set backed by this app
func (a *App) Handler() (*handlers.Handler, error) {
	geocoder, err := a.Geocoder()
	if err != nil {
		return nil, err
	}
	return &handlers.Handler{
		Runners: func(start, mode string) (handlers.Runner, error) {
			p, err := a.Pipeline(start, mode)
			if err != nil {
				return nil, err
			}
			return p, nil
		},
		Results:  a.Store.Results(),
		Geocoder: geocoder,
		Health:   a.HealthCheck,
	}, nil
}

// Reset clears the result history and both caches
func (a *App) Reset(ctx context.Context) error {
	if err := a.Store.Results().Clear(ctx); err != nil {
		return err
	}
	if err := a.geocodeCache.Clear(ctx); err != nil {
		return err
	}
	if a.redis != nil {
		// the SQLite geocode cache may hold entries from runs without Redis
		if err := a.Store.GeocodeCache().Clear(ctx); err != nil {
			return err
		}
	}
	return a.Store.DistanceCache().Clear(ctx)
}
