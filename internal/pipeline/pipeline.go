// Package pipeline wires normalization, matrix acquisition, tour solving and
// link building into one run. It never reads the environment or disk; every
// setting arrives through Config.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"

	"address-route-optimizer/internal/address"
	"address-route-optimizer/internal/distance"
	"address-route-optimizer/internal/geocoding"
	"address-route-optimizer/internal/httpretry"
	"address-route-optimizer/internal/metrics"
	"address-route-optimizer/internal/models"
	"address-route-optimizer/internal/routelink"
	"address-route-optimizer/internal/tsp"
)

// Backend names a matrix backend or the size-based selection between them
type Backend string

const (
	BackendAuto       Backend = "auto"
	BackendOSRM       Backend = "osrm"
	BackendMatrix     Backend = "matrix"
	BackendCoordinate Backend = "coordinate"
)

// ParseBackend validates a configured backend name. Empty means auto.
func ParseBackend(s string) (Backend, error) {
	switch b := Backend(s); b {
	case "":
		return BackendAuto, nil
	case BackendAuto, BackendOSRM, BackendMatrix, BackendCoordinate:
		return b, nil
	default:
		return "", fmt.Errorf("unknown backend %q", s)
	}
}

// ErrNoAddresses is returned when no row had a street
var ErrNoAddresses = errors.New("no addresses to route")

// Config is everything a run needs to know
type Config struct {
	APIKey  string
	Start   string
	Mode    distance.Mode
	Backend Backend
	// SizeLimit is the largest count sent to the matrix API in auto mode
	SizeLimit   int
	Concurrency int

	NominatimURL      string
	NominatimInterval time.Duration
	UserAgent         string
	GoogleURL         string
	OSRMURL           string
	Policy            httpretry.Policy

	Solver tsp.Options
	Link   routelink.Builder
}

// Deps are optional collaborators. Strategy, when set, replaces the
// providers New would build from Config.
type Deps struct {
	GeocodeCache  geocoding.Cache
	DistanceCache distance.Cache
	Strategy      distance.Strategy
	HTTPClient    *http.Client
}

// Result is the outcome of one run
type Result struct {
	RunID     string          `json:"run_id"`
	Backend   string          `json:"backend"`
	Addresses []string        `json:"addresses"`
	Order     []int           `json:"order"`
	Stops     []string        `json:"stops"`
	URL       string          `json:"url"`
	Cost      float64         `json:"cost"`
	Degraded  bool            `json:"degraded"`
	Report    distance.Report `json:"report"`
}

type Pipeline struct {
	cfg        Config
	strategy   distance.Strategy
	solver     *tsp.Solver
	normalizer address.Normalizer
}

// New validates cfg and builds the backend strategy
func New(cfg Config, deps Deps) (*Pipeline, error) {
	if cfg.Backend == "" {
		cfg.Backend = BackendAuto
	}
	if cfg.Mode == "" {
		cfg.Mode = distance.ModeDuration
	}
	if cfg.SizeLimit <= 0 {
		cfg.SizeLimit = distance.DefaultSizeLimit
	}

	strategy := deps.Strategy
	if strategy == nil {
		var err error
		strategy, err = buildStrategy(cfg, deps)
		if err != nil {
			return nil, err
		}
	}

	return &Pipeline{
		cfg:      cfg,
		strategy: strategy,
		solver:   tsp.NewSolver(cfg.Solver),
	}, nil
}

// buildStrategy maps the configured backend onto providers. Without an API key
// auto mode falls back to the coordinate backend over the open geocoder.
func buildStrategy(cfg Config, deps Deps) (distance.Strategy, error) {
	var precise geocoding.Geocoder
	if cfg.APIKey != "" {
		g, err := geocoding.NewGoogleGeocoder(cfg.APIKey, geocoding.GoogleOptions{
			BaseURL:    cfg.GoogleURL,
			Policy:     cfg.Policy,
			HTTPClient: deps.HTTPClient,
		})
		if err != nil {
			return nil, err
		}
		precise = geocoding.NewCachedGeocoder(g, deps.GeocodeCache)
	}
	open := geocoding.NewCachedGeocoder(geocoding.NewNominatimGeocoder(geocoding.NominatimOptions{
		BaseURL:    cfg.NominatimURL,
		UserAgent:  cfg.UserAgent,
		Interval:   cfg.NominatimInterval,
		Policy:     cfg.Policy,
		HTTPClient: deps.HTTPClient,
	}), deps.GeocodeCache)

	geocoder := open
	if precise != nil {
		geocoder = precise
	}
	coordinate := distance.NewEuclideanProvider(geocoder, distance.EuclideanOptions{Concurrency: cfg.Concurrency})

	newMatrix := func() (distance.Provider, error) {
		return distance.NewMatrixAPIProvider(cfg.APIKey, cfg.Mode, distance.MatrixAPIOptions{
			BaseURL:     cfg.GoogleURL,
			Concurrency: cfg.Concurrency,
			Policy:      cfg.Policy,
			HTTPClient:  deps.HTTPClient,
		})
	}

	switch cfg.Backend {
	case BackendAuto:
		if cfg.APIKey == "" {
			log.Printf("[PIPELINE] No API key configured, using coordinate backend with %s", open.Name())
			return distance.FixedStrategy{Provider: coordinate}, nil
		}
		matrix, err := newMatrix()
		if err != nil {
			return nil, err
		}
		return distance.SizeStrategy{Limit: cfg.SizeLimit, Small: matrix, Large: coordinate}, nil
	case BackendMatrix:
		matrix, err := newMatrix()
		if err != nil {
			return nil, fmt.Errorf("matrix backend: %w", err)
		}
		return distance.FixedStrategy{Provider: matrix}, nil
	case BackendCoordinate:
		return distance.FixedStrategy{Provider: coordinate}, nil
	case BackendOSRM:
		return distance.FixedStrategy{Provider: distance.NewOSRMProvider(geocoder, distance.OSRMOptions{
			BaseURL:     cfg.OSRMURL,
			Mode:        cfg.Mode,
			Concurrency: cfg.Concurrency,
			Policy:      cfg.Policy,
			HTTPClient:  deps.HTTPClient,
			Cache:       deps.DistanceCache,
		})}, nil
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

// Run routes rows. Non-fatal lookup failures are in Result.Report; a
// returned error means no route was produced.
func (p *Pipeline) Run(ctx context.Context, rows []models.AddressRow) (*Result, error) {
	start := time.Now()
	addresses := p.normalizer.Normalize(rows, p.cfg.Start)
	if len(addresses) == 0 {
		return nil, ErrNoAddresses
	}

	provider := p.strategy.Select(len(addresses))
	log.Printf("[PIPELINE] Run: rows=%d addresses=%d backend=%s mode=%s", len(rows), len(addresses), provider.Name(), p.cfg.Mode)

	built, err := provider.Build(ctx, addresses)
	if err != nil {
		metrics.PipelineRuns.WithLabelValues(provider.Name(), "error").Inc()
		log.Printf("[ERROR] Matrix build failed: backend=%s err=%v", provider.Name(), err)
		return nil, fmt.Errorf("build %s matrix: %w", provider.Name(), err)
	}
	report := built.Report

	if p.cfg.Start != "" && (len(built.Addresses) == 0 || built.Addresses[0] != addresses[0]) {
		report.AddWarning("start address %q could not be resolved; route starts at the first resolved address", addresses[0])
	}

	solveStart := time.Now()
	sol, err := p.solver.Solve(ctx, built.Matrix)
	metrics.SolverDuration.Observe(time.Since(solveStart).Seconds())
	if err != nil {
		metrics.PipelineRuns.WithLabelValues(provider.Name(), "error").Inc()
		return nil, fmt.Errorf("solve tour: %w", err)
	}
	if sol.Degraded {
		log.Printf("[WARN] Tour uses unknown routes: penalty_edges=%d", sol.PenaltyEdges)
		report.AddWarning("tour uses %d leg(s) with no known route", sol.PenaltyEdges)
	}

	link := p.cfg.Link.Build(built.Addresses, sol.Order)

	outcome := "ok"
	if !report.Empty() {
		outcome = "partial"
	}
	metrics.PipelineRuns.WithLabelValues(provider.Name(), outcome).Inc()
	if failed := len(report.Unresolved) + len(report.CellErrors); failed > 0 {
		metrics.UnresolvedAddresses.WithLabelValues(provider.Name()).Add(float64(failed))
	}

	result := &Result{
		RunID:     uuid.NewString(),
		Backend:   provider.Name(),
		Addresses: built.Addresses,
		Order:     sol.Order,
		Stops:     link.Stops,
		URL:       link.URL,
		Cost:      sol.Cost,
		Degraded:  sol.Degraded,
		Report:    report,
	}
	log.Printf("[TIMING] Pipeline run: run_id=%s backend=%s stops=%d errors=%d took=%v",
		result.RunID, result.Backend, len(result.Stops), len(report.Errors()), time.Since(start))
	return result, nil
}

// Mode reports the matrix value the tour is optimized for
func (p *Pipeline) Mode() distance.Mode {
	return p.cfg.Mode
}

// Backend reports the provider that would serve n addresses
func (p *Pipeline) Backend(n int) string {
	return p.strategy.Select(n).Name()
}
