package distance

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"address-route-optimizer/internal/geocoding"
	"address-route-optimizer/internal/httpretry"
	"address-route-optimizer/internal/metrics"
	"address-route-optimizer/internal/models"
	"address-route-optimizer/internal/ratelimit"
)

const osrmProvider = "osrm"

// OSRMOptions configures the routing-table backend
type OSRMOptions struct {
	BaseURL     string
	Profile     string
	Mode        Mode
	Concurrency int
	Interval    time.Duration
	Policy      httpretry.Policy
	HTTPClient  *http.Client
	Gate        *ratelimit.Gate
	Cache       Cache
}

type osrmProviderImpl struct {
	geocoder    geocoding.Geocoder
	baseURL     string
	profile     string
	mode        Mode
	concurrency int
	policy      httpretry.Policy
	httpClient  *http.Client
	gate        *ratelimit.Gate
	cache       Cache
}

// Cells are pointers so a null (no route) is distinguishable from 0
type osrmTableResponse struct {
	Code      string       `json:"code"`
	Message   string       `json:"message"`
	Distances [][]*float64 `json:"distances"`
	Durations [][]*float64 `json:"durations"`
}

// NewOSRMProvider creates the backend that geocodes every address and prices
// all pairs with one OSRM table request
func NewOSRMProvider(geocoder geocoding.Geocoder, opts OSRMOptions) Provider {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://router.project-osrm.org"
	}
	if opts.Profile == "" {
		opts.Profile = "driving"
	}
	if opts.Mode == "" {
		opts.Mode = ModeDuration
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if opts.Gate == nil {
		opts.Gate = ratelimit.Shared(osrmProvider, opts.Interval)
	}
	return &osrmProviderImpl{
		geocoder:    geocoder,
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		profile:     opts.Profile,
		mode:        opts.Mode,
		concurrency: opts.Concurrency,
		policy:      opts.Policy.WithDefaults(),
		httpClient:  opts.HTTPClient,
		gate:        opts.Gate,
		cache:       opts.Cache,
	}
}

func (p *osrmProviderImpl) Name() string { return osrmProvider }

func (p *osrmProviderImpl) Build(ctx context.Context, addresses []string) (*Result, error) {
	start := time.Now()
	res, err := resolveAll(ctx, p.geocoder, addresses, p.concurrency)
	if err != nil {
		return nil, err
	}

	n := len(res.addresses)
	m := NewMatrix(n)
	result := &Result{Addresses: res.addresses, Matrix: m, Report: res.report}
	if n < 2 {
		return result, nil
	}

	if p.fillFromCache(ctx, res.coords, m) {
		log.Printf("[OSRM] Distance matrix all cached: points=%d", n)
		return result, nil
	}

	table, err := p.fetchTable(ctx, res.coords)
	if err != nil {
		return nil, err
	}

	var entries []models.DistanceCacheEntry
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			dist, dur := table.Distances[i][j], table.Durations[i][j]
			value := dist
			if p.mode == ModeDuration {
				value = dur
			}
			if value == nil {
				m[i][j] = PenaltyCost
				result.Report.AddCellError(res.addresses[i], res.addresses[j], "NO_ROUTE")
				continue
			}
			m[i][j] = *value
			if dist != nil && dur != nil {
				entries = append(entries, models.DistanceCacheEntry{
					Origin:         res.coords[i],
					Destination:    res.coords[j],
					DistanceMeters: *dist,
					DurationSecs:   *dur,
				})
			}
		}
	}

	if p.cache != nil && len(entries) > 0 {
		if err := p.cache.SetBatch(ctx, entries); err != nil {
			log.Printf("[WARN] Distance cache write failed: entries=%d err=%v", len(entries), err)
		}
	}

	log.Printf("[TIMING] OSRM matrix built: addresses=%d resolved=%d took=%v", len(addresses), n, time.Since(start))
	return result, nil
}

// fillFromCache fills m from the distance cache and reports whether every
// off-diagonal pair was found. Identical points cost 0.
func (p *osrmProviderImpl) fillFromCache(ctx context.Context, coords []models.Coordinates, m Matrix) bool {
	if p.cache == nil {
		return false
	}
	complete := true
	for i := range coords {
		for j := range coords {
			if i == j || coords[i].Rounded() == coords[j].Rounded() {
				continue
			}
			cached, err := p.cache.Get(ctx, coords[i], coords[j])
			if err != nil {
				log.Printf("[WARN] Distance cache read failed: err=%v", err)
				return false
			}
			if cached == nil {
				metrics.CacheLookups.WithLabelValues("distance", "miss").Inc()
				complete = false
				continue
			}
			metrics.CacheLookups.WithLabelValues("distance", "hit").Inc()
			if p.mode == ModeDuration {
				m[i][j] = cached.DurationSecs
			} else {
				m[i][j] = cached.DistanceMeters
			}
		}
	}
	return complete
}

func (p *osrmProviderImpl) fetchTable(ctx context.Context, points []models.Coordinates) (*osrmTableResponse, error) {
	n := len(points)
	coords := make([]string, n)
	for i, pt := range points {
		coords[i] = fmt.Sprintf("%.6f,%.6f", pt.Lng, pt.Lat)
	}
	queryURL := fmt.Sprintf("%s/table/v1/%s/%s?annotations=distance,duration", p.baseURL, p.profile, strings.Join(coords, ";"))
	log.Printf("[OSRM] Distance matrix request: points=%d", n)

	start := time.Now()
	resp, err := httpretry.Do(ctx, p.httpClient, p.policy, p.gate, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, queryURL, nil)
	})
	if err != nil {
		metrics.ObserveProvider(osrmProvider, "transport_error", start)
		log.Printf("[ERROR] OSRM API request failed: points=%d err=%v", n, err)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &ErrProviderTransport{Provider: osrmProvider, Reason: err.Error(), Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		metrics.ObserveProvider(osrmProvider, "http_error", start)
		log.Printf("[ERROR] OSRM API error: points=%d status=%d body=%s", n, resp.StatusCode, string(resp.Body))
		return nil, &ErrProviderTransport{
			Provider: osrmProvider,
			Reason:   fmt.Sprintf("HTTP %d: %s", resp.StatusCode, string(resp.Body)),
			Err:      &httpretry.ErrStatus{StatusCode: resp.StatusCode, Body: string(resp.Body)},
		}
	}

	var table osrmTableResponse
	if err := json.Unmarshal(resp.Body, &table); err != nil {
		metrics.ObserveProvider(osrmProvider, "decode_error", start)
		log.Printf("[ERROR] Failed to decode OSRM response: points=%d err=%v", n, err)
		return nil, &ErrProviderTransport{Provider: osrmProvider, Reason: err.Error(), Err: err}
	}

	if table.Code != "Ok" {
		metrics.ObserveProvider(osrmProvider, "api_error", start)
		log.Printf("[ERROR] OSRM returned error code: points=%d code=%s message=%s", n, table.Code, table.Message)
		return nil, &ErrProviderTransport{Provider: osrmProvider, Reason: fmt.Sprintf("OSRM error: %s", table.Code)}
	}

	if !tableShapeOK(table.Distances, n) || !tableShapeOK(table.Durations, n) {
		metrics.ObserveProvider(osrmProvider, "decode_error", start)
		return nil, &ErrProviderTransport{Provider: osrmProvider, Reason: "table shape does not match request"}
	}

	metrics.ObserveProvider(osrmProvider, "ok", start)
	log.Printf("[OSRM] Distance matrix response: points=%d code=%s", n, table.Code)
	return &table, nil
}

func tableShapeOK(t [][]*float64, n int) bool {
	if len(t) != n {
		return false
	}
	for _, row := range t {
		if len(row) != n {
			return false
		}
	}
	return true
}
