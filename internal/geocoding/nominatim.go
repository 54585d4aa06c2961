package geocoding

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"address-route-optimizer/internal/httpretry"
	"address-route-optimizer/internal/metrics"
	"address-route-optimizer/internal/models"
	"address-route-optimizer/internal/ratelimit"
)

const (
	// NominatimMinInterval is the usage-policy floor between two requests
	NominatimMinInterval = 500 * time.Millisecond
	// NominatimDefaultInterval matches the public instance's 1 req/s policy
	NominatimDefaultInterval = time.Second

	nominatimProvider = "nominatim"
)

// NominatimOptions configures the open geocoder
type NominatimOptions struct {
	BaseURL    string
	UserAgent  string
	Interval   time.Duration
	Policy     httpretry.Policy
	HTTPClient *http.Client
	// Gate overrides the process-wide gate; tests use it for isolation
	Gate *ratelimit.Gate
}

type nominatimGeocoder struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	policy     httpretry.Policy
	gate       *ratelimit.Gate
}

type nominatimResponse struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// NewNominatimGeocoder creates a Nominatim geocoder sharing the process-wide rate gate
func NewNominatimGeocoder(opts NominatimOptions) Geocoder {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://nominatim.openstreetmap.org"
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "AddressRouteOptimizer/1.0"
	}
	if opts.Interval <= 0 {
		opts.Interval = NominatimDefaultInterval
	}
	if opts.Interval < NominatimMinInterval {
		opts.Interval = NominatimMinInterval
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if opts.Gate == nil {
		opts.Gate = ratelimit.Shared(nominatimProvider, opts.Interval)
	}

	return &nominatimGeocoder{
		baseURL:    opts.BaseURL,
		userAgent:  opts.UserAgent,
		httpClient: opts.HTTPClient,
		policy:     opts.Policy,
		gate:       opts.Gate,
	}
}

func (g *nominatimGeocoder) Name() string { return nominatimProvider }

func (g *nominatimGeocoder) Geocode(ctx context.Context, address string) (*Result, error) {
	queryURL := fmt.Sprintf("%s/search?q=%s&format=json&limit=1", g.baseURL, url.QueryEscape(address))
	log.Printf("[GEOCODING] Request: provider=nominatim address=%s url=%s", address, queryURL)

	start := time.Now()
	resp, err := httpretry.Do(ctx, g.httpClient, g.policy, g.gate, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, queryURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", g.userAgent)
		return req, nil
	})
	if err != nil {
		metrics.ObserveProvider(nominatimProvider, "transport_error", start)
		log.Printf("[ERROR] Geocoding API request failed: provider=nominatim address=%s err=%v", address, err)
		return nil, &ErrGeocodingFailed{Address: address, Provider: nominatimProvider, Reason: err.Error(), Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		metrics.ObserveProvider(nominatimProvider, "http_error", start)
		log.Printf("[ERROR] Geocoding API error: provider=nominatim address=%s status=%d body=%s", address, resp.StatusCode, string(resp.Body))
		return nil, &ErrGeocodingFailed{
			Address:  address,
			Provider: nominatimProvider,
			Reason:   fmt.Sprintf("HTTP %d: %s", resp.StatusCode, string(resp.Body)),
		}
	}

	var results []nominatimResponse
	if err := json.Unmarshal(resp.Body, &results); err != nil {
		metrics.ObserveProvider(nominatimProvider, "decode_error", start)
		log.Printf("[ERROR] Failed to decode geocoding response: provider=nominatim address=%s err=%v", address, err)
		return nil, &ErrGeocodingFailed{Address: address, Provider: nominatimProvider, Reason: err.Error(), Err: err}
	}

	if len(results) == 0 {
		metrics.ObserveProvider(nominatimProvider, "not_found", start)
		log.Printf("[GEOCODING] No results found: provider=nominatim address=%s", address)
		return nil, &ErrGeocodingFailed{Address: address, Provider: nominatimProvider, Reason: "no results found", NotFound: true}
	}

	result := results[0]
	lat, err := strconv.ParseFloat(result.Lat, 64)
	if err != nil {
		metrics.ObserveProvider(nominatimProvider, "decode_error", start)
		log.Printf("[ERROR] Invalid latitude in geocoding response: address=%s lat=%s err=%v", address, result.Lat, err)
		return nil, &ErrGeocodingFailed{Address: address, Provider: nominatimProvider, Reason: "invalid latitude"}
	}
	lng, err := strconv.ParseFloat(result.Lon, 64)
	if err != nil {
		metrics.ObserveProvider(nominatimProvider, "decode_error", start)
		log.Printf("[ERROR] Invalid longitude in geocoding response: address=%s lng=%s err=%v", address, result.Lon, err)
		return nil, &ErrGeocodingFailed{Address: address, Provider: nominatimProvider, Reason: "invalid longitude"}
	}

	metrics.ObserveProvider(nominatimProvider, "ok", start)
	log.Printf("[GEOCODING] Response: provider=nominatim address=%s lat=%.6f lng=%.6f display_name=%s", address, lat, lng, result.DisplayName)
	return &Result{
		Coords:      models.Coordinates{Lat: lat, Lng: lng},
		DisplayName: result.DisplayName,
		Provider:    nominatimProvider,
	}, nil
}
