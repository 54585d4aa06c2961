package geocoding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"time"

	"address-route-optimizer/internal/httpretry"
	"address-route-optimizer/internal/metrics"
	"address-route-optimizer/internal/models"
	"address-route-optimizer/internal/ratelimit"
)

const googleProvider = "google"

// ErrMissingAPIKey is returned when a keyed provider is built without a credential
var ErrMissingAPIKey = errors.New("missing api key")

// GoogleOptions configures the precise geocoder
type GoogleOptions struct {
	BaseURL    string
	Interval   time.Duration
	Policy     httpretry.Policy
	HTTPClient *http.Client
	Gate       *ratelimit.Gate
}

type googleGeocoder struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	policy     httpretry.Policy
	gate       *ratelimit.Gate
}

type googleGeocodeResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Results      []struct {
		FormattedAddress string `json:"formatted_address"`
		Geometry         struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
		} `json:"geometry"`
	} `json:"results"`
}

// NewGoogleGeocoder creates a geocoder backed by the Google Geocoding API
func NewGoogleGeocoder(apiKey string, opts GoogleOptions) (Geocoder, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	if opts.BaseURL == "" {
		opts.BaseURL = "https://maps.googleapis.com"
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if opts.Gate == nil {
		opts.Gate = ratelimit.Shared("google-geocoding", opts.Interval)
	}

	return &googleGeocoder{
		apiKey:     apiKey,
		baseURL:    opts.BaseURL,
		httpClient: opts.HTTPClient,
		policy:     opts.Policy.WithDefaults(),
		gate:       opts.Gate,
	}, nil
}

func (g *googleGeocoder) Name() string { return googleProvider }

// retryableGoogleStatus lists body statuses that behave like a 5xx
func retryableGoogleStatus(status string) bool {
	return status == "OVER_QUERY_LIMIT" || status == "UNKNOWN_ERROR"
}

func (g *googleGeocoder) Geocode(ctx context.Context, address string) (*Result, error) {
	q := url.Values{}
	q.Set("address", address)
	q.Set("key", g.apiKey)
	queryURL := g.baseURL + "/maps/api/geocode/json?" + q.Encode()
	log.Printf("[GEOCODING] Request: provider=google address=%s", address)

	start := time.Now()
	var parsed googleGeocodeResponse
	attempts := 0
	for {
		attempts++
		resp, err := httpretry.Do(ctx, g.httpClient, g.policy, g.gate, func(ctx context.Context) (*http.Request, error) {
			return http.NewRequestWithContext(ctx, http.MethodGet, queryURL, nil)
		})
		if err != nil {
			metrics.ObserveProvider(googleProvider, "transport_error", start)
			log.Printf("[ERROR] Geocoding API request failed: provider=google address=%s err=%v", address, err)
			return nil, &ErrGeocodingFailed{Address: address, Provider: googleProvider, Reason: err.Error(), Err: err}
		}

		if resp.StatusCode != http.StatusOK {
			metrics.ObserveProvider(googleProvider, "http_error", start)
			log.Printf("[ERROR] Geocoding API error: provider=google address=%s status=%d", address, resp.StatusCode)
			return nil, &ErrGeocodingFailed{
				Address:  address,
				Provider: googleProvider,
				Reason:   fmt.Sprintf("HTTP %d: %s", resp.StatusCode, string(resp.Body)),
			}
		}

		parsed = googleGeocodeResponse{}
		if err := json.Unmarshal(resp.Body, &parsed); err != nil {
			metrics.ObserveProvider(googleProvider, "decode_error", start)
			return nil, &ErrGeocodingFailed{Address: address, Provider: googleProvider, Reason: err.Error(), Err: err}
		}

		if retryableGoogleStatus(parsed.Status) && attempts < g.policy.MaxAttempts {
			log.Printf("[GEOCODING] Retryable status: provider=google address=%s status=%s attempt=%d", address, parsed.Status, attempts)
			if err := httpretry.Sleep(ctx, g.policy.Backoff(attempts-1)); err != nil {
				return nil, err
			}
			continue
		}
		break
	}

	switch parsed.Status {
	case "OK":
	case "ZERO_RESULTS":
		metrics.ObserveProvider(googleProvider, "not_found", start)
		log.Printf("[GEOCODING] No results found: provider=google address=%s", address)
		return nil, &ErrGeocodingFailed{Address: address, Provider: googleProvider, Reason: "no results found", NotFound: true}
	default:
		metrics.ObserveProvider(googleProvider, "api_error", start)
		log.Printf("[ERROR] Geocoding API status: provider=google address=%s status=%s message=%s", address, parsed.Status, parsed.ErrorMessage)
		return nil, &ErrGeocodingFailed{Address: address, Provider: googleProvider, Reason: fmt.Sprintf("status %s", parsed.Status)}
	}

	if len(parsed.Results) == 0 {
		metrics.ObserveProvider(googleProvider, "not_found", start)
		return nil, &ErrGeocodingFailed{Address: address, Provider: googleProvider, Reason: "no results found", NotFound: true}
	}

	first := parsed.Results[0]
	lat, lng := first.Geometry.Location.Lat, first.Geometry.Location.Lng
	metrics.ObserveProvider(googleProvider, "ok", start)
	log.Printf("[GEOCODING] Response: provider=google address=%s lat=%.6f lng=%.6f display_name=%s", address, lat, lng, first.FormattedAddress)
	return &Result{
		Coords:      models.Coordinates{Lat: lat, Lng: lng},
		DisplayName: first.FormattedAddress,
		Provider:    googleProvider,
	}, nil
}
