package distance

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"address-route-optimizer/internal/geocoding"
	"address-route-optimizer/internal/httpretry"
	"address-route-optimizer/internal/metrics"
	"address-route-optimizer/internal/ratelimit"
)

const matrixProvider = "google-distance-matrix"

// MaxMatrixChunk is the most origins or destinations the matrix API takes per call
const MaxMatrixChunk = 10

// MatrixAPIOptions configures the batched matrix-API backend
type MatrixAPIOptions struct {
	BaseURL     string
	ChunkSize   int
	Concurrency int
	Interval    time.Duration
	Policy      httpretry.Policy
	HTTPClient  *http.Client
	Gate        *ratelimit.Gate
}

type matrixAPIProvider struct {
	apiKey      string
	mode        Mode
	baseURL     string
	chunkSize   int
	concurrency int
	policy      httpretry.Policy
	httpClient  *http.Client
	gate        *ratelimit.Gate
}

type matrixValue struct {
	Value float64 `json:"value"`
	Text  string  `json:"text"`
}

type matrixResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Rows         []struct {
		Elements []struct {
			Status   string      `json:"status"`
			Distance matrixValue `json:"distance"`
			Duration matrixValue `json:"duration"`
		} `json:"elements"`
	} `json:"rows"`
}

// NewMatrixAPIProvider creates the backend that prices every pair through the
// Google Distance Matrix API, one call per origin-chunk × destination-chunk.
func NewMatrixAPIProvider(apiKey string, mode Mode, opts MatrixAPIOptions) (Provider, error) {
	if apiKey == "" {
		return nil, geocoding.ErrMissingAPIKey
	}
	if opts.BaseURL == "" {
		opts.BaseURL = "https://maps.googleapis.com"
	}
	if opts.ChunkSize <= 0 || opts.ChunkSize > MaxMatrixChunk {
		opts.ChunkSize = MaxMatrixChunk
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if opts.Gate == nil {
		opts.Gate = ratelimit.Shared(matrixProvider, opts.Interval)
	}
	return &matrixAPIProvider{
		apiKey:      apiKey,
		mode:        mode,
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		chunkSize:   opts.ChunkSize,
		concurrency: opts.Concurrency,
		policy:      opts.Policy.WithDefaults(),
		httpClient:  opts.HTTPClient,
		gate:        opts.Gate,
	}, nil
}

func (p *matrixAPIProvider) Name() string { return "matrix" }

// chunks splits [0,n) into consecutive ranges of at most size
func chunks(n, size int) [][2]int {
	var out [][2]int
	for i := 0; i < n; i += size {
		end := i + size
		if end > n {
			end = n
		}
		out = append(out, [2]int{i, end})
	}
	return out
}

func (p *matrixAPIProvider) Build(ctx context.Context, addresses []string) (*Result, error) {
	start := time.Now()
	n := len(addresses)
	m := NewMatrix(n)
	result := &Result{Addresses: addresses, Matrix: m}
	if n == 0 {
		return result, nil
	}

	// Cells land by the first index of each address string, never by
	// chunk-relative position.
	index := make(map[string]int, n)
	for i, a := range addresses {
		if _, ok := index[a]; !ok {
			index[a] = i
		}
	}

	parts := chunks(n, p.chunkSize)
	log.Printf("[MATRIX] Build: addresses=%d chunks=%d calls=%d mode=%s", n, len(parts), len(parts)*len(parts), p.mode)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for _, oc := range parts {
		for _, dc := range parts {
			origins := addresses[oc[0]:oc[1]]
			destinations := addresses[dc[0]:dc[1]]
			g.Go(func() error {
				resp, err := p.fetchChunk(gctx, origins, destinations)
				if err != nil {
					return err
				}

				mu.Lock()
				defer mu.Unlock()
				for a := range origins {
					for b := range destinations {
						i, j := index[origins[a]], index[destinations[b]]
						if i == j {
							continue
						}
						if a >= len(resp.Rows) || b >= len(resp.Rows[a].Elements) {
							log.Printf("[MATRIX] Cell missing from response: origin=%s destination=%s", origins[a], destinations[b])
							m[i][j] = PenaltyCost
							result.Report.AddCellError(origins[a], destinations[b], "MISSING")
							continue
						}
						el := resp.Rows[a].Elements[b]
						if el.Status != "OK" {
							log.Printf("[MATRIX] Cell not OK: origin=%s destination=%s status=%s", origins[a], destinations[b], el.Status)
							m[i][j] = PenaltyCost
							result.Report.AddCellError(origins[a], destinations[b], el.Status)
							continue
						}
						if p.mode == ModeDuration {
							m[i][j] = el.Duration.Value
						} else {
							m[i][j] = el.Distance.Value
						}
					}
				}
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Later duplicates share the row and column of their first occurrence
	for i, a := range addresses {
		first := index[a]
		if first == i {
			continue
		}
		for k := 0; k < n; k++ {
			m[i][k] = m[first][k]
			m[k][i] = m[k][first]
		}
		m[i][i] = 0
		m[i][first] = 0
		m[first][i] = 0
	}

	log.Printf("[TIMING] Matrix API build: addresses=%d cell_errors=%d took=%v", n, len(result.Report.CellErrors), time.Since(start))
	return result, nil
}

// retryableMatrixStatus lists top-level statuses that behave like a 5xx
func retryableMatrixStatus(status string) bool {
	return status == "OVER_QUERY_LIMIT" || status == "UNKNOWN_ERROR"
}

func (p *matrixAPIProvider) fetchChunk(ctx context.Context, origins, destinations []string) (*matrixResponse, error) {
	q := url.Values{}
	q.Set("origins", strings.Join(origins, "|"))
	q.Set("destinations", strings.Join(destinations, "|"))
	q.Set("mode", "driving")
	q.Set("key", p.apiKey)
	queryURL := p.baseURL + "/maps/api/distancematrix/json?" + q.Encode()

	start := time.Now()
	for attempt := 1; ; attempt++ {
		resp, err := httpretry.Do(ctx, p.httpClient, p.policy, p.gate, func(ctx context.Context) (*http.Request, error) {
			return http.NewRequestWithContext(ctx, http.MethodGet, queryURL, nil)
		})
		if err != nil {
			metrics.ObserveProvider(matrixProvider, "transport_error", start)
			log.Printf("[ERROR] Matrix API request failed: origins=%d destinations=%d err=%v", len(origins), len(destinations), err)
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, &ErrProviderTransport{Provider: matrixProvider, Reason: err.Error(), Err: err}
		}
		if resp.StatusCode != http.StatusOK {
			metrics.ObserveProvider(matrixProvider, "http_error", start)
			log.Printf("[ERROR] Matrix API error: status=%d body=%s", resp.StatusCode, string(resp.Body))
			return nil, &ErrProviderTransport{
				Provider: matrixProvider,
				Reason:   fmt.Sprintf("HTTP %d: %s", resp.StatusCode, string(resp.Body)),
				Err:      &httpretry.ErrStatus{StatusCode: resp.StatusCode, Body: string(resp.Body)},
			}
		}

		var parsed matrixResponse
		if err := json.Unmarshal(resp.Body, &parsed); err != nil {
			metrics.ObserveProvider(matrixProvider, "decode_error", start)
			return nil, &ErrProviderTransport{Provider: matrixProvider, Reason: err.Error(), Err: err}
		}

		if parsed.Status == "OK" {
			metrics.ObserveProvider(matrixProvider, "ok", start)
			log.Printf("[MATRIX] Chunk response: origins=%d destinations=%d", len(origins), len(destinations))
			return &parsed, nil
		}
		if retryableMatrixStatus(parsed.Status) && attempt < p.policy.MaxAttempts {
			log.Printf("[MATRIX] Retryable status: status=%s attempt=%d", parsed.Status, attempt)
			if err := httpretry.Sleep(ctx, p.policy.Backoff(attempt-1)); err != nil {
				return nil, err
			}
			continue
		}

		metrics.ObserveProvider(matrixProvider, "api_error", start)
		log.Printf("[ERROR] Matrix API status: status=%s message=%s", parsed.Status, parsed.ErrorMessage)
		return nil, &ErrProviderTransport{Provider: matrixProvider, Reason: fmt.Sprintf("status %s", parsed.Status)}
	}
}
