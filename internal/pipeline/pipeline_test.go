package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"address-route-optimizer/internal/distance"
	"address-route-optimizer/internal/geocoding"
	"address-route-optimizer/internal/httpretry"
	"address-route-optimizer/internal/models"
	"address-route-optimizer/internal/testutil"
	"address-route-optimizer/internal/tsp"
)

var testPolicy = httpretry.Policy{
	MaxAttempts:    2,
	AttemptTimeout: time.Second,
	BaseBackoff:    time.Millisecond,
	MaxBackoff:     time.Millisecond,
}

func rows(n int) []models.AddressRow {
	out := make([]models.AddressRow, n)
	for i := range out {
		out[i] = models.AddressRow{Street: fmt.Sprintf("Rue %d", i+1), PostalCode: "1000.0", City: "Lausanne"}
	}
	return out
}

// streetNumber extracts N from "Rue N, ..." or returns 0 for other addresses
func streetNumber(address string) int {
	var n int
	fmt.Sscanf(address, "Rue %d", &n)
	return n
}

type googleStub struct {
	geocodeCalls int32
	matrixCalls  int32
}

func (s *googleStub) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/maps/api/geocode/json", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&s.geocodeCalls, 1)
		n := streetNumber(r.URL.Query().Get("address"))
		fmt.Fprintf(w, `{"status":"OK","results":[{"formatted_address":"x","geometry":{"location":{"lat":%d,"lng":0}}}]}`, n)
	})
	mux.HandleFunc("/maps/api/distancematrix/json", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&s.matrixCalls, 1)
		origins := strings.Split(r.URL.Query().Get("origins"), "|")
		destinations := strings.Split(r.URL.Query().Get("destinations"), "|")
		type element struct {
			Status   string         `json:"status"`
			Duration map[string]int `json:"duration"`
			Distance map[string]int `json:"distance"`
		}
		type row struct {
			Elements []element `json:"elements"`
		}
		out := make([]row, len(origins))
		for a, o := range origins {
			for _, d := range destinations {
				diff := streetNumber(o) - streetNumber(d)
				if diff < 0 {
					diff = -diff
				}
				out[a].Elements = append(out[a].Elements, element{
					Status:   "OK",
					Duration: map[string]int{"value": 60 * diff},
					Distance: map[string]int{"value": 1000 * diff},
				})
			}
		}
		json.NewEncoder(w).Encode(map[string]any{"status": "OK", "rows": out})
	})
	return mux
}

func newStubbedPipeline(t *testing.T, stub *googleStub, cfg Config) *Pipeline {
	t.Helper()
	server := httptest.NewServer(stub.handler(t))
	t.Cleanup(server.Close)

	cfg.APIKey = "test-key"
	cfg.GoogleURL = server.URL
	cfg.Policy = testPolicy
	cfg.Solver = tsp.Options{TimeBudget: time.Second, Seed: 1}
	p, err := New(cfg, Deps{})
	require.NoError(t, err)
	return p
}

func TestRunSmallInputUsesMatrixAPI(t *testing.T) {
	stub := &googleStub{}
	p := newStubbedPipeline(t, stub, Config{Start: "Rue 5, 1000 Lausanne", Mode: distance.ModeDuration})

	result, err := p.Run(context.Background(), rows(3))

	require.NoError(t, err)
	assert.Equal(t, "matrix", result.Backend)
	assert.Equal(t, int32(1), atomic.LoadInt32(&stub.matrixCalls))
	assert.Equal(t, int32(0), atomic.LoadInt32(&stub.geocodeCalls))
	require.Len(t, result.Stops, 4)
	assert.Equal(t, "Rue 5, 1000 Lausanne", result.Stops[0])
	assert.Equal(t, 0, result.Order[0])
	assert.True(t, strings.HasPrefix(result.URL, "https://www.google.com/maps/dir/Rue 5, 1000 Lausanne/"))
	assert.True(t, testutil.IsPermutation(result.Order, 4))
	// Stops on a line: the closed tour costs twice the span 1..5
	assert.InDelta(t, 2*4*60.0, result.Cost, 1e-9)
	assert.True(t, result.Report.Empty())
	assert.NotEmpty(t, result.RunID)
}

func TestRunBoundaryTenUsesMatrixElevenUsesCoordinate(t *testing.T) {
	stub := &googleStub{}
	p := newStubbedPipeline(t, stub, Config{})

	assert.Equal(t, "matrix", p.Backend(10))
	assert.Equal(t, "coordinate", p.Backend(11))

	result, err := p.Run(context.Background(), rows(10))
	require.NoError(t, err)
	assert.Equal(t, "matrix", result.Backend)

	result, err = p.Run(context.Background(), rows(11))
	require.NoError(t, err)
	assert.Equal(t, "coordinate", result.Backend)
}

func TestRunFifteenAddressesNeverCallsMatrixAPI(t *testing.T) {
	stub := &googleStub{}
	p := newStubbedPipeline(t, stub, Config{})

	result, err := p.Run(context.Background(), rows(15))

	require.NoError(t, err)
	assert.Equal(t, "coordinate", result.Backend)
	assert.Equal(t, int32(0), atomic.LoadInt32(&stub.matrixCalls))
	assert.Equal(t, int32(15), atomic.LoadInt32(&stub.geocodeCalls))
	assert.True(t, testutil.IsPermutation(result.Order, 15))
}

func fakePipeline(t *testing.T, cfg Config, provider distance.Provider) *Pipeline {
	t.Helper()
	cfg.Solver = tsp.Options{TimeBudget: time.Second, Seed: 1}
	p, err := New(cfg, Deps{Strategy: distance.FixedStrategy{Provider: provider}})
	require.NoError(t, err)
	return p
}

func TestRunOneUnresolvedAddress(t *testing.T) {
	geocoder := testutil.NewMockGeocoder(map[string]models.Coordinates{
		"Rue A, 1000 Lausanne": {Lat: 46.5, Lng: 6.6},
	})
	p := fakePipeline(t, Config{}, distance.NewEuclideanProvider(geocoder, distance.EuclideanOptions{}))

	result, err := p.Run(context.Background(), []models.AddressRow{
		{Street: "Rue A", PostalCode: "1000", City: "Lausanne"},
		{Street: "Rue B", PostalCode: "2000", City: "Neuchâtel"},
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"Rue A, 1000 Lausanne"}, result.Stops)
	assert.Equal(t, []string{"Rue B, 2000 Neuchâtel"}, result.Report.Addresses())
	assert.Equal(t, []string{"Rue B, 2000 Neuchâtel: no results found"}, result.Report.Errors())
}

func TestRunStartUnresolvedWarns(t *testing.T) {
	geocoder := testutil.NewMockGeocoder(map[string]models.Coordinates{
		"Rue A, 1000 Lausanne": {Lat: 46.5, Lng: 6.6},
	})
	p := fakePipeline(t, Config{Start: "Nowhere"}, distance.NewEuclideanProvider(geocoder, distance.EuclideanOptions{}))

	result, err := p.Run(context.Background(), []models.AddressRow{{Street: "Rue A", PostalCode: "1000", City: "Lausanne"}})

	require.NoError(t, err)
	require.Len(t, result.Report.Warnings, 1)
	assert.Contains(t, result.Report.Warnings[0], "Nowhere")
}

type stubProvider struct {
	result *distance.Result
	err    error
}

func (p *stubProvider) Name() string { return "stub" }

func (p *stubProvider) Build(ctx context.Context, addresses []string) (*distance.Result, error) {
	if p.err != nil {
		return nil, p.err
	}
	r := *p.result
	r.Addresses = addresses
	return &r, nil
}

func TestRunFatalBuildErrorPropagates(t *testing.T) {
	cause := &distance.ErrProviderTransport{Provider: "osrm", Reason: "HTTP 500"}
	p := fakePipeline(t, Config{}, &stubProvider{err: cause})

	result, err := p.Run(context.Background(), rows(2))

	assert.Nil(t, result)
	var transportErr *distance.ErrProviderTransport
	assert.True(t, errors.As(err, &transportErr))
}

func TestRunDegradedTourWarns(t *testing.T) {
	m := distance.Matrix{
		{0, 1, 1},
		{distance.PenaltyCost, 0, 1},
		{distance.PenaltyCost, 1, 0},
	}
	p := fakePipeline(t, Config{}, &stubProvider{result: &distance.Result{Matrix: m}})

	result, err := p.Run(context.Background(), rows(3))

	require.NoError(t, err)
	assert.True(t, result.Degraded)
	require.Len(t, result.Report.Warnings, 1)
	assert.Contains(t, result.Report.Warnings[0], "no known route")
	assert.Empty(t, result.Report.Errors())
}

func TestRunNoAddresses(t *testing.T) {
	p := fakePipeline(t, Config{}, &stubProvider{})

	_, err := p.Run(context.Background(), []models.AddressRow{{Street: " ", City: "Lausanne"}})

	assert.ErrorIs(t, err, ErrNoAddresses)
}

func TestNewMatrixBackendRequiresKey(t *testing.T) {
	_, err := New(Config{Backend: BackendMatrix}, Deps{})
	assert.ErrorIs(t, err, geocoding.ErrMissingAPIKey)
}

func TestNewAutoWithoutKeyUsesCoordinate(t *testing.T) {
	p, err := New(Config{}, Deps{})
	require.NoError(t, err)

	assert.Equal(t, "coordinate", p.Backend(3))
	assert.Equal(t, "coordinate", p.Backend(30))
}

func TestNewForcedBackends(t *testing.T) {
	p, err := New(Config{Backend: BackendOSRM}, Deps{})
	require.NoError(t, err)
	assert.Equal(t, "osrm", p.Backend(3))

	p, err = New(Config{Backend: BackendCoordinate, APIKey: "k"}, Deps{})
	require.NoError(t, err)
	assert.Equal(t, "coordinate", p.Backend(3))
}

func TestParseBackend(t *testing.T) {
	b, err := ParseBackend("")
	require.NoError(t, err)
	assert.Equal(t, BackendAuto, b)

	b, err = ParseBackend("osrm")
	require.NoError(t, err)
	assert.Equal(t, BackendOSRM, b)

	_, err = ParseBackend("carrier-pigeon")
	assert.Error(t, err)
}
