package distance

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

	"address-route-optimizer/internal/httpretry"
	"address-route-optimizer/internal/ratelimit"
	"address-route-optimizer/internal/testutil"
)

var testPolicy = httpretry.Policy{
	MaxAttempts:    3,
	AttemptTimeout: time.Second,
	BaseBackoff:    time.Millisecond,
	MaxBackoff:     2 * time.Millisecond,
}

// addrNumber extracts i from "Addr i"
func addrNumber(t *testing.T, s string) int {
	var n int
	_, err := fmt.Sscanf(s, "Addr %d", &n)
	assert.NoError(t, err)
	return n
}

type matrixElement struct {
	Status   string         `json:"status"`
	Distance map[string]any `json:"distance,omitempty"`
	Duration map[string]any `json:"duration,omitempty"`
}

// matrixServer prices Addr i -> Addr j at distance 100*i+j and duration 1000*i+j.
// cellStatus, when set, overrides the status of a cell.
func matrixServer(t *testing.T, calls *int32, cellStatus func(o, d int) string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		assert.Equal(t, "/maps/api/distancematrix/json", r.URL.Path)
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))

		origins := strings.Split(r.URL.Query().Get("origins"), "|")
		destinations := strings.Split(r.URL.Query().Get("destinations"), "|")
		assert.LessOrEqual(t, len(origins), MaxMatrixChunk)
		assert.LessOrEqual(t, len(destinations), MaxMatrixChunk)

		type row struct {
			Elements []matrixElement `json:"elements"`
		}
		rows := make([]row, len(origins))
		for a, o := range origins {
			for _, d := range destinations {
				oi, di := addrNumber(t, o), addrNumber(t, d)
				status := "OK"
				if cellStatus != nil {
					if s := cellStatus(oi, di); s != "" {
						status = s
					}
				}
				el := matrixElement{Status: status}
				if status == "OK" {
					el.Distance = map[string]any{"value": 100*oi + di, "text": "x"}
					el.Duration = map[string]any{"value": 1000*oi + di, "text": "y"}
				}
				rows[a].Elements = append(rows[a].Elements, el)
			}
		}
		json.NewEncoder(w).Encode(map[string]any{"status": "OK", "rows": rows})
	}))
}

func newTestMatrixProvider(t *testing.T, serverURL string, mode Mode) Provider {
	t.Helper()
	p, err := NewMatrixAPIProvider("test-key", mode, MatrixAPIOptions{
		BaseURL: serverURL,
		Policy:  testPolicy,
		Gate:    ratelimit.NewGate("matrix-test", 0),
	})
	require.NoError(t, err)
	return p
}

func TestMatrixAPIChunkedCallsLandByIndex(t *testing.T) {
	var calls int32
	server := matrixServer(t, &calls, nil)
	defer server.Close()

	addresses := testutil.Addresses(12)
	result, err := newTestMatrixProvider(t, server.URL, ModeDistance).Build(context.Background(), addresses)

	require.NoError(t, err)
	assert.Equal(t, int32(4), atomic.LoadInt32(&calls))
	require.Len(t, result.Matrix, 12)
	for i := 0; i < 12; i++ {
		assert.Equal(t, 0.0, result.Matrix[i][i])
		for j := 0; j < 12; j++ {
			if i != j {
				assert.Equal(t, float64(100*i+j), result.Matrix[i][j], "cell %d,%d", i, j)
			}
		}
	}
	assert.True(t, result.Report.Empty())
}

func TestMatrixAPIDurationMode(t *testing.T) {
	var calls int32
	server := matrixServer(t, &calls, nil)
	defer server.Close()

	result, err := newTestMatrixProvider(t, server.URL, ModeDuration).Build(context.Background(), testutil.Addresses(3))

	require.NoError(t, err)
	assert.Equal(t, 1002.0, result.Matrix[1][2])
	assert.Equal(t, 2001.0, result.Matrix[2][1])
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestMatrixAPINotFoundCellPenalized(t *testing.T) {
	var calls int32
	server := matrixServer(t, &calls, func(o, d int) string {
		if o == 1 && d == 2 {
			return "NOT_FOUND"
		}
		return ""
	})
	defer server.Close()

	addresses := testutil.Addresses(3)
	result, err := newTestMatrixProvider(t, server.URL, ModeDistance).Build(context.Background(), addresses)

	require.NoError(t, err)
	assert.Equal(t, PenaltyCost, result.Matrix[1][2])
	assert.Equal(t, 201.0, result.Matrix[2][1])
	assert.Equal(t, []CellError{{Origin: "Addr 1", Destination: "Addr 2", Status: "NOT_FOUND"}}, result.Report.CellErrors)
	assert.Equal(t, []string{"Addr 1 -> Addr 2: NOT_FOUND"}, result.Report.Errors())
}

func TestMatrixAPIDuplicateSharesFirstRow(t *testing.T) {
	var calls int32
	server := matrixServer(t, &calls, nil)
	defer server.Close()

	addresses := []string{"Addr 0", "Addr 1", "Addr 0"}
	result, err := newTestMatrixProvider(t, server.URL, ModeDistance).Build(context.Background(), addresses)

	require.NoError(t, err)
	m := result.Matrix
	assert.Equal(t, 0.0, m[0][2])
	assert.Equal(t, 0.0, m[2][0])
	assert.Equal(t, m[0][1], m[2][1])
	assert.Equal(t, m[1][0], m[1][2])
	for i := range m {
		assert.Equal(t, 0.0, m[i][i])
	}
}

func TestMatrixAPIConcurrentChunks(t *testing.T) {
	var calls int32
	server := matrixServer(t, &calls, nil)
	defer server.Close()

	p, err := NewMatrixAPIProvider("test-key", ModeDistance, MatrixAPIOptions{
		BaseURL:     server.URL,
		ChunkSize:   3,
		Concurrency: 4,
		Policy:      testPolicy,
		Gate:        ratelimit.NewGate("matrix-test", 0),
	})
	require.NoError(t, err)

	result, err := p.Build(context.Background(), testutil.Addresses(7))

	require.NoError(t, err)
	assert.Equal(t, int32(9), atomic.LoadInt32(&calls))
	assert.Equal(t, 605.0, result.Matrix[6][5])
}

func TestMatrixAPIRequestDeniedIsFatal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"REQUEST_DENIED","error_message":"bad key"}`)
	}))
	defer server.Close()

	result, err := newTestMatrixProvider(t, server.URL, ModeDistance).Build(context.Background(), testutil.Addresses(2))

	assert.Nil(t, result)
	var transportErr *ErrProviderTransport
	require.True(t, errors.As(err, &transportErr))
	assert.Contains(t, transportErr.Reason, "REQUEST_DENIED")
}

func TestMatrixAPIServerErrorExhausts(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	result, err := newTestMatrixProvider(t, server.URL, ModeDistance).Build(context.Background(), testutil.Addresses(2))

	assert.Nil(t, result)
	var transportErr *ErrProviderTransport
	require.True(t, errors.As(err, &transportErr))
	var exhausted *httpretry.ErrExhausted
	assert.True(t, errors.As(err, &exhausted))
	assert.Equal(t, int32(testPolicy.MaxAttempts), atomic.LoadInt32(&calls))
}

func TestMatrixAPIOverQueryLimitRetried(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			fmt.Fprint(w, `{"status":"OVER_QUERY_LIMIT"}`)
			return
		}
		fmt.Fprint(w, `{"status":"OK","rows":[{"elements":[{"status":"OK","distance":{"value":0},"duration":{"value":0}},{"status":"OK","distance":{"value":1},"duration":{"value":2}}]},{"elements":[{"status":"OK","distance":{"value":100},"duration":{"value":200}},{"status":"OK","distance":{"value":0},"duration":{"value":0}}]}]}`)
	}))
	defer server.Close()

	result, err := newTestMatrixProvider(t, server.URL, ModeDistance).Build(context.Background(), testutil.Addresses(2))

	require.NoError(t, err)
	assert.Equal(t, 1.0, result.Matrix[0][1])
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestMatrixAPIShortResponsePenalized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"OK","rows":[{"elements":[{"status":"OK","distance":{"value":0},"duration":{"value":0}},{"status":"OK","distance":{"value":7},"duration":{"value":8}}]}]}`)
	}))
	defer server.Close()

	addresses := testutil.Addresses(3)
	result, err := newTestMatrixProvider(t, server.URL, ModeDistance).Build(context.Background(), addresses)

	require.NoError(t, err)
	assert.Equal(t, 7.0, result.Matrix[0][1])
	assert.Equal(t, PenaltyCost, result.Matrix[0][2])
	for i := 1; i < 3; i++ {
		for j := 0; j < 3; j++ {
			if i != j {
				assert.Equal(t, PenaltyCost, result.Matrix[i][j], "cell %d,%d", i, j)
			}
		}
	}
	assert.Equal(t, 0.0, result.Matrix[1][1])
	require.Len(t, result.Report.CellErrors, 5)
	for _, ce := range result.Report.CellErrors {
		assert.Equal(t, "MISSING", ce.Status)
	}
	assert.Contains(t, result.Report.Errors(), "Addr 0 -> Addr 2: MISSING")
}

func TestNewMatrixAPIProviderRequiresKey(t *testing.T) {
	_, err := NewMatrixAPIProvider("", ModeDistance, MatrixAPIOptions{})
	assert.Error(t, err)
}

func TestMatrixAPIEmpty(t *testing.T) {
	p := newTestMatrixProvider(t, "http://127.0.0.1:0", ModeDistance)
	result, err := p.Build(context.Background(), nil)

	require.NoError(t, err)
	assert.Empty(t, result.Matrix)
}
