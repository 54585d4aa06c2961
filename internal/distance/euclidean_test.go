package distance

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"address-route-optimizer/internal/models"
	"address-route-optimizer/internal/testutil"
)

func TestEuclideanProviderOneUnresolved(t *testing.T) {
	geocoder := testutil.NewMockGeocoder(map[string]models.Coordinates{
		"Rue A, 1000 Lausanne": {Lat: 46.5, Lng: 6.6},
	})
	p := NewEuclideanProvider(geocoder, EuclideanOptions{})

	result, err := p.Build(context.Background(), []string{"Rue A, 1000 Lausanne", "Rue Inconnue, 9999 Nulle Part"})

	require.NoError(t, err)
	assert.Equal(t, []string{"Rue A, 1000 Lausanne"}, result.Addresses)
	assert.Equal(t, Matrix{{0}}, result.Matrix)
	assert.Equal(t, []string{"Rue Inconnue, 9999 Nulle Part"}, result.Report.Addresses())
	assert.Empty(t, result.Report.CellErrors)
}

func TestEuclideanProviderSymmetricZeroDiagonal(t *testing.T) {
	coords := map[string]models.Coordinates{
		"a": {Lat: 0, Lng: 0},
		"b": {Lat: 3, Lng: 4},
		"c": {Lat: 6, Lng: 8},
		"d": {Lat: -1, Lng: 2},
	}
	p := NewEuclideanProvider(testutil.NewMockGeocoder(coords), EuclideanOptions{Concurrency: 2})

	result, err := p.Build(context.Background(), []string{"a", "b", "c", "d"})

	require.NoError(t, err)
	m := result.Matrix
	require.Len(t, m, 4)
	for i := range m {
		assert.Equal(t, 0.0, m[i][i])
		for j := range m {
			assert.Equal(t, m[i][j], m[j][i])
		}
	}
	assert.InDelta(t, 5.0, m[0][1], 1e-9)
	assert.InDelta(t, 10.0, m[0][2], 1e-9)
}

func TestEuclideanProviderSkipsUnresolvedPositions(t *testing.T) {
	coords := map[string]models.Coordinates{
		"a": {Lat: 0, Lng: 0},
		"c": {Lat: 0, Lng: 1},
	}
	p := NewEuclideanProvider(testutil.NewMockGeocoder(coords), EuclideanOptions{})

	result, err := p.Build(context.Background(), []string{"a", "b", "c"})

	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, result.Addresses)
	assert.Len(t, result.Matrix, 2)
	assert.Equal(t, 1.0, result.Matrix[0][1])
}

func TestEuclideanProviderGeocodesDuplicatesOnce(t *testing.T) {
	geocoder := testutil.NewMockGeocoder(map[string]models.Coordinates{
		"start": {Lat: 1, Lng: 1},
		"other": {Lat: 2, Lng: 2},
	})
	p := NewEuclideanProvider(geocoder, EuclideanOptions{})

	result, err := p.Build(context.Background(), []string{"start", "other", "start"})

	require.NoError(t, err)
	assert.Equal(t, []string{"start", "other", "start"}, result.Addresses)
	assert.Equal(t, 0.0, result.Matrix[0][2])
	assert.Equal(t, 1, geocoder.Calls("start"))
}

func TestEuclideanProviderTransportFailureReported(t *testing.T) {
	geocoder := testutil.NewMockGeocoder(map[string]models.Coordinates{"a": {Lat: 0, Lng: 0}})
	geocoder.Failures["b"] = "HTTP 503"

	result, err := NewEuclideanProvider(geocoder, EuclideanOptions{}).Build(context.Background(), []string{"a", "b"})

	require.NoError(t, err)
	assert.Equal(t, []string{"b: HTTP 503"}, result.Report.Errors())
}

func TestEuclideanProviderCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewEuclideanProvider(testutil.NewMockGeocoder(nil), EuclideanOptions{}).Build(ctx, []string{"a"})

	assert.ErrorIs(t, err, context.Canceled)
}

func TestEuclideanProviderEmpty(t *testing.T) {
	result, err := NewEuclideanProvider(testutil.NewMockGeocoder(nil), EuclideanOptions{}).Build(context.Background(), nil)

	require.NoError(t, err)
	assert.Empty(t, result.Addresses)
	assert.Empty(t, result.Matrix)
}
