package distance

import (
	"context"
	"log"
	"time"

	"address-route-optimizer/internal/geocoding"
)

// EuclideanOptions configures the coordinate backend
type EuclideanOptions struct {
	// Concurrency bounds parallel geocoding; the geocoder's gate still sets the rate
	Concurrency int
}

type euclideanProvider struct {
	geocoder    geocoding.Geocoder
	concurrency int
}

// NewEuclideanProvider creates the coordinate backend. Costs are straight-line
// distances in raw degrees, so the matrix is symmetric.
func NewEuclideanProvider(geocoder geocoding.Geocoder, opts EuclideanOptions) Provider {
	return &euclideanProvider{geocoder: geocoder, concurrency: opts.Concurrency}
}

func (p *euclideanProvider) Name() string { return "coordinate" }

func (p *euclideanProvider) Build(ctx context.Context, addresses []string) (*Result, error) {
	start := time.Now()
	res, err := resolveAll(ctx, p.geocoder, addresses, p.concurrency)
	if err != nil {
		return nil, err
	}

	n := len(res.addresses)
	m := NewMatrix(n)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d := euclidean(res.coords[i].Lat, res.coords[i].Lng, res.coords[j].Lat, res.coords[j].Lng)
			m[i][j] = d
			m[j][i] = d
		}
	}

	log.Printf("[TIMING] Coordinate matrix built: addresses=%d resolved=%d geocoder=%s took=%v",
		len(addresses), n, p.geocoder.Name(), time.Since(start))
	return &Result{Addresses: res.addresses, Matrix: m, Report: res.report}, nil
}
