package distance

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"golang.org/x/sync/errgroup"

	"address-route-optimizer/internal/geocoding"
	"address-route-optimizer/internal/models"
)

// Result is a built matrix plus the address list it is indexed by.
// len(Addresses) == len(Matrix) always holds.
type Result struct {
	Addresses []string
	Matrix    Matrix
	Report    Report
}

// Provider turns an address list into a cost matrix
type Provider interface {
	Build(ctx context.Context, addresses []string) (*Result, error)
	Name() string
}

// Cache stores priced coordinate pairs
type Cache interface {
	Get(ctx context.Context, origin, dest models.Coordinates) (*models.DistanceCacheEntry, error)
	SetBatch(ctx context.Context, entries []models.DistanceCacheEntry) error
}

// ErrProviderTransport is returned when a provider produced no usable data
// for the build. It aborts the build; no partial matrix is returned.
type ErrProviderTransport struct {
	Provider string
	Reason   string
	Err      error
}

func (e *ErrProviderTransport) Error() string {
	return fmt.Sprintf("%s provider failed: %s", e.Provider, e.Reason)
}

func (e *ErrProviderTransport) Unwrap() error { return e.Err }

// DefaultConcurrency bounds geocoding fan-out when options leave it unset
const DefaultConcurrency = 4

// resolved is the subset of an address list that geocoded
type resolved struct {
	addresses []string
	coords    []models.Coordinates
	report    Report
}

// resolveAll geocodes every distinct address once with bounded fan-out and
// keeps the positions that resolved, in input order. Lookup failures are
// reported; only context cancellation is fatal.
func resolveAll(ctx context.Context, geocoder geocoding.Geocoder, addresses []string, concurrency int) (*resolved, error) {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	var unique []string
	seen := make(map[string]bool, len(addresses))
	for _, a := range addresses {
		if !seen[a] {
			seen[a] = true
			unique = append(unique, a)
		}
	}

	var mu sync.Mutex
	found := make(map[string]models.Coordinates, len(unique))
	failures := make(map[string]string)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, address := range unique {
		address := address
		g.Go(func() error {
			result, err := geocoder.Geocode(gctx, address)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				reason := err.Error()
				var gf *geocoding.ErrGeocodingFailed
				if errors.As(err, &gf) {
					reason = gf.Reason
				}
				mu.Lock()
				failures[address] = reason
				mu.Unlock()
				return nil
			}
			mu.Lock()
			found[address] = result.Coords
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := &resolved{}
	for _, a := range unique {
		if reason, ok := failures[a]; ok {
			log.Printf("[WARN] Unresolved address: address=%s reason=%s", a, reason)
			out.report.AddUnresolved(a, reason)
		}
	}
	for _, a := range addresses {
		if c, ok := found[a]; ok {
			out.addresses = append(out.addresses, a)
			out.coords = append(out.coords, c)
		}
	}
	return out, nil
}
