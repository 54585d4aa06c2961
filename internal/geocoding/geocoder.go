package geocoding

import (
	"context"
	"errors"
	"fmt"

	"address-route-optimizer/internal/models"
)

// Result contains the result of a geocoding operation
type Result struct {
	Coords      models.Coordinates
	DisplayName string
	Provider    string
}

// Geocoder provides address-to-coordinates conversion
type Geocoder interface {
	Geocode(ctx context.Context, address string) (*Result, error)
	Name() string
}

// ErrGeocodingFailed is returned when an address cannot be geocoded.
// NotFound distinguishes "provider answered, no match" from transport failures.
type ErrGeocodingFailed struct {
	Address  string
	Provider string
	Reason   string
	NotFound bool
	Err      error
}

func (e *ErrGeocodingFailed) Error() string {
	return fmt.Sprintf("geocoding failed for address: %s - %s", e.Address, e.Reason)
}

func (e *ErrGeocodingFailed) Unwrap() error { return e.Err }

// IsNotFound reports whether err means the provider had no match for the address
func IsNotFound(err error) bool {
	var gf *ErrGeocodingFailed
	return errors.As(err, &gf) && gf.NotFound
}
