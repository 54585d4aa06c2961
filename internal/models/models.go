package models

import (
	"math"
	"time"
)

// Coordinates represents a geographic point
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// RoundCoordinate rounds to 5 decimal places (~1m), the precision used for cache keys
func RoundCoordinate(v float64) float64 {
	return math.Round(v*100000) / 100000
}

// Rounded returns the coordinates rounded to cache precision
func (c Coordinates) Rounded() Coordinates {
	return Coordinates{Lat: RoundCoordinate(c.Lat), Lng: RoundCoordinate(c.Lng)}
}

// AddressRow is one raw spreadsheet row. Values arrive as text; the postal
// code may be a float rendering such as "1000.0".
type AddressRow struct {
	Street     string `json:"street"`
	PostalCode string `json:"postal_code"`
	City       string `json:"city"`
}

// Column headers expected in uploaded sheets
const (
	ColumnStreet     = "Adresse 1"
	ColumnPostalCode = "Code postal"
	ColumnCity       = "Ville"
)

// GeocodeCacheEntry represents a cached address lookup
type GeocodeCacheEntry struct {
	Address     string      `json:"address"`
	Provider    string      `json:"provider"`
	Coords      Coordinates `json:"coords"`
	DisplayName string      `json:"display_name"`
}

// DistanceCacheEntry represents a cached distance lookup
type DistanceCacheEntry struct {
	Origin         Coordinates `json:"origin"`
	Destination    Coordinates `json:"destination"`
	DistanceMeters float64     `json:"distance_meters"`
	DurationSecs   float64     `json:"duration_secs"`
}

// StoredResult is one entry of the resolved-file history
type StoredResult struct {
	RunID     string    `json:"run_id"`
	Filename  string    `json:"filename"`
	URL       string    `json:"url"`
	Backend   string    `json:"backend"`
	Errors    []string  `json:"errors"`
	CreatedAt time.Time `json:"created_at"`
}
