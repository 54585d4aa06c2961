// Package address turns raw spreadsheet rows into the formatted address
// strings the rest of the pipeline consumes.
package address

import (
	"math"
	"strconv"
	"strings"

	"address-route-optimizer/internal/models"
)

// Normalizer formats address rows. The zero value is ready to use.
type Normalizer struct{}

// Normalize returns one formatted address per row with a street, in row
// order. A non-empty start is prepended even when it duplicates a row.
func (Normalizer) Normalize(rows []models.AddressRow, start string) []string {
	addresses := make([]string, 0, len(rows)+1)
	if s := strings.TrimSpace(start); s != "" {
		addresses = append(addresses, s)
	}

	for _, row := range rows {
		formatted, ok := Format(row)
		if !ok {
			continue
		}
		addresses = append(addresses, formatted)
	}

	return addresses
}

// Format builds "<street>, <postal> <city>". It reports false when the row
// has no street. An invalid postal code only drops that segment.
func Format(row models.AddressRow) (string, bool) {
	street := cleanField(row.Street)
	if street == "" {
		return "", false
	}

	var locality []string
	if postal, ok := PostalCode(row.PostalCode); ok {
		locality = append(locality, postal)
	}
	if city := cleanField(row.City); city != "" {
		locality = append(locality, city)
	}

	if len(locality) == 0 {
		return street, true
	}
	return street + ", " + strings.Join(locality, " "), true
}

// PostalCode coerces a numeric or float-rendered postal code ("1000.0") to
// its integer form. NaN, infinities and non-numeric input are rejected.
func PostalCode(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}

	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return "", false
	}

	t := math.Trunc(v)
	if t == 0 {
		// drops the sign of -0
		t = 0
	}
	return strconv.FormatFloat(t, 'f', 0, 64), true
}

// cleanField trims the value and maps the spreadsheet "nan" placeholder to empty
func cleanField(v string) string {
	v = strings.TrimSpace(v)
	if strings.EqualFold(v, "nan") {
		return ""
	}
	return v
}
