package routelink

import (
	"net/url"
	"strings"
)

// DefaultBaseURL is the Google Maps directions prefix stops are appended to
const DefaultBaseURL = "https://www.google.com/maps/dir/"

// Link is an ordered stop list and the navigation URL built from it
type Link struct {
	Stops []string `json:"stops"`
	URL   string   `json:"url"`
}

// Builder joins ordered addresses into a directions URL. Segments are
// concatenated verbatim unless Escape is set.
type Builder struct {
	BaseURL string
	Escape  bool
}

// Build indexes addresses by order, dropping indices outside the list
func (b Builder) Build(addresses []string, order []int) Link {
	base := b.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}

	stops := make([]string, 0, len(order))
	for _, idx := range order {
		if idx < 0 || idx >= len(addresses) {
			continue
		}
		stops = append(stops, addresses[idx])
	}

	segments := stops
	if b.Escape {
		segments = make([]string, len(stops))
		for i, s := range stops {
			segments[i] = url.PathEscape(s)
		}
	}

	return Link{Stops: stops, URL: base + strings.Join(segments, "/")}
}
