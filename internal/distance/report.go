package distance

import "fmt"

// AddressError is an address that could not be resolved to coordinates
type AddressError struct {
	Address string `json:"address"`
	Reason  string `json:"reason"`
}

// CellError is a matrix cell the provider could not price
type CellError struct {
	Origin      string `json:"origin"`
	Destination string `json:"destination"`
	Status      string `json:"status"`
}

// Report collects non-fatal lookup failures. It travels with a successful
// result and never carries fatal errors.
type Report struct {
	Unresolved []AddressError `json:"unresolved"`
	CellErrors []CellError    `json:"cell_errors"`
	Warnings   []string       `json:"warnings"`
}

// AddUnresolved records an address that failed geocoding
func (r *Report) AddUnresolved(address, reason string) {
	r.Unresolved = append(r.Unresolved, AddressError{Address: address, Reason: reason})
}

// AddCellError records a cell set to PenaltyCost
func (r *Report) AddCellError(origin, destination, status string) {
	r.CellErrors = append(r.CellErrors, CellError{Origin: origin, Destination: destination, Status: status})
}

// AddWarning records a condition that is neither success nor failure
func (r *Report) AddWarning(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Addresses returns the unresolved address strings in report order
func (r *Report) Addresses() []string {
	out := make([]string, len(r.Unresolved))
	for i, u := range r.Unresolved {
		out[i] = u.Address
	}
	return out
}

// Empty reports whether nothing was recorded
func (r *Report) Empty() bool {
	return len(r.Unresolved) == 0 && len(r.CellErrors) == 0 && len(r.Warnings) == 0
}

// Merge appends other's entries after r's
func (r *Report) Merge(other Report) {
	r.Unresolved = append(r.Unresolved, other.Unresolved...)
	r.CellErrors = append(r.CellErrors, other.CellErrors...)
	r.Warnings = append(r.Warnings, other.Warnings...)
}

// Errors flattens address and cell failures into display strings
func (r *Report) Errors() []string {
	out := make([]string, 0, len(r.Unresolved)+len(r.CellErrors))
	for _, u := range r.Unresolved {
		out = append(out, fmt.Sprintf("%s: %s", u.Address, u.Reason))
	}
	for _, c := range r.CellErrors {
		out = append(out, fmt.Sprintf("%s -> %s: %s", c.Origin, c.Destination, c.Status))
	}
	return out
}
