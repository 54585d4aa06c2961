package distance

import "math"

// PenaltyCost stands in for "no route known" between two points. Exact
// infinity is never stored since it poisons every sum the solver computes.
const PenaltyCost = 1e9

// Mode selects which cost a routed backend puts in the matrix
type Mode string

const (
	ModeDuration Mode = "duration"
	ModeDistance Mode = "distance"
)

// ParseMode maps the configured literal onto a Mode. Anything other than
// "duration" means distance.
func ParseMode(s string) Mode {
	if s == string(ModeDuration) {
		return ModeDuration
	}
	return ModeDistance
}

// Matrix is an n×n cost table indexed by address position
type Matrix [][]float64

// NewMatrix returns an n×n matrix of zeros
func NewMatrix(n int) Matrix {
	m := make(Matrix, n)
	for i := range m {
		m[i] = make([]float64, n)
	}
	return m
}

// Size returns the number of rows
func (m Matrix) Size() int { return len(m) }

// IsSquare reports whether every row has len(m) columns
func (m Matrix) IsSquare() bool {
	for _, row := range m {
		if len(row) != len(m) {
			return false
		}
	}
	return true
}

// IsPenalty reports whether v marks an unknown route
func IsPenalty(v float64) bool {
	return v >= PenaltyCost || math.IsInf(v, 1)
}

// euclidean is the straight-line distance in raw degrees
func euclidean(aLat, aLng, bLat, bLng float64) float64 {
	dLat := bLat - aLat
	dLng := bLng - aLng
	return math.Sqrt(dLat*dLat + dLng*dLng)
}
