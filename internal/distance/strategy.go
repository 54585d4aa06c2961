package distance

// DefaultSizeLimit is the largest address count sent to the matrix API
const DefaultSizeLimit = 10

// Strategy picks the backend for an address count
type Strategy interface {
	Select(n int) Provider
}

// SizeStrategy uses Small up to Limit addresses and Large above it
type SizeStrategy struct {
	Limit int
	Small Provider
	Large Provider
}

func (s SizeStrategy) Select(n int) Provider {
	limit := s.Limit
	if limit <= 0 {
		limit = DefaultSizeLimit
	}
	if n > limit {
		return s.Large
	}
	return s.Small
}

// FixedStrategy always returns Provider
type FixedStrategy struct {
	Provider Provider
}

func (s FixedStrategy) Select(int) Provider { return s.Provider }
