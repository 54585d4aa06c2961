package distance

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

type namedProvider string

func (p namedProvider) Name() string { return string(p) }

func (p namedProvider) Build(ctx context.Context, addresses []string) (*Result, error) {
	return &Result{Addresses: addresses, Matrix: NewMatrix(len(addresses))}, nil
}

func TestSizeStrategyBoundary(t *testing.T) {
	s := SizeStrategy{Limit: 10, Small: namedProvider("matrix"), Large: namedProvider("coordinate")}

	tests := []struct {
		n    int
		want string
	}{
		{0, "matrix"},
		{1, "matrix"},
		{10, "matrix"},
		{11, "coordinate"},
		{15, "coordinate"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, s.Select(tt.n).Name(), "n=%d", tt.n)
	}
}

func TestSizeStrategyDefaultLimit(t *testing.T) {
	s := SizeStrategy{Small: namedProvider("small"), Large: namedProvider("large")}
	assert.Equal(t, "small", s.Select(DefaultSizeLimit).Name())
	assert.Equal(t, "large", s.Select(DefaultSizeLimit+1).Name())
}

func TestFixedStrategy(t *testing.T) {
	s := FixedStrategy{Provider: namedProvider("osrm")}
	assert.Equal(t, "osrm", s.Select(3).Name())
	assert.Equal(t, "osrm", s.Select(300).Name())
}
