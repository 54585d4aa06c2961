package testutil

import (
	"fmt"
	"math/rand"
)

// Addresses returns n distinct address strings "Addr 0".."Addr n-1"
func Addresses(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("Addr %d", i)
	}
	return out
}

// RandomMatrix returns an n×n asymmetric matrix with zero diagonal and
// costs in [1, 100), reproducible for a given seed
func RandomMatrix(n int, seed int64) [][]float64 {
	r := rand.New(rand.NewSource(seed))
	m := make([][]float64, n)
	for i := range m {
		m[i] = make([]float64, n)
		for j := range m[i] {
			if i != j {
				m[i][j] = 1 + r.Float64()*99
			}
		}
	}
	return m
}

// IsPermutation reports whether order contains every index in [0,n) exactly once
func IsPermutation(order []int, n int) bool {
	if len(order) != n {
		return false
	}
	seen := make([]bool, n)
	for _, idx := range order {
		if idx < 0 || idx >= n || seen[idx] {
			return false
		}
		seen[idx] = true
	}
	return true
}
