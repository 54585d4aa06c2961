// Package tsp orders matrix indices into a low-cost tour using simulated
// annealing with a 2-opt polish. Matrices may be asymmetric; every move is
// scored by recomputing the full tour cost.
package tsp

import (
	"context"
	"errors"
	"log"
	"math"
	"math/rand"
	"time"

	"address-route-optimizer/internal/distance"
)

var (
	// ErrNonSquare is returned for a matrix with a row of the wrong length
	ErrNonSquare = errors.New("tsp: cost matrix is not square")
	// ErrInvalidCost is returned for a negative or NaN cell
	ErrInvalidCost = errors.New("tsp: cost matrix has a negative or NaN cell")
)

const (
	// DefaultTimeBudget caps how long Solve searches
	DefaultTimeBudget = 20 * time.Second
	// DefaultCooling is the per-iteration temperature multiplier
	DefaultCooling = 0.9995
	// exhaustiveLimit is the largest n solved by enumerating every tour
	exhaustiveLimit = 7
	// checkEvery is how many iterations pass between deadline checks
	checkEvery = 256
)

// Options tunes the search. Zero values select defaults.
type Options struct {
	TimeBudget time.Duration
	// Seed fixes the random source; 0 seeds from the clock
	Seed int64
	// MaxIterations caps annealing iterations; 0 means bounded by time and stall only
	MaxIterations int
	// StallIterations stops annealing after this many iterations without a new best
	StallIterations int
	// Open scores a path from index 0 instead of a closed cycle
	Open        bool
	InitialTemp float64
	Cooling     float64
}

// Solution is a tour over matrix indices, always starting at 0
type Solution struct {
	Order []int
	Cost  float64
	// Degraded is set when the tour uses at least one PenaltyCost edge
	Degraded     bool
	PenaltyEdges int
	Iterations   int
}

type Solver struct {
	opts Options
}

func NewSolver(opts Options) *Solver {
	if opts.TimeBudget <= 0 {
		opts.TimeBudget = DefaultTimeBudget
	}
	if opts.Cooling <= 0 || opts.Cooling >= 1 {
		opts.Cooling = DefaultCooling
	}
	return &Solver{opts: opts}
}

func rngFromSeed(seed int64) *rand.Rand {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}

// Solve returns the best tour found before the time budget elapses or ctx is
// done. Cancellation is not an error; the best order so far is returned.
func (s *Solver) Solve(ctx context.Context, m distance.Matrix) (Solution, error) {
	cost, err := sanitize(m)
	if err != nil {
		return Solution{}, err
	}

	n := len(cost)
	start := time.Now()
	deadline := start.Add(s.opts.TimeBudget)

	var order []int
	iterations := 0
	switch {
	case n == 0:
		order = []int{}
	case n <= exhaustiveLimit:
		order = s.exhaustive(cost)
	default:
		order, iterations = s.anneal(ctx, cost, deadline)
	}

	sol := s.score(cost, order)
	sol.Iterations = iterations
	log.Printf("[TSP] Solved: n=%d cost=%.2f penalty_edges=%d iterations=%d took=%v",
		n, sol.Cost, sol.PenaltyEdges, iterations, time.Since(start))
	return sol, nil
}

// sanitize validates m and returns a copy with +Inf replaced by PenaltyCost
func sanitize(m distance.Matrix) ([][]float64, error) {
	out := make([][]float64, len(m))
	for i, row := range m {
		if len(row) != len(m) {
			return nil, ErrNonSquare
		}
		out[i] = make([]float64, len(row))
		for j, v := range row {
			if math.IsNaN(v) || v < 0 {
				return nil, ErrInvalidCost
			}
			if math.IsInf(v, 1) || v > distance.PenaltyCost {
				v = distance.PenaltyCost
			}
			out[i][j] = v
		}
	}
	return out, nil
}

func (s *Solver) tourCost(cost [][]float64, order []int) float64 {
	total := 0.0
	for k := 0; k+1 < len(order); k++ {
		total += cost[order[k]][order[k+1]]
	}
	if !s.opts.Open && len(order) > 1 {
		total += cost[order[len(order)-1]][order[0]]
	}
	return total
}

func (s *Solver) score(cost [][]float64, order []int) Solution {
	sol := Solution{Order: order, Cost: s.tourCost(cost, order)}
	edge := func(a, b int) {
		if distance.IsPenalty(cost[a][b]) {
			sol.PenaltyEdges++
		}
	}
	for k := 0; k+1 < len(order); k++ {
		edge(order[k], order[k+1])
	}
	if !s.opts.Open && len(order) > 1 {
		edge(order[len(order)-1], order[0])
	}
	sol.Degraded = sol.PenaltyEdges > 0
	return sol
}

// exhaustive enumerates every tour with index 0 fixed first
func (s *Solver) exhaustive(cost [][]float64) []int {
	n := len(cost)
	current := make([]int, n)
	for i := range current {
		current[i] = i
	}
	best := append([]int(nil), current...)
	bestCost := s.tourCost(cost, best)

	var permute func(k int)
	permute = func(k int) {
		if k == n {
			if c := s.tourCost(cost, current); c < bestCost {
				bestCost = c
				copy(best, current)
			}
			return
		}
		for i := k; i < n; i++ {
			current[k], current[i] = current[i], current[k]
			permute(k + 1)
			current[k], current[i] = current[i], current[k]
		}
	}
	permute(1)
	return best
}

// nearestNeighbour builds a greedy tour from index 0
func nearestNeighbour(cost [][]float64) []int {
	n := len(cost)
	visited := make([]bool, n)
	order := make([]int, 0, n)
	current := 0
	visited[0] = true
	order = append(order, 0)
	for len(order) < n {
		next, nextCost := -1, math.MaxFloat64
		for j := 0; j < n; j++ {
			if !visited[j] && cost[current][j] < nextCost {
				next, nextCost = j, cost[current][j]
			}
		}
		visited[next] = true
		order = append(order, next)
		current = next
	}
	return order
}

func (s *Solver) anneal(ctx context.Context, cost [][]float64, deadline time.Time) ([]int, int) {
	n := len(cost)
	rng := rngFromSeed(s.opts.Seed)

	current := nearestNeighbour(cost)
	currentCost := s.tourCost(cost, current)
	identity := make([]int, n)
	for i := range identity {
		identity[i] = i
	}
	if c := s.tourCost(cost, identity); c < currentCost {
		current, currentCost = identity, c
	}
	best := append([]int(nil), current...)
	bestCost := currentCost

	initialTemp := s.opts.InitialTemp
	if initialTemp <= 0 {
		initialTemp = math.Max(1e-9, currentCost/float64(n)*0.1)
	}
	temp := initialTemp
	minTemp := initialTemp * 1e-4

	stall := s.opts.StallIterations
	if stall <= 0 {
		stall = max(20000, 100*n*n)
	}

	candidate := make([]int, n)
	iterations, sinceBest := 0, 0
	for {
		if s.opts.MaxIterations > 0 && iterations >= s.opts.MaxIterations {
			break
		}
		if sinceBest >= stall {
			break
		}
		if iterations%checkEvery == 0 && (ctx.Err() != nil || time.Now().After(deadline)) {
			break
		}
		iterations++
		sinceBest++

		copy(candidate, current)
		mutate(rng, candidate)
		candidateCost := s.tourCost(cost, candidate)
		delta := candidateCost - currentCost
		if delta <= 0 || rng.Float64() < math.Exp(-delta/temp) {
			current, candidate = candidate, current
			currentCost = candidateCost
			if currentCost < bestCost {
				bestCost = currentCost
				copy(best, current)
				sinceBest = 0
			}
		}

		temp *= s.opts.Cooling
		if temp < minTemp {
			// Reheat from the best tour
			temp = initialTemp
			copy(current, best)
			currentCost = bestCost
		}
	}

	best = s.twoOpt(ctx, cost, best, deadline)
	return best, iterations
}

// mutate applies one random reversal, swap or relocation to positions 1..n-1
func mutate(rng *rand.Rand, order []int) {
	n := len(order)
	i := 1 + rng.Intn(n-1)
	j := 1 + rng.Intn(n-1)
	for j == i {
		j = 1 + rng.Intn(n-1)
	}
	if i > j {
		i, j = j, i
	}
	switch rng.Intn(3) {
	case 0:
		reverse(order, i, j)
	case 1:
		order[i], order[j] = order[j], order[i]
	default:
		// Move order[i] to position j
		v := order[i]
		copy(order[i:j], order[i+1:j+1])
		order[j] = v
	}
}

func reverse(order []int, i, j int) {
	for i < j {
		order[i], order[j] = order[j], order[i]
		i++
		j--
	}
}

// twoOpt applies first-improvement segment reversals until none helps
func (s *Solver) twoOpt(ctx context.Context, cost [][]float64, order []int, deadline time.Time) []int {
	n := len(order)
	bestCost := s.tourCost(cost, order)
	improved := true
	for improved {
		improved = false
		if ctx.Err() != nil || time.Now().After(deadline) {
			return order
		}
		for i := 1; i < n-1 && !improved; i++ {
			for j := i + 1; j < n && !improved; j++ {
				reverse(order, i, j)
				if c := s.tourCost(cost, order); c < bestCost-1e-9 {
					bestCost = c
					improved = true
				} else {
					reverse(order, i, j)
				}
			}
		}
	}
	return order
}
