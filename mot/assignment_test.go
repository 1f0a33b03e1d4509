package mot

import (
	"math"
	"math/rand"
	"testing"
)

func matchingTotal(costs [][]float64, matches [][2]int) float64 {
	total := 0.0
	for _, m := range matches {
		total += costs[m[0]][m[1]]
	}
	return total
}

// bestMatching enumerates every partial matching and keeps the one with most pairs, then least cost
func bestMatching(costs [][]float64, rows, cols int) (int, float64) {
	bestCount, bestCost := 0, 0.0
	taken := make([]bool, cols)
	var walk func(row, count int, cost float64)
	walk = func(row, count int, cost float64) {
		if row == rows {
			if count > bestCount || (count == bestCount && cost < bestCost) {
				bestCount, bestCost = count, cost
			}
			return
		}
		walk(row+1, count, cost)
		for col := 0; col < cols; col++ {
			if taken[col] || math.IsInf(costs[row][col], 1) {
				continue
			}
			taken[col] = true
			walk(row+1, count+1, cost+costs[row][col])
			taken[col] = false
		}
	}
	walk(0, 0, 0)
	return bestCount, bestCost
}

func TestHungarianMatchingIsOptimal(t *testing.T) {
	costs := [][]float64{{4, 400}, {1, 289}}
	matches := performHungarianMatching(costs, 2, 2)
	if len(matches) != 2 {
		t.Fatalf("Expected 2 matches, got %v", matches)
	}
	if total := matchingTotal(costs, matches); total != 293 {
		t.Errorf("Expected total 293, got %f (%v)", total, matches)
	}
}

func TestHungarianMatchingPrefersMoreMatches(t *testing.T) {
	inf := forbiddenCost
	// Taking the cheap (0,0) pair would leave row 1 unmatched
	costs := [][]float64{{1, 50}, {5, inf}}
	matches := performHungarianMatching(costs, 2, 2)
	want := [][2]int{{0, 1}, {1, 0}}
	if len(matches) != len(want) || matches[0] != want[0] || matches[1] != want[1] {
		t.Errorf("Expected %v, got %v", want, matches)
	}
}

func TestHungarianMatchingAgainstBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 500; trial++ {
		rows := 1 + rng.Intn(5)
		cols := 1 + rng.Intn(5)
		costs := make([][]float64, rows)
		for i := range costs {
			costs[i] = make([]float64, cols)
			for j := range costs[i] {
				if rng.Float64() < 0.25 {
					costs[i][j] = forbiddenCost
					continue
				}
				costs[i][j] = float64(rng.Intn(1000))
			}
		}
		matches := performHungarianMatching(costs, rows, cols)
		seenRows, seenCols := map[int]bool{}, map[int]bool{}
		for _, m := range matches {
			if seenRows[m[0]] || seenCols[m[1]] || math.IsInf(costs[m[0]][m[1]], 1) {
				t.Fatalf("Trial %d: invalid matching %v for %v", trial, matches, costs)
			}
			seenRows[m[0]], seenCols[m[1]] = true, true
		}
		count, cost := bestMatching(costs, rows, cols)
		if len(matches) != count {
			t.Fatalf("Trial %d: expected %d matches, got %d (%v for %v)", trial, count, len(matches), matches, costs)
		}
		if total := matchingTotal(costs, matches); math.Abs(total-cost) > 1e-6 {
			t.Fatalf("Trial %d: expected total %f, got %f (%v for %v)", trial, cost, total, matches, costs)
		}
	}
}

func TestGreedyMatchingRespectsGate(t *testing.T) {
	costs := [][]float64{{forbiddenCost, 3}, {1, 2}}
	matches := performGreedyMatching(costs, 2, 2)
	want := [][2]int{{0, 1}, {1, 0}}
	if len(matches) != len(want) || matches[0] != want[0] || matches[1] != want[1] {
		t.Errorf("Expected %v, got %v", want, matches)
	}
}
