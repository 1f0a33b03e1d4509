package mot

import (
	"math"
	"sort"
)

// forbiddenCost marks a (track, observation) pair rejected by the gate
var forbiddenCost = math.Inf(1)

// solveAssignment matches rows (tracks) to columns (observations) minimizing total cost.
// Pairs with forbiddenCost are never matched. Returns (row, col) pairs sorted by row.
func solveAssignment(costs [][]float64, rows, cols int, algorithm MatchingAlgorithm) [][2]int {
	if rows == 0 || cols == 0 {
		return [][2]int{}
	}
	switch algorithm {
	case MatchingAlgorithmHungarian:
		return performHungarianMatching(costs, rows, cols)
	case MatchingAlgorithmGreedy:
		return performGreedyMatching(costs, rows, cols)
	default:
		return performGreedyMatching(costs, rows, cols)
	}
}

// performHungarianMatching solves the assignment exactly with the Kuhn-Munkres (Jonker-Volgenant potentials) method.
// Every admissible pair is shifted down by more than the sum of all admissible costs, so the solver first maximizes
// the number of matches and only then minimizes their cost. Gated pairs and padding cost zero and are dropped afterwards.
func performHungarianMatching(costs [][]float64, rows, cols int) [][2]int {
	big := 1.0
	admissible := 0
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if !math.IsInf(costs[i][j], 1) {
				big += costs[i][j]
				admissible++
			}
		}
	}
	if admissible == 0 {
		return [][2]int{}
	}
	// Tiny index-dependent bias keeps equal-cost solutions deterministic: lower rows and columns win
	bias := big * 1e-12 / float64(rows*cols+1)

	// Rectangular matrix - pad to make it square
	n := maxInt(rows, cols)
	padded := make([][]float64, n)
	for i := 0; i < n; i++ {
		padded[i] = make([]float64, n)
	}
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if math.IsInf(costs[i][j], 1) {
				continue
			}
			padded[i][j] = costs[i][j] - big + bias*float64(i*cols+j)
		}
	}

	colOwner := kuhnMunkres(padded)
	matches := make([][2]int, 0, minInt(rows, cols))
	for col, row := range colOwner {
		// Padding and gated pairs are not real matches
		if row < 0 || row >= rows || col >= cols || math.IsInf(costs[row][col], 1) {
			continue
		}
		matches = append(matches, [2]int{row, col})
	}
	sort.Slice(matches, func(a, b int) bool { return matches[a][0] < matches[b][0] })
	return matches
}

// kuhnMunkres returns, for every column of the square matrix, the row assigned to it at minimum total cost
func kuhnMunkres(a [][]float64) []int {
	n := len(a)
	inf := math.MaxFloat64 / 2
	// 1-indexed potentials; p[j] is the row owning column j, index 0 is the virtual column
	u := make([]float64, n+1)
	v := make([]float64, n+1)
	p := make([]int, n+1)
	way := make([]int, n+1)
	minv := make([]float64, n+1)
	used := make([]bool, n+1)
	for i := 1; i <= n; i++ {
		p[0] = i
		j0 := 0
		for j := range minv {
			minv[j] = inf
			used[j] = false
		}
		for {
			used[j0] = true
			i0 := p[j0]
			delta := inf
			j1 := 0
			for j := 1; j <= n; j++ {
				if used[j] {
					continue
				}
				cur := a[i0-1][j-1] - u[i0] - v[j]
				if cur < minv[j] {
					minv[j] = cur
					way[j] = j0
				}
				if minv[j] < delta {
					delta = minv[j]
					j1 = j
				}
			}
			for j := 0; j <= n; j++ {
				if used[j] {
					u[p[j]] += delta
					v[j] -= delta
				} else {
					minv[j] -= delta
				}
			}
			j0 = j1
			if p[j0] == 0 {
				break
			}
		}
		// Augment along the alternating path
		for j0 != 0 {
			j1 := way[j0]
			p[j0] = p[j1]
			j0 = j1
		}
	}
	owner := make([]int, n)
	for j := 1; j <= n; j++ {
		owner[j-1] = p[j] - 1
	}
	return owner
}

// performGreedyMatching repeatedly takes the cheapest admissible pair whose track and observation are both free
func performGreedyMatching(costs [][]float64, rows, cols int) [][2]int {
	priorityQueue := make(distanceHeap, 0, rows*cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if math.IsInf(costs[i][j], 1) {
				continue
			}
			priorityQueue.Push(candidatePair{track: i, obs: j, cost: costs[i][j]})
		}
	}
	reservedTracks := make(map[int]struct{})
	reservedObs := make(map[int]struct{})
	matches := make([][2]int, 0, minInt(rows, cols))
	for priorityQueue.Len() > 0 {
		pair := priorityQueue.Pop()
		if _, ok := reservedTracks[pair.track]; ok {
			continue
		}
		if _, ok := reservedObs[pair.obs]; ok {
			continue
		}
		reservedTracks[pair.track] = struct{}{}
		reservedObs[pair.obs] = struct{}{}
		matches = append(matches, [2]int{pair.track, pair.obs})
	}
	sort.Slice(matches, func(a, b int) bool { return matches[a][0] < matches[b][0] })
	return matches
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
