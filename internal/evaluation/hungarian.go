package evaluation

// Assign solves the optimal bipartite assignment over a similarity matrix
// (rows = expected items, columns = actual items), maximizing total
// similarity. It returns, for each row, the column it was paired with, or
// -1 when the row is unmatched.
//
// Rectangular input is padded to a square matrix with zero-similarity
// entries; pairings against padded rows or columns are reported as
// unmatched. Greedy nearest-neighbor pairing is deliberately avoided: it is
// order-dependent and can produce a strictly worse total.
func Assign(sim [][]float64) []int {
	rows := len(sim)
	if rows == 0 {
		return nil
	}
	cols := len(sim[0])

	n := rows
	if cols > n {
		n = cols
	}

	// Kuhn–Munkres over a cost matrix with potentials. Costs are negated
	// similarities so that minimizing cost maximizes similarity.
	cost := make([][]float64, n)
	for i := range cost {
		cost[i] = make([]float64, n)
		if i < rows {
			for j := 0; j < cols; j++ {
				cost[i][j] = -sim[i][j]
			}
		}
	}

	u := make([]float64, n+1)
	v := make([]float64, n+1)
	p := make([]int, n+1)    // p[j] = row assigned to column j (1-based)
	way := make([]int, n+1)

	for i := 1; i <= n; i++ {
		p[0] = i
		j0 := 0
		minv := make([]float64, n+1)
		used := make([]bool, n+1)
		for j := range minv {
			minv[j] = inf
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
				cur := cost[i0-1][j-1] - u[i0] - v[j]
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

		for j0 != 0 {
			j1 := way[j0]
			p[j0] = p[j1]
			j0 = j1
		}
	}

	assignment := make([]int, rows)
	for i := range assignment {
		assignment[i] = -1
	}
	for j := 1; j <= n; j++ {
		row := p[j] - 1
		col := j - 1
		if row >= 0 && row < rows && col < cols {
			assignment[row] = col
		}
	}
	return assignment
}

const inf = 1e18
