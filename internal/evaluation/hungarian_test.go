package evaluation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assignmentTotal(sim [][]float64, assignment []int) float64 {
	var total float64
	for i, j := range assignment {
		if j >= 0 {
			total += sim[i][j]
		}
	}
	return total
}

func TestAssignBeatsGreedy(t *testing.T) {
	// Greedy nearest-match takes (0,0)=0.9 then (2,1)=0.9, stranding row 1
	// at 0.0 for a total of 1.8. The optimal pairing is (0,1)+(1,0)+(2,2)
	// = 0.8 + 0.85 + 0.85 = 2.5.
	sim := [][]float64{
		{0.9, 0.8, 0.0},
		{0.85, 0.0, 0.0},
		{0.0, 0.9, 0.85},
	}

	assignment := Assign(sim)

	require.Len(t, assignment, 3)
	assert.Equal(t, []int{1, 0, 2}, assignment)
	assert.InDelta(t, 2.5, assignmentTotal(sim, assignment), 1e-9)
}

func TestAssignIdentity(t *testing.T) {
	sim := [][]float64{
		{1.0, 0.0, 0.0},
		{0.0, 1.0, 0.0},
		{0.0, 0.0, 1.0},
	}
	assert.Equal(t, []int{0, 1, 2}, Assign(sim))
}

func TestAssignMoreActualThanExpected(t *testing.T) {
	// Two expected rows against three actual columns: both rows pair with
	// their best distinct columns, one column stays unmatched.
	sim := [][]float64{
		{0.2, 0.9, 0.1},
		{0.8, 0.95, 0.1},
	}

	assignment := Assign(sim)

	require.Len(t, assignment, 2)
	assert.Equal(t, []int{1, 0}, assignment)
	assert.InDelta(t, 1.7, assignmentTotal(sim, assignment), 1e-9)
}

func TestAssignMoreExpectedThanActual(t *testing.T) {
	sim := [][]float64{
		{0.9},
		{0.1},
		{0.8},
	}

	assignment := Assign(sim)

	require.Len(t, assignment, 3)
	assert.Equal(t, 0, assignment[0])
	assert.Equal(t, -1, assignment[1])
	assert.Equal(t, -1, assignment[2])
}

func TestAssignEmpty(t *testing.T) {
	assert.Nil(t, Assign(nil))
}
