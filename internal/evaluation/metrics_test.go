package evaluation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecordBuckets(t *testing.T) {
	tests := []struct {
		name            string
		expectedPresent bool
		actualPresent   bool
		matched         bool
		want            ConfusionCounts
	}{
		{"both blank", false, false, false, ConfusionCounts{TN: 1}},
		{"hallucinated value", false, true, false, ConfusionCounts{FP1: 1}},
		{"missed value", true, false, false, ConfusionCounts{FN: 1}},
		{"correct value", true, true, true, ConfusionCounts{TP: 1}},
		{"wrong value", true, true, false, ConfusionCounts{FP2: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c ConfusionCounts
			c.Record(tt.expectedPresent, tt.actualPresent, tt.matched)
			assert.Equal(t, tt.want, c)
		})
	}
}

func TestCountsConsistency(t *testing.T) {
	// fp = fp1 + fp2 and the total equals the number of comparisons, for
	// any sequence of outcomes.
	outcomes := []struct{ expectedPresent, actualPresent, matched bool }{
		{true, true, true},
		{true, true, false},
		{false, true, false},
		{true, false, false},
		{false, false, false},
		{true, true, true},
		{false, true, false},
	}

	var c ConfusionCounts
	for _, o := range outcomes {
		c.Record(o.expectedPresent, o.actualPresent, o.matched)
	}

	assert.Equal(t, c.FP1+c.FP2, c.FP())
	assert.Equal(t, len(outcomes), c.Total())
}

func TestAddIsOrderIndependent(t *testing.T) {
	a := ConfusionCounts{TP: 3, FP1: 1, FP2: 2, FN: 4, TN: 5}
	b := ConfusionCounts{TP: 1, FP2: 1, TN: 2}

	ab := a
	ab.Add(b)
	ba := b
	ba.Add(a)

	assert.Equal(t, ab, ba)
}

func TestDerive(t *testing.T) {
	c := ConfusionCounts{TP: 8, FP1: 1, FP2: 1, FN: 2, TN: 4}
	m := c.Derive()

	assert.InDelta(t, 0.8, m.Precision, 1e-9)          // 8 / 10
	assert.InDelta(t, 0.8, m.Recall, 1e-9)             // 8 / 10
	assert.InDelta(t, 0.8, m.F1, 1e-9)
	assert.InDelta(t, 0.75, m.Accuracy, 1e-9)          // 12 / 16
	assert.InDelta(t, 1.0/3.0, m.FalseAlarmRate, 1e-9) // 2 / 6
	assert.InDelta(t, 0.2, m.FalseDiscoveryRate, 1e-9) // 2 / 10

	assert.Equal(t, 2, m.FalsePositives)
	assert.Equal(t, 1, m.FalsePositives1)
	assert.Equal(t, 1, m.FalsePositives2)
}

func TestDeriveGuardsZeroDenominators(t *testing.T) {
	m := ConfusionCounts{}.Derive()

	assert.Zero(t, m.Precision)
	assert.Zero(t, m.Recall)
	assert.Zero(t, m.F1)
	assert.Zero(t, m.Accuracy)
	assert.Zero(t, m.FalseAlarmRate)
	assert.Zero(t, m.FalseDiscoveryRate)
}
