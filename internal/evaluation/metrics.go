// Package evaluation compares extraction output against ground truth and
// aggregates accuracy metrics per attribute, section, and document.
package evaluation

import "idp/pkg/models"

// ConfusionCounts accumulates comparison outcomes. FP is never stored
// directly; it is always derived as FP1 + FP2.
type ConfusionCounts struct {
	TP  int `json:"tp"`
	FP1 int `json:"fp1"` // Predicted where none expected
	FP2 int `json:"fp2"` // Predicted a wrong value
	FN  int `json:"fn"`
	TN  int `json:"tn"`
}

// FP is the derived false-positive total.
func (c ConfusionCounts) FP() int {
	return c.FP1 + c.FP2
}

// Total is the number of comparisons recorded.
func (c ConfusionCounts) Total() int {
	return c.TP + c.FP() + c.FN + c.TN
}

// Add merges another tuple into c. Addition is commutative and associative,
// so partial results may be merged in any completion order.
func (c *ConfusionCounts) Add(other ConfusionCounts) {
	c.TP += other.TP
	c.FP1 += other.FP1
	c.FP2 += other.FP2
	c.FN += other.FN
	c.TN += other.TN
}

// Record classifies one comparison outcome into exactly one bucket:
//
//	both blank            -> tn
//	only actual present   -> fp1 (hallucinated a value)
//	only expected present -> fn  (missed a value)
//	both present, match   -> tp
//	both present, no match-> fp2 (wrong value)
func (c *ConfusionCounts) Record(expectedPresent, actualPresent, matched bool) {
	switch {
	case !expectedPresent && !actualPresent:
		c.TN++
	case !expectedPresent:
		c.FP1++
	case !actualPresent:
		c.FN++
	case matched:
		c.TP++
	default:
		c.FP2++
	}
}

// Derive computes the six ratio metrics, guarding every zero denominator
// to 0 rather than NaN. The raw counts are carried along for the report.
func (c ConfusionCounts) Derive() models.Metrics {
	tp, fp, fn, tn := float64(c.TP), float64(c.FP()), float64(c.FN), float64(c.TN)

	m := models.Metrics{
		TruePositives:   c.TP,
		FalsePositives:  c.FP(),
		FalseNegatives:  c.FN,
		TrueNegatives:   c.TN,
		FalsePositives1: c.FP1,
		FalsePositives2: c.FP2,
	}

	if tp+fp > 0 {
		m.Precision = tp / (tp + fp)
	}
	if tp+fn > 0 {
		m.Recall = tp / (tp + fn)
	}
	if m.Precision+m.Recall > 0 {
		m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
	}
	if tp+fp+fn+tn > 0 {
		m.Accuracy = (tp + tn) / (tp + fp + fn + tn)
	}
	if fp+tn > 0 {
		m.FalseAlarmRate = fp / (fp + tn)
	}
	if fp+tp > 0 {
		m.FalseDiscoveryRate = fp / (fp + tp)
	}
	return m
}
