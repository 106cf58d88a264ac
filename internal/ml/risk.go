package ml

import (
	"fmt"
	"math"
)

// Buckets bins a probability into labelled ranges. Edges must be increasing
// with len(Labels) == len(Edges)-1. Bins are closed on the left and open on
// the right, except the last which is closed: with edges [0, .3, .7, 1],
// 0.3 is Medium and 1.0 is High.
type Buckets struct {
	Edges  []float64
	Labels []string
}

var (
	// DelayRiskBuckets grades the probability that an order is delivered late.
	DelayRiskBuckets = Buckets{
		Edges:  []float64{0, 0.3, 0.7, 1},
		Labels: []string{"Low Risk", "Medium Risk", "High Risk"},
	}
	// ChurnPriorityBuckets grades the probability that a customer churns.
	ChurnPriorityBuckets = Buckets{
		Edges:  []float64{0, 0.4, 0.7, 1},
		Labels: []string{"Low Priority", "Medium Priority", "High Priority"},
	}
)

// Assign returns the label of the bin containing p.
func (b Buckets) Assign(p float64) (string, error) {
	n := len(b.Edges)
	if n < 2 || len(b.Labels) != n-1 {
		return "", fmt.Errorf("malformed buckets: %d edges, %d labels", n, len(b.Labels))
	}
	if math.IsNaN(p) || p < b.Edges[0] || p > b.Edges[n-1] {
		return "", fmt.Errorf("probability %v outside [%v, %v]", p, b.Edges[0], b.Edges[n-1])
	}
	for i := 1; i < n-1; i++ {
		if p < b.Edges[i] {
			return b.Labels[i-1], nil
		}
	}
	return b.Labels[n-2], nil
}
