package ml

import (
	"math"
	"math/rand"
	"sort"
)

// Node is one node of a flattened regression tree. Leaves have Feature -1.
// Rows with x[Feature] <= Threshold go Left; NaN goes Right.
type Node struct {
	Feature   int
	Threshold float64
	Left      int
	Right     int
	Value     float64
	Samples   int
}

// Tree is a binary regression tree stored as a node slice rooted at 0.
type Tree struct {
	Nodes []Node
}

// Eval returns the leaf value reached by x.
func (t *Tree) Eval(x []float64) float64 {
	i := 0
	for {
		n := &t.Nodes[i]
		if n.Feature < 0 {
			return n.Value
		}
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// Depth returns the number of edges on the longest root-to-leaf path.
func (t *Tree) Depth() int {
	var walk func(i int) int
	walk = func(i int) int {
		n := t.Nodes[i]
		if n.Feature < 0 {
			return 0
		}
		l, r := walk(n.Left), walk(n.Right)
		if l > r {
			return l + 1
		}
		return r + 1
	}
	if len(t.Nodes) == 0 {
		return 0
	}
	return walk(0)
}

// TreeParams bounds tree growth.
type TreeParams struct {
	MaxDepth        int // 0 means unlimited
	MinSamplesSplit int
	MinSamplesLeaf  int
	MaxFeatures     int // features tried per split; 0 means all
}

// treeBuilder grows CART trees minimising squared error. For 0/1 targets
// this is the Gini criterion up to a constant factor.
type treeBuilder struct {
	X      [][]float64
	y      []float64
	params TreeParams
	rng    *rand.Rand
	// leaf computes a leaf value; nil means the target mean.
	leaf func(idx []int) float64
	// importance accumulates the weighted impurity decrease per feature.
	importance []float64
}

func newTreeBuilder(X [][]float64, y []float64, params TreeParams, rng *rand.Rand) *treeBuilder {
	if params.MinSamplesSplit < 2 {
		params.MinSamplesSplit = 2
	}
	if params.MinSamplesLeaf < 1 {
		params.MinSamplesLeaf = 1
	}
	nf := 0
	if len(X) > 0 {
		nf = len(X[0])
	}
	return &treeBuilder{X: X, y: y, params: params, rng: rng, importance: make([]float64, nf)}
}

func (b *treeBuilder) build(idx []int) Tree {
	t := Tree{}
	b.grow(&t, idx, 0)
	return t
}

func (b *treeBuilder) grow(t *Tree, idx []int, depth int) int {
	id := len(t.Nodes)
	t.Nodes = append(t.Nodes, Node{Feature: -1, Samples: len(idx)})

	sum, sq := b.moments(idx)
	n := float64(len(idx))
	sse := sq - sum*sum/n

	canSplit := len(idx) >= b.params.MinSamplesSplit &&
		len(idx) >= 2*b.params.MinSamplesLeaf &&
		(b.params.MaxDepth <= 0 || depth < b.params.MaxDepth) &&
		sse > 1e-12
	if canSplit {
		if f, thr, gain, ok := b.bestSplit(idx, sse); ok {
			var left, right []int
			for _, i := range idx {
				if b.X[i][f] <= thr {
					left = append(left, i)
				} else {
					right = append(right, i)
				}
			}
			b.importance[f] += gain
			l := b.grow(t, left, depth+1)
			r := b.grow(t, right, depth+1)
			t.Nodes[id].Feature = f
			t.Nodes[id].Threshold = thr
			t.Nodes[id].Left = l
			t.Nodes[id].Right = r
			return id
		}
	}

	if b.leaf != nil {
		t.Nodes[id].Value = b.leaf(idx)
	} else {
		t.Nodes[id].Value = sum / n
	}
	return id
}

func (b *treeBuilder) moments(idx []int) (sum, sq float64) {
	for _, i := range idx {
		sum += b.y[i]
		sq += b.y[i] * b.y[i]
	}
	return sum, sq
}

// candidates returns the features to try at one node.
func (b *treeBuilder) candidates() []int {
	nf := len(b.importance)
	k := b.params.MaxFeatures
	if k <= 0 || k >= nf {
		all := make([]int, nf)
		for i := range all {
			all[i] = i
		}
		return all
	}
	return b.rng.Perm(nf)[:k]
}

func (b *treeBuilder) bestSplit(idx []int, parentSSE float64) (feature int, threshold, gain float64, ok bool) {
	minLeaf := b.params.MinSamplesLeaf
	order := make([]int, len(idx))
	best := 0.0

	for _, f := range b.candidates() {
		copy(order, idx)
		sort.Slice(order, func(a, c int) bool { return less(b.X[order[a]][f], b.X[order[c]][f]) })

		total, totalSq := b.moments(order)
		var lSum, lSq float64
		for k := 0; k < len(order)-1; k++ {
			y := b.y[order[k]]
			lSum += y
			lSq += y * y

			nl := k + 1
			nr := len(order) - nl
			if nl < minLeaf || nr < minLeaf {
				continue
			}
			cur, next := b.X[order[k]][f], b.X[order[k+1]][f]
			if math.IsNaN(cur) || cur == next {
				continue
			}
			rSum, rSq := total-lSum, totalSq-lSq
			sse := (lSq - lSum*lSum/float64(nl)) + (rSq - rSum*rSum/float64(nr))
			if g := parentSSE - sse; g > best+1e-12 {
				best = g
				feature = f
				if math.IsNaN(next) {
					threshold = cur
				} else if threshold = cur + (next-cur)/2; threshold >= next {
					threshold = cur
				}
				ok = true
			}
		}
	}
	return feature, threshold, best, ok
}

// less orders NaN after every number.
func less(a, b float64) bool {
	if math.IsNaN(a) {
		return false
	}
	if math.IsNaN(b) {
		return true
	}
	return a < b
}

// normalize scales v to sum to one; an all-zero vector is returned as is.
func normalize(v []float64) []float64 {
	out := make([]float64, len(v))
	var sum float64
	for _, x := range v {
		sum += x
	}
	if sum == 0 {
		return out
	}
	for i, x := range v {
		out[i] = x / sum
	}
	return out
}
