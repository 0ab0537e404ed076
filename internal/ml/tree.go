package ml

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
)

var (
	ErrEmptyDataset    = errors.New("empty training set")
	ErrShapeMismatch   = errors.New("feature matrix shape mismatch")
	ErrInvalidFeature  = errors.New("feature value is not finite")
	ErrInvalidModel    = errors.New("invalid model")
	ErrUnsupportedBlob = errors.New("unsupported model format")
)

// Classifier predicts an integer class for every row of a feature matrix.
type Classifier interface {
	Predict(rows [][]float64) ([]int, error)
}

type Params struct {
	MaxDepth int
	Seed     uint64
	// Balanced weights every sample by n / (classes * count(class)).
	Balanced bool
}

func DefaultParams() Params {
	return Params{MaxDepth: 3, Seed: 42, Balanced: true}
}

// Node is either a leaf carrying Class or a split sending rows with
// row[Feature] <= Threshold to Left and the rest to Right.
type Node struct {
	Leaf      bool    `json:"leaf,omitempty"`
	Class     int     `json:"class,omitempty"`
	Feature   int     `json:"feature,omitempty"`
	Threshold float64 `json:"threshold,omitempty"`
	Left      *Node   `json:"left,omitempty"`
	Right     *Node   `json:"right,omitempty"`
}

// DecisionTree is a shallow CART classifier using weighted Gini impurity.
type DecisionTree struct {
	Classes     []int `json:"classes"`
	NumFeatures int   `json:"num_features"`
	MaxDepth    int   `json:"max_depth"`
	Root        *Node `json:"root"`
}

type trainer struct {
	rows    [][]float64
	labels  []int // index into classes
	weights []float64
	classes []int
	params  Params
	rng     *rand.Rand
}

// Fit trains a tree on rows and labels. Identical inputs and params always
// produce an identical tree.
func Fit(rows [][]float64, labels []int, params Params) (*DecisionTree, error) {
	if len(rows) == 0 {
		return nil, ErrEmptyDataset
	}
	if len(rows) != len(labels) {
		return nil, fmt.Errorf("%w: %d rows, %d labels", ErrShapeMismatch, len(rows), len(labels))
	}
	width := len(rows[0])
	if width == 0 {
		return nil, fmt.Errorf("%w: rows have no features", ErrShapeMismatch)
	}
	for i, row := range rows {
		if len(row) != width {
			return nil, fmt.Errorf("%w: row %d has %d features, want %d", ErrShapeMismatch, i, len(row), width)
		}
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("%w: row %d feature %d", ErrInvalidFeature, i, j)
			}
		}
	}
	if params.MaxDepth <= 0 {
		params.MaxDepth = DefaultParams().MaxDepth
	}

	classes := distinctSorted(labels)
	position := make(map[int]int, len(classes))
	for i, c := range classes {
		position[c] = i
	}
	encoded := make([]int, len(labels))
	for i, l := range labels {
		encoded[i] = position[l]
	}

	t := &trainer{
		rows:    rows,
		labels:  encoded,
		classes: classes,
		params:  params,
		rng:     rand.New(rand.NewPCG(params.Seed, params.Seed)),
	}
	t.weights = t.sampleWeights()

	indices := make([]int, len(rows))
	for i := range indices {
		indices[i] = i
	}

	return &DecisionTree{
		Classes:     classes,
		NumFeatures: width,
		MaxDepth:    params.MaxDepth,
		Root:        t.build(indices, 0),
	}, nil
}

func (t *trainer) sampleWeights() []float64 {
	weights := make([]float64, len(t.labels))
	if !t.params.Balanced {
		for i := range weights {
			weights[i] = 1
		}
		return weights
	}

	counts := make([]int, len(t.classes))
	for _, label := range t.labels {
		counts[label]++
	}
	n := float64(len(t.labels))
	k := float64(len(t.classes))
	for i, label := range t.labels {
		weights[i] = n / (k * float64(counts[label]))
	}
	return weights
}

func (t *trainer) build(indices []int, depth int) *Node {
	counts := t.classWeights(indices)
	leaf := &Node{Leaf: true, Class: t.classes[argmax(counts)]}

	if depth >= t.params.MaxDepth || len(indices) < 2 || isPure(counts) {
		return leaf
	}

	feature, threshold, ok := t.bestSplit(indices, counts)
	if !ok {
		return leaf
	}

	var left, right []int
	for _, idx := range indices {
		if t.rows[idx][feature] <= threshold {
			left = append(left, idx)
		} else {
			right = append(right, idx)
		}
	}

	return &Node{
		Feature:   feature,
		Threshold: threshold,
		Left:      t.build(left, depth+1),
		Right:     t.build(right, depth+1),
	}
}

// bestSplit scans features in a seeded random order; on equal gain the
// first feature visited wins.
func (t *trainer) bestSplit(indices []int, parent []float64) (int, float64, bool) {
	parentWeight := sum(parent)
	parentImpurity := gini(parent, parentWeight)

	bestGain := 0.0
	bestFeature, bestThreshold := -1, 0.0

	sorted := make([]int, len(indices))
	left := make([]float64, len(t.classes))
	right := make([]float64, len(t.classes))

	for _, feature := range t.rng.Perm(len(t.rows[0])) {
		copy(sorted, indices)
		sort.SliceStable(sorted, func(a, b int) bool {
			return t.rows[sorted[a]][feature] < t.rows[sorted[b]][feature]
		})

		for c := range left {
			left[c] = 0
		}
		copy(right, parent)
		leftWeight, rightWeight := 0.0, parentWeight

		for i := 0; i < len(sorted)-1; i++ {
			idx := sorted[i]
			w := t.weights[idx]
			left[t.labels[idx]] += w
			right[t.labels[idx]] -= w
			leftWeight += w
			rightWeight -= w

			current := t.rows[idx][feature]
			next := t.rows[sorted[i+1]][feature]
			if current == next {
				continue
			}

			children := (leftWeight*gini(left, leftWeight) + rightWeight*gini(right, rightWeight)) / parentWeight
			gain := parentImpurity - children
			if gain > bestGain+1e-12 {
				bestGain = gain
				bestFeature = feature
				bestThreshold = current + (next-current)/2
			}
		}
	}

	return bestFeature, bestThreshold, bestFeature >= 0
}

func (t *trainer) classWeights(indices []int) []float64 {
	counts := make([]float64, len(t.classes))
	for _, idx := range indices {
		counts[t.labels[idx]] += t.weights[idx]
	}
	return counts
}

// Predict classifies every row. Rows must have the width the tree was
// trained on.
func (dt *DecisionTree) Predict(rows [][]float64) ([]int, error) {
	if dt == nil || dt.Root == nil {
		return nil, ErrInvalidModel
	}
	out := make([]int, len(rows))
	for i, row := range rows {
		if len(row) != dt.NumFeatures {
			return nil, fmt.Errorf("%w: row %d has %d features, want %d", ErrShapeMismatch, i, len(row), dt.NumFeatures)
		}
		node := dt.Root
		for !node.Leaf {
			if row[node.Feature] <= node.Threshold {
				node = node.Left
			} else {
				node = node.Right
			}
		}
		out[i] = node.Class
	}
	return out, nil
}

// Depth returns the number of split levels below the root.
func (dt *DecisionTree) Depth() int {
	return depthOf(dt.Root)
}

func depthOf(n *Node) int {
	if n == nil || n.Leaf {
		return 0
	}
	l, r := depthOf(n.Left), depthOf(n.Right)
	if l > r {
		return l + 1
	}
	return r + 1
}

func gini(counts []float64, weight float64) float64 {
	if weight <= 0 {
		return 0
	}
	impurity := 1.0
	for _, w := range counts {
		p := w / weight
		impurity -= p * p
	}
	return impurity
}

func sum(counts []float64) float64 {
	total := 0.0
	for _, w := range counts {
		total += w
	}
	return total
}

// argmax returns the heaviest position; ties go to the lowest position,
// which is the smallest class.
func argmax(counts []float64) int {
	best := 0
	for i := 1; i < len(counts); i++ {
		if counts[i] > counts[best]+1e-12 {
			best = i
		}
	}
	return best
}

func isPure(counts []float64) bool {
	nonZero := 0
	for _, w := range counts {
		if w > 1e-12 {
			nonZero++
		}
	}
	return nonZero <= 1
}

func distinctSorted(labels []int) []int {
	seen := make(map[int]struct{}, len(labels))
	var out []int
	for _, l := range labels {
		if _, ok := seen[l]; !ok {
			seen[l] = struct{}{}
			out = append(out, l)
		}
	}
	sort.Ints(out)
	return out
}
