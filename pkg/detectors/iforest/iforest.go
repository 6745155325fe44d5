// Package iforest implements the Isolation Forest algorithm for anomaly detection.
package iforest

import (
	"errors"
	"math"
	"math/rand"
	"sort"
	"sync"

	"github.com/hed1ad/custguard/pkg/detectors"
)

// IsolationForest implements unsupervised anomaly detection using isolation trees.
type IsolationForest struct {
	mu sync.RWMutex

	// Configuration
	nTrees        int
	sampleSize    int
	contamination float64
	threshold     float64
	seed          int64

	// Trained model
	trees    []*iTree
	trained  bool
	maxDepth int

	// Statistics from training
	avgPathLength float64
}

// iTree represents a single isolation tree.
type iTree struct {
	root *node
}

// node is a node in the isolation tree.
type node struct {
	// Split parameters (for internal nodes)
	splitFeature int
	splitValue   float64

	// Children
	left  *node
	right *node

	// Leaf information
	size int // number of samples that reached this leaf
}

// Option configures an IsolationForest.
type Option func(*IsolationForest)

// WithTrees sets the number of isolation trees.
func WithTrees(n int) Option {
	return func(f *IsolationForest) {
		f.nTrees = n
	}
}

// WithSampleSize sets the subsample size for each tree.
func WithSampleSize(n int) Option {
	return func(f *IsolationForest) {
		f.sampleSize = n
	}
}

// WithContamination sets the expected proportion of anomalies.
func WithContamination(c float64) Option {
	return func(f *IsolationForest) {
		f.contamination = c
	}
}

// WithSeed sets the random seed for reproducibility.
func WithSeed(seed int64) Option {
	return func(f *IsolationForest) {
		f.seed = seed
	}
}

// WithConfig applies the shared detector configuration.
func WithConfig(cfg detectors.Config) Option {
	return func(f *IsolationForest) {
		f.contamination = cfg.Contamination
		f.seed = cfg.RandomSeed
	}
}

// New creates a new IsolationForest with the given options.
func New(opts ...Option) *IsolationForest {
	def := detectors.DefaultConfig()
	f := &IsolationForest{
		nTrees:        100,
		sampleSize:    256,
		contamination: def.Contamination,
		threshold:     0.5,
		seed:          def.RandomSeed,
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

var _ detectors.Detector = (*IsolationForest)(nil)

// Fit trains the Isolation Forest on the provided data.
// The random source is reseeded on every call, so fitting the same data
// twice yields the same forest.
func (f *IsolationForest) Fit(data [][]float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	_, err := f.fit(data)
	return err
}

// FitEvaluate trains on data and labels the same rows by rank: the
// ceil(contamination*n) highest scores are anomalies, ties broken by input
// order. The threshold becomes the lowest flagged score, so Decision is
// <= 0 for every anomaly and >= 0 for every normal row. With zero
// contamination nothing is flagged.
func (f *IsolationForest) FitEvaluate(data [][]float64) ([]detectors.Score, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	scores, err := f.fit(data)
	if err != nil {
		return nil, err
	}

	out := make([]detectors.Score, len(scores))
	for i, v := range scores {
		out[i] = detectors.Score{Value: v, Decision: f.threshold - v}
	}
	for _, i := range topRanked(scores, anomalyCount(len(scores), f.contamination)) {
		out[i].IsAnomaly = true
	}
	return out, nil
}

func (f *IsolationForest) fit(data [][]float64) ([]float64, error) {
	if len(data) == 0 {
		return nil, errors.New("empty training data")
	}
	if f.nTrees <= 0 {
		return nil, errors.New("number of trees must be positive")
	}
	if f.contamination < 0 || f.contamination >= 1 {
		return nil, errors.New("contamination must be in [0, 1)")
	}

	rng := rand.New(rand.NewSource(f.seed))
	nSamples := len(data)
	nFeatures := len(data[0])

	// Adjust sample size if needed
	sampleSize := f.sampleSize
	if sampleSize <= 0 || sampleSize > nSamples {
		sampleSize = nSamples
	}
	f.maxDepth = int(math.Ceil(math.Log2(float64(sampleSize))))

	// Build trees
	f.trees = make([]*iTree, f.nTrees)
	for i := 0; i < f.nTrees; i++ {
		// Sample without replacement
		indices := rng.Perm(nSamples)[:sampleSize]
		sample := make([][]float64, sampleSize)
		for j, idx := range indices {
			sample[j] = data[idx]
		}

		f.trees[i] = &iTree{root: f.buildNode(rng, sample, nFeatures, 0)}
	}

	// Calculate average path length for normalization
	f.avgPathLength = averagePathLength(float64(sampleSize))
	if f.avgPathLength == 0 {
		f.avgPathLength = 1
	}
	f.trained = true

	// Set threshold based on contamination
	scores := f.predict(data)
	if f.contamination > 0 {
		top := topRanked(scores, anomalyCount(len(scores), f.contamination))
		f.threshold = scores[top[len(top)-1]]
	}

	return scores, nil
}

func (f *IsolationForest) buildNode(rng *rand.Rand, data [][]float64, nFeatures, depth int) *node {
	n := len(data)

	// Terminal conditions
	if depth >= f.maxDepth || n <= 1 {
		return &node{size: n}
	}

	// Random feature and split value
	feature := rng.Intn(nFeatures)

	// Find min/max for this feature
	minVal, maxVal := data[0][feature], data[0][feature]
	for _, row := range data[1:] {
		if row[feature] < minVal {
			minVal = row[feature]
		}
		if row[feature] > maxVal {
			maxVal = row[feature]
		}
	}

	// If all values are the same, return leaf
	if minVal == maxVal {
		return &node{size: n}
	}

	// Random split value
	splitValue := minVal + rng.Float64()*(maxVal-minVal)

	// Partition data
	var leftData, rightData [][]float64
	for _, row := range data {
		if row[feature] < splitValue {
			leftData = append(leftData, row)
		} else {
			rightData = append(rightData, row)
		}
	}

	return &node{
		splitFeature: feature,
		splitValue:   splitValue,
		left:         f.buildNode(rng, leftData, nFeatures, depth+1),
		right:        f.buildNode(rng, rightData, nFeatures, depth+1),
	}
}

// Predict returns anomaly scores for the given samples.
func (f *IsolationForest) Predict(data [][]float64) ([]float64, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if !f.trained {
		return nil, errors.New("model not trained")
	}

	return f.predict(data), nil
}

func (f *IsolationForest) predict(data [][]float64) []float64 {
	scores := make([]float64, len(data))
	for i, sample := range data {
		scores[i] = f.predictOne(sample)
	}
	return scores
}

// PredictOne returns the anomaly score for a single sample.
func (f *IsolationForest) PredictOne(sample []float64) (float64, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if !f.trained {
		return 0, errors.New("model not trained")
	}

	return f.predictOne(sample), nil
}

func (f *IsolationForest) predictOne(sample []float64) float64 {
	// Average path length across all trees
	var totalPath float64
	for _, tree := range f.trees {
		totalPath += pathLength(sample, tree.root, 0)
	}
	avgPath := totalPath / float64(len(f.trees))

	// Anomaly score: 2^(-avgPath / c(n))
	// Higher score = more anomalous
	return math.Pow(2, -avgPath/f.avgPathLength)
}

// Evaluate scores the samples and labels them against the fitted threshold.
// Use FitEvaluate to label the training rows themselves.
func (f *IsolationForest) Evaluate(data [][]float64) ([]detectors.Score, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if !f.trained {
		return nil, errors.New("model not trained")
	}

	out := make([]detectors.Score, len(data))
	for i, sample := range data {
		v := f.predictOne(sample)
		out[i] = detectors.Score{
			Value:     v,
			Decision:  f.threshold - v,
			IsAnomaly: v >= f.threshold,
		}
	}
	return out, nil
}

// pathLength calculates the path length for a sample in a tree.
func pathLength(sample []float64, n *node, currentDepth int) float64 {
	if n.left == nil && n.right == nil {
		// Leaf node: add expected path length for remaining isolation
		return float64(currentDepth) + averagePathLength(float64(n.size))
	}

	if sample[n.splitFeature] < n.splitValue {
		return pathLength(sample, n.left, currentDepth+1)
	}
	return pathLength(sample, n.right, currentDepth+1)
}

// averagePathLength returns the average path length of unsuccessful search in BST.
func averagePathLength(n float64) float64 {
	if n <= 1 {
		return 0
	}
	if n == 2 {
		return 1
	}
	// c(n) = 2*H(n-1) - 2*(n-1)/n, where H is harmonic number
	// Approximation: H(n) ~ ln(n) + 0.5772156649 (Euler-Mascheroni constant)
	return 2*(math.Log(n-1)+0.5772156649) - 2*(n-1)/n
}

// Threshold returns the current anomaly threshold.
func (f *IsolationForest) Threshold() float64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.threshold
}

// SetThreshold updates the anomaly threshold.
func (f *IsolationForest) SetThreshold(t float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.threshold = t
}

// anomalyCount is the number of rows a contamination fraction flags out
// of n: ceil(c*n), at least one when c > 0.
func anomalyCount(n int, c float64) int {
	if n == 0 || c <= 0 {
		return 0
	}
	// absorb float error such as 0.07*100 = 7.000000000000001
	k := int(math.Ceil(c*float64(n) - 1e-9))
	if k < 1 {
		k = 1
	}
	if k > n {
		k = n
	}
	return k
}

// topRanked returns the indices of the k highest scores, highest first.
// Equal scores keep input order.
func topRanked(scores []float64, k int) []int {
	idx := make([]int, len(scores))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return scores[idx[a]] > scores[idx[b]] })
	return idx[:k]
}
