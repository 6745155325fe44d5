// Package kmeans implements centroid-based clustering with k-means++ seeding.
package kmeans

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"strings"

	"github.com/hed1ad/custguard/pkg/detectors"
)

// KMeans partitions samples into k groups by iterative centroid refinement.
type KMeans struct {
	k       int
	nInit   int
	maxIter int
	tol     float64
	seed    int64

	centroids [][]float64
	inertia   float64
}

// Option configures a KMeans.
type Option func(*KMeans)

// WithInit sets how many seeded restarts are run; the lowest inertia wins.
func WithInit(n int) Option {
	return func(m *KMeans) {
		m.nInit = n
	}
}

// WithMaxIter bounds the refinement iterations of a single run.
func WithMaxIter(n int) Option {
	return func(m *KMeans) {
		m.maxIter = n
	}
}

// WithSeed sets the random seed for reproducibility.
func WithSeed(seed int64) Option {
	return func(m *KMeans) {
		m.seed = seed
	}
}

// New creates a KMeans for k clusters.
func New(k int, opts ...Option) *KMeans {
	m := &KMeans{
		k:       k,
		nInit:   10,
		maxIter: 300,
		tol:     1e-4,
		seed:    detectors.DefaultConfig().RandomSeed,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

var _ detectors.Clusterer = (*KMeans)(nil)

// FitPredict clusters data and returns the cluster index of every sample.
func (m *KMeans) FitPredict(data [][]float64) ([]int, error) {
	if m.k <= 0 {
		return nil, errors.New("k must be positive")
	}
	if len(data) < m.k {
		return nil, fmt.Errorf("need at least %d samples, got %d", m.k, len(data))
	}
	if d := Distinct(data); d < m.k {
		return nil, fmt.Errorf("need at least %d distinct samples, got %d", m.k, d)
	}

	rng := rand.New(rand.NewSource(m.seed))
	nInit := m.nInit
	if nInit <= 0 {
		nInit = 1
	}

	var bestLabels []int
	m.inertia = math.Inf(1)
	for run := 0; run < nInit; run++ {
		centroids := m.initCentroids(rng, data)
		labels, inertia := m.refine(rng, data, centroids)
		if inertia < m.inertia {
			m.inertia = inertia
			m.centroids = centroids
			bestLabels = labels
		}
	}

	return bestLabels, nil
}

// Centroids returns the fitted cluster centers.
func (m *KMeans) Centroids() [][]float64 {
	out := make([][]float64, len(m.centroids))
	for i, c := range m.centroids {
		out[i] = append([]float64(nil), c...)
	}
	return out
}

// Inertia returns the within-cluster sum of squared distances of the best run.
func (m *KMeans) Inertia() float64 {
	return m.inertia
}

// initCentroids picks starting centers with k-means++ weighting.
func (m *KMeans) initCentroids(rng *rand.Rand, data [][]float64) [][]float64 {
	centroids := make([][]float64, 0, m.k)
	centroids = append(centroids, clone(data[rng.Intn(len(data))]))

	dist := make([]float64, len(data))
	for len(centroids) < m.k {
		var total float64
		for i, p := range data {
			dist[i] = nearest(p, centroids).dist
			total += dist[i]
		}

		if total == 0 {
			// all points coincide with a center already
			centroids = append(centroids, clone(data[rng.Intn(len(data))]))
			continue
		}

		target := rng.Float64() * total
		idx := len(data) - 1
		for i, d := range dist {
			target -= d
			if target <= 0 {
				idx = i
				break
			}
		}
		centroids = append(centroids, clone(data[idx]))
	}
	return centroids
}

// refine runs Lloyd iterations in place on centroids.
func (m *KMeans) refine(rng *rand.Rand, data [][]float64, centroids [][]float64) ([]int, float64) {
	labels := make([]int, len(data))
	nFeatures := len(data[0])

	for iter := 0; iter < m.maxIter; iter++ {
		for i, p := range data {
			labels[i] = nearest(p, centroids).idx
		}

		sums := make([][]float64, m.k)
		counts := make([]int, m.k)
		for c := range sums {
			sums[c] = make([]float64, nFeatures)
		}
		for i, p := range data {
			counts[labels[i]]++
			for j, v := range p {
				sums[labels[i]][j] += v
			}
		}

		var shift float64
		for c := range centroids {
			next := sums[c]
			if counts[c] == 0 {
				// empty cluster: restart it on a random sample
				next = clone(data[rng.Intn(len(data))])
			} else {
				for j := range next {
					next[j] /= float64(counts[c])
				}
			}
			shift += sqDist(centroids[c], next)
			centroids[c] = next
		}

		if shift <= m.tol {
			break
		}
	}

	var inertia float64
	for i, p := range data {
		n := nearest(p, centroids)
		labels[i] = n.idx
		inertia += n.dist
	}
	return labels, inertia
}

// Distinct counts the distinct rows of data.
func Distinct(data [][]float64) int {
	seen := make(map[string]struct{}, len(data))
	var b strings.Builder
	for _, row := range data {
		b.Reset()
		for _, v := range row {
			if v == 0 {
				v = 0 // -0
			}
			b.WriteString(strconv.FormatUint(math.Float64bits(v), 16))
			b.WriteByte(',')
		}
		seen[b.String()] = struct{}{}
	}
	return len(seen)
}

type match struct {
	idx  int
	dist float64
}

func nearest(p []float64, centroids [][]float64) match {
	best := match{idx: 0, dist: math.Inf(1)}
	for c, centroid := range centroids {
		if d := sqDist(p, centroid); d < best.dist {
			best = match{idx: c, dist: d}
		}
	}
	return best
}

func sqDist(a, b []float64) float64 {
	var sum float64
	for k := range a {
		diff := a[k] - b[k]
		sum += diff * diff
	}
	return sum
}

func clone(v []float64) []float64 {
	return append([]float64(nil), v...)
}
