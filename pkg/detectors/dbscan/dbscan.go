// Package dbscan implements density-based spatial clustering. Points outside
// every dense region are labeled as noise and treated as anomalies.
package dbscan

import (
	"errors"
	"math"

	"github.com/hed1ad/custguard/pkg/detectors"
)

const unvisited = -2

// DBSCAN clusters samples by neighborhood density using Euclidean distance.
type DBSCAN struct {
	eps        float64
	minSamples int
}

// Option configures a DBSCAN.
type Option func(*DBSCAN)

// WithEps sets the neighborhood radius.
func WithEps(eps float64) Option {
	return func(d *DBSCAN) {
		d.eps = eps
	}
}

// WithMinSamples sets the number of samples, the point itself included,
// a neighborhood needs for its center to be a core point.
func WithMinSamples(n int) Option {
	return func(d *DBSCAN) {
		d.minSamples = n
	}
}

// New creates a DBSCAN with eps 0.5 and min samples 5 unless overridden.
func New(opts ...Option) *DBSCAN {
	d := &DBSCAN{
		eps:        0.5,
		minSamples: 5,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

var _ detectors.Clusterer = (*DBSCAN)(nil)

// FitPredict returns a cluster label per sample, or detectors.Noise.
// Cluster ids start at 0 in discovery order, so the output is deterministic
// for a given input order.
func (d *DBSCAN) FitPredict(data [][]float64) ([]int, error) {
	if d.eps <= 0 {
		return nil, errors.New("eps must be positive")
	}
	if d.minSamples < 1 {
		return nil, errors.New("min samples must be at least 1")
	}

	labels := make([]int, len(data))
	for i := range labels {
		labels[i] = unvisited
	}

	cluster := 0
	for i := range data {
		if labels[i] != unvisited {
			continue
		}

		neighbors := d.regionQuery(data, i)
		if len(neighbors) < d.minSamples {
			labels[i] = detectors.Noise
			continue
		}

		labels[i] = cluster
		queue := append([]int(nil), neighbors...)
		for len(queue) > 0 {
			j := queue[0]
			queue = queue[1:]

			if labels[j] == detectors.Noise {
				// border point reached from a core point
				labels[j] = cluster
			}
			if labels[j] != unvisited {
				continue
			}
			labels[j] = cluster

			jNeighbors := d.regionQuery(data, j)
			if len(jNeighbors) >= d.minSamples {
				queue = append(queue, jNeighbors...)
			}
		}
		cluster++
	}

	return labels, nil
}

// regionQuery returns the indices within eps of data[i], i included.
func (d *DBSCAN) regionQuery(data [][]float64, i int) []int {
	var out []int
	for j := range data {
		if distance(data[i], data[j]) <= d.eps {
			out = append(out, j)
		}
	}
	return out
}

func distance(a, b []float64) float64 {
	var sum float64
	for k := range a {
		diff := a[k] - b[k]
		sum += diff * diff
	}
	return math.Sqrt(sum)
}
