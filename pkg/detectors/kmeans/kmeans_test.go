package kmeans

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFitPredictSeparatesBlobs(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	centers := [][]float64{{0, 0}, {20, 20}, {-20, 20}}

	var data [][]float64
	var truth []int
	for c, center := range centers {
		for i := 0; i < 30; i++ {
			data = append(data, []float64{
				center[0] + rng.NormFloat64(),
				center[1] + rng.NormFloat64(),
			})
			truth = append(truth, c)
		}
	}

	m := New(3, WithSeed(42))
	labels, err := m.FitPredict(data)
	require.NoError(t, err)
	require.Len(t, labels, len(data))

	// every true blob maps onto exactly one predicted cluster
	mapping := map[int]int{}
	for i, l := range labels {
		if want, ok := mapping[truth[i]]; ok {
			assert.Equal(t, want, l)
		} else {
			mapping[truth[i]] = l
		}
	}
	assert.Len(t, mapping, 3)

	centroids := m.Centroids()
	require.Len(t, centroids, 3)
	for c, center := range centers {
		got := centroids[mapping[c]]
		assert.InDelta(t, center[0], got[0], 1)
		assert.InDelta(t, center[1], got[1], 1)
	}
	assert.Greater(t, m.Inertia(), 0.0)
}

func TestFitPredictErrors(t *testing.T) {
	tests := []struct {
		name string
		k    int
		data [][]float64
	}{
		{name: "zero k", k: 0, data: [][]float64{{1}}},
		{name: "fewer samples than k", k: 3, data: [][]float64{{1}, {2}}},
		{name: "fewer distinct samples than k", k: 3, data: [][]float64{{1, 1}, {1, 1}, {1, 1}, {2, 2}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.k).FitPredict(tt.data)
			assert.Error(t, err)
		})
	}
}

func TestFitPredictDeterministic(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	data := make([][]float64, 60)
	for i := range data {
		data[i] = []float64{rng.Float64() * 10, rng.Float64() * 10}
	}

	a, err := New(4, WithSeed(1)).FitPredict(data)
	require.NoError(t, err)
	b, err := New(4, WithSeed(1)).FitPredict(data)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestIdenticalPoints(t *testing.T) {
	data := [][]float64{{1, 1}, {1, 1}, {1, 1}}
	labels, err := New(2, WithInit(1)).FitPredict(data)
	require.NoError(t, err)
	assert.Len(t, labels, 3)
}

func TestDistinct(t *testing.T) {
	assert.Equal(t, 0, Distinct(nil))
	assert.Equal(t, 1, Distinct([][]float64{{1, 2}, {1, 2}, {1, 2}}))
	assert.Equal(t, 2, Distinct([][]float64{{0, 1}, {1, 0}}))
	assert.Equal(t, 1, Distinct([][]float64{{0}, {math.Copysign(0, -1)}}))
}
