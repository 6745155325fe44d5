package preprocess

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFit(t *testing.T) {
	tests := []struct {
		name      string
		data      [][]float64
		wantErr   bool
		wantMean  []float64
		wantScale []float64
	}{
		{
			name:    "empty data",
			data:    [][]float64{},
			wantErr: true,
		},
		{
			name:    "ragged rows",
			data:    [][]float64{{1, 2}, {3}},
			wantErr: true,
		},
		{
			name:      "two columns",
			data:      [][]float64{{1, 10}, {3, 10}, {5, 10}},
			wantMean:  []float64{3, 10},
			wantScale: []float64{1.632993161855452, 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Fit(tt.data)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDeltaSlice(t, tt.wantMean, s.Mean, 1e-9)
			assert.InDeltaSlice(t, tt.wantScale, s.Scale, 1e-9)
		})
	}
}

func TestTransformZeroMeanUnitVariance(t *testing.T) {
	data := [][]float64{{2, 100}, {4, 200}, {6, 300}, {8, 400}}
	s, scaled, err := FitTransform(data)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Features())

	for j := 0; j < 2; j++ {
		var sum, sumSq float64
		for _, row := range scaled {
			sum += row[j]
			sumSq += row[j] * row[j]
		}
		assert.InDelta(t, 0.0, sum/float64(len(scaled)), 1e-9)
		assert.InDelta(t, 1.0, sumSq/float64(len(scaled)), 1e-9)
	}
}

func TestInverseTransform(t *testing.T) {
	data := [][]float64{{1, -5}, {7, 3}, {4, 12}}
	s, scaled, err := FitTransform(data)
	require.NoError(t, err)

	back := s.InverseTransform(scaled)
	for i := range data {
		assert.InDeltaSlice(t, data[i], back[i], 1e-9)
	}
}

func TestTransformDoesNotAlias(t *testing.T) {
	data := [][]float64{{1, 2}, {3, 4}}
	_, scaled, err := FitTransform(data)
	require.NoError(t, err)

	scaled[0][0] = 99
	assert.Equal(t, 1.0, data[0][0])
}
