// Package preprocess provides the feature standardization shared by every
// distance- and split-based detector.
package preprocess

import (
	"errors"
	"fmt"
	"math"

	"github.com/montanaflynn/stats"
)

// Scaler standardizes columns to zero mean and unit variance.
type Scaler struct {
	Mean  []float64
	Scale []float64
}

// Fit computes per-column mean and population standard deviation.
// Columns with zero variance get a scale of 1 so they map to 0.
func Fit(data [][]float64) (*Scaler, error) {
	if len(data) == 0 {
		return nil, errors.New("empty data")
	}

	nFeatures := len(data[0])
	s := &Scaler{
		Mean:  make([]float64, nFeatures),
		Scale: make([]float64, nFeatures),
	}

	col := make([]float64, len(data))
	for j := 0; j < nFeatures; j++ {
		for i, row := range data {
			if len(row) != nFeatures {
				return nil, fmt.Errorf("row %d has %d features, want %d", i, len(row), nFeatures)
			}
			col[i] = row[j]
		}

		mean, err := stats.Mean(col)
		if err != nil {
			return nil, err
		}
		sd, err := stats.StandardDeviationPopulation(col)
		if err != nil {
			return nil, err
		}
		if sd == 0 || math.IsNaN(sd) {
			sd = 1
		}
		s.Mean[j] = mean
		s.Scale[j] = sd
	}

	return s, nil
}

// FitTransform fits a Scaler and returns the standardized copy of data.
func FitTransform(data [][]float64) (*Scaler, [][]float64, error) {
	s, err := Fit(data)
	if err != nil {
		return nil, nil, err
	}
	return s, s.Transform(data), nil
}

// Transform returns a standardized copy of data.
func (s *Scaler) Transform(data [][]float64) [][]float64 {
	out := make([][]float64, len(data))
	for i, row := range data {
		out[i] = make([]float64, len(row))
		for j, v := range row {
			out[i][j] = s.ZScore(j, v)
		}
	}
	return out
}

// InverseTransform maps standardized rows back to original units.
func (s *Scaler) InverseTransform(data [][]float64) [][]float64 {
	out := make([][]float64, len(data))
	for i, row := range data {
		out[i] = make([]float64, len(row))
		for j, v := range row {
			out[i][j] = v*s.Scale[j] + s.Mean[j]
		}
	}
	return out
}

// ZScore standardizes a single value of column j.
func (s *Scaler) ZScore(j int, v float64) float64 {
	return (v - s.Mean[j]) / s.Scale[j]
}

// Features returns the number of columns the scaler was fitted on.
func (s *Scaler) Features() int {
	return len(s.Mean)
}
