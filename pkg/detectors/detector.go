// Package detectors provides unsupervised anomaly detection algorithms.
package detectors

// Noise is the cluster label assigned to points that belong to no cluster.
const Noise = -1

// Detector is the common interface for score-based anomaly detectors.
type Detector interface {
	// Fit trains the detector on historical data.
	// data is a 2D slice where each row is a sample and each column is a feature.
	Fit(data [][]float64) error

	// Predict returns anomaly scores for the given samples.
	// Scores are normalized to [0, 1] where higher values indicate anomalies.
	Predict(data [][]float64) ([]float64, error)

	// PredictOne returns the anomaly score for a single sample.
	PredictOne(sample []float64) (float64, error)
}

// Clusterer assigns every sample to a cluster in a single pass.
type Clusterer interface {
	// FitPredict returns one cluster label per sample. Density based
	// algorithms use Noise for unclustered samples.
	FitPredict(data [][]float64) ([]int, error)
}

// Score represents an anomaly detection result.
type Score struct {
	// Value is the anomaly score in [0, 1].
	Value float64
	// Decision is Threshold - Value; lower means more anomalous. Anomalies
	// have Decision <= 0. Rows tied at exactly zero may fall on either
	// side, IsAnomaly decides.
	Decision float64
	// IsAnomaly is the label.
	IsAnomaly bool
}

// Config holds common configuration for detectors.
type Config struct {
	// Contamination is the expected proportion of anomalies in training data.
	Contamination float64
	// RandomSeed for reproducibility.
	RandomSeed int64
}

// DefaultConfig returns sensible defaults for detector configuration.
func DefaultConfig() Config {
	return Config{
		Contamination: 0.05,
		RandomSeed:    42,
	}
}
