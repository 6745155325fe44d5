// Package anomaly flags customers and transactions whose behavior deviates
// from what is expected of them, and explains and groups the outliers.
//
// Every detector is a pure function of its inputs and parameters: inputs are
// copied on entry, nothing is cached between calls, and the randomized
// algorithms run from a fixed seed.
package anomaly

import (
	"fmt"
	"math"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/hed1ad/custguard/pkg/detectors"
	"github.com/hed1ad/custguard/pkg/detectors/dbscan"
	"github.com/hed1ad/custguard/pkg/detectors/iforest"
	"github.com/hed1ad/custguard/pkg/models"
	"github.com/hed1ad/custguard/pkg/preprocess"
)

var profileLog = logrus.WithField("component", "anomaly.Profile")

const minProfileFeatures = 2

// ProfileMethod selects the algorithm used by ProfileDetector. It is
// implemented by IsolationForestMethod and DBSCANMethod only.
type ProfileMethod interface {
	Name() string
	validate() error
	detect(scaled [][]float64) (methodOutput, error)
}

type methodOutput struct {
	labels   []models.Label
	scores   []float64 // nil when the method produces no score
	clusters []int     // nil when the method is not cluster based
}

// IsolationForestMethod scores customers with a seeded isolation forest.
type IsolationForestMethod struct {
	// Contamination is the expected anomalous fraction, in (0, 1).
	Contamination float64
	Seed          int64
	Trees         int
	SampleSize    int
}

// DefaultIsolationForest returns contamination 0.05 and seed 42.
func DefaultIsolationForest() IsolationForestMethod {
	return IsolationForestMethod{
		Contamination: 0.05,
		Seed:          detectors.DefaultConfig().RandomSeed,
		Trees:         100,
		SampleSize:    256,
	}
}

func (m IsolationForestMethod) Name() string { return "isolation_forest" }

func (m IsolationForestMethod) validate() error {
	if !(m.Contamination > 0 && m.Contamination < 1) {
		return &ConfigError{Param: "contamination", Value: m.Contamination, Range: "(0, 1)"}
	}
	if m.Trees < 0 {
		return &ConfigError{Param: "trees", Value: m.Trees, Range: "[1, inf)"}
	}
	if m.SampleSize < 0 {
		return &ConfigError{Param: "sample size", Value: m.SampleSize, Range: "[1, inf)"}
	}
	return nil
}

func (m IsolationForestMethod) detect(scaled [][]float64) (methodOutput, error) {
	scores, err := fitForest(scaled, m.Contamination, m.Seed, m.Trees, m.SampleSize)
	if err != nil {
		return methodOutput{}, err
	}

	out := methodOutput{
		labels: make([]models.Label, len(scores)),
		scores: make([]float64, len(scores)),
	}
	for i, s := range scores {
		out.scores[i] = s.Decision
		out.labels[i] = labelOf(s.IsAnomaly)
	}
	return out, nil
}

// DBSCANMethod labels customers outside every dense region as anomalous.
type DBSCANMethod struct {
	Eps        float64
	MinSamples int
}

// DefaultDBSCAN returns eps 0.5 and min samples 5.
func DefaultDBSCAN() DBSCANMethod {
	return DBSCANMethod{Eps: 0.5, MinSamples: 5}
}

func (m DBSCANMethod) Name() string { return "dbscan" }

func (m DBSCANMethod) validate() error {
	if !(m.Eps > 0) || math.IsInf(m.Eps, 0) {
		return &ConfigError{Param: "eps", Value: m.Eps, Range: "(0, inf)"}
	}
	if m.MinSamples < 2 {
		return &ConfigError{Param: "min_samples", Value: m.MinSamples, Range: "[2, inf)"}
	}
	return nil
}

func (m DBSCANMethod) detect(scaled [][]float64) (methodOutput, error) {
	clusters, err := dbscan.New(dbscan.WithEps(m.Eps), dbscan.WithMinSamples(m.MinSamples)).FitPredict(scaled)
	if err != nil {
		return methodOutput{}, err
	}

	out := methodOutput{
		labels:   make([]models.Label, len(clusters)),
		clusters: clusters,
	}
	for i, c := range clusters {
		out.labels[i] = labelOf(c == detectors.Noise)
	}
	return out, nil
}

// ProfileRow is one customer with its detection output.
type ProfileRow struct {
	models.Profile `yaml:",inline"`
	Label          models.Label `json:"label" yaml:"label"`
	// Score is set by the isolation forest only; lower is more anomalous.
	// Anomalies score <= 0 and normal rows >= 0.
	Score *float64 `json:"score,omitempty" yaml:"score,omitempty"`
	// Cluster is set by DBSCAN only; detectors.Noise marks anomalies.
	Cluster *int `json:"cluster,omitempty" yaml:"cluster,omitempty"`
}

// ProfileResult is the labeled profile table.
type ProfileResult struct {
	Method   string       `json:"method" yaml:"method"`
	Features []string     `json:"features" yaml:"features"`
	Rows     []ProfileRow `json:"rows" yaml:"rows"`
	// Scaler is the standardization fitted on Rows; nil for an empty table.
	Scaler *preprocess.Scaler `json:"-" yaml:"-"`
}

// Anomalous returns the anomalous rows, most anomalous first when scored.
func (r *ProfileResult) Anomalous() []ProfileRow {
	var out []ProfileRow
	for _, row := range r.Rows {
		if row.Label == models.Anomalous {
			out = append(out, row)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score == nil || out[j].Score == nil {
			return false
		}
		return *out[i].Score < *out[j].Score
	})
	return out
}

// AnomalousIDs returns the customer ids of the anomalous rows in input order.
func (r *ProfileResult) AnomalousIDs() []string {
	var ids []string
	for _, row := range r.Rows {
		if row.Label == models.Anomalous {
			ids = append(ids, row.CustomerID)
		}
	}
	return ids
}

// Count returns the number of anomalous rows.
func (r *ProfileResult) Count() int {
	n := 0
	for _, row := range r.Rows {
		if row.Label == models.Anomalous {
			n++
		}
	}
	return n
}

// ProfileDetector flags customers whose aggregate profile is atypical for
// the whole population.
type ProfileDetector struct {
	features []string
}

// ProfileOption configures a ProfileDetector.
type ProfileOption func(*ProfileDetector)

// WithFeatures sets the profile columns used for detection.
func WithFeatures(features ...string) ProfileOption {
	return func(d *ProfileDetector) {
		d.features = append([]string(nil), features...)
	}
}

// NewProfileDetector creates a detector over Recency, Frequency and Monetary
// unless WithFeatures says otherwise.
func NewProfileDetector(opts ...ProfileOption) *ProfileDetector {
	d := &ProfileDetector{features: append([]string(nil), models.RFMFeatures...)}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run labels every profile with method. The output has one row per input
// row, in input order.
func (d *ProfileDetector) Run(profiles []models.Profile, method ProfileMethod) (*ProfileResult, error) {
	if method == nil {
		return nil, &ConfigError{Param: "method", Value: nil, Range: "{isolation_forest, dbscan}"}
	}
	if err := method.validate(); err != nil {
		return nil, err
	}
	if len(d.features) < minProfileFeatures {
		return nil, &ConfigError{Param: "features", Value: d.features, Range: fmt.Sprintf("at least %d columns", minProfileFeatures)}
	}

	result := &ProfileResult{
		Method:   method.Name(),
		Features: append([]string(nil), d.features...),
		Rows:     make([]ProfileRow, 0, len(profiles)),
	}
	if len(profiles) == 0 {
		return result, nil
	}

	matrix, err := featureMatrix(profiles, d.features)
	if err != nil {
		return nil, err
	}
	scaler, scaled, err := preprocess.FitTransform(matrix)
	if err != nil {
		return nil, err
	}
	out, err := method.detect(scaled)
	if err != nil {
		return nil, err
	}

	for i, p := range profiles {
		row := ProfileRow{Profile: p.Clone(), Label: out.labels[i]}
		if out.scores != nil {
			score := out.scores[i]
			row.Score = &score
		}
		if out.clusters != nil {
			cluster := out.clusters[i]
			row.Cluster = &cluster
		}
		result.Rows = append(result.Rows, row)
	}
	result.Scaler = scaler

	profileLog.WithFields(logrus.Fields{
		"method":    result.Method,
		"customers": len(result.Rows),
		"anomalies": result.Count(),
	}).Debug("profile detection done")

	return result, nil
}

// featureMatrix extracts the named columns, rejecting missing or non-finite values.
func featureMatrix(profiles []models.Profile, features []string) ([][]float64, error) {
	matrix := make([][]float64, len(profiles))
	for i, p := range profiles {
		row := make([]float64, len(features))
		for j, name := range features {
			v, ok := p.Feature(name)
			if !ok {
				return nil, &DataShapeError{Column: name, Row: p.CustomerID, Reason: "missing"}
			}
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, &DataShapeError{Column: name, Row: p.CustomerID, Reason: "not a finite number"}
			}
			row[j] = v
		}
		matrix[i] = row
	}
	return matrix, nil
}

// fitForest fits a seeded forest on scaled and labels the same rows, at
// most ceil(contamination*n) of them anomalous.
func fitForest(scaled [][]float64, contamination float64, seed int64, trees, sampleSize int) ([]detectors.Score, error) {
	opts := []iforest.Option{
		iforest.WithConfig(detectors.Config{Contamination: contamination, RandomSeed: seed}),
	}
	if trees > 0 {
		opts = append(opts, iforest.WithTrees(trees))
	}
	if sampleSize > 0 {
		opts = append(opts, iforest.WithSampleSize(sampleSize))
	}

	return iforest.New(opts...).FitEvaluate(scaled)
}

func labelOf(anomalous bool) models.Label {
	if anomalous {
		return models.Anomalous
	}
	return models.Normal
}
