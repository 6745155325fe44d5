package anomaly

import (
	"math"
	"sort"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/hed1ad/custguard/pkg/detectors"
	"github.com/hed1ad/custguard/pkg/models"
	"github.com/hed1ad/custguard/pkg/preprocess"
)

const (
	defaultTransactionContamination = 0.01
	maxTransactionContamination     = 0.5
)

var txLog = logrus.WithField("component", "anomaly.Transaction")

// TransactionFeatures are the per-transaction columns the forest is fitted on.
var TransactionFeatures = []string{"Quantity", "UnitPrice", "TotalAmount"}

// ScoredTransaction is one transaction with its detection output.
type ScoredTransaction struct {
	models.Transaction `yaml:",inline"`
	// Score is lower for more anomalous transactions. Anomalies score <= 0
	// and normal rows >= 0.
	Score float64      `json:"score" yaml:"score"`
	Label models.Label `json:"label" yaml:"label"`
}

// TransactionResult holds one scored row per input transaction, in input order.
type TransactionResult struct {
	Contamination float64             `json:"contamination" yaml:"contamination"`
	Rows          []ScoredTransaction `json:"rows" yaml:"rows"`
}

// Anomalous returns the anomalous transactions sorted by ascending score.
func (r *TransactionResult) Anomalous() []ScoredTransaction {
	var out []ScoredTransaction
	for _, row := range r.Rows {
		if row.Label == models.Anomalous {
			out = append(out, row)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score < out[j].Score })
	return out
}

// TransactionDetector flags single transactions that are atypical in
// quantity, unit price and amount. It is fitted on transactions, never on
// customer aggregates.
type TransactionDetector struct {
	contamination float64
	seed          int64
	trees         int
}

// TransactionOption configures a TransactionDetector.
type TransactionOption func(*TransactionDetector)

// WithTransactionContamination sets the expected anomalous fraction.
func WithTransactionContamination(c float64) TransactionOption {
	return func(d *TransactionDetector) {
		d.contamination = c
	}
}

// WithTransactionSeed sets the forest random seed.
func WithTransactionSeed(seed int64) TransactionOption {
	return func(d *TransactionDetector) {
		d.seed = seed
	}
}

// WithTransactionTrees sets the number of isolation trees.
func WithTransactionTrees(n int) TransactionOption {
	return func(d *TransactionDetector) {
		d.trees = n
	}
}

// NewTransactionDetector creates a detector with contamination 0.01 and seed 42.
func NewTransactionDetector(opts ...TransactionOption) *TransactionDetector {
	d := &TransactionDetector{
		contamination: defaultTransactionContamination,
		seed:          detectors.DefaultConfig().RandomSeed,
		trees:         100,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Detect scores every transaction.
func (d *TransactionDetector) Detect(txs []models.Transaction) (*TransactionResult, error) {
	if !(d.contamination > 0 && d.contamination <= maxTransactionContamination) {
		return nil, &ConfigError{Param: "contamination", Value: d.contamination, Range: "(0, 0.5]"}
	}
	if d.trees <= 0 {
		return nil, &ConfigError{Param: "trees", Value: d.trees, Range: "[1, inf)"}
	}

	result := &TransactionResult{
		Contamination: d.contamination,
		Rows:          make([]ScoredTransaction, 0, len(txs)),
	}
	if len(txs) == 0 {
		return result, nil
	}

	matrix := make([][]float64, len(txs))
	for i, tx := range txs {
		row := []float64{tx.Quantity, tx.UnitPrice, tx.TotalAmount}
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, &DataShapeError{Column: TransactionFeatures[j], Row: rowRef(i), Reason: "not a finite number"}
			}
		}
		matrix[i] = row
	}

	_, scaled, err := preprocess.FitTransform(matrix)
	if err != nil {
		return nil, err
	}
	scores, err := fitForest(scaled, d.contamination, d.seed, d.trees, 0)
	if err != nil {
		return nil, err
	}

	flagged := 0
	for i, tx := range txs {
		row := ScoredTransaction{
			Transaction: tx,
			Score:       scores[i].Decision,
			Label:       labelOf(scores[i].IsAnomaly),
		}
		if row.Label == models.Anomalous {
			flagged++
		}
		result.Rows = append(result.Rows, row)
	}

	txLog.WithFields(logrus.Fields{
		"transactions": len(txs),
		"flagged":      flagged,
	}).Debug("transaction detection done")

	return result, nil
}

func rowRef(i int) string {
	return strconv.Itoa(i)
}
