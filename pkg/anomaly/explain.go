package anomaly

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/hed1ad/custguard/pkg/models"
)

var explainLog = logrus.WithField("component", "anomaly.Explainer")

// Deviation is the standardized distance of one feature from the population mean.
type Deviation struct {
	Feature string  `json:"feature" yaml:"feature"`
	ZScore  float64 `json:"z_score" yaml:"z_score"`
}

// Reason renders the deviation as "unusually high Monetary value".
func (d Deviation) Reason() string {
	direction := "high"
	if d.ZScore < 0 {
		direction = "low"
	}
	return fmt.Sprintf("unusually %s %s value", direction, d.Feature)
}

// Explainer attributes each anomalous customer to its most deviant features.
type Explainer struct {
	top int
}

// ExplainOption configures an Explainer.
type ExplainOption func(*Explainer)

// WithTopFeatures sets how many features are cited per customer.
func WithTopFeatures(n int) ExplainOption {
	return func(e *Explainer) {
		e.top = n
	}
}

// NewExplainer creates an Explainer citing the single most deviant feature.
func NewExplainer(opts ...ExplainOption) *Explainer {
	e := &Explainer{top: 1}
	for _, opt := range opts {
		opt(e)
	}
	if e.top < 1 {
		e.top = 1
	}
	return e
}

// Explain maps every anomalous customer of result to a reason string.
// Deviations are measured with the scaler the detector itself used.
func (e *Explainer) Explain(result *ProfileResult) map[string]string {
	reasons := map[string]string{}
	if result == nil || result.Scaler == nil {
		return reasons
	}

	for _, row := range result.Rows {
		if row.Label != models.Anomalous {
			continue
		}
		devs := e.Deviations(result, row)
		if len(devs) == 0 {
			continue
		}

		n := e.top
		if n > len(devs) {
			n = len(devs)
		}
		parts := make([]string, n)
		for i := 0; i < n; i++ {
			parts[i] = devs[i].Reason()
		}
		reasons[row.CustomerID] = strings.Join(parts, "; ")
	}

	explainLog.WithField("explained", len(reasons)).Debug("anomaly reasons computed")
	return reasons
}

// Deviations returns the per-feature z-scores of row, largest |z| first.
func (e *Explainer) Deviations(result *ProfileResult, row ProfileRow) []Deviation {
	if result.Scaler == nil || result.Scaler.Features() != len(result.Features) {
		return nil
	}

	devs := make([]Deviation, 0, len(result.Features))
	for j, name := range result.Features {
		v, ok := row.Feature(name)
		if !ok {
			continue
		}
		devs = append(devs, Deviation{Feature: name, ZScore: result.Scaler.ZScore(j, v)})
	}
	sort.SliceStable(devs, func(i, j int) bool {
		return math.Abs(devs[i].ZScore) > math.Abs(devs[j].ZScore)
	})
	return devs
}
