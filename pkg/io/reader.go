// Package io provides transaction sources and report writers.
package io

import (
	"context"
	"time"

	"github.com/hed1ad/custguard/pkg/anomaly"
	"github.com/hed1ad/custguard/pkg/models"
)

// Source loads cleaned transactions from a file or database.
type Source interface {
	// Read returns every valid transaction of the source.
	Read(ctx context.Context) ([]models.Transaction, error)

	// Close releases resources.
	Close() error
}

// Writer is the interface for writing detection reports.
type Writer interface {
	// Write outputs a single report.
	Write(report *Report) error

	// Close releases resources.
	Close() error
}

// Report gathers the outcome of one detection run. Sections that were not
// requested are left nil.
type Report struct {
	RunID       string    `json:"run_id" yaml:"run_id"`
	Command     string    `json:"command" yaml:"command"`
	GeneratedAt time.Time `json:"generated_at" yaml:"generated_at"`

	Summary      *anomaly.Summary    `json:"summary,omitempty" yaml:"summary,omitempty"`
	Profile      *ProfileSection     `json:"profile,omitempty" yaml:"profile,omitempty"`
	Behavioral   *BehavioralSection  `json:"behavioral,omitempty" yaml:"behavioral,omitempty"`
	Transactions *TransactionSection `json:"transactions,omitempty" yaml:"transactions,omitempty"`
	Metadata     map[string]any      `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// ProfileSection lists the anomalous customers of a profile run.
type ProfileSection struct {
	Method    string                 `json:"method" yaml:"method"`
	Customers int                    `json:"customers" yaml:"customers"`
	Anomalous []anomaly.ProfileRow   `json:"anomalous" yaml:"anomalous"`
	Reasons   map[string]string      `json:"reasons,omitempty" yaml:"reasons,omitempty"`
	Groups    *anomaly.ClusterResult `json:"groups,omitempty" yaml:"groups,omitempty"`
}

// BehavioralSection lists the customers with an abnormal purchase gap.
type BehavioralSection struct {
	Sensitivity float64                   `json:"sensitivity" yaml:"sensitivity"`
	Now         time.Time                 `json:"now" yaml:"now"`
	Events      []anomaly.BehavioralEvent `json:"events" yaml:"events"`
	Trend       []anomaly.MonthCount      `json:"trend" yaml:"trend"`
	Excluded    int                       `json:"excluded" yaml:"excluded"`
}

// TransactionSection lists the anomalous transactions, most anomalous first.
type TransactionSection struct {
	Contamination float64                     `json:"contamination" yaml:"contamination"`
	Scored        int                         `json:"scored" yaml:"scored"`
	Anomalous     []anomaly.ScoredTransaction `json:"anomalous" yaml:"anomalous"`
}

// NewProfileSection builds the report section of a profile run. groups may be nil.
func NewProfileSection(res *anomaly.ProfileResult, reasons map[string]string, groups *anomaly.ClusterResult) *ProfileSection {
	return &ProfileSection{
		Method:    res.Method,
		Customers: len(res.Rows),
		Anomalous: res.Anomalous(),
		Reasons:   reasons,
		Groups:    groups,
	}
}

// NewBehavioralSection builds the report section of a behavioral run.
func NewBehavioralSection(res *anomaly.BehavioralResult) *BehavioralSection {
	return &BehavioralSection{
		Sensitivity: res.Sensitivity,
		Now:         res.Now,
		Events:      res.Events,
		Trend:       res.MonthlyTrend(),
		Excluded:    len(res.Excluded),
	}
}

// NewTransactionSection builds the report section of a transaction run.
func NewTransactionSection(res *anomaly.TransactionResult) *TransactionSection {
	return &TransactionSection{
		Contamination: res.Contamination,
		Scored:        len(res.Rows),
		Anomalous:     res.Anomalous(),
	}
}
