package anomaly

import (
	"math"
	"sort"
	"time"

	"github.com/montanaflynn/stats"
	"github.com/sirupsen/logrus"

	"github.com/hed1ad/custguard/pkg/models"
)

const (
	defaultBehavioralSensitivity = 2.5
	// two historical gaps for mean and deviation, plus the gap under test
	minPurchases = 3
	day          = 24 * time.Hour
)

var behaviorLog = logrus.WithField("component", "anomaly.Behavioral")

// BehavioralEvent is a customer whose latest purchase gap broke their own cadence.
type BehavioralEvent struct {
	CustomerID   string    `json:"customer_id" yaml:"customer_id"`
	LastPurchase time.Time `json:"last_purchase" yaml:"last_purchase"`
	// ElapsedDays is the time from LastPurchase to the detection reference time.
	ElapsedDays      float64 `json:"elapsed_days" yaml:"elapsed_days"`
	AverageGapDays   float64 `json:"average_gap_days" yaml:"average_gap_days"`
	StdGapDays       float64 `json:"std_gap_days" yaml:"std_gap_days"`
	AnomalousGapDays float64 `json:"anomalous_gap_days" yaml:"anomalous_gap_days"`
}

// MonthCount is the number of behavioral events whose last purchase falls in Month.
type MonthCount struct {
	Month time.Time `json:"month" yaml:"month"`
	Count int       `json:"count" yaml:"count"`
}

// BehavioralResult lists the flagged customers, most recent purchase first.
type BehavioralResult struct {
	Sensitivity float64           `json:"sensitivity" yaml:"sensitivity"`
	Now         time.Time         `json:"now" yaml:"now"`
	Events      []BehavioralEvent `json:"events" yaml:"events"`
	// Evaluated counts customers with enough history to be tested.
	Evaluated int `json:"evaluated" yaml:"evaluated"`
	// Excluded lists customers with fewer than three purchases.
	Excluded []string `json:"excluded,omitempty" yaml:"excluded,omitempty"`
}

// CustomerIDs returns the flagged customer ids in result order.
func (r *BehavioralResult) CustomerIDs() []string {
	ids := make([]string, len(r.Events))
	for i, e := range r.Events {
		ids[i] = e.CustomerID
	}
	return ids
}

// Shortfall reports the customers left out for lack of history, if any.
func (r *BehavioralResult) Shortfall() *InsufficientData {
	if len(r.Excluded) == 0 {
		return nil
	}
	return &InsufficientData{Operation: "behavioral", Have: r.Evaluated, Need: r.Evaluated + len(r.Excluded)}
}

// MonthlyTrend counts events per calendar month of their last purchase, oldest first.
func (r *BehavioralResult) MonthlyTrend() []MonthCount {
	counts := map[time.Time]int{}
	for _, e := range r.Events {
		t := e.LastPurchase.UTC()
		counts[time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)]++
	}

	out := make([]MonthCount, 0, len(counts))
	for m, c := range counts {
		out = append(out, MonthCount{Month: m, Count: c})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month.Before(out[j].Month) })
	return out
}

// BehavioralDetector compares each customer's latest purchase gap with
// that customer's own purchase history.
type BehavioralDetector struct {
	sensitivity float64
	now         time.Time
}

// BehavioralOption configures a BehavioralDetector.
type BehavioralOption func(*BehavioralDetector)

// WithSensitivity sets how many standard deviations above the mean gap a
// gap must be to count as anomalous.
func WithSensitivity(s float64) BehavioralOption {
	return func(d *BehavioralDetector) {
		d.sensitivity = s
	}
}

// WithNow sets the reference time for ElapsedDays. Without it the latest
// transaction timestamp of the input is used.
func WithNow(now time.Time) BehavioralOption {
	return func(d *BehavioralDetector) {
		d.now = now
	}
}

// NewBehavioralDetector creates a detector with sensitivity 2.5.
func NewBehavioralDetector(opts ...BehavioralOption) *BehavioralDetector {
	d := &BehavioralDetector{sensitivity: defaultBehavioralSensitivity}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Detect flags every customer whose most recent gap exceeds
// mean + sensitivity*std of their earlier gaps. Gaps are whole calendar
// days; several orders on one day are a single purchase.
//
// With a constant or single-gap history (std = 0) the threshold collapses
// to the mean, so any gap longer than the usual cadence is flagged.
func (d *BehavioralDetector) Detect(txs []models.Transaction) (*BehavioralResult, error) {
	if !(d.sensitivity > 0) || math.IsInf(d.sensitivity, 0) {
		return nil, &ConfigError{Param: "sensitivity", Value: d.sensitivity, Range: "(0, inf)"}
	}

	purchases, latest, err := purchasesByCustomer(txs)
	if err != nil {
		return nil, err
	}

	now := d.now
	if now.IsZero() {
		now = latest
	}

	result := &BehavioralResult{Sensitivity: d.sensitivity, Now: now}
	for id, times := range purchases {
		if len(times) < minPurchases {
			result.Excluded = append(result.Excluded, id)
			continue
		}
		result.Evaluated++

		sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })
		gaps := make([]float64, len(times)-1)
		for i := 1; i < len(times); i++ {
			gaps[i-1] = calendarDay(times[i]).Sub(calendarDay(times[i-1])).Hours() / 24
		}

		history := gaps[:len(gaps)-1]
		last := gaps[len(gaps)-1]
		mean, _ := stats.Mean(history)
		std := 0.0
		if len(history) > 1 {
			std, _ = stats.StandardDeviationSample(history)
		}

		if last > mean+d.sensitivity*std {
			lastPurchase := times[len(times)-1]
			result.Events = append(result.Events, BehavioralEvent{
				CustomerID:       id,
				LastPurchase:     lastPurchase,
				ElapsedDays:      float64(now.Sub(lastPurchase)) / float64(day),
				AverageGapDays:   mean,
				StdGapDays:       std,
				AnomalousGapDays: last,
			})
		}
	}

	sort.Slice(result.Events, func(i, j int) bool {
		a, b := result.Events[i], result.Events[j]
		if !a.LastPurchase.Equal(b.LastPurchase) {
			return a.LastPurchase.After(b.LastPurchase)
		}
		return a.CustomerID < b.CustomerID
	})
	sort.Strings(result.Excluded)

	behaviorLog.WithFields(logrus.Fields{
		"customers": len(purchases),
		"evaluated": result.Evaluated,
		"flagged":   len(result.Events),
	}).Debug("behavioral detection done")

	return result, nil
}

// purchasesByCustomer groups purchases per customer, one per UTC calendar
// day holding that day's latest timestamp, and returns the latest timestamp
// seen.
func purchasesByCustomer(txs []models.Transaction) (map[string][]time.Time, time.Time, error) {
	days := map[string]map[time.Time]int{}
	purchases := map[string][]time.Time{}
	var latest time.Time

	for i, tx := range txs {
		if tx.CustomerID == "" {
			return nil, time.Time{}, &DataShapeError{Column: "customer_id", Row: rowRef(i), Reason: "empty"}
		}
		if tx.Timestamp.IsZero() {
			return nil, time.Time{}, &DataShapeError{Column: "timestamp", Row: rowRef(i), Reason: "missing"}
		}

		ts := tx.Timestamp.UTC()
		if ts.After(latest) {
			latest = ts
		}

		if days[tx.CustomerID] == nil {
			days[tx.CustomerID] = map[time.Time]int{}
		}
		d := calendarDay(ts)
		if j, ok := days[tx.CustomerID][d]; ok {
			if ts.After(purchases[tx.CustomerID][j]) {
				purchases[tx.CustomerID][j] = ts
			}
			continue
		}
		days[tx.CustomerID][d] = len(purchases[tx.CustomerID])
		purchases[tx.CustomerID] = append(purchases[tx.CustomerID], ts)
	}
	return purchases, latest, nil
}

func calendarDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
