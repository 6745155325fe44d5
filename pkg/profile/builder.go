// Package profile aggregates transactions into raw Recency/Frequency/Monetary
// customer profiles for the profile detectors.
package profile

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/hed1ad/custguard/pkg/models"
)

var log = logrus.WithField("component", "profile.Builder")

type accumulator struct {
	last     time.Time
	count    int
	monetary decimal.Decimal
}

// Build returns one profile per customer, sorted by customer id.
// Recency is measured in days from the customer's last purchase to now; a
// zero now means the latest transaction in txs. Frequency is the number of
// transaction lines and Monetary the sum of their TotalAmount.
func Build(txs []models.Transaction, now time.Time) []models.Profile {
	acc := map[string]*accumulator{}
	latest := time.Time{}
	for _, tx := range txs {
		a, ok := acc[tx.CustomerID]
		if !ok {
			a = &accumulator{}
			acc[tx.CustomerID] = a
		}
		if tx.Timestamp.After(a.last) {
			a.last = tx.Timestamp
		}
		if tx.Timestamp.After(latest) {
			latest = tx.Timestamp
		}
		a.count++
		a.monetary = a.monetary.Add(decimal.NewFromFloat(tx.TotalAmount))
	}
	if now.IsZero() {
		now = latest
	}

	ids := make([]string, 0, len(acc))
	for id := range acc {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	profiles := make([]models.Profile, len(ids))
	for i, id := range ids {
		a := acc[id]
		profiles[i] = models.Profile{
			CustomerID: id,
			Recency:    now.Sub(a.last).Hours() / 24,
			Frequency:  float64(a.count),
			Monetary:   a.monetary.InexactFloat64(),
		}
	}

	log.WithFields(logrus.Fields{
		"transactions": len(txs),
		"customers":    len(profiles),
	}).Debug("profiles built")
	return profiles
}
