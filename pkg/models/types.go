// Package models holds the cleaned transaction and customer profile records
// consumed by the anomaly detectors.
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultProfitMargin is applied to TotalAmount when a transaction carries no unit cost.
const DefaultProfitMargin = 0.25

// Feature names understood by Profile.Feature.
const (
	FeatureRecency          = "Recency"
	FeatureFrequency        = "Frequency"
	FeatureMonetary         = "Monetary"
	FeatureChurnProbability = "ChurnProbability"
	FeatureCLV              = "CLV"
)

// RFMFeatures is the default feature set used by the profile detectors.
var RFMFeatures = []string{FeatureRecency, FeatureFrequency, FeatureMonetary}

// Transaction is one cleaned sales line.
type Transaction struct {
	CustomerID  string    `json:"customer_id" yaml:"customer_id"`
	ProductID   string    `json:"product_id" yaml:"product_id"`
	Timestamp   time.Time `json:"timestamp" yaml:"timestamp"`
	Quantity    float64   `json:"quantity" yaml:"quantity"`
	UnitPrice   float64   `json:"unit_price" yaml:"unit_price"`
	UnitCost    *float64  `json:"unit_cost,omitempty" yaml:"unit_cost,omitempty"`
	TotalAmount float64   `json:"total_amount" yaml:"total_amount"`
	NetProfit   float64   `json:"net_profit" yaml:"net_profit"`
}

// NewTransaction builds a Transaction and derives TotalAmount and NetProfit.
// Amounts are computed in decimal to avoid float drift on currency values.
func NewTransaction(customerID, productID string, ts time.Time, quantity, unitPrice float64, unitCost *float64) Transaction {
	qty := decimal.NewFromFloat(quantity)
	total := qty.Mul(decimal.NewFromFloat(unitPrice))

	var profit decimal.Decimal
	if unitCost != nil {
		profit = total.Sub(qty.Mul(decimal.NewFromFloat(*unitCost)))
	} else {
		profit = total.Mul(decimal.NewFromFloat(DefaultProfitMargin))
	}

	return Transaction{
		CustomerID:  customerID,
		ProductID:   productID,
		Timestamp:   ts,
		Quantity:    quantity,
		UnitPrice:   unitPrice,
		UnitCost:    unitCost,
		TotalAmount: total.InexactFloat64(),
		NetProfit:   profit.InexactFloat64(),
	}
}

// Profile is one customer row produced by the upstream RFM, segmentation,
// churn and CLV stages. Detectors read it and never modify it.
type Profile struct {
	CustomerID       string             `json:"customer_id" yaml:"customer_id"`
	Recency          float64            `json:"recency" yaml:"recency"`
	Frequency        float64            `json:"frequency" yaml:"frequency"`
	Monetary         float64            `json:"monetary" yaml:"monetary"`
	Segment          string             `json:"segment,omitempty" yaml:"segment,omitempty"`
	ChurnProbability float64            `json:"churn_probability,omitempty" yaml:"churn_probability,omitempty"`
	CLV              float64            `json:"clv,omitempty" yaml:"clv,omitempty"`
	Extra            map[string]float64 `json:"extra,omitempty" yaml:"extra,omitempty"`
}

// Feature returns the named numeric column.
func (p Profile) Feature(name string) (float64, bool) {
	switch name {
	case FeatureRecency:
		return p.Recency, true
	case FeatureFrequency:
		return p.Frequency, true
	case FeatureMonetary:
		return p.Monetary, true
	case FeatureChurnProbability:
		return p.ChurnProbability, true
	case FeatureCLV:
		return p.CLV, true
	}
	v, ok := p.Extra[name]
	return v, ok
}

// Clone returns a copy that shares no maps with p.
func (p Profile) Clone() Profile {
	if p.Extra != nil {
		extra := make(map[string]float64, len(p.Extra))
		for k, v := range p.Extra {
			extra[k] = v
		}
		p.Extra = extra
	}
	return p
}

// Label is the categorical anomaly output of a detector.
type Label int

const (
	// Anomalous follows the common -1 outlier convention.
	Anomalous Label = -1
	Normal    Label = 1
)

func (l Label) String() string {
	if l == Anomalous {
		return "anomalous"
	}
	return "normal"
}

// MarshalText makes labels readable in JSON and YAML reports.
func (l Label) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}
