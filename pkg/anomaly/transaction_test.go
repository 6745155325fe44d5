package anomaly

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hed1ad/custguard/pkg/models"
)

func TestTransactionContaminationValidation(t *testing.T) {
	txs := generateTransactions(50, 1)
	for _, c := range []float64{0, -0.1, 0.51, 1} {
		_, err := NewTransactionDetector(WithTransactionContamination(c)).Detect(txs)
		require.Error(t, err)

		var cfgErr *ConfigError
		require.True(t, errors.As(err, &cfgErr))
		assert.Equal(t, "contamination", cfgErr.Param)
	}
}

func TestTransactionDetectorScoresEveryRow(t *testing.T) {
	txs := generateTransactions(400, 2)
	// a pricing error: normal quantity, absurd unit price
	txs = append(txs, models.NewTransaction("c-x", "P9", epoch, 2, 25000, nil))

	res, err := NewTransactionDetector(WithTransactionContamination(0.01)).Detect(txs)
	require.NoError(t, err)
	require.Len(t, res.Rows, len(txs))

	for i, row := range res.Rows {
		assert.Equal(t, txs[i], row.Transaction)
	}

	anomalous := res.Anomalous()
	require.NotEmpty(t, anomalous)
	assert.InDelta(t, 4, len(anomalous), 2)
	assert.Equal(t, "c-x", anomalous[0].CustomerID)
	for i := 1; i < len(anomalous); i++ {
		assert.LessOrEqual(t, anomalous[i-1].Score, anomalous[i].Score)
	}
	for _, row := range anomalous {
		assert.LessOrEqual(t, row.Score, 0.0)
	}
}

func TestTransactionContaminationBoundsTiedRows(t *testing.T) {
	// integer quantities and two list prices give four distinct rows
	txs := make([]models.Transaction, 1000)
	for i := range txs {
		qty := float64(1 + i%2)
		price := float64(5 + 5*((i/2)%2))
		txs[i] = models.NewTransaction(fmt.Sprintf("c-%03d", i%50), "P1", epoch.Add(time.Duration(i)*time.Hour), qty, price, nil)
	}

	for _, c := range []float64{0.01, 0.05, 0.3} {
		t.Run(fmt.Sprintf("contamination %v", c), func(t *testing.T) {
			res, err := NewTransactionDetector(WithTransactionContamination(c)).Detect(txs)
			require.NoError(t, err)

			limit := int(math.Ceil(c * float64(len(txs))))
			anomalous := res.Anomalous()
			assert.LessOrEqual(t, len(anomalous), limit)
			assert.NotEmpty(t, anomalous)
			for _, row := range res.Rows {
				if row.Label == models.Anomalous {
					assert.LessOrEqual(t, row.Score, 0.0)
				} else {
					assert.GreaterOrEqual(t, row.Score, 0.0)
				}
			}
		})
	}
}

func TestTransactionDetectorIsIdempotent(t *testing.T) {
	txs := generateTransactions(300, 3)

	d := NewTransactionDetector(WithTransactionSeed(7))
	first, err := d.Detect(txs)
	require.NoError(t, err)
	second, err := d.Detect(txs)
	require.NoError(t, err)
	assert.Equal(t, first.Rows, second.Rows)

	other, err := NewTransactionDetector(WithTransactionSeed(7)).Detect(txs)
	require.NoError(t, err)
	assert.Equal(t, first.Rows, other.Rows)
}

func TestTransactionDetectorEmpty(t *testing.T) {
	res, err := NewTransactionDetector().Detect(nil)
	require.NoError(t, err)
	assert.Empty(t, res.Rows)
	assert.Empty(t, res.Anomalous())
}

func generateTransactions(n int, seed int64) []models.Transaction {
	rng := rand.New(rand.NewSource(seed))
	txs := make([]models.Transaction, n)
	for i := range txs {
		txs[i] = models.NewTransaction(
			fmt.Sprintf("c-%03d", i%40),
			fmt.Sprintf("P%d", i%7),
			epoch.Add(time.Duration(i)*time.Hour),
			float64(1+rng.Intn(6)),
			5+rng.Float64()*20,
			nil,
		)
	}
	return txs
}
