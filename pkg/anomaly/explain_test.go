package anomaly

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hed1ad/custguard/pkg/models"
	"github.com/hed1ad/custguard/pkg/preprocess"
)

// scoredResult builds a ProfileResult by hand, standardizing with the shared scaler.
func scoredResult(t *testing.T, profiles []models.Profile, anomalous ...string) *ProfileResult {
	t.Helper()

	matrix, err := featureMatrix(profiles, models.RFMFeatures)
	require.NoError(t, err)
	scaler, err := preprocess.Fit(matrix)
	require.NoError(t, err)

	flagged := map[string]bool{}
	for _, id := range anomalous {
		flagged[id] = true
	}
	res := &ProfileResult{Method: "manual", Features: models.RFMFeatures, Scaler: scaler}
	for _, p := range profiles {
		label := models.Normal
		if flagged[p.CustomerID] {
			label = models.Anomalous
		}
		res.Rows = append(res.Rows, ProfileRow{Profile: p, Label: label})
	}
	return res
}

func baseProfiles() []models.Profile {
	var out []models.Profile
	for i := 0; i < 10; i++ {
		out = append(out, models.Profile{
			CustomerID: string(rune('a' + i)),
			Recency:    20 + float64(i%3),
			Frequency:  10 + float64(i%2),
			Monetary:   500 + float64(i%4)*10,
		})
	}
	return out
}

func TestExplainHighAndLow(t *testing.T) {
	profiles := baseProfiles()
	profiles = append(profiles,
		models.Profile{CustomerID: "spender", Recency: 21, Frequency: 10, Monetary: 9000},
		models.Profile{CustomerID: "rare", Recency: 21, Frequency: -40, Monetary: 510},
	)
	res := scoredResult(t, profiles, "spender", "rare")

	reasons := NewExplainer().Explain(res)
	assert.Equal(t, map[string]string{
		"spender": "unusually high Monetary value",
		"rare":    "unusually low Frequency value",
	}, reasons)
}

func TestExplainTopFeatures(t *testing.T) {
	profiles := baseProfiles()
	profiles = append(profiles, models.Profile{CustomerID: "odd", Recency: 400, Frequency: 10, Monetary: 9000})
	res := scoredResult(t, profiles, "odd")

	reasons := NewExplainer(WithTopFeatures(2)).Explain(res)
	require.Contains(t, reasons, "odd")
	assert.Contains(t, reasons["odd"], "unusually high Recency value")
	assert.Contains(t, reasons["odd"], "unusually high Monetary value")
	assert.Contains(t, reasons["odd"], "; ")

	devs := NewExplainer().Deviations(res, res.Rows[len(res.Rows)-1])
	require.Len(t, devs, 3)
	assert.Equal(t, models.FeatureFrequency, devs[2].Feature)
}

func TestExplainSkipsNormalRows(t *testing.T) {
	res := scoredResult(t, baseProfiles())
	assert.Empty(t, NewExplainer().Explain(res))
	assert.Empty(t, NewExplainer().Explain(nil))
}

func TestExplainAfterDBSCAN(t *testing.T) {
	profiles := baseProfiles()
	profiles = append(profiles, models.Profile{CustomerID: "late", Recency: 900, Frequency: 10, Monetary: 505})

	res, err := NewProfileDetector().Run(profiles, DBSCANMethod{Eps: 0.5, MinSamples: 3})
	require.NoError(t, err)
	require.Contains(t, res.AnomalousIDs(), "late")

	reasons := NewExplainer().Explain(res)
	assert.Equal(t, "unusually high Recency value", reasons["late"])
}
