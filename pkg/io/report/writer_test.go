package report

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/hed1ad/custguard/pkg/anomaly"
	cgio "github.com/hed1ad/custguard/pkg/io"
	"github.com/hed1ad/custguard/pkg/models"
)

func sampleReport(t *testing.T) *cgio.Report {
	t.Helper()

	score := -0.12
	profile := &anomaly.ProfileResult{
		Method:   "isolation_forest",
		Features: models.RFMFeatures,
		Rows: []anomaly.ProfileRow{
			{Profile: models.Profile{CustomerID: "c1", Monetary: 9000}, Label: models.Anomalous, Score: &score},
			{Profile: models.Profile{CustomerID: "c2", Monetary: 100}, Label: models.Normal},
		},
	}
	behavioral := &anomaly.BehavioralResult{
		Sensitivity: 2.5,
		Events:      []anomaly.BehavioralEvent{{CustomerID: "c3", AnomalousGapDays: 100}},
	}
	summary := anomaly.Summarize(profile, behavioral, nil)

	r := New("all")
	r.Summary = &summary
	r.Profile = cgio.NewProfileSection(profile, map[string]string{"c1": "unusually high Monetary value"}, nil)
	r.Behavioral = cgio.NewBehavioralSection(behavioral)
	return r
}

func TestNewAssignsRunID(t *testing.T) {
	a, b := New("profile"), New("profile")
	_, err := uuid.Parse(a.RunID)
	require.NoError(t, err)
	assert.NotEqual(t, a.RunID, b.RunID)
	assert.Equal(t, "profile", a.Command)
	assert.False(t, a.GeneratedAt.IsZero())
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf)
	require.NoError(t, err)

	r := sampleReport(t)
	require.NoError(t, w.Write(r))
	require.NoError(t, w.Close())

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, r.RunID, decoded["run_id"])
	assert.Equal(t, map[string]any{"profile": 1.0, "behavioral": 1.0, "total": 2.0}, decoded["summary"])

	profile := decoded["profile"].(map[string]any)
	anomalous := profile["anomalous"].([]any)
	require.Len(t, anomalous, 1)
	row := anomalous[0].(map[string]any)
	assert.Equal(t, "c1", row["customer_id"])
	assert.Equal(t, "anomalous", row["label"])
	assert.Equal(t, -0.12, row["score"])
	assert.NotContains(t, decoded, "transactions")
}

func TestWriteYAML(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, WithFormat(FormatYAML))
	require.NoError(t, err)
	require.NoError(t, w.Write(sampleReport(t)))

	var decoded map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "all", decoded["command"])

	profile := decoded["profile"].(map[string]any)
	row := profile["anomalous"].([]any)[0].(map[string]any)
	assert.Equal(t, "c1", row["customer_id"])
	assert.Equal(t, "anomalous", row["label"])

	behavioral := decoded["behavioral"].(map[string]any)
	events := behavioral["events"].([]any)
	require.Len(t, events, 1)
	assert.Equal(t, "c3", events[0].(map[string]any)["customer_id"])
}

func TestWriterRejectsFormat(t *testing.T) {
	_, err := NewWriter(&bytes.Buffer{}, WithFormat("xml"))
	assert.Error(t, err)
}

func TestFileWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")
	w, err := NewFileWriter(path)
	require.NoError(t, err)
	require.NoError(t, w.Write(New("transactions")))
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"command": "transactions"`)
}
