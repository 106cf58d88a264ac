package report

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"olist-ml/internal/ml"
	"olist-ml/internal/storage"
	"olist-ml/internal/warehouse"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	os.Exit(m.Run())
}

func delayPredictions() []ml.DelayPrediction {
	return []ml.DelayPrediction{
		{OrderID: "o2", WillBeDelayed: 1, Confidence: 0.95, ProbOnTime: 0.05, ProbDelayed: 0.95, RiskCategory: "High Risk", HasProbability: true},
		{OrderID: "o3", WillBeDelayed: 1, Confidence: 0.75, ProbOnTime: 0.25, ProbDelayed: 0.75, RiskCategory: "High Risk", HasProbability: true},
		{OrderID: "o1", WillBeDelayed: 0, Confidence: 0.8, ProbOnTime: 0.8, ProbDelayed: 0.2, RiskCategory: "Low Risk", HasProbability: true},
	}
}

func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	r := NewReporter(&buf, "")

	r.PrintSummary(warehouse.Summary{
		TotalOrders:      99441,
		DeliveredOrders:  96478,
		MinDate:          "2016-09-04",
		MaxDate:          "2018-10-17",
		AvgOrderValue:    160.99,
		LateDeliveryRate: 0.0812,
	})

	out := buf.String()
	for _, want := range []string{"DATA SUMMARY", "99441", "96478", "2016-09-04", "2018-10-17", "160.99", "8.12%"} {
		assert.Contains(t, out, want)
	}
}

func TestPrintEvaluation(t *testing.T) {
	var buf bytes.Buffer
	r := NewReporter(&buf, "")

	r.PrintEvaluation("DELIVERY DELAY", ml.Evaluation{
		Accuracy:  0.9,
		Precision: 0.75,
		Recall:    0.6,
		F1:        0.6667,
		ROCAUC:    0.8125,
		HasROCAUC: true,
		Confusion: [2][2]int{{50, 2}, {4, 6}},
		Report: []ml.ClassReport{
			{Class: 0, Precision: 0.9259, Recall: 0.9615, F1: 0.9434, Support: 52},
			{Class: 1, Precision: 0.75, Recall: 0.6, F1: 0.6667, Support: 10},
		},
	})

	out := buf.String()
	assert.Contains(t, out, "DELIVERY DELAY EVALUATION")
	assert.Contains(t, out, "0.8125")
	assert.Contains(t, out, "Actual \\ Predicted")
	assert.Contains(t, out, "50")
	assert.Contains(t, out, "Support")
	assert.NotContains(t, out, "n/a")
}

func TestPrintEvaluation_NoROCAUC(t *testing.T) {
	var buf bytes.Buffer
	NewReporter(&buf, "").PrintEvaluation("CHURN", ml.Evaluation{Accuracy: 1})

	out := buf.String()
	assert.Contains(t, out, "n/a")
	assert.NotContains(t, out, "Support", "class table is skipped without a report")
}

func TestPrintFeatureImportance(t *testing.T) {
	var buf bytes.Buffer
	NewReporter(&buf, "").PrintFeatureImportance([]ml.FeatureScore{
		{Feature: "estimated_delivery_days", Importance: 0.41},
		{Feature: "freight_value", Importance: 0.12},
	})

	out := buf.String()
	first := strings.Index(out, "estimated_delivery_days")
	second := strings.Index(out, "freight_value")
	require.True(t, first >= 0 && second >= 0)
	assert.Less(t, first, second, "features keep their ranked order")
	assert.Contains(t, out, "0.4100")
}

func TestPrintDelayPredictions_Limit(t *testing.T) {
	var buf bytes.Buffer
	NewReporter(&buf, "").PrintDelayPredictions("High-Risk Orders", delayPredictions(), 2)

	out := buf.String()
	assert.Contains(t, out, "High-Risk Orders: 3", "title reports the full count")
	assert.Contains(t, out, "o2")
	assert.Contains(t, out, "o3")
	assert.NotContains(t, out, "o1")
	assert.Contains(t, out, "0.9500")
}

func TestPrintDelayPredictions_NoProbability(t *testing.T) {
	var buf bytes.Buffer
	NewReporter(&buf, "").PrintDelayPredictions("Predictions", []ml.DelayPrediction{
		{OrderID: "o9", WillBeDelayed: 1},
	}, 0)

	out := buf.String()
	assert.Contains(t, out, "o9")
	assert.NotContains(t, out, "0.0000")
}

func TestPrintChurnPredictions(t *testing.T) {
	var buf bytes.Buffer
	NewReporter(&buf, "").PrintChurnPredictions("At-Risk Customers", []ml.ChurnPrediction{
		{CustomerID: "c1", WillChurn: 1, ChurnProbability: 0.85, RetentionProbability: 0.15, Priority: "High Priority", HasProbability: true},
	}, DefaultLimit)

	out := buf.String()
	assert.Contains(t, out, "At-Risk Customers: 1")
	assert.Contains(t, out, "c1")
	assert.Contains(t, out, "High Priority")
	assert.Contains(t, out, "0.8500")
}

func TestPrintRuns(t *testing.T) {
	var buf bytes.Buffer
	run := storage.NewRun("delay", "models/delivery_delay_model.gob")
	run.Rows = 42
	run.Threshold = 0.7

	NewReporter(&buf, "").PrintRuns([]storage.Run{run, storage.NewRun("churn", "models/churn_prediction_model.gob")})

	out := buf.String()
	assert.Contains(t, out, "STORED RUNS: 2")
	assert.Contains(t, out, run.ID.String())
	assert.Contains(t, out, "42")
	assert.Contains(t, out, "0.7000")
	assert.Contains(t, out, "churn_prediction_model.gob")
}

func TestPrintStored(t *testing.T) {
	var buf bytes.Buffer
	NewReporter(&buf, "").PrintStored([]storage.Prediction{
		{Key: "c1", Class: 1, Probability: 0.85, HasProbability: true, Category: "High Priority"},
		{Key: "c2", Class: 0},
	}, 0)

	out := buf.String()
	assert.Contains(t, out, "PREDICTIONS: 2")
	assert.Contains(t, out, "0.8500")
	assert.Contains(t, out, "c2")
}

func TestWriteDelayCSV(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports")
	r := NewReporter(&bytes.Buffer{}, dir)

	preds := append(delayPredictions(), ml.DelayPrediction{OrderID: "o4", WillBeDelayed: 1})
	path, err := r.WriteDelayCSV("delay_predictions.csv", preds)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "delay_predictions.csv"), path)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)

	require.Len(t, records, 5)
	assert.Equal(t, "order_id", records[0][0])
	assert.Equal(t, []string{"o2", "1", "0.95", "0.05", "0.95", "High Risk"}, records[1])
	assert.Equal(t, []string{"o4", "1", "", "", "", ""}, records[4], "missing probabilities stay empty")
}

func TestWriteChurnCSV(t *testing.T) {
	r := NewReporter(&bytes.Buffer{}, t.TempDir())

	path, err := r.WriteChurnCSV("churn.csv", []ml.ChurnPrediction{
		{CustomerID: "c1", WillChurn: 1, ChurnProbability: 0.85, RetentionProbability: 0.15, Priority: "High Priority", HasProbability: true},
	})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "customer_id,will_churn,churn_probability,retention_probability,priority\nc1,1,0.85,0.15,High Priority\n", string(data))
}

func TestWriteRunJSON(t *testing.T) {
	r := NewReporter(&bytes.Buffer{}, t.TempDir())
	run := storage.NewRun("delay", "m.gob")
	run.CreatedAt = time.Date(2018, 8, 1, 0, 0, 0, 0, time.UTC)
	preds := []storage.Prediction{{Key: "o2", Class: 1, Probability: 0.95, HasProbability: true, Category: "High Risk"}}

	path, err := r.WriteRunJSON("run.json", run, preds)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var decoded struct {
		Run         storage.Run          `json:"run"`
		Predictions []storage.Prediction `json:"predictions"`
	}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, run.ID, decoded.Run.ID)
	assert.Equal(t, preds, decoded.Predictions)
}

func TestWrite_OutputPathBlocked(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o600))

	r := NewReporter(&bytes.Buffer{}, filepath.Join(blocker, "reports"))
	_, err := r.WriteDelayCSV("x.csv", delayPredictions())
	assert.Error(t, err)
}
