// Package report renders pipeline results as console tables and exports
// prediction runs to CSV and JSON files.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"olist-ml/internal/ml"
	"olist-ml/internal/storage"
	"olist-ml/internal/warehouse"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog/log"
)

// DefaultLimit is the number of rows shown by the prediction tables.
const DefaultLimit = 10

const timeLayout = "2006-01-02 15:04:05"

var heading = color.New(color.FgYellow, color.Bold)

// Reporter writes tables to out and export files under outputPath.
type Reporter struct {
	out        io.Writer
	outputPath string
}

// NewReporter creates a reporter. An empty outputPath writes exports to
// the working directory.
func NewReporter(out io.Writer, outputPath string) *Reporter {
	if out == nil {
		out = os.Stdout
	}
	return &Reporter{out: out, outputPath: outputPath}
}

func (r *Reporter) title(s string) {
	heading.Fprintf(r.out, "\n%s\n", s)
}

func (r *Reporter) table(header []string, rows [][]string) {
	table := tablewriter.NewWriter(r.out)
	table.SetAutoFormatHeaders(false)
	table.SetHeader(header)
	table.AppendBulk(rows)
	table.Render()
}

// PrintSummary prints the OBT headline statistics.
func (r *Reporter) PrintSummary(s warehouse.Summary) {
	r.title("DATA SUMMARY")
	r.table([]string{"Metric", "Value"}, [][]string{
		{"Total orders", fmt.Sprintf("%.0f", s.TotalOrders)},
		{"Delivered orders", fmt.Sprintf("%.0f", s.DeliveredOrders)},
		{"First order", s.MinDate},
		{"Last order", s.MaxDate},
		{"Avg order value", fmt.Sprintf("%.2f", s.AvgOrderValue)},
		{"Late delivery rate", fmt.Sprintf("%.2f%%", s.LateDeliveryRate*100)},
	})
}

// PrintEvaluation prints the headline scores, the confusion matrix and the
// per-class report of a model evaluation.
func (r *Reporter) PrintEvaluation(name string, e ml.Evaluation) {
	r.title(fmt.Sprintf("%s EVALUATION", name))

	rows := [][]string{
		{"Accuracy", score(e.Accuracy)},
		{"Precision", score(e.Precision)},
		{"Recall", score(e.Recall)},
		{"F1", score(e.F1)},
	}
	roc := "n/a"
	if e.HasROCAUC {
		roc = score(e.ROCAUC)
	}
	rows = append(rows, []string{"ROC-AUC", roc})
	r.table([]string{"Metric", "Score"}, rows)

	r.table([]string{"Actual \\ Predicted", "0", "1"}, [][]string{
		{"0", strconv.Itoa(e.Confusion[0][0]), strconv.Itoa(e.Confusion[0][1])},
		{"1", strconv.Itoa(e.Confusion[1][0]), strconv.Itoa(e.Confusion[1][1])},
	})

	if len(e.Report) > 0 {
		classes := make([][]string, 0, len(e.Report))
		for _, c := range e.Report {
			classes = append(classes, []string{
				strconv.Itoa(c.Class), score(c.Precision), score(c.Recall), score(c.F1), strconv.Itoa(c.Support),
			})
		}
		r.table([]string{"Class", "Precision", "Recall", "F1", "Support"}, classes)
	}
}

// PrintFeatureImportance prints features in the order given.
func (r *Reporter) PrintFeatureImportance(scores []ml.FeatureScore) {
	r.title("FEATURE IMPORTANCE")
	rows := make([][]string, 0, len(scores))
	for i, s := range scores {
		rows = append(rows, []string{strconv.Itoa(i + 1), s.Feature, score(s.Importance)})
	}
	r.table([]string{"Rank", "Feature", "Importance"}, rows)
}

// PrintDelayPredictions prints the first limit predictions under title.
// limit <= 0 prints all of them.
func (r *Reporter) PrintDelayPredictions(title string, preds []ml.DelayPrediction, limit int) {
	r.title(fmt.Sprintf("%s: %d", title, len(preds)))
	rows := make([][]string, 0, min(len(preds), DefaultLimit))
	for _, p := range head(preds, limit) {
		rows = append(rows, []string{
			p.OrderID,
			strconv.Itoa(p.WillBeDelayed),
			proba(p.ProbDelayed, p.HasProbability),
			orDash(p.RiskCategory),
		})
	}
	r.table([]string{"Order", "Delayed", "P(delay)", "Risk"}, rows)
}

// PrintChurnPredictions prints the first limit predictions under title.
func (r *Reporter) PrintChurnPredictions(title string, preds []ml.ChurnPrediction, limit int) {
	r.title(fmt.Sprintf("%s: %d", title, len(preds)))
	rows := make([][]string, 0, min(len(preds), DefaultLimit))
	for _, p := range head(preds, limit) {
		rows = append(rows, []string{
			p.CustomerID,
			strconv.Itoa(p.WillChurn),
			proba(p.ChurnProbability, p.HasProbability),
			orDash(p.Priority),
		})
	}
	r.table([]string{"Customer", "Churn", "P(churn)", "Priority"}, rows)
}

// PrintRuns prints stored prediction runs.
func (r *Reporter) PrintRuns(runs []storage.Run) {
	r.title(fmt.Sprintf("STORED RUNS: %d", len(runs)))
	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		threshold := "-"
		if run.Threshold > 0 {
			threshold = score(run.Threshold)
		}
		rows = append(rows, []string{
			run.ID.String(),
			run.Task,
			run.CreatedAt.Local().Format(timeLayout),
			strconv.Itoa(run.Rows),
			threshold,
			run.ModelPath,
		})
	}
	r.table([]string{"Run", "Task", "Created", "Rows", "Threshold", "Model"}, rows)
}

// PrintStored prints the rows of a stored run.
func (r *Reporter) PrintStored(preds []storage.Prediction, limit int) {
	r.title(fmt.Sprintf("PREDICTIONS: %d", len(preds)))
	rows := make([][]string, 0, min(len(preds), DefaultLimit))
	for _, p := range head(preds, limit) {
		rows = append(rows, []string{
			p.Key,
			strconv.Itoa(p.Class),
			proba(p.Probability, p.HasProbability),
			orDash(p.Category),
		})
	}
	r.table([]string{"Key", "Class", "Probability", "Category"}, rows)
}

// WriteDelayCSV exports delay predictions and returns the file path.
func (r *Reporter) WriteDelayCSV(name string, preds []ml.DelayPrediction) (string, error) {
	header := []string{"order_id", "will_be_delayed", "confidence", "prob_on_time", "prob_delayed", "risk_category"}
	records := make([][]string, 0, len(preds))
	for _, p := range preds {
		records = append(records, []string{
			p.OrderID,
			strconv.Itoa(p.WillBeDelayed),
			optional(p.Confidence, p.HasProbability),
			optional(p.ProbOnTime, p.HasProbability),
			optional(p.ProbDelayed, p.HasProbability),
			p.RiskCategory,
		})
	}
	return r.writeCSV(name, header, records)
}

// WriteChurnCSV exports churn predictions and returns the file path.
func (r *Reporter) WriteChurnCSV(name string, preds []ml.ChurnPrediction) (string, error) {
	header := []string{"customer_id", "will_churn", "churn_probability", "retention_probability", "priority"}
	records := make([][]string, 0, len(preds))
	for _, p := range preds {
		records = append(records, []string{
			p.CustomerID,
			strconv.Itoa(p.WillChurn),
			optional(p.ChurnProbability, p.HasProbability),
			optional(p.RetentionProbability, p.HasProbability),
			p.Priority,
		})
	}
	return r.writeCSV(name, header, records)
}

func (r *Reporter) writeCSV(name string, header []string, records [][]string) (string, error) {
	path, err := r.path(name)
	if err != nil {
		return "", err
	}
	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", name, err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(header); err != nil {
		return "", err
	}
	if err := writer.WriteAll(records); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", name, err)
	}

	log.Info().Str("file", path).Int("rows", len(records)).Msg("Prediction export generated")
	return path, nil
}

// WriteRunJSON exports a stored run with its predictions.
func (r *Reporter) WriteRunJSON(name string, run storage.Run, preds []storage.Prediction) (string, error) {
	path, err := r.path(name)
	if err != nil {
		return "", err
	}

	report := map[string]interface{}{
		"run":          run,
		"predictions":  preds,
		"generated_at": time.Now().UTC(),
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write JSON report: %w", err)
	}

	log.Info().Str("file", path).Msg("JSON report generated")
	return path, nil
}

func (r *Reporter) path(name string) (string, error) {
	if r.outputPath == "" {
		return name, nil
	}
	if err := os.MkdirAll(r.outputPath, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	return filepath.Join(r.outputPath, name), nil
}

func head[T any](s []T, limit int) []T {
	if limit > 0 && limit < len(s) {
		return s[:limit]
	}
	return s
}

func score(v float64) string { return strconv.FormatFloat(v, 'f', 4, 64) }

func proba(v float64, ok bool) string {
	if !ok {
		return "-"
	}
	return score(v)
}

func optional(v float64, ok bool) string {
	if !ok {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
