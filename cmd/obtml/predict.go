package main

import (
	"fmt"

	"olist-ml/internal/common"
	"olist-ml/internal/ml"
	"olist-ml/internal/report"
	"olist-ml/internal/storage"

	"github.com/spf13/cobra"
)

var predictFlags struct {
	ids       string
	threshold float64
	limit     int
	export    bool
	noStore   bool
}

var predictCmd = &cobra.Command{
	Use:   "predict [delay|churn]",
	Short: "Score orders for late delivery or customers for churn",
	Long: `Score with a trained model and store the run.

Without --ids, delay lists every order whose delay probability reaches
the high-risk threshold and churn lists every customer whose churn
probability reaches the at-risk threshold.`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{taskDelay, taskChurn},
	RunE:      runPredict,
}

func init() {
	f := predictCmd.Flags()
	f.StringVar(&predictFlags.ids, "ids", "", "Comma separated order or customer ids to score")
	f.Float64Var(&predictFlags.threshold, "threshold", 0, "Probability threshold (default HIGH_RISK_THRESHOLD or AT_RISK_THRESHOLD)")
	f.IntVar(&predictFlags.limit, "limit", report.DefaultLimit, "Rows to print (0 prints all)")
	f.BoolVar(&predictFlags.export, "export", false, "Also write the predictions as CSV")
	f.BoolVar(&predictFlags.noStore, "no-store", false, "Do not store the run")
	rootCmd.AddCommand(predictCmd)
}

func runPredict(cmd *cobra.Command, args []string) error {
	task := args[0]
	if task != taskDelay && task != taskChurn {
		return fmt.Errorf("unknown task %q (want %s or %s)", task, taskDelay, taskChurn)
	}
	path := app.Settings.ModelPath(modelFile(task))
	predictor, err := ml.LoadWithMetrics(path, app.Wrapper)
	if err != nil {
		return err
	}

	ctx, cancel := app.queryContext(cmd.Context())
	defer cancel()
	loader, err := app.openLoader(ctx)
	if err != nil {
		return err
	}
	defer loader.Source().Close()

	ids := splitIDs(predictFlags.ids)
	run := storage.NewRun(task, path)
	var rows []storage.Prediction

	switch task {
	case taskDelay:
		d := ml.NewDeliveryDelayPredictor(predictor, loader, app.preparer(), app.Settings.BatchSize)
		var preds []ml.DelayPrediction
		title := "Predictions"
		if len(ids) > 0 {
			preds, err = d.PredictOrders(ctx, ids)
		} else {
			run.Threshold = thresholdOr(app.Settings.HighRiskThreshold, common.DefaultHighRiskThreshold)
			preds, err = d.HighRiskOrders(ctx, run.Threshold)
			title = "High-Risk Orders"
		}
		if err != nil {
			app.Wrapper.PredictionFailures().Inc()
			return err
		}
		app.Reporter.PrintDelayPredictions(title, preds, predictFlags.limit)
		if predictFlags.export {
			if _, err := app.Reporter.WriteDelayCSV(run.ID.String()+"_delay.csv", preds); err != nil {
				return err
			}
		}
		rows = delayRows(preds)

	case taskChurn:
		c := ml.NewChurnPredictor(predictor, loader, app.preparer(), app.Settings.BatchSize)
		var preds []ml.ChurnPrediction
		title := "Predictions"
		if len(ids) > 0 {
			preds, err = c.PredictCustomers(ctx, ids)
		} else {
			run.Threshold = thresholdOr(app.Settings.AtRiskThreshold, common.DefaultAtRiskThreshold)
			preds, err = c.AtRiskCustomers(ctx, run.Threshold)
			title = "At-Risk Customers"
		}
		if err != nil {
			app.Wrapper.PredictionFailures().Inc()
			return err
		}
		app.Reporter.PrintChurnPredictions(title, preds, predictFlags.limit)
		if predictFlags.export {
			if _, err := app.Reporter.WriteChurnCSV(run.ID.String()+"_churn.csv", preds); err != nil {
				return err
			}
		}
		rows = churnRows(preds)
	}

	if predictFlags.noStore {
		return nil
	}
	return storeRun(run, rows)
}

func storeRun(run storage.Run, rows []storage.Prediction) error {
	store, err := app.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	stored, err := store.StoreRun(run, rows)
	if err != nil {
		return err
	}
	app.Metrics.PredictionsStored.Add(float64(stored.Rows))
	success("Stored run %s (%d rows) in %s", stored.ID, stored.Rows, app.Settings.StorePath)
	return nil
}

// thresholdOr picks the --threshold flag, then the configured value, then
// the task default.
func thresholdOr(configured, fallback float64) float64 {
	if predictFlags.threshold > 0 {
		return predictFlags.threshold
	}
	if configured > 0 {
		return configured
	}
	return fallback
}

func delayRows(preds []ml.DelayPrediction) []storage.Prediction {
	out := make([]storage.Prediction, len(preds))
	for i, p := range preds {
		out[i] = storage.Prediction{
			Key:            p.OrderID,
			Class:          p.WillBeDelayed,
			Probability:    p.ProbDelayed,
			HasProbability: p.HasProbability,
			Category:       p.RiskCategory,
		}
	}
	return out
}

func churnRows(preds []ml.ChurnPrediction) []storage.Prediction {
	out := make([]storage.Prediction, len(preds))
	for i, p := range preds {
		out[i] = storage.Prediction{
			Key:            p.CustomerID,
			Class:          p.WillChurn,
			Probability:    p.ChurnProbability,
			HasProbability: p.HasProbability,
			Category:       p.Priority,
		}
	}
	return out
}
