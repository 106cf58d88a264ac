package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"olist-ml/internal/common"
	"olist-ml/internal/dataset"
	"olist-ml/internal/features"
	"olist-ml/internal/ml"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// Training tasks.
const (
	taskDelay  = "delay"
	taskChurn  = "churn"
	taskReview = "review"
)

var trainFlags struct {
	model    string
	testSize float64
	seed     int64
	grid     []string
	folds    int
	top      int
	start    string
	end      string
	sample   int
}

var trainCmd = &cobra.Command{
	Use:   "train [delay|churn|review]",
	Short: "Train, evaluate and save a model",
	Long: `Train one of the binary classifiers:

  delay   - is_delayed, from the split written by "obtml load"
  churn   - is_churned (no order for more than 90 days), from the OBT
  review  - positive_review (review score of 4 or more), from the OBT

The review label is only known after delivery; that model is not fit for
pre-delivery prediction.`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{taskDelay, taskChurn, taskReview},
	RunE:      runTrain,
}

func init() {
	f := trainCmd.Flags()
	f.StringVar(&trainFlags.model, "model", string(ml.GradientBoostingModel), "Model type: gradient_boosting or random_forest")
	f.Float64Var(&trainFlags.testSize, "test-size", 0.2, "Share of rows held out for evaluation")
	f.Int64Var(&trainFlags.seed, "seed", ml.DefaultSeed, "Split seed")
	f.StringArrayVar(&trainFlags.grid, "grid", nil, "Tune over name=v1,v2 (repeatable), e.g. max_depth=3,5")
	f.IntVar(&trainFlags.folds, "folds", 3, "Cross-validation folds when tuning")
	f.IntVar(&trainFlags.top, "top", 10, "Feature importances to print")
	addWindowFlags(trainCmd, &trainFlags.start, &trainFlags.end, &trainFlags.sample)
	rootCmd.AddCommand(trainCmd)
}

func runTrain(cmd *cobra.Command, args []string) error {
	task := args[0]
	modelType, err := ml.ParseModelType(trainFlags.model)
	if err != nil {
		return err
	}
	grid, err := parseGrid(trainFlags.grid)
	if err != nil {
		return err
	}

	X, y, err := trainingSet(cmd.Context(), task)
	if err != nil {
		return err
	}
	Xtrain, Xtest, ytrain, ytest, err := ml.TrainTestSplit(X, y, trainFlags.testSize, trainFlags.seed, true)
	if err != nil {
		return err
	}
	log.Info().Int("train", len(ytrain)).Int("test", len(ytest)).Msg("Split dataset")

	trainer, err := ml.NewTrainer(modelType)
	if err != nil {
		return err
	}
	trainer.WithMetrics(app.Wrapper)
	if len(grid) > 0 {
		res, err := trainer.Tune(Xtrain, ytrain, grid, trainFlags.folds)
		if err != nil {
			return err
		}
		success("Best parameters %v (cv roc_auc %.4f)", res.Best.Params, res.Best.Mean)
	} else if err := trainer.Train(Xtrain, ytrain); err != nil {
		return err
	}

	eval, err := trainer.Evaluate(Xtest, ytest)
	if err != nil {
		return err
	}
	path := app.Settings.ModelPath(modelFile(task))
	if err := trainer.Save(path, eval.Metrics()); err != nil {
		return err
	}
	app.Reporter.PrintEvaluation(strings.ToUpper(task), eval)

	scores, err := trainer.FeatureImportance(0)
	if err != nil {
		return err
	}
	if task == taskDelay {
		if err := ml.SaveFeatureImportance(ml.ImportancePath(path), scores); err != nil {
			return err
		}
	}
	if trainFlags.top > 0 && trainFlags.top < len(scores) {
		scores = scores[:trainFlags.top]
	}
	app.Reporter.PrintFeatureImportance(scores)

	success("Saved %s model to %s", task, path)
	return nil
}

// trainingSet loads the feature matrix and labels of task.
func trainingSet(ctx context.Context, task string) (*dataset.Dataset, []int, error) {
	if task == taskDelay {
		X, target, err := dataset.LoadSplit(ctx, app.Settings.DataDir, common.DelaySplitPrefix)
		if err != nil {
			return nil, nil, fmt.Errorf("load split (run \"obtml load\" first): %w", err)
		}
		y, err := features.Label{Name: dataset.TargetColumn, Column: target}.Ints()
		return X, y, err
	}

	derive, target := features.WithChurnLabel, dataset.FieldIsChurned
	switch task {
	case taskChurn:
	case taskReview:
		derive, target = features.WithPositiveReviewLabel, dataset.FieldPositiveReview
		warn("review labels come from post-delivery scores")
	default:
		return nil, nil, fmt.Errorf("unknown task %q (want %s, %s or %s)", task, taskDelay, taskChurn, taskReview)
	}

	qctx, cancel := app.queryContext(ctx)
	defer cancel()
	loader, err := app.openLoader(qctx)
	if err != nil {
		return nil, nil, err
	}
	defer loader.Source().Close()

	ds, err := loader.LoadOBT(qctx, trainFlags.start, trainFlags.end, trainFlags.sample)
	if err != nil {
		return nil, nil, err
	}
	if ds, err = derive(ds); err != nil {
		return nil, nil, err
	}
	X, label, err := app.preparer().Prepare(ds, target)
	if err != nil {
		return nil, nil, err
	}
	y, err := label.Ints()
	return X, y, err
}

func modelFile(task string) string {
	switch task {
	case taskChurn:
		return common.ChurnModelFile
	case taskReview:
		return common.ReviewModelFile
	}
	return common.DelayModelFile
}

// parseGrid reads name=v1,v2 hyperparameter lists.
func parseGrid(entries []string) (ml.ParamGrid, error) {
	grid := ml.ParamGrid{}
	for _, entry := range entries {
		name, values, ok := strings.Cut(entry, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid grid %q: want name=v1,v2", entry)
		}
		for _, v := range strings.Split(values, ",") {
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				return nil, fmt.Errorf("invalid grid value %q for %s: %w", v, name, err)
			}
			grid[name] = append(grid[name], f)
		}
	}
	return grid, nil
}
