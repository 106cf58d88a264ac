package main

import (
	"olist-ml/internal/common"
	"olist-ml/internal/dataset"

	"github.com/spf13/cobra"
)

var loadFlags struct {
	start  string
	end    string
	sample int
}

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Load the OBT and persist the delivery delay training split",
	Long: `Load the ML export of the OBT, prepare the is_delayed feature matrix and
write it to DATA_DIR as delivery_prediction_features.parquet and
delivery_prediction_target.parquet.`,
	Args: cobra.NoArgs,
	RunE: runLoad,
}

func init() {
	addWindowFlags(loadCmd, &loadFlags.start, &loadFlags.end, &loadFlags.sample)
	rootCmd.AddCommand(loadCmd)
}

// addWindowFlags registers the purchase date window and sample size flags.
func addWindowFlags(cmd *cobra.Command, start, end *string, sample *int) {
	cmd.Flags().StringVar(start, "start", "", "First purchase date (YYYY-MM-DD)")
	cmd.Flags().StringVar(end, "end", "", "Last purchase date (YYYY-MM-DD)")
	cmd.Flags().IntVar(sample, "sample", 0, "Maximum rows to load (0 loads all)")
}

func runLoad(cmd *cobra.Command, args []string) error {
	ctx, cancel := app.queryContext(cmd.Context())
	defer cancel()

	loader, err := app.openLoader(ctx)
	if err != nil {
		return err
	}
	defer loader.Source().Close()

	ds, err := loader.LoadOBT(ctx, loadFlags.start, loadFlags.end, loadFlags.sample)
	if err != nil {
		return err
	}
	X, label, err := app.preparer().Prepare(ds, dataset.FieldIsDelayed)
	if err != nil {
		return err
	}
	if err := dataset.SaveSplit(app.Settings.DataDir, common.DelaySplitPrefix, X, label.Column); err != nil {
		return err
	}

	success("Saved %d rows x %d features to %s_*.parquet", X.NumRows(), X.NumCols(),
		app.Settings.SplitPrefix(common.DelaySplitPrefix))
	return nil
}
