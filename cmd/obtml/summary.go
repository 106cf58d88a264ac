package main

import (
	"github.com/spf13/cobra"
)

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Print headline statistics of the OBT",
	Args:  cobra.NoArgs,
	RunE:  runSummary,
}

func init() {
	rootCmd.AddCommand(summaryCmd)
}

func runSummary(cmd *cobra.Command, args []string) error {
	ctx, cancel := app.queryContext(cmd.Context())
	defer cancel()

	loader, err := app.openLoader(ctx)
	if err != nil {
		return err
	}
	defer loader.Source().Close()

	s, err := loader.DataSummary(ctx)
	if err != nil {
		return err
	}
	app.Reporter.PrintSummary(s)
	return nil
}
