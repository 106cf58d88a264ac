package main

import (
	"fmt"

	"olist-ml/internal/storage"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var runsFlags struct {
	task   string
	show   string
	export bool
	delete string
}

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List, inspect or delete stored prediction runs",
	Args:  cobra.NoArgs,
	RunE:  runRuns,
}

func init() {
	f := runsCmd.Flags()
	f.StringVar(&runsFlags.task, "task", "", "Only list runs of this task (delay or churn)")
	f.StringVar(&runsFlags.show, "show", "", "Print the predictions of this run id")
	f.BoolVar(&runsFlags.export, "export", false, "With --show, also write the run as JSON")
	f.StringVar(&runsFlags.delete, "delete", "", "Delete this run id")
	rootCmd.AddCommand(runsCmd)
}

func runRuns(cmd *cobra.Command, args []string) error {
	store, err := app.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	switch {
	case runsFlags.delete != "":
		id, err := parseRunID(runsFlags.delete)
		if err != nil {
			return err
		}
		if err := store.DeleteRun(id); err != nil {
			return err
		}
		success("Deleted run %s", id)
		return nil

	case runsFlags.show != "":
		id, err := parseRunID(runsFlags.show)
		if err != nil {
			return err
		}
		run, err := store.GetRun(id)
		if err != nil {
			return err
		}
		preds, err := store.GetPredictions(id)
		if err != nil {
			return err
		}
		app.Reporter.PrintRuns([]storage.Run{run})
		app.Reporter.PrintStored(preds, 0)
		if runsFlags.export {
			path, err := app.Reporter.WriteRunJSON(id.String()+".json", run, preds)
			if err != nil {
				return err
			}
			success("Wrote %s", path)
		}
		return nil
	}

	runs, err := store.ListRuns(runsFlags.task)
	if err != nil {
		return err
	}
	app.Reporter.PrintRuns(runs)
	return nil
}

func parseRunID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid run id %q: %w", s, err)
	}
	return id, nil
}
