package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"handleprobe/internal/model"
	"handleprobe/internal/stats"
	"handleprobe/internal/tui"
)

func init() {
	rootCmd.AddCommand(checkCmd)
}

var checkCmd = &cobra.Command{
	Use:   "check <site> <handle>",
	Short: "Check a handle on a single site",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, cleanup, err := setup(cmd.Context(), false, nil)
		if err != nil {
			return err
		}
		defer cleanup()

		result, err := a.Service.Check(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		results := []model.CheckResult{result}
		fmt.Fprint(cmd.OutOrStdout(), tui.RenderResults(model.Snapshot{
			Handle:  result.Task.Handle,
			Results: results,
			Stats:   stats.Compute(results),
			Done:    true,
		}, false))
		if result.Title != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "Page title: %s\n", result.Title)
		}
		return nil
	},
}
