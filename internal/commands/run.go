package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"crypto-signals/internal/engine"
)

var cycleNames = []string{engine.NameAlarms, engine.NameDCA, engine.NameTrailing}

var runCmd = &cobra.Command{
	Use:       "run {alarms|dca|trailing|all}",
	Short:     "Run one engine cycle",
	Long:      "Run a single cycle of the named engine, or all three in order, and print the reports.",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: append(append([]string{}, cycleNames...), "all"),
	RunE: func(cmd *cobra.Command, args []string) error {
		names := []string{args[0]}
		if args[0] == "all" {
			names = cycleNames
		}

		a, err := newApp()
		if err != nil {
			return fmt.Errorf("failed to initialize: %w", err)
		}
		defer a.Close()

		reports := make(map[string]engine.CycleReport, len(names))
		var failed error
		for _, name := range names {
			rep, err := a.RunCycle(cmd.Context(), name)
			reports[name] = rep
			if err != nil && failed == nil {
				failed = fmt.Errorf("%s cycle: %w", name, err)
			}
		}
		if err := printJSON(cmd.OutOrStdout(), reports); err != nil {
			return err
		}
		return failed
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
