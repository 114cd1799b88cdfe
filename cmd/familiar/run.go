package main

import (
	"fmt"

	"github.com/harunnryd/familiar/cmd/familiar/runtime"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start Familiar in interactive mode",
	Long:  `Talk with your familiar. While it is idle its drives keep growing, and when one crosses the threshold it acts on its own.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg == nil {
			return fmt.Errorf("config not loaded")
		}

		r, err := runtime.NewRuntimeBuilder().
			WithContext(cmd.Context()).
			WithConfig(cfg).
			WithIO(cmd.InOrStdin(), cmd.OutOrStdout()).
			Build()
		if err != nil {
			return fmt.Errorf("failed to initialize runtime: %w", err)
		}
		return r.Run(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().Bool("agent.planning", false, "draft a short plan before each turn")
	runCmd.Flags().Bool("desire.enabled", true, "let drives start turns on their own")
}
