package main

import (
	"fmt"

	"github.com/harunnryd/familiar/internal/desire"
	"github.com/harunnryd/familiar/internal/formatter"

	"github.com/spf13/cobra"
)

var desiresCmd = &cobra.Command{
	Use:   "desires",
	Short: "Show the familiar's drives",
	Long:  `Print the persisted drive levels and the pending curiosity target.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		loadedCfg, err := loadConfigForCommand(cmd)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		output, _ := cmd.Flags().GetString("output")
		format, err := formatter.ParseOutputFormat(output)
		if err != nil {
			return err
		}
		f, err := formatter.NewFormatterFactory().Create(format)
		if err != nil {
			return err
		}

		state := desire.NewState(desire.NewStore(loadedCfg.Desire.StatePath), desire.Options{Threshold: loadedCfg.Desire.Threshold})
		rendered, err := f.FormatDesires(formatter.NewDesireReport(state.Readings(), state.Curiosity()))
		if err != nil {
			return fmt.Errorf("failed to format desires: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), rendered)
		return nil
	},
}

func init() {
	desiresCmd.Flags().StringP("output", "o", string(formatter.OutputFormatTable), "output format (table, json, yaml)")
	rootCmd.AddCommand(desiresCmd)
}
