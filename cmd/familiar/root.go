package main

import (
	"fmt"
	"os"

	"github.com/harunnryd/familiar/internal/config"
	"github.com/harunnryd/familiar/internal/logger"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "familiar",
	Short: "Familiar, an AI that lives on your computer",
	Long:  `Familiar is a conversational agent with its own drives: it talks with you, uses tools, remembers, and acts on its own when something catches its interest.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cmd)
		if err != nil {
			return err
		}

		logger.SetupWriter(os.Stderr, cfg.Log.Level, cfg.Log.Format)
		return nil
	},
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.familiar/config.yaml)")
	rootCmd.PersistentFlags().String("log.level", config.DefaultLogLevel, "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("model.provider", config.DefaultModelProvider, "backend provider (anthropic, openai, gemini)")
	rootCmd.PersistentFlags().String("model.name", "", "model name (default depends on provider)")
}
