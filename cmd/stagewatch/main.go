package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/stagewatch/stagewatch/internal/config"
)

var (
	cfgPath string
	rootDir string
	cfg     config.Config
)

var rootCmd = &cobra.Command{
	Use:   "stagewatch",
	Short: "Integration health monitoring harness",
	Long: `Stagewatch observes a monitored application from the inside: it wraps
the diagnostic console, samples UI state, validates pipeline stage
sequences, and generates health reports per session.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if rootDir != "" {
			cfg.Root = rootDir
		}
		return cfg.Validate()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to config file (YAML)")
	rootCmd.PersistentFlags().StringVar(&rootDir, "root", "", "harness data directory (overrides config)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
