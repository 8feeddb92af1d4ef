package main

import (
	"github.com/spf13/cobra"

	"github.com/stagewatch/stagewatch/internal/repl"
	"github.com/stagewatch/stagewatch/internal/session"
)

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Start the interactive session browser",
	Long: `Start an interactive shell for browsing recorded sessions: listing
them, tailing their logs, and cleaning up old ones.

Type 'help' in the shell for available commands.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, err := session.NewManager(cfg.Root, cfg.Logger.RotateBytes, cfg.Retention, nil)
		if err != nil {
			return err
		}
		r, err := repl.New(&repl.Config{Manager: mgr})
		if err != nil {
			return err
		}
		return r.Run()
	},
}

func init() {
	rootCmd.AddCommand(replCmd)
}
