package main

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/stagewatch/stagewatch/internal/session"
	"github.com/stagewatch/stagewatch/internal/types"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage recorded monitoring sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, err := session.NewManager(cfg.Root, cfg.Logger.RotateBytes, cfg.Retention, nil)
		if err != nil {
			return err
		}
		sessions, err := mgr.ListSessions()
		if err != nil {
			return fmt.Errorf("listing sessions: %w", err)
		}

		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()
		fmt.Printf("\n%s\n\n", cyan("Recorded Sessions"))

		if len(sessions) == 0 {
			fmt.Printf("  %s\n", gray("No sessions recorded"))
			return nil
		}

		for _, s := range sessions {
			fmt.Printf("  %s %s\n", statusBadge(s.Status), s.ID)
			fmt.Printf("    Started: %s\n", s.StartedAt.Format("2006-01-02 15:04:05"))
			if s.EndedAt != nil {
				fmt.Printf("    Ended:   %s (%s)\n", s.EndedAt.Format("2006-01-02 15:04:05"),
					s.EndedAt.Sub(s.StartedAt).Round(time.Second))
			}
			fmt.Printf("    Entries: %d (%d bytes)\n", s.EntryCount, s.SizeBytes)
			fmt.Printf("    Dir:     %s\n", s.Dir)
			if s.FailReason != "" {
				red := color.New(color.FgRed).SprintFunc()
				fmt.Printf("    Reason:  %s\n", red(s.FailReason))
			}
			fmt.Println()
		}
		return nil
	},
}

var sessionsCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete sessions past the retention limits",
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, err := session.NewManager(cfg.Root, cfg.Logger.RotateBytes, cfg.Retention, nil)
		if err != nil {
			return err
		}
		removed, err := mgr.CleanupOldSessions()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: cleanup finished with errors: %v\n", err)
		}
		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s removed %d session(s)\n", green("done:"), removed)
		return nil
	},
}

func statusBadge(s types.SessionStatus) string {
	switch s {
	case types.SessionActive:
		return color.New(color.FgYellow).Sprint("●")
	case types.SessionCompleted:
		return color.New(color.FgGreen).Sprint("●")
	case types.SessionFailed:
		return color.New(color.FgRed).Sprint("●")
	default:
		return "○"
	}
}

func init() {
	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsCleanupCmd)
	rootCmd.AddCommand(sessionsCmd)
}
