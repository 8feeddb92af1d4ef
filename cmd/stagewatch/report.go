package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/stagewatch/stagewatch/internal/report"
	"github.com/stagewatch/stagewatch/internal/session"
)

var reportCmd = &cobra.Command{
	Use:   "report <session-id|latest|dir>",
	Short: "Regenerate report artifacts from a recorded session",
	Long: `Rebuild the report artifacts for a finished session from its log
files. Live monitor state is gone at this point, so monitor cards show
as not available; everything derivable from the persisted entries is
regenerated.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := resolveSessionDir(args[0])
		if err != nil {
			return err
		}

		sess, err := session.ReadHeader(dir)
		if err != nil {
			return fmt.Errorf("reading session header: %w", err)
		}
		entries, err := session.ReadEntries(dir)
		if err != nil {
			return fmt.Errorf("reading session log: %w", err)
		}

		gen := report.NewGenerator(filepath.Join(dir, "reports"))
		art, err := gen.Generate(&report.Input{
			Session:     sess,
			Entries:     entries,
			GeneratedAt: time.Now(),
		})
		if err != nil {
			return err
		}

		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s regenerated report for session %s (%d entries)\n", green("done:"), sess.ID, len(entries))
		fmt.Printf("  dashboard: %s\n", art.Dashboard)
		fmt.Printf("  json:      %s\n", art.JSON)
		return nil
	},
}

// resolveSessionDir maps a session id or the literal "latest" to its
// directory under the configured root. A ref that already names an
// existing directory is used as-is.
func resolveSessionDir(ref string) (string, error) {
	if info, err := os.Stat(ref); err == nil && info.IsDir() {
		return ref, nil
	}
	mgr, err := session.NewManager(cfg.Root, cfg.Logger.RotateBytes, cfg.Retention, nil)
	if err != nil {
		return "", err
	}
	if ref == "latest" {
		return mgr.LatestDir()
	}
	sess, err := mgr.FindSession(ref)
	if err != nil {
		return "", err
	}
	return sess.Dir, nil
}

func init() {
	rootCmd.AddCommand(reportCmd)
}
