// Package repl provides an interactive shell for browsing recorded
// sessions: listing them, tailing their logs, and cleaning up old ones.
package repl

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/fatih/color"

	"github.com/stagewatch/stagewatch/internal/report"
	"github.com/stagewatch/stagewatch/internal/session"
	"github.com/stagewatch/stagewatch/internal/types"
)

// REPL is the interactive session browser.
type REPL struct {
	manager  *session.Manager
	rl       *readline.Instance
	commands map[string]CommandHandler
}

// CommandHandler handles one shell command.
type CommandHandler func(args []string) error

// Config holds REPL configuration.
type Config struct {
	Manager *session.Manager
}

// New creates a REPL over a session manager.
func New(cfg *Config) (*REPL, error) {
	if cfg == nil || cfg.Manager == nil {
		return nil, fmt.Errorf("session manager is required")
	}
	r := &REPL{
		manager:  cfg.Manager,
		commands: make(map[string]CommandHandler),
	}
	r.registerCommands()
	return r, nil
}

// Run starts the interactive loop and blocks until exit or EOF.
func (r *REPL) Run() error {
	cyan := color.New(color.FgCyan).SprintFunc()
	rl, err := readline.NewEx(&readline.Config{
		Prompt:            cyan("stagewatch> "),
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()
	r.rl = rl

	r.printWelcome()

	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			} else if err == io.EOF {
				fmt.Println("\nGoodbye!")
				return nil
			}
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if err := r.processInput(line); err != nil {
			if err == io.EOF {
				return nil
			}
			red := color.New(color.FgRed).SprintFunc()
			fmt.Printf("%s %v\n", red("Error:"), err)
		}
	}
}

func (r *REPL) processInput(line string) error {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return nil
	}
	if handler, ok := r.commands[parts[0]]; ok {
		return handler(parts[1:])
	}
	yellow := color.New(color.FgYellow).SprintFunc()
	fmt.Printf("%s unknown command %q, type 'help' for available commands\n", yellow("Note:"), parts[0])
	return nil
}

func (r *REPL) registerCommands() {
	r.commands["help"] = r.cmdHelp
	r.commands["?"] = r.cmdHelp
	r.commands["sessions"] = r.cmdSessions
	r.commands["latest"] = r.cmdLatest
	r.commands["tail"] = r.cmdTail
	r.commands["score"] = r.cmdScore
	r.commands["cleanup"] = r.cmdCleanup
	r.commands["exit"] = r.cmdExit
	r.commands["quit"] = r.cmdExit
}

func (r *REPL) printWelcome() {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	fmt.Printf("\n%s\n", cyan("Stagewatch session browser"))
	fmt.Println("Type 'help' for available commands, 'exit' to quit")
	fmt.Println()
}

func (r *REPL) cmdHelp(args []string) error {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	fmt.Printf("\n%s\n\n", cyan("Available Commands:"))

	commands := []struct {
		name string
		desc string
	}{
		{"sessions", "List recorded sessions"},
		{"latest", "Show the most recent session"},
		{"tail <id> [n]", "Show the last n log entries of a session (default 20)"},
		{"score [id]", "Show health scores from a session's generated report"},
		{"cleanup", "Delete sessions past the retention limits"},
		{"help, ?", "Show this help message"},
		{"exit, quit", "Exit the shell"},
	}
	for _, c := range commands {
		fmt.Printf("  %-16s %s\n", green(c.name), c.desc)
	}
	fmt.Println()
	return nil
}

func (r *REPL) cmdSessions(args []string) error {
	sessions, err := r.manager.ListSessions()
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Println("No sessions recorded")
		return nil
	}
	for _, s := range sessions {
		fmt.Printf("  %-10s %s  %s  %d entries\n",
			s.Status, s.ID, s.StartedAt.Format("2006-01-02 15:04:05"), s.EntryCount)
	}
	return nil
}

func (r *REPL) cmdLatest(args []string) error {
	dir, err := r.manager.LatestDir()
	if err != nil {
		return err
	}
	sess, err := session.ReadHeader(dir)
	if err != nil {
		return fmt.Errorf("reading latest session: %w", err)
	}
	fmt.Printf("  %s (%s)\n  %s\n", sess.ID, sess.Status, dir)
	return nil
}

func (r *REPL) cmdTail(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: tail <session-id|latest> [n]")
	}
	n := 20
	if len(args) > 1 {
		parsed, err := strconv.Atoi(args[1])
		if err != nil || parsed < 1 {
			return fmt.Errorf("invalid entry count %q", args[1])
		}
		n = parsed
	}

	dir, err := r.resolveDir(args[0])
	if err != nil {
		return err
	}

	entries, err := session.ReadEntries(dir)
	if err != nil {
		return err
	}
	if len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	for _, e := range entries {
		fmt.Printf("  %s %s %s/%s %s\n",
			e.Timestamp.Format("15:04:05.000"),
			severityTag(e.Severity), e.Component, e.Action, e.Message)
	}
	return nil
}

func (r *REPL) cmdScore(args []string) error {
	ref := "latest"
	if len(args) > 0 {
		ref = args[0]
	}
	dir, err := r.resolveDir(ref)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(filepath.Join(dir, "reports", "report.json"))
	if err != nil {
		return fmt.Errorf("no generated report for this session: %w", err)
	}
	var summary report.Summary
	if err := json.Unmarshal(data, &summary); err != nil {
		return fmt.Errorf("parsing report: %w", err)
	}

	fmt.Printf("  overall: %s (%d scored monitor(s), %d anomalies)\n",
		scoreTag(summary.OverallScore), summary.ScoredCount, summary.FailureCount)
	for _, m := range summary.Monitors {
		if !m.Available {
			fmt.Printf("  %-22s not available\n", m.Name)
			continue
		}
		fmt.Printf("  %-22s %s (%d checks)\n", m.Name, scoreTag(m.HealthScore), m.ChecksCompleted)
	}
	return nil
}

// resolveDir maps a session id, or the literal "latest", to its directory.
func (r *REPL) resolveDir(ref string) (string, error) {
	if ref == "latest" {
		return r.manager.LatestDir()
	}
	sess, err := r.manager.FindSession(ref)
	if err != nil {
		return "", err
	}
	return sess.Dir, nil
}

func (r *REPL) cmdCleanup(args []string) error {
	removed, err := r.manager.CleanupOldSessions()
	if err != nil {
		return err
	}
	fmt.Printf("Removed %d session(s)\n", removed)
	return nil
}

func (r *REPL) cmdExit(args []string) error {
	fmt.Println("Goodbye!")
	return io.EOF
}

func scoreTag(score float64) string {
	text := fmt.Sprintf("%.1f/100", score)
	switch {
	case score >= 90:
		return color.New(color.FgGreen).Sprint(text)
	case score >= 70:
		return color.New(color.FgYellow).Sprint(text)
	default:
		return color.New(color.FgRed).Sprint(text)
	}
}

func severityTag(s types.Severity) string {
	switch s {
	case types.SeverityError:
		return color.New(color.FgRed).Sprint("ERROR")
	case types.SeverityWarn:
		return color.New(color.FgYellow).Sprint("WARN ")
	case types.SeverityInfo:
		return "INFO "
	case types.SeverityDebug:
		return color.New(color.FgHiBlack).Sprint("DEBUG")
	default:
		return strings.ToUpper(string(s))
	}
}
