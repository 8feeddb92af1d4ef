package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/stagewatch/stagewatch/internal/harness"
	"github.com/stagewatch/stagewatch/internal/host"
)

var (
	feedPath    string
	runDuration time.Duration
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a monitoring session against a recorded event feed",
	Long: `Start a full monitoring session and drive it from a JSONL feed file.

Each feed line is a JSON record:
  {"type":"console","level":"info","message":"...","delay_ms":10}
  {"type":"mutation","kind":"attach","node_class":"highlight","text":"..."}

The session runs until the feed is exhausted, the duration elapses, or
an interrupt arrives. Artifacts land in the session directory.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if feedPath == "" {
			return fmt.Errorf("--feed is required")
		}
		return runSession(cmd.Context(), feedPath, runDuration)
	},
}

func init() {
	runCmd.Flags().StringVar(&feedPath, "feed", "", "JSONL event feed to replay")
	runCmd.Flags().DurationVar(&runDuration, "duration", 0, "maximum session duration (0 = until feed ends)")
	rootCmd.AddCommand(runCmd)
}

func runSession(parent context.Context, feed string, maxDur time.Duration) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()
	if maxDur > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, maxDur)
		defer cancel()
	}

	console := newFeedConsole()
	mutations := newFeedMutations()

	h, err := harness.New(cfg, harness.Host{
		Console:   console,
		Mutations: mutations,
	})
	if err != nil {
		return err
	}
	if err := h.Start(ctx); err != nil {
		return fmt.Errorf("starting harness: %w", err)
	}

	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	fmt.Printf("%s session %s\n", cyan("stagewatch:"), h.Session().ID)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return replayFeed(ctx, feed, console, mutations)
	})
	feedErr := g.Wait()

	art, stopErr := h.Stop()
	if stopErr != nil {
		return fmt.Errorf("stopping harness: %w", stopErr)
	}
	if feedErr != nil && feedErr != context.Canceled && feedErr != context.DeadlineExceeded {
		return fmt.Errorf("replaying feed: %w", feedErr)
	}

	green := color.New(color.FgGreen).SprintFunc()
	fmt.Printf("%s report written\n", green("done:"))
	fmt.Printf("  dashboard: %s\n", art.Dashboard)
	fmt.Printf("  json:      %s\n", art.JSON)
	fmt.Printf("  csv:       %s\n", art.CSV)
	fmt.Printf("  summary:   %s\n", art.Summary)
	return nil
}

// feedRecord is one line of the replay feed.
type feedRecord struct {
	Type    string `json:"type"`
	Level   string `json:"level"`
	Message string `json:"message"`
	DelayMS int    `json:"delay_ms"`

	Kind      string `json:"kind"`
	NodePath  string `json:"node_path"`
	NodeClass string `json:"node_class"`
	Text      string `json:"text"`
	Attr      string `json:"attr"`
	Value     string `json:"value"`
}

// replayFeed streams feed records into the console and mutation
// surfaces, honoring per-record delays.
func replayFeed(ctx context.Context, path string, console *feedConsole, mutations *feedMutations) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var rec feedRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			fmt.Fprintf(os.Stderr, "[stagewatch] feed line %d: %v\n", lineNo, err)
			continue
		}

		if rec.DelayMS > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(rec.DelayMS) * time.Millisecond):
			}
		} else if ctx.Err() != nil {
			return ctx.Err()
		}

		switch rec.Type {
		case "mutation":
			mutations.publish(host.Mutation{
				Kind:      host.MutationKind(rec.Kind),
				NodePath:  rec.NodePath,
				NodeClass: rec.NodeClass,
				Text:      rec.Text,
				Attr:      rec.Attr,
				Value:     rec.Value,
				Timestamp: time.Now(),
			})
		case "console", "":
			console.emit(rec.Level, rec.Message)
		default:
			fmt.Fprintf(os.Stderr, "[stagewatch] feed line %d: unknown record type %q\n", lineNo, rec.Type)
		}
	}
	return scanner.Err()
}
