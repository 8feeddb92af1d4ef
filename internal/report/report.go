// Package report turns buffered observations into artifacts: an HTML
// dashboard, a JSON export, a CSV export of checks, and a narrative
// summary. The generator only aggregates what the monitors already
// computed; it never invents new diagnoses.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/stagewatch/stagewatch/internal/types"
	"github.com/stagewatch/stagewatch/internal/workflow"
)

// Input is everything the generator aggregates over. All slices are
// read-only snapshots owned by the caller.
type Input struct {
	Session       *types.Session
	Entries       []*types.LogEntry
	StateHistory  []*types.Snapshot
	StateFailures []*types.Failure
	Monitors      []*workflow.Status
	GeneratedAt   time.Time
}

// Artifacts lists the paths of everything Generate wrote.
type Artifacts struct {
	Dashboard string `json:"dashboard"`
	JSON      string `json:"json"`
	CSV       string `json:"csv"`
	Summary   string `json:"summary"`
}

// ScenarioCheck is one expected-vs-actual stage-sequence replay for a
// monitored pipeline.
type ScenarioCheck struct {
	Pipeline string   `json:"pipeline"`
	Expected []string `json:"expected"`
	Observed []string `json:"observed"`
	Passed   bool     `json:"passed"`
	Detail   string   `json:"detail"`
}

// Summary is the aggregated result every artifact renders from.
type Summary struct {
	GeneratedAt  time.Time          `json:"generated_at"`
	SessionID    string             `json:"session_id,omitempty"`
	OverallScore float64            `json:"overall_score"`
	ScoredCount  int                `json:"scored_monitors"`
	EntryCount   int                `json:"entry_count"`
	ErrorCount   int                `json:"error_count"`
	WarnCount    int                `json:"warn_count"`
	CaptureCount int                `json:"capture_count"`
	FailureCount int                `json:"failure_count"`
	Failures     []*types.Failure   `json:"failures"`
	NeedsReview  []*types.Failure   `json:"needs_review"`
	AutoHandled  []*types.Failure   `json:"auto_handled"`
	Monitors     []*workflow.Status `json:"monitors"`
	Checks       []ScenarioCheck    `json:"checks"`
	Recommends   []string           `json:"recommendations"`
}

// Generator writes report artifacts into a directory.
type Generator struct {
	dir string
	now func() time.Time
}

// NewGenerator creates a generator rooted at dir. The directory is
// created on first Generate.
func NewGenerator(dir string) *Generator {
	return &Generator{dir: dir, now: time.Now}
}

// Generate aggregates the input and writes all four artifacts. A failed
// artifact aborts generation; partial artifacts are left for inspection.
func (g *Generator) Generate(in *Input) (*Artifacts, error) {
	if in == nil {
		return nil, fmt.Errorf("report input is required")
	}
	if err := os.MkdirAll(g.dir, 0755); err != nil {
		return nil, fmt.Errorf("creating report dir: %w", err)
	}

	sum := g.aggregate(in)
	art := &Artifacts{
		Dashboard: filepath.Join(g.dir, "report.html"),
		JSON:      filepath.Join(g.dir, "report.json"),
		CSV:       filepath.Join(g.dir, "checks.csv"),
		Summary:   filepath.Join(g.dir, "summary.txt"),
	}

	if err := g.writeDashboard(art.Dashboard, sum); err != nil {
		return nil, fmt.Errorf("writing dashboard: %w", err)
	}
	if err := g.writeJSON(art.JSON, sum); err != nil {
		return nil, fmt.Errorf("writing json export: %w", err)
	}
	if err := g.writeCSV(art.CSV, sum); err != nil {
		return nil, fmt.Errorf("writing csv export: %w", err)
	}
	if err := g.writeSummary(art.Summary, sum); err != nil {
		return nil, fmt.Errorf("writing summary: %w", err)
	}
	return art, nil
}

// Aggregate builds the summary without writing artifacts.
func (g *Generator) Aggregate(in *Input) *Summary {
	return g.aggregate(in)
}

func (g *Generator) aggregate(in *Input) *Summary {
	sum := &Summary{
		GeneratedAt:  in.GeneratedAt,
		EntryCount:   len(in.Entries),
		CaptureCount: len(in.StateHistory),
		Monitors:     in.Monitors,
	}
	if sum.GeneratedAt.IsZero() {
		sum.GeneratedAt = g.now()
	}
	if in.Session != nil {
		sum.SessionID = in.Session.ID
	}

	for _, e := range in.Entries {
		switch e.Severity {
		case types.SeverityError:
			sum.ErrorCount++
		case types.SeverityWarn:
			sum.WarnCount++
		}
	}

	sum.Failures = append(sum.Failures, in.StateFailures...)
	for _, m := range in.Monitors {
		sum.Failures = append(sum.Failures, m.Failures...)
	}
	sort.SliceStable(sum.Failures, func(i, j int) bool {
		return sum.Failures[i].Timestamp.Before(sum.Failures[j].Timestamp)
	})
	sum.FailureCount = len(sum.Failures)

	for _, f := range sum.Failures {
		if f.Assignee == types.AssigneeAuto {
			sum.AutoHandled = append(sum.AutoHandled, f)
		} else {
			sum.NeedsReview = append(sum.NeedsReview, f)
		}
	}

	// Unavailable monitors are reported but never scored.
	var total float64
	for _, m := range in.Monitors {
		if !m.Available {
			continue
		}
		total += m.HealthScore
		sum.ScoredCount++
	}
	if sum.ScoredCount > 0 {
		sum.OverallScore = total / float64(sum.ScoredCount)
	} else {
		sum.OverallScore = 100
	}

	sum.Checks = scenarioChecks(in.Monitors)
	sum.Recommends = dedupRecommendations(sum.Failures)
	return sum
}

// scenarioChecks replays each pipeline's expected stage sequence against
// its most recent finalized check.
func scenarioChecks(monitors []*workflow.Status) []ScenarioCheck {
	var checks []ScenarioCheck
	for _, m := range monitors {
		check := ScenarioCheck{
			Pipeline: m.Name,
			Expected: m.Stages,
		}
		if !m.Available {
			check.Passed = false
			check.Detail = "monitor not available"
			checks = append(checks, check)
			continue
		}
		if len(m.RecentChecks) == 0 {
			check.Passed = true
			check.Detail = "no runs observed"
			checks = append(checks, check)
			continue
		}
		last := m.RecentChecks[len(m.RecentChecks)-1]
		for _, stage := range m.Stages {
			if last.StagesSeen[stage] {
				check.Observed = append(check.Observed, stage)
			}
		}
		check.Passed = last.Clean()
		if !check.Passed {
			check.Detail = strings.Join(last.Issues, "; ")
			if check.Detail == "" {
				check.Detail = "stage sequence incomplete"
			}
		}
		checks = append(checks, check)
	}
	return checks
}

// dedupRecommendations collects every non-empty recommendation string in
// first-seen order.
func dedupRecommendations(failures []*types.Failure) []string {
	seen := make(map[string]bool)
	var out []string
	for _, f := range failures {
		if f.Recommendation == "" || seen[f.Recommendation] {
			continue
		}
		seen[f.Recommendation] = true
		out = append(out, f.Recommendation)
	}
	return out
}

func (g *Generator) writeJSON(path string, sum *Summary) error {
	data, err := json.MarshalIndent(sum, "", "  ")
	if err != nil {
		return err
	}
	return atomicWrite(path, append(data, '\n'))
}

// writeCSV emits one row per finalized workflow check across all
// monitors.
func (g *Generator) writeCSV(path string, sum *Summary) error {
	var buf strings.Builder
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"pipeline", "workflow_id", "started_at", "duration_ms", "completed", "stalled", "issues"}); err != nil {
		return err
	}
	for _, m := range sum.Monitors {
		for _, rec := range m.RecentChecks {
			row := []string{
				rec.Pipeline,
				rec.ID,
				rec.StartedAt.Format(time.RFC3339),
				fmt.Sprintf("%d", rec.Duration.Milliseconds()),
				fmt.Sprintf("%t", rec.Completed),
				fmt.Sprintf("%t", rec.Stalled),
				strings.Join(rec.Issues, "; "),
			}
			if err := w.Write(row); err != nil {
				return err
			}
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return atomicWrite(path, []byte(buf.String()))
}

// writeSummary emits the narrative prose export.
func (g *Generator) writeSummary(path string, sum *Summary) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Integration health summary, generated %s\n", sum.GeneratedAt.Format(time.RFC1123))
	if sum.SessionID != "" {
		fmt.Fprintf(&b, "Session: %s\n", sum.SessionID)
	}
	fmt.Fprintf(&b, "\nOverall health score: %.1f/100 across %d monitor(s).\n", sum.OverallScore, sum.ScoredCount)
	fmt.Fprintf(&b, "Observed %d log entries (%d errors, %d warnings) and %d state captures.\n",
		sum.EntryCount, sum.ErrorCount, sum.WarnCount, sum.CaptureCount)

	if sum.FailureCount == 0 {
		b.WriteString("\nNo anomalies were detected.\n")
	} else {
		fmt.Fprintf(&b, "\n%d anomalie(s) detected: %d need human review, %d were auto-handled.\n",
			sum.FailureCount, len(sum.NeedsReview), len(sum.AutoHandled))
		critical := 0
		for _, f := range sum.Failures {
			if f.Severity == types.FailureSeverityCritical {
				critical++
			}
		}
		if critical > 0 {
			fmt.Fprintf(&b, "%d of these are critical.\n", critical)
		}
		for _, f := range sum.NeedsReview {
			fmt.Fprintf(&b, "  - [%s] %s: %s\n", f.Severity, f.Type, f.Message)
		}
	}

	for _, m := range sum.Monitors {
		if !m.Available {
			fmt.Fprintf(&b, "\nMonitor %s: not available.\n", m.Name)
			continue
		}
		fmt.Fprintf(&b, "\nMonitor %s: score %.1f, %d completed, %d stalled, %d in flight.\n",
			m.Name, m.HealthScore, m.ChecksCompleted, m.ChecksStalled, m.InFlight)
	}

	if len(sum.Recommends) > 0 {
		b.WriteString("\nRecommendations:\n")
		for _, r := range sum.Recommends {
			fmt.Fprintf(&b, "  - %s\n", r)
		}
	}
	return atomicWrite(path, []byte(b.String()))
}

// atomicWrite writes via a temp file and rename so readers never see a
// partial artifact.
func atomicWrite(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
