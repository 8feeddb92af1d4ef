package report

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stagewatch/stagewatch/internal/types"
	"github.com/stagewatch/stagewatch/internal/workflow"
)

func sampleInput() *Input {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	bypass := types.NewFailure("editorial", types.FailureStageBypass, "bypass phrase seen", nil)
	lost := types.NewFailure("session-sync", types.FailureConnectionLost, "engine unreachable", nil)
	dup := types.NewFailure("state-monitor", types.FailureDuplicateEffect, "duplicate highlight", nil)

	return &Input{
		Session: &types.Session{ID: "sess-1", StartedAt: now.Add(-time.Minute)},
		Entries: []*types.LogEntry{
			{Severity: types.SeverityInfo, Message: "hello"},
			{Severity: types.SeverityError, Message: "bang"},
			{Severity: types.SeverityWarn, Message: "hm"},
		},
		StateHistory:  []*types.Snapshot{{Timestamp: now}},
		StateFailures: []*types.Failure{dup},
		Monitors: []*workflow.Status{
			{
				Name:        "editorial",
				Available:   true,
				HealthScore: 80,
				Stages:      []string{"a", "b"},
				Failures:    []*types.Failure{bypass},
				RecentChecks: []*types.WorkflowRecord{{
					ID:         "wf-1",
					Pipeline:   "editorial",
					StartedAt:  now.Add(-30 * time.Second),
					StagesSeen: map[string]bool{"a": true, "b": true},
					Completed:  true,
					Duration:   2 * time.Second,
				}},
			},
			{
				Name:        "session-sync",
				Available:   true,
				HealthScore: 60,
				Stages:      []string{"x"},
				Failures:    []*types.Failure{lost},
			},
			{
				Name:      "attribution",
				Available: false,
				Stages:    []string{"y"},
			},
		},
		GeneratedAt: now,
	}
}

func TestAggregateScoresOnlyAvailableMonitors(t *testing.T) {
	sum := NewGenerator(t.TempDir()).Aggregate(sampleInput())

	assert.Equal(t, 2, sum.ScoredCount)
	assert.InDelta(t, 70.0, sum.OverallScore, 0.001)
}

func TestAggregateSplitsByAssignee(t *testing.T) {
	sum := NewGenerator(t.TempDir()).Aggregate(sampleInput())

	require.Equal(t, 3, sum.FailureCount)
	assert.Len(t, sum.AutoHandled, 1)
	assert.Len(t, sum.NeedsReview, 2)
	assert.Equal(t, types.FailureConnectionLost, sum.AutoHandled[0].Type)
}

func TestAggregateDeduplicatesRecommendations(t *testing.T) {
	in := sampleInput()
	// Two failures of the same type carry the same recommendation text.
	in.StateFailures = append(in.StateFailures,
		types.NewFailure("state-monitor", types.FailureDuplicateEffect, "another duplicate", nil))

	sum := NewGenerator(t.TempDir()).Aggregate(in)

	seen := make(map[string]int)
	for _, r := range sum.Recommends {
		seen[r]++
	}
	for r, n := range seen {
		assert.Equal(t, 1, n, "recommendation %q appears %d times", r, n)
	}
	// No recommendation text was invented.
	known := map[string]bool{}
	for _, f := range sum.Failures {
		known[f.Recommendation] = true
	}
	for _, r := range sum.Recommends {
		assert.True(t, known[r], "recommendation %q not derived from a failure", r)
	}
}

func TestScenarioCheckForUnavailableMonitor(t *testing.T) {
	sum := NewGenerator(t.TempDir()).Aggregate(sampleInput())

	var attribution *ScenarioCheck
	for i := range sum.Checks {
		if sum.Checks[i].Pipeline == "attribution" {
			attribution = &sum.Checks[i]
		}
	}
	require.NotNil(t, attribution)
	assert.False(t, attribution.Passed)
	assert.Equal(t, "monitor not available", attribution.Detail)
}

func TestGenerateWritesAllArtifacts(t *testing.T) {
	dir := t.TempDir()
	art, err := NewGenerator(dir).Generate(sampleInput())
	require.NoError(t, err)

	for _, path := range []string{art.Dashboard, art.JSON, art.CSV, art.Summary} {
		info, err := os.Stat(path)
		require.NoError(t, err, "artifact %s", path)
		assert.Greater(t, info.Size(), int64(0), "artifact %s empty", path)
	}
}

func TestJSONExportRoundTrips(t *testing.T) {
	dir := t.TempDir()
	art, err := NewGenerator(dir).Generate(sampleInput())
	require.NoError(t, err)

	data, err := os.ReadFile(art.JSON)
	require.NoError(t, err)

	var sum Summary
	require.NoError(t, json.Unmarshal(data, &sum))
	assert.Equal(t, "sess-1", sum.SessionID)
	assert.Equal(t, 3, sum.FailureCount)
	assert.Len(t, sum.Failures, 3)
}

func TestCSVExportOneRowPerCheck(t *testing.T) {
	dir := t.TempDir()
	art, err := NewGenerator(dir).Generate(sampleInput())
	require.NoError(t, err)

	f, err := os.Open(art.CSV)
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	// Header plus the single finalized check in the sample input.
	require.Len(t, rows, 2)
	assert.Equal(t, "pipeline", rows[0][0])
	assert.Equal(t, "editorial", rows[1][0])
	assert.Equal(t, "wf-1", rows[1][1])
}

func TestDashboardIsSelfContained(t *testing.T) {
	dir := t.TempDir()
	art, err := NewGenerator(dir).Generate(sampleInput())
	require.NoError(t, err)

	data, err := os.ReadFile(art.Dashboard)
	require.NoError(t, err)
	html := string(data)

	assert.Contains(t, html, "<details>")
	assert.Contains(t, html, "monitor not available")
	assert.Contains(t, html, "Needs human review")
	assert.NotContains(t, strings.ToLower(html), "src=\"http")
	assert.NotContains(t, strings.ToLower(html), "href=\"http")
}

func TestSummaryNarrative(t *testing.T) {
	dir := t.TempDir()
	art, err := NewGenerator(dir).Generate(sampleInput())
	require.NoError(t, err)

	data, err := os.ReadFile(art.Summary)
	require.NoError(t, err)
	text := string(data)

	assert.Contains(t, text, "Overall health score: 70.0/100")
	assert.Contains(t, text, "3 anomalie(s) detected")
	assert.Contains(t, text, "not available")
	assert.Contains(t, text, "Recommendations:")
}
