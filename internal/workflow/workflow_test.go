package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stagewatch/stagewatch/internal/host"
	"github.com/stagewatch/stagewatch/internal/host/hosttest"
	"github.com/stagewatch/stagewatch/internal/logging"
	"github.com/stagewatch/stagewatch/internal/types"
)

func newTestMonitor(t *testing.T, def Definition, probes host.ProbeSet, cfg Config) (*Monitor, *logging.Logger) {
	t.Helper()
	logger, err := logging.New("test-session", nil, logging.Config{})
	if err != nil {
		t.Fatalf("logging.New: %v", err)
	}
	m, err := New(def, logger, probes, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return m, logger
}

func TestFullStageSequenceCompletes(t *testing.T) {
	m, _ := newTestMonitor(t, EditorialPipeline(), nil, Config{})

	m.handleText("edit request queued")
	m.handleText("request detected in buffer")
	m.handleText("engine invoked for request")
	m.handleText("result received from engine")
	m.handleText("effect applied to document")

	st := m.Status()
	if st.InFlight != 0 {
		t.Errorf("Expected instance finalized, %d still in flight", st.InFlight)
	}
	if st.ChecksCompleted != 1 {
		t.Fatalf("Expected 1 completed check, got %d", st.ChecksCompleted)
	}
	rec := st.RecentChecks[0]
	if !rec.Clean() {
		t.Errorf("Expected clean record, got issues %v", rec.Issues)
	}
	for _, stage := range EditorialPipeline().Stages {
		if !rec.StagesSeen[stage] {
			t.Errorf("Expected stage %s observed", stage)
		}
	}
}

func TestWorkflowTimeoutFinalizesAsStalled(t *testing.T) {
	m, _ := newTestMonitor(t, EditorialPipeline(), nil, Config{Timeout: 30 * time.Second})

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	current := base
	m.SetClock(func() time.Time { return current })

	m.handleText("edit request queued")
	if got := m.Status().InFlight; got != 1 {
		t.Fatalf("Expected 1 in-flight instance, got %d", got)
	}

	// One second short of the timeout: still in flight.
	current = base.Add(29 * time.Second)
	m.Sweep()
	if got := m.Status().InFlight; got != 1 {
		t.Errorf("Expected instance still in flight before timeout, got %d", got)
	}

	// Past the timeout: the next sweep finalizes it.
	current = base.Add(31 * time.Second)
	m.Sweep()

	st := m.Status()
	if st.InFlight != 0 {
		t.Fatalf("Expected instance finalized, %d still in flight", st.InFlight)
	}
	if st.ChecksStalled != 1 {
		t.Fatalf("Expected 1 stalled check, got %d", st.ChecksStalled)
	}

	rec := st.RecentChecks[0]
	if !rec.Stalled {
		t.Error("Expected record marked stalled")
	}
	if len(rec.Issues) == 0 {
		t.Fatal("Expected non-empty issues list on stalled record")
	}
	foundStall := false
	for _, issue := range rec.Issues {
		if len(issue) >= 7 && issue[:7] == "stalled" {
			foundStall = true
		}
	}
	if !foundStall {
		t.Errorf("Expected a stall indicator in issues, got %v", rec.Issues)
	}

	failures := m.Failures(time.Time{})
	if len(failures) != 1 || failures[0].Type != types.FailureStalledWorkflow {
		t.Fatalf("Expected one stalled_workflow failure, got %v", failures)
	}
}

func TestHealthScoreBounds(t *testing.T) {
	m, _ := newTestMonitor(t, EditorialPipeline(), nil, Config{WindowSize: 5})

	// Empty window scores 100.
	m.Sweep()
	if got := m.HealthScore(); got != 100 {
		t.Errorf("Expected 100 on empty window, got %f", got)
	}

	// Fully clean window scores 100.
	for i := 0; i < 3; i++ {
		m.handleText("request detected")
		m.handleText("engine invoked")
		m.handleText("result received")
		m.handleText("effect applied")
	}
	m.Sweep()
	if got := m.HealthScore(); got != 100 {
		t.Errorf("Expected 100 on clean window, got %f", got)
	}

	// A stalled check drags the score down but stays in [0,100].
	base := time.Now()
	current := base
	m.SetClock(func() time.Time { return current })
	m.handleText("edit request queued")
	current = base.Add(time.Minute)
	m.Sweep()

	score := m.HealthScore()
	if score < 0 || score > 100 {
		t.Fatalf("Score out of bounds: %f", score)
	}
	if score == 100 {
		t.Error("Expected stalled check to lower the score")
	}
}

func TestStatusStaysAvailableAfterStop(t *testing.T) {
	m, _ := newTestMonitor(t, EditorialPipeline(), nil, Config{})

	if m.Status().Available {
		t.Error("Expected monitor unavailable before start")
	}

	if err := m.Start(context.Background(), nil); err != nil {
		t.Fatalf("Start: %v", err)
	}
	m.handleText("edit request queued")
	m.Stop()

	st := m.Status()
	if !st.Available {
		t.Error("Expected a monitor that ran to stay available in the final view")
	}
	if st.InFlight != 1 {
		t.Errorf("Expected in-flight instance retained after stop, got %d", st.InFlight)
	}
}

func TestStatusFailureWindow(t *testing.T) {
	m, _ := newTestMonitor(t, EditorialPipeline(), nil, Config{FailureWindow: 5 * time.Minute})

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	current := base
	m.SetClock(func() time.Time { return current })

	m.handleText("warning: direct apply of edit without engine")
	if got := len(m.Status().Failures); got != 1 {
		t.Fatalf("Expected 1 recent failure, got %d", got)
	}

	current = base.Add(6 * time.Minute)
	if got := len(m.Status().Failures); got != 0 {
		t.Errorf("Expected failure aged out of the status window, got %d", got)
	}
	if got := len(m.Failures(time.Time{})); got != 1 {
		t.Errorf("Expected full history retained, got %d", got)
	}
}

func TestBypassPhraseRecordsFailure(t *testing.T) {
	m, logger := newTestMonitor(t, EditorialPipeline(), nil, Config{})

	m.handleText("warning: direct apply of edit without engine")

	failures := m.Failures(time.Time{})
	if len(failures) != 1 {
		t.Fatalf("Expected 1 failure, got %d", len(failures))
	}
	f := failures[0]
	if f.Type != types.FailureStageBypass {
		t.Errorf("Expected stage_bypass, got %s", f.Type)
	}
	if f.Severity != types.FailureSeverityHigh {
		t.Errorf("Expected high severity, got %s", f.Severity)
	}
	if f.Assignee != types.AssigneeReview {
		t.Errorf("Expected review assignee, got %s", f.Assignee)
	}

	// The finding is mirrored into the log.
	logged := false
	for _, e := range logger.Buffer() {
		if e.Action == string(types.FailureStageBypass) {
			logged = true
		}
	}
	if !logged {
		t.Error("Expected bypass failure logged")
	}
}

func TestOutOfOrderStageIsAnIssue(t *testing.T) {
	m, _ := newTestMonitor(t, EditorialPipeline(), nil, Config{})

	m.handleText("edit request queued")
	// effect_applied arrives without the middle stages.
	m.handleText("effect applied to document")

	st := m.Status()
	if st.ChecksCompleted != 1 {
		t.Fatalf("Expected final stage to complete the instance, got %d completed", st.ChecksCompleted)
	}
	rec := st.RecentChecks[0]
	if len(rec.Issues) == 0 {
		t.Fatal("Expected out-of-order stages recorded as issues")
	}
	if rec.Clean() {
		t.Error("Expected record not clean")
	}
}

func TestProbeOutageRecordedOncePerOutage(t *testing.T) {
	probes := hosttest.NewProbes(host.ProbeEngineReachable, host.ProbeOperationActive)
	m, _ := newTestMonitor(t, EditorialPipeline(), probes.Set(), Config{})

	m.Sweep()
	if got := len(m.Failures(time.Time{})); got != 0 {
		t.Fatalf("Expected no failures while probes healthy, got %d", got)
	}

	probes.SetProbe(host.ProbeEngineReachable, false)
	m.Sweep()
	m.Sweep()
	m.Sweep()

	failures := m.Failures(time.Time{})
	if len(failures) != 1 {
		t.Fatalf("Expected a single connection_lost per outage, got %d", len(failures))
	}
	f := failures[0]
	if f.Type != types.FailureConnectionLost {
		t.Errorf("Expected connection_lost, got %s", f.Type)
	}
	if f.Severity != types.FailureSeverityCritical {
		t.Errorf("Expected critical severity, got %s", f.Severity)
	}
	if f.Assignee != types.AssigneeAuto {
		t.Errorf("Expected auto assignee, got %s", f.Assignee)
	}

	// Recovery then a second outage records a second failure.
	probes.SetProbe(host.ProbeEngineReachable, true)
	m.Sweep()
	probes.SetProbe(host.ProbeEngineReachable, false)
	m.Sweep()
	if got := len(m.Failures(time.Time{})); got != 2 {
		t.Errorf("Expected 2 failures after second outage, got %d", got)
	}
}

func TestProbeErrorIsAnOutage(t *testing.T) {
	probes := hosttest.NewProbes(host.ProbeSessionActive)
	probes.SetProbeErr(host.ProbeSessionActive, errors.New("host hung up"))
	m, _ := newTestMonitor(t, AttributionPipeline(), probes.Set(), Config{})

	m.Sweep()

	failures := m.Failures(time.Time{})
	if len(failures) != 1 || failures[0].Type != types.FailureConnectionLost {
		t.Fatalf("Expected connection_lost from probe error, got %v", failures)
	}
}

func TestInFlightCleanup(t *testing.T) {
	m, _ := newTestMonitor(t, SessionSyncPipeline(), nil, Config{
		Timeout: time.Hour, // stall finalization out of the way
		Cleanup: 5 * time.Minute,
	})

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	current := base
	m.SetClock(func() time.Time { return current })

	m.handleText("opening session for user")
	if got := m.Status().InFlight; got != 1 {
		t.Fatalf("Expected 1 in-flight, got %d", got)
	}

	current = base.Add(6 * time.Minute)
	m.Sweep()
	if got := m.Status().InFlight; got != 0 {
		t.Errorf("Expected stale instance dropped by cleanup, got %d in flight", got)
	}
}

func TestMutationIntentOpensInstance(t *testing.T) {
	m, _ := newTestMonitor(t, EditorialPipeline(), nil, Config{})

	m.onMutation(host.Mutation{
		Kind: host.MutationContent,
		Text: "Please rewrite this paragraph in a formal tone",
	})

	if got := m.Status().InFlight; got != 1 {
		t.Errorf("Expected mutation intent phrase to open an instance, got %d", got)
	}
}
