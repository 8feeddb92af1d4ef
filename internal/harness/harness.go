// Package harness wires the full monitoring stack together: session,
// logger, interceptor, state monitor, workflow monitors, and report
// generation, started in dependency order and torn down in reverse.
package harness

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/stagewatch/stagewatch/internal/config"
	"github.com/stagewatch/stagewatch/internal/host"
	"github.com/stagewatch/stagewatch/internal/index"
	"github.com/stagewatch/stagewatch/internal/intercept"
	"github.com/stagewatch/stagewatch/internal/logging"
	"github.com/stagewatch/stagewatch/internal/report"
	"github.com/stagewatch/stagewatch/internal/session"
	"github.com/stagewatch/stagewatch/internal/statemon"
	"github.com/stagewatch/stagewatch/internal/types"
	"github.com/stagewatch/stagewatch/internal/workflow"
)

// Host bundles the collaborators the monitored application exposes. Any
// field except Console may be nil; the affected component then runs
// degraded or is skipped.
type Host struct {
	Console   host.Console
	Mutations host.MutationStream
	State     host.StateReader
	Probes    host.ProbeSet
}

// Harness owns one monitoring session end to end.
type Harness struct {
	cfg  config.Config
	host Host

	idx      *index.DB
	manager  *session.Manager
	sess     *types.Session
	writer   *session.LogWriter
	logger   *logging.Logger
	intercep *intercept.Interceptor
	state    *statemon.Monitor
	monitors []*workflow.Monitor
	deadMons []string

	cancel  context.CancelFunc
	started bool
}

// New validates the configuration and host surface. Nothing is started.
func New(cfg config.Config, h Host) (*Harness, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if h.Console == nil {
		return nil, fmt.Errorf("host console is required")
	}
	return &Harness{cfg: cfg, host: h}, nil
}

// Session returns the active session, nil before Start.
func (h *Harness) Session() *types.Session { return h.sess }

// Logger returns the structured logger, nil before Start.
func (h *Harness) Logger() *logging.Logger { return h.logger }

// Start brings the stack up: session directory and writer first, then
// the logger, the interceptor, the state monitor, and finally the
// workflow monitors. Failure of a monitor is degraded-mode, not fatal;
// failure of the session or logger aborts with everything torn down.
func (h *Harness) Start(ctx context.Context) error {
	if h.started {
		return fmt.Errorf("harness already started")
	}

	ctx, h.cancel = context.WithCancel(ctx)

	idx, err := index.Open(filepath.Join(h.cfg.Root, "index.db"))
	if err != nil {
		// The index is an accelerator; the manager falls back to
		// directory scans without it.
		fmt.Fprintf(os.Stderr, "[stagewatch] harness: session index unavailable: %v\n", err)
	} else {
		h.idx = idx
	}

	var mgrIdx session.Index
	if h.idx != nil {
		mgrIdx = h.idx
	}
	h.manager, err = session.NewManager(h.cfg.Root, h.cfg.Logger.RotateBytes, h.cfg.Retention, mgrIdx)
	if err != nil {
		h.closeIndex()
		return fmt.Errorf("creating session manager: %w", err)
	}

	h.sess, h.writer, err = h.manager.CreateSession(uuid.New().String())
	if err != nil {
		h.closeIndex()
		return fmt.Errorf("creating session: %w", err)
	}

	h.logger, err = logging.New(h.sess.ID, h.writer, logging.Config{
		BufferCap:       h.cfg.Logger.BufferCap,
		TrimBatch:       h.cfg.Logger.TrimBatch,
		GapWindow:       h.cfg.Logger.GapWindow(),
		SuccessKeywords: h.cfg.Logger.SuccessKeywords,
	})
	if err != nil {
		h.abortStart("creating logger")
		return fmt.Errorf("creating logger: %w", err)
	}

	h.intercep, err = intercept.New(h.host.Console, h.logger, intercept.Config{
		Suppress: !h.cfg.Intercept.Forward,
		Limits: intercept.Limits{
			MaxDepth: h.cfg.Intercept.MaxDepth,
			MaxKeys:  h.cfg.Intercept.MaxKeys,
			MaxElems: h.cfg.Intercept.MaxElems,
		},
		CaptureStacks: h.cfg.Intercept.CaptureStacks,
		StackDepth:    h.cfg.Intercept.StackDepth,
	})
	if err != nil {
		h.abortStart("creating interceptor")
		return fmt.Errorf("creating interceptor: %w", err)
	}
	if err := h.intercep.Start(); err != nil {
		// Console stays unobserved but the rest of the stack still runs.
		fmt.Fprintf(os.Stderr, "[stagewatch] harness: console interception degraded: %v\n", err)
	}

	if h.host.State != nil {
		h.state, err = statemon.New(h.host.State, h.host.Mutations, h.logger, statemon.Config{
			Interval:       time.Duration(h.cfg.State.IntervalMS) * time.Millisecond,
			HistoryCap:     h.cfg.State.HistoryCap,
			NoiseBytes:     h.cfg.State.NoiseBytes,
			TextDeltaChars: h.cfg.State.TextDeltaChars,
			MutationRate:   h.cfg.State.MutationRatePerSec,
			MutationBurst:  h.cfg.State.MutationBurst,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "[stagewatch] harness: state monitor unavailable: %v\n", err)
		} else if err := h.state.StartMonitoring(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "[stagewatch] harness: state monitor failed to start: %v\n", err)
			h.state = nil
		}
	}

	wcfg := workflow.Config{
		Timeout:       h.cfg.Workflow.Timeout(),
		Cleanup:       h.cfg.Workflow.CleanupAge(),
		WindowSize:    h.cfg.Workflow.WindowSize,
		PollInterval:  h.cfg.Workflow.PollInterval(),
		FailureCap:    h.cfg.Workflow.FailureHistoryCap,
		FailureWindow: h.cfg.Workflow.FailureWindow(),
	}
	for _, def := range workflow.AllPipelines() {
		mon, err := workflow.New(def, h.logger, h.host.Probes, wcfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[stagewatch] harness: monitor %s unavailable: %v\n", def.Name, err)
			h.deadMons = append(h.deadMons, def.Name)
			continue
		}
		if err := mon.Start(ctx, h.host.Mutations); err != nil {
			fmt.Fprintf(os.Stderr, "[stagewatch] harness: monitor %s failed to start: %v\n", def.Name, err)
			h.deadMons = append(h.deadMons, def.Name)
			continue
		}
		h.monitors = append(h.monitors, mon)
	}

	h.logger.Append(&types.LogEntry{
		Severity:  types.SeverityInfo,
		Category:  types.CategoryEvent,
		Component: "harness",
		Action:    "started",
		Message:   fmt.Sprintf("harness started with %d workflow monitor(s)", len(h.monitors)),
	})

	h.started = true
	return nil
}

// Stop tears the stack down in reverse start order, generates the final
// report, flushes the logger, and finalizes the session last.
func (h *Harness) Stop() (*report.Artifacts, error) {
	if !h.started {
		return nil, fmt.Errorf("harness not started")
	}
	h.started = false

	for _, mon := range h.monitors {
		mon.Stop()
	}
	if h.state != nil {
		h.state.StopMonitoring()
	}
	if err := h.intercep.Stop(); err != nil {
		fmt.Fprintf(os.Stderr, "[stagewatch] harness: console restore: %v\n", err)
	}
	h.cancel()

	art, genErr := h.GenerateReport()
	if genErr != nil {
		fmt.Fprintf(os.Stderr, "[stagewatch] harness: report generation: %v\n", genErr)
	}

	if err := h.logger.Flush(); err != nil {
		fmt.Fprintf(os.Stderr, "[stagewatch] harness: final flush: %v\n", err)
	}

	var finErr error
	if genErr != nil {
		finErr = h.manager.FailSession(h.sess, h.writer, fmt.Sprintf("report generation failed: %v", genErr))
	} else {
		finErr = h.manager.CompleteSession(h.sess, h.writer)
	}
	h.closeIndex()

	if genErr != nil {
		return art, genErr
	}
	return art, finErr
}

// GenerateReport writes report artifacts for the current session from
// whatever is buffered right now. Safe to call while running.
func (h *Harness) GenerateReport() (*report.Artifacts, error) {
	if h.logger == nil {
		return nil, fmt.Errorf("harness has no active session")
	}

	in := &report.Input{
		Session: h.sess,
		Entries: h.logger.Buffer(),
	}
	if h.state != nil {
		in.StateHistory = h.state.GetCaptureHistory()
		in.StateFailures = h.state.Failures()
	}
	for _, mon := range h.monitors {
		in.Monitors = append(in.Monitors, mon.Status())
	}
	// Pipelines that never initialized still show up, flagged unavailable.
	for _, name := range h.deadMons {
		in.Monitors = append(in.Monitors, &workflow.Status{Name: name})
	}

	gen := report.NewGenerator(filepath.Join(h.sess.Dir, "reports"))
	return gen.Generate(in)
}

// Monitors returns the running workflow monitors.
func (h *Harness) Monitors() []*workflow.Monitor {
	return append([]*workflow.Monitor(nil), h.monitors...)
}

// StateMonitor returns the state monitor, nil when the host exposes no
// state reader.
func (h *Harness) StateMonitor() *statemon.Monitor { return h.state }

// abortStart finalizes the half-created session after a fatal Start
// error.
func (h *Harness) abortStart(stage string) {
	if h.sess != nil {
		if err := h.manager.FailSession(h.sess, h.writer, stage); err != nil {
			fmt.Fprintf(os.Stderr, "[stagewatch] harness: abort cleanup: %v\n", err)
		}
	}
	h.closeIndex()
	if h.cancel != nil {
		h.cancel()
	}
}

func (h *Harness) closeIndex() {
	if h.idx != nil {
		if err := h.idx.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "[stagewatch] harness: closing index: %v\n", err)
		}
		h.idx = nil
	}
}
