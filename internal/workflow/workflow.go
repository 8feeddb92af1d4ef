// Package workflow validates monitored pipelines against their expected
// stage sequences. A generic monitor engine tracks in-flight workflow
// instances; the three concrete pipelines differ only in their stage
// definitions and detection signals.
package workflow

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stagewatch/stagewatch/internal/host"
	"github.com/stagewatch/stagewatch/internal/logging"
	"github.com/stagewatch/stagewatch/internal/types"
)

// Definition describes one monitored pipeline: its ordered stages and the
// signals that advance, complete, or invalidate an instance.
type Definition struct {
	// Name identifies the pipeline in records, failures, and reports
	Name string
	// Stages is the expected observation order; the last stage completes
	// the instance
	Stages []string
	// TriggerPhrases open a new instance when seen on the console stream
	TriggerPhrases []string
	// StageSignals maps each stage to the console phrases that mark it
	StageSignals map[string][]string
	// BypassPhrases indicate the pipeline was skipped rather than run
	BypassPhrases []string
	// FailurePhrases indicate the pipeline ran and failed internally
	FailurePhrases []string
	// SuccessPhrases complete the current instance regardless of stage
	SuccessPhrases []string
	// MutationPhrases matched against mutation text, treated as triggers
	MutationPhrases []string
	// Probes names the host capability checks polled each sweep
	Probes []string
	// BypassFailure is the failure type recorded for bypass phrases
	BypassFailure types.FailureType
	// InternalFailure is the failure type recorded for failure phrases
	InternalFailure types.FailureType
}

// Config holds per-monitor tuning. Zero fields fall back to defaults.
type Config struct {
	// Timeout finalizes an instance as stalled when no stage signal
	// arrives within it. Default: 30s
	Timeout time.Duration
	// Cleanup drops in-flight instances outright after this long,
	// resolved or not. Default: 5m
	Cleanup time.Duration
	// WindowSize is the number of recent finalized checks scored.
	// Default: 20
	WindowSize int
	// PollInterval is the sweep cadence. Default: 1s
	PollInterval time.Duration
	// FailureCap bounds the retained failure history. Default: 200
	FailureCap int
	// FailureWindow bounds how far back Status reaches when reporting
	// recent failures. Default: 10m
	FailureWindow time.Duration
}

func (c *Config) applyDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.Cleanup <= 0 {
		c.Cleanup = 5 * time.Minute
	}
	if c.WindowSize <= 0 {
		c.WindowSize = 20
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.FailureCap <= 0 {
		c.FailureCap = 200
	}
	if c.FailureWindow <= 0 {
		c.FailureWindow = 10 * time.Minute
	}
}

// Status is a point-in-time view of one monitor for report aggregation.
type Status struct {
	Name            string                 `json:"name"`
	Available       bool                   `json:"available"`
	HealthScore     float64                `json:"health_score"`
	InFlight        int                    `json:"in_flight"`
	ChecksCompleted int                    `json:"checks_completed"`
	ChecksStalled   int                    `json:"checks_stalled"`
	Failures        []*types.Failure       `json:"failures,omitempty"`
	RecentChecks    []*types.WorkflowRecord `json:"recent_checks,omitempty"`
	Stages          []string               `json:"stages"`
}

// instance is one in-flight workflow being watched for stage signals.
type instance struct {
	record     *types.WorkflowRecord
	lastSignal time.Time
}

// Monitor runs the generic validation engine for one pipeline definition.
type Monitor struct {
	mu sync.RWMutex

	def    Definition
	cfg    Config
	logger *logging.Logger
	probes host.ProbeSet

	inflight  map[string]*instance
	window    []*types.WorkflowRecord
	failures  []*types.Failure
	probeDown map[string]bool
	score     float64
	available bool
	ran       bool

	now func() time.Time

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	unsubLog  func()
	unsubMuts func()
}

// New creates a monitor for one pipeline. The probe set may be nil; the
// monitor then runs on console and mutation signals alone.
func New(def Definition, logger *logging.Logger, probes host.ProbeSet, cfg Config) (*Monitor, error) {
	if def.Name == "" {
		return nil, fmt.Errorf("pipeline definition needs a name")
	}
	if len(def.Stages) == 0 {
		return nil, fmt.Errorf("pipeline %s defines no stages", def.Name)
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	cfg.applyDefaults()
	return &Monitor{
		def:       def,
		cfg:       cfg,
		logger:    logger,
		probes:    probes,
		inflight:  make(map[string]*instance),
		probeDown: make(map[string]bool),
		score:     100,
		now:       time.Now,
	}, nil
}

// SetClock overrides the time source. Test hook.
func (m *Monitor) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// Name returns the pipeline name.
func (m *Monitor) Name() string { return m.def.Name }

// Start subscribes to the console stream and mutation feed and begins the
// periodic sweep loop.
func (m *Monitor) Start(ctx context.Context, mutations host.MutationStream) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.available {
		return fmt.Errorf("monitor %s already running", m.def.Name)
	}
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.available = true
	m.ran = true

	m.unsubLog = m.logger.Subscribe(m.onEntry)
	if mutations != nil && len(m.def.MutationPhrases) > 0 {
		m.unsubMuts = mutations.Subscribe(m.onMutation)
	}

	m.wg.Add(1)
	go m.sweepLoop()
	return nil
}

// Stop halts the sweep loop and detaches all signal sources. In-flight
// instances and the check window are retained for the final report.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.available {
		m.mu.Unlock()
		return
	}
	m.available = false
	m.cancel()
	if m.unsubLog != nil {
		m.unsubLog()
		m.unsubLog = nil
	}
	if m.unsubMuts != nil {
		m.unsubMuts()
		m.unsubMuts = nil
	}
	m.mu.Unlock()

	m.wg.Wait()
}

func (m *Monitor) sweepLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

// onEntry inspects one log entry for this pipeline's console signals.
func (m *Monitor) onEntry(e *types.LogEntry) {
	if e.Category != types.CategoryConsole {
		return
	}
	m.handleText(strings.ToLower(e.Message))
}

// onMutation matches mutation text against trigger-intent phrases.
func (m *Monitor) onMutation(mut host.Mutation) {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "[stagewatch] workflow %s: mutation handler panic: %v\n", m.def.Name, r)
		}
	}()
	if mut.Text == "" {
		return
	}
	text := strings.ToLower(mut.Text)
	if matchAny(text, m.def.MutationPhrases) {
		m.mu.Lock()
		m.openInstanceLocked()
		m.mu.Unlock()
	}
}

// handleText runs the phrase matchers in priority order: bypass and
// failure phrases always record a finding, success and stage phrases
// advance the newest in-flight instance.
func (m *Monitor) handleText(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if matchAny(text, m.def.BypassPhrases) {
		m.recordFailureLocked(types.NewFailure(m.def.Name, m.def.BypassFailure,
			fmt.Sprintf("%s pipeline bypassed: %q", m.def.Name, truncate(text, 120)), nil))
		if inst := m.newestLocked(); inst != nil {
			inst.record.Issues = append(inst.record.Issues, "bypass phrase observed")
		}
	}
	if matchAny(text, m.def.FailurePhrases) {
		m.recordFailureLocked(types.NewFailure(m.def.Name, m.def.InternalFailure,
			fmt.Sprintf("%s pipeline reported a failure: %q", m.def.Name, truncate(text, 120)), nil))
		if inst := m.newestLocked(); inst != nil {
			inst.record.Issues = append(inst.record.Issues, "failure phrase observed")
		}
	}

	if matchAny(text, m.def.TriggerPhrases) {
		m.openInstanceLocked()
	}

	for _, stage := range m.def.Stages {
		if matchAny(text, m.def.StageSignals[stage]) {
			m.advanceLocked(stage)
		}
	}

	if matchAny(text, m.def.SuccessPhrases) {
		if inst := m.newestLocked(); inst != nil {
			m.finalizeLocked(inst, false)
		}
	}
}

func (m *Monitor) openInstanceLocked() *instance {
	now := m.now()
	inst := &instance{
		record: &types.WorkflowRecord{
			ID:         uuid.New().String(),
			Pipeline:   m.def.Name,
			StartedAt:  now,
			StagesSeen: make(map[string]bool, len(m.def.Stages)),
		},
		lastSignal: now,
	}
	m.inflight[inst.record.ID] = inst
	return inst
}

// advanceLocked marks a stage on the newest in-flight instance, opening
// one if the stage signal arrived without a trigger. Observing a stage
// while an earlier stage is still missing is itself a finding.
func (m *Monitor) advanceLocked(stage string) {
	inst := m.newestLocked()
	if inst == nil {
		inst = m.openInstanceLocked()
	}
	inst.record.StagesSeen[stage] = true
	inst.lastSignal = m.now()

	for _, s := range m.def.Stages {
		if s == stage {
			break
		}
		if !inst.record.StagesSeen[s] {
			issue := fmt.Sprintf("stage %s observed before %s", stage, s)
			if !hasIssue(inst.record, issue) {
				inst.record.Issues = append(inst.record.Issues, issue)
			}
		}
	}

	if stage == m.def.Stages[len(m.def.Stages)-1] {
		m.finalizeLocked(inst, false)
	}
}

// finalizeLocked moves an instance into the check window. A stalled
// finalization records a stall issue and a typed failure.
func (m *Monitor) finalizeLocked(inst *instance, stalled bool) {
	delete(m.inflight, inst.record.ID)

	rec := inst.record
	rec.Duration = m.now().Sub(rec.StartedAt)
	rec.Stalled = stalled
	rec.Completed = !stalled

	if stalled {
		rec.Issues = append(rec.Issues, fmt.Sprintf("stalled: no stage signal within %s", m.cfg.Timeout))
		m.recordFailureLocked(types.NewFailure(m.def.Name, types.FailureStalledWorkflow,
			fmt.Sprintf("%s workflow stalled after %s", m.def.Name, rec.Duration.Truncate(time.Second)),
			map[string]interface{}{
				"workflow_id": rec.ID,
				"stages_seen": seenStages(rec),
			}))
	} else {
		for _, s := range m.def.Stages {
			if !rec.StagesSeen[s] {
				rec.Issues = append(rec.Issues, fmt.Sprintf("stage %s never observed", s))
			}
		}
	}

	m.window = append(m.window, rec)
	if limit := m.cfg.WindowSize * 2; len(m.window) > limit {
		trimmed := make([]*types.WorkflowRecord, limit)
		copy(trimmed, m.window[len(m.window)-limit:])
		m.window = trimmed
	}
}

// newestLocked returns the most recently started in-flight instance.
func (m *Monitor) newestLocked() *instance {
	var newest *instance
	for _, inst := range m.inflight {
		if newest == nil || inst.record.StartedAt.After(newest.record.StartedAt) {
			newest = inst
		}
	}
	return newest
}

// Sweep runs one periodic pass: probe polling, stall finalization,
// in-flight cleanup, and a full health-score recompute.
func (m *Monitor) Sweep() {
	m.pollProbes()

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for _, inst := range m.inflight {
		if now.Sub(inst.lastSignal) > m.cfg.Timeout {
			m.finalizeLocked(inst, true)
		}
	}
	for id, inst := range m.inflight {
		if now.Sub(inst.record.StartedAt) > m.cfg.Cleanup {
			delete(m.inflight, id)
		}
	}

	m.score = m.computeScoreLocked()
}

// pollProbes runs each bound capability check. A failing or erroring
// probe records connection loss once per outage, not once per sweep.
func (m *Monitor) pollProbes() {
	if m.probes == nil {
		return
	}
	for _, name := range m.def.Probes {
		probe, ok := m.probes[name]
		if !ok {
			continue
		}
		up, err := runProbe(probe)

		m.mu.Lock()
		wasDown := m.probeDown[name]
		down := err != nil || !up
		m.probeDown[name] = down
		if down && !wasDown {
			msg := fmt.Sprintf("capability %q unreachable", name)
			if err != nil {
				msg = fmt.Sprintf("capability %q check failed: %v", name, err)
			}
			m.recordFailureLocked(types.NewFailure(m.def.Name, types.FailureConnectionLost, msg,
				map[string]interface{}{"probe": name}))
		}
		m.mu.Unlock()
	}
}

func runProbe(p host.Probe) (up bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			up, err = false, fmt.Errorf("probe panic: %v", r)
		}
	}()
	return p()
}

// computeScoreLocked recomputes the health score from scratch over the
// last WindowSize finalized checks. An empty window scores 100.
func (m *Monitor) computeScoreLocked() float64 {
	window := m.window
	if len(window) > m.cfg.WindowSize {
		window = window[len(window)-m.cfg.WindowSize:]
	}
	if len(window) == 0 {
		return 100
	}
	clean := 0
	for _, rec := range window {
		if rec.Clean() {
			clean++
		}
	}
	return float64(clean) / float64(len(window)) * 100
}

func (m *Monitor) recordFailureLocked(f *types.Failure) {
	f.Timestamp = m.now()
	m.failures = append(m.failures, f)
	if len(m.failures) > m.cfg.FailureCap {
		trimmed := make([]*types.Failure, m.cfg.FailureCap)
		copy(trimmed, m.failures[len(m.failures)-m.cfg.FailureCap:])
		m.failures = trimmed
	}

	m.logger.Append(&types.LogEntry{
		Severity:  severityFor(f.Severity),
		Category:  types.CategoryEvent,
		Component: m.def.Name,
		Action:    string(f.Type),
		Message:   f.Message,
		Data:      map[string]interface{}{"failure_id": f.ID},
	})
}

func severityFor(s types.FailureSeverity) types.Severity {
	switch s {
	case types.FailureSeverityCritical, types.FailureSeverityHigh:
		return types.SeverityError
	default:
		return types.SeverityWarn
	}
}

// HealthScore returns the last computed score, always in [0,100].
func (m *Monitor) HealthScore() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.score
}

// Failures returns failures detected at or after since. A zero since
// returns everything retained.
func (m *Monitor) Failures(since time.Time) []*types.Failure {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*types.Failure, 0, len(m.failures))
	for _, f := range m.failures {
		if since.IsZero() || !f.Timestamp.Before(since) {
			out = append(out, f)
		}
	}
	return out
}

// Status builds the point-in-time view used by the report generator. A
// monitor that ran during the session stays available in the view after
// Stop; only a monitor that never started reports unavailable. Failures
// older than FailureWindow are left out.
func (m *Monitor) Status() *Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cutoff := m.now().Add(-m.cfg.FailureWindow)
	var recent []*types.Failure
	for _, f := range m.failures {
		if !f.Timestamp.Before(cutoff) {
			recent = append(recent, f)
		}
	}

	st := &Status{
		Name:        m.def.Name,
		Available:   m.available || m.ran,
		HealthScore: m.score,
		InFlight:    len(m.inflight),
		Stages:      append([]string(nil), m.def.Stages...),
		Failures:    recent,
	}
	for _, rec := range m.window {
		if rec.Stalled {
			st.ChecksStalled++
		} else {
			st.ChecksCompleted++
		}
	}
	window := m.window
	if len(window) > m.cfg.WindowSize {
		window = window[len(window)-m.cfg.WindowSize:]
	}
	st.RecentChecks = append([]*types.WorkflowRecord(nil), window...)
	return st
}

func matchAny(text string, phrases []string) bool {
	for _, p := range phrases {
		if p != "" && strings.Contains(text, p) {
			return true
		}
	}
	return false
}

func hasIssue(rec *types.WorkflowRecord, issue string) bool {
	for _, i := range rec.Issues {
		if i == issue {
			return true
		}
	}
	return false
}

func seenStages(rec *types.WorkflowRecord) []string {
	out := make([]string, 0, len(rec.StagesSeen))
	for s, seen := range rec.StagesSeen {
		if seen {
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
