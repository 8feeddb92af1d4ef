// Package statemon samples observable host state on a timer and on
// relevant UI mutations, keeps a bounded capture history, logs significant
// changes, and runs anomaly heuristics over each significant capture.
package statemon

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/stagewatch/stagewatch/internal/host"
	"github.com/stagewatch/stagewatch/internal/logging"
	"github.com/stagewatch/stagewatch/internal/types"
)

// MonitorName identifies state-monitor findings in reports.
const MonitorName = "state-monitor"

// Config holds state monitor tuning. Zero fields fall back to defaults.
type Config struct {
	// Interval is the periodic capture cadence. Default: 1s
	Interval time.Duration
	// HistoryCap bounds the retained capture history. Default: 100
	HistoryCap int
	// NoiseBytes is the document byte-size delta below which a change is
	// noise. Default: 256
	NoiseBytes int
	// TextDeltaChars is the textual length delta threshold. Default: 50
	TextDeltaChars int
	// RelevantClasses filters mutations to state-bearing regions
	RelevantClasses []string
	// MutationRate and MutationBurst throttle mutation-triggered captures
	MutationRate  float64
	MutationBurst int
	// FailureCap bounds the anomaly history. Default: 200
	FailureCap int
}

func (c *Config) applyDefaults() {
	if c.Interval <= 0 {
		c.Interval = time.Second
	}
	if c.HistoryCap <= 0 {
		c.HistoryCap = 100
	}
	if c.NoiseBytes <= 0 {
		c.NoiseBytes = 256
	}
	if c.TextDeltaChars <= 0 {
		c.TextDeltaChars = 50
	}
	if len(c.RelevantClasses) == 0 {
		c.RelevantClasses = []string{"panel", "highlight", "editor"}
	}
	if c.MutationRate <= 0 {
		c.MutationRate = 10
	}
	if c.MutationBurst <= 0 {
		c.MutationBurst = 5
	}
	if c.FailureCap <= 0 {
		c.FailureCap = 200
	}
}

// Monitor captures snapshots of observable host state.
type Monitor struct {
	mu sync.RWMutex

	reader    host.StateReader
	mutations host.MutationStream
	logger    *logging.Logger
	cfg       Config

	history  []*types.Snapshot
	prev     *types.Snapshot
	failures []*types.Failure

	limiter *rate.Limiter

	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	unsubscribe func()
	running     bool
}

// New creates a state monitor.
func New(reader host.StateReader, mutations host.MutationStream, logger *logging.Logger, cfg Config) (*Monitor, error) {
	if reader == nil {
		return nil, fmt.Errorf("state reader is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	cfg.applyDefaults()
	return &Monitor{
		reader:    reader,
		mutations: mutations,
		logger:    logger,
		cfg:       cfg,
		limiter:   rate.NewLimiter(rate.Limit(cfg.MutationRate), cfg.MutationBurst),
	}, nil
}

// StartMonitoring begins the periodic capture loop and subscribes to the
// mutation stream. Missing mutation support degrades to timer-only.
func (m *Monitor) StartMonitoring(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return fmt.Errorf("state monitor already running")
	}
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.running = true

	if m.mutations != nil {
		m.unsubscribe = m.mutations.Subscribe(m.onMutation)
	} else {
		fmt.Fprintf(os.Stderr, "[stagewatch] statemon: no mutation stream, timer-only mode\n")
	}

	m.wg.Add(1)
	go m.captureLoop()
	return nil
}

// StopMonitoring stops the loop and unsubscribes from mutations.
func (m *Monitor) StopMonitoring() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	m.cancel()
	if m.unsubscribe != nil {
		m.unsubscribe()
		m.unsubscribe = nil
	}
	m.mu.Unlock()

	m.wg.Wait()
}

func (m *Monitor) captureLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.CaptureCurrentState("interval", "")
		}
	}
}

// onMutation handles one change notification. Irrelevant mutations are
// ignored; relevant ones trigger a rate-limited capture.
func (m *Monitor) onMutation(mut host.Mutation) {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "[stagewatch] statemon: mutation handler panic: %v\n", r)
		}
	}()

	if !m.relevant(mut) {
		return
	}
	if !m.limiter.Allow() {
		return
	}
	m.CaptureCurrentState("mutation:"+string(mut.Kind), "")
}

// relevant reports whether a mutation touches a known state-bearing region.
func (m *Monitor) relevant(mut host.Mutation) bool {
	target := strings.ToLower(mut.NodeClass + " " + mut.NodePath)
	for _, class := range m.cfg.RelevantClasses {
		if strings.Contains(target, class) {
			return true
		}
	}
	return false
}

// CaptureCurrentState builds a snapshot, retains it, and logs it when the
// change against the previous capture is significant. A failing field
// never aborts the capture: it defaults to a neutral value and is noted
// in the snapshot's FieldErrors.
func (m *Monitor) CaptureCurrentState(changeType, correlationID string) *types.Snapshot {
	snap := &types.Snapshot{
		Timestamp:     time.Now(),
		ChangeType:    changeType,
		CorrelationID: correlationID,
	}

	if v, err := m.reader.PanelVisible(); err != nil {
		snap.FieldErrors = append(snap.FieldErrors, "panel_visible")
	} else {
		snap.PanelVisible = v
	}
	if v, err := m.reader.IndicatorActive(); err != nil {
		snap.FieldErrors = append(snap.FieldErrors, "indicator_active")
	} else {
		snap.IndicatorActive = v
	}
	if regions, err := m.reader.Highlights(); err != nil {
		snap.FieldErrors = append(snap.FieldErrors, "highlights")
	} else {
		snap.Highlights = regions
	}
	if doc, err := m.reader.DocumentMetrics(); err != nil {
		snap.FieldErrors = append(snap.FieldErrors, "doc_metrics")
	} else {
		snap.Doc = doc
	}

	m.mu.Lock()
	prev := m.prev
	m.prev = snap
	m.history = append(m.history, snap)
	if len(m.history) > m.cfg.HistoryCap {
		trimmed := make([]*types.Snapshot, m.cfg.HistoryCap)
		copy(trimmed, m.history[len(m.history)-m.cfg.HistoryCap:])
		m.history = trimmed
	}
	m.mu.Unlock()

	if len(snap.FieldErrors) > 0 {
		m.logger.Append(&types.LogEntry{
			Severity:  types.SeverityWarn,
			Category:  types.CategoryState,
			Component: MonitorName,
			Action:    "partial_capture",
			Message:   "state fields unreadable: " + strings.Join(snap.FieldErrors, ", "),
		})
	}

	if m.significantChange(prev, snap) {
		entry := &types.LogEntry{
			Severity:      types.SeverityInfo,
			Category:      types.CategoryState,
			Component:     MonitorName,
			Action:        "state_change",
			Message:       describeChange(prev, snap),
			CorrelationID: correlationID,
			Snapshot:      snap,
		}
		m.logger.Append(entry)
		m.runHeuristics(snap)
	}

	return snap
}

// significantChange implements the significance predicate. The first
// capture is always significant.
func (m *Monitor) significantChange(prev, cur *types.Snapshot) bool {
	if prev == nil {
		return true
	}
	if prev.PanelVisible != cur.PanelVisible {
		return true
	}
	if prev.IndicatorActive != cur.IndicatorActive {
		return true
	}
	if len(prev.Highlights) != len(cur.Highlights) {
		return true
	}
	if abs(cur.Doc.Bytes-prev.Doc.Bytes) > m.cfg.NoiseBytes {
		return true
	}
	if abs(cur.Doc.Chars-prev.Doc.Chars) > m.cfg.TextDeltaChars {
		return true
	}
	return false
}

func describeChange(prev, cur *types.Snapshot) string {
	if prev == nil {
		return "initial state capture"
	}
	var parts []string
	if prev.PanelVisible != cur.PanelVisible {
		parts = append(parts, fmt.Sprintf("panel visible %t->%t", prev.PanelVisible, cur.PanelVisible))
	}
	if prev.IndicatorActive != cur.IndicatorActive {
		parts = append(parts, fmt.Sprintf("indicator %t->%t", prev.IndicatorActive, cur.IndicatorActive))
	}
	if len(prev.Highlights) != len(cur.Highlights) {
		parts = append(parts, fmt.Sprintf("highlights %d->%d", len(prev.Highlights), len(cur.Highlights)))
	}
	if prev.Doc != cur.Doc {
		parts = append(parts, fmt.Sprintf("doc %d->%d bytes", prev.Doc.Bytes, cur.Doc.Bytes))
	}
	if len(parts) == 0 {
		return "state changed"
	}
	return strings.Join(parts, "; ")
}

// runHeuristics checks a significant capture for anomalies: duplicated
// highlight keys and highlights rendered while the master indicator is
// inactive.
func (m *Monitor) runHeuristics(snap *types.Snapshot) {
	counts := make(map[string]int)
	var firstDup *types.HighlightRegion
	for i := range snap.Highlights {
		key := snap.Highlights[i].Key()
		counts[key]++
		if counts[key] == 2 && firstDup == nil {
			firstDup = &snap.Highlights[i]
		}
	}
	if firstDup != nil {
		dupCount := 0
		for _, c := range counts {
			if c > 1 {
				dupCount++
			}
		}
		m.recordFailure(types.NewFailure(MonitorName, types.FailureDuplicateEffect,
			fmt.Sprintf("%d highlight key(s) rendered more than once", dupCount),
			map[string]interface{}{
				"first_duplicate": firstDup.Key(),
				"highlight_count": len(snap.Highlights),
			}))
	}

	if len(snap.Highlights) > 0 && !snap.IndicatorActive {
		m.recordFailure(types.NewFailure(MonitorName, types.FailureMissingAttribution,
			"highlights present but master indicator shows inactive",
			map[string]interface{}{
				"highlight_count": len(snap.Highlights),
			}))
	}
}

func (m *Monitor) recordFailure(f *types.Failure) {
	m.mu.Lock()
	m.failures = append(m.failures, f)
	if len(m.failures) > m.cfg.FailureCap {
		trimmed := make([]*types.Failure, m.cfg.FailureCap)
		copy(trimmed, m.failures[len(m.failures)-m.cfg.FailureCap:])
		m.failures = trimmed
	}
	m.mu.Unlock()

	m.logger.Append(&types.LogEntry{
		Severity:  types.SeverityWarn,
		Category:  types.CategoryUI,
		Component: MonitorName,
		Action:    string(f.Type),
		Message:   f.Message,
		Data:      map[string]interface{}{"failure_id": f.ID},
	})
}

// GetCaptureHistory returns a copy of the retained capture history.
func (m *Monitor) GetCaptureHistory() []*types.Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*types.Snapshot(nil), m.history...)
}

// Failures returns a copy of the anomaly history.
func (m *Monitor) Failures() []*types.Failure {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*types.Failure(nil), m.failures...)
}

// Running reports whether the monitor loop is active.
func (m *Monitor) Running() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
