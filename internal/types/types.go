package types

import (
	"fmt"
	"time"
)

// Severity represents the severity level of a log entry.
type Severity string

const (
	// SeverityTrace indicates fine-grained diagnostic detail
	SeverityTrace Severity = "trace"
	// SeverityDebug indicates debugging information
	SeverityDebug Severity = "debug"
	// SeverityInfo indicates informational entries
	SeverityInfo Severity = "info"
	// SeverityWarn indicates potentially problematic entries
	SeverityWarn Severity = "warn"
	// SeverityError indicates error entries
	SeverityError Severity = "error"
)

var severityRank = map[Severity]int{
	SeverityTrace: 1,
	SeverityDebug: 2,
	SeverityInfo:  3,
	SeverityWarn:  4,
	SeverityError: 5,
}

// AtLeast reports whether s is at or above the given severity.
// Unknown severities rank below trace.
func (s Severity) AtLeast(min Severity) bool {
	return severityRank[s] >= severityRank[min]
}

// Valid reports whether s is one of the defined severity levels.
func (s Severity) Valid() bool {
	_, ok := severityRank[s]
	return ok
}

// Category classifies the source of a log entry.
type Category string

const (
	// CategoryConsole marks entries captured from the host diagnostic channel
	CategoryConsole Category = "console"
	// CategoryUI marks entries describing visible interface changes
	CategoryUI Category = "ui"
	// CategoryState marks entries produced by state snapshots
	CategoryState Category = "state"
	// CategoryEvent marks generic lifecycle events
	CategoryEvent Category = "event"
	// CategoryAPI marks entries produced by host capability calls
	CategoryAPI Category = "api"
	// CategoryError marks error entries
	CategoryError Category = "error"
	// CategoryPerformance marks timing and resource entries
	CategoryPerformance Category = "performance"
	// CategoryReport marks entries produced during report generation
	CategoryReport Category = "report"
)

var validCategories = map[Category]bool{
	CategoryConsole:     true,
	CategoryUI:          true,
	CategoryState:       true,
	CategoryEvent:       true,
	CategoryAPI:         true,
	CategoryError:       true,
	CategoryPerformance: true,
	CategoryReport:      true,
}

// Valid reports whether c is one of the defined categories.
func (c Category) Valid() bool {
	return validCategories[c]
}

// LogEntry is the atomic unit of evidence. Entries are immutable once
// appended; the logger fills any missing identity fields before storage.
type LogEntry struct {
	// ID is the unique identifier for this entry
	ID string `json:"id"`
	// SessionID is the observation session this entry belongs to
	SessionID string `json:"session_id"`
	// Timestamp is when the entry was created
	Timestamp time.Time `json:"timestamp"`
	// Severity is the severity level of this entry
	Severity Severity `json:"severity"`
	// Category classifies the entry's source
	Category Category `json:"category"`
	// Component is the producing component (interceptor, state-monitor, ...)
	Component string `json:"component"`
	// Action is a short verb phrase describing what happened
	Action string `json:"action"`
	// Message is a human-readable description
	Message string `json:"message,omitempty"`
	// Data contains structured, category-specific data (must be JSON-serializable)
	Data map[string]interface{} `json:"data,omitempty"`
	// CorrelationID links causally-related entries across components
	CorrelationID string `json:"correlation_id,omitempty"`
	// Snapshot is an optional captured visual state
	Snapshot *Snapshot `json:"snapshot,omitempty"`
}

// HighlightRegion is one highlighted region observed in the host document.
type HighlightRegion struct {
	// ID is the host-assigned identifier for the region (may be empty)
	ID string `json:"id,omitempty"`
	// Kind is the host-assigned region type (suggestion, attribution, ...)
	Kind string `json:"kind,omitempty"`
	// Start is the region's starting offset in the document
	Start int `json:"start"`
	// End is the region's ending offset in the document
	End int `json:"end"`
	// Text is the highlighted text
	Text string `json:"text"`
}

// Key returns the identity key used for duplicate detection. Two regions
// with the same key are the same visual effect regardless of host IDs.
func (r HighlightRegion) Key() string {
	return fmt.Sprintf("%d:%d:%s", r.Start, r.End, r.Text)
}

// DocMetrics holds document-size measurements from one capture.
type DocMetrics struct {
	// Bytes is the serialized document size
	Bytes int `json:"bytes"`
	// Chars is the textual content length
	Chars int `json:"chars"`
	// Lines is the line count
	Lines int `json:"lines"`
}

// Snapshot is a point-in-time reading of observable application state.
// A snapshot is a pure function of observed state at capture time.
type Snapshot struct {
	// Timestamp is when the snapshot was captured
	Timestamp time.Time `json:"timestamp"`
	// ChangeType records what triggered the capture (interval, mutation, ...)
	ChangeType string `json:"change_type"`
	// CorrelationID links the capture to related entries (optional)
	CorrelationID string `json:"correlation_id,omitempty"`
	// PanelVisible reports whether the observed panel was visible
	PanelVisible bool `json:"panel_visible"`
	// IndicatorActive reports the state of the master on/off indicator
	IndicatorActive bool `json:"indicator_active"`
	// Highlights is the set of highlighted regions at capture time
	Highlights []HighlightRegion `json:"highlights"`
	// Doc holds document-size metrics
	Doc DocMetrics `json:"doc"`
	// FieldErrors names fields that could not be read (defaulted to neutral)
	FieldErrors []string `json:"field_errors,omitempty"`
}

// SessionStatus represents the lifecycle state of a session.
type SessionStatus string

const (
	// SessionActive indicates the session is accumulating entries
	SessionActive SessionStatus = "active"
	// SessionCompleted indicates the session was finalized cleanly
	SessionCompleted SessionStatus = "completed"
	// SessionFailed indicates the session ended on a fatal error
	SessionFailed SessionStatus = "failed"
)

// Session is one bounded observation period. Status transitions are one-way:
// active -> completed or active -> failed.
type Session struct {
	// ID is the unique session identifier
	ID string `json:"id"`
	// StartedAt is when the session began
	StartedAt time.Time `json:"started_at"`
	// EndedAt is when the session was finalized (nil while active)
	EndedAt *time.Time `json:"ended_at,omitempty"`
	// Dir is the session's output directory
	Dir string `json:"dir"`
	// Status is the current lifecycle state
	Status SessionStatus `json:"status"`
	// EntryCount is the number of entries written so far
	EntryCount int64 `json:"entry_count"`
	// SizeBytes is the total on-disk size of the session's log files
	SizeBytes int64 `json:"size_bytes"`
	// FailReason records why the session failed (failed status only)
	FailReason string `json:"fail_reason,omitempty"`
}

// WorkflowRecord is the result of evaluating one instance of a multi-stage
// pipeline. A record is complete only when the terminal stage was observed;
// records that outlive the stall timeout are force-completed as stalled.
type WorkflowRecord struct {
	// ID is the unique identifier for this workflow instance
	ID string `json:"id"`
	// Pipeline is the name of the pipeline being validated
	Pipeline string `json:"pipeline"`
	// StartedAt is when the triggering signal was detected
	StartedAt time.Time `json:"started_at"`
	// StagesSeen maps stage name to whether its signal was observed
	StagesSeen map[string]bool `json:"stages_seen"`
	// Completed reports whether the terminal stage was observed
	Completed bool `json:"completed"`
	// Stalled reports whether the record was force-completed by timeout
	Stalled bool `json:"stalled"`
	// Duration is the time from trigger to finalization
	Duration time.Duration `json:"duration"`
	// Issues lists human-readable problems found while the workflow ran
	Issues []string `json:"issues,omitempty"`
}

// Clean reports whether the record finished with no issues.
func (w *WorkflowRecord) Clean() bool {
	return w.Completed && !w.Stalled && len(w.Issues) == 0
}
