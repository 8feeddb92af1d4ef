// Package logging implements the structured, append-only evidence log:
// normalization, the bounded in-memory buffer, durable persistence through
// a session log writer, synchronous pattern detectors, and a subscription
// fan-out consumed by the workflow health monitors.
package logging

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stagewatch/stagewatch/internal/types"
)

// EntryWriter persists normalized entries. Implemented by session.LogWriter.
type EntryWriter interface {
	WriteEntry(e *types.LogEntry) error
	Flush() error
}

// Config holds logger tuning. Zero fields fall back to defaults.
type Config struct {
	// BufferCap is the in-memory ring capacity. Default: 1000
	BufferCap int
	// TrimBatch is the bulk-trim slack: the buffer is trimmed only after
	// it exceeds capacity by this many entries. Default: 100
	TrimBatch int
	// GapWindow is the success/failure gap detector lookback. Default: 5s
	GapWindow time.Duration
	// SuccessKeywords mark an INFO entry as a textual success claim
	SuccessKeywords []string
}

func (c *Config) applyDefaults() {
	if c.BufferCap <= 0 {
		c.BufferCap = 1000
	}
	if c.TrimBatch <= 0 {
		c.TrimBatch = 100
	}
	if c.TrimBatch > c.BufferCap {
		c.TrimBatch = c.BufferCap
	}
	if c.GapWindow <= 0 {
		c.GapWindow = 5 * time.Second
	}
	if len(c.SuccessKeywords) == 0 {
		c.SuccessKeywords = []string{"success", "succeeded", "completed successfully", "applied"}
	}
}

// Logger is the structured event log. A logger owns exactly one session;
// every appended entry is stamped with that session's id.
type Logger struct {
	mu sync.RWMutex

	sessionID string
	writer    EntryWriter // may be nil for memory-only loggers
	cfg       Config

	buffer []*types.LogEntry

	// lastUIError feeds the success/failure gap detector
	lastUIError time.Time

	subs    map[int]func(*types.LogEntry)
	nextSub int

	// now is injectable for detector-window tests
	now func() time.Time
}

// New creates a logger for one session. writer may be nil.
func New(sessionID string, writer EntryWriter, cfg Config) (*Logger, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session id is required")
	}
	cfg.applyDefaults()
	return &Logger{
		sessionID: sessionID,
		writer:    writer,
		cfg:       cfg,
		buffer:    make([]*types.LogEntry, 0, cfg.BufferCap),
		subs:      make(map[int]func(*types.LogEntry)),
		now:       time.Now,
	}, nil
}

// SetClock overrides the logger's clock. Intended for tests.
func (l *Logger) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}

// SessionID returns the session this logger belongs to.
func (l *Logger) SessionID() string {
	return l.sessionID
}

// Append normalizes and stores an entry, then runs the pattern detectors.
// Detector findings become additional entries appended after the original.
// Append never returns an error: persistence failures are reported on the
// original stderr channel and the in-memory buffer is preserved regardless.
func (l *Logger) Append(e *types.LogEntry) {
	l.mu.Lock()
	l.normalize(e)
	l.store(e)

	var derived []*types.LogEntry
	if !isDetectorEntry(e) {
		derived = append(derived, l.detectDuplicateRegions(e)...)
		derived = append(derived, l.detectSuccessGap(e)...)
	}
	if e.Severity == types.SeverityError && e.Category == types.CategoryUI {
		l.lastUIError = e.Timestamp
	}
	for _, d := range derived {
		l.normalize(d)
		l.store(d)
	}
	l.mu.Unlock()

	l.notify(e)
	for _, d := range derived {
		l.notify(d)
	}
}

// normalize fills missing identity fields in place. Caller holds the lock.
func (l *Logger) normalize(e *types.LogEntry) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = l.now()
	}
	e.SessionID = l.sessionID
	if !e.Severity.Valid() {
		e.Severity = types.SeverityInfo
	}
	if !e.Category.Valid() {
		e.Category = types.CategoryEvent
	}
}

// store mirrors the entry to the buffer and to durable storage. The buffer
// is trimmed in batches, not per entry. Caller holds the lock.
func (l *Logger) store(e *types.LogEntry) {
	l.buffer = append(l.buffer, e)
	if len(l.buffer) >= l.cfg.BufferCap+l.cfg.TrimBatch {
		keep := l.buffer[len(l.buffer)-l.cfg.BufferCap:]
		trimmed := make([]*types.LogEntry, len(keep), l.cfg.BufferCap+l.cfg.TrimBatch)
		copy(trimmed, keep)
		l.buffer = trimmed
	}

	if l.writer != nil {
		if err := l.writer.WriteEntry(e); err != nil {
			// The buffer still holds the entry; only durability degraded.
			fmt.Fprintf(os.Stderr, "[stagewatch] logger: persisting entry: %v\n", err)
		}
	}
}

// notify fans the entry out to subscribers. A panicking subscriber is
// contained and reported; it never stops the harness.
func (l *Logger) notify(e *types.LogEntry) {
	l.mu.RLock()
	fns := make([]func(*types.LogEntry), 0, len(l.subs))
	for _, fn := range l.subs {
		fns = append(fns, fn)
	}
	l.mu.RUnlock()

	for _, fn := range fns {
		func() {
			defer func() {
				if r := recover(); r != nil {
					fmt.Fprintf(os.Stderr, "[stagewatch] logger: subscriber panic: %v\n", r)
				}
			}()
			fn(e)
		}()
	}
}

// Subscribe registers a callback invoked synchronously for every appended
// entry (including detector findings). Returns an unsubscribe function.
func (l *Logger) Subscribe(fn func(*types.LogEntry)) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	id := l.nextSub
	l.nextSub++
	l.subs[id] = fn
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.subs, id)
	}
}

// Filter selects entries from the buffer. Zero fields match everything.
type Filter struct {
	// Since selects entries at or after this time
	Since time.Time
	// Category selects entries of one category
	Category types.Category
	// CorrelationID selects entries in one correlation group
	CorrelationID string
	// MinSeverity selects entries at or above a severity
	MinSeverity types.Severity
	// Limit caps the number of entries returned (most recent kept)
	Limit int
}

// Query returns buffered entries matching the filter, in append order.
func (l *Logger) Query(f Filter) []*types.LogEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []*types.LogEntry
	for _, e := range l.buffer {
		if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
			continue
		}
		if f.Category != "" && e.Category != f.Category {
			continue
		}
		if f.CorrelationID != "" && e.CorrelationID != f.CorrelationID {
			continue
		}
		if f.MinSeverity != "" && !e.Severity.AtLeast(f.MinSeverity) {
			continue
		}
		out = append(out, e)
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[len(out)-f.Limit:]
	}
	return out
}

// Buffer returns a copy of the current in-memory buffer.
func (l *Logger) Buffer() []*types.LogEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]*types.LogEntry(nil), l.buffer...)
}

// Len returns the number of buffered entries.
func (l *Logger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.buffer)
}

// Flush pushes pending writes to durable storage.
func (l *Logger) Flush() error {
	l.mu.RLock()
	w := l.writer
	l.mu.RUnlock()
	if w == nil {
		return nil
	}
	return w.Flush()
}
