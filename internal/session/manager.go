// Package session owns on-disk session lifecycle: creation, the append-only
// JSONL log with rotation, metadata persistence, the "latest" pointer, and
// retention cleanup.
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/stagewatch/stagewatch/internal/config"
	"github.com/stagewatch/stagewatch/internal/types"
)

const (
	metadataFile = "session.json"
	latestLink   = "latest"
)

// Index is an optional queryable session index maintained alongside the
// session directories. Index failures are never fatal: the directories
// remain the source of truth.
type Index interface {
	Upsert(sess *types.Session) error
	Delete(id string) error
	List() ([]*types.Session, error)
}

// Manager owns the session directory tree under <root>/sessions.
type Manager struct {
	root        string
	rotateBytes int64
	retention   config.RetentionConfig
	idx         Index

	// now is injectable for retention tests
	now func() time.Time
}

// NewManager creates a session manager rooted at the harness data dir.
// idx may be nil.
func NewManager(root string, rotateBytes int64, retention config.RetentionConfig, idx Index) (*Manager, error) {
	if root == "" {
		return nil, fmt.Errorf("root is required")
	}
	if rotateBytes < 1024 {
		return nil, fmt.Errorf("rotate threshold too small: %d", rotateBytes)
	}
	if err := os.MkdirAll(filepath.Join(root, "sessions"), 0755); err != nil {
		return nil, fmt.Errorf("creating sessions directory: %w", err)
	}
	return &Manager{
		root:        root,
		rotateBytes: rotateBytes,
		retention:   retention,
		idx:         idx,
		now:         time.Now,
	}, nil
}

// SetClock overrides the manager's clock. Intended for tests.
func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}

func (m *Manager) sessionsDir() string {
	return filepath.Join(m.root, "sessions")
}

// CreateSession creates an isolated session directory named by
// timestamp+id and opens its log writer. The writer's first line is the
// session header record.
func (m *Manager) CreateSession(id string) (*types.Session, *LogWriter, error) {
	if id == "" {
		return nil, nil, fmt.Errorf("session id is required")
	}

	started := m.now()
	dir := filepath.Join(m.sessionsDir(), started.Format("20060102-150405")+"-"+id)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, nil, fmt.Errorf("creating session directory: %w", err)
	}

	sess := &types.Session{
		ID:        id,
		StartedAt: started,
		Dir:       dir,
		Status:    types.SessionActive,
	}

	writer, err := newLogWriter(dir, m.rotateBytes, sess)
	if err != nil {
		return nil, nil, fmt.Errorf("opening session log: %w", err)
	}

	if err := m.writeMetadata(sess); err != nil {
		writer.Close()
		return nil, nil, err
	}

	// Pointer update failure is non-fatal.
	if err := m.updateLatest(dir); err != nil {
		warnf("updating latest pointer: %v", err)
	}
	if m.idx != nil {
		if err := m.idx.Upsert(sess); err != nil {
			warnf("indexing session %s: %v", sess.ID, err)
		}
	}

	return sess, writer, nil
}

// UpdateSession persists current session metadata.
func (m *Manager) UpdateSession(sess *types.Session) error {
	if err := m.writeMetadata(sess); err != nil {
		return err
	}
	if m.idx != nil {
		if err := m.idx.Upsert(sess); err != nil {
			warnf("indexing session %s: %v", sess.ID, err)
		}
	}
	return nil
}

// CompleteSession finalizes a session cleanly. The transition is one-way;
// completing a non-active session is an error.
func (m *Manager) CompleteSession(sess *types.Session, w *LogWriter) error {
	return m.finalize(sess, w, types.SessionCompleted, "")
}

// FailSession finalizes a session after a fatal error.
func (m *Manager) FailSession(sess *types.Session, w *LogWriter, reason string) error {
	return m.finalize(sess, w, types.SessionFailed, reason)
}

func (m *Manager) finalize(sess *types.Session, w *LogWriter, status types.SessionStatus, reason string) error {
	if sess.Status != types.SessionActive {
		return fmt.Errorf("session %s is already %s", sess.ID, sess.Status)
	}

	if w != nil {
		if err := w.Close(); err != nil {
			warnf("closing session log: %v", err)
		}
		sess.EntryCount = w.EntryCount()
		sess.SizeBytes = w.BytesWritten()
	}

	ended := m.now()
	sess.EndedAt = &ended
	sess.Status = status
	sess.FailReason = reason

	return m.UpdateSession(sess)
}

// ListSessions returns all known sessions, oldest first. The index is
// preferred when available; directories are the fallback.
func (m *Manager) ListSessions() ([]*types.Session, error) {
	if m.idx != nil {
		if sessions, err := m.idx.List(); err == nil {
			sortSessions(sessions)
			return sessions, nil
		} else {
			warnf("listing from index: %v (falling back to directory scan)", err)
		}
	}
	return m.scanSessions()
}

// scanSessions reads session metadata from every session directory.
func (m *Manager) scanSessions() ([]*types.Session, error) {
	dirEntries, err := os.ReadDir(m.sessionsDir())
	if err != nil {
		return nil, fmt.Errorf("reading sessions directory: %w", err)
	}

	var sessions []*types.Session
	for _, de := range dirEntries {
		if !de.IsDir() {
			continue
		}
		sess, err := readMetadata(filepath.Join(m.sessionsDir(), de.Name()))
		if err != nil {
			warnf("skipping %s: %v", de.Name(), err)
			continue
		}
		sessions = append(sessions, sess)
	}
	sortSessions(sessions)
	return sessions, nil
}

// CleanupOldSessions applies the retention policy: age limit first, then
// the count cap, then the total-byte cap, each deleting oldest-first.
// Active sessions are never deleted. Returns the number removed.
func (m *Manager) CleanupOldSessions() (int, error) {
	sessions, err := m.scanSessions()
	if err != nil {
		return 0, err
	}

	var keep []*types.Session
	var doomed []*types.Session

	// Stage 1: age limit.
	cutoff := m.now().Add(-m.retention.MaxAge())
	for _, s := range sessions {
		if s.Status != types.SessionActive && s.StartedAt.Before(cutoff) {
			doomed = append(doomed, s)
		} else {
			keep = append(keep, s)
		}
	}

	// Stage 2: count cap, oldest finished first. Active sessions count
	// toward the cap but are skipped, never deleted.
	for len(keep) > m.retention.MaxSessions {
		i := oldestFinished(keep)
		if i < 0 {
			break
		}
		doomed = append(doomed, keep[i])
		keep = append(keep[:i], keep[i+1:]...)
	}

	// Stage 3: byte cap, oldest finished first.
	var total int64
	for _, s := range keep {
		total += s.SizeBytes
	}
	for total > m.retention.MaxTotalBytes {
		i := oldestFinished(keep)
		if i < 0 {
			break
		}
		total -= keep[i].SizeBytes
		doomed = append(doomed, keep[i])
		keep = append(keep[:i], keep[i+1:]...)
	}

	removed := 0
	for _, s := range doomed {
		if err := os.RemoveAll(s.Dir); err != nil {
			warnf("deleting session %s: %v", s.ID, err)
			continue
		}
		if m.idx != nil {
			if err := m.idx.Delete(s.ID); err != nil {
				warnf("unindexing session %s: %v", s.ID, err)
			}
		}
		removed++
	}

	if removed > 0 {
		m.repairLatest(keep)
	}
	return removed, nil
}

// oldestFinished returns the index of the oldest non-active session in
// the oldest-first list, or -1 when every entry is active.
func oldestFinished(list []*types.Session) int {
	for i, s := range list {
		if s.Status != types.SessionActive {
			return i
		}
	}
	return -1
}

// repairLatest re-points the latest symlink at the newest surviving
// session, or removes it when none survive.
func (m *Manager) repairLatest(keep []*types.Session) {
	link := filepath.Join(m.root, latestLink)
	if len(keep) == 0 {
		os.Remove(link)
		return
	}
	if err := m.updateLatest(keep[len(keep)-1].Dir); err != nil {
		warnf("repairing latest pointer: %v", err)
	}
}

// updateLatest points <root>/latest at the given session directory.
func (m *Manager) updateLatest(dir string) error {
	link := filepath.Join(m.root, latestLink)
	tmp := link + ".tmp"
	os.Remove(tmp)
	if err := os.Symlink(dir, tmp); err != nil {
		return err
	}
	return os.Rename(tmp, link)
}

// LatestDir resolves the latest pointer.
func (m *Manager) LatestDir() (string, error) {
	return os.Readlink(filepath.Join(m.root, latestLink))
}

// FindSession locates a session directory by id.
func (m *Manager) FindSession(id string) (*types.Session, error) {
	sessions, err := m.scanSessions()
	if err != nil {
		return nil, err
	}
	for _, s := range sessions {
		if s.ID == id {
			return s, nil
		}
	}
	return nil, fmt.Errorf("session %s not found", id)
}

// writeMetadata persists session.json atomically via temp file + rename.
func (m *Manager) writeMetadata(sess *types.Session) error {
	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return fmt.Errorf("serializing session metadata: %w", err)
	}

	path := filepath.Join(sess.Dir, metadataFile)
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("writing session metadata: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("committing session metadata: %w", err)
	}
	return nil
}

// readMetadata loads a session from its directory.
func readMetadata(dir string) (*types.Session, error) {
	data, err := os.ReadFile(filepath.Join(dir, metadataFile))
	if err != nil {
		return nil, fmt.Errorf("reading session metadata: %w", err)
	}
	var sess types.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("parsing session metadata: %w", err)
	}
	// The directory may have moved since the metadata was written.
	sess.Dir = dir
	return &sess, nil
}

func sortSessions(sessions []*types.Session) {
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].StartedAt.Before(sessions[j].StartedAt)
	})
}

// warnf reports session-manager problems on the original stderr channel so
// they stay visible even when the console interceptor is active.
func warnf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "[stagewatch] session: "+format+"\n", args...)
}
