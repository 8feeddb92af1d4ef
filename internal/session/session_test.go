package session

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stagewatch/stagewatch/internal/config"
	"github.com/stagewatch/stagewatch/internal/types"
)

func testRetention() config.RetentionConfig {
	return config.RetentionConfig{
		MaxAgeDays:    7,
		MaxSessions:   50,
		MaxTotalBytes: 500 * 1024 * 1024,
	}
}

func TestCreateSessionWritesHeaderAndMetadata(t *testing.T) {
	root := t.TempDir()
	mgr, err := NewManager(root, 1024*1024, testRetention(), nil)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	sess, w, err := mgr.CreateSession("abc123")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	defer w.Close()

	if sess.Status != types.SessionActive {
		t.Errorf("Expected active status, got %s", sess.Status)
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	header, err := ReadHeader(sess.Dir)
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	if header.ID != "abc123" {
		t.Errorf("Expected header session id abc123, got %q", header.ID)
	}

	if _, err := os.Stat(filepath.Join(sess.Dir, "session.json")); err != nil {
		t.Errorf("Expected session.json written: %v", err)
	}

	latest, err := mgr.LatestDir()
	if err != nil {
		t.Fatalf("LatestDir: %v", err)
	}
	if latest != sess.Dir {
		t.Errorf("Expected latest pointer at %s, got %s", sess.Dir, latest)
	}
}

func TestRotationLosesNoEntries(t *testing.T) {
	dir := t.TempDir()
	sess := &types.Session{ID: "rot", StartedAt: time.Now(), Dir: dir, Status: types.SessionActive}

	// Tiny threshold so a few entries force several rotations.
	w, err := newLogWriter(dir, 512, sess)
	if err != nil {
		t.Fatalf("newLogWriter: %v", err)
	}

	const n = 100
	for i := 0; i < n; i++ {
		e := &types.LogEntry{
			ID:      fmt.Sprintf("entry-%03d", i),
			Message: fmt.Sprintf("message number %d with some padding to force rotation", i),
		}
		if err := w.WriteEntry(e); err != nil {
			t.Fatalf("WriteEntry %d: %v", i, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if w.FileCount() < 2 {
		t.Fatalf("Expected rotation to produce multiple files, got %d", w.FileCount())
	}
	if w.EntryCount() != n {
		t.Errorf("Expected %d entries counted, got %d", n, w.EntryCount())
	}

	entries, err := ReadEntries(dir)
	if err != nil {
		t.Fatalf("ReadEntries: %v", err)
	}
	if len(entries) != n {
		t.Fatalf("Expected %d entries read back across rotated files, got %d", n, len(entries))
	}

	// Write order survives rotation.
	for i, e := range entries {
		want := fmt.Sprintf("entry-%03d", i)
		if e.ID != want {
			t.Fatalf("Entry %d out of order: expected %s, got %s", i, want, e.ID)
		}
	}
}

func TestFinalizeIsOneWay(t *testing.T) {
	root := t.TempDir()
	mgr, err := NewManager(root, 1024*1024, testRetention(), nil)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	sess, w, err := mgr.CreateSession("once")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	if err := mgr.CompleteSession(sess, w); err != nil {
		t.Fatalf("CompleteSession: %v", err)
	}
	if sess.Status != types.SessionCompleted {
		t.Errorf("Expected completed, got %s", sess.Status)
	}
	if sess.EndedAt == nil {
		t.Error("Expected EndedAt set")
	}

	if err := mgr.CompleteSession(sess, w); err == nil {
		t.Error("Expected error completing an already finalized session")
	}
	if err := mgr.FailSession(sess, w, "late"); err == nil {
		t.Error("Expected error failing an already finalized session")
	}
}

// makeFinishedSession fabricates an on-disk completed session with a
// chosen age and size.
func makeFinishedSession(t *testing.T, mgr *Manager, id string, age time.Duration, sizeBytes int) *types.Session {
	t.Helper()

	started := time.Now().Add(-age)
	dir := filepath.Join(mgr.sessionsDir(), started.Format("20060102-150405")+"-"+id)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if sizeBytes > 0 {
		if err := os.WriteFile(filepath.Join(dir, "log.jsonl"), make([]byte, sizeBytes), 0644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
	}

	ended := started.Add(time.Minute)
	sess := &types.Session{
		ID:        id,
		StartedAt: started,
		EndedAt:   &ended,
		Dir:       dir,
		Status:    types.SessionCompleted,
		SizeBytes: int64(sizeBytes),
	}
	if err := mgr.writeMetadata(sess); err != nil {
		t.Fatalf("writeMetadata: %v", err)
	}
	return sess
}

func TestCleanupAgeLimit(t *testing.T) {
	root := t.TempDir()
	ret := testRetention()
	ret.MaxAgeDays = 7
	mgr, err := NewManager(root, 1024*1024, ret, nil)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	old := makeFinishedSession(t, mgr, "old", 10*24*time.Hour, 100)
	fresh := makeFinishedSession(t, mgr, "fresh", time.Hour, 100)

	removed, err := mgr.CleanupOldSessions()
	if err != nil {
		t.Fatalf("CleanupOldSessions: %v", err)
	}
	if removed != 1 {
		t.Errorf("Expected 1 session removed, got %d", removed)
	}
	if _, err := os.Stat(old.Dir); !os.IsNotExist(err) {
		t.Error("Expected old session directory deleted")
	}
	if _, err := os.Stat(fresh.Dir); err != nil {
		t.Errorf("Expected fresh session kept: %v", err)
	}
}

func TestCleanupCountCap(t *testing.T) {
	root := t.TempDir()
	ret := testRetention()
	ret.MaxSessions = 3
	mgr, err := NewManager(root, 1024*1024, ret, nil)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	for i := 0; i < 5; i++ {
		makeFinishedSession(t, mgr, fmt.Sprintf("s%d", i), time.Duration(5-i)*time.Hour, 100)
	}

	removed, err := mgr.CleanupOldSessions()
	if err != nil {
		t.Fatalf("CleanupOldSessions: %v", err)
	}
	if removed != 2 {
		t.Errorf("Expected 2 sessions removed, got %d", removed)
	}

	left, err := mgr.ListSessions()
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(left) != 3 {
		t.Fatalf("Expected 3 sessions left, got %d", len(left))
	}
	// Oldest were removed: s0 and s1 started furthest in the past.
	for _, s := range left {
		if s.ID == "s0" || s.ID == "s1" {
			t.Errorf("Expected oldest sessions removed, found %s", s.ID)
		}
	}
}

func TestCleanupByteCap(t *testing.T) {
	root := t.TempDir()
	ret := testRetention()
	ret.MaxTotalBytes = 2500
	mgr, err := NewManager(root, 1024*1024, ret, nil)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	for i := 0; i < 4; i++ {
		makeFinishedSession(t, mgr, fmt.Sprintf("b%d", i), time.Duration(4-i)*time.Hour, 1000)
	}

	removed, err := mgr.CleanupOldSessions()
	if err != nil {
		t.Fatalf("CleanupOldSessions: %v", err)
	}
	if removed != 2 {
		t.Errorf("Expected 2 sessions removed to fit 2500 bytes, got %d", removed)
	}

	left, err := mgr.ListSessions()
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	var total int64
	for _, s := range left {
		total += s.SizeBytes
	}
	if total > ret.MaxTotalBytes {
		t.Errorf("Expected total size <= %d, got %d", ret.MaxTotalBytes, total)
	}
}

func TestCleanupNeverDeletesActive(t *testing.T) {
	root := t.TempDir()
	ret := testRetention()
	ret.MaxAgeDays = 1
	mgr, err := NewManager(root, 1024*1024, ret, nil)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	old := makeFinishedSession(t, mgr, "stale-active", 5*24*time.Hour, 100)
	old.Status = types.SessionActive
	old.EndedAt = nil
	if err := mgr.writeMetadata(old); err != nil {
		t.Fatalf("writeMetadata: %v", err)
	}

	removed, err := mgr.CleanupOldSessions()
	if err != nil {
		t.Fatalf("CleanupOldSessions: %v", err)
	}
	if removed != 0 {
		t.Errorf("Expected active session spared, removed %d", removed)
	}
	if _, err := os.Stat(old.Dir); err != nil {
		t.Errorf("Expected active session directory kept: %v", err)
	}
}

func TestCleanupSkipsStaleActiveSession(t *testing.T) {
	root := t.TempDir()
	ret := testRetention()
	ret.MaxSessions = 2
	mgr, err := NewManager(root, 1024*1024, ret, nil)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	// A crashed run leaves the oldest session active forever. The caps
	// must still apply to everything behind it.
	stale := makeFinishedSession(t, mgr, "stale-active", 48*time.Hour, 100)
	stale.Status = types.SessionActive
	stale.EndedAt = nil
	if err := mgr.writeMetadata(stale); err != nil {
		t.Fatalf("writeMetadata: %v", err)
	}
	for i := 0; i < 4; i++ {
		makeFinishedSession(t, mgr, fmt.Sprintf("c%d", i), time.Duration(4-i)*time.Hour, 100)
	}

	removed, err := mgr.CleanupOldSessions()
	if err != nil {
		t.Fatalf("CleanupOldSessions: %v", err)
	}
	if removed != 3 {
		t.Errorf("Expected 3 finished sessions removed past the cap, got %d", removed)
	}

	left, err := mgr.ListSessions()
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(left) != 2 {
		t.Fatalf("Expected 2 sessions left, got %d", len(left))
	}
	ids := map[string]bool{}
	for _, s := range left {
		ids[s.ID] = true
	}
	if !ids["stale-active"] {
		t.Error("Expected the active session kept")
	}
	if !ids["c3"] {
		t.Error("Expected the newest finished session kept")
	}
}

func TestCleanupByteCapSkipsActiveSession(t *testing.T) {
	root := t.TempDir()
	ret := testRetention()
	ret.MaxTotalBytes = 2500
	mgr, err := NewManager(root, 1024*1024, ret, nil)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	stale := makeFinishedSession(t, mgr, "stale-active", 48*time.Hour, 1000)
	stale.Status = types.SessionActive
	stale.EndedAt = nil
	if err := mgr.writeMetadata(stale); err != nil {
		t.Fatalf("writeMetadata: %v", err)
	}
	for i := 0; i < 3; i++ {
		makeFinishedSession(t, mgr, fmt.Sprintf("d%d", i), time.Duration(3-i)*time.Hour, 1000)
	}

	removed, err := mgr.CleanupOldSessions()
	if err != nil {
		t.Fatalf("CleanupOldSessions: %v", err)
	}
	if removed != 2 {
		t.Errorf("Expected 2 finished sessions removed to fit the byte cap, got %d", removed)
	}
	if _, err := os.Stat(stale.Dir); err != nil {
		t.Errorf("Expected active session directory kept: %v", err)
	}
}

func TestFindSession(t *testing.T) {
	root := t.TempDir()
	mgr, err := NewManager(root, 1024*1024, testRetention(), nil)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	makeFinishedSession(t, mgr, "needle", time.Hour, 10)

	found, err := mgr.FindSession("needle")
	if err != nil {
		t.Fatalf("FindSession: %v", err)
	}
	if found.ID != "needle" {
		t.Errorf("Expected needle, got %s", found.ID)
	}

	if _, err := mgr.FindSession("missing"); err == nil {
		t.Error("Expected error for unknown session id")
	}
}
