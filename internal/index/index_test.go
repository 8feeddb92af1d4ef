package index

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stagewatch/stagewatch/internal/types"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return db
}

func TestUpsertAndList(t *testing.T) {
	db := openTestDB(t)

	base := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	for i, id := range []string{"third", "first", "second"} {
		offsets := []time.Duration{2 * time.Hour, 0, time.Hour}
		sess := &types.Session{
			ID:        id,
			Dir:       "/data/sessions/" + id,
			StartedAt: base.Add(offsets[i]),
			Status:    types.SessionActive,
		}
		if err := db.Upsert(sess); err != nil {
			t.Fatalf("Upsert %s: %v", id, err)
		}
	}

	sessions, err := db.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(sessions) != 3 {
		t.Fatalf("Expected 3 sessions, got %d", len(sessions))
	}

	// Oldest first.
	wantOrder := []string{"first", "second", "third"}
	for i, want := range wantOrder {
		if sessions[i].ID != want {
			t.Errorf("Position %d: expected %s, got %s", i, want, sessions[i].ID)
		}
	}
}

func TestUpsertUpdatesExisting(t *testing.T) {
	db := openTestDB(t)

	sess := &types.Session{
		ID:        "s1",
		Dir:       "/data/sessions/s1",
		StartedAt: time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC),
		Status:    types.SessionActive,
	}
	if err := db.Upsert(sess); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	ended := sess.StartedAt.Add(time.Minute)
	sess.Status = types.SessionCompleted
	sess.EndedAt = &ended
	sess.EntryCount = 42
	sess.SizeBytes = 4096
	if err := db.Upsert(sess); err != nil {
		t.Fatalf("second Upsert: %v", err)
	}

	got, err := db.Get("s1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != types.SessionCompleted {
		t.Errorf("Expected completed, got %s", got.Status)
	}
	if got.EndedAt == nil || !got.EndedAt.Equal(ended) {
		t.Errorf("Expected ended at %v, got %v", ended, got.EndedAt)
	}
	if got.EntryCount != 42 || got.SizeBytes != 4096 {
		t.Errorf("Expected counts updated, got %d entries / %d bytes", got.EntryCount, got.SizeBytes)
	}
}

func TestDelete(t *testing.T) {
	db := openTestDB(t)

	sess := &types.Session{
		ID:        "gone",
		Dir:       "/data/sessions/gone",
		StartedAt: time.Now().UTC(),
		Status:    types.SessionCompleted,
	}
	if err := db.Upsert(sess); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := db.Delete("gone"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if _, err := db.Get("gone"); err == nil {
		t.Error("Expected Get to fail after Delete")
	}

	// Deleting a missing row is not an error.
	if err := db.Delete("never-existed"); err != nil {
		t.Errorf("Delete of missing row: %v", err)
	}
}
