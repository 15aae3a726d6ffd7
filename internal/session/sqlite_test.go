package session

import (
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore("sqlite", filepath.Join(t.TempDir(), "sessions.db"), nil)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStore_FreshContextOnFirstLoad(t *testing.T) {
	store := newTestSQLiteStore(t)

	ctx := store.Load("session-1")
	if len(ctx.History) != 0 {
		t.Errorf("fresh context history = %d entries, want 0", len(ctx.History))
	}
	if ctx.PendingEscalation {
		t.Error("fresh context should not have pending escalation")
	}
}

func TestSQLiteStore_SaveThenLoad(t *testing.T) {
	store := newTestSQLiteStore(t)

	ctx := store.Load("session-1")
	ctx.History = append(ctx.History,
		Message{Role: "user", Content: "where is lunch?"},
		Message{Role: "assistant", Content: "Lunch is in the atrium at noon."},
	)
	ctx.PendingEscalation = true
	store.Save("session-1", ctx)

	loaded := store.Load("session-1")
	if len(loaded.History) != 2 {
		t.Fatalf("loaded history = %d entries, want 2", len(loaded.History))
	}
	if loaded.History[0].Role != "user" || loaded.History[1].Role != "assistant" {
		t.Errorf("history order not preserved: %+v", loaded.History)
	}
	if !loaded.PendingEscalation {
		t.Error("pending escalation flag should survive save/load")
	}
}

func TestSQLiteStore_SaveReplacesHistory(t *testing.T) {
	store := newTestSQLiteStore(t)

	ctx := store.Load("session-1")
	ctx.History = append(ctx.History, Message{Role: "user", Content: "old"})
	store.Save("session-1", ctx)

	// Save a shorter history; the old rows must be gone.
	replacement := &Context{History: []Message{{Role: "user", Content: "new"}}}
	store.Save("session-1", replacement)

	loaded := store.Load("session-1")
	if len(loaded.History) != 1 || loaded.History[0].Content != "new" {
		t.Errorf("save did not replace history: %+v", loaded.History)
	}
}

func TestSQLiteStore_LoadDegradesToEmptyOnError(t *testing.T) {
	store := newTestSQLiteStore(t)

	ctx := store.Load("session-1")
	ctx.History = append(ctx.History, Message{Role: "user", Content: "hello"})
	store.Save("session-1", ctx)

	// Load stays total after the database goes away: no panic, no error
	// surfaced, just an empty context.
	store.Close()

	loaded := store.Load("session-1")
	if loaded == nil {
		t.Fatal("Load returned nil")
	}
	if len(loaded.History) != 0 || loaded.PendingEscalation {
		t.Errorf("degraded context = %+v, want empty", loaded)
	}
}

func TestSQLiteStore_IsolatesSessions(t *testing.T) {
	store := newTestSQLiteStore(t)

	a := store.Load("session-a")
	a.History = append(a.History, Message{Role: "user", Content: "from A"})
	store.Save("session-a", a)

	b := store.Load("session-b")
	if len(b.History) != 0 {
		t.Errorf("session-b history = %+v, want empty", b.History)
	}
}
