package session

import "testing"

func TestMemoryStore_FreshContextOnFirstLoad(t *testing.T) {
	store := NewMemoryStore()
	ctx := store.Load("session-1")

	if len(ctx.History) != 0 {
		t.Errorf("fresh context history = %d entries, want 0", len(ctx.History))
	}
	if ctx.PendingEscalation {
		t.Error("fresh context should not have pending escalation")
	}
	if store.Len() != 1 {
		t.Errorf("store should register the session on first load, len = %d", store.Len())
	}
}

func TestMemoryStore_SaveThenLoad(t *testing.T) {
	store := NewMemoryStore()
	ctx := store.Load("session-1")
	ctx.History = append(ctx.History, Message{Role: "user", Content: "hello"})
	ctx.PendingEscalation = true
	store.Save("session-1", ctx)

	loaded := store.Load("session-1")
	if len(loaded.History) != 1 || loaded.History[0].Content != "hello" {
		t.Errorf("loaded history = %+v", loaded.History)
	}
	if !loaded.PendingEscalation {
		t.Error("pending escalation flag should survive save/load")
	}
}

func TestMemoryStore_LoadReturnsCopy(t *testing.T) {
	store := NewMemoryStore()
	ctx := store.Load("session-1")
	ctx.History = append(ctx.History, Message{Role: "user", Content: "mutated"})

	// Without a Save, the mutation must not leak into the store.
	reloaded := store.Load("session-1")
	if len(reloaded.History) != 0 {
		t.Errorf("mutation leaked into store: %+v", reloaded.History)
	}
}

func TestMemoryStore_IsolatesSessions(t *testing.T) {
	store := NewMemoryStore()
	a := store.Load("session-a")
	a.History = append(a.History, Message{Role: "user", Content: "from A"})
	store.Save("session-a", a)

	b := store.Load("session-b")
	if len(b.History) != 0 {
		t.Errorf("session-b history = %+v, want empty", b.History)
	}
}

func TestContext_Trim(t *testing.T) {
	tests := []struct {
		name  string
		n     int
		limit int
		want  []string
	}{
		{"under limit", 3, 5, []string{"m0", "m1", "m2"}},
		{"at limit", 5, 5, []string{"m0", "m1", "m2", "m3", "m4"}},
		{"over limit keeps newest", 8, 5, []string{"m3", "m4", "m5", "m6", "m7"}},
		{"zero limit is no-op", 3, 0, []string{"m0", "m1", "m2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := &Context{}
			for i := 0; i < tt.n; i++ {
				ctx.History = append(ctx.History, Message{Role: "user", Content: "m" + string(rune('0'+i))})
			}
			ctx.Trim(tt.limit)

			if len(ctx.History) != len(tt.want) {
				t.Fatalf("history length = %d, want %d", len(ctx.History), len(tt.want))
			}
			for i, want := range tt.want {
				if ctx.History[i].Content != want {
					t.Errorf("history[%d] = %q, want %q", i, ctx.History[i].Content, want)
				}
			}
		})
	}
}

func TestContext_Clone(t *testing.T) {
	ctx := &Context{
		History:           []Message{{Role: "user", Content: "hi"}},
		PendingEscalation: true,
	}
	clone := ctx.Clone()
	clone.History[0].Content = "changed"
	clone.PendingEscalation = false

	if ctx.History[0].Content != "hi" {
		t.Error("clone shares history backing array with original")
	}
	if !ctx.PendingEscalation {
		t.Error("clone mutation affected original flag")
	}
}
