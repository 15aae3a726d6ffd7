// Package session provides per-conversation state storage.
package session

import "sync"

// Message is one role-tagged history entry. Only user and assistant turns
// are persisted across calls; tool and system entries exist only inside a
// single engine run.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Context holds the state of one conversation session.
type Context struct {
	History []Message `json:"history"`

	// PendingEscalation is true exactly when the assistant has most
	// recently offered escalation and is awaiting the user's yes/no.
	PendingEscalation bool `json:"pending_escalation"`
}

// Clone returns a deep copy of the context.
func (c *Context) Clone() *Context {
	out := &Context{PendingEscalation: c.PendingEscalation}
	if len(c.History) > 0 {
		out.History = make([]Message, len(c.History))
		copy(out.History, c.History)
	}
	return out
}

// Trim drops the oldest history entries so at most limit remain. Relative
// order of the kept suffix is preserved.
func (c *Context) Trim(limit int) {
	if limit > 0 && len(c.History) > limit {
		c.History = append([]Message(nil), c.History[len(c.History)-limit:]...)
	}
}

// Store is the conversation store contract. Both operations are total over
// any string identifier: Load creates a fresh empty context on first access,
// Save replaces unconditionally (last-writer-wins).
//
// The load/save pair spanning one engine call is not atomic: two concurrent
// calls for the same session can race, and the last Save wins. Callers that
// care serialize per session.
type Store interface {
	Load(sessionID string) *Context
	Save(sessionID string, ctx *Context)
}

// MemoryStore is the reference in-memory store. Contexts live for the
// process lifetime; idle sessions are never garbage collected.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]*Context
}

// NewMemoryStore creates an empty in-memory conversation store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]*Context)}
}

// Load returns a copy of the stored context, creating and registering a
// fresh empty one on first access. Returning a copy keeps the stored state
// fully owned by the store.
func (s *MemoryStore) Load(sessionID string) *Context {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, ok := s.data[sessionID]
	if !ok {
		ctx = &Context{}
		s.data[sessionID] = ctx
	}
	return ctx.Clone()
}

// Save replaces the stored context unconditionally.
func (s *MemoryStore) Save(sessionID string, ctx *Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[sessionID] = ctx.Clone()
}

// Len returns the number of registered sessions.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
