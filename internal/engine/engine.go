// Package engine implements the core question-answering loop.
//
// The engine is the single place that owns "handle this message". Callers
// (HTTP API, chat REPL, MQTT bridge) pass in a message and a session ID and
// get back exactly one reply string they can show or send. Routing between
// answering from the knowledge base and escalating to a human lives inside
// the engine; callers never branch or retry.
package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/usher-agent/usher/internal/config"
	"github.com/usher-agent/usher/internal/escalation"
	"github.com/usher-agent/usher/internal/knowledge"
	"github.com/usher-agent/usher/internal/llm"
	"github.com/usher-agent/usher/internal/session"
)

// Engine handles a user message and returns a single reply.
//
// It runs a bounded tool-calling loop against the model: each round the
// model either replies in plain text (done), or requests tools which the
// engine executes and feeds back. Conversation state (recent history plus
// the pending-escalation flag) is kept in a session.Store so multi-turn
// interactions work across calls.
type Engine struct {
	logger    *slog.Logger
	llm       llm.Client
	model     string
	store     session.Store
	kb        knowledge.Base
	escalator escalation.Escalator // nil means escalation is not configured

	scope        string
	location     *time.Location
	fallback     string
	historyLimit int
	maxRounds    int

	now func() time.Time
}

// New creates an Engine. The escalator may be nil, in which case a confirmed
// escalation still produces a reassuring reply but notifies nobody.
func New(logger *slog.Logger, client llm.Client, model string, store session.Store, kb knowledge.Base, esc escalation.Escalator, cfg config.AssistantConfig, loc *time.Location) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if loc == nil {
		loc = time.UTC
	}
	fallback := cfg.Fallback
	if fallback == "" {
		fallback = config.DefaultFallback
	}
	historyLimit := cfg.HistoryLimit
	if historyLimit <= 0 {
		historyLimit = config.DefaultHistoryLimit
	}
	maxRounds := cfg.MaxRounds
	if maxRounds <= 0 {
		maxRounds = config.DefaultMaxRounds
	}
	return &Engine{
		logger:       logger.With("component", "engine"),
		llm:          client,
		model:        model,
		store:        store,
		kb:           kb,
		escalator:    esc,
		scope:        cfg.Scope,
		location:     loc,
		fallback:     fallback,
		historyLimit: historyLimit,
		maxRounds:    maxRounds,
		now:          time.Now,
	}
}

// Answer processes one user message and returns one reply.
//
// Answer never fails from the caller's point of view: model errors, tool
// errors, and exhausted rounds all collapse into a usable reply (at worst
// the configured fallback). The user message and the final reply are always
// recorded in session history, even on failure, so follow-up turns see a
// consistent transcript.
func (e *Engine) Answer(ctx context.Context, message, sessionID string) string {
	sctx := e.store.Load(sessionID)
	reply := e.run(ctx, message, sctx)
	e.store.Save(sessionID, sctx)
	return reply
}

// roundOutcome classifies what a single loop round produced.
type roundOutcome int

const (
	// outcomeContinue means tools ran and their results were appended; the
	// model should be called again.
	outcomeContinue roundOutcome = iota
	// outcomeReply means the model answered in plain text.
	outcomeReply
	// outcomeTerminal means a tool's result is itself the final reply and
	// no further model calls should happen.
	outcomeTerminal
)

func (e *Engine) run(ctx context.Context, message string, sctx *session.Context) string {
	sctx.History = append(sctx.History, session.Message{Role: "user", Content: message})

	reply := e.react(ctx, message, sctx)

	sctx.History = append(sctx.History, session.Message{Role: "assistant", Content: reply})
	sctx.Trim(e.historyLimit)
	return reply
}

// react runs the bounded tool-calling loop and always returns a usable reply.
func (e *Engine) react(ctx context.Context, message string, sctx *session.Context) string {
	messages := []llm.Message{{Role: "system", Content: e.buildSystemPrompt(sctx)}}
	for _, m := range tailMessages(sctx.History, e.historyLimit) {
		messages = append(messages, llm.Message{Role: m.Role, Content: m.Content})
	}

	e.logger.Info("answer loop started", "message", truncate(message, 120))

	for round := 1; round <= e.maxRounds; round++ {
		outcome, reply := e.step(ctx, round, message, sctx, &messages)
		if outcome != outcomeContinue {
			return reply
		}
	}

	e.logger.Warn("answer loop exhausted rounds", "rounds", e.maxRounds)
	return e.fallback
}

// step runs one round: one model call plus any tool executions it requests.
func (e *Engine) step(ctx context.Context, round int, message string, sctx *session.Context, messages *[]llm.Message) (roundOutcome, string) {
	e.logger.Debug("calling model", "round", round, "messages", len(*messages))
	resp, err := e.llm.Chat(ctx, e.model, *messages, toolSchemas())
	if err != nil {
		e.logger.Error("model call failed", "round", round, "error", err)
		return outcomeReply, e.fallback
	}

	if !resp.HasToolCalls() {
		e.logger.Info("model returned final reply", "round", round)
		if resp.Message.Content == "" {
			return outcomeReply, e.fallback
		}
		return outcomeReply, resp.Message.Content
	}

	*messages = append(*messages, resp.Message)

	outcome, terminal := e.runTools(ctx, resp.Message.ToolCalls, message, sctx, messages)
	if outcome == outcomeTerminal {
		e.logger.Info("tool produced terminal reply", "round", round)
		return outcomeTerminal, terminal
	}
	return outcomeContinue, ""
}

// runTools executes every tool call the model requested, in order, appending
// a tool-result message for each. If any tool is terminal, its result wins
// and is returned as the final reply; remaining calls still get results so
// the transcript stays well-formed.
func (e *Engine) runTools(ctx context.Context, calls []llm.ToolCall, message string, sctx *session.Context, messages *[]llm.Message) (roundOutcome, string) {
	terminal := ""
	for _, call := range calls {
		result, isTerminal := e.dispatch(ctx, call, message, sctx)
		*messages = append(*messages, llm.Message{
			Role:       "tool",
			Content:    result,
			ToolCallID: call.ID,
		})
		if isTerminal && terminal == "" {
			terminal = result
		}
	}
	if terminal != "" {
		return outcomeTerminal, terminal
	}
	return outcomeContinue, ""
}

// tailMessages returns the most recent limit entries of history.
func tailMessages(history []session.Message, limit int) []session.Message {
	if len(history) <= limit {
		return history
	}
	return history[len(history)-limit:]
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
