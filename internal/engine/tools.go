package engine

import (
	"context"
	"encoding/json"
	"time"

	"github.com/usher-agent/usher/internal/llm"
	"github.com/usher-agent/usher/internal/session"
)

// toolKind identifies the closed set of tools the engine exposes to the
// model. Dispatch is an exhaustive switch over this set: a name outside it
// is reported back to the model, never executed.
type toolKind int

const (
	toolUnknown toolKind = iota
	toolRetrieveDocs
	toolOfferEscalation
	toolConfirmEscalation
)

func parseToolKind(name string) toolKind {
	switch name {
	case "retrieve_docs":
		return toolRetrieveDocs
	case "offer_escalation":
		return toolOfferEscalation
	case "confirm_escalation":
		return toolConfirmEscalation
	default:
		return toolUnknown
	}
}

const offerEscalationReply = "I couldn't find a confident answer to your question. Would you like me to escalate this to a human organizer who can help you directly?"

const confirmEscalationDefaultReply = "I've escalated your question to the organizers. Someone will follow up with you shortly!"

// toolSchemas returns the tool definitions advertised to the model on every
// round, in the OpenAI function-calling format both providers accept.
func toolSchemas() []map[string]any {
	return []map[string]any{
		{
			"type": "function",
			"function": map[string]any{
				"name": "retrieve_docs",
				"description": "Search the knowledge base to find an answer to the user's question. " +
					"Use this for any factual question about the event or sponsors " +
					"(e.g. prizes, internships, careers, contact info, schedule). " +
					"Call this first before concluding the knowledge base has no answer.",
				"parameters": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"query": map[string]any{
							"type":        "string",
							"description": "The search query to look up in the knowledge base.",
						},
					},
					"required": []string{"query"},
				},
			},
		},
		{
			"type": "function",
			"function": map[string]any{
				"name": "offer_escalation",
				"description": "Offer to escalate to a human organizer. Call this ONCE when: " +
					"(1) you cannot answer from the knowledge base, OR " +
					"(2) the participant is in distress, upset, or reporting an urgent " +
					"situation (theft, injury, harassment, lost item, medical issue, " +
					"safety concern), even if the topic is not a typical question, OR " +
					"(3) the participant needs real-time or on-the-ground information the " +
					"static knowledge base cannot reliably provide (e.g. why food is late " +
					"today, live status of a session). Answer from the knowledge base first " +
					"when the question is about scheduled times; only escalate for live or " +
					"operational issues. Never tell the participant to 'ask a volunteer' or " +
					"'check on-site'; escalate instead so an organizer can follow up directly. " +
					"IMPORTANT: The return value of this tool IS the message to show the " +
					"user. After calling this tool, relay its return value verbatim as your " +
					"final reply. Do NOT call this tool again or call any other tool.",
				"parameters": map[string]any{
					"type":       "object",
					"properties": map[string]any{},
					"required":   []string{},
				},
			},
		},
		{
			"type": "function",
			"function": map[string]any{
				"name": "confirm_escalation",
				"description": "Confirm and execute the escalation after the user has agreed to escalate. " +
					"This notifies the organizers so they can follow up. " +
					"The tool result will be a plain-English string indicating success or failure. " +
					"Use it to craft a warm, reassuring reply: if it succeeded, confirm the " +
					"escalation was sent and that someone will follow up; if it failed, " +
					"apologise and suggest the user find an organizer directly.",
				"parameters": map[string]any{
					"type":       "object",
					"properties": map[string]any{},
					"required":   []string{},
				},
			},
		},
	}
}

// dispatch executes one tool call and applies its session-state effect.
// The returned string is always non-empty and safe to feed back as a tool
// result; the bool reports whether the result is the final reply.
func (e *Engine) dispatch(ctx context.Context, call llm.ToolCall, message string, sctx *session.Context) (string, bool) {
	start := time.Now()
	e.logger.Info("tool call", "tool", call.Name, "args", truncate(call.Arguments, 200))

	var result string
	terminal := false

	switch parseToolKind(call.Name) {
	case toolRetrieveDocs:
		result = e.toolRetrieveDocs(ctx, call.Arguments)
		sctx.PendingEscalation = false
	case toolOfferEscalation:
		result = offerEscalationReply
		sctx.PendingEscalation = true
		terminal = true
	case toolConfirmEscalation:
		result = e.toolConfirmEscalation(ctx, message, sctx)
		sctx.PendingEscalation = false
	case toolUnknown:
		result = "Unknown tool: " + call.Name
	}

	e.logger.Info("tool finished", "tool", call.Name, "elapsed", time.Since(start), "result", truncate(result, 200))
	return result, terminal
}

// toolRetrieveDocs looks the query up in the knowledge base. Lookup errors
// become a tool result the model can react to (typically by offering
// escalation) rather than aborting the loop.
func (e *Engine) toolRetrieveDocs(ctx context.Context, arguments string) string {
	var args struct {
		Query string `json:"query"`
	}
	if arguments != "" {
		if err := json.Unmarshal([]byte(arguments), &args); err != nil {
			e.logger.Warn("malformed retrieve_docs arguments", "error", err)
		}
	}

	answer, err := e.kb.Lookup(ctx, args.Query)
	if err != nil {
		e.logger.Error("knowledge lookup failed", "error", err)
		return "The knowledge base could not be searched due to a technical error."
	}
	if answer == "" {
		return e.fallback
	}
	return answer
}

// toolConfirmEscalation notifies the organizers about the question the user
// agreed to escalate. The subject is the user message that triggered the
// offer: the second-most-recent user entry in history, since the most recent
// one is the confirmation itself.
func (e *Engine) toolConfirmEscalation(ctx context.Context, message string, sctx *session.Context) string {
	subject := message
	var userMessages []string
	for _, m := range sctx.History {
		if m.Role == "user" {
			userMessages = append(userMessages, m.Content)
		}
	}
	if len(userMessages) >= 2 {
		subject = userMessages[len(userMessages)-2]
	}

	if e.escalator == nil {
		e.logger.Info("escalation confirmed with no handler configured")
		return confirmEscalationDefaultReply
	}
	return e.escalator.Escalate(ctx, subject)
}
