package engine

import (
	"fmt"
	"strings"

	"github.com/usher-agent/usher/internal/session"
)

// promptTimeFormat renders times the way they appear in conversation, e.g.
// "Saturday, March 14, 2026 at 3:04 PM PDT".
const promptTimeFormat = "Monday, January 2, 2006 at 3:04 PM MST"

// buildSystemPrompt assembles the system directive for one answer loop. The
// prompt changes between calls: it carries the current time and, when the
// session has an escalation offer outstanding, an explicit notice telling the
// model how to interpret a yes/no follow-up.
func (e *Engine) buildSystemPrompt(sctx *session.Context) string {
	now := e.now().In(e.location)

	var b strings.Builder
	fmt.Fprintf(&b, "You are a helpful event Q&A assistant. ")
	fmt.Fprintf(&b, "The current date and time is %s. ", now.Format(promptTimeFormat))
	b.WriteString("Use this when answering time-sensitive questions. If a meal or " +
		"session is already in the past, say so rather than presenting it as upcoming. ")
	fmt.Fprintf(&b, "Answer questions about %s. ", e.scope)
	b.WriteString("If a participant is in distress, upset, or reporting an urgent situation " +
		"(theft, injury, harassment, safety concern, or anything requiring immediate " +
		"human attention), call offer_escalation. Do NOT redirect them away. " +
		"For genuinely off-topic questions unrelated to the event or participant " +
		"wellbeing, politely redirect to event topics. " +
		"CRITICAL: For any question that could be event- or sponsor-related " +
		"(including prizes, sponsors, internships, careers, or contact with sponsors), " +
		"call retrieve_docs first to check the knowledge base. Do not answer from " +
		"general knowledge. If the knowledge base does not contain the answer, " +
		"that counts as 'cannot answer': call offer_escalation. Do not suggest the " +
		"user go elsewhere (e.g. 'check the careers page', 'contact the sponsor') " +
		"instead of escalating; offer escalation so an organizer can help. " +
		"Use confirm_escalation when the user agrees to escalate.")

	if sctx.PendingEscalation {
		b.WriteString("\n\nIMPORTANT: pending_escalation=True. If the user confirms escalation " +
			"(yes/please/escalate), call confirm_escalation. Otherwise treat their message as a new question.")
	}
	return b.String()
}
