// Package escalation hands unanswerable or urgent requests off to a
// human-staffed channel.
package escalation

import "context"

// Escalator is the escalation capability contract.
//
// Escalate performs the channel's side effects (webhook post, email send)
// and returns a plain-English result string. The string goes straight back
// to the model as a tool result, so it must be human-readable and convey
// whether the escalation succeeded. Implementations never surface errors:
// any internal failure is converted to a failure string the model can
// relay apologetically.
type Escalator interface {
	Escalate(ctx context.Context, subject string) string
}
