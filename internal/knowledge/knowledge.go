// Package knowledge provides the static knowledge base the assistant
// answers from. The base is opaque to the engine: a query goes in, answer
// text comes out.
package knowledge

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/usher-agent/usher/internal/llm"
)

// Base is the knowledge-base contract consumed by the retrieve_docs tool.
type Base interface {
	Lookup(ctx context.Context, query string) (string, error)
}

// Grounded answers queries with a model call whose system prompt embeds the
// full knowledge document. The model is instructed to answer only from the
// document and to say clearly when the answer is not there.
type Grounded struct {
	llm      llm.Client
	model    string
	document string
	location *time.Location
	logger   *slog.Logger

	// now is swappable for tests.
	now func() time.Time
}

// NewGrounded creates a grounded knowledge base over an already-loaded
// document (see LoadDocument). loc provides wall-clock context for
// time-sensitive answers; nil means UTC.
func NewGrounded(client llm.Client, model, document string, loc *time.Location, logger *slog.Logger) *Grounded {
	if logger == nil {
		logger = slog.Default()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Grounded{
		llm:      client,
		model:    model,
		document: document,
		location: loc,
		logger:   logger.With("component", "knowledge"),
		now:      time.Now,
	}
}

// Lookup answers query from the knowledge document. Returns an error when
// the model call fails or produces no text.
func (g *Grounded) Lookup(ctx context.Context, query string) (string, error) {
	currentTime := g.now().In(g.location).Format("Monday, January 2, 2006 at 3:04 PM MST")

	system := fmt.Sprintf(
		"You are a knowledge base assistant. Answer the following query using "+
			"ONLY the information provided below. "+
			"Current date and time (use for time-sensitive answers): %s. "+
			"When answering about scheduled items, say whether a time has already "+
			"passed or is upcoming based on the current time. "+
			"If the answer is not present in the knowledge base, say so clearly "+
			"and do not invent information.\n\nKNOWLEDGE BASE:\n%s",
		currentTime, g.document,
	)

	start := time.Now()
	resp, err := g.llm.Chat(ctx, g.model, []llm.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: query},
	}, nil)
	if err != nil {
		return "", fmt.Errorf("knowledge lookup: %w", err)
	}

	g.logger.Debug("knowledge lookup completed",
		"query_len", len(query),
		"elapsed", time.Since(start).Truncate(time.Millisecond),
	)

	if resp.Message.Content == "" {
		return "", fmt.Errorf("knowledge lookup returned no text")
	}
	return resp.Message.Content, nil
}
