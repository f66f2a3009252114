package llm

import (
	"context"
	"log/slog"
	"strings"
)

// FallbackReply is spoken whenever the backend fails or returns nothing.
const FallbackReply = "I'm sorry, I couldn't process that request."

// Adapter shields callers from backend failures: Reply always returns a
// usable assistant sentence, substituting FallbackReply on any error.
type Adapter struct {
	gen Generator
	log *slog.Logger
}

func NewAdapter(gen Generator, log *slog.Logger) *Adapter {
	return &Adapter{gen: gen, log: log}
}

// Reply generates a response for the prompt. It never returns an error.
func (a *Adapter) Reply(ctx context.Context, prompt string) string {
	reply, err := a.gen.Generate(ctx, prompt)
	if err != nil {
		a.log.Warn("inference failed, using fallback reply", slog.String("error", err.Error()))
		return FallbackReply
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		a.log.Warn("inference returned empty reply, using fallback")
		return FallbackReply
	}
	return reply
}
