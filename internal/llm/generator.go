package llm

import (
	"context"
	"fmt"

	"github.com/parleylabs/parley-core/internal/config"
)

// Generator defines a pluggable inference backend. Generate returns the
// complete reply for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// New builds the configured generator.
func New(cfg config.LLMConfig) (Generator, error) {
	switch cfg.Mode {
	case "gemini":
		return NewGeminiGenerator(cfg), nil
	case "openai":
		return NewOpenAIGenerator(cfg), nil
	case "ollama":
		return NewOllamaGenerator(cfg), nil
	case "exec":
		return NewExecGenerator(cfg.Command)
	case "mock":
		return NewMockGenerator(), nil
	default:
		return nil, fmt.Errorf("unknown llm mode %q", cfg.Mode)
	}
}
