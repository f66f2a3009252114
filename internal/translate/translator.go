package translate

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/parleylabs/parley-core/internal/config"
)

// Auto asks the backend to detect the source language.
const Auto = "auto"

// Translator converts text between languages identified by short codes
// ("en", "es"). Source may be Auto.
type Translator interface {
	Translate(ctx context.Context, text, source, target string) (string, error)
}

// New builds the configured translator.
func New(cfg config.TranslateConfig, log *slog.Logger) (Translator, error) {
	switch cfg.Mode {
	case "google":
		return NewGoogleTranslator(cfg, log), nil
	case "mock":
		return NewMockTranslator(), nil
	default:
		return nil, fmt.Errorf("unknown translate mode %q", cfg.Mode)
	}
}
