package tts

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/parleylabs/parley-core/internal/config"
)

// Clip is a synthesized utterance ready for playback.
type Clip struct {
	MIME string
	Data []byte
}

// Synthesizer renders text in the given language (short code, "es") to audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, lang string) (Clip, error)
}

// New builds the configured synthesizer.
func New(cfg config.TTSConfig, log *slog.Logger) (Synthesizer, error) {
	switch cfg.Mode {
	case "google":
		return NewGoogleSynthesizer(cfg, log), nil
	case "elevenlabs":
		return NewElevenLabsSynthesizer(cfg), nil
	case "exec":
		return NewExecSynthesizer(cfg)
	case "mock":
		return NewMockSynthesizer(), nil
	default:
		return nil, fmt.Errorf("unknown tts mode %q", cfg.Mode)
	}
}

// sniffMIME guesses the container from magic bytes, defaulting to MP3.
func sniffMIME(data []byte) string {
	switch {
	case bytes.HasPrefix(data, []byte("RIFF")):
		return "audio/wav"
	case bytes.HasPrefix(data, []byte("OggS")):
		return "audio/ogg"
	default:
		return "audio/mpeg"
	}
}
