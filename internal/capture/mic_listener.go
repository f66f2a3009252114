package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/parleylabs/parley-core/internal/audio"
)

// phraseSource is the microphone surface the listener needs.
type phraseSource interface {
	Calibrate(ctx context.Context) error
	CapturePhrase(ctx context.Context) ([]byte, error)
	Probe() error
	Close()
}

type micListener struct {
	mic        phraseSource
	rec        Recognizer
	sampleRate int
	log        *slog.Logger
}

func newMicListener(mic phraseSource, rec Recognizer, sampleRate int, log *slog.Logger) *micListener {
	return &micListener{mic: mic, rec: rec, sampleRate: sampleRate, log: log}
}

// Listen recalibrates against ambient noise, captures one phrase, and runs it
// through the recognizer.
func (l *micListener) Listen(ctx context.Context, locale string) (string, error) {
	if err := l.mic.Calibrate(ctx); err != nil {
		return "", fmt.Errorf("calibrate: %w", err)
	}

	pcm, err := l.mic.CapturePhrase(ctx)
	if err != nil {
		if errors.Is(err, audio.ErrNoInput) {
			return "", ErrNoSpeech
		}
		return "", err
	}

	result, err := l.rec.Recognize(ctx, pcm, l.sampleRate, locale)
	if err != nil {
		return "", err
	}

	text := strings.TrimSpace(result.Text)
	if text == "" {
		return "", ErrUnintelligible
	}
	l.log.Debug("utterance recognized",
		slog.String("locale", locale),
		slog.Int("pcm_bytes", len(pcm)),
		slog.Float64("confidence", result.Confidence))
	return text, nil
}

// Probe checks the input device without capturing.
func (l *micListener) Probe() error {
	return l.mic.Probe()
}

func (l *micListener) Close() {
	l.mic.Close()
}
