package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/parleylabs/parley-core/internal/audio"
	"github.com/parleylabs/parley-core/internal/config"
)

var (
	// ErrNoSpeech means nothing was heard before the wait timeout.
	ErrNoSpeech = errors.New("no speech detected before timeout")
	// ErrUnintelligible means audio was captured but produced no transcript.
	ErrUnintelligible = errors.New("speech was not intelligible")
)

// Listener captures one utterance and returns its transcript. Failures are
// classified as ErrNoSpeech, ErrUnintelligible, or a device/backend error.
type Listener interface {
	Listen(ctx context.Context, locale string) (string, error)
	Close()
}

// New builds the configured listener and recognizer pair.
func New(cfg config.CaptureConfig, log *slog.Logger) (Listener, error) {
	rec, err := newRecognizer(cfg)
	if err != nil {
		return nil, err
	}

	switch cfg.Mode {
	case "mic":
		mic, err := audio.OpenMic(audio.MicConfig{
			SampleRate:  cfg.SampleRate,
			WaitTimeout: time.Duration(cfg.WaitTimeoutMS) * time.Millisecond,
			PhraseLimit: time.Duration(cfg.PhraseLimitMS) * time.Millisecond,
			Calibration: time.Duration(cfg.CalibrationMS) * time.Millisecond,
			Silence:     time.Duration(cfg.SilenceMS) * time.Millisecond,
		}, log)
		if err != nil {
			return nil, fmt.Errorf("open microphone: %w", err)
		}
		return newMicListener(mic, rec, cfg.SampleRate, log), nil
	case "mock":
		return newMockListener(), nil
	default:
		return nil, fmt.Errorf("unknown capture mode %q", cfg.Mode)
	}
}

func newRecognizer(cfg config.CaptureConfig) (Recognizer, error) {
	switch cfg.Recognizer {
	case "google":
		return NewGoogleRecognizer(cfg), nil
	case "deepgram":
		return NewDeepgramRecognizer(cfg), nil
	case "exec":
		return NewExecRecognizer(cfg)
	case "mock":
		return NewMockRecognizer(), nil
	default:
		return nil, fmt.Errorf("unknown recognizer %q", cfg.Recognizer)
	}
}
