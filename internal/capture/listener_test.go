package capture

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/parleylabs/parley-core/internal/audio"
)

type fakeSource struct {
	calibrateErr error
	pcm          []byte
	captureErr   error
	calibrated   bool
}

func (f *fakeSource) Calibrate(context.Context) error {
	f.calibrated = true
	return f.calibrateErr
}

func (f *fakeSource) CapturePhrase(context.Context) ([]byte, error) {
	return f.pcm, f.captureErr
}

func (f *fakeSource) Probe() error { return nil }

func (f *fakeSource) Close() {}

type fakeRecognizer struct {
	text string
	err  error
}

func (f *fakeRecognizer) Recognize(context.Context, []byte, int, string) (Result, error) {
	return Result{Text: f.text}, f.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestListenReturnsTranscript(t *testing.T) {
	src := &fakeSource{pcm: []byte{0, 0, 1, 0}}
	l := newMicListener(src, &fakeRecognizer{text: "  hello world  "}, 16000, testLogger())

	text, err := l.Listen(context.Background(), "en-US")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "hello world" {
		t.Fatalf("expected trimmed transcript, got %q", text)
	}
	if !src.calibrated {
		t.Fatal("expected calibration before capture")
	}
}

func TestListenMapsTimeoutToNoSpeech(t *testing.T) {
	src := &fakeSource{captureErr: audio.ErrNoInput}
	l := newMicListener(src, &fakeRecognizer{}, 16000, testLogger())

	_, err := l.Listen(context.Background(), "en-US")
	if !errors.Is(err, ErrNoSpeech) {
		t.Fatalf("expected ErrNoSpeech, got %v", err)
	}
}

func TestListenEmptyTranscriptIsUnintelligible(t *testing.T) {
	src := &fakeSource{pcm: []byte{0, 0}}
	l := newMicListener(src, &fakeRecognizer{text: "   "}, 16000, testLogger())

	_, err := l.Listen(context.Background(), "en-US")
	if !errors.Is(err, ErrUnintelligible) {
		t.Fatalf("expected ErrUnintelligible, got %v", err)
	}
}

func TestListenPropagatesDeviceError(t *testing.T) {
	deviceErr := errors.New("stream underflow")
	src := &fakeSource{captureErr: deviceErr}
	l := newMicListener(src, &fakeRecognizer{}, 16000, testLogger())

	_, err := l.Listen(context.Background(), "en-US")
	if !errors.Is(err, deviceErr) {
		t.Fatalf("expected device error, got %v", err)
	}
	if errors.Is(err, ErrNoSpeech) || errors.Is(err, ErrUnintelligible) {
		t.Fatalf("device error must not match taxonomy sentinels: %v", err)
	}
}

func TestListenPropagatesRecognizerError(t *testing.T) {
	backendErr := errors.New("service unavailable")
	src := &fakeSource{pcm: []byte{0, 0}}
	l := newMicListener(src, &fakeRecognizer{err: backendErr}, 16000, testLogger())

	_, err := l.Listen(context.Background(), "en-US")
	if !errors.Is(err, backendErr) {
		t.Fatalf("expected recognizer error, got %v", err)
	}
}

func TestMockListenerScriptEndsInSilence(t *testing.T) {
	l := newMockListener()
	ctx := context.Background()

	var heard []string
	for {
		text, err := l.Listen(ctx, "en-US")
		if err != nil {
			if !errors.Is(err, ErrNoSpeech) {
				t.Fatalf("expected ErrNoSpeech at end of script, got %v", err)
			}
			break
		}
		heard = append(heard, text)
	}
	if len(heard) != 3 || heard[len(heard)-1] != "goodbye" {
		t.Fatalf("unexpected script: %v", heard)
	}
}
