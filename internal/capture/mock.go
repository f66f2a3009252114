package capture

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type mockRecognizer struct{}

func NewMockRecognizer() Recognizer {
	return &mockRecognizer{}
}

func (m *mockRecognizer) Recognize(_ context.Context, pcm []byte, _ int, _ string) (Result, error) {
	return Result{Text: fmt.Sprintf("[transcript length=%d]", len(pcm))}, nil
}

// mockListener plays a scripted exchange so the loop can run without a
// microphone and then hang up on its own.
type mockListener struct {
	mu      sync.Mutex
	phrases []string
	next    int
}

func newMockListener() *mockListener {
	return &mockListener{
		phrases: []string{
			"hello there",
			"tell me something interesting",
			"goodbye",
		},
	}
}

func (l *mockListener) Listen(ctx context.Context, _ string) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(500 * time.Millisecond):
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.next >= len(l.phrases) {
		return "", ErrNoSpeech
	}
	phrase := l.phrases[l.next]
	l.next++
	return phrase, nil
}

func (l *mockListener) Close() {}
