package tts

import (
	"context"
	"time"
)

type mockSynthesizer struct{}

func NewMockSynthesizer() Synthesizer {
	return &mockSynthesizer{}
}

func (m *mockSynthesizer) Synthesize(ctx context.Context, text, _ string) (Clip, error) {
	select {
	case <-ctx.Done():
		return Clip{}, ctx.Err()
	case <-time.After(50 * time.Millisecond):
	}
	return Clip{MIME: "audio/mock", Data: []byte(text)}, nil
}
