package playback

import (
	"context"
	"sync"
	"time"

	"github.com/parleylabs/parley-core/internal/tts"
)

type mockPlayer struct {
	mu     sync.Mutex
	played int
}

func NewMockPlayer() Player {
	return &mockPlayer{}
}

func (m *mockPlayer) Play(ctx context.Context, _ tts.Clip) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(10 * time.Millisecond):
	}
	m.mu.Lock()
	m.played++
	m.mu.Unlock()
	return nil
}

func (m *mockPlayer) Close() {}
