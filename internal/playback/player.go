package playback

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/parleylabs/parley-core/internal/config"
	"github.com/parleylabs/parley-core/internal/tts"
)

// Player renders a synthesized clip on the output device. Play blocks until
// the clip has finished or the context is canceled.
type Player interface {
	Play(ctx context.Context, clip tts.Clip) error
	Close()
}

// New builds the configured player.
func New(cfg config.PlaybackConfig, log *slog.Logger) (Player, error) {
	switch cfg.Mode {
	case "oto":
		return NewOtoPlayer(log), nil
	case "exec":
		return NewExecPlayer(cfg.Command)
	case "mock":
		return NewMockPlayer(), nil
	default:
		return nil, fmt.Errorf("unknown playback mode %q", cfg.Mode)
	}
}
