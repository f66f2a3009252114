package playback

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"

	"github.com/mattn/go-shellwords"

	"github.com/parleylabs/parley-core/internal/tts"
)

type execPlayer struct {
	cmd []string
	mu  sync.Mutex
}

// NewExecPlayer pipes clips to an external player such as ffplay. The clip
// is written to a temp file whose path is appended to the command.
func NewExecPlayer(command string) (Player, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse playback command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("playback command empty")
	}
	return &execPlayer{cmd: args}, nil
}

func (p *execPlayer) Play(ctx context.Context, clip tts.Clip) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	file, err := os.CreateTemp(os.TempDir(), "parley_clip_*"+extensionFor(clip.MIME))
	if err != nil {
		return fmt.Errorf("temp file: %w", err)
	}
	defer os.Remove(file.Name())

	if _, err := file.Write(clip.Data); err != nil {
		file.Close()
		return fmt.Errorf("write clip: %w", err)
	}
	file.Close()

	base := p.cmd[0]
	args := append(append([]string{}, p.cmd[1:]...), file.Name())
	cmd := exec.CommandContext(ctx, base, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("playback command failed: %w: %s", err, stderr.String())
	}
	return nil
}

func (p *execPlayer) Close() {}

func extensionFor(mime string) string {
	switch mime {
	case "audio/wav":
		return ".wav"
	case "audio/ogg":
		return ".ogg"
	default:
		return ".mp3"
	}
}
