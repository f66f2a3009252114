package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"sync"

	"github.com/mattn/go-shellwords"

	"github.com/parleylabs/parley-core/internal/config"
)

type execSynthesizer struct {
	cmd []string
	mu  sync.Mutex
}

type execRequest struct {
	Text     string `json:"text"`
	Language string `json:"language"`
	Voice    string `json:"voice,omitempty"`
}

// NewExecSynthesizer shells out to a local synthesizer. The command receives
// JSON on stdin and must write raw audio to stdout.
func NewExecSynthesizer(cfg config.TTSConfig) (Synthesizer, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("parse tts command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("tts command empty")
	}
	return &execSynthesizer{cmd: args}, nil
}

func (e *execSynthesizer) Synthesize(ctx context.Context, text, lang string) (Clip, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	input, err := json.Marshal(execRequest{Text: text, Language: lang})
	if err != nil {
		return Clip{}, err
	}

	base := e.cmd[0]
	args := append([]string{}, e.cmd[1:]...)
	cmd := exec.CommandContext(ctx, base, args...)
	cmd.Stdin = bytes.NewReader(input)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	output, err := cmd.Output()
	if err != nil {
		return Clip{}, fmt.Errorf("tts command failed: %w: %s", err, stderr.String())
	}
	if len(output) == 0 {
		return Clip{}, fmt.Errorf("tts command produced no audio")
	}
	return Clip{MIME: sniffMIME(output), Data: output}, nil
}
