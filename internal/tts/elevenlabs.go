package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/parleylabs/parley-core/internal/config"
)

const elevenLabsEndpoint = "https://api.elevenlabs.io"

type elevenLabsSynthesizer struct {
	endpoint string
	apiKey   string
	voice    string
	client   *http.Client
}

// NewElevenLabsSynthesizer renders speech with a fixed voice. The
// multilingual model picks pronunciation from the text itself.
func NewElevenLabsSynthesizer(cfg config.TTSConfig) Synthesizer {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = elevenLabsEndpoint
	}
	timeout := time.Duration(cfg.TimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &elevenLabsSynthesizer{
		endpoint: endpoint,
		apiKey:   cfg.APIKey,
		voice:    cfg.Voice,
		client:   &http.Client{Timeout: timeout},
	}
}

func (e *elevenLabsSynthesizer) Synthesize(ctx context.Context, text, _ string) (Clip, error) {
	payload, err := json.Marshal(map[string]string{
		"text":     text,
		"model_id": "eleven_multilingual_v2",
	})
	if err != nil {
		return Clip{}, err
	}

	url := fmt.Sprintf("%s/v1/text-to-speech/%s", e.endpoint, e.voice)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return Clip{}, err
	}
	req.Header.Set("xi-api-key", e.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")

	resp, err := e.client.Do(req)
	if err != nil {
		return Clip{}, fmt.Errorf("elevenlabs request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Clip{}, fmt.Errorf("read elevenlabs response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return Clip{}, fmt.Errorf("elevenlabs returned %d: %s", resp.StatusCode, body)
	}
	return Clip{MIME: "audio/mpeg", Data: body}, nil
}
