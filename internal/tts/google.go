package tts

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode"

	"github.com/parleylabs/parley-core/internal/config"
)

const (
	googleTTSEndpoint = "https://translate.google.com/translate_tts"

	// The endpoint rejects long inputs, so text is synthesized in
	// sentence-aligned chunks and the MP3 payloads are concatenated.
	maxChunkRunes = 200
)

type googleSynthesizer struct {
	endpoint string
	client   *http.Client
	log      *slog.Logger
}

// NewGoogleSynthesizer uses the unauthenticated web TTS endpoint.
func NewGoogleSynthesizer(cfg config.TTSConfig, log *slog.Logger) Synthesizer {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = googleTTSEndpoint
	}
	timeout := time.Duration(cfg.TimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &googleSynthesizer{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		log:      log,
	}
}

func (g *googleSynthesizer) Synthesize(ctx context.Context, text, lang string) (Clip, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Clip{}, fmt.Errorf("empty text")
	}

	var data []byte
	chunks := splitChunks(text, maxChunkRunes)
	for _, chunk := range chunks {
		part, err := g.fetchChunk(ctx, chunk, lang)
		if err != nil {
			return Clip{}, err
		}
		data = append(data, part...)
	}
	g.log.Debug("synthesized speech",
		slog.String("lang", lang),
		slog.Int("chunks", len(chunks)),
		slog.Int("bytes", len(data)))
	return Clip{MIME: "audio/mpeg", Data: data}, nil
}

func (g *googleSynthesizer) fetchChunk(ctx context.Context, text, lang string) ([]byte, error) {
	query := url.Values{}
	query.Set("ie", "UTF-8")
	query.Set("client", "tw-ob")
	query.Set("tl", lang)
	query.Set("q", text)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tts request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read tts response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tts service returned %d: %s", resp.StatusCode, body)
	}
	return body, nil
}

// splitChunks breaks text into pieces of at most max runes, preferring
// sentence boundaries, then word boundaries.
func splitChunks(text string, max int) []string {
	runes := []rune(text)
	if len(runes) <= max {
		return []string{text}
	}

	var chunks []string
	for len(runes) > 0 {
		if len(runes) <= max {
			chunks = append(chunks, strings.TrimSpace(string(runes)))
			break
		}

		cut := -1
		for i := max - 1; i >= 0; i-- {
			switch runes[i] {
			case '.', '!', '?', ';', ':':
				cut = i + 1
			}
			if cut >= 0 {
				break
			}
		}
		if cut < 0 {
			for i := max - 1; i >= 0; i-- {
				if unicode.IsSpace(runes[i]) {
					cut = i
					break
				}
			}
		}
		if cut <= 0 {
			cut = max
		}

		chunk := strings.TrimSpace(string(runes[:cut]))
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		runes = []rune(strings.TrimSpace(string(runes[cut:])))
	}
	return chunks
}
