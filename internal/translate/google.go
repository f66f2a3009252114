package translate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/parleylabs/parley-core/internal/config"
)

const googleTranslateEndpoint = "https://translate.googleapis.com/translate_a/single"

type googleTranslator struct {
	endpoint string
	client   *http.Client
	log      *slog.Logger
}

// NewGoogleTranslator uses the unauthenticated web translation endpoint.
// Responses arrive as nested arrays; the first element holds one entry per
// translated segment.
func NewGoogleTranslator(cfg config.TranslateConfig, log *slog.Logger) Translator {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = googleTranslateEndpoint
	}
	timeout := time.Duration(cfg.TimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &googleTranslator{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		log:      log,
	}
}

func (g *googleTranslator) Translate(ctx context.Context, text, source, target string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", nil
	}
	if source == "" {
		source = Auto
	}

	query := url.Values{}
	query.Set("client", "gtx")
	query.Set("sl", source)
	query.Set("tl", target)
	query.Set("dt", "t")
	query.Set("q", text)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return "", err
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("translate request: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("translate service returned %d: %s", resp.StatusCode, body)
	}

	translated, detected, err := parseTranslatePayload(body)
	if err != nil {
		return "", err
	}
	g.log.Debug("translated text",
		slog.String("source", source),
		slog.String("detected", detected),
		slog.String("target", target))
	return translated, nil
}

func parseTranslatePayload(body []byte) (string, string, error) {
	var payload []interface{}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", "", fmt.Errorf("decode translate response: %w", err)
	}
	if len(payload) == 0 {
		return "", "", fmt.Errorf("empty translate response")
	}

	segments, ok := payload[0].([]interface{})
	if !ok {
		return "", "", fmt.Errorf("unexpected translate payload shape")
	}

	var sb strings.Builder
	for _, seg := range segments {
		parts, ok := seg.([]interface{})
		if !ok || len(parts) == 0 {
			continue
		}
		if text, ok := parts[0].(string); ok {
			sb.WriteString(text)
		}
	}
	if sb.Len() == 0 {
		return "", "", fmt.Errorf("no translation in response")
	}

	detected := ""
	if len(payload) > 2 {
		if lang, ok := payload[2].(string); ok {
			detected = lang
		}
	}
	return sb.String(), detected, nil
}
