package capture

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/parleylabs/parley-core/internal/config"
)

const deepgramEndpoint = "https://api.deepgram.com"

type deepgramRecognizer struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewDeepgramRecognizer talks to the Deepgram listen API with raw
// linear16 payloads.
func NewDeepgramRecognizer(cfg config.CaptureConfig) Recognizer {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = deepgramEndpoint
	}
	return &deepgramRecognizer{
		endpoint: endpoint,
		apiKey:   cfg.APIKey,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

func (r *deepgramRecognizer) Recognize(ctx context.Context, pcm []byte, sampleRate int, locale string) (Result, error) {
	query := url.Values{}
	query.Set("model", "nova-2")
	query.Set("encoding", "linear16")
	query.Set("sample_rate", strconv.Itoa(sampleRate))
	query.Set("language", locale)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		r.endpoint+"/v1/listen?"+query.Encode(), bytes.NewReader(pcm))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Authorization", "Token "+r.apiKey)
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := r.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("deepgram request: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("deepgram returned %d: %s", resp.StatusCode, body)
	}

	var parsed struct {
		Results struct {
			Channels []struct {
				Alternatives []struct {
					Transcript string  `json:"transcript"`
					Confidence float64 `json:"confidence"`
				} `json:"alternatives"`
			} `json:"channels"`
		} `json:"results"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Result{}, fmt.Errorf("decode deepgram response: %w", err)
	}
	if len(parsed.Results.Channels) == 0 || len(parsed.Results.Channels[0].Alternatives) == 0 {
		return Result{}, ErrUnintelligible
	}

	alt := parsed.Results.Channels[0].Alternatives[0]
	return Result{Text: alt.Transcript, Confidence: alt.Confidence}, nil
}
