package capture

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/parleylabs/parley-core/internal/config"
)

const googleSpeechEndpoint = "https://speech.googleapis.com/v1/speech:recognize"

type googleRecognizer struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewGoogleRecognizer talks to the Google Cloud Speech REST API with
// LINEAR16 payloads.
func NewGoogleRecognizer(cfg config.CaptureConfig) Recognizer {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = googleSpeechEndpoint
	}
	return &googleRecognizer{
		endpoint: endpoint,
		apiKey:   cfg.APIKey,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

type googleSpeechRequest struct {
	Config googleSpeechConfig `json:"config"`
	Audio  googleSpeechAudio  `json:"audio"`
}

type googleSpeechConfig struct {
	Encoding        string `json:"encoding"`
	SampleRateHertz int    `json:"sampleRateHertz"`
	LanguageCode    string `json:"languageCode"`
}

type googleSpeechAudio struct {
	Content string `json:"content"`
}

type googleSpeechResponse struct {
	Results []struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"results"`
}

func (r *googleRecognizer) Recognize(ctx context.Context, pcm []byte, sampleRate int, locale string) (Result, error) {
	payload := googleSpeechRequest{
		Config: googleSpeechConfig{
			Encoding:        "LINEAR16",
			SampleRateHertz: sampleRate,
			LanguageCode:    locale,
		},
		Audio: googleSpeechAudio{Content: base64.StdEncoding.EncodeToString(pcm)},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Result{}, fmt.Errorf("encode speech request: %w", err)
	}

	url := r.endpoint + "?key=" + r.apiKey
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("speech request: %w", err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("speech service returned %d: %s", resp.StatusCode, data)
	}

	var parsed googleSpeechResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return Result{}, fmt.Errorf("decode speech response: %w", err)
	}
	if len(parsed.Results) == 0 || len(parsed.Results[0].Alternatives) == 0 {
		return Result{}, ErrUnintelligible
	}

	alt := parsed.Results[0].Alternatives[0]
	return Result{Text: alt.Transcript, Confidence: alt.Confidence}, nil
}
