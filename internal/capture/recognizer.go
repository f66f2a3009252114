package capture

import (
	"context"
)

// Result captures recognizer output.
type Result struct {
	Text       string
	Confidence float64
}

// Recognizer abstracts speech-to-text backends.
type Recognizer interface {
	Recognize(ctx context.Context, pcm []byte, sampleRate int, locale string) (Result, error)
}
