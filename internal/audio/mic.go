package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"
)

const framesPerBuffer = 1024

// ErrNoInput is returned when no audio above the ambient threshold arrives
// before the wait timeout elapses.
var ErrNoInput = errors.New("no speech before timeout")

// MicConfig controls phrase capture behavior.
type MicConfig struct {
	SampleRate  int
	WaitTimeout time.Duration
	PhraseLimit time.Duration
	Calibration time.Duration
	Silence     time.Duration
}

// Mic captures single phrases from the default input device. Capture is
// energy-gated: frames quieter than the calibrated ambient threshold do not
// start a phrase, and a sustained quiet run ends one.
type Mic struct {
	mu        sync.Mutex
	cfg       MicConfig
	buffer    []int16
	stream    *portaudio.Stream
	threshold float64
	log       *slog.Logger
}

// OpenMic initializes portaudio and opens the default input stream.
func OpenMic(cfg MicConfig, log *slog.Logger) (*Mic, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("initialize portaudio: %w", err)
	}

	buffer := make([]int16, framesPerBuffer)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(cfg.SampleRate), framesPerBuffer, buffer)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("open input stream: %w", err)
	}

	return &Mic{
		cfg:       cfg,
		buffer:    buffer,
		stream:    stream,
		threshold: defaultThreshold,
		log:       log,
	}, nil
}

// defaultThreshold gates capture before the first calibration pass.
const defaultThreshold = 300

// Calibrate samples ambient noise and raises the energy threshold above it.
func (m *Mic) Calibrate(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cfg.Calibration <= 0 {
		return nil
	}
	if err := m.stream.Start(); err != nil {
		return fmt.Errorf("start input stream: %w", err)
	}
	defer m.stream.Stop()

	var total float64
	var frames int
	deadline := time.Now().Add(m.cfg.Calibration)
	for time.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := m.stream.Read(); err != nil {
			return fmt.Errorf("read mic: %w", err)
		}
		total += RMS(m.buffer)
		frames++
	}
	if frames == 0 {
		return nil
	}

	ambient := total / float64(frames)
	threshold := ambient * 1.5
	if threshold < defaultThreshold {
		threshold = defaultThreshold
	}
	m.threshold = threshold
	m.log.Debug("calibrated ambient noise",
		slog.Float64("ambient_rms", ambient),
		slog.Float64("threshold", threshold))
	return nil
}

// CapturePhrase blocks until a phrase is heard and returns it as 16-bit
// little-endian PCM. It returns ErrNoInput if nothing crosses the threshold
// before the wait timeout, and the context error on cancellation.
func (m *Mic) CapturePhrase(ctx context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.stream.Start(); err != nil {
		return nil, fmt.Errorf("start input stream: %w", err)
	}
	defer m.stream.Stop()

	frameDuration := time.Duration(framesPerBuffer) * time.Second / time.Duration(m.cfg.SampleRate)
	waitDeadline := time.Now().Add(m.cfg.WaitTimeout)

	// Wait for the first frame that crosses the threshold.
	var phrase []int16
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if time.Now().After(waitDeadline) {
			return nil, ErrNoInput
		}
		if err := m.stream.Read(); err != nil {
			return nil, fmt.Errorf("read mic: %w", err)
		}
		if RMS(m.buffer) >= m.threshold {
			phrase = append(phrase, m.buffer...)
			break
		}
	}

	// Collect until a sustained quiet run or the phrase limit.
	phraseDeadline := time.Now().Add(m.cfg.PhraseLimit)
	var quiet time.Duration
	for time.Now().Before(phraseDeadline) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := m.stream.Read(); err != nil {
			return nil, fmt.Errorf("read mic: %w", err)
		}
		phrase = append(phrase, m.buffer...)
		if RMS(m.buffer) < m.threshold {
			quiet += frameDuration
			if quiet >= m.cfg.Silence {
				break
			}
		} else {
			quiet = 0
		}
	}

	return int16ToBytes(phrase), nil
}

// Probe reports whether an input device is still present. It queries the
// host API directly and never touches the capture stream, so it is safe to
// call while a capture is in flight.
func (m *Mic) Probe() error {
	if _, err := portaudio.DefaultInputDevice(); err != nil {
		return fmt.Errorf("no input device: %w", err)
	}
	return nil
}

// Close stops the stream and releases portaudio.
func (m *Mic) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stream != nil {
		m.stream.Close()
		m.stream = nil
	}
	portaudio.Terminate()
}
