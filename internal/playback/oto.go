package playback

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/go-audio/wav"
	mp3 "github.com/hajimehoshi/go-mp3"

	"github.com/parleylabs/parley-core/internal/tts"
)

// otoPlayer decodes MP3 and WAV clips and plays them on the default output
// device. The process may hold only one oto context, so it is created on
// first use with the sample rate of the first clip.
type otoPlayer struct {
	mu         sync.Mutex
	otoCtx     *oto.Context
	sampleRate int
	log        *slog.Logger
}

func NewOtoPlayer(log *slog.Logger) Player {
	return &otoPlayer{log: log}
}

func (p *otoPlayer) Play(ctx context.Context, clip tts.Clip) error {
	var (
		src  io.Reader
		rate int
	)
	switch clip.MIME {
	case "audio/mpeg":
		decoder, err := mp3.NewDecoder(bytes.NewReader(clip.Data))
		if err != nil {
			return fmt.Errorf("decode mp3: %w", err)
		}
		src = decoder
		rate = decoder.SampleRate()
	case "audio/wav":
		pcm, wavRate, err := decodeWAV(clip.Data)
		if err != nil {
			return fmt.Errorf("decode wav: %w", err)
		}
		src = bytes.NewReader(pcm)
		rate = wavRate
	default:
		return fmt.Errorf("unsupported clip type %q", clip.MIME)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.otoCtx == nil {
		otoCtx, ready, err := oto.NewContext(&oto.NewContextOptions{
			SampleRate:   rate,
			ChannelCount: 2,
			Format:       oto.FormatSignedInt16LE,
		})
		if err != nil {
			return fmt.Errorf("open audio device: %w", err)
		}
		<-ready
		p.otoCtx = otoCtx
		p.sampleRate = rate
		p.log.Debug("audio device opened", slog.Int("sample_rate", p.sampleRate))
	}
	if rate != p.sampleRate {
		return fmt.Errorf("clip sample rate %d does not match device rate %d",
			rate, p.sampleRate)
	}

	player := p.otoCtx.NewPlayer(src)
	defer player.Close()
	player.Play()

	for player.IsPlaying() {
		select {
		case <-ctx.Done():
			player.Pause()
			return ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
	return nil
}

// decodeWAV returns interleaved stereo int16 little-endian samples, matching
// the fixed two-channel device format. Mono sources play on both channels.
func decodeWAV(data []byte) ([]byte, int, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("read pcm: %w", err)
	}
	if dec.BitDepth != 16 {
		return nil, 0, fmt.Errorf("unsupported bit depth %d", dec.BitDepth)
	}

	switch dec.NumChans {
	case 1:
		out := make([]byte, 0, len(buf.Data)*4)
		for _, s := range buf.Data {
			v := uint16(int16(s))
			out = append(out, byte(v), byte(v>>8), byte(v), byte(v>>8))
		}
		return out, int(dec.SampleRate), nil
	case 2:
		out := make([]byte, 0, len(buf.Data)*2)
		for _, s := range buf.Data {
			v := uint16(int16(s))
			out = append(out, byte(v), byte(v>>8))
		}
		return out, int(dec.SampleRate), nil
	default:
		return nil, 0, fmt.Errorf("unsupported channel count %d", dec.NumChans)
	}
}

func (p *otoPlayer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.otoCtx != nil {
		p.otoCtx.Suspend()
	}
}
