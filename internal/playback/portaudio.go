package playback

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gordonklaus/portaudio"

	"github.com/ent0n29/talkback/internal/audio"
)

const framesPerBuffer = 1024

// PortAudio writes clips to the default output device, converted to the
// device format (stereo 44.1 kHz by default).
type PortAudio struct {
	sampleRate int
	channels   int

	mu      sync.Mutex
	playing atomic.Bool
	stop    chan struct{}
	closed  bool
}

func NewPortAudio(sampleRate, channels int) (*PortAudio, error) {
	if sampleRate <= 0 {
		sampleRate = 44100
	}
	if channels != 1 {
		channels = 2
	}
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDevice, err)
	}
	return &PortAudio{sampleRate: sampleRate, channels: channels}, nil
}

func (p *PortAudio) Name() string { return "portaudio" }

func (p *PortAudio) Playing() bool { return p.playing.Load() }

func (p *PortAudio) Play(ctx context.Context, path string) error {
	clip, err := audio.ReadWAVFile(path)
	if err != nil {
		return err
	}
	out := audio.ConvertForOutput(clip, p.sampleRate, p.channels)

	stop := make(chan struct{})
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return fmt.Errorf("%w: channel closed", ErrDevice)
	}
	p.stop = stop
	p.mu.Unlock()

	p.playing.Store(true)
	defer p.playing.Store(false)

	buf := make([]int16, framesPerBuffer*p.channels)
	stream, err := portaudio.OpenDefaultStream(0, p.channels, float64(p.sampleRate), framesPerBuffer, buf)
	if err != nil {
		return fmt.Errorf("%w: open output: %v", ErrDevice, err)
	}
	defer stream.Close()
	if err := stream.Start(); err != nil {
		return fmt.Errorf("%w: start output: %v", ErrDevice, err)
	}

	for off := 0; off < len(out.Samples); off += len(buf) {
		select {
		case <-ctx.Done():
			_ = stream.Abort()
			return ctx.Err()
		case <-stop:
			_ = stream.Abort()
			return ErrStopped
		default:
		}
		n := copy(buf, out.Samples[off:])
		for i := n; i < len(buf); i++ {
			buf[i] = 0
		}
		if err := stream.Write(); err != nil {
			_ = stream.Abort()
			return fmt.Errorf("%w: write: %v", ErrDevice, err)
		}
	}
	if err := stream.Stop(); err != nil {
		return fmt.Errorf("%w: stop output: %v", ErrDevice, err)
	}
	return nil
}

// Stop interrupts the clip currently playing, if any.
func (p *PortAudio) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stop != nil {
		close(p.stop)
		p.stop = nil
	}
}

func (p *PortAudio) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()
	p.Stop()
	return portaudio.Terminate()
}
