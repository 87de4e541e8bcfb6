package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// ErrDevice wraps input device failures.
var ErrDevice = errors.New("audio input device error")

// FrameSource opens a mono PCM16 input stream.
type FrameSource interface {
	Open(ctx context.Context) (FrameStream, error)
}

// FrameStream yields fixed-size frames until it returns io.EOF or an error.
type FrameStream interface {
	ReadFrame() ([]int16, error)
	Close() error
}

// PortAudioSource captures from the default input device.
type PortAudioSource struct {
	SampleRate      int
	FramesPerBuffer int
}

func NewPortAudioSource(sampleRate, framesPerBuffer int) *PortAudioSource {
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	if framesPerBuffer <= 0 {
		framesPerBuffer = 1024
	}
	return &PortAudioSource{SampleRate: sampleRate, FramesPerBuffer: framesPerBuffer}
}

func (s *PortAudioSource) Open(_ context.Context) (FrameStream, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDevice, err)
	}
	buf := make([]int16, s.FramesPerBuffer)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(s.SampleRate), s.FramesPerBuffer, buf)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("%w: open input: %v", ErrDevice, err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("%w: start input: %v", ErrDevice, err)
	}
	return &portAudioStream{stream: stream, buf: buf}, nil
}

type portAudioStream struct {
	once   sync.Once
	stream *portaudio.Stream
	buf    []int16
}

func (p *portAudioStream) ReadFrame() ([]int16, error) {
	if err := p.stream.Read(); err != nil && !errors.Is(err, portaudio.InputOverflowed) {
		return nil, fmt.Errorf("%w: read: %v", ErrDevice, err)
	}
	frame := make([]int16, len(p.buf))
	copy(frame, p.buf)
	return frame, nil
}

func (p *portAudioStream) Close() error {
	var err error
	p.once.Do(func() {
		_ = p.stream.Stop()
		err = p.stream.Close()
		_ = portaudio.Terminate()
	})
	return err
}

// SliceSource replays fixed frames; the stream ends with io.EOF.
type SliceSource struct {
	Frames  [][]int16
	OpenErr error

	mu     sync.Mutex
	opened int
}

func (s *SliceSource) Open(_ context.Context) (FrameStream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.OpenErr != nil {
		return nil, s.OpenErr
	}
	s.opened++
	return &sliceStream{frames: s.Frames}, nil
}

// Opened reports how many streams were opened.
func (s *SliceSource) Opened() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opened
}

type sliceStream struct {
	frames [][]int16
	next   int
	closed bool
}

func (s *sliceStream) ReadFrame() ([]int16, error) {
	if s.closed || s.next >= len(s.frames) {
		return nil, io.EOF
	}
	f := s.frames[s.next]
	s.next++
	return f, nil
}

func (s *sliceStream) Close() error {
	s.closed = true
	return nil
}
