// Package playback plays rendered speech files on the single output channel.
package playback

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrDevice wraps output device failures.
var ErrDevice = errors.New("audio output device error")

// ErrStopped is returned by Play when Stop interrupted it.
var ErrStopped = errors.New("playback stopped")

// Channel plays one file at a time. Play blocks until the file has finished
// playing, ctx is cancelled, or Stop is called.
type Channel interface {
	Play(ctx context.Context, path string) error
	Playing() bool
	Stop()
	Name() string
	Close() error
}

// Options selects the output backend.
type Options struct {
	// Provider is portaudio or null.
	Provider   string
	SampleRate int
	Channels   int
}

func New(opts Options) (Channel, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Provider)) {
	case "", "portaudio":
		ch, err := NewPortAudio(opts.SampleRate, opts.Channels)
		if err != nil {
			return nil, err
		}
		return ch, nil
	case "null":
		return NewNull(), nil
	default:
		return nil, fmt.Errorf("unsupported PLAYBACK_PROVIDER %q", opts.Provider)
	}
}
