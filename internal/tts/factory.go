package tts

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
)

// ErrNoBackend is returned when no configured backend could be started.
var ErrNoBackend = errors.New("no compatible speech backend")

// Options selects and configures a speech backend.
type Options struct {
	// Provider is one of auto, kokoro, openai, mock.
	Provider string
	Kokoro   KokoroConfig
	OpenAI   OpenAIConfig
}

// New builds the configured backend. With Provider auto it tries the local
// Kokoro worker, then the hosted API.
func New(opts Options) (Synthesizer, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Provider)) {
	case "kokoro":
		k, err := StartKokoro(opts.Kokoro)
		if err != nil {
			return nil, fmt.Errorf("%w: kokoro: %w", ErrNoBackend, err)
		}
		return k, nil
	case "openai":
		o, err := NewOpenAISynthesizer(opts.OpenAI)
		if err != nil {
			return nil, fmt.Errorf("%w: openai: %w", ErrNoBackend, err)
		}
		return o, nil
	case "mock":
		return NewMock(), nil
	case "", "auto":
		k, kerr := StartKokoro(opts.Kokoro)
		if kerr == nil {
			return k, nil
		}
		log.Debug().Err(kerr).Msg("kokoro speech backend unavailable")
		o, oerr := NewOpenAISynthesizer(opts.OpenAI)
		if oerr == nil {
			return o, nil
		}
		return nil, fmt.Errorf("%w: kokoro: %v; openai: %v", ErrNoBackend, kerr, oerr)
	default:
		return nil, fmt.Errorf("unsupported TTS_PROVIDER %q", opts.Provider)
	}
}
