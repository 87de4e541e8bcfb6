package stt

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
)

// ErrNoBackend means no transcription backend could be started.
var ErrNoBackend = errors.New("no compatible transcription backend")

// Options selects and configures the transcription backend.
type Options struct {
	// Provider is whisper-server, whisper-cli, openai, mock or auto.
	Provider string
	Language string
	Whisper  WhisperConfig
	OpenAI   OpenAIConfig
}

// New builds the configured backend. auto tries the local whisper server,
// then the whisper CLI, then the hosted API.
func New(opts Options) (Transcriber, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Provider)) {
	case "whisper-server":
		srv, err := StartWhisperServer(opts.Whisper, opts.Language)
		if err != nil {
			return nil, fmt.Errorf("%w: whisper-server: %w", ErrNoBackend, err)
		}
		return srv, nil
	case "whisper-cli":
		cli, err := NewWhisperCLI(opts.Whisper)
		if err != nil {
			return nil, fmt.Errorf("%w: whisper-cli: %w", ErrNoBackend, err)
		}
		return cli, nil
	case "openai":
		hosted, err := NewOpenAITranscriber(opts.OpenAI)
		if err != nil {
			return nil, fmt.Errorf("%w: openai: %w", ErrNoBackend, err)
		}
		return hosted, nil
	case "mock":
		return NewMockTranscriber(), nil
	case "", "auto":
		var errs []error
		srv, err := StartWhisperServer(opts.Whisper, opts.Language)
		if err == nil {
			return srv, nil
		}
		errs = append(errs, fmt.Errorf("whisper-server: %w", err))

		cli, err := NewWhisperCLI(opts.Whisper)
		if err == nil {
			return cli, nil
		}
		errs = append(errs, fmt.Errorf("whisper-cli: %w", err))

		hosted, err := NewOpenAITranscriber(opts.OpenAI)
		if err == nil {
			return hosted, nil
		}
		errs = append(errs, fmt.Errorf("openai: %w", err))

		for _, err := range errs {
			log.Debug().Err(err).Msg("transcription backend unavailable")
		}
		return nil, fmt.Errorf("%w: %w", ErrNoBackend, errors.Join(errs...))
	default:
		return nil, fmt.Errorf("unsupported STT_PROVIDER %q", opts.Provider)
	}
}

