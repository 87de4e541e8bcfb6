package llm

import (
	"context"
	"fmt"
	"strings"
)

// Options selects and configures the chat backend.
type Options struct {
	// Provider is openai, gemini or mock.
	Provider string
	OpenAI   OpenAIConfig
	Gemini   GeminiConfig
}

func New(ctx context.Context, opts Options) (ChatStreamer, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Provider)) {
	case "", "openai":
		s, err := NewOpenAIStreamer(opts.OpenAI)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "gemini":
		s, err := NewGeminiStreamer(ctx, opts.Gemini)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "mock":
		return NewMock(), nil
	default:
		return nil, fmt.Errorf("unsupported LLM_PROVIDER %q", opts.Provider)
	}
}
