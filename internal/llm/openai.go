package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIConfig configures an OpenAI-compatible chat endpoint. Groq is the
// default through BaseURL.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	// Temperature below zero leaves the provider default.
	Temperature float64
	MaxTokens   int
}

type OpenAIStreamer struct {
	client *openai.Client
	cfg    OpenAIConfig
}

func NewOpenAIStreamer(cfg OpenAIConfig) (*OpenAIStreamer, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("chat API key is required")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, errors.New("chat model is required")
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		clientCfg.BaseURL = strings.TrimRight(base, "/")
	}
	return &OpenAIStreamer{client: openai.NewClientWithConfig(clientCfg), cfg: cfg}, nil
}

func (o *OpenAIStreamer) Name() string { return "openai" }

func (o *OpenAIStreamer) Stream(ctx context.Context, messages []Message) (TokenStream, error) {
	req := openai.ChatCompletionRequest{
		Model:     o.cfg.Model,
		Messages:  toOpenAIMessages(messages),
		Stream:    true,
		MaxTokens: o.cfg.MaxTokens,
	}
	if o.cfg.Temperature >= 0 {
		req.Temperature = float32(o.cfg.Temperature)
	}

	stream, err := o.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, wrapStreamErr(ctx, err)
	}
	return &openAITokenStream{ctx: ctx, stream: stream}, nil
}

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, openai.ChatCompletionMessage{Role: string(m.Role), Content: m.Content})
	}
	return out
}

type openAITokenStream struct {
	ctx    context.Context
	stream *openai.ChatCompletionStream
}

func (s *openAITokenStream) Next() (string, error) {
	for {
		resp, err := s.stream.Recv()
		if errors.Is(err, io.EOF) {
			return "", io.EOF
		}
		if err != nil {
			return "", wrapStreamErr(s.ctx, err)
		}
		// Role-only and finish chunks carry no text.
		if len(resp.Choices) > 0 && resp.Choices[0].Delta.Content != "" {
			return resp.Choices[0].Delta.Content, nil
		}
	}
}

func (s *openAITokenStream) Close() error {
	s.stream.Close()
	return nil
}

func wrapStreamErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return fmt.Errorf("%w: %w", ErrStream, err)
}
