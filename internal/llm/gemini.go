package llm

import (
	"context"
	"errors"
	"io"
	"iter"
	"strings"

	"google.golang.org/genai"
)

// GeminiConfig configures the Google Gemini chat backend.
type GeminiConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	// Temperature below zero leaves the provider default.
	Temperature float64
	MaxTokens   int
}

type GeminiStreamer struct {
	client *genai.Client
	cfg    GeminiConfig
}

func NewGeminiStreamer(ctx context.Context, cfg GeminiConfig) (*GeminiStreamer, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("gemini API key is required")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, errors.New("gemini model is required")
	}
	cc := &genai.ClientConfig{APIKey: cfg.APIKey, Backend: genai.BackendGeminiAPI}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: base}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, err
	}
	return &GeminiStreamer{client: client, cfg: cfg}, nil
}

func (g *GeminiStreamer) Name() string { return "gemini" }

func (g *GeminiStreamer) Stream(ctx context.Context, messages []Message) (TokenStream, error) {
	system, contents := toGeminiContents(messages)
	if len(contents) == 0 {
		return nil, wrapStreamErr(ctx, errors.New("no user message to answer"))
	}
	cfg := &genai.GenerateContentConfig{SystemInstruction: system}
	if g.cfg.Temperature >= 0 {
		cfg.Temperature = genai.Ptr(float32(g.cfg.Temperature))
	}
	if g.cfg.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(g.cfg.MaxTokens)
	}

	responses := g.client.Models.GenerateContentStream(ctx, g.cfg.Model, contents, cfg)
	texts := func(yield func(string, error) bool) {
		for resp, err := range responses {
			if err != nil {
				yield("", err)
				return
			}
			if !yield(resp.Text(), nil) {
				return
			}
		}
	}
	return newSeqStream(ctx, texts), nil
}

// toGeminiContents splits system prompts out into the system instruction;
// assistant turns map to the "model" role.
func toGeminiContents(messages []Message) (*genai.Content, []*genai.Content) {
	var (
		system   []string
		contents []*genai.Content
	)
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			system = append(system, m.Content)
		case RoleAssistant:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}
	if len(system) == 0 {
		return nil, contents
	}
	return genai.NewContentFromText(strings.Join(system, "\n\n"), genai.RoleUser), contents
}

// seqStream adapts a push iterator of text chunks to TokenStream.
type seqStream struct {
	ctx  context.Context
	next func() (string, error, bool)
	stop func()
}

func newSeqStream(ctx context.Context, seq iter.Seq2[string, error]) *seqStream {
	next, stop := iter.Pull2(seq)
	return &seqStream{ctx: ctx, next: next, stop: stop}
}

func (s *seqStream) Next() (string, error) {
	for {
		text, err, ok := s.next()
		if !ok {
			if ctxErr := s.ctx.Err(); ctxErr != nil {
				return "", ctxErr
			}
			return "", io.EOF
		}
		if err != nil {
			return "", wrapStreamErr(s.ctx, err)
		}
		if text != "" {
			return text, nil
		}
	}
}

func (s *seqStream) Close() error {
	s.stop()
	return nil
}
