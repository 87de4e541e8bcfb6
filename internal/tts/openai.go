package tts

import (
	"context"
	"fmt"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/ent0n29/talkback/internal/audio"
)

// OpenAIConfig configures the hosted speech backend.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Voice   string
}

// OpenAISynthesizer calls an OpenAI-compatible /audio/speech endpoint and
// asks for WAV so the result can be stretched without a codec.
type OpenAISynthesizer struct {
	client *openai.Client
	model  string
	voice  string
}

func NewOpenAISynthesizer(cfg OpenAIConfig) (*OpenAISynthesizer, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("speech API key is required")
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		clientCfg.BaseURL = strings.TrimRight(base, "/")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = string(openai.TTSModel1)
	}
	voice := strings.TrimSpace(cfg.Voice)
	if voice == "" {
		voice = string(openai.VoiceAlloy)
	}
	return &OpenAISynthesizer{
		client: openai.NewClientWithConfig(clientCfg),
		model:  model,
		voice:  voice,
	}, nil
}

func (o *OpenAISynthesizer) Name() string { return "openai" }

func (o *OpenAISynthesizer) Close() error { return nil }

// Synthesize relies on the model detecting the language from the text; the
// locale is not part of the speech API.
func (o *OpenAISynthesizer) Synthesize(ctx context.Context, text, _ string) (audio.Clip, error) {
	resp, err := o.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(o.model),
		Input:          text,
		Voice:          openai.SpeechVoice(o.voice),
		ResponseFormat: openai.SpeechResponseFormatWav,
	})
	if err != nil {
		return audio.Clip{}, fmt.Errorf("%w: %v", ErrSynthesis, err)
	}
	defer resp.Close()

	raw, err := io.ReadAll(io.LimitReader(resp, 32<<20))
	if err != nil {
		return audio.Clip{}, fmt.Errorf("%w: %v", ErrSynthesis, err)
	}
	clip, err := audio.DecodeWAV(raw)
	if err != nil {
		return audio.Clip{}, fmt.Errorf("%w: %v", ErrSynthesis, err)
	}
	return clip, nil
}
