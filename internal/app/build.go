// Package app assembles the assistant from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/ent0n29/talkback/internal/capture"
	"github.com/ent0n29/talkback/internal/config"
	"github.com/ent0n29/talkback/internal/conversation"
	"github.com/ent0n29/talkback/internal/httpapi"
	"github.com/ent0n29/talkback/internal/llm"
	"github.com/ent0n29/talkback/internal/observability"
	"github.com/ent0n29/talkback/internal/policy"
	"github.com/ent0n29/talkback/internal/session"
	"github.com/ent0n29/talkback/internal/tts"
	"github.com/ent0n29/talkback/internal/voice"
)

type BuildResult struct {
	Config   config.Config
	API      *httpapi.Server
	Tracker  *session.Tracker
	Queue    *voice.Queue
	Driver   *conversation.Driver
	Renderer *tts.Renderer
	Metrics  *observability.Metrics
	Detail   string

	// Cleanup releases local workers and devices. Call it after the queue
	// has stopped.
	Cleanup func() error
}

// Options overrides process-level streams, mainly for tests.
type Options struct {
	Stdin io.Reader
	Echo  io.Writer
}

func Build(ctx context.Context, cfg config.Config, opts Options) (*BuildResult, error) {
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	if opts.Echo == nil {
		opts.Echo = os.Stdout
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)
	redactor := policy.Redactor{Enabled: cfg.LogRedactPII}
	tracker := session.NewTracker()

	streamer, err := llm.New(ctx, llm.Options{
		Provider: cfg.LLMProvider,
		OpenAI: llm.OpenAIConfig{
			APIKey:      cfg.LLMAPIKey,
			BaseURL:     cfg.LLMBaseURL,
			Model:       cfg.LLMModel,
			Temperature: cfg.LLMTemperature,
			MaxTokens:   cfg.LLMMaxTokens,
		},
		Gemini: llm.GeminiConfig{
			APIKey:      cfg.GeminiAPIKey,
			BaseURL:     cfg.GeminiBaseURL,
			Model:       cfg.GeminiModel,
			Temperature: cfg.LLMTemperature,
			MaxTokens:   cfg.LLMMaxTokens,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("chat backend init failed: %w", err)
	}

	setup, err := resolveVoice(cfg)
	if err != nil {
		return nil, err
	}

	hub := httpapi.NewHub(metrics, 0)
	queue := voice.NewQueue(setup.renderer, setup.channel, voice.Options{
		Workers:   cfg.SynthMaxWorkers,
		Metrics:   metrics,
		Sink:      hub,
		SessionID: tracker.ID(),
	})

	var listener conversation.Listener
	if setup.headless {
		listener = capture.NewLineListener(opts.Stdin)
	} else {
		listener = capture.NewGate(capture.Config{
			Threshold:     cfg.CaptureSilenceThreshold,
			SilenceCutoff: cfg.CaptureSilenceDuration,
			SampleRate:    cfg.CaptureSampleRate,
			MaxUtterance:  cfg.CaptureMaxUtterance,
			Language:      cfg.STTLanguage,
		}, setup.source, setup.transcriber, metrics, redactor)
	}

	driver, err := conversation.NewDriver(conversation.Config{
		ExitKeywords:   cfg.ExitKeywords,
		SentenceBreaks: cfg.SentenceBreaks,
		Echo:           opts.Echo,
	}, conversation.Deps{
		Listener: listener,
		Streamer: streamer,
		Speaker:  queue,
		History:  conversation.NewHistory(cfg.SystemPrompt),
		Tracker:  tracker,
		Metrics:  metrics,
		Sink:     hub,
		Redactor: redactor,
	})
	if err != nil {
		queue.Abort()
		return nil, errors.Join(err, setup.cleanup())
	}

	api := httpapi.New(cfg, tracker, queue, metrics, hub)

	cleanup := func() error {
		hub.Close()
		return errors.Join(setup.cleanup(), setup.renderer.Sweep())
	}

	return &BuildResult{
		Config:   cfg,
		API:      api,
		Tracker:  tracker,
		Queue:    queue,
		Driver:   driver,
		Renderer: setup.renderer,
		Metrics:  metrics,
		Detail:   fmt.Sprintf("%s: %s", streamer.Name(), setup.detail),
		Cleanup:  cleanup,
	}, nil
}
