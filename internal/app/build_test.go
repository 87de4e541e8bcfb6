package app

import (
	"bytes"
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/ent0n29/talkback/internal/config"
	"github.com/ent0n29/talkback/internal/session"
)

func headlessConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		MetricsNamespace:        "test_app",
		LLMProvider:             "mock",
		SystemPrompt:            "你是助理",
		STTProvider:             "mock",
		STTLanguage:             "zh",
		CaptureSilenceThreshold: 800,
		CaptureSilenceDuration:  1200 * time.Millisecond,
		CaptureFrameSamples:     1024,
		CaptureSampleRate:       16000,
		TTSProvider:             "mock",
		TTSLocale:               "zh-tw",
		PlaybackProvider:        "null",
		PlaybackSpeed:           1.6,
		StretchChunk:            150 * time.Millisecond,
		StretchCrossfade:        25 * time.Millisecond,
		SynthMaxWorkers:         4,
		TTSCacheDir:             t.TempDir(),
		PlaybackSampleRate:      44100,
		PlaybackChannels:        2,
		ExitKeywords:            []string{"exit"},
		SentenceBreaks:          "，。！？\n",
	}
}

func TestBuildHeadlessRunsConversation(t *testing.T) {
	cfg := headlessConfig(t)
	var echo bytes.Buffer
	res, err := Build(context.Background(), cfg, Options{
		Stdin: strings.NewReader("早安\nexit\n"),
		Echo:  &echo,
	})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := res.Driver.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if err := res.Cleanup(); err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}

	if want := "我聽到你說：早安。\n"; echo.String() != want {
		t.Fatalf("echo = %q, want %q", echo.String(), want)
	}
	if got := res.Tracker.Snapshot(); got.Status != session.StatusEnded || got.TurnCount != 1 {
		t.Fatalf("session = %+v, want ended after one turn", got)
	}
	entries, err := os.ReadDir(cfg.TTSCacheDir)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("scratch dir has %d files after cleanup, want 0", len(entries))
	}
}

func TestBuildRejectsUnknownProvider(t *testing.T) {
	cfg := headlessConfig(t)
	cfg.LLMProvider = "carrier-pigeon"
	if _, err := Build(context.Background(), cfg, Options{Stdin: strings.NewReader("")}); err == nil {
		t.Fatalf("Build() error = nil, want error")
	}
}

func TestBuildHeadlessEndsCleanlyAtEndOfInput(t *testing.T) {
	cfg := headlessConfig(t)
	var echo bytes.Buffer
	res, err := Build(context.Background(), cfg, Options{
		Stdin: strings.NewReader("晚安\n"),
		Echo:  &echo,
	})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := res.Driver.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v, want nil when input ends", err)
	}
	if err := res.Cleanup(); err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}

	if want := "我聽到你說：晚安。\n"; echo.String() != want {
		t.Fatalf("echo = %q, want %q", echo.String(), want)
	}
	if got := res.Tracker.Snapshot(); got.Status != session.StatusEnded || got.TurnCount != 1 || got.FailedTurns != 0 {
		t.Fatalf("session = %+v, want one completed turn", got)
	}
}
