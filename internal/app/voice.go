package app

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/ent0n29/talkback/internal/audio"
	"github.com/ent0n29/talkback/internal/capture"
	"github.com/ent0n29/talkback/internal/config"
	"github.com/ent0n29/talkback/internal/playback"
	"github.com/ent0n29/talkback/internal/stt"
	"github.com/ent0n29/talkback/internal/tts"
)

// voiceSetup holds the audio-facing backends resolved from config.
type voiceSetup struct {
	transcriber stt.Transcriber
	synthesizer tts.Synthesizer
	renderer    *tts.Renderer
	channel     playback.Channel
	source      capture.FrameSource
	headless    bool
	detail      string
	cleanup     func() error
}

func resolveVoice(cfg config.Config) (voiceSetup, error) {
	transcriber, err := stt.New(stt.Options{
		Provider: cfg.STTProvider,
		Language: cfg.STTLanguage,
		Whisper: stt.WhisperConfig{
			ServerPath: cfg.LocalWhisperServerPath,
			CLIPath:    cfg.LocalWhisperCLI,
			ModelPath:  cfg.LocalWhisperModelPath,
			Threads:    cfg.LocalWhisperThreads,
			BeamSize:   cfg.LocalWhisperBeamSize,
			BestOf:     cfg.LocalWhisperBestOf,
		},
		OpenAI: stt.OpenAIConfig{
			APIKey:  cfg.LLMAPIKey,
			BaseURL: cfg.LLMBaseURL,
			Model:   cfg.STTModel,
		},
	})
	if err != nil {
		return voiceSetup{}, fmt.Errorf("transcription backend init failed: %w", err)
	}

	synthesizer, err := tts.New(tts.Options{
		Provider: cfg.TTSProvider,
		Kokoro: tts.KokoroConfig{
			Python:       cfg.LocalKokoroPython,
			WorkerScript: cfg.LocalKokoroWorkerScript,
			Voice:        cfg.LocalKokoroVoice,
			LangCode:     cfg.LocalKokoroLangCode,
		},
		OpenAI: tts.OpenAIConfig{
			APIKey:  cfg.LLMAPIKey,
			BaseURL: cfg.LLMBaseURL,
			Model:   cfg.TTSModel,
			Voice:   cfg.TTSVoice,
		},
	})
	if err != nil {
		_ = transcriber.Close()
		return voiceSetup{}, fmt.Errorf("speech backend init failed: %w", err)
	}

	closeBackends := func() error {
		return errors.Join(transcriber.Close(), synthesizer.Close())
	}

	renderer, err := tts.NewRenderer(synthesizer, cfg.TTSCacheDir, cfg.TTSLocale, audio.StretchOptions{
		Speed:     cfg.PlaybackSpeed,
		Chunk:     cfg.StretchChunk,
		Crossfade: cfg.StretchCrossfade,
	})
	if err != nil {
		_ = closeBackends()
		return voiceSetup{}, err
	}

	channel, err := playback.New(playback.Options{
		Provider:   cfg.PlaybackProvider,
		SampleRate: cfg.PlaybackSampleRate,
		Channels:   cfg.PlaybackChannels,
	})
	if err != nil {
		_ = closeBackends()
		return voiceSetup{}, fmt.Errorf("playback init failed: %w", err)
	}

	// The null playback provider implies a headless run: typed lines replace
	// the microphone.
	headless := channel.Name() == "null"
	var source capture.FrameSource
	if headless {
		log.Warn().Msg("headless mode: reading turns from stdin instead of the microphone")
	} else {
		source = capture.NewPortAudioSource(cfg.CaptureSampleRate, cfg.CaptureFrameSamples)
	}

	return voiceSetup{
		transcriber: transcriber,
		synthesizer: synthesizer,
		renderer:    renderer,
		channel:     channel,
		source:      source,
		headless:    headless,
		detail:      fmt.Sprintf("%s + %s -> %s", transcriber.Name(), synthesizer.Name(), channel.Name()),
		cleanup: func() error {
			return errors.Join(channel.Close(), closeBackends())
		},
	}, nil
}
