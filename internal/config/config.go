package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultGroqBaseURL is the OpenAI-compatible endpoint used when LLM_BASE_URL is unset.
const DefaultGroqBaseURL = "https://api.groq.com/openai/v1"

// Config contains all runtime settings for the voice assistant.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string
	AllowAnyOrigin   bool

	LogLevel     string
	LogFormat    string
	LogRedactPII bool

	LLMProvider    string
	LLMAPIKey      string
	LLMBaseURL     string
	LLMModel       string
	LLMTemperature float64
	LLMMaxTokens   int
	SystemPrompt   string

	GeminiAPIKey  string
	GeminiBaseURL string
	GeminiModel   string

	STTProvider string
	STTLanguage string
	STTModel    string

	LocalWhisperCLI        string
	LocalWhisperServerPath string
	LocalWhisperModelPath  string
	LocalWhisperThreads    int
	LocalWhisperBeamSize   int
	LocalWhisperBestOf     int

	CaptureSilenceThreshold float64
	CaptureSilenceDuration  time.Duration
	CaptureFrameSamples     int
	CaptureSampleRate       int
	CaptureMaxUtterance     time.Duration

	TTSProvider string
	TTSLocale   string
	TTSVoice    string
	TTSModel    string

	LocalKokoroPython       string
	LocalKokoroWorkerScript string
	LocalKokoroVoice        string
	LocalKokoroLangCode     string

	PlaybackProvider   string
	PlaybackSpeed      float64
	StretchChunk       time.Duration
	StretchCrossfade   time.Duration
	SynthMaxWorkers    int
	TTSCacheDir        string
	PlaybackSampleRate int
	PlaybackChannels   int

	ExitKeywords   []string
	SentenceBreaks string
}

// Load reads .env files and environment variables and applies safe defaults.
func Load() (Config, error) {
	loadDotEnv(".env.local", ".env")

	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", "127.0.0.1:8080"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "talkback"),
		ShutdownTimeout:  10 * time.Second,
		LogLevel:         envOrDefault("LOG_LEVEL", "info"),
		LogFormat:        envOrDefault("LOG_FORMAT", "console"),
		LogRedactPII:     true,

		LLMProvider: envOrDefault("LLM_PROVIDER", "openai"),
		LLMAPIKey:   firstNonEmpty(stringsTrimSpace("GROQ_API"), stringsTrimSpace("LLM_API_KEY")),
		LLMBaseURL:  envOrDefault("LLM_BASE_URL", DefaultGroqBaseURL),
		LLMModel:    envOrDefault("LLM_MODEL", "moonshotai/kimi-k2-instruct-0905"),
		// Negative means "provider default".
		LLMTemperature: -1,
		LLMMaxTokens:   0,

		GeminiAPIKey:  firstNonEmpty(stringsTrimSpace("GEMINI_API_KEY"), stringsTrimSpace("GOOGLE_API_KEY")),
		GeminiBaseURL: stringsTrimSpace("GEMINI_BASE_URL"),
		GeminiModel:   envOrDefault("GEMINI_MODEL", "gemini-2.5-flash"),

		STTProvider:            envOrDefault("STT_PROVIDER", "auto"),
		STTLanguage:            envOrDefault("STT_LANGUAGE", "zh"),
		STTModel:               envOrDefault("STT_MODEL", "whisper-large-v3-turbo"),
		LocalWhisperCLI:        envOrDefault("LOCAL_WHISPER_CLI", "whisper-cli"),
		LocalWhisperServerPath: envOrDefault("LOCAL_WHISPER_SERVER", "whisper-server"),
		LocalWhisperModelPath:  envOrDefault("LOCAL_WHISPER_MODEL_PATH", ".models/whisper/ggml-base.bin"),
		// 0 means "auto" (picked based on CPU count).
		LocalWhisperThreads:  0,
		LocalWhisperBeamSize: 5,
		LocalWhisperBestOf:   1,

		CaptureSilenceThreshold: 800,
		CaptureSilenceDuration:  1200 * time.Millisecond,
		CaptureFrameSamples:     1024,
		CaptureSampleRate:       16000,
		CaptureMaxUtterance:     60 * time.Second,

		TTSProvider:             envOrDefault("TTS_PROVIDER", "auto"),
		TTSLocale:               envOrDefault("TTS_LOCALE", "zh-tw"),
		TTSVoice:                envOrDefault("TTS_VOICE", "alloy"),
		TTSModel:                envOrDefault("TTS_MODEL", "tts-1"),
		LocalKokoroPython:       envOrDefault("LOCAL_KOKORO_PYTHON", ""),
		LocalKokoroWorkerScript: envOrDefault("LOCAL_KOKORO_WORKER_SCRIPT", "scripts/kokoro_worker.py"),
		LocalKokoroVoice:        envOrDefault("LOCAL_KOKORO_VOICE", "zf_xiaobei"),
		LocalKokoroLangCode:     envOrDefault("LOCAL_KOKORO_LANG_CODE", "z"),

		PlaybackProvider:   envOrDefault("PLAYBACK_PROVIDER", "portaudio"),
		PlaybackSpeed:      1.6,
		StretchChunk:       150 * time.Millisecond,
		StretchCrossfade:   25 * time.Millisecond,
		SynthMaxWorkers:    8,
		TTSCacheDir:        envOrDefault("TTS_CACHE_DIR", "tts_cache"),
		PlaybackSampleRate: 44100,
		PlaybackChannels:   2,

		ExitKeywords:   []string{"exit", "quit", "退出"},
		SentenceBreaks: envOrDefault("SENTENCE_BREAKS", "，。！？\n.!?"),
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.LogRedactPII, err = boolFromEnv("LOG_REDACT_PII", cfg.LogRedactPII)
	if err != nil {
		return Config{}, err
	}
	cfg.LLMTemperature, err = floatFromEnv("LLM_TEMPERATURE", cfg.LLMTemperature)
	if err != nil {
		return Config{}, err
	}
	cfg.LLMMaxTokens, err = intFromEnv("LLM_MAX_TOKENS", cfg.LLMMaxTokens)
	if err != nil {
		return Config{}, err
	}
	cfg.SystemPrompt, err = systemPromptFromEnv()
	if err != nil {
		return Config{}, err
	}

	cfg.LocalWhisperThreads, err = intFromEnv("LOCAL_WHISPER_THREADS", cfg.LocalWhisperThreads)
	if err != nil {
		return Config{}, err
	}
	cfg.LocalWhisperBeamSize, err = intFromEnv("LOCAL_WHISPER_BEAM_SIZE", cfg.LocalWhisperBeamSize)
	if err != nil {
		return Config{}, err
	}
	cfg.LocalWhisperBestOf, err = intFromEnv("LOCAL_WHISPER_BEST_OF", cfg.LocalWhisperBestOf)
	if err != nil {
		return Config{}, err
	}

	cfg.CaptureSilenceThreshold, err = floatFromEnv("CAPTURE_SILENCE_THRESHOLD", cfg.CaptureSilenceThreshold)
	if err != nil {
		return Config{}, err
	}
	cfg.CaptureSilenceDuration, err = durationFromEnv("CAPTURE_SILENCE_DURATION", cfg.CaptureSilenceDuration)
	if err != nil {
		return Config{}, err
	}
	cfg.CaptureFrameSamples, err = intFromEnv("CAPTURE_FRAME_SAMPLES", cfg.CaptureFrameSamples)
	if err != nil {
		return Config{}, err
	}
	cfg.CaptureMaxUtterance, err = durationFromEnv("CAPTURE_MAX_UTTERANCE", cfg.CaptureMaxUtterance)
	if err != nil {
		return Config{}, err
	}

	cfg.PlaybackSpeed, err = floatFromEnv("PLAYBACK_SPEED", cfg.PlaybackSpeed)
	if err != nil {
		return Config{}, err
	}
	cfg.StretchChunk, err = durationFromEnv("STRETCH_CHUNK", cfg.StretchChunk)
	if err != nil {
		return Config{}, err
	}
	cfg.StretchCrossfade, err = durationFromEnv("STRETCH_CROSSFADE", cfg.StretchCrossfade)
	if err != nil {
		return Config{}, err
	}
	cfg.SynthMaxWorkers, err = intFromEnv("SYNTH_MAX_WORKERS", cfg.SynthMaxWorkers)
	if err != nil {
		return Config{}, err
	}
	cfg.ExitKeywords = listFromEnv("EXIT_KEYWORDS", cfg.ExitKeywords)

	if cfg.LLMProvider == "openai" && cfg.LLMAPIKey == "" {
		return Config{}, fmt.Errorf("GROQ_API (or LLM_API_KEY) is required when LLM_PROVIDER=openai")
	}
	if cfg.LLMProvider == "gemini" && cfg.GeminiAPIKey == "" {
		return Config{}, fmt.Errorf("GEMINI_API_KEY is required when LLM_PROVIDER=gemini")
	}
	if cfg.CaptureSilenceThreshold < 0 {
		return Config{}, fmt.Errorf("CAPTURE_SILENCE_THRESHOLD must be >= 0")
	}
	if cfg.CaptureSilenceDuration <= 0 {
		return Config{}, fmt.Errorf("CAPTURE_SILENCE_DURATION must be positive")
	}
	if cfg.CaptureFrameSamples <= 0 {
		return Config{}, fmt.Errorf("CAPTURE_FRAME_SAMPLES must be positive")
	}
	if cfg.CaptureMaxUtterance < 0 {
		return Config{}, fmt.Errorf("CAPTURE_MAX_UTTERANCE must be >= 0")
	}
	if cfg.PlaybackSpeed <= 0 {
		return Config{}, fmt.Errorf("PLAYBACK_SPEED must be positive")
	}
	if cfg.StretchChunk <= 0 || cfg.StretchCrossfade < 0 {
		return Config{}, fmt.Errorf("STRETCH_CHUNK must be positive and STRETCH_CROSSFADE >= 0")
	}
	if cfg.SynthMaxWorkers <= 0 {
		return Config{}, fmt.Errorf("SYNTH_MAX_WORKERS must be positive")
	}
	if strings.TrimSpace(cfg.TTSCacheDir) == "" {
		return Config{}, fmt.Errorf("TTS_CACHE_DIR must not be empty")
	}
	if cfg.SentenceBreaks == "" {
		return Config{}, fmt.Errorf("SENTENCE_BREAKS must not be empty")
	}
	if cfg.LocalWhisperThreads < 0 {
		return Config{}, fmt.Errorf("LOCAL_WHISPER_THREADS must be >= 0")
	}
	if cfg.LocalWhisperBeamSize <= 0 {
		return Config{}, fmt.Errorf("LOCAL_WHISPER_BEAM_SIZE must be positive")
	}
	if cfg.LocalWhisperBestOf <= 0 {
		return Config{}, fmt.Errorf("LOCAL_WHISPER_BEST_OF must be positive")
	}

	return cfg, nil
}

// loadDotEnv loads the first files it finds; variables already present in
// the environment win.
func loadDotEnv(paths ...string) {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		_ = godotenv.Load(p)
	}
}

func systemPromptFromEnv() (string, error) {
	if path := stringsTrimSpace("SYSTEM_PROMPT_FILE"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("SYSTEM_PROMPT_FILE read error: %w", err)
		}
		return strings.TrimSpace(string(raw)), nil
	}
	return envOrDefault("SYSTEM_PROMPT", DefaultSystemPrompt), nil
}

// DefaultSystemPrompt keeps replies short and speakable.
const DefaultSystemPrompt = "你是一位語音助理。請用繁體中文口語回答，句子簡短，不要使用 Markdown、列表或表情符號。"

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func floatFromEnv(key string, fallback float64) (float64, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return f, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}

func listFromEnv(key string, fallback []string) []string {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
