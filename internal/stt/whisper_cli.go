package stt

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"

	"github.com/ent0n29/talkback/internal/audio"
	"github.com/ent0n29/talkback/internal/localproc"
)

// WhisperCLI runs the whisper.cpp command line tool once per utterance.
type WhisperCLI struct {
	cliPath   string
	modelPath string
	threads   int
	beamSize  int
	bestOf    int
}

func NewWhisperCLI(cfg WhisperConfig) (*WhisperCLI, error) {
	cli := strings.TrimSpace(cfg.CLIPath)
	if cli == "" {
		cli = "whisper-cli"
	}
	cliPath, err := exec.LookPath(cli)
	if err != nil {
		return nil, fmt.Errorf("whisper.cpp CLI not found (%s)", cli)
	}
	modelPath, err := requireModel(cfg.ModelPath)
	if err != nil {
		return nil, err
	}
	beamSize := cfg.BeamSize
	if beamSize <= 0 {
		beamSize = 1
	}
	bestOf := cfg.BestOf
	if bestOf <= 0 {
		bestOf = 1
	}
	return &WhisperCLI{
		cliPath:   cliPath,
		modelPath: modelPath,
		threads:   localproc.AutoThreads(cfg.Threads),
		beamSize:  beamSize,
		bestOf:    bestOf,
	}, nil
}

func (w *WhisperCLI) Name() string { return "whisper-cli" }

func (w *WhisperCLI) Close() error { return nil }

func (w *WhisperCLI) Transcribe(ctx context.Context, samples []float32, sampleRate int, language string) ([]Segment, error) {
	if len(samples) == 0 {
		return nil, nil
	}
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	tmpDir, err := os.MkdirTemp("", "talkback-whisper-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(tmpDir)

	wavPath := filepath.Join(tmpDir, "audio.wav")
	clip := audio.Clip{Samples: audio.Float32ToInt16(samples), SampleRate: sampleRate, Channels: 1}
	if err := audio.WriteWAVFile(wavPath, clip); err != nil {
		return nil, err
	}
	outPrefix := filepath.Join(tmpDir, "out")

	args := []string{
		"-m", w.modelPath,
		"-f", wavPath,
		"-l", languageOrAuto(language),
		"-oj",
		"-of", outPrefix,
		"-nt",
		"-t", strconv.Itoa(w.threads),
		"-bs", strconv.Itoa(w.beamSize),
		"-bo", strconv.Itoa(w.bestOf),
	}

	cmd := exec.CommandContext(ctx, w.cliPath, args...)
	localproc.InjectLibraryEnv(cmd, w.cliPath)
	cmd.Stdout = io.Discard
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, context.Canceled
		}
		detail := strings.TrimSpace(stderr.String())
		// whisper.cpp can be extremely chatty; keep errors readable.
		if len(detail) > 8<<10 {
			detail = strings.TrimSpace(detail[len(detail)-(8<<10):])
		}
		if detail == "" {
			detail = err.Error()
		}
		return nil, fmt.Errorf("%w: whisper.cpp failed: %s", ErrTranscription, detail)
	}

	raw, err := os.ReadFile(outPrefix + ".json")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTranscription, err)
	}
	return parseWhisperCLIJSON(raw)
}

// whisper-cli -oj output; offsets are milliseconds.
type whisperCLIOutput struct {
	Transcription []struct {
		Offsets struct {
			From int64 `json:"from"`
			To   int64 `json:"to"`
		} `json:"offsets"`
		Text string `json:"text"`
	} `json:"transcription"`
}

func parseWhisperCLIJSON(raw []byte) ([]Segment, error) {
	var out whisperCLIOutput
	if err := sonic.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTranscription, err)
	}
	segments := make([]Segment, 0, len(out.Transcription))
	for _, t := range out.Transcription {
		segments = append(segments, Segment{
			Text:  t.Text,
			Start: float64(t.Offsets.From) / 1000,
			End:   float64(t.Offsets.To) / 1000,
		})
	}
	return segments, nil
}

func requireModel(path string) (string, error) {
	modelPath := localproc.AbsFromWD(path)
	if modelPath == "" {
		return "", fmt.Errorf("LOCAL_WHISPER_MODEL_PATH is required")
	}
	if _, err := os.Stat(modelPath); err != nil {
		return "", fmt.Errorf("whisper.cpp model not found: %s", modelPath)
	}
	return modelPath, nil
}
