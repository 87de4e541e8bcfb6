// Package capture listens on the microphone for one spoken utterance and
// returns its transcript.
package capture

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ent0n29/talkback/internal/audio"
	"github.com/ent0n29/talkback/internal/observability"
	"github.com/ent0n29/talkback/internal/policy"
	"github.com/ent0n29/talkback/internal/stt"
)

// Config holds the gate thresholds.
type Config struct {
	Threshold     float64
	SilenceCutoff time.Duration
	SampleRate    int
	MaxUtterance  time.Duration
	Language      string
}

// Gate runs one capture per Listen call.
type Gate struct {
	cfg         Config
	source      FrameSource
	transcriber stt.Transcriber
	metrics     *observability.Metrics
	redactor    policy.Redactor

	// lastErr is the error that made the previous Listen return "", if any.
	lastErr error
}

func NewGate(cfg Config, source FrameSource, transcriber stt.Transcriber, metrics *observability.Metrics, redactor policy.Redactor) *Gate {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	return &Gate{
		cfg:         cfg,
		source:      source,
		transcriber: transcriber,
		metrics:     metrics,
		redactor:    redactor,
	}
}

// Listen blocks until one utterance has been captured and transcribed.
// It returns "" when no speech was heard or on any device or transcription
// failure; failures are logged, never returned. LastErr reports the cause.
func (g *Gate) Listen(ctx context.Context) string {
	g.lastErr = nil
	samples, err := g.record(ctx)
	if err != nil {
		g.fail("device", err)
		return ""
	}
	if len(samples) == 0 {
		g.metrics.IncCapture("silent")
		return ""
	}

	started := time.Now()
	segments, err := g.transcriber.Transcribe(ctx, audio.Int16ToFloat32(samples), g.cfg.SampleRate, g.cfg.Language)
	g.metrics.ObserveStage(observability.StageTranscribe, time.Since(started))
	if err != nil {
		g.fail("transcription", err)
		return ""
	}

	text := strings.TrimSpace(stt.Join(segments))
	if text == "" {
		g.metrics.IncCapture("empty_transcript")
		return ""
	}
	g.metrics.IncCapture("ok")
	log.Debug().
		Str("backend", g.transcriber.Name()).
		Int("segments", len(segments)).
		Str("text", g.redactor.Apply(text)).
		Msg("transcribed utterance")
	return text
}

// LastErr returns the failure behind the previous empty Listen result.
func (g *Gate) LastErr() error { return g.lastErr }

func (g *Gate) fail(outcome string, err error) {
	g.lastErr = err
	if errors.Is(err, context.Canceled) {
		g.metrics.IncCapture("aborted")
		return
	}
	g.metrics.IncCapture(outcome + "_error")
	log.Warn().Err(err).Str("stage", outcome).Msg("capture failed")
}

// record returns the accumulated utterance, or nil when speech never
// started. A cancelled context mid-utterance is an abort: nothing is kept.
func (g *Gate) record(ctx context.Context) ([]int16, error) {
	stream, err := g.source.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	det := NewDetector(g.cfg.Threshold, g.cfg.SilenceCutoff, g.cfg.SampleRate, g.cfg.MaxUtterance)
	var speechAt time.Time
	for det.State() != Done {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		frame, err := stream.ReadFrame()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		prev := det.State()
		if det.Push(frame) == Recording && prev == WaitingForSpeech {
			speechAt = time.Now()
			log.Debug().Msg("speech detected")
		}
	}
	if !det.Heard() {
		return nil, nil
	}
	if !speechAt.IsZero() {
		g.metrics.ObserveStage(observability.StageCapture, time.Since(speechAt))
	}
	return det.Samples(), nil
}
