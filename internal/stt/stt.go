// Package stt turns captured speech into text.
package stt

import (
	"context"
	"errors"
	"strings"

	"github.com/ent0n29/talkback/internal/audio"
)

// ErrTranscription wraps every backend failure.
var ErrTranscription = errors.New("transcription failed")

// Segment is one recognised span of speech. Start and End are seconds from
// the beginning of the submitted audio; backends that do not report timing
// leave them zero.
type Segment struct {
	Text  string
	Start float64
	End   float64
}

// Transcriber converts a mono waveform (normalised to [-1, 1]) into ordered
// text segments.
type Transcriber interface {
	Transcribe(ctx context.Context, samples []float32, sampleRate int, language string) ([]Segment, error)
	Name() string
	Close() error
}

// Join concatenates segment texts in order.
func Join(segments []Segment) string {
	var b strings.Builder
	for _, s := range segments {
		b.WriteString(s.Text)
	}
	return b.String()
}

func encodeWAV(samples []float32, sampleRate int) ([]byte, error) {
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	return audio.EncodeWAV(audio.Clip{
		Samples:    audio.Float32ToInt16(samples),
		SampleRate: sampleRate,
		Channels:   1,
	})
}
