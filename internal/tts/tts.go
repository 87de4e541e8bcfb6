// Package tts renders assistant sentences into playable audio files.
package tts

import (
	"context"
	"errors"

	"github.com/ent0n29/talkback/internal/audio"
)

// ErrSynthesis wraps every speech synthesis or time-stretch failure.
var ErrSynthesis = errors.New("speech synthesis failed")

// Synthesizer produces audio for text in the given locale (for example
// "zh-tw").
type Synthesizer interface {
	Synthesize(ctx context.Context, text, locale string) (audio.Clip, error)
	Name() string
	Close() error
}
