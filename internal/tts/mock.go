package tts

import (
	"context"
	"fmt"
	"math"
	"time"
	"unicode/utf8"

	"github.com/ent0n29/talkback/internal/audio"
)

// Mock synthesizes a quiet tone whose length follows the text length.
// Hooks let tests inject latency and failures.
type Mock struct {
	SampleRate int
	PerRune    time.Duration
	// Delay, when set, is waited before returning (honouring ctx).
	Delay func(text string) time.Duration
	// Fail, when set and returning true, makes the call fail.
	Fail func(text string) bool
}

func NewMock() *Mock {
	return &Mock{SampleRate: 24000, PerRune: 120 * time.Millisecond}
}

func (m *Mock) Name() string { return "mock" }

func (m *Mock) Close() error { return nil }

func (m *Mock) Synthesize(ctx context.Context, text, _ string) (audio.Clip, error) {
	if m.Delay != nil {
		if d := m.Delay(text); d > 0 {
			timer := time.NewTimer(d)
			select {
			case <-ctx.Done():
				timer.Stop()
				return audio.Clip{}, ctx.Err()
			case <-timer.C:
			}
		}
	}
	if m.Fail != nil && m.Fail(text) {
		return audio.Clip{}, fmt.Errorf("%w: mock failure for %q", ErrSynthesis, text)
	}

	rate := m.SampleRate
	if rate <= 0 {
		rate = 24000
	}
	d := time.Duration(utf8.RuneCountInString(text)) * m.PerRune
	n := int(int64(rate) * int64(d) / int64(time.Second))
	samples := make([]int16, n)
	for i := range samples {
		samples[i] = int16(800 * math.Sin(2*math.Pi*220*float64(i)/float64(rate)))
	}
	return audio.Clip{Samples: samples, SampleRate: rate, Channels: 1}, nil
}
