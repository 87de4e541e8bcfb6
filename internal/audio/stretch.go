package audio

import (
	"errors"
	"time"
)

// ErrInvalidStretch is returned for non-positive speed factors or chunk sizes.
var ErrInvalidStretch = errors.New("invalid stretch parameters")

// StretchOptions configures Speedup.
type StretchOptions struct {
	Speed     float64
	Chunk     time.Duration
	Crossfade time.Duration
}

// DefaultStretchOptions are the playback settings used for synthesized speech.
func DefaultStretchOptions() StretchOptions {
	return StretchOptions{
		Speed:     1.6,
		Chunk:     150 * time.Millisecond,
		Crossfade: 25 * time.Millisecond,
	}
}

// Speedup shortens a clip by dropping a slice from every window and
// crossfading the joins, which keeps pitch intact. Each window is
// Chunk plus the removed span; the final window is kept whole.
// Clips no longer than one window, and speeds at or below 1, are returned
// unchanged.
func Speedup(c Clip, opts StretchOptions) (Clip, error) {
	if opts.Speed <= 0 || opts.Chunk <= 0 || opts.Crossfade < 0 {
		return Clip{}, ErrInvalidStretch
	}
	if opts.Speed <= 1 || c.SampleRate <= 0 {
		return c, nil
	}
	channels := c.Channels
	if channels <= 0 {
		channels = 1
	}

	atk := 1.0 / opts.Speed
	chunkMS := float64(opts.Chunk.Milliseconds())
	var removeMS float64
	if opts.Speed < 2.0 {
		removeMS = float64(int(chunkMS*(1-atk)/atk + 1e-9))
	} else {
		removeMS = chunkMS
		chunkMS = float64(int(atk * chunkMS / (1 - atk)))
	}
	crossfadeMS := float64(opts.Crossfade.Milliseconds())
	if crossfadeMS > removeMS-1 {
		crossfadeMS = removeMS - 1
	}
	if crossfadeMS < 0 {
		crossfadeMS = 0
	}

	toFrames := func(ms float64) int { return int(ms * float64(c.SampleRate) / 1000) }
	window := toFrames(chunkMS + removeMS)
	drop := toFrames(removeMS - crossfadeMS)
	fade := toFrames(crossfadeMS)
	if window <= 0 {
		return c, nil
	}

	frames := len(c.Samples) / channels
	if frames <= window {
		return c, nil
	}

	var chunks [][]int16
	for start := 0; start < frames; start += window {
		end := start + window
		if end > frames {
			end = frames
		}
		chunks = append(chunks, c.Samples[start*channels:end*channels])
	}

	last := chunks[len(chunks)-1]
	out := make([]int16, 0, len(c.Samples))
	out = append(out, chunks[0][:(window-drop)*channels]...)
	for _, ch := range chunks[1 : len(chunks)-1] {
		out = appendCrossfade(out, ch[:(window-drop)*channels], fade, channels)
	}
	out = append(out, last...)

	return Clip{Samples: out, SampleRate: c.SampleRate, Channels: channels}, nil
}

// appendCrossfade joins next onto out, overlapping fade frames with a linear
// gain ramp.
func appendCrossfade(out, next []int16, fade, channels int) []int16 {
	outFrames := len(out) / channels
	nextFrames := len(next) / channels
	if fade > outFrames {
		fade = outFrames
	}
	if fade > nextFrames {
		fade = nextFrames
	}
	if fade <= 0 {
		return append(out, next...)
	}
	base := (outFrames - fade) * channels
	for i := 0; i < fade; i++ {
		in := float64(i) / float64(fade)
		for ch := 0; ch < channels; ch++ {
			a := float64(out[base+i*channels+ch]) * (1 - in)
			b := float64(next[i*channels+ch]) * in
			out[base+i*channels+ch] = clip16(a + b)
		}
	}
	return append(out, next[fade*channels:]...)
}
