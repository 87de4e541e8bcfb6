package tts

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ent0n29/talkback/internal/audio"
)

// Renderer turns one sentence into a sped-up WAV file in the scratch
// directory: raw_<seq>.wav from the synthesizer, fast_<seq>.wav after the
// time-stretch, with the raw file removed.
type Renderer struct {
	synth   Synthesizer
	dir     string
	locale  string
	stretch audio.StretchOptions
}

func NewRenderer(synth Synthesizer, dir, locale string, stretch audio.StretchOptions) (*Renderer, error) {
	if synth == nil {
		return nil, errors.New("synthesizer is required")
	}
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("scratch directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create scratch directory: %w", err)
	}
	return &Renderer{synth: synth, dir: dir, locale: locale, stretch: stretch}, nil
}

// Dir returns the scratch directory.
func (r *Renderer) Dir() string { return r.dir }

// Render returns the path of a playable artifact. Every failure is wrapped
// in ErrSynthesis and leaves no files behind.
func (r *Renderer) Render(ctx context.Context, seq int, text string) (string, error) {
	spoken := SanitizeSpeechText(text)
	if spoken == "" {
		return "", fmt.Errorf("%w: nothing speakable in %q", ErrSynthesis, text)
	}

	clip, err := r.synth.Synthesize(ctx, spoken, r.locale)
	if err != nil {
		if errors.Is(err, ErrSynthesis) {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", ErrSynthesis, err)
	}
	if len(clip.Samples) == 0 {
		return "", fmt.Errorf("%w: empty audio", ErrSynthesis)
	}

	rawPath := filepath.Join(r.dir, fmt.Sprintf("raw_%d.wav", seq))
	if err := audio.WriteWAVFile(rawPath, clip); err != nil {
		_ = os.Remove(rawPath)
		return "", fmt.Errorf("%w: %v", ErrSynthesis, err)
	}
	defer os.Remove(rawPath)

	fast, err := r.stretchFile(rawPath)
	if err != nil {
		return "", fmt.Errorf("%w: stretch: %v", ErrSynthesis, err)
	}

	fastPath := filepath.Join(r.dir, fmt.Sprintf("fast_%d.wav", seq))
	if err := audio.WriteWAVFile(fastPath, fast); err != nil {
		_ = os.Remove(fastPath)
		return "", fmt.Errorf("%w: %v", ErrSynthesis, err)
	}
	return fastPath, nil
}

func (r *Renderer) stretchFile(path string) (audio.Clip, error) {
	clip, err := audio.ReadWAVFile(path)
	if err != nil {
		return audio.Clip{}, err
	}
	return audio.Speedup(clip, r.stretch)
}

// Sweep deletes every file left in the scratch directory.
func (r *Renderer) Sweep() error {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	var errs []error
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(r.dir, e.Name())); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
