package playback

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ent0n29/talkback/internal/audio"
)

// Null decodes each file and waits for its duration without touching a
// device. TimeScale shortens the wait (tests use a small value).
type Null struct {
	TimeScale float64
	// FailPath, when set and returning true, makes Play fail with ErrDevice.
	FailPath func(path string) bool

	playing atomic.Bool

	mu     sync.Mutex
	stop   chan struct{}
	played []string
}

func NewNull() *Null {
	return &Null{TimeScale: 1}
}

func (n *Null) Name() string { return "null" }

func (n *Null) Playing() bool { return n.playing.Load() }

func (n *Null) Play(ctx context.Context, path string) error {
	if n.FailPath != nil && n.FailPath(path) {
		return ErrDevice
	}
	clip, err := audio.ReadWAVFile(path)
	if err != nil {
		return err
	}

	stop := make(chan struct{})
	n.mu.Lock()
	n.stop = stop
	n.mu.Unlock()

	n.playing.Store(true)
	defer n.playing.Store(false)

	d := time.Duration(float64(clip.Duration()) * n.TimeScale)
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-stop:
		return ErrStopped
	case <-timer.C:
	}

	n.mu.Lock()
	n.played = append(n.played, path)
	n.mu.Unlock()
	return nil
}

func (n *Null) Stop() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.stop != nil {
		close(n.stop)
		n.stop = nil
	}
}

func (n *Null) Close() error {
	n.Stop()
	return nil
}

// Played lists completed files in playback order.
func (n *Null) Played() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.played...)
}
