package voice

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ent0n29/talkback/internal/audio"
	"github.com/ent0n29/talkback/internal/playback"
	"github.com/ent0n29/talkback/internal/protocol"
	"github.com/ent0n29/talkback/internal/tts"
)

type fixture struct {
	dir      string
	synth    *tts.Mock
	channel  *playback.Null
	queue    *Queue
	recorder *eventRecorder
}

type eventRecorder struct {
	mu     sync.Mutex
	events []any
}

func (r *eventRecorder) Publish(evt any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *eventRecorder) count(typ protocol.MessageType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if u, ok := e.(protocol.UtteranceEvent); ok && u.Type == typ {
			n++
		}
	}
	return n
}

func newFixture(t *testing.T, workers int) *fixture {
	t.Helper()
	f := &fixture{
		dir:      t.TempDir(),
		synth:    tts.NewMock(),
		channel:  playback.NewNull(),
		recorder: &eventRecorder{},
	}
	f.synth.PerRune = 10 * time.Millisecond
	f.channel.TimeScale = 0.05

	renderer, err := tts.NewRenderer(f.synth, f.dir, "zh-tw", audio.DefaultStretchOptions())
	if err != nil {
		t.Fatalf("NewRenderer() error = %v", err)
	}
	f.queue = NewQueue(renderer, f.channel, Options{Workers: workers, Sink: f.recorder, SessionID: "s1"})
	t.Cleanup(f.queue.Abort)
	return f
}

func (f *fixture) playedSeqs(t *testing.T) []int {
	t.Helper()
	var out []int
	for _, p := range f.channel.Played() {
		var seq int
		if _, err := fmt.Sscanf(filepath.Base(p), "fast_%d.wav", &seq); err != nil {
			t.Fatalf("unexpected artifact name %q", p)
		}
		out = append(out, seq)
	}
	return out
}

func drain(t *testing.T, q *Queue) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := q.Drain(ctx); err != nil {
		t.Fatalf("Drain() error = %v", err)
	}
}

func TestQueuePlaysInSubmissionOrderDespiteSynthesisOrder(t *testing.T) {
	f := newFixture(t, 4)
	rng := rand.New(rand.NewSource(7))
	delays := map[string]time.Duration{}
	var mu sync.Mutex
	texts := make([]string, 8)
	for i := range texts {
		texts[i] = fmt.Sprintf("第%d句話", i)
		delays[texts[i]] = time.Duration(rng.Intn(80)) * time.Millisecond
	}
	f.synth.Delay = func(text string) time.Duration {
		mu.Lock()
		defer mu.Unlock()
		return delays[text]
	}

	for _, text := range texts {
		if !f.queue.Submit(text) {
			t.Fatalf("Submit(%q) = false, want true", text)
		}
	}
	drain(t, f.queue)
	if f.channel.Playing() {
		t.Fatalf("Playing() = true after Drain, want false")
	}

	got := f.playedSeqs(t)
	if len(got) != len(texts) {
		t.Fatalf("played %d utterances, want %d", len(got), len(texts))
	}
	for i, seq := range got {
		if seq != i {
			t.Fatalf("played order = %v, want 0..%d ascending", got, len(texts)-1)
		}
	}
	if f.queue.Busy() {
		t.Fatalf("Busy() = true after Drain")
	}
}

func TestQueueDeletesArtifactsAfterPlayback(t *testing.T) {
	f := newFixture(t, 2)
	f.queue.Submit("你好，")
	f.queue.Submit("世界")
	drain(t, f.queue)

	entries, err := os.ReadDir(f.dir)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("scratch dir has %d files after drain, want 0", len(entries))
	}
}

func TestQueueDropsShortText(t *testing.T) {
	f := newFixture(t, 2)
	for _, text := range []string{"", "  ", "好", " 。 "} {
		if f.queue.Submit(text) {
			t.Fatalf("Submit(%q) = true, want false", text)
		}
	}
	if f.queue.Busy() {
		t.Fatalf("Busy() = true after only dropped submissions")
	}
}

func TestQueueDrainReturnsImmediatelyWhenIdle(t *testing.T) {
	f := newFixture(t, 2)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := f.queue.Drain(ctx); err != nil {
		t.Fatalf("Drain() on idle queue error = %v", err)
	}
}

func TestQueueDrainHonoursContext(t *testing.T) {
	f := newFixture(t, 2)
	f.synth.Delay = func(string) time.Duration { return 5 * time.Second }
	f.queue.Submit("很慢的一句話")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if err := f.queue.Drain(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Drain() error = %v, want deadline exceeded", err)
	}
	if !f.queue.Busy() {
		t.Fatalf("Busy() = false while synthesis is pending")
	}
}

func TestQueueFailedSynthesisDoesNotBlockLaterUtterances(t *testing.T) {
	f := newFixture(t, 4)
	f.synth.Fail = func(text string) bool { return strings.Contains(text, "壞") }

	f.queue.Submit("第一句。")
	f.queue.Submit("壞掉的句子。")
	f.queue.Submit("第三句。")
	drain(t, f.queue)

	got := f.playedSeqs(t)
	if len(got) != 2 || got[0] != 0 || got[1] != 2 {
		t.Fatalf("played = %v, want [0 2]", got)
	}
	if n := f.recorder.count(protocol.TypeUtteranceDropped); n != 1 {
		t.Fatalf("dropped events = %d, want 1", n)
	}
}

func TestQueueFailedPlaybackDoesNotBlockLaterUtterances(t *testing.T) {
	f := newFixture(t, 2)
	f.channel.FailPath = func(path string) bool { return filepath.Base(path) == "fast_0.wav" }

	f.queue.Submit("第一句。")
	f.queue.Submit("第二句。")
	drain(t, f.queue)

	if got := f.playedSeqs(t); len(got) != 1 || got[0] != 1 {
		t.Fatalf("played = %v, want [1]", got)
	}
}

func TestQueueShutdownFinishesPendingWork(t *testing.T) {
	f := newFixture(t, 2)
	for i := 0; i < 3; i++ {
		f.queue.Submit(fmt.Sprintf("句子%d", i))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := f.queue.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if got := len(f.channel.Played()); got != 3 {
		t.Fatalf("played %d utterances before exit, want 3", got)
	}
	if f.queue.Submit("太晚了") {
		t.Fatalf("Submit() after Shutdown = true, want false")
	}
	if err := f.queue.Drain(ctx); err != nil {
		t.Fatalf("Drain() after Shutdown error = %v", err)
	}
}

func TestQueueAbortDiscardsPendingWork(t *testing.T) {
	f := newFixture(t, 2)
	f.synth.Delay = func(string) time.Duration { return 5 * time.Second }
	for i := 0; i < 4; i++ {
		f.queue.Submit(fmt.Sprintf("句子%d", i))
	}

	f.queue.Abort()
	select {
	case <-f.queue.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("playback goroutine still running after Abort")
	}
	if got := f.queue.Pending(); got != 0 {
		t.Fatalf("Pending() = %d after Abort, want 0", got)
	}
	if len(f.channel.Played()) != 0 {
		t.Fatalf("Played() = %v, want none", f.channel.Played())
	}
	drain(t, f.queue)
}

func TestQueuePublishesPipelineState(t *testing.T) {
	f := newFixture(t, 2)
	f.queue.Submit("你好世界")
	drain(t, f.queue)

	f.recorder.mu.Lock()
	defer f.recorder.mu.Unlock()
	var states []string
	for _, e := range f.recorder.events {
		if s, ok := e.(protocol.PipelineState); ok {
			states = append(states, s.State)
		}
	}
	if len(states) != 2 || states[0] != "busy" || states[1] != "idle" {
		t.Fatalf("pipeline states = %v, want [busy idle]", states)
	}
}
