// Package voice turns reply sentences into speech: synthesis runs on a
// bounded pool while a single goroutine plays results in submission order.
package voice

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"github.com/ent0n29/talkback/internal/observability"
	"github.com/ent0n29/talkback/internal/playback"
	"github.com/ent0n29/talkback/internal/protocol"
)

// DefaultWorkers bounds concurrent synthesis.
const DefaultWorkers = 8

// ErrClosed is returned by Shutdown after the queue already stopped.
var ErrClosed = errors.New("speech queue closed")

// Renderer produces a playable file for one utterance.
type Renderer interface {
	Render(ctx context.Context, seq int, text string) (string, error)
}

// Utterance is one sentence of assistant reply queued for speech.
type Utterance struct {
	Seq  int
	Text string
}

// State is the pipeline busy flag.
type State string

const (
	StateIdle State = "idle"
	StateBusy State = "busy"
)

type job struct {
	utt  Utterance
	stop bool
	done chan struct{}

	// Guarded by Queue.mu.
	resolved bool
	path     string
	err      error
}

// Options configures a Queue.
type Options struct {
	Workers   int
	Metrics   *observability.Metrics
	Sink      protocol.Sink
	SessionID string
}

// Queue is the ordered speech pipeline. Submit never blocks; playback
// order equals submission order regardless of synthesis completion order.
type Queue struct {
	renderer Renderer
	channel  playback.Channel
	sem      *semaphore.Weighted
	metrics  *observability.Metrics
	sink     protocol.Sink
	session  string

	ctx    context.Context
	cancel context.CancelFunc
	exited chan struct{}

	mu        sync.Mutex
	cond      *sync.Cond
	pending   []*job
	current   *job
	nextSeq   int
	closed    bool
	aborted   bool
	state     State
	turnStart time.Time
}

func NewQueue(renderer Renderer, channel playback.Channel, opts Options) *Queue {
	workers := opts.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		renderer: renderer,
		channel:  channel,
		sem:      semaphore.NewWeighted(int64(workers)),
		metrics:  opts.Metrics,
		sink:     protocol.OrNop(opts.Sink),
		session:  opts.SessionID,
		ctx:      ctx,
		cancel:   cancel,
		exited:   make(chan struct{}),
		state:    StateIdle,
	}
	q.cond = sync.NewCond(&q.mu)
	go q.run()
	return q
}

// Submit enqueues text for synthesis and playback. Text of at most one
// character after trimming is dropped, as is anything submitted after
// Shutdown or Abort.
func (q *Queue) Submit(text string) bool {
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) <= 1 {
		q.metrics.IncUtterance("too_short")
		return false
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		q.metrics.IncUtterance("closed")
		return false
	}
	j := &job{utt: Utterance{Seq: q.nextSeq, Text: text}, done: make(chan struct{})}
	q.nextSeq++
	q.pending = append(q.pending, j)
	q.setStateLocked(StateBusy)
	q.cond.Broadcast()
	q.mu.Unlock()

	go q.synthesize(j)

	q.sink.Publish(protocol.UtteranceEvent{
		Type:      protocol.TypeUtteranceQueued,
		SessionID: q.session,
		Seq:       j.utt.Seq,
		Text:      text,
		TSMs:      time.Now().UnixMilli(),
	})
	return true
}

// MarkTurn records when the current turn's transcript arrived so the first
// utterance played afterwards reports first-audio latency.
func (q *Queue) MarkTurn(at time.Time) {
	q.mu.Lock()
	q.turnStart = at
	q.mu.Unlock()
}

func (q *Queue) synthesize(j *job) {
	defer close(j.done)

	var (
		path string
		err  error
	)
	if err = q.sem.Acquire(q.ctx, 1); err == nil {
		started := time.Now()
		path, err = q.renderer.Render(q.ctx, j.utt.Seq, j.utt.Text)
		q.sem.Release(1)
		if err == nil {
			q.metrics.ObserveSynthesis(time.Since(started))
		}
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.aborted && path != "" {
		removeArtifact(path)
		path = ""
	}
	j.resolved = true
	j.path = path
	j.err = err
}

func (q *Queue) run() {
	defer close(q.exited)
	for {
		q.mu.Lock()
		for len(q.pending) == 0 && !q.aborted {
			q.cond.Wait()
		}
		if q.aborted {
			q.finishLocked()
			q.mu.Unlock()
			return
		}
		j := q.pending[0]
		q.pending = q.pending[1:]
		if j.stop {
			q.finishLocked()
			q.mu.Unlock()
			return
		}
		q.current = j
		q.metrics.SetQueueDepth(len(q.pending))
		q.mu.Unlock()

		q.playOne(j)

		q.mu.Lock()
		q.current = nil
		if len(q.pending) == 0 {
			q.setStateLocked(StateIdle)
		}
		q.cond.Broadcast()
		q.mu.Unlock()
	}
}

func (q *Queue) finishLocked() {
	q.current = nil
	q.pending = nil
	q.setStateLocked(StateIdle)
	q.cond.Broadcast()
}

// playOne waits for this job's synthesis only, plays the artifact if there
// is one and always removes it afterwards.
func (q *Queue) playOne(j *job) {
	select {
	case <-j.done:
	case <-q.ctx.Done():
		q.mu.Lock()
		if j.resolved && j.path != "" {
			removeArtifact(j.path)
			j.path = ""
		}
		q.mu.Unlock()
		return
	}

	q.mu.Lock()
	path, err := j.path, j.err
	turnStart := q.turnStart
	q.turnStart = time.Time{}
	q.mu.Unlock()

	if err != nil || path == "" {
		if !errors.Is(err, context.Canceled) {
			log.Warn().Err(err).Int("seq", j.utt.Seq).Msg("synthesis failed; skipping utterance")
		}
		q.metrics.IncUtterance("synthesis_failed")
		q.publishDropped(j.utt.Seq, "synthesis_failed")
		return
	}
	defer removeArtifact(path)

	if !turnStart.IsZero() {
		q.metrics.ObserveFirstAudioLatency(time.Since(turnStart))
	}
	if err := q.channel.Play(q.ctx, path); err != nil {
		if !errors.Is(err, playback.ErrStopped) && !errors.Is(err, context.Canceled) {
			log.Warn().Err(err).Int("seq", j.utt.Seq).Msg("playback failed")
		}
		q.metrics.IncUtterance("playback_failed")
		q.publishDropped(j.utt.Seq, "playback_failed")
		return
	}
	q.metrics.IncUtterance("played")
	q.sink.Publish(protocol.UtteranceEvent{
		Type:      protocol.TypeUtterancePlayed,
		SessionID: q.session,
		Seq:       j.utt.Seq,
		TSMs:      time.Now().UnixMilli(),
	})
}

func (q *Queue) publishDropped(seq int, reason string) {
	q.sink.Publish(protocol.UtteranceEvent{
		Type:      protocol.TypeUtteranceDropped,
		SessionID: q.session,
		Seq:       seq,
		Reason:    reason,
		TSMs:      time.Now().UnixMilli(),
	})
}

func (q *Queue) setStateLocked(s State) {
	if q.state == s {
		return
	}
	q.state = s
	q.metrics.SetBusy(s == StateBusy)
	q.metrics.SetQueueDepth(len(q.pending))
	q.sink.Publish(protocol.PipelineState{
		Type:      protocol.TypePipelineState,
		SessionID: q.session,
		State:     string(s),
		Pending:   len(q.pending),
		TSMs:      time.Now().UnixMilli(),
	})
}

func (q *Queue) drainedLocked() bool {
	return len(q.pending) == 0 && q.current == nil && !q.channel.Playing()
}

// Drain blocks until every submitted utterance has been played or skipped
// and the output channel is silent. It returns ctx's error if ctx ends first.
func (q *Queue) Drain(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		q.mu.Lock()
		q.cond.Broadcast()
		q.mu.Unlock()
	})
	defer stop()

	q.mu.Lock()
	defer q.mu.Unlock()
	for !q.drainedLocked() {
		if err := ctx.Err(); err != nil {
			return err
		}
		q.cond.Wait()
	}
	return nil
}

// Shutdown stops accepting work, lets everything submitted so far play and
// waits for the playback goroutine to exit.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		done := make(chan struct{})
		close(done)
		q.pending = append(q.pending, &job{stop: true, done: done, resolved: true})
		q.cond.Broadcast()
	}
	q.mu.Unlock()

	select {
	case <-q.exited:
		q.cancel()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Abort is the interrupt path: in-flight synthesis is cancelled, the
// channel is stopped and pending utterances are discarded with their files.
func (q *Queue) Abort() {
	q.mu.Lock()
	if q.aborted {
		q.mu.Unlock()
		return
	}
	q.aborted = true
	q.closed = true
	discarded := 0
	for _, j := range q.pending {
		if j.stop {
			continue
		}
		discarded++
		if j.resolved && j.path != "" {
			removeArtifact(j.path)
			j.path = ""
		}
	}
	q.pending = nil
	q.cond.Broadcast()
	q.mu.Unlock()

	q.cancel()
	q.channel.Stop()
	if discarded > 0 {
		log.Info().Int("discarded", discarded).Msg("speech queue aborted")
	}
}

// Done is closed once the playback goroutine has exited.
func (q *Queue) Done() <-chan struct{} { return q.exited }

func (q *Queue) State() State {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state
}

func (q *Queue) Busy() bool { return q.State() == StateBusy }

// Pending counts utterances not yet finished, including the one playing.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.pending)
	if n > 0 && q.pending[n-1].stop {
		n--
	}
	if q.current != nil {
		n++
	}
	return n
}

func removeArtifact(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Debug().Err(err).Str("path", path).Msg("remove speech artifact")
	}
}
