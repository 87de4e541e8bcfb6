package conversation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ent0n29/talkback/internal/capture"
	"github.com/ent0n29/talkback/internal/llm"
	"github.com/ent0n29/talkback/internal/observability"
	"github.com/ent0n29/talkback/internal/policy"
	"github.com/ent0n29/talkback/internal/protocol"
	"github.com/ent0n29/talkback/internal/reliability"
	"github.com/ent0n29/talkback/internal/session"
)

// Listener produces one transcript per call, "" when nothing usable was
// heard.
type Listener interface {
	Listen(ctx context.Context) string
}

// Speaker is the speech pipeline the driver feeds.
type Speaker interface {
	Submit(text string) bool
	Drain(ctx context.Context) error
	Shutdown(ctx context.Context) error
	MarkTurn(at time.Time)
}

// Config tunes the loop.
type Config struct {
	ExitKeywords   []string
	SentenceBreaks string
	// Echo receives the visible reply text as it streams. Nil discards it.
	Echo io.Writer
	// CaptureBackoff and CaptureBackoffCap bound the wait after
	// consecutive input device failures.
	CaptureBackoff    time.Duration
	CaptureBackoffCap time.Duration
}

// Deps are the collaborators of a Driver. Only Listener, Streamer, Speaker
// and History are required.
type Deps struct {
	Listener Listener
	Streamer llm.ChatStreamer
	Speaker  Speaker
	History  *History
	Tracker  *session.Tracker
	Metrics  *observability.Metrics
	Sink     protocol.Sink
	Redactor policy.Redactor
}

type Driver struct {
	cfg      Config
	listener Listener
	streamer llm.ChatStreamer
	speaker  Speaker
	history  *History
	tracker  *session.Tracker
	metrics  *observability.Metrics
	sink     protocol.Sink
	redactor policy.Redactor
	echo     io.Writer
	streak   reliability.FailureStreak
}

func NewDriver(cfg Config, deps Deps) (*Driver, error) {
	if deps.Listener == nil || deps.Streamer == nil || deps.Speaker == nil || deps.History == nil {
		return nil, errors.New("listener, streamer, speaker and history are required")
	}
	if len(cfg.ExitKeywords) == 0 {
		cfg.ExitKeywords = DefaultExitKeywords
	}
	if cfg.CaptureBackoff <= 0 {
		cfg.CaptureBackoff = 500 * time.Millisecond
	}
	if cfg.CaptureBackoffCap <= 0 {
		cfg.CaptureBackoffCap = 10 * time.Second
	}
	tracker := deps.Tracker
	if tracker == nil {
		tracker = session.NewTracker()
	}
	echo := cfg.Echo
	if echo == nil {
		echo = io.Discard
	}
	return &Driver{
		cfg:      cfg,
		listener: deps.Listener,
		streamer: deps.Streamer,
		speaker:  deps.Speaker,
		history:  deps.History,
		tracker:  tracker,
		metrics:  deps.Metrics,
		sink:     protocol.OrNop(deps.Sink),
		redactor: deps.Redactor,
		echo:     echo,
		streak:   reliability.FailureStreak{Base: cfg.CaptureBackoff, Cap: cfg.CaptureBackoffCap},
	}, nil
}

// Run loops until an exit keyword is heard or the input closes (nil), or
// ctx ends (ctx.Err()). Capture is never armed while speech is queued or
// playing.
func (d *Driver) Run(ctx context.Context) error {
	sessionID := d.tracker.ID()
	log.Info().Str("session_id", sessionID).Msg("conversation started")
	for {
		if err := d.speaker.Drain(ctx); err != nil {
			return err
		}
		d.tracker.SetPhase(session.PhaseListening)

		transcript, err := d.listen(ctx)
		if err != nil {
			return err
		}
		if strings.TrimSpace(transcript) == "" {
			if errors.Is(d.lastListenErr(), capture.ErrInputClosed) {
				log.Info().Str("session_id", sessionID).Msg("input closed")
				return d.finish(ctx)
			}
			if err := d.backoffAfterCapture(ctx); err != nil {
				return err
			}
			continue
		}
		d.streak.Success()

		if IsExit(transcript, d.cfg.ExitKeywords) {
			log.Info().Str("session_id", sessionID).Msg("exit keyword heard")
			return d.finish(ctx)
		}
		d.Turn(ctx, transcript)
	}
}

func (d *Driver) listen(ctx context.Context) (string, error) {
	result := make(chan string, 1)
	go func() { result <- d.listener.Listen(ctx) }()
	select {
	case text := <-result:
		return text, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// lastListenErr is the cause of the previous empty transcript, when the
// listener reports one.
func (d *Driver) lastListenErr() error {
	if reporter, ok := d.listener.(interface{ LastErr() error }); ok {
		return reporter.LastErr()
	}
	return nil
}

// backoffAfterCapture sleeps after repeated input device failures so a
// missing microphone does not spin the loop.
func (d *Driver) backoffAfterCapture(ctx context.Context) error {
	if !errors.Is(d.lastListenErr(), capture.ErrDevice) {
		d.streak.Success()
		return nil
	}
	wait := d.streak.Failure()
	if wait <= 0 {
		return nil
	}
	log.Warn().Dur("wait", wait).Int("failures", d.streak.Count()).Msg("input device failing; backing off")
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (d *Driver) finish(ctx context.Context) error {
	if err := d.speaker.Drain(ctx); err != nil {
		return err
	}
	if err := d.speaker.Shutdown(ctx); err != nil {
		return err
	}
	ended := d.tracker.End()
	d.sink.Publish(protocol.SystemEvent{
		Type:      protocol.TypeSystemEvent,
		SessionID: ended.ID,
		Code:      "session_ended",
		Detail:    fmt.Sprintf("%d turns", ended.TurnCount),
	})
	log.Info().Str("session_id", ended.ID).Int("turns", ended.TurnCount).Msg("conversation ended")
	return nil
}

// Turn streams one assistant reply to transcript, echoing visible text and
// handing each sentence to the speaker as soon as it is complete. It does
// not wait for playback.
func (d *Driver) Turn(ctx context.Context, transcript string) {
	started := time.Now()
	sessionID := d.tracker.ID()
	turnID := d.tracker.StartTurn()
	d.speaker.MarkTurn(started)

	d.sink.Publish(protocol.Transcript{
		Type:      protocol.TypeTranscript,
		SessionID: sessionID,
		TurnID:    turnID,
		Text:      transcript,
		TSMs:      started.UnixMilli(),
	})
	log.Info().Str("turn_id", turnID).Str("text", d.redactor.Apply(transcript)).Msg("user said")

	d.history.Append(llm.RoleUser, transcript)

	var (
		reply     strings.Builder
		filter    ThinkFilter
		segmenter = NewSegmenter(d.cfg.SentenceBreaks)
		sentences int
		streamErr error
	)
	emit := func(text string) {
		if text == "" {
			return
		}
		reply.WriteString(text)
		_, _ = io.WriteString(d.echo, text)
		d.sink.Publish(protocol.AssistantTextDelta{
			Type:      protocol.TypeAssistantTextDelta,
			SessionID: sessionID,
			TurnID:    turnID,
			TextDelta: text,
		})
		if sentence, ok := segmenter.Push(text); ok && d.speaker.Submit(sentence) {
			sentences++
		}
	}

	stream, err := d.streamer.Stream(ctx, d.history.Messages())
	if err != nil {
		streamErr = err
	} else {
		firstToken := true
		for {
			tok, err := stream.Next()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				streamErr = err
				break
			}
			if firstToken {
				firstToken = false
				d.metrics.ObserveStage(observability.StageFirstToken, time.Since(started))
			}
			emit(filter.Consume(tok))
		}
		_ = stream.Close()
	}

	emit(filter.Finalize())
	if d.speaker.Submit(segmenter.Flush()) {
		sentences++
	}
	if reply.Len() > 0 {
		_, _ = io.WriteString(d.echo, "\n")
	}

	full := reply.String()
	if full != "" {
		d.history.Append(llm.RoleAssistant, full)
	}
	d.metrics.ObserveStage(observability.StageReply, time.Since(started))

	reason := "completed"
	switch {
	case streamErr != nil && ctx.Err() != nil:
		reason = "cancelled"
		d.metrics.IncTurn(reason)
	case streamErr != nil:
		reason = "stream_error"
		d.reportStreamError(sessionID, turnID, streamErr)
	case full == "":
		reason = "empty_reply"
		d.metrics.IncTurn(reason)
	default:
		d.metrics.IncTurn("ok")
	}
	d.tracker.EndTurn(turnID, streamErr != nil)
	d.sink.Publish(protocol.AssistantTurnEnd{
		Type:      protocol.TypeAssistantTurnEnd,
		SessionID: sessionID,
		TurnID:    turnID,
		Reason:    reason,
		Sentences: sentences,
	})
	log.Debug().
		Str("turn_id", turnID).
		Str("reason", reason).
		Int("sentences", sentences).
		Dur("elapsed", time.Since(started)).
		Msg("assistant turn finished")
}

func (d *Driver) reportStreamError(sessionID, turnID string, err error) {
	status := llm.StatusCode(err)
	code := "stream"
	if status > 0 {
		code = strconv.Itoa(status)
	}
	retryable := reliability.IsRetryableHTTPStatus(status)
	d.metrics.IncTurn("stream_error")
	d.metrics.IncProviderError(d.streamer.Name(), code)
	log.Error().Err(err).Str("turn_id", turnID).Int("status", status).Bool("retryable", retryable).Msg("reply stream failed")
	d.sink.Publish(protocol.ErrorEvent{
		Type:      protocol.TypeErrorEvent,
		SessionID: sessionID,
		Code:      "model_stream_error",
		Source:    d.streamer.Name(),
		Retryable: retryable,
		Detail:    err.Error(),
	})
}
