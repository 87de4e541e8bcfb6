package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ent0n29/talkback/internal/protocol"
)

type options struct {
	baseURL string
	turns   int
	timeout time.Duration
	verbose bool
}

type wsEnvelope struct {
	Type      string `json:"type"`
	TurnID    string `json:"turn_id,omitempty"`
	Seq       int    `json:"seq,omitempty"`
	Code      string `json:"code,omitempty"`
	Detail    string `json:"detail,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Text      string `json:"text,omitempty"`
	TextDelta string `json:"text_delta,omitempty"`
	State     string `json:"state,omitempty"`
}

func main() {
	cfg, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "talkwatch: %v\n", err)
		os.Exit(2)
	}
	if err := run(cfg, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "talkwatch: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags(args []string) (options, error) {
	var cfg options
	var timeoutMS int

	fs := flag.NewFlagSet("talkwatch", flag.ContinueOnError)
	fs.StringVar(&cfg.baseURL, "base-url", "http://127.0.0.1:8080", "talkback status server URL")
	fs.IntVar(&cfg.turns, "turns", 0, "stop after this many completed turns (0 = until the session ends)")
	fs.IntVar(&timeoutMS, "timeout-ms", 0, "give up after this many milliseconds (0 = no limit)")
	fs.BoolVar(&cfg.verbose, "verbose", false, "print every event")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	cfg.baseURL = strings.TrimRight(strings.TrimSpace(cfg.baseURL), "/")
	if cfg.baseURL == "" {
		return options{}, fmt.Errorf("base-url is required")
	}
	if cfg.turns < 0 {
		return options{}, fmt.Errorf("turns must be >= 0")
	}
	if timeoutMS > 0 {
		cfg.timeout = time.Duration(timeoutMS) * time.Millisecond
	}
	return cfg, nil
}

func run(cfg options, out io.Writer) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if cfg.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.timeout)
		defer cancel()
	}

	wsURL, err := eventsURL(cfg.baseURL)
	if err != nil {
		return fmt.Errorf("build ws URL: %w", err)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("open websocket: %w", err)
	}
	defer conn.Close()
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	w := newWatcher(time.Now)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				fmt.Fprintf(out, "talkwatch: feed closed: %v\n", err)
			}
			break
		}
		var env wsEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		if cfg.verbose {
			fmt.Fprintf(out, "talkwatch: %s\n", describe(env))
		}
		if done := w.observe(env); done != nil {
			fmt.Fprintf(out, "talkwatch: turn %s reason=%s first_text=%s first_audio=%s\n",
				done.id, done.reason, fmtLatency(done.firstText), fmtLatency(done.firstAudio))
		}
		if env.Type == string(protocol.TypeSystemEvent) && env.Code == "session_ended" {
			break
		}
		if cfg.turns > 0 && len(w.finished) >= cfg.turns {
			break
		}
	}

	fmt.Fprint(out, w.summary())
	return nil
}

func eventsURL(baseURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return "", err
	}
	switch strings.ToLower(u.Scheme) {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported base-url scheme %q", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return "", fmt.Errorf("base-url host is required")
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/v1/events"
	return u.String(), nil
}

func describe(env wsEnvelope) string {
	switch env.Type {
	case string(protocol.TypeTranscript):
		return fmt.Sprintf("transcript turn=%s text=%q", env.TurnID, env.Text)
	case string(protocol.TypeAssistantTextDelta):
		return fmt.Sprintf("delta turn=%s text=%q", env.TurnID, env.TextDelta)
	case string(protocol.TypeUtteranceQueued), string(protocol.TypeUtterancePlayed), string(protocol.TypeUtteranceDropped):
		return fmt.Sprintf("%s seq=%d text=%q reason=%s", env.Type, env.Seq, env.Text, env.Reason)
	case string(protocol.TypePipelineState):
		return fmt.Sprintf("pipeline %s", env.State)
	case string(protocol.TypeErrorEvent), string(protocol.TypeSystemEvent):
		return fmt.Sprintf("%s code=%s detail=%s", env.Type, env.Code, env.Detail)
	default:
		return env.Type
	}
}

// turnTiming measures from the transcript event to the first visible text
// and the first played sentence of the same turn.
type turnTiming struct {
	id         string
	reason     string
	started    time.Time
	firstText  time.Duration
	firstAudio time.Duration
}

type watcher struct {
	now      func() time.Time
	current  *turnTiming
	ended    *turnTiming
	finished []turnTiming
}

func newWatcher(now func() time.Time) *watcher {
	return &watcher{now: now}
}

// observe folds one event into the running turn and returns the timing of
// a turn once its first sentence has played, or once the next turn starts.
func (w *watcher) observe(env wsEnvelope) *turnTiming {
	at := w.now()
	switch env.Type {
	case string(protocol.TypeTranscript):
		prev := w.settle()
		w.current = &turnTiming{id: env.TurnID, started: at}
		return prev
	case string(protocol.TypeAssistantTextDelta):
		if w.current != nil && w.current.id == env.TurnID && w.current.firstText == 0 {
			w.current.firstText = at.Sub(w.current.started)
		}
	case string(protocol.TypeUtterancePlayed):
		t := w.current
		if t == nil {
			t = w.ended
		}
		if t != nil && t.firstAudio == 0 {
			t.firstAudio = at.Sub(t.started)
			if t == w.ended {
				return w.settle()
			}
		}
	case string(protocol.TypeAssistantTurnEnd):
		if w.current != nil && w.current.id == env.TurnID {
			w.current.reason = env.Reason
			w.ended, w.current = w.current, nil
			if w.ended.firstAudio > 0 || env.Reason != "completed" {
				return w.settle()
			}
		}
	case string(protocol.TypeSystemEvent):
		if env.Code == "session_ended" {
			return w.settle()
		}
	}
	return nil
}

func (w *watcher) settle() *turnTiming {
	if w.ended == nil {
		return nil
	}
	done := *w.ended
	w.ended = nil
	w.finished = append(w.finished, done)
	return &done
}

func (w *watcher) summary() string {
	if len(w.finished) == 0 {
		return "talkwatch: no completed turns\n"
	}
	var text, audio []time.Duration
	for _, t := range w.finished {
		if t.firstText > 0 {
			text = append(text, t.firstText)
		}
		if t.firstAudio > 0 {
			audio = append(audio, t.firstAudio)
		}
	}
	var b strings.Builder
	fmt.Fprintf(&b, "talkwatch: turns=%d\n", len(w.finished))
	fmt.Fprintf(&b, "talkwatch: first_text  p50=%s p95=%s n=%d\n", fmtLatency(percentile(text, 0.50)), fmtLatency(percentile(text, 0.95)), len(text))
	fmt.Fprintf(&b, "talkwatch: first_audio p50=%s p95=%s n=%d\n", fmtLatency(percentile(audio, 0.50)), fmtLatency(percentile(audio, 0.95)), len(audio))
	return b.String()
}

// percentile uses nearest-rank over a sorted copy.
func percentile(values []time.Duration, p float64) time.Duration {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), values...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := int(p*float64(len(sorted))+0.999999) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func fmtLatency(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	return d.Round(time.Millisecond).String()
}
