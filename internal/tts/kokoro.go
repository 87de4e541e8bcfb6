package tts

import (
	"bufio"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"

	"github.com/ent0n29/talkback/internal/audio"
	"github.com/ent0n29/talkback/internal/localproc"
)

// KokoroConfig configures the local Kokoro worker process.
type KokoroConfig struct {
	Python       string
	WorkerScript string
	Voice        string
	LangCode     string
}

// Kokoro drives a long-lived Python worker speaking JSON lines on
// stdin/stdout. Requests are single-flight; the speech queue's worker pool
// simply waits its turn.
type Kokoro struct {
	mu     sync.Mutex
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	out    *bufio.Reader
	stderr *localproc.TailBuffer
	voice  string
	lang   string
	seq    uint64
	closed bool
}

type kokoroRequest struct {
	ID       string  `json:"id"`
	Text     string  `json:"text"`
	Voice    string  `json:"voice"`
	LangCode string  `json:"lang_code"`
	Speed    float64 `json:"speed"`
}

type kokoroResponse struct {
	ID          string `json:"id"`
	OK          bool   `json:"ok"`
	Format      string `json:"format"`
	SampleRate  int    `json:"sample_rate"`
	AudioBase64 string `json:"audio_base64"`
	Error       string `json:"error"`
}

// StartKokoro launches the worker and runs a warmup request so dependency
// errors surface at startup.
func StartKokoro(cfg KokoroConfig) (*Kokoro, error) {
	py := strings.TrimSpace(cfg.Python)
	if py == "" {
		// Prefer a local venv if present.
		for _, candidate := range []string{".venv/bin/python3", ".venv/bin/python", "python3"} {
			if p, err := exec.LookPath(candidate); err == nil && strings.TrimSpace(p) != "" {
				py = p
				break
			}
		}
	}
	if py == "" {
		return nil, fmt.Errorf("LOCAL_KOKORO_PYTHON not set and python3 not found on PATH")
	}

	script := localproc.AbsFromWD(cfg.WorkerScript)
	if script == "" {
		script = localproc.AbsFromWD("scripts/kokoro_worker.py")
	}
	if _, err := os.Stat(script); err != nil {
		return nil, fmt.Errorf("kokoro worker script not found: %s", script)
	}

	cmd := exec.Command(py, "-u", script)
	cmd.Env = append(os.Environ(), "PYTORCH_ENABLE_MPS_FALLBACK=1")
	tail := localproc.NewTailBuffer(8 << 10)
	cmd.Stderr = tail

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	k := &Kokoro{
		cmd:    cmd,
		stdin:  stdin,
		out:    bufio.NewReaderSize(stdout, 1<<20),
		stderr: tail,
		voice:  strings.TrimSpace(cfg.Voice),
		lang:   strings.TrimSpace(cfg.LangCode),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 25*time.Second)
	defer cancel()
	if _, err := k.Synthesize(ctx, "warmup", ""); err != nil {
		_ = k.Close()
		msg := tail.String()
		if msg == "" {
			msg = err.Error()
		}
		return nil, fmt.Errorf("kokoro worker failed to start: %s", msg)
	}
	return k, nil
}

func (k *Kokoro) Name() string { return "kokoro" }

// Synthesize ignores locale; the worker's language is fixed by LangCode.
func (k *Kokoro) Synthesize(ctx context.Context, text, _ string) (audio.Clip, error) {
	if err := ctx.Err(); err != nil {
		return audio.Clip{}, err
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return audio.Clip{}, fmt.Errorf("%w: kokoro worker closed", ErrSynthesis)
	}

	k.seq++
	req := kokoroRequest{
		ID:       "req-" + strconv.FormatUint(k.seq, 10),
		Text:     text,
		Voice:    k.voice,
		LangCode: k.lang,
		Speed:    1.0,
	}
	if req.LangCode == "" {
		req.LangCode = "z"
	}
	if req.Voice == "" {
		req.Voice = "zf_xiaobei"
	}

	b, err := sonic.Marshal(req)
	if err != nil {
		return audio.Clip{}, fmt.Errorf("%w: %v", ErrSynthesis, err)
	}
	b = append(b, '\n')
	if _, err := k.stdin.Write(b); err != nil {
		return audio.Clip{}, fmt.Errorf("%w: %v", ErrSynthesis, err)
	}

	// One response line per request; mu keeps the worker single-flight.
	line, err := k.out.ReadBytes('\n')
	if err != nil {
		return audio.Clip{}, fmt.Errorf("%w: %v", ErrSynthesis, err)
	}
	var resp kokoroResponse
	if err := sonic.Unmarshal(line, &resp); err != nil {
		return audio.Clip{}, fmt.Errorf("%w: bad worker reply: %v", ErrSynthesis, err)
	}
	if resp.ID != req.ID {
		return audio.Clip{}, fmt.Errorf("%w: kokoro worker out-of-sync (got %q, expected %q)", ErrSynthesis, resp.ID, req.ID)
	}
	if !resp.OK {
		msg := strings.TrimSpace(resp.Error)
		if msg == "" {
			msg = "unknown kokoro error"
		}
		return audio.Clip{}, fmt.Errorf("%w: %s", ErrSynthesis, msg)
	}
	return decodeKokoroAudio(resp)
}

// decodeKokoroAudio accepts WAV payloads and raw "pcm_<rate>" payloads.
func decodeKokoroAudio(resp kokoroResponse) (audio.Clip, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(resp.AudioBase64))
	if err != nil {
		return audio.Clip{}, fmt.Errorf("%w: decode audio_base64: %v", ErrSynthesis, err)
	}
	if len(raw) == 0 {
		return audio.Clip{}, fmt.Errorf("%w: kokoro returned no audio", ErrSynthesis)
	}
	format := strings.ToLower(strings.TrimSpace(resp.Format))
	if strings.HasPrefix(format, "pcm") {
		rate := resp.SampleRate
		if rate <= 0 {
			if _, tail, ok := strings.Cut(format, "_"); ok {
				rate, _ = strconv.Atoi(tail)
			}
		}
		if rate <= 0 {
			rate = 24000
		}
		return audio.Clip{Samples: audio.BytesToSamples(raw), SampleRate: rate, Channels: 1}, nil
	}
	clip, err := audio.DecodeWAV(raw)
	if err != nil {
		return audio.Clip{}, fmt.Errorf("%w: %v", ErrSynthesis, err)
	}
	return clip, nil
}

func (k *Kokoro) Close() error {
	k.mu.Lock()
	if k.closed {
		k.mu.Unlock()
		return nil
	}
	k.closed = true
	stdin := k.stdin
	cmd := k.cmd
	k.stdin = nil
	k.cmd = nil
	k.mu.Unlock()

	if stdin != nil {
		_ = stdin.Close()
	}
	localproc.Stop(cmd, 1200*time.Millisecond)
	return nil
}
