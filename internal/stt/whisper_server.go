package stt

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"

	"github.com/ent0n29/talkback/internal/localproc"
)

// WhisperConfig configures the whisper.cpp backends.
type WhisperConfig struct {
	ServerPath string
	CLIPath    string
	ModelPath  string
	Threads    int
	BeamSize   int
	BestOf     int
}

// WhisperServer keeps a whisper.cpp HTTP server running as a child process
// and posts each utterance to its /inference endpoint.
type WhisperServer struct {
	mu      sync.Mutex
	cmd     *exec.Cmd
	baseURL string
	client  *http.Client
	logTail *localproc.TailBuffer
	closed  bool
}

// StartWhisperServer launches whisper-server on a free loopback port and
// waits for it to answer.
func StartWhisperServer(cfg WhisperConfig, language string) (*WhisperServer, error) {
	bin := strings.TrimSpace(cfg.ServerPath)
	if bin == "" {
		bin = "whisper-server"
	}
	path, err := exec.LookPath(bin)
	if err != nil {
		return nil, err
	}
	modelPath, err := requireModel(cfg.ModelPath)
	if err != nil {
		return nil, err
	}

	port, err := localproc.PickFreePort()
	if err != nil {
		return nil, err
	}

	args := []string{
		"--host", "127.0.0.1",
		"--port", strconv.Itoa(port),
		"-m", modelPath,
		"-l", languageOrAuto(language),
		"-nt",
		"-t", strconv.Itoa(localproc.AutoThreads(cfg.Threads)),
	}
	if cfg.BeamSize > 0 {
		args = append(args, "-bs", strconv.Itoa(cfg.BeamSize))
	}
	if cfg.BestOf > 0 {
		args = append(args, "-bo", strconv.Itoa(cfg.BestOf))
	}

	tail := localproc.NewTailBuffer(24 << 10)
	cmd := exec.Command(path, args...)
	localproc.InjectLibraryEnv(cmd, path)
	cmd.Stdout = tail
	cmd.Stderr = tail

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	baseURL := fmt.Sprintf("http://127.0.0.1:%d", port)
	client := &http.Client{}

	// Wait until the server is reachable.
	deadline := time.Now().Add(25 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := client.Get(baseURL + "/")
		if err == nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return &WhisperServer{
					cmd:     cmd,
					baseURL: baseURL,
					client:  client,
					logTail: tail,
				}, nil
			}
		}
		time.Sleep(80 * time.Millisecond)
	}

	_ = cmd.Process.Kill()
	_ = cmd.Wait()
	msg := tail.String()
	if msg == "" {
		msg = "whisper-server did not become ready"
	}
	return nil, fmt.Errorf("%s", msg)
}

func (s *WhisperServer) Name() string { return "whisper-server" }

func (s *WhisperServer) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	cmd := s.cmd
	s.mu.Unlock()

	localproc.Stop(cmd, 1200*time.Millisecond)
	return nil
}

type whisperServerResponse struct {
	Text     string `json:"text"`
	Segments []struct {
		Text  string  `json:"text"`
		Start float64 `json:"start"`
		End   float64 `json:"end"`
	} `json:"segments"`
}

func (s *WhisperServer) Transcribe(ctx context.Context, samples []float32, sampleRate int, language string) ([]Segment, error) {
	if len(samples) == 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	wav, err := encodeWAV(samples, sampleRate)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTranscription, err)
	}

	// Serialize requests; the server is typically configured with a single processor.
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("%w: whisper-server closed", ErrTranscription)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		_ = mw.Close()
		return nil, err
	}
	if _, err := fw.Write(wav); err != nil {
		_ = mw.Close()
		return nil, err
	}
	_ = mw.WriteField("temperature", "0.0")
	_ = mw.WriteField("response_format", "verbose_json")
	if lang := strings.TrimSpace(language); lang != "" {
		_ = mw.WriteField("language", lang)
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/inference", &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := s.client.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, context.Canceled
		}
		return nil, fmt.Errorf("%w: %v", ErrTranscription, err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTranscription, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: whisper-server HTTP %d: %s", ErrTranscription, resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var out whisperServerResponse
	if err := sonic.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTranscription, err)
	}
	if len(out.Segments) == 0 {
		text := strings.TrimSpace(out.Text)
		if text == "" {
			return nil, nil
		}
		return []Segment{{Text: text}}, nil
	}
	segments := make([]Segment, 0, len(out.Segments))
	for _, seg := range out.Segments {
		segments = append(segments, Segment{Text: seg.Text, Start: seg.Start, End: seg.End})
	}
	return segments, nil
}

func languageOrAuto(language string) string {
	language = strings.TrimSpace(language)
	if language == "" {
		return "auto"
	}
	return language
}
