package stt

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
)

func TestJoinKeepsSegmentOrder(t *testing.T) {
	got := Join([]Segment{{Text: "今天"}, {Text: "天氣"}, {Text: "很好"}})
	if got != "今天天氣很好" {
		t.Fatalf("Join() = %q, want %q", got, "今天天氣很好")
	}
	if Join(nil) != "" {
		t.Fatalf("Join(nil) = %q, want empty", Join(nil))
	}
}

func TestParseWhisperCLIJSON(t *testing.T) {
	raw := []byte(`{"transcription":[
		{"offsets":{"from":0,"to":1500},"text":"你好"},
		{"offsets":{"from":1500,"to":2600},"text":"世界"}
	]}`)
	segs, err := parseWhisperCLIJSON(raw)
	if err != nil {
		t.Fatalf("parseWhisperCLIJSON() error = %v", err)
	}
	if len(segs) != 2 {
		t.Fatalf("len(segs) = %d, want 2", len(segs))
	}
	if segs[1].Text != "世界" || segs[1].Start != 1.5 || segs[1].End != 2.6 {
		t.Fatalf("segs[1] = %+v, want 世界 at 1.5-2.6", segs[1])
	}
}

func TestParseWhisperCLIJSONRejectsGarbage(t *testing.T) {
	if _, err := parseWhisperCLIJSON([]byte("nope")); !errors.Is(err, ErrTranscription) {
		t.Fatalf("error = %v, want ErrTranscription", err)
	}
}

func TestWhisperServerTranscribePostsWAV(t *testing.T) {
	var gotLanguage string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/inference" {
			http.NotFound(w, r)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ParseMultipartForm() error = %v", err)
		}
		gotLanguage = r.FormValue("language")
		f, _, err := r.FormFile("file")
		if err != nil {
			t.Errorf("FormFile() error = %v", err)
			return
		}
		head := make([]byte, 4)
		_, _ = io.ReadFull(f, head)
		if string(head) != "RIFF" {
			t.Errorf("upload header = %q, want RIFF", head)
		}
		_, _ = io.WriteString(w, `{"text":"ignored","segments":[{"text":"你好","start":0,"end":0.8},{"text":"，世界","start":0.8,"end":1.6}]}`)
	}))
	defer srv.Close()

	ws := &WhisperServer{baseURL: srv.URL, client: srv.Client()}
	segs, err := ws.Transcribe(context.Background(), make([]float32, 1600), 16000, "zh")
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if got := Join(segs); got != "你好，世界" {
		t.Fatalf("Join(segs) = %q, want %q", got, "你好，世界")
	}
	if gotLanguage != "zh" {
		t.Fatalf("language = %q, want zh", gotLanguage)
	}
}

func TestWhisperServerTranscribeHTTPErrorWraps(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model exploded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	ws := &WhisperServer{baseURL: srv.URL, client: srv.Client()}
	_, err := ws.Transcribe(context.Background(), make([]float32, 160), 16000, "")
	if !errors.Is(err, ErrTranscription) {
		t.Fatalf("error = %v, want ErrTranscription", err)
	}
}

func TestWhisperServerSkipsEmptyAudio(t *testing.T) {
	ws := &WhisperServer{}
	segs, err := ws.Transcribe(context.Background(), nil, 16000, "zh")
	if err != nil || segs != nil {
		t.Fatalf("Transcribe(nil) = %v, %v, want nil, nil", segs, err)
	}
}

func TestOpenAITranscriberParsesVerboseJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/audio/transcriptions") {
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer gsk_test" {
			t.Errorf("Authorization = %q, want bearer token", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"task":"transcribe","language":"zh","duration":1.2,"text":"早安","segments":[{"id":0,"start":0,"end":1.2,"text":"早安"}]}`)
	}))
	defer srv.Close()

	tr, err := NewOpenAITranscriber(OpenAIConfig{APIKey: "gsk_test", BaseURL: srv.URL + "/v1", Model: "whisper-large-v3-turbo"})
	if err != nil {
		t.Fatalf("NewOpenAITranscriber() error = %v", err)
	}
	segs, err := tr.Transcribe(context.Background(), make([]float32, 1600), 16000, "zh")
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if len(segs) != 1 || segs[0].Text != "早安" || segs[0].End != 1.2 {
		t.Fatalf("segs = %+v, want one 早安 segment", segs)
	}
}

func TestNewRejectsMissingBackends(t *testing.T) {
	if _, err := New(Options{Provider: "openai"}); !errors.Is(err, ErrNoBackend) {
		t.Fatalf("New(openai without key) error = %v, want ErrNoBackend", err)
	}
	if _, err := New(Options{Provider: "carrier-pigeon"}); err == nil {
		t.Fatalf("New(unknown) error = nil, want error")
	}
	tr, err := New(Options{Provider: "mock"})
	if err != nil || tr.Name() != "mock" {
		t.Fatalf("New(mock) = %v, %v, want mock transcriber", tr, err)
	}
}

func TestNewAutoFailsWhenNothingIsAvailable(t *testing.T) {
	dir := t.TempDir()
	_, err := New(Options{
		Provider: "auto",
		Whisper: WhisperConfig{
			ServerPath: filepath.Join(dir, "no-whisper-server"),
			CLIPath:    filepath.Join(dir, "no-whisper-cli"),
			ModelPath:  filepath.Join(dir, "missing.bin"),
		},
	})
	if !errors.Is(err, ErrNoBackend) {
		t.Fatalf("New(auto) error = %v, want ErrNoBackend", err)
	}
	for _, name := range []string{"whisper-server", "whisper-cli", "openai"} {
		if !strings.Contains(err.Error(), name) {
			t.Fatalf("New(auto) error = %q, want it to mention %s", err, name)
		}
	}
}

func TestMockTranscriberFollowsScript(t *testing.T) {
	m := NewMockTranscriber("one", "")
	m.Fallback = "again"
	audio := make([]float32, 10)
	ctx := context.Background()

	first, _ := m.Transcribe(ctx, audio, 16000, "")
	second, _ := m.Transcribe(ctx, audio, 16000, "")
	third, _ := m.Transcribe(ctx, audio, 16000, "")
	if Join(first) != "one" || Join(second) != "" || Join(third) != "again" {
		t.Fatalf("script = %q,%q,%q, want one,'',again", Join(first), Join(second), Join(third))
	}
	if m.Calls() != 3 {
		t.Fatalf("Calls() = %d, want 3", m.Calls())
	}
}
