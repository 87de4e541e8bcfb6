package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func collect(t *testing.T, s TokenStream) ([]string, error) {
	t.Helper()
	defer s.Close()
	var out []string
	for {
		tok, err := s.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, tok)
	}
}

func sseServer(t *testing.T, deltas []string, gotBody *map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q, want bearer test-key", got)
		}
		if gotBody != nil {
			_ = json.NewDecoder(r.Body).Decode(gotBody)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, `data: {"id":"1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"role":"assistant"}}]}`+"\n\n")
		for _, d := range deltas {
			chunk := map[string]any{
				"id":      "1",
				"object":  "chat.completion.chunk",
				"choices": []any{map[string]any{"index": 0, "delta": map[string]any{"content": d}}},
			}
			raw, _ := json.Marshal(chunk)
			fmt.Fprintf(w, "data: %s\n\n", raw)
		}
		fmt.Fprint(w, `data: {"id":"1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{},"finish_reason":"stop"}]}`+"\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
}

func TestOpenAIStreamerYieldsDeltasInOrder(t *testing.T) {
	var body map[string]any
	srv := sseServer(t, []string{"你", "好", "，", "世界"}, &body)
	defer srv.Close()

	s, err := NewOpenAIStreamer(OpenAIConfig{APIKey: "test-key", BaseURL: srv.URL + "/v1", Model: "test-model", Temperature: -1})
	if err != nil {
		t.Fatalf("NewOpenAIStreamer() error = %v", err)
	}
	stream, err := s.Stream(context.Background(), []Message{
		{Role: RoleSystem, Content: "persona"},
		{Role: RoleUser, Content: "嗨"},
	})
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	got, err := collect(t, stream)
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if strings.Join(got, "|") != "你|好|，|世界" {
		t.Fatalf("tokens = %v, want [你 好 ， 世界]", got)
	}

	if body["model"] != "test-model" || body["stream"] != true {
		t.Fatalf("request body = %v, want model test-model with stream", body)
	}
	msgs, _ := body["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("messages = %v, want 2 entries", body["messages"])
	}
	if first, _ := msgs[0].(map[string]any); first["role"] != "system" {
		t.Fatalf("first message role = %v, want system", first["role"])
	}
}

func TestOpenAIStreamerWrapsHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"message":"slow down","type":"rate_limit"}}`)
	}))
	defer srv.Close()

	s, err := NewOpenAIStreamer(OpenAIConfig{APIKey: "test-key", BaseURL: srv.URL + "/v1", Model: "m", Temperature: -1})
	if err != nil {
		t.Fatalf("NewOpenAIStreamer() error = %v", err)
	}
	_, err = s.Stream(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})
	if !errors.Is(err, ErrStream) {
		t.Fatalf("Stream() error = %v, want ErrStream", err)
	}
	if got := StatusCode(err); got != http.StatusTooManyRequests {
		t.Fatalf("StatusCode() = %d, want 429", got)
	}
}

func TestNewOpenAIStreamerRequiresKeyAndModel(t *testing.T) {
	if _, err := NewOpenAIStreamer(OpenAIConfig{Model: "m"}); err == nil {
		t.Fatalf("NewOpenAIStreamer() without key error = nil")
	}
	if _, err := NewOpenAIStreamer(OpenAIConfig{APIKey: "k"}); err == nil {
		t.Fatalf("NewOpenAIStreamer() without model error = nil")
	}
}

func TestMockUsesScriptThenEchoes(t *testing.T) {
	m := NewMock([]string{"第一", "。"})
	s, _ := m.Stream(context.Background(), []Message{{Role: RoleUser, Content: "x"}})
	got, err := collect(t, s)
	if err != nil || strings.Join(got, "") != "第一。" {
		t.Fatalf("scripted tokens = %v, %v", got, err)
	}

	s, _ = m.Stream(context.Background(), []Message{{Role: RoleUser, Content: "hello there"}})
	got, err = collect(t, s)
	if err != nil {
		t.Fatalf("echo Next() error = %v", err)
	}
	if want := "我聽到你說：hello there。"; strings.Join(got, "") != want {
		t.Fatalf("echo reply = %q, want %q", strings.Join(got, ""), want)
	}
	if m.Calls() != 2 {
		t.Fatalf("Calls() = %d, want 2", m.Calls())
	}
}

func TestMockFailAfter(t *testing.T) {
	m := NewMock([]string{"a", "b", "c"})
	m.FailAfter = 2
	s, _ := m.Stream(context.Background(), nil)
	got, err := collect(t, s)
	if !errors.Is(err, ErrStream) {
		t.Fatalf("Next() error = %v, want ErrStream", err)
	}
	if len(got) != 2 {
		t.Fatalf("tokens before failure = %v, want 2", got)
	}
}

func TestNewRejectsUnknownProvider(t *testing.T) {
	if _, err := New(context.Background(), Options{Provider: "oracle"}); err == nil {
		t.Fatalf("New() error = nil, want error")
	}
	s, err := New(context.Background(), Options{Provider: "mock"})
	if err != nil || s.Name() != "mock" {
		t.Fatalf("New(mock) = %v, %v", s, err)
	}
}

func TestToGeminiContentsSplitsSystemPrompt(t *testing.T) {
	system, contents := toGeminiContents([]Message{
		{Role: RoleSystem, Content: "你是助理"},
		{Role: RoleUser, Content: "你好"},
		{Role: RoleAssistant, Content: "嗨"},
		{Role: RoleUser, Content: "再見"},
	})
	if system == nil || len(system.Parts) != 1 || system.Parts[0].Text != "你是助理" {
		t.Fatalf("system = %+v, want the system prompt", system)
	}
	wantRoles := []string{"user", "model", "user"}
	if len(contents) != len(wantRoles) {
		t.Fatalf("len(contents) = %d, want %d", len(contents), len(wantRoles))
	}
	for i, c := range contents {
		if c.Role != wantRoles[i] {
			t.Fatalf("contents[%d].Role = %q, want %q", i, c.Role, wantRoles[i])
		}
	}
	if contents[1].Parts[0].Text != "嗨" {
		t.Fatalf("contents[1] text = %q, want 嗨", contents[1].Parts[0].Text)
	}
}

func TestSeqStreamSkipsEmptyChunksAndWrapsErrors(t *testing.T) {
	boom := errors.New("boom")
	seq := func(yield func(string, error) bool) {
		for _, tok := range []string{"你", "", "好"} {
			if !yield(tok, nil) {
				return
			}
		}
		yield("", boom)
	}
	got, err := collect(t, newSeqStream(context.Background(), seq))
	if !errors.Is(err, ErrStream) || !errors.Is(err, boom) {
		t.Fatalf("Next() error = %v, want ErrStream wrapping boom", err)
	}
	if strings.Join(got, "") != "你好" {
		t.Fatalf("tokens = %v, want [你 好]", got)
	}

	done := func(yield func(string, error) bool) { yield("完", nil) }
	got, err = collect(t, newSeqStream(context.Background(), done))
	if err != nil || len(got) != 1 {
		t.Fatalf("collect() = %v, %v, want one token and clean EOF", got, err)
	}
}

func TestNewGeminiStreamerRequiresKeyAndModel(t *testing.T) {
	if _, err := NewGeminiStreamer(context.Background(), GeminiConfig{Model: "m"}); err == nil {
		t.Fatalf("NewGeminiStreamer() without key error = nil")
	}
	if _, err := NewGeminiStreamer(context.Background(), GeminiConfig{APIKey: "k"}); err == nil {
		t.Fatalf("NewGeminiStreamer() without model error = nil")
	}
}
