package stt

import (
	"context"
	"sync"
)

// MockTranscriber returns scripted transcripts in order, then Fallback.
// Used for headless runs and tests.
type MockTranscriber struct {
	mu       sync.Mutex
	Script   []string
	Fallback string
	Err      error
	calls    int
}

func NewMockTranscriber(script ...string) *MockTranscriber {
	return &MockTranscriber{Script: script}
}

func (m *MockTranscriber) Name() string { return "mock" }

func (m *MockTranscriber) Close() error { return nil }

func (m *MockTranscriber) Transcribe(ctx context.Context, samples []float32, _ int, _ string) ([]Segment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.Err != nil {
		return nil, m.Err
	}
	text := m.Fallback
	if len(m.Script) > 0 {
		text = m.Script[0]
		m.Script = m.Script[1:]
	}
	if text == "" || len(samples) == 0 {
		return nil, nil
	}
	return []Segment{{Text: text}}, nil
}

// Calls reports how many times Transcribe ran.
func (m *MockTranscriber) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
