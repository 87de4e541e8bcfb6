package llm

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// Mock streams deterministic replies. Each Stream call consumes the next
// entry of Script; when Script is empty it echoes the last user message.
type Mock struct {
	mu     sync.Mutex
	Script [][]string
	// FailAfter, when >= 0, makes Next fail with ErrStream after that many
	// tokens. -1 disables.
	FailAfter int
	OpenErr   error

	// TokenDelay paces each token like a remote model would.
	TokenDelay time.Duration

	calls   int
	history [][]Message
}

func NewMock(script ...[]string) *Mock {
	return &Mock{Script: script, FailAfter: -1}
}

func (m *Mock) Name() string { return "mock" }

func (m *Mock) Stream(ctx context.Context, messages []Message) (TokenStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.history = append(m.history, append([]Message(nil), messages...))
	if m.OpenErr != nil {
		return nil, m.OpenErr
	}

	var tokens []string
	if len(m.Script) > 0 {
		tokens = m.Script[0]
		m.Script = m.Script[1:]
	} else {
		tokens = echoTokens(lastUserMessage(messages))
	}
	return &mockStream{ctx: ctx, tokens: tokens, failAfter: m.FailAfter, delay: m.TokenDelay}, nil
}

// Calls reports how many streams were opened.
func (m *Mock) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Requests returns a copy of the history sent with each Stream call.
func (m *Mock) Requests() [][]Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]Message(nil), m.history...)
}

func lastUserMessage(messages []Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == RoleUser {
			return strings.TrimSpace(messages[i].Content)
		}
	}
	return ""
}

// echoTokens splits the echo reply into rune tokens for CJK text and word
// tokens otherwise, close to how hosted models chunk their deltas.
func echoTokens(input string) []string {
	if input == "" {
		input = "我在聽"
	}
	reply := fmt.Sprintf("我聽到你說：%s。", input)
	var tokens []string
	var word strings.Builder
	for _, r := range reply {
		switch {
		case r == ' ':
			word.WriteRune(r)
			tokens = append(tokens, word.String())
			word.Reset()
		case r < 0x80:
			word.WriteRune(r)
		default:
			if word.Len() > 0 {
				tokens = append(tokens, word.String())
				word.Reset()
			}
			tokens = append(tokens, string(r))
		}
	}
	if word.Len() > 0 {
		tokens = append(tokens, word.String())
	}
	return tokens
}

type mockStream struct {
	ctx       context.Context
	tokens    []string
	next      int
	failAfter int
	delay     time.Duration
}

func (s *mockStream) Next() (string, error) {
	if err := s.ctx.Err(); err != nil {
		return "", err
	}
	if s.failAfter >= 0 && s.next >= s.failAfter {
		return "", fmt.Errorf("%w: mock failure after %d tokens", ErrStream, s.next)
	}
	if s.next >= len(s.tokens) {
		return "", io.EOF
	}
	if s.delay > 0 {
		timer := time.NewTimer(s.delay)
		select {
		case <-s.ctx.Done():
			timer.Stop()
			return "", s.ctx.Err()
		case <-timer.C:
		}
	}
	tok := s.tokens[s.next]
	s.next++
	return tok, nil
}

func (s *mockStream) Close() error { return nil }
