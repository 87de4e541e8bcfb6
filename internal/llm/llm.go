// Package llm streams assistant replies from a chat completion backend.
package llm

import (
	"context"
	"errors"

	openai "github.com/sashabaranov/go-openai"
	"google.golang.org/genai"
)

// ErrStream wraps failures while opening or reading a reply stream.
var ErrStream = errors.New("model stream error")

// Role tags a history message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one conversation history entry.
type Message struct {
	Role    Role
	Content string
}

// TokenStream yields reply fragments in order. Next returns io.EOF once the
// reply is complete.
type TokenStream interface {
	Next() (string, error)
	Close() error
}

// ChatStreamer opens a reply stream for the full conversation so far.
type ChatStreamer interface {
	Stream(ctx context.Context, messages []Message) (TokenStream, error)
	Name() string
}

// StatusCode extracts the HTTP status from a provider error, or 0.
func StatusCode(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	var geminiErr genai.APIError
	if errors.As(err, &geminiErr) {
		return geminiErr.Code
	}
	return 0
}
