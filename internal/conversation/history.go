// Package conversation runs the spoken dialogue loop: listen, stream a
// reply, speak it sentence by sentence, listen again.
package conversation

import (
	"sync"

	"github.com/ent0n29/talkback/internal/llm"
)

// History is the append-only transcript of the session, starting with the
// system persona. It is never truncated.
type History struct {
	mu       sync.RWMutex
	messages []llm.Message
}

func NewHistory(systemPrompt string) *History {
	h := &History{}
	if systemPrompt != "" {
		h.messages = append(h.messages, llm.Message{Role: llm.RoleSystem, Content: systemPrompt})
	}
	return h
}

func (h *History) Append(role llm.Role, content string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, llm.Message{Role: role, Content: content})
}

// Messages returns a copy safe to hand to a streamer.
func (h *History) Messages() []llm.Message {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]llm.Message(nil), h.messages...)
}

func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.messages)
}
