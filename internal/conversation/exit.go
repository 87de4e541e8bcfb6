package conversation

import "strings"

// DefaultExitKeywords end the session when heard anywhere in a transcript.
var DefaultExitKeywords = []string{"exit", "quit", "退出"}

// IsExit reports whether transcript contains any keyword, ignoring case.
func IsExit(transcript string, keywords []string) bool {
	lower := strings.ToLower(transcript)
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" && strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
