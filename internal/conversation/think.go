package conversation

import "strings"

const (
	thinkOpen  = "<think>"
	thinkClose = "</think>"
)

// ThinkFilter removes <think>...</think> reasoning blocks from a token
// stream. Markers may arrive split across tokens, so a tail that could be
// the start of a marker is held until the next token decides it.
type ThinkFilter struct {
	inThink bool
	held    string
}

// Consume returns the speakable part of delta, possibly empty.
func (f *ThinkFilter) Consume(delta string) string {
	s := f.held + delta
	f.held = ""
	var out strings.Builder
	for s != "" {
		if f.inThink {
			if idx := strings.Index(s, thinkClose); idx >= 0 {
				s = s[idx+len(thinkClose):]
				f.inThink = false
				continue
			}
			f.held = s[len(s)-markerPrefixLen(s, thinkClose):]
			break
		}
		if idx := strings.Index(s, thinkOpen); idx >= 0 {
			out.WriteString(s[:idx])
			s = s[idx+len(thinkOpen):]
			f.inThink = true
			continue
		}
		keep := len(s) - markerPrefixLen(s, thinkOpen)
		out.WriteString(s[:keep])
		f.held = s[keep:]
		break
	}
	return out.String()
}

// Finalize flushes held text at end of stream. An unterminated reasoning
// block is dropped; a dangling partial open marker was ordinary text.
func (f *ThinkFilter) Finalize() string {
	held := f.held
	inThink := f.inThink
	f.held = ""
	f.inThink = false
	if inThink {
		return ""
	}
	return held
}

// InThink reports whether the filter is inside a reasoning block.
func (f *ThinkFilter) InThink() bool { return f.inThink }

// markerPrefixLen is the length of the longest suffix of s that is a proper
// prefix of marker.
func markerPrefixLen(s, marker string) int {
	max := len(marker) - 1
	if max > len(s) {
		max = len(s)
	}
	for n := max; n > 0; n-- {
		if strings.HasSuffix(s, marker[:n]) {
			return n
		}
	}
	return 0
}
