package tts

import (
	"regexp"
	"strings"
	"unicode"
)

// speechRewrites run in order before the rune pass.
var speechRewrites = []struct {
	re   *regexp.Regexp
	with string
}{
	{regexp.MustCompile("(?s)```.*?```"), " "},
	{regexp.MustCompile("`[^`]*`"), " "},
	{regexp.MustCompile(`!?\[([^\]]*)\]\([^)]*\)`), "$1"},
	{regexp.MustCompile(`https?://\S+`), " "},
	{regexp.MustCompile(`(?m)^\s*(?:#{1,6}|[-*+]|\d+[.)])\s+`), ""},
}

// SanitizeSpeechText strips markdown, links, emoji and stray symbols from a
// sentence before it is synthesized. Sentence punctuation is kept since the
// voices use it for pacing. Spaces next to CJK text are dropped.
func SanitizeSpeechText(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	for _, rw := range speechRewrites {
		raw = rw.re.ReplaceAllString(raw, rw.with)
	}

	out := make([]rune, 0, len(raw))
	pendingSpace := false
	for _, r := range raw {
		switch {
		case unicode.IsSpace(r), isMarkupRune(r):
			pendingSpace = len(out) > 0
			continue
		case unicode.IsControl(r), unicode.In(r, unicode.So, unicode.Sm, unicode.Sk, unicode.Mn, unicode.Cf):
			continue
		case unicode.IsPunct(r) && !keepsPunctuation(r):
			pendingSpace = len(out) > 0
			continue
		}
		if pendingSpace && !joinsTight(out[len(out)-1], r) {
			out = append(out, ' ')
		}
		pendingSpace = false
		out = append(out, r)
	}
	return string(out)
}

func isMarkupRune(r rune) bool {
	return strings.ContainsRune("*_\\/|#~<>", r)
}

func keepsPunctuation(r rune) bool {
	return strings.ContainsRune(".,!?:;'\"-()，。！？、；：「」『』（）…", r)
}

// joinsTight reports whether two runes should touch with no space between.
func joinsTight(prev, next rune) bool {
	return isWide(prev) || isWide(next) || strings.ContainsRune(".,!?:;)", next)
}

func isWide(r rune) bool {
	return unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana, unicode.Hangul) ||
		strings.ContainsRune("，。！？、；：「」『』（）…", r)
}
