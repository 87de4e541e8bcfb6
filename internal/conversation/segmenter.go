package conversation

import "strings"

// DefaultSentenceBreaks are the marks that end a spoken sentence, CJK and
// ASCII alike.
const DefaultSentenceBreaks = "，。！？\n.!?"

// Segmenter accumulates reply text and cuts it into utterances. A chunk
// containing any break mark flushes the buffer including that whole chunk,
// at most once per chunk.
type Segmenter struct {
	breaks string
	buf    strings.Builder
}

func NewSegmenter(breaks string) *Segmenter {
	if breaks == "" {
		breaks = DefaultSentenceBreaks
	}
	return &Segmenter{breaks: breaks}
}

// Push appends chunk and returns a finished utterance when chunk contained
// a break mark.
func (s *Segmenter) Push(chunk string) (string, bool) {
	s.buf.WriteString(chunk)
	if !strings.ContainsAny(chunk, s.breaks) {
		return "", false
	}
	out := s.buf.String()
	s.buf.Reset()
	return out, true
}

// Flush returns whatever is buffered and empties the buffer.
func (s *Segmenter) Flush() string {
	out := s.buf.String()
	s.buf.Reset()
	return out
}
