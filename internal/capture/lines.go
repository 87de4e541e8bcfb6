package capture

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"
)

// ErrInputClosed is reported once headless input reaches EOF.
var ErrInputClosed = errors.New("input closed")

// LineListener stands in for the microphone on headless runs: each Listen
// returns the next typed line.
type LineListener struct {
	lines   chan string
	lastErr error
}

func NewLineListener(r io.Reader) *LineListener {
	l := &LineListener{lines: make(chan string)}
	go func() {
		defer close(l.lines)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			l.lines <- strings.TrimSpace(sc.Text())
		}
	}()
	return l
}

// Listen blocks for the next line. Once the input is exhausted it returns ""
// at once and LastErr reports ErrInputClosed.
func (l *LineListener) Listen(ctx context.Context) string {
	select {
	case line, ok := <-l.lines:
		if !ok {
			l.lastErr = ErrInputClosed
			return ""
		}
		l.lastErr = nil
		return line
	case <-ctx.Done():
		return ""
	}
}

func (l *LineListener) LastErr() error { return l.lastErr }
