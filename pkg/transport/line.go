package transport

import (
	"bytes"
	"fmt"
	"time"

	"lynx-alpaca/pkg/lynx"
)

// maxPending bounds the bytes kept while waiting for a line terminator.
const maxPending = 1024

// readFunc reads into p, waiting at most d. A timeout is reported as (0, nil).
type readFunc func(p []byte, d time.Duration) (int, error)

// lineBuffer splits a byte stream into lines terminated by "\n" or "\r\n".
// Empty lines are skipped.
type lineBuffer struct {
	pending []byte
	chunk   [128]byte
}

func (b *lineBuffer) next() (string, bool) {
	for {
		i := bytes.IndexByte(b.pending, '\n')
		if i < 0 {
			return "", false
		}
		line := bytes.TrimRight(b.pending[:i], "\r")
		b.pending = b.pending[i+1:]
		if len(line) > 0 {
			return string(line), true
		}
	}
}

func (b *lineBuffer) reset() {
	b.pending = b.pending[:0]
}

func (b *lineBuffer) readLine(read readFunc, timeout time.Duration) (string, error) {
	deadline := time.Now().Add(timeout)
	for {
		if line, ok := b.next(); ok {
			return line, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return "", fmt.Errorf("%w: no reply line within %s", lynx.ErrTimeout, timeout)
		}

		n, err := read(b.chunk[:], remaining)
		if err != nil {
			return "", err
		}
		b.pending = append(b.pending, b.chunk[:n]...)
		if len(b.pending) > maxPending {
			b.reset()
			return "", fmt.Errorf("%w: no line terminator in %d bytes", lynx.ErrMalformedResponse, maxPending)
		}
	}
}
