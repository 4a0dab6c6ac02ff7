package kfmt

import (
	"bytes"
	"io"
	"strconv"
)

// PrefixWriter is an io.Writer that wraps another io.Writer and injects a
// prefix at the beginning of each line.
type PrefixWriter struct {
	// A writer where all writes get sent to.
	Sink io.Writer

	// The prefix injected at the beginning of each line.
	Prefix []byte

	midLine bool
}

// NewServerWriter returns a PrefixWriter that tags every line written to sink
// with the server name. A non-zero colour selects the ANSI foreground colour
// code used for the tag.
func NewServerWriter(sink io.Writer, name string, colour int) *PrefixWriter {
	var prefix []byte
	if colour != 0 {
		prefix = append(prefix, "\033["...)
		prefix = strconv.AppendInt(prefix, int64(colour), 10)
		prefix = append(prefix, 'm')
	}
	prefix = append(prefix, '[')
	prefix = append(prefix, name...)
	prefix = append(prefix, ']')
	if colour != 0 {
		prefix = append(prefix, "\033[0m"...)
	}
	prefix = append(prefix, ' ')

	return &PrefixWriter{Sink: sink, Prefix: prefix}
}

// Write writes p to the sink, injecting the prefix before the first byte of
// every line. The injected prefix is not included in the returned byte count.
func (w *PrefixWriter) Write(p []byte) (int, error) {
	var written int

	for len(p) > 0 {
		if !w.midLine {
			if _, err := w.Sink.Write(w.Prefix); err != nil {
				return written, err
			}
			w.midLine = true
		}

		lineLen := len(p)
		if idx := bytes.IndexByte(p, '\n'); idx != -1 {
			lineLen = idx + 1
			w.midLine = false
		}

		n, err := w.Sink.Write(p[:lineLen])
		written += n
		if err != nil {
			return written, err
		}
		p = p[lineLen:]
	}

	return written, nil
}
