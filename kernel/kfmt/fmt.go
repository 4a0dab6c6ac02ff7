// Package kfmt implements the process server log output. Output produced
// before a console is attached is kept in a ring buffer and replayed once
// SetOutputSink is called.
package kfmt

import (
	"fmt"
	"io"
)

var (
	// earlyPrintBuffer is a ring buffer that stores Printf output before
	// the console is enabled.
	earlyPrintBuffer ringBuffer

	// outputSink is a io.Writer where Printf will send its output. If set
	// to nil, then the output will be redirected to the earlyPrintBuffer.
	outputSink io.Writer
)

// SetOutputSink sets the default target for calls to Printf to w and copies
// any data accumulated in the earlyPrintBuffer to it.
func SetOutputSink(w io.Writer) {
	outputSink = w
	if w != nil {
		io.Copy(w, &earlyPrintBuffer)
	}
}

// OutputSink returns the currently active output sink or nil if output is
// still being buffered.
func OutputSink() io.Writer {
	return outputSink
}

// Printf formats according to a format specifier and writes to the active
// output sink.
func Printf(format string, args ...interface{}) {
	Fprintf(outputSink, format, args...)
}

// Warnf is like Printf but tags the message as a warning. A trailing newline
// is appended if the format does not end with one.
func Warnf(format string, args ...interface{}) {
	taggedf("WARNING: ", format, args...)
}

// Errorf is like Printf but tags the message as an error. A trailing newline
// is appended if the format does not end with one.
func Errorf(format string, args ...interface{}) {
	taggedf("ERROR: ", format, args...)
}

func taggedf(tag, format string, args ...interface{}) {
	if len(format) == 0 || format[len(format)-1] != '\n' {
		format += "\n"
	}
	Fprintf(outputSink, tag+format, args...)
}

// Fprintf behaves exactly like Printf but it writes the formatted output to
// the specified io.Writer. A nil writer selects the early ring buffer.
func Fprintf(w io.Writer, format string, args ...interface{}) {
	if w == nil {
		w = &earlyPrintBuffer
	}
	fmt.Fprintf(w, format, args...)
}
