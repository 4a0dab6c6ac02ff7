package kfmt

import (
	"bytes"
	"testing"
)

func TestEarlyOutputReplay(t *testing.T) {
	defer func() {
		SetOutputSink(nil)
		earlyPrintBuffer = ringBuffer{}
	}()

	SetOutputSink(nil)
	earlyPrintBuffer = ringBuffer{}
	Printf("buffered %d\n", 1)

	var buf bytes.Buffer
	SetOutputSink(&buf)
	Printf("direct %s\n", "2")

	if exp, got := "buffered 1\ndirect 2\n", buf.String(); got != exp {
		t.Fatalf("expected %q; got %q", exp, got)
	}

	if OutputSink() != &buf {
		t.Fatal("expected OutputSink to return the active sink")
	}
}

func TestTaggedOutput(t *testing.T) {
	defer SetOutputSink(nil)

	var buf bytes.Buffer
	SetOutputSink(&buf)

	Warnf("no slot for irq %d", 5)
	Errorf("bad size 0x%x\n", 100)

	exp := "WARNING: no slot for irq 5\nERROR: bad size 0x64\n"
	if got := buf.String(); got != exp {
		t.Fatalf("expected %q; got %q", exp, got)
	}
}
