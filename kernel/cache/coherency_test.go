package cache

import (
	"procserv/kernel"
	"procserv/kernel/cspace"
	"procserv/kernel/mm"
	"runtime"
	"testing"
)

type unifyRecorder struct {
	frames []cspace.CPtr
	err    *kernel.Error
}

func (r *unifyRecorder) PageUnifyInstruction(frame cspace.CPtr, start, end uintptr) *kernel.Error {
	if start != 0 || end != mm.PageSize {
		panic("expected unify to cover the whole frame")
	}
	r.frames = append(r.frames, frame)
	return r.err
}

func TestNonCoherentFlush(t *testing.T) {
	specs := []struct {
		frames []cspace.CPtr
		exp    []cspace.CPtr
	}{
		{nil, nil},
		{[]cspace.CPtr{}, nil},
		{[]cspace.CPtr{0, 42}, []cspace.CPtr{42}},
		{[]cspace.CPtr{7, 0, 9}, []cspace.CPtr{7, 9}},
	}

	for specIndex, spec := range specs {
		rec := &unifyRecorder{}
		NonCoherent{Kernel: rec}.FlushFrames(spec.frames)

		if len(rec.frames) != len(spec.exp) {
			t.Errorf("[spec %d] expected %d unify calls; got %d", specIndex, len(spec.exp), len(rec.frames))
			continue
		}

		for i, frame := range spec.exp {
			if rec.frames[i] != frame {
				t.Errorf("[spec %d] expected call %d to target frame %d; got %d", specIndex, i, frame, rec.frames[i])
			}
		}
	}
}

func TestNonCoherentFlushErrorsAreNotFatal(t *testing.T) {
	rec := &unifyRecorder{err: &kernel.Error{Module: "test", Message: "unify failed"}}
	NonCoherent{Kernel: rec}.FlushFrames([]cspace.CPtr{1, 2})

	if exp, got := 2, len(rec.frames); got != exp {
		t.Fatalf("expected every frame to be attempted; got %d calls", got)
	}
}

func TestCoherentFlush(t *testing.T) {
	// Must not touch the frames at all.
	Coherent{}.FlushFrames([]cspace.CPtr{0, 1, 2})
}

func TestDefault(t *testing.T) {
	rec := &unifyRecorder{}
	c := Default(rec)

	_, nonCoherent := c.(NonCoherent)
	switch runtime.GOARCH {
	case "arm", "arm64":
		if !nonCoherent {
			t.Fatalf("expected NonCoherent on %s", runtime.GOARCH)
		}
	default:
		if nonCoherent {
			t.Fatalf("expected Coherent on %s", runtime.GOARCH)
		}
	}
}
