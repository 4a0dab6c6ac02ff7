package procserv

import (
	"bytes"
	"procserv/kernel/cache"
	"procserv/kernel/cspace"
	"procserv/kernel/mm"
	"procserv/kernel/sim"
	"procserv/kernel/vka"
	"testing"
)

// flushRecorder records the contents of every flushed frame at the time of
// the flush.
type flushRecorder struct {
	kern     *sim.Kernel
	frames   []cspace.CPtr
	contents [][]byte
}

func (r *flushRecorder) FlushFrames(frames []cspace.CPtr) {
	for _, frame := range frames {
		paddr, _ := r.kern.FramePhysAddr(frame)
		r.frames = append(r.frames, frame)
		r.contents = append(r.contents, append([]byte(nil), r.kern.PhysBytes(paddr)...))
	}
}

func bootFrameState(t *testing.T) (*State, *sim.Kernel, *flushRecorder, cspace.CPtr) {
	rec := &flushRecorder{}
	s, k := bootState(t, Config{Coherency: rec})
	rec.kern = k

	frame, err := vka.AllocFrame(s.VKA())
	if err != nil {
		t.Fatal(err)
	}
	return s, k, rec, frame.CPtr
}

func TestFrameRoundTrip(t *testing.T) {
	s, k, rec, frame := bootFrameState(t)
	mappings, pageMaps := k.Mappings(), k.Calls(sim.OpPageMap)

	payload := []byte("process server frame transfer")
	offset := uintptr(100)
	if err := s.WriteFrame(frame, payload, offset); err != nil {
		t.Fatal(err)
	}

	paddr, _ := k.FramePhysAddr(frame)
	if got := k.PhysBytes(paddr)[offset : offset+uintptr(len(payload))]; !bytes.Equal(got, payload) {
		t.Fatalf("expected frame to contain %q; got %q", payload, got)
	}

	// Writes are flushed after the copy.
	if len(rec.contents) != 1 || !bytes.Equal(rec.contents[0][offset:offset+uintptr(len(payload))], payload) {
		t.Fatal("expected the frame to be flushed after the data was written")
	}

	got := make([]byte, len(payload))
	if err := s.ReadFrame(frame, got, offset); err != nil {
		t.Fatal(err)
	}

	if !bytes.Equal(got, payload) {
		t.Fatalf("expected to read back %q; got %q", payload, got)
	}

	if len(rec.frames) != 2 || rec.frames[1] != frame {
		t.Fatalf("expected the read to flush frame %d; got %v", frame, rec.frames)
	}

	// Both transfers mapped the frame and unmapped it again.
	if exp, got := pageMaps+2, k.Calls(sim.OpPageMap); got != exp {
		t.Fatalf("expected %d page mappings; got %d", exp, got)
	}

	if k.Mappings() != mappings || s.VSpace().MappedPages() != 0 {
		t.Fatalf("expected transfer mappings to be removed; kernel %d, vspace %d", k.Mappings(), s.VSpace().MappedPages())
	}

	if !k.Occupied(frame) {
		t.Fatal("expected the frame to survive the transfer")
	}
}

func TestFrameTransferBounds(t *testing.T) {
	s, k, _, frame := bootFrameState(t)
	pageMaps := k.Calls(sim.OpPageMap)

	specs := []struct {
		offset uintptr
		length int
	}{
		{mm.PageSize, 1},
		{mm.PageSize - 100, 101},
		{mm.PageSize + 1, 0},
		{^uintptr(0), 2},
		{0, int(mm.PageSize) + 1},
	}

	for specIndex, spec := range specs {
		buf := make([]byte, spec.length)
		if err := s.WriteFrame(frame, buf, spec.offset); err != ErrInvalidParam {
			t.Errorf("[spec %d] expected WriteFrame to return ErrInvalidParam; got %v", specIndex, err)
		}
		if err := s.ReadFrame(frame, buf, spec.offset); err != ErrInvalidParam {
			t.Errorf("[spec %d] expected ReadFrame to return ErrInvalidParam; got %v", specIndex, err)
		}
	}

	if got := k.Calls(sim.OpPageMap); got != pageMaps {
		t.Fatalf("expected rejected transfers not to map anything; got %d new mappings", got-pageMaps)
	}

	// Transfers touching the last byte of the page are allowed.
	full := bytes.Repeat([]byte{0xaa}, int(mm.PageSize))
	if err := s.WriteFrame(frame, full, 0); err != nil {
		t.Fatal(err)
	}
	if err := s.WriteFrame(frame, nil, mm.PageSize); err != nil {
		t.Fatalf("expected zero length transfer at the end of the page to succeed; got %v", err)
	}
}

func TestFrameTransferZeroLength(t *testing.T) {
	s, k, _, frame := bootFrameState(t)
	mappings, pageMaps, unmaps := k.Mappings(), k.Calls(sim.OpPageMap), k.Calls(sim.OpPageUnmap)

	if err := s.ReadFrame(frame, nil, 0); err != nil {
		t.Fatal(err)
	}

	if k.Calls(sim.OpPageMap) != pageMaps+1 || k.Calls(sim.OpPageUnmap) != unmaps+1 {
		t.Fatal("expected a zero length transfer to map and unmap the frame")
	}

	if k.Mappings() != mappings {
		t.Fatalf("expected %d mappings; got %d", mappings, k.Mappings())
	}
}

func TestFrameTransferMapFailure(t *testing.T) {
	s, k, rec, _ := bootFrameState(t)
	mappings := k.Mappings()

	specs := []cspace.CPtr{
		// Null cap.
		0,
		// Not a frame.
		s.Endpoint().CPtr,
	}

	for specIndex, frame := range specs {
		if err := s.WriteFrame(frame, []byte{1}, 0); err != ErrNoMem {
			t.Errorf("[spec %d] expected ErrNoMem; got %v", specIndex, err)
		}
	}

	if k.Mappings() != mappings || s.VSpace().MappedPages() != 0 {
		t.Fatal("expected failed transfers to leave no mappings")
	}

	if len(rec.frames) != 0 {
		t.Fatal("expected no flushes for failed transfers")
	}
}

func TestFlushFrames(t *testing.T) {
	k, info := sim.Boot(sim.Config{})
	s, err := initialise(info, Config{Kernel: k, Memory: k, Coherency: cache.NonCoherent{Kernel: k}})
	if err != nil {
		t.Fatal(err)
	}

	frame, _ := vka.AllocFrame(s.VKA())

	s.FlushFrames(nil)
	s.FlushFrames([]cspace.CPtr{0, frame.CPtr, 0})

	if len(k.Unified) != 1 || k.Unified[0] != frame.CPtr {
		t.Fatalf("expected only frame %d to be unified; got %v", frame.CPtr, k.Unified)
	}
}
