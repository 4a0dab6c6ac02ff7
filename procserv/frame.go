package procserv

import (
	"procserv/kernel"
	"procserv/kernel/cspace"
	"procserv/kernel/kfmt"
	"procserv/kernel/mm"
)

// WriteFrame copies src into frame starting at offset. The frame is
// temporarily mapped into the server address space and flushed before it is
// unmapped again.
func (s *State) WriteFrame(frame cspace.CPtr, src []byte, offset uintptr) *kernel.Error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !transferInBounds(len(src), offset) {
		kfmt.Errorf("procserv_frame_write invalid offset 0x%x and length %d", offset, len(src))
		return ErrInvalidParam
	}

	return s.withFrameMapped(frame, func(page []byte) {
		copy(page[offset:], src)
		s.coherency.FlushFrames([]cspace.CPtr{frame})
	})
}

// ReadFrame copies len(dst) bytes out of frame starting at offset.
func (s *State) ReadFrame(frame cspace.CPtr, dst []byte, offset uintptr) *kernel.Error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !transferInBounds(len(dst), offset) {
		kfmt.Errorf("procserv_frame_read invalid offset 0x%x and length %d", offset, len(dst))
		return ErrInvalidParam
	}

	return s.withFrameMapped(frame, func(page []byte) {
		s.coherency.FlushFrames([]cspace.CPtr{frame})
		copy(dst, page[offset:])
	})
}

// FlushFrames makes the data and instruction caches coherent for every
// frame in the list. Zero entries are skipped.
func (s *State) FlushFrames(frames []cspace.CPtr) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.coherency.FlushFrames(frames)
}

// transferInBounds returns true if a transfer of length bytes at offset stays
// within a single page.
func transferInBounds(length int, offset uintptr) bool {
	return length >= 0 && offset <= mm.PageSize && uintptr(length) <= mm.PageSize-offset
}

// withFrameMapped maps frame, passes the page contents to fn and unmaps the
// frame again. The caller must hold the state lock.
func (s *State) withFrameMapped(frame cspace.CPtr, fn func(page []byte)) *kernel.Error {
	vaddr, err := s.vspace.MapPages([]cspace.CPtr{frame}, cspace.AllRights, mm.PageShift, true)
	if err != nil {
		kfmt.Errorf("procserv could not map frame %d: %s", frame, err.Message)
		return ErrNoMem
	}
	defer func() {
		if err := s.vspace.UnmapPages(vaddr, 1, mm.PageShift); err != nil {
			kfmt.Warnf("procserv could not unmap frame %d: %s", frame, err.Message)
		}
	}()

	page := s.vspace.Bytes(vaddr, mm.PageSize)
	if page == nil {
		kfmt.Errorf("procserv frame %d mapped at 0x%x is not accessible", frame, vaddr)
		return ErrNoMem
	}

	fn(page)
	return nil
}
