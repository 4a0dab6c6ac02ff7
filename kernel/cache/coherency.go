// Package cache keeps instruction caches consistent with data written to
// frames through a temporary mapping.
package cache

import (
	"procserv/kernel"
	"procserv/kernel/cspace"
	"procserv/kernel/kfmt"
	"procserv/kernel/mm"
)

// Unifier is the kernel invocation used to synchronise the instruction cache
// over a frame.
type Unifier interface {
	PageUnifyInstruction(frame cspace.CPtr, start, end uintptr) *kernel.Error
}

// Coherency flushes frames whose contents may have been modified through a
// data mapping.
type Coherency interface {
	// FlushFrames synchronises caches over every non-null frame in
	// frames. A nil or empty slice is a no-op.
	FlushFrames(frames []cspace.CPtr)
}

// Coherent is the Coherency implementation for architectures whose
// instruction and data caches are coherent.
type Coherent struct{}

// FlushFrames implements Coherency.
func (Coherent) FlushFrames([]cspace.CPtr) {}

// NonCoherent is the Coherency implementation for architectures that
// require an explicit instruction-cache unify after writing code pages.
type NonCoherent struct {
	Kernel Unifier
}

// FlushFrames implements Coherency.
func (c NonCoherent) FlushFrames(frames []cspace.CPtr) {
	for _, frame := range frames {
		if frame == 0 {
			continue
		}

		if err := c.Kernel.PageUnifyInstruction(frame, 0, mm.PageSize); err != nil {
			kfmt.Warnf("[cache] could not unify instruction cache for frame %d: %s", frame, err.Message)
		}
	}
}

// Default returns the Coherency implementation for the architecture the
// server is built for.
func Default(k Unifier) Coherency {
	if archNonCoherent {
		return NonCoherent{Kernel: k}
	}
	return Coherent{}
}
