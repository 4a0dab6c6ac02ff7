package vka

import (
	"procserv/kernel"
	"procserv/kernel/cspace"
)

// Slot is an owned capability slot. Until Release is called, Close deletes
// whatever capability the slot holds and returns the slot to its allocator,
// so a deferred Close undoes a partially built slot on every error path:
//
//	slot, err := vka.NewSlot(v, k)
//	if err != nil {
//		return cspace.Path{}, err
//	}
//	defer slot.Close()
//	if err := k.CNodeMint(slot.Path(), src, rights, badge); err != nil {
//		return cspace.Path{}, err
//	}
//	return slot.Release(), nil
type Slot struct {
	path     cspace.Path
	vka      VKA
	deleter  Deleter
	released bool
	filled   bool
}

// Deleter removes a capability from a slot.
type Deleter interface {
	CNodeDelete(path cspace.Path) *kernel.Error
}

// NewSlot allocates a slot from v. If d is not nil, Close also deletes the
// slot contents once MarkFilled has been called.
func NewSlot(v VKA, d Deleter) (*Slot, *kernel.Error) {
	path, err := v.CSpaceAllocPath()
	if err != nil {
		return nil, err
	}

	return &Slot{path: path, vka: v, deleter: d}, nil
}

// Path returns the slot path.
func (s *Slot) Path() cspace.Path {
	return s.path
}

// MarkFilled records that a capability has been placed in the slot.
func (s *Slot) MarkFilled() {
	s.filled = true
}

// Release transfers ownership of the slot to the caller. Subsequent calls to
// Close have no effect.
func (s *Slot) Release() cspace.Path {
	s.released = true
	return s.path
}

// Close returns the slot to its allocator unless it has been released.
// Calling Close more than once has no effect.
func (s *Slot) Close() {
	if s == nil || s.released {
		return
	}
	s.released = true

	if s.filled && s.deleter != nil {
		_ = s.deleter.CNodeDelete(s.path)
	}
	s.vka.CSpaceFree(s.path.CapPtr)
}
