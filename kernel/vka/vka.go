// Package vka defines the virtual kernel allocator interface through which
// every component of the process server obtains capability slots and kernel
// objects.
package vka

import (
	"procserv/kernel"
	"procserv/kernel/cspace"
	"procserv/kernel/syscall"
)

// Object describes a kernel object created by a VKA.
type Object struct {
	// CPtr is the slot holding the object capability.
	CPtr cspace.CPtr

	// Type is the object type.
	Type syscall.ObjectType

	// SizeBits is log2 of the object size in bytes.
	SizeBits uint8
}

// VKA hands out capability slots and kernel objects.
type VKA interface {
	// CSpaceAllocPath reserves an empty slot.
	CSpaceAllocPath() (cspace.Path, *kernel.Error)

	// CSpaceMakePath returns the path for an already allocated slot.
	CSpaceMakePath(cptr cspace.CPtr) cspace.Path

	// CSpaceFree returns a slot to the allocator. The slot must be empty.
	CSpaceFree(cptr cspace.CPtr)

	// AllocObject creates a new kernel object in a freshly allocated slot.
	// sizeBits is only used for variable-sized object types.
	AllocObject(objType syscall.ObjectType, sizeBits uint8) (Object, *kernel.Error)

	// FreeObject deletes the object capability and releases its slot.
	FreeObject(obj Object)
}

// AllocEndpoint creates a new endpoint object.
func AllocEndpoint(v VKA) (Object, *kernel.Error) {
	return v.AllocObject(syscall.EndpointObject, 0)
}

// AllocFrame creates a new page-sized frame object.
func AllocFrame(v VKA) (Object, *kernel.Error) {
	return v.AllocObject(syscall.FrameObject, 0)
}

// MapPage maps frame at vaddr in vspaceRoot. If no page table covers vaddr a
// new one is allocated from v, installed and returned so that the caller can
// track it; a zero Object is returned when an existing page table was used.
func MapPage(v VKA, k syscall.Kernel, frame, vspaceRoot cspace.CPtr, vaddr uintptr, rights cspace.Rights, cacheable bool) (Object, *kernel.Error) {
	err := k.PageMap(frame, vspaceRoot, vaddr, rights, cacheable)
	if err != syscall.ErrFailedLookup {
		return Object{}, err
	}

	pt, err := v.AllocObject(syscall.PageTableObject, 0)
	if err != nil {
		return Object{}, err
	}

	if err = k.PageTableMap(pt.CPtr, vspaceRoot, vaddr); err != nil {
		v.FreeObject(pt)
		return Object{}, err
	}

	if err = k.PageMap(frame, vspaceRoot, vaddr, rights, cacheable); err != nil {
		// The page table stays installed; it is still a valid table
		// for future mappings in the same range.
		return pt, err
	}

	return pt, nil
}
