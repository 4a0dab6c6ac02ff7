// Package syscall describes the microkernel invocations used by the process
// server. Every capability operation in the server goes through the Kernel
// interface so the same code runs against the real kernel and against the
// hosted implementation in package sim.
package syscall

import (
	"procserv/kernel"
	"procserv/kernel/cspace"
)

// ObjectType identifies a kind of kernel object that can be carved out of
// untyped memory.
type ObjectType uint8

// The object types used by the process server.
const (
	UntypedObject ObjectType = iota
	EndpointObject
	NotificationObject
	FrameObject
	PageTableObject
	CNodeObject
	TCBObject
)

var objectTypeNames = [...]string{
	UntypedObject:      "untyped",
	EndpointObject:     "endpoint",
	NotificationObject: "notification",
	FrameObject:        "frame",
	PageTableObject:    "page table",
	CNodeObject:        "cnode",
	TCBObject:          "tcb",
}

// String implements fmt.Stringer for ObjectType.
func (t ObjectType) String() string {
	if int(t) < len(objectTypeNames) {
		return objectTypeNames[t]
	}
	return "unknown"
}

// SizeBits returns log2 of the default memory footprint of an object. For
// untyped and CNode objects the size is always caller supplied and 0 is
// returned.
func (t ObjectType) SizeBits() uint8 {
	switch t {
	case EndpointObject:
		return 4
	case NotificationObject:
		return 4
	case FrameObject:
		return 12
	case PageTableObject:
		return 10
	case TCBObject:
		return 9
	default:
		return 0
	}
}

// ResolveSizeBits returns the size of an object of type t created with the
// requested size. Frames default to a base page but may be requested larger;
// all other fixed-size objects ignore the request.
func (t ObjectType) ResolveSizeBits(requested uint8) uint8 {
	def := t.SizeBits()
	switch {
	case def == 0:
		return requested
	case t == FrameObject && requested > def:
		return requested
	default:
		return def
	}
}

// Invocation errors reported by Kernel implementations.
var (
	ErrInvalidArgument   = &kernel.Error{Module: "syscall", Message: "invalid argument"}
	ErrInvalidCapability = &kernel.Error{Module: "syscall", Message: "invalid capability"}
	ErrIllegalOperation  = &kernel.Error{Module: "syscall", Message: "illegal operation"}
	ErrRangeError        = &kernel.Error{Module: "syscall", Message: "range error"}
	ErrFailedLookup      = &kernel.Error{Module: "syscall", Message: "failed lookup"}
	ErrDeleteFirst       = &kernel.Error{Module: "syscall", Message: "destination slot not empty"}
	ErrRevokeFirst       = &kernel.Error{Module: "syscall", Message: "object has derived capabilities"}
	ErrNotEnoughMemory   = &kernel.Error{Module: "syscall", Message: "not enough memory"}
)

// Kernel is the set of microkernel invocations performed by the process
// server.
type Kernel interface {
	// UntypedRetype creates one object of the given type from the untyped
	// capability and places its capability in dst. sizeBits is only used
	// for variable-sized objects.
	UntypedRetype(untyped cspace.CPtr, objType ObjectType, sizeBits uint8, dst cspace.Path) *kernel.Error

	// CNodeMint derives a copy of src into dst with reduced rights and the
	// given badge.
	CNodeMint(dst, src cspace.Path, rights cspace.Rights, badge cspace.Badge) *kernel.Error

	// CNodeCopy derives a copy of src into dst with reduced rights.
	CNodeCopy(dst, src cspace.Path, rights cspace.Rights) *kernel.Error

	// CNodeDelete removes the capability stored at path. Derived copies
	// held elsewhere are not affected.
	CNodeDelete(path cspace.Path) *kernel.Error

	// IRQControlGet creates the handler capability for irq in dst.
	IRQControlGet(irqControl cspace.CPtr, irq int, dst cspace.Path) *kernel.Error

	// PageTableMap installs a page table covering vaddr into vspaceRoot.
	PageTableMap(pageTable, vspaceRoot cspace.CPtr, vaddr uintptr) *kernel.Error

	// PageMap maps frame at vaddr in vspaceRoot. It fails with
	// ErrFailedLookup if no page table covers vaddr.
	PageMap(frame, vspaceRoot cspace.CPtr, vaddr uintptr, rights cspace.Rights, cacheable bool) *kernel.Error

	// PageUnmap removes the mapping established for frame.
	PageUnmap(frame cspace.CPtr) *kernel.Error

	// PageUnifyInstruction makes the instruction cache coherent with the
	// data cache over [start, end) bytes of frame.
	PageUnifyInstruction(frame cspace.CPtr, start, end uintptr) *kernel.Error
}
