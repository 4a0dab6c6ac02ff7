// Package alloc implements the process server's kernel-object allocator. The
// allocator bootstraps itself from the boot capability inventory and a
// statically reserved pool that funds its bookkeeping until a larger virtual
// pool is configured.
package alloc

import (
	"procserv/bootinfo"
	"procserv/kernel"
	"procserv/kernel/cspace"
	"procserv/kernel/kfmt"
	"procserv/kernel/syscall"
	"procserv/kernel/vka"
)

// Bookkeeping costs charged against the active pool.
const (
	headerCost        = 256
	untypedRecordCost = 32
	objectRecordCost  = 16
)

var (
	errPoolExhausted        = &kernel.Error{Module: "alloc", Message: "bootstrap memory pool exhausted"}
	errVirtualPoolExhausted = &kernel.Error{Module: "alloc", Message: "virtual memory pool exhausted"}
	errNoUntypedList        = &kernel.Error{Module: "alloc", Message: "boot inventory does not describe any untyped memory"}
	errNoEmptySlots         = &kernel.Error{Module: "alloc", Message: "boot inventory does not describe any empty slots"}
)

// Allocator carves capability slots and kernel objects out of the resources
// listed in the boot inventory. It implements vka.VKA.
//
// Allocator is not safe for concurrent use.
type Allocator struct {
	kern  syscall.Kernel
	root  cspace.CPtr
	depth uint8

	// pool backs the allocator bookkeeping until a virtual pool is
	// configured. The slot bitmap is stored at its start.
	pool     []byte
	poolUsed uintptr

	virt virtualPool

	slots    slotBitmap
	untypeds []untypedRecord
	objects  map[cspace.CPtr]objectRecord
}

// Stats is a snapshot of the allocator state.
type Stats struct {
	// FreeSlots is the number of unallocated capability slots.
	FreeSlots int

	// LiveObjects is the number of kernel objects created and not yet
	// freed.
	LiveObjects int

	// PoolUsed and VirtualPoolUsed track the bookkeeping bytes charged to
	// the static and virtual pools.
	PoolUsed        uintptr
	VirtualPoolUsed uintptr

	// VirtualPoolMapped is the number of bytes of the virtual pool that
	// are backed by frames.
	VirtualPoolMapped uintptr
}

// BootstrapCost returns the number of pool bytes consumed by Bootstrap for
// the given inventory.
func BootstrapCost(info *bootinfo.Info) uintptr {
	return headerCost + uintptr(len(info.UntypedList))*untypedRecordCost + bitmapBytes(info.Empty.Len())
}

// Bootstrap creates an allocator that manages the empty slots and the RAM
// untyped capabilities listed in info. The supplied pool must remain
// untouched by the caller for the lifetime of the allocator.
func Bootstrap(info *bootinfo.Info, pool []byte, kern syscall.Kernel) (*Allocator, *kernel.Error) {
	if info.Empty.Len() == 0 {
		return nil, errNoEmptySlots
	}

	if len(info.UntypedList) == 0 {
		return nil, errNoUntypedList
	}

	a := &Allocator{
		kern:    kern,
		root:    bootinfo.CapInitThreadCNode,
		depth:   cspace.WordBits,
		pool:    pool,
		objects: make(map[cspace.CPtr]objectRecord),
	}

	if err := a.charge(headerCost); err != nil {
		return nil, err
	}

	info.VisitUntyped(func(cptr cspace.CPtr, desc *bootinfo.UntypedDesc) bool {
		a.untypeds = append(a.untypeds, untypedRecord{cptr: cptr, desc: *desc})
		return true
	})
	if err := a.charge(uintptr(len(a.untypeds)) * untypedRecordCost); err != nil {
		return nil, err
	}

	bitmapLen := bitmapBytes(info.Empty.Len())
	start := a.poolUsed
	if err := a.charge(bitmapLen); err != nil {
		return nil, err
	}
	a.slots.init(info.Empty, a.pool[start:start+bitmapLen])

	kfmt.Printf("[alloc] managing %d slots and %d untyped regions; pool usage %d/%d bytes\n",
		a.slots.free, len(a.untypeds), a.poolUsed, len(a.pool))
	return a, nil
}

// Stats returns a snapshot of the allocator state.
func (a *Allocator) Stats() Stats {
	return Stats{
		FreeSlots:         a.slots.free,
		LiveObjects:       len(a.objects),
		PoolUsed:          a.poolUsed,
		VirtualPoolUsed:   a.virt.used,
		VirtualPoolMapped: a.virt.mapped,
	}
}

// CSpaceAllocPath implements vka.VKA.
func (a *Allocator) CSpaceAllocPath() (cspace.Path, *kernel.Error) {
	cptr, err := a.slots.alloc()
	if err != nil {
		return cspace.Path{}, err
	}

	return a.CSpaceMakePath(cptr), nil
}

// CSpaceMakePath implements vka.VKA.
func (a *Allocator) CSpaceMakePath(cptr cspace.CPtr) cspace.Path {
	return cspace.Path{Root: a.root, CapPtr: cptr, Depth: a.depth}
}

// Allocated returns true if cptr is a slot handed out by the allocator and
// not yet freed.
func (a *Allocator) Allocated(cptr cspace.CPtr) bool {
	return a.slots.allocated(cptr)
}

// CSpaceFree implements vka.VKA.
func (a *Allocator) CSpaceFree(cptr cspace.CPtr) {
	if err := a.slots.release(cptr); err != nil {
		kfmt.Warnf("[alloc] cannot free slot %d: %s", cptr, err.Message)
	}
}

// charge accounts for n bytes of bookkeeping against the active pool.
func (a *Allocator) charge(n uintptr) *kernel.Error {
	if !a.virt.active {
		if a.poolUsed+n > uintptr(len(a.pool)) {
			return errPoolExhausted
		}
		a.poolUsed += n
		return nil
	}

	if a.virt.used+n > a.virt.size {
		return errVirtualPoolExhausted
	}
	a.virt.used += n

	for !a.virt.growing && a.virt.used+growHeadroom > a.virt.mapped && a.virt.mapped < a.virt.size {
		if err := a.growVirtualPool(); err != nil {
			a.virt.used -= n
			return err
		}
	}

	return nil
}

// refund returns n bookkeeping bytes to the pool they were charged to.
func (a *Allocator) refund(n uintptr, fromVirtual bool) {
	if fromVirtual {
		a.virt.used -= n
		return
	}
	a.poolUsed -= n
}

var _ vka.VKA = (*Allocator)(nil)
