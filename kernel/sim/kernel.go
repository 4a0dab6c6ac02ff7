// Package sim provides a hosted implementation of the microkernel invocations
// used by the process server. It keeps a single root CNode, a single address
// space and a sparse physical memory, and enforces the same slot, untyped and
// mapping rules as the real kernel so that allocator and primitive code can
// be exercised without hardware.
package sim

import (
	"procserv/kernel"
	"procserv/kernel/cspace"
	"procserv/kernel/mm"
	"procserv/kernel/syscall"
)

// Invocation names accepted by Calls and FailNext.
const (
	OpUntypedRetype        = "UntypedRetype"
	OpCNodeMint            = "CNodeMint"
	OpCNodeCopy            = "CNodeCopy"
	OpCNodeDelete          = "CNodeDelete"
	OpIRQControlGet        = "IRQControlGet"
	OpPageTableMap         = "PageTableMap"
	OpPageMap              = "PageMap"
	OpPageUnmap            = "PageUnmap"
	OpPageUnifyInstruction = "PageUnifyInstruction"
)

type objKind uint8

const (
	kindUntyped objKind = iota
	kindEndpoint
	kindNotification
	kindFrame
	kindPageTable
	kindCNode
	kindTCB
	kindVSpace
	kindIRQControl
	kindIRQHandler
	kindASIDControl
	kindASIDPool
	kindDomain
)

var retypeKinds = map[syscall.ObjectType]objKind{
	syscall.UntypedObject:      kindUntyped,
	syscall.EndpointObject:     kindEndpoint,
	syscall.NotificationObject: kindNotification,
	syscall.FrameObject:        kindFrame,
	syscall.PageTableObject:    kindPageTable,
	syscall.CNodeObject:        kindCNode,
	syscall.TCBObject:          kindTCB,
}

// object is a kernel object. It is destroyed once the last capability that
// refers to it is deleted.
type object struct {
	kind     objKind
	paddr    uintptr
	sizeBits uint8
	refs     int

	// untyped state
	device    bool
	watermark uintptr
	children  int
	parent    *object

	// frame and page table state
	mapped bool
	vaddr  uintptr

	irq int
}

type capability struct {
	obj    *object
	rights cspace.Rights
	badge  cspace.Badge
}

// Kernel is a hosted microkernel instance. It implements syscall.Kernel and
// vspace.Memory.
//
// Kernel is not safe for concurrent use.
type Kernel struct {
	slots     map[cspace.CPtr]*capability
	slotCount int

	// vspace is the object behind the root task VSpace capability.
	vspace *object

	pageTables map[uintptr]*object
	mappings   map[mm.Page]*object
	phys       map[uintptr][]byte

	maxIRQ  int
	claimed map[int]bool

	calls    map[string]int
	failures map[string]*kernel.Error

	// Unified records the frames passed to PageUnifyInstruction.
	Unified []cspace.CPtr
}

func newKernel(slotCount, maxIRQ int) *Kernel {
	return &Kernel{
		slots:      make(map[cspace.CPtr]*capability),
		slotCount:  slotCount,
		pageTables: make(map[uintptr]*object),
		mappings:   make(map[mm.Page]*object),
		phys:       make(map[uintptr][]byte),
		maxIRQ:     maxIRQ,
		claimed:    make(map[int]bool),
		calls:      make(map[string]int),
		failures:   make(map[string]*kernel.Error),
	}
}

// Calls returns the number of times the named invocation was performed,
// including failed attempts.
func (k *Kernel) Calls(op string) int {
	return k.calls[op]
}

// FailNext makes the next call to the named invocation return err without
// side effects.
func (k *Kernel) FailNext(op string, err *kernel.Error) {
	k.failures[op] = err
}

// UsedSlots returns the number of non-empty slots in the root CNode.
func (k *Kernel) UsedSlots() int {
	return len(k.slots)
}

// Occupied returns true if the slot at cptr holds a capability.
func (k *Kernel) Occupied(cptr cspace.CPtr) bool {
	_, ok := k.slots[cptr]
	return ok
}

// Badge returns the badge and rights of the capability stored at cptr.
func (k *Kernel) Badge(cptr cspace.CPtr) (cspace.Badge, cspace.Rights, bool) {
	c, ok := k.slots[cptr]
	if !ok {
		return 0, 0, false
	}
	return c.badge, c.rights, true
}

// FramePhysAddr returns the physical address of the frame stored at cptr.
func (k *Kernel) FramePhysAddr(cptr cspace.CPtr) (uintptr, bool) {
	c, ok := k.slots[cptr]
	if !ok || c.obj.kind != kindFrame {
		return 0, false
	}
	return c.obj.paddr, true
}

// IRQHandlerLine returns the interrupt line served by the handler capability
// stored at cptr.
func (k *Kernel) IRQHandlerLine(cptr cspace.CPtr) (int, bool) {
	c, ok := k.slots[cptr]
	if !ok || c.obj.kind != kindIRQHandler {
		return 0, false
	}
	return c.obj.irq, true
}

// Mappings returns the number of pages currently mapped in the root task
// address space.
func (k *Kernel) Mappings() int {
	return len(k.mappings)
}

// PhysBytes returns the page of physical memory containing paddr.
func (k *Kernel) PhysBytes(paddr uintptr) []byte {
	return k.physPage(paddr &^ (mm.PageSize - 1))
}

// enter records an invocation and returns an injected failure, if any.
func (k *Kernel) enter(op string) *kernel.Error {
	k.calls[op]++
	if err, ok := k.failures[op]; ok {
		delete(k.failures, op)
		return err
	}
	return nil
}

func (k *Kernel) lookup(cptr cspace.CPtr) (*capability, *kernel.Error) {
	if cptr == 0 {
		return nil, syscall.ErrInvalidCapability
	}

	c, ok := k.slots[cptr]
	if !ok {
		return nil, syscall.ErrFailedLookup
	}
	return c, nil
}

func (k *Kernel) lookupKind(cptr cspace.CPtr, kind objKind) (*capability, *kernel.Error) {
	c, err := k.lookup(cptr)
	if err != nil {
		return nil, err
	}

	if c.obj.kind != kind {
		return nil, syscall.ErrIllegalOperation
	}
	return c, nil
}

// emptySlot validates dst as a target for a new capability.
func (k *Kernel) emptySlot(dst cspace.Path) *kernel.Error {
	if dst.CapPtr == 0 || int(dst.CapPtr) >= k.slotCount || dst.Depth != cspace.WordBits {
		return syscall.ErrRangeError
	}

	if root, ok := k.slots[dst.Root]; !ok || root.obj.kind != kindCNode {
		return syscall.ErrFailedLookup
	}

	if _, occupied := k.slots[dst.CapPtr]; occupied {
		return syscall.ErrDeleteFirst
	}
	return nil
}

func (k *Kernel) install(cptr cspace.CPtr, obj *object, rights cspace.Rights, badge cspace.Badge) {
	obj.refs++
	k.slots[cptr] = &capability{obj: obj, rights: rights, badge: badge}
}

func (k *Kernel) physPage(paddr uintptr) []byte {
	page, ok := k.phys[paddr]
	if !ok {
		page = make([]byte, mm.PageSize)
		k.phys[paddr] = page
	}
	return page
}

// destroy releases the resources held by an object whose last capability
// has been deleted.
func (k *Kernel) destroy(obj *object) {
	if obj.parent != nil {
		obj.parent.children--
	}

	switch obj.kind {
	case kindFrame:
		if obj.mapped {
			delete(k.mappings, mm.PageFromAddress(obj.vaddr))
		}
	case kindPageTable:
		if obj.mapped {
			delete(k.pageTables, obj.vaddr>>mm.PageTableShift)
		}
	case kindIRQHandler:
		delete(k.claimed, obj.irq)
	}
}
