// Package bootinfo describes the capability inventory handed to the root
// task by the microkernel at startup.
package bootinfo

import (
	"procserv/kernel/cspace"
	"procserv/kernel/kfmt"
	"procserv/kernel/mm"
)

// Capabilities placed by the kernel at fixed slots of the root task's CNode.
const (
	CapNull cspace.CPtr = iota
	CapInitThreadTCB
	CapInitThreadCNode
	CapInitThreadVSpace
	CapIRQControl
	CapASIDControl
	CapInitThreadASIDPool
	CapIOPortControl
	CapIOSpace
	CapBootInfoFrame
	CapInitThreadIPCBuffer
	CapDomain

	// NumInitialCaps is the first slot index not used by an initial
	// capability.
	NumInitialCaps
)

// SlotRegion is a half-open range [Start, End) of capability slots.
type SlotRegion struct {
	Start, End cspace.CPtr
}

// Len returns the number of slots in the region.
func (r SlotRegion) Len() int {
	if r.End <= r.Start {
		return 0
	}
	return int(r.End - r.Start)
}

// Contains returns true if cptr lies in the region.
func (r SlotRegion) Contains(cptr cspace.CPtr) bool {
	return cptr >= r.Start && cptr < r.End
}

// UntypedDesc describes the memory behind one untyped capability.
type UntypedDesc struct {
	// The physical address of the region start.
	PhysAddr uintptr

	// log2 of the region size in bytes.
	SizeBits uint8

	// IsDevice is set for regions that map device memory. Device untyped
	// can only be retyped into frames and untyped objects.
	IsDevice bool
}

// Size returns the region size in bytes.
func (d *UntypedDesc) Size() uintptr {
	return uintptr(1) << d.SizeBits
}

// Covers returns true if the byte range [paddr, paddr+size) lies inside the
// described region.
func (d *UntypedDesc) Covers(paddr, size uintptr) bool {
	return paddr >= d.PhysAddr && size <= d.Size() && paddr-d.PhysAddr <= d.Size()-size
}

// Info is the boot capability inventory.
type Info struct {
	// CNodeSizeBits is log2 of the number of slots in the root CNode.
	CNodeSizeBits uint8

	// Empty lists the slots that are free for use by the root task.
	Empty SlotRegion

	// UserImageFrames lists the frame capabilities that back the root
	// task image.
	UserImageFrames SlotRegion

	// Untyped lists the untyped capabilities. Untyped[i] is described by
	// UntypedList[i].
	Untyped     SlotRegion
	UntypedList []UntypedDesc

	// ImageStart and ImageEnd delimit the virtual range occupied by the
	// root task image.
	ImageStart, ImageEnd uintptr

	// IPCBuffer and BootInfoAddr are the virtual addresses of the pages
	// that hold the initial thread's IPC buffer and this structure.
	IPCBuffer    uintptr
	BootInfoAddr uintptr
}

// VisitUntyped invokes visitor for each untyped capability described by the
// inventory. If visitor returns false, VisitUntyped aborts its scan.
func (info *Info) VisitUntyped(visitor func(cptr cspace.CPtr, desc *UntypedDesc) bool) {
	for i := range info.UntypedList {
		if info.Untyped.Start+cspace.CPtr(i) >= info.Untyped.End {
			return
		}

		if !visitor(info.Untyped.Start+cspace.CPtr(i), &info.UntypedList[i]) {
			return
		}
	}
}

// Print dumps the boot inventory to the server log.
func (info *Info) Print() {
	var ramTotal, deviceTotal mm.Size

	kfmt.Printf("--- boot info ---\n")
	kfmt.Printf("cnode size: %d slots\n", 1<<info.CNodeSizeBits)
	kfmt.Printf("empty slots: [%d - %d)\n", info.Empty.Start, info.Empty.End)
	kfmt.Printf("user image frames: [%d - %d)\n", info.UserImageFrames.Start, info.UserImageFrames.End)
	kfmt.Printf("image: [0x%x - 0x%x), ipc buffer: 0x%x\n", info.ImageStart, info.ImageEnd, info.IPCBuffer)
	kfmt.Printf("untyped: [%d - %d)\n", info.Untyped.Start, info.Untyped.End)
	info.VisitUntyped(func(cptr cspace.CPtr, desc *UntypedDesc) bool {
		kind := "ram"
		if desc.IsDevice {
			kind = "device"
			deviceTotal += mm.Size(desc.Size())
		} else {
			ramTotal += mm.Size(desc.Size())
		}
		kfmt.Printf("\t%4d: paddr 0x%08x, size bits %2d, %s\n", cptr, desc.PhysAddr, desc.SizeBits, kind)
		return true
	})
	kfmt.Printf("untyped ram: %dKb, device: %dKb\n", uint64(ramTotal/mm.Kb), uint64(deviceTotal/mm.Kb))
	kfmt.Printf("-----------------\n")
}
