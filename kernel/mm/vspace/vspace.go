// Package vspace manages the process server's own virtual address space:
// it keeps track of the regions used by the boot image, reservations and
// transient page mappings, and creates page tables on demand.
package vspace

import (
	"procserv/bootinfo"
	"procserv/kernel"
	"procserv/kernel/cspace"
	"procserv/kernel/kfmt"
	"procserv/kernel/mm"
	"procserv/kernel/syscall"
	"procserv/kernel/vka"
	"sort"
	"unsafe"
)

const (
	// ManagedStart and ManagedEnd delimit the part of the address space
	// handed out by the manager. The first page is never mapped so that
	// null pointer dereferences fault.
	ManagedStart = uintptr(0x00001000)
	ManagedEnd   = uintptr(0xe0000000)
)

var (
	errBadBootImage = &kernel.Error{Module: "vspace", Message: "boot image extents are invalid"}
	errNoSpace      = &kernel.Error{Module: "vspace", Message: "no free virtual region large enough for request"}
)

// Memory provides access to the bytes behind a mapped virtual range.
type Memory interface {
	// Bytes returns a slice aliasing size bytes starting at vaddr. The
	// range must be mapped and must not cross a page boundary.
	Bytes(vaddr, size uintptr) []byte
}

// DirectMemory accesses mapped ranges through the server's own page tables.
// It is the Memory implementation used when running on the real kernel.
type DirectMemory struct{}

// Bytes implements Memory.
func (DirectMemory) Bytes(vaddr, size uintptr) []byte {
	if size == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(vaddr)), size)
}

type regionKind uint8

const (
	regionBoot regionKind = iota
	regionReserved
	regionMapped
)

// region is a used, page-aligned range [start, end).
type region struct {
	start, end uintptr
	kind       regionKind
	id         int
}

// Reservation is a handle to a virtual range reserved with ReserveRange.
type Reservation struct {
	id         int
	Start, End uintptr
	Rights     cspace.Rights
	Cacheable  bool
}

// VSpace is the address-space manager of the root task.
//
// VSpace is not safe for concurrent use.
type VSpace struct {
	root cspace.CPtr
	vka  vka.VKA
	kern syscall.Kernel
	mem  Memory

	// regions is sorted by start address and contains no overlapping
	// entries.
	regions []region
	nextID  int

	pages      map[mm.Page]cspace.CPtr
	pageTables map[uintptr]vka.Object
}

// Bootstrap creates the manager for the address space rooted at vspaceRoot.
// Ranges already populated by the kernel (the root task image, its IPC
// buffer and the boot info frame) are recorded as permanently used.
func Bootstrap(info *bootinfo.Info, vspaceRoot cspace.CPtr, v vka.VKA, kern syscall.Kernel, mem Memory) (*VSpace, *kernel.Error) {
	if info.ImageEnd < info.ImageStart {
		return nil, errBadBootImage
	}

	vs := &VSpace{
		root:       vspaceRoot,
		vka:        v,
		kern:       kern,
		mem:        mem,
		pages:      make(map[mm.Page]cspace.CPtr),
		pageTables: make(map[uintptr]vka.Object),
	}

	if info.ImageEnd > info.ImageStart {
		vs.markUsed(info.ImageStart&^(mm.PageSize-1), mm.PageAlign(info.ImageEnd))
	}
	for _, addr := range []uintptr{info.IPCBuffer, info.BootInfoAddr} {
		if addr != 0 {
			page := addr &^ (mm.PageSize - 1)
			vs.markUsed(page, page+mm.PageSize)
		}
	}

	kfmt.Printf("[vspace] managing [0x%x - 0x%x), %d boot regions\n", ManagedStart, ManagedEnd, len(vs.regions))
	return vs, nil
}

// Root returns the capability of the managed address space.
func (vs *VSpace) Root() cspace.CPtr {
	return vs.root
}

// ReserveRange reserves a contiguous range of at least size bytes. The
// reserved range is never returned by MapPages.
func (vs *VSpace) ReserveRange(size uintptr, rights cspace.Rights, cacheable bool) (Reservation, uintptr, *kernel.Error) {
	size = mm.PageAlign(size)
	if size == 0 {
		size = mm.PageSize
	}

	start, err := vs.findFree(size)
	if err != nil {
		return Reservation{}, 0, err
	}

	id := vs.insert(start, start+size, regionReserved)
	return Reservation{id: id, Start: start, End: start + size, Rights: rights, Cacheable: cacheable}, start, nil
}

// FreeReservation releases a range obtained from ReserveRange.
func (vs *VSpace) FreeReservation(res Reservation) {
	for i, r := range vs.regions {
		if r.kind == regionReserved && r.id == res.id {
			vs.regions = append(vs.regions[:i], vs.regions[i+1:]...)
			return
		}
	}
	kfmt.Warnf("[vspace] FreeReservation called on unknown reservation at 0x%x", res.Start)
}

// Bytes returns a slice aliasing size bytes of mapped memory at vaddr. It
// returns nil if any part of the range is not mapped or if the range crosses
// a page boundary.
func (vs *VSpace) Bytes(vaddr, size uintptr) []byte {
	if size == 0 {
		return []byte{}
	}

	if mm.PageFromAddress(vaddr) != mm.PageFromAddress(vaddr+size-1) {
		return nil
	}

	if _, mapped := vs.pages[mm.PageFromAddress(vaddr)]; !mapped {
		return nil
	}

	return vs.mem.Bytes(vaddr, size)
}

// findFree returns the lowest address of a free range of the given size.
func (vs *VSpace) findFree(size uintptr) (uintptr, *kernel.Error) {
	candidate := ManagedStart
	for _, r := range vs.regions {
		if r.end <= candidate {
			continue
		}
		if r.start >= candidate && r.start-candidate >= size {
			break
		}
		candidate = r.end
	}

	if candidate >= ManagedEnd || ManagedEnd-candidate < size {
		return 0, errNoSpace
	}
	return candidate, nil
}

func (vs *VSpace) markUsed(start, end uintptr) {
	vs.insert(start, end, regionBoot)
}

func (vs *VSpace) insert(start, end uintptr, kind regionKind) int {
	vs.nextID++
	r := region{start: start, end: end, kind: kind, id: vs.nextID}

	index := sort.Search(len(vs.regions), func(i int) bool { return vs.regions[i].start >= start })
	vs.regions = append(vs.regions, region{})
	copy(vs.regions[index+1:], vs.regions[index:])
	vs.regions[index] = r
	return r.id
}

// carve removes [start, end) from any mapped region that overlaps it.
func (vs *VSpace) carve(start, end uintptr) {
	var out []region
	for _, r := range vs.regions {
		if r.kind != regionMapped || r.end <= start || r.start >= end {
			out = append(out, r)
			continue
		}

		if r.start < start {
			out = append(out, region{start: r.start, end: start, kind: r.kind, id: r.id})
		}
		if r.end > end {
			out = append(out, region{start: end, end: r.end, kind: r.kind, id: r.id})
		}
	}
	vs.regions = out
}
