package alloc

import (
	"procserv/kernel"
	"procserv/kernel/cspace"
	"procserv/kernel/kfmt"
	"procserv/kernel/mm"
	"procserv/kernel/vka"
)

// growHeadroom is the number of mapped bytes that must remain available in
// the virtual pool after a charge. It covers the records of the frame and
// page table objects allocated while growing the pool.
const growHeadroom = 2 * objectRecordCost

var (
	errVirtualPoolConfigured = &kernel.Error{Module: "alloc", Message: "virtual pool already configured"}
	errInvalidVirtualPool    = &kernel.Error{Module: "alloc", Message: "virtual pool must be a non-empty page-aligned range"}
)

// virtualPool is a reserved range of the server address space that backs
// the allocator bookkeeping once the static pool has served its purpose.
// Frames are mapped into the range on demand.
type virtualPool struct {
	base, size uintptr
	vspaceRoot cspace.CPtr

	active  bool
	growing bool

	used, mapped uintptr
	frames       []vka.Object
	pageTables   []vka.Object
}

// ConfigureVirtualPool hands the reserved range [vaddr, vaddr+size) to the
// allocator. The first page of the range is mapped immediately using the
// static pool; afterwards all bookkeeping is charged to the virtual pool.
func (a *Allocator) ConfigureVirtualPool(vaddr, size uintptr, vspaceRoot cspace.CPtr) *kernel.Error {
	if a.virt.active {
		return errVirtualPoolConfigured
	}

	if size == 0 || vaddr&(mm.PageSize-1) != 0 || size&(mm.PageSize-1) != 0 {
		return errInvalidVirtualPool
	}

	a.virt = virtualPool{base: vaddr, size: size, vspaceRoot: vspaceRoot}
	if err := a.growVirtualPool(); err != nil {
		a.virt = virtualPool{}
		return err
	}
	a.virt.active = true

	kfmt.Printf("[alloc] virtual pool at 0x%x, %d pages\n", vaddr, size>>mm.PageShift)
	return nil
}

// growVirtualPool backs the next unmapped page of the virtual pool with a
// new frame.
func (a *Allocator) growVirtualPool() *kernel.Error {
	a.virt.growing = true
	defer func() { a.virt.growing = false }()

	frame, err := vka.AllocFrame(a)
	if err != nil {
		return err
	}

	vaddr := a.virt.base + a.virt.mapped
	pt, err := vka.MapPage(a, a.kern, frame.CPtr, a.virt.vspaceRoot, vaddr, cspace.RightRead|cspace.RightWrite, true)
	if pt.CPtr != 0 {
		a.virt.pageTables = append(a.virt.pageTables, pt)
	}
	if err != nil {
		a.FreeObject(frame)
		return err
	}

	a.virt.frames = append(a.virt.frames, frame)
	a.virt.mapped += mm.PageSize
	return nil
}
