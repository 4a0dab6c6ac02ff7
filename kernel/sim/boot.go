package sim

import (
	"procserv/bootinfo"
	"procserv/kernel/cspace"
	"procserv/kernel/mm"
)

// Region is a power-of-two sized, naturally aligned physical memory region.
type Region struct {
	PhysAddr uintptr
	SizeBits uint8
}

// Config describes the machine booted by Boot. Zero fields select the
// defaults.
type Config struct {
	// CNodeSizeBits is log2 of the number of root CNode slots.
	CNodeSizeBits uint8

	// RAM and Devices list the regions handed to the root task as RAM
	// and device untyped capabilities.
	RAM     []Region
	Devices []Region

	// MaxIRQ is the highest interrupt line number.
	MaxIRQ int

	// ImageStart is the virtual address of the root task image and
	// ImagePages its length in pages.
	ImageStart uintptr
	ImagePages int
}

// Default machine geometry.
var (
	DefaultRAM = []Region{
		{PhysAddr: 0x20000000, SizeBits: 22},
		{PhysAddr: 0x20400000, SizeBits: 22},
		{PhysAddr: 0x20800000, SizeBits: 20},
	}

	DefaultDevices = []Region{
		{PhysAddr: 0x3f200000, SizeBits: 12},
		{PhysAddr: 0x3f210000, SizeBits: 16},
		{PhysAddr: 0x3f300000, SizeBits: 20},
	}
)

const (
	defaultCNodeSizeBits = 12
	defaultMaxIRQ        = 255
	defaultImageStart    = uintptr(0x00010000)
	defaultImagePages    = 16
)

func (cfg *Config) setDefaults() {
	if cfg.CNodeSizeBits == 0 {
		cfg.CNodeSizeBits = defaultCNodeSizeBits
	}
	if cfg.RAM == nil {
		cfg.RAM = DefaultRAM
	}
	if cfg.Devices == nil {
		cfg.Devices = DefaultDevices
	}
	if cfg.MaxIRQ == 0 {
		cfg.MaxIRQ = defaultMaxIRQ
	}
	if cfg.ImageStart == 0 {
		cfg.ImageStart = defaultImageStart
	}
	if cfg.ImagePages == 0 {
		cfg.ImagePages = defaultImagePages
	}
}

// Boot creates a kernel instance in the state the real kernel leaves the
// machine in when it starts the root task, and returns it together with the
// matching boot inventory. The root task image, its IPC buffer and the boot
// info frame are mapped in the root task address space.
func Boot(cfg Config) (*Kernel, *bootinfo.Info) {
	cfg.setDefaults()

	k := newKernel(1<<cfg.CNodeSizeBits, cfg.MaxIRQ)
	initial := map[cspace.CPtr]objKind{
		bootinfo.CapInitThreadTCB:      kindTCB,
		bootinfo.CapInitThreadCNode:    kindCNode,
		bootinfo.CapInitThreadVSpace:   kindVSpace,
		bootinfo.CapIRQControl:         kindIRQControl,
		bootinfo.CapASIDControl:        kindASIDControl,
		bootinfo.CapInitThreadASIDPool: kindASIDPool,
		bootinfo.CapDomain:             kindDomain,
	}
	for cptr, kind := range initial {
		obj := &object{kind: kind}
		if kind == kindVSpace {
			k.vspace = obj
		}
		k.install(cptr, obj, cspace.AllRights, cspace.NoBadge)
	}

	info := &bootinfo.Info{
		CNodeSizeBits: cfg.CNodeSizeBits,
		ImageStart:    cfg.ImageStart,
		ImageEnd:      cfg.ImageStart + uintptr(cfg.ImagePages)<<mm.PageShift,
	}
	info.IPCBuffer = info.ImageEnd
	info.BootInfoAddr = info.ImageEnd + mm.PageSize

	// The image frames come from a physical range below RAM.
	nextSlot := bootinfo.NumInitialCaps
	imagePhys := uintptr(0x00100000)
	mapBootFrame := func(cptr cspace.CPtr, paddr, vaddr uintptr) {
		index := vaddr >> mm.PageTableShift
		if _, ok := k.pageTables[index]; !ok {
			k.pageTables[index] = &object{kind: kindPageTable, mapped: true, vaddr: index << mm.PageTableShift, refs: 1}
		}

		frame := &object{kind: kindFrame, paddr: paddr, sizeBits: mm.PageShift, mapped: true, vaddr: vaddr}
		k.mappings[mm.PageFromAddress(vaddr)] = frame
		k.install(cptr, frame, cspace.AllRights, cspace.NoBadge)
	}

	info.UserImageFrames.Start = nextSlot
	for i := 0; i < cfg.ImagePages; i++ {
		offset := uintptr(i) << mm.PageShift
		mapBootFrame(nextSlot, imagePhys+offset, cfg.ImageStart+offset)
		nextSlot++
	}
	info.UserImageFrames.End = nextSlot

	ipcPhys := imagePhys + uintptr(cfg.ImagePages)<<mm.PageShift
	mapBootFrame(bootinfo.CapInitThreadIPCBuffer, ipcPhys, info.IPCBuffer)
	mapBootFrame(bootinfo.CapBootInfoFrame, ipcPhys+mm.PageSize, info.BootInfoAddr)

	info.Untyped.Start = nextSlot
	addUntyped := func(r Region, device bool) {
		k.install(nextSlot, &object{kind: kindUntyped, paddr: r.PhysAddr, sizeBits: r.SizeBits, device: device}, cspace.AllRights, cspace.NoBadge)
		info.UntypedList = append(info.UntypedList, bootinfo.UntypedDesc{PhysAddr: r.PhysAddr, SizeBits: r.SizeBits, IsDevice: device})
		nextSlot++
	}
	for _, r := range cfg.RAM {
		addUntyped(r, false)
	}
	for _, r := range cfg.Devices {
		addUntyped(r, true)
	}
	info.Untyped.End = nextSlot

	info.Empty = bootinfo.SlotRegion{Start: nextSlot, End: cspace.CPtr(1) << cfg.CNodeSizeBits}
	return k, info
}
