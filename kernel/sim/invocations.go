package sim

import (
	"procserv/kernel"
	"procserv/kernel/cspace"
	"procserv/kernel/mm"
	"procserv/kernel/syscall"
)

// UntypedRetype implements syscall.Kernel.
func (k *Kernel) UntypedRetype(untyped cspace.CPtr, objType syscall.ObjectType, sizeBits uint8, dst cspace.Path) *kernel.Error {
	if err := k.enter(OpUntypedRetype); err != nil {
		return err
	}

	ut, err := k.lookupKind(untyped, kindUntyped)
	if err != nil {
		return err
	}

	kind, ok := retypeKinds[objType]
	if !ok {
		return syscall.ErrInvalidArgument
	}

	sizeBits = objType.ResolveSizeBits(sizeBits)
	if sizeBits < 4 || sizeBits > ut.obj.sizeBits {
		return syscall.ErrRangeError
	}

	if ut.obj.device && kind != kindFrame && kind != kindUntyped {
		return syscall.ErrInvalidArgument
	}

	if err = k.emptySlot(dst); err != nil {
		return err
	}

	parent := ut.obj
	if parent.children == 0 {
		parent.watermark = 0
	}

	size := uintptr(1) << sizeBits
	offset := mm.AlignUp(parent.watermark, sizeBits)
	if offset > (uintptr(1)<<parent.sizeBits)-size {
		return syscall.ErrNotEnoughMemory
	}

	obj := &object{
		kind:     kind,
		paddr:    parent.paddr + offset,
		sizeBits: sizeBits,
		device:   parent.device,
		parent:   parent,
	}
	parent.watermark = offset + size
	parent.children++

	if kind == kindFrame && !parent.device {
		// Fresh RAM frames are handed out zeroed.
		copy(k.physPage(obj.paddr), make([]byte, mm.PageSize))
	}

	k.install(dst.CapPtr, obj, cspace.AllRights, cspace.NoBadge)
	return nil
}

// CNodeMint implements syscall.Kernel.
func (k *Kernel) CNodeMint(dst, src cspace.Path, rights cspace.Rights, badge cspace.Badge) *kernel.Error {
	if err := k.enter(OpCNodeMint); err != nil {
		return err
	}

	return k.derive(dst, src, rights, badge)
}

// CNodeCopy implements syscall.Kernel.
func (k *Kernel) CNodeCopy(dst, src cspace.Path, rights cspace.Rights) *kernel.Error {
	if err := k.enter(OpCNodeCopy); err != nil {
		return err
	}

	return k.derive(dst, src, rights, cspace.NoBadge)
}

func (k *Kernel) derive(dst, src cspace.Path, rights cspace.Rights, badge cspace.Badge) *kernel.Error {
	c, err := k.lookup(src.CapPtr)
	if err != nil {
		return err
	}

	if badge != cspace.NoBadge {
		if c.obj.kind != kindEndpoint && c.obj.kind != kindNotification {
			return syscall.ErrIllegalOperation
		}
		if c.badge != cspace.NoBadge || badge > cspace.MaxBadge {
			return syscall.ErrInvalidArgument
		}
	} else {
		badge = c.badge
	}

	if err = k.emptySlot(dst); err != nil {
		return err
	}

	k.install(dst.CapPtr, c.obj, c.rights&rights, badge)
	return nil
}

// CNodeDelete implements syscall.Kernel.
func (k *Kernel) CNodeDelete(path cspace.Path) *kernel.Error {
	if err := k.enter(OpCNodeDelete); err != nil {
		return err
	}

	c, ok := k.slots[path.CapPtr]
	if !ok {
		// Deleting an empty slot is a no-op.
		return nil
	}

	delete(k.slots, path.CapPtr)
	c.obj.refs--
	if c.obj.refs == 0 {
		k.destroy(c.obj)
	}
	return nil
}

// IRQControlGet implements syscall.Kernel.
func (k *Kernel) IRQControlGet(irqControl cspace.CPtr, irq int, dst cspace.Path) *kernel.Error {
	if err := k.enter(OpIRQControlGet); err != nil {
		return err
	}

	if _, err := k.lookupKind(irqControl, kindIRQControl); err != nil {
		return err
	}

	if irq < 0 || irq > k.maxIRQ {
		return syscall.ErrRangeError
	}

	if k.claimed[irq] {
		return syscall.ErrRevokeFirst
	}

	if err := k.emptySlot(dst); err != nil {
		return err
	}

	k.claimed[irq] = true
	k.install(dst.CapPtr, &object{kind: kindIRQHandler, irq: irq}, cspace.AllRights, cspace.NoBadge)
	return nil
}

// PageTableMap implements syscall.Kernel.
func (k *Kernel) PageTableMap(pageTable, vspaceRoot cspace.CPtr, vaddr uintptr) *kernel.Error {
	if err := k.enter(OpPageTableMap); err != nil {
		return err
	}

	pt, err := k.lookupKind(pageTable, kindPageTable)
	if err != nil {
		return err
	}

	if _, err = k.lookupKind(vspaceRoot, kindVSpace); err != nil {
		return err
	}

	if pt.obj.mapped {
		return syscall.ErrInvalidArgument
	}

	index := vaddr >> mm.PageTableShift
	if _, exists := k.pageTables[index]; exists {
		return syscall.ErrDeleteFirst
	}

	pt.obj.mapped = true
	pt.obj.vaddr = index << mm.PageTableShift
	k.pageTables[index] = pt.obj
	return nil
}

// PageMap implements syscall.Kernel.
func (k *Kernel) PageMap(frame, vspaceRoot cspace.CPtr, vaddr uintptr, rights cspace.Rights, cacheable bool) *kernel.Error {
	if err := k.enter(OpPageMap); err != nil {
		return err
	}

	f, err := k.lookupKind(frame, kindFrame)
	if err != nil {
		return err
	}

	if _, err = k.lookupKind(vspaceRoot, kindVSpace); err != nil {
		return err
	}

	if vaddr&(mm.PageSize-1) != 0 || f.obj.mapped || f.obj.sizeBits != mm.PageShift {
		return syscall.ErrInvalidArgument
	}

	if _, ok := k.pageTables[vaddr>>mm.PageTableShift]; !ok {
		return syscall.ErrFailedLookup
	}

	page := mm.PageFromAddress(vaddr)
	if _, occupied := k.mappings[page]; occupied {
		return syscall.ErrDeleteFirst
	}

	f.obj.mapped = true
	f.obj.vaddr = vaddr
	k.mappings[page] = f.obj
	return nil
}

// PageUnmap implements syscall.Kernel.
func (k *Kernel) PageUnmap(frame cspace.CPtr) *kernel.Error {
	if err := k.enter(OpPageUnmap); err != nil {
		return err
	}

	f, err := k.lookupKind(frame, kindFrame)
	if err != nil {
		return err
	}

	if f.obj.mapped {
		delete(k.mappings, mm.PageFromAddress(f.obj.vaddr))
		f.obj.mapped = false
	}
	return nil
}

// PageUnifyInstruction implements syscall.Kernel.
func (k *Kernel) PageUnifyInstruction(frame cspace.CPtr, start, end uintptr) *kernel.Error {
	if err := k.enter(OpPageUnifyInstruction); err != nil {
		return err
	}

	if _, err := k.lookupKind(frame, kindFrame); err != nil {
		return err
	}

	if start >= end || end > mm.PageSize {
		return syscall.ErrRangeError
	}

	k.Unified = append(k.Unified, frame)
	return nil
}

// Bytes implements vspace.Memory. It returns nil if the range is not mapped
// or crosses a page boundary.
func (k *Kernel) Bytes(vaddr, size uintptr) []byte {
	if size == 0 {
		return []byte{}
	}

	page := mm.PageFromAddress(vaddr)
	if page != mm.PageFromAddress(vaddr+size-1) {
		return nil
	}

	frame, ok := k.mappings[page]
	if !ok {
		return nil
	}

	offset := vaddr & (mm.PageSize - 1)
	return k.physPage(frame.paddr)[offset : offset+size]
}
