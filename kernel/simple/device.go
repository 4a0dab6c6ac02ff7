// Package simple resolves physical device regions listed in the boot
// inventory into frame capabilities.
package simple

import (
	"procserv/bootinfo"
	"procserv/kernel"
	"procserv/kernel/cspace"
	"procserv/kernel/mm"
	"procserv/kernel/syscall"
	"procserv/kernel/vka"
)

var (
	errNoDevice      = &kernel.Error{Module: "simple", Message: "no device untyped covers the requested region"}
	errUnaligned     = &kernel.Error{Module: "simple", Message: "device address is not aligned to the region size"}
	errFrameTooSmall = &kernel.Error{Module: "simple", Message: "device regions are mapped at page granularity"}
)

// node is one block of a device untyped. A node is either a leaf or has
// been split into two halves, each held in its own slot. Split nodes are
// never merged back so that the halves stay children of their parent.
type node struct {
	cptr     cspace.CPtr
	paddr    uintptr
	sizeBits uint8

	lower, upper *node
}

// Directory hands out frame capabilities for device memory.
//
// Directory is not safe for concurrent use.
type Directory struct {
	kern syscall.Kernel
	vka  vka.VKA

	roots []*node
}

// NewDirectory creates a directory for the device untyped capabilities
// listed in info. Slots for intermediate untyped objects are taken from v.
func NewDirectory(info *bootinfo.Info, v vka.VKA, kern syscall.Kernel) *Directory {
	d := &Directory{kern: kern, vka: v}
	info.VisitUntyped(func(cptr cspace.CPtr, desc *bootinfo.UntypedDesc) bool {
		if desc.IsDevice {
			d.roots = append(d.roots, &node{cptr: cptr, paddr: desc.PhysAddr, sizeBits: desc.SizeBits})
		}
		return true
	})
	return d
}

// Regions returns the number of device untyped regions in the directory.
func (d *Directory) Regions() int {
	return len(d.roots)
}

// FrameCap places a capability to the frame of 1<<sizeBits bytes at paddr
// in dst. The block containing the frame is split off the covering device
// untyped on first use; asking for a frame whose block is still in use by an
// earlier frame capability fails.
func (d *Directory) FrameCap(paddr uintptr, sizeBits uint8, dst cspace.Path) *kernel.Error {
	if sizeBits < mm.PageShift {
		return errFrameTooSmall
	}

	if paddr&((uintptr(1)<<sizeBits)-1) != 0 {
		return errUnaligned
	}

	for _, root := range d.roots {
		if paddr < root.paddr || sizeBits > root.sizeBits || paddr-root.paddr > (uintptr(1)<<root.sizeBits)-(uintptr(1)<<sizeBits) {
			continue
		}

		leaf, err := d.descend(root, paddr, sizeBits)
		if err != nil {
			return err
		}

		return d.kern.UntypedRetype(leaf.cptr, syscall.FrameObject, sizeBits, dst)
	}

	return errNoDevice
}

// descend splits blocks starting at n until it reaches the block of the
// requested size that contains paddr.
func (d *Directory) descend(n *node, paddr uintptr, sizeBits uint8) (*node, *kernel.Error) {
	for n.sizeBits > sizeBits {
		if n.lower == nil {
			if err := d.split(n); err != nil {
				return nil, err
			}
		}

		if paddr < n.upper.paddr {
			n = n.lower
		} else {
			n = n.upper
		}
	}

	return n, nil
}

// split retypes n into two untyped halves.
func (d *Directory) split(n *node) *kernel.Error {
	halfBits := n.sizeBits - 1
	halves := [2]*node{
		{paddr: n.paddr, sizeBits: halfBits},
		{paddr: n.paddr + uintptr(1)<<halfBits, sizeBits: halfBits},
	}

	var slots [2]*vka.Slot
	for i, half := range halves {
		slot, err := vka.NewSlot(d.vka, d.kern)
		if err != nil {
			slots[0].Close()
			return err
		}
		slots[i] = slot

		if err = d.kern.UntypedRetype(n.cptr, syscall.UntypedObject, halfBits, slot.Path()); err != nil {
			slots[0].Close()
			slots[1].Close()
			return err
		}
		slot.MarkFilled()
		half.cptr = slot.Path().CapPtr
	}

	slots[0].Release()
	slots[1].Release()
	n.lower, n.upper = halves[0], halves[1]
	return nil
}
