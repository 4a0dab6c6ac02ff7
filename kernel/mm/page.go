// Package mm contains the page geometry shared by the allocator, the address
// space manager and the frame transfer primitives.
package mm

const (
	// PageShift is equal to log2(PageSize). This constant is used when
	// we need to convert a physical address to a page number (shift right by PageShift)
	// and vice-versa.
	PageShift = 12

	// PageSize defines the system's page size in bytes.
	PageSize = uintptr(1 << PageShift)

	// PageTableShift is equal to log2 of the virtual range covered by a
	// single second-level page table.
	PageTableShift = 22

	// MaxSizeBits is the exclusive upper bound for object and region size
	// exponents accepted by the microkernel device model.
	MaxSizeBits = 32
)

// Page describes a virtual memory page index.
type Page uintptr

// Address returns the virtual address that corresponds to this Page.
func (p Page) Address() uintptr {
	return uintptr(p << PageShift)
}

// PageFromAddress returns a Page that corresponds to the given virtual
// address. This function can handle both page-aligned and not aligned virtual
// addresses. in the latter case, the input address will be rounded down to the
// page that contains it.
func PageFromAddress(virtAddr uintptr) Page {
	return Page((virtAddr & ^(PageSize - 1)) >> PageShift)
}

// PageAlign rounds size up to the nearest multiple of PageSize.
func PageAlign(size uintptr) uintptr {
	return (size + (PageSize - 1)) & ^(PageSize - 1)
}

// SizeBits returns the exponent i in [0, MaxSizeBits) such that 1<<i equals
// size. The second return value is false if size is not such a power of two.
func SizeBits(size uint64) (uint8, bool) {
	for i := uint8(0); i < MaxSizeBits; i++ {
		if uint64(1)<<i == size {
			return i, true
		}
	}

	return 0, false
}

// AlignUp rounds addr up to the next multiple of 1<<sizeBits.
func AlignUp(addr uintptr, sizeBits uint8) uintptr {
	mask := (uintptr(1) << sizeBits) - 1
	return (addr + mask) & ^mask
}
