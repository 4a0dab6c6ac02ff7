package alloc

import (
	"procserv/bootinfo"
	"procserv/kernel"
	"procserv/kernel/cspace"
)

var (
	errOutOfSlots   = &kernel.Error{Module: "alloc", Message: "out of capability slots"}
	errSlotNotOwned = &kernel.Error{Module: "alloc", Message: "slot is not managed by the allocator"}
	errSlotFree     = &kernel.Error{Module: "alloc", Message: "slot is not allocated"}
)

// slotBitmap tracks allocated slots in a region. Bit i of the bitmap is set
// when slot region.Start+i is in use.
type slotBitmap struct {
	region bootinfo.SlotRegion
	bits   []byte
	free   int

	// next is the index where the search for a free slot starts.
	next int
}

// bitmapBytes returns the number of bytes needed to track slotCount slots.
func bitmapBytes(slotCount int) uintptr {
	return uintptr((slotCount + 7) >> 3)
}

func (b *slotBitmap) init(region bootinfo.SlotRegion, storage []byte) {
	for i := range storage {
		storage[i] = 0
	}

	b.region = region
	b.bits = storage
	b.free = region.Len()
	b.next = 0
}

func (b *slotBitmap) alloc() (cspace.CPtr, *kernel.Error) {
	if b.free == 0 {
		return 0, errOutOfSlots
	}

	slotCount := b.region.Len()
	for scanned := 0; scanned < slotCount; scanned++ {
		index := (b.next + scanned) % slotCount

		// Skip over fully allocated bytes.
		if index&7 == 0 && b.bits[index>>3] == 0xff && index+8 <= slotCount {
			scanned += 7
			continue
		}

		mask := byte(1) << uint(index&7)
		if b.bits[index>>3]&mask == 0 {
			b.bits[index>>3] |= mask
			b.free--
			b.next = (index + 1) % slotCount
			return b.region.Start + cspace.CPtr(index), nil
		}
	}

	return 0, errOutOfSlots
}

func (b *slotBitmap) release(cptr cspace.CPtr) *kernel.Error {
	if !b.region.Contains(cptr) {
		return errSlotNotOwned
	}

	index := int(cptr - b.region.Start)
	mask := byte(1) << uint(index&7)
	if b.bits[index>>3]&mask == 0 {
		return errSlotFree
	}

	b.bits[index>>3] &^= mask
	b.free++
	return nil
}

func (b *slotBitmap) allocated(cptr cspace.CPtr) bool {
	if !b.region.Contains(cptr) {
		return false
	}

	index := int(cptr - b.region.Start)
	return b.bits[index>>3]&(byte(1)<<uint(index&7)) != 0
}
