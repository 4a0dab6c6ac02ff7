package procserv

import (
	"procserv/bootinfo"
	"procserv/kernel"
	"procserv/kernel/cspace"
	"procserv/kernel/kfmt"
	"procserv/kernel/mm"
	"procserv/kernel/vka"
)

// FindDevice returns a frame capability covering the device memory region of
// size bytes at paddr. size must be a power of two.
func (s *State) FindDevice(paddr uintptr, size uint64) (cspace.Path, *kernel.Error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sizeBits, ok := mm.SizeBits(size)
	if !ok {
		kfmt.Errorf("procserv_find_device invalid size 0x%x", size)
		return cspace.Path{}, ErrInvalidParam
	}

	slot, err := vka.NewSlot(s.allocator, s.kern)
	if err != nil {
		kfmt.Errorf("procserv_find_device could not allocate a cslot")
		return cspace.Path{}, ErrNoMem
	}
	defer slot.Close()

	if err = s.devices.FrameCap(paddr, sizeBits, slot.Path()); err != nil {
		kfmt.Warnf("procserv_find_device no device frame for 0x%x (%d bytes): %s", paddr, size, err.Message)
		return cspace.Path{}, ErrLookup
	}

	return slot.Release(), nil
}

// GetIRQHandler returns the handler capability for the interrupt line irq.
// The handler is obtained from the kernel on first use and cached. Zero is
// returned if the kernel refuses to hand out the handler.
func (s *State) GetIRQHandler(irq int) cspace.CPtr {
	s.mu.Lock()
	defer s.mu.Unlock()

	if irq < 0 {
		kfmt.Warnf("procserv_get_irq_handler invalid IRQ %d", irq)
		return 0
	}

	if handler, cached := s.irqHandlers[irq]; cached {
		return handler
	}

	slot, err := vka.NewSlot(s.allocator, s.kern)
	if err != nil {
		kfmt.Warnf("procserv_get_irq_handler could not allocate a cslot")
		return 0
	}
	defer slot.Close()

	if err = s.kern.IRQControlGet(bootinfo.CapIRQControl, irq, slot.Path()); err != nil {
		kfmt.Warnf("procserv_get_irq_handler could not get handler for IRQ %d: %s", irq, err.Message)
		return 0
	}

	handler := slot.Release().CapPtr
	s.irqHandlers[irq] = handler
	return handler
}

// FreeCap deletes the capability at cap and releases its slot. It is the
// release callback of the name-service registry. The main endpoint, the
// receive slot and cached interrupt handlers are left untouched.
func (s *State) FreeCap(cap cspace.CPtr) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cap == 0 {
		kfmt.Warnf("procserv free cap callback called on null cap")
		return
	}

	s.deleteCap(cap)
}
