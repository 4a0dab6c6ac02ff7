package vspace

import (
	"procserv/kernel"
	"procserv/kernel/cspace"
	"procserv/kernel/kfmt"
	"procserv/kernel/mm"
	"procserv/kernel/vka"
)

var (
	errNoFrames         = &kernel.Error{Module: "vspace", Message: "no frames supplied"}
	errNullFrame        = &kernel.Error{Module: "vspace", Message: "cannot map the null capability"}
	errUnsupportedSize  = &kernel.Error{Module: "vspace", Message: "only base-sized pages are supported"}
	errUnalignedMapping = &kernel.Error{Module: "vspace", Message: "virtual address is not page aligned"}

	// ErrInvalidMapping is returned when unmapping an address that has no
	// mapping.
	ErrInvalidMapping = &kernel.Error{Module: "vspace", Message: "virtual address is not mapped"}
)

// MapPages maps frames at consecutive pages of a free virtual range and
// returns the range start. Page tables are created as needed. If any frame
// cannot be mapped, the frames mapped so far are unmapped again and no
// range is consumed.
func (vs *VSpace) MapPages(frames []cspace.CPtr, rights cspace.Rights, sizeBits uint8, cacheable bool) (uintptr, *kernel.Error) {
	if len(frames) == 0 {
		return 0, errNoFrames
	}

	if sizeBits != mm.PageShift {
		return 0, errUnsupportedSize
	}

	for _, frame := range frames {
		if frame == 0 {
			return 0, errNullFrame
		}
	}

	size := uintptr(len(frames)) << mm.PageShift
	start, err := vs.findFree(size)
	if err != nil {
		return 0, err
	}

	for index, frame := range frames {
		vaddr := start + uintptr(index)<<mm.PageShift
		pt, err := vka.MapPage(vs.vka, vs.kern, frame, vs.root, vaddr, rights, cacheable)
		if pt.CPtr != 0 {
			vs.pageTables[vaddr>>mm.PageTableShift] = pt
		}

		if err != nil {
			for undo := 0; undo < index; undo++ {
				vs.unmapPage(mm.PageFromAddress(start + uintptr(undo)<<mm.PageShift))
			}
			return 0, err
		}

		vs.pages[mm.PageFromAddress(vaddr)] = frame
	}

	vs.insert(start, start+size, regionMapped)
	return start, nil
}

// UnmapPages removes numPages mappings starting at vaddr. The frames
// themselves are preserved; their capabilities remain owned by whoever
// supplied them to MapPages. UnmapPages attempts every page even if some of
// them fail and returns the first error encountered.
func (vs *VSpace) UnmapPages(vaddr uintptr, numPages int, sizeBits uint8) *kernel.Error {
	if sizeBits != mm.PageShift {
		return errUnsupportedSize
	}

	if vaddr&(mm.PageSize-1) != 0 {
		return errUnalignedMapping
	}

	var firstErr *kernel.Error
	start := mm.PageFromAddress(vaddr)
	for page := start; page < start+mm.Page(numPages); page++ {
		if err := vs.unmapPage(page); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	vs.carve(vaddr, vaddr+uintptr(numPages)<<mm.PageShift)
	return firstErr
}

func (vs *VSpace) unmapPage(page mm.Page) *kernel.Error {
	frame, mapped := vs.pages[page]
	if !mapped {
		return ErrInvalidMapping
	}

	delete(vs.pages, page)
	if err := vs.kern.PageUnmap(frame); err != nil {
		kfmt.Warnf("[vspace] could not unmap frame %d at 0x%x: %s", frame, page.Address(), err.Message)
		return err
	}
	return nil
}

// MappedPages returns the number of pages currently mapped through MapPages.
func (vs *VSpace) MappedPages() int {
	return len(vs.pages)
}

// PageTables returns the number of page tables created by MapPages.
func (vs *VSpace) PageTables() int {
	return len(vs.pageTables)
}
