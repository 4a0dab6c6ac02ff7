package alloc

import (
	"procserv/bootinfo"
	"procserv/kernel"
	"procserv/kernel/cspace"
	"procserv/kernel/kfmt"
	"procserv/kernel/mm"
	"procserv/kernel/syscall"
	"procserv/kernel/vka"
)

var (
	errOutOfUntyped    = &kernel.Error{Module: "alloc", Message: "no untyped region can satisfy the request"}
	errInvalidSizeBits = &kernel.Error{Module: "alloc", Message: "invalid object size"}
)

// untypedRecord mirrors the kernel's view of one RAM untyped capability.
// Objects are carved sequentially starting at watermark; once every child
// has been deleted the kernel restarts allocation from the region start.
type untypedRecord struct {
	cptr      cspace.CPtr
	desc      bootinfo.UntypedDesc
	watermark uintptr
	children  int
}

// objectRecord tracks a live object created by AllocObject.
type objectRecord struct {
	obj     vka.Object
	untyped int

	// chargedVirtual is set when the record was charged to the virtual
	// pool.
	chargedVirtual bool
}

// AllocObject implements vka.VKA.
func (a *Allocator) AllocObject(objType syscall.ObjectType, sizeBits uint8) (vka.Object, *kernel.Error) {
	sizeBits = objType.ResolveSizeBits(sizeBits)
	if sizeBits == 0 || sizeBits >= mm.MaxSizeBits {
		return vka.Object{}, errInvalidSizeBits
	}

	chargedVirtual := a.virt.active
	if err := a.charge(objectRecordCost); err != nil {
		return vka.Object{}, err
	}

	path, err := a.CSpaceAllocPath()
	if err != nil {
		a.refund(objectRecordCost, chargedVirtual)
		return vka.Object{}, err
	}

	size := uintptr(1) << sizeBits
	for index := range a.untypeds {
		ut := &a.untypeds[index]
		if ut.desc.IsDevice || sizeBits > ut.desc.SizeBits {
			continue
		}

		if ut.children == 0 {
			ut.watermark = 0
		}

		offset := mm.AlignUp(ut.watermark, sizeBits)
		if offset > ut.desc.Size()-size {
			continue
		}

		if err = a.kern.UntypedRetype(ut.cptr, objType, sizeBits, path); err != nil {
			if err == syscall.ErrNotEnoughMemory {
				err = nil
				continue
			}
			break
		}

		ut.watermark = offset + size
		ut.children++

		obj := vka.Object{CPtr: path.CapPtr, Type: objType, SizeBits: sizeBits}
		a.objects[obj.CPtr] = objectRecord{obj: obj, untyped: index, chargedVirtual: chargedVirtual}
		return obj, nil
	}

	a.CSpaceFree(path.CapPtr)
	a.refund(objectRecordCost, chargedVirtual)
	if err != nil {
		return vka.Object{}, err
	}
	return vka.Object{}, errOutOfUntyped
}

// Object returns the live object created by AllocObject at cptr.
func (a *Allocator) Object(cptr cspace.CPtr) (vka.Object, bool) {
	rec, ok := a.objects[cptr]
	return rec.obj, ok
}

// FreeObject implements vka.VKA.
func (a *Allocator) FreeObject(obj vka.Object) {
	rec, ok := a.objects[obj.CPtr]
	if !ok {
		kfmt.Warnf("[alloc] FreeObject called on unknown object %d", obj.CPtr)
		return
	}

	if err := a.kern.CNodeDelete(a.CSpaceMakePath(obj.CPtr)); err != nil {
		kfmt.Warnf("[alloc] could not delete %s object %d: %s", obj.Type, obj.CPtr, err.Message)
	}

	delete(a.objects, obj.CPtr)
	a.untypeds[rec.untyped].children--
	a.refund(objectRecordCost, rec.chargedVirtual)
	a.CSpaceFree(obj.CPtr)
}
