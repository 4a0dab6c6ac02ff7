package syscall

import "testing"

func TestObjectTypeString(t *testing.T) {
	specs := []struct {
		objType ObjectType
		exp     string
	}{
		{EndpointObject, "endpoint"},
		{FrameObject, "frame"},
		{PageTableObject, "page table"},
		{ObjectType(200), "unknown"},
	}

	for specIndex, spec := range specs {
		if got := spec.objType.String(); got != spec.exp {
			t.Errorf("[spec %d] expected %q; got %q", specIndex, spec.exp, got)
		}
	}
}

func TestObjectTypeSizeBits(t *testing.T) {
	if exp, got := uint8(12), FrameObject.SizeBits(); got != exp {
		t.Fatalf("expected frame size bits to be %d; got %d", exp, got)
	}

	if exp, got := uint8(0), UntypedObject.SizeBits(); got != exp {
		t.Fatalf("expected variable-sized untyped to report %d; got %d", exp, got)
	}
}

func TestResolveSizeBits(t *testing.T) {
	specs := []struct {
		objType   ObjectType
		requested uint8
		exp       uint8
	}{
		{EndpointObject, 0, 4},
		{EndpointObject, 20, 4},
		{FrameObject, 0, 12},
		{FrameObject, 16, 16},
		{FrameObject, 8, 12},
		{UntypedObject, 20, 20},
	}

	for specIndex, spec := range specs {
		if got := spec.objType.ResolveSizeBits(spec.requested); got != spec.exp {
			t.Errorf("[spec %d] expected %s.ResolveSizeBits(%d) to return %d; got %d", specIndex, spec.objType, spec.requested, spec.exp, got)
		}
	}
}
