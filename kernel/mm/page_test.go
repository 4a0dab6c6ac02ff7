package mm

import "testing"

func TestPageMethods(t *testing.T) {
	for pageIndex := uint64(0); pageIndex < 128; pageIndex++ {
		page := Page(pageIndex)

		if exp, got := uintptr(pageIndex<<PageShift), page.Address(); got != exp {
			t.Errorf("expected page (%d, index: %d) call to Address() to return %x; got %x", page, pageIndex, exp, got)
		}
	}
}

func TestPageFromAddress(t *testing.T) {
	specs := []struct {
		input   uintptr
		expPage Page
	}{
		{0, Page(0)},
		{4095, Page(0)},
		{4096, Page(1)},
		{4123, Page(1)},
	}

	for specIndex, spec := range specs {
		if got := PageFromAddress(spec.input); got != spec.expPage {
			t.Errorf("[spec %d] expected returned page to be %v; got %v", specIndex, spec.expPage, got)
		}
	}
}

func TestPageAlign(t *testing.T) {
	specs := []struct {
		input, exp uintptr
	}{
		{0, 0},
		{1, PageSize},
		{PageSize, PageSize},
		{PageSize + 1, 2 * PageSize},
	}

	for specIndex, spec := range specs {
		if got := PageAlign(spec.input); got != spec.exp {
			t.Errorf("[spec %d] expected PageAlign(%d) to return %d; got %d", specIndex, spec.input, spec.exp, got)
		}
	}
}

func TestSizeBits(t *testing.T) {
	specs := []struct {
		size    uint64
		expBits uint8
		expOK   bool
	}{
		{1, 0, true},
		{2, 1, true},
		{4096, 12, true},
		{1 << 31, 31, true},
		{0, 0, false},
		{100, 0, false},
		{3, 0, false},
		{1 << 32, 0, false},
	}

	for specIndex, spec := range specs {
		bits, ok := SizeBits(spec.size)
		if ok != spec.expOK || bits != spec.expBits {
			t.Errorf("[spec %d] expected SizeBits(%d) to return (%d, %t); got (%d, %t)", specIndex, spec.size, spec.expBits, spec.expOK, bits, ok)
		}
	}
}

func TestAlignUp(t *testing.T) {
	if exp, got := uintptr(0x2000), AlignUp(0x1001, 12); got != exp {
		t.Fatalf("expected %x; got %x", exp, got)
	}

	if exp, got := uintptr(0x1000), AlignUp(0x1000, 12); got != exp {
		t.Fatalf("expected %x; got %x", exp, got)
	}
}
