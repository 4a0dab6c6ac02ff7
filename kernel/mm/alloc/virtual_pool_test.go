package alloc

import (
	"procserv/bootinfo"
	"procserv/kernel/mm"
	"procserv/kernel/sim"
	"procserv/kernel/syscall"
	"testing"
)

const testPoolBase = uintptr(0x40000000)

func TestConfigureVirtualPool(t *testing.T) {
	a, k, _ := bootAllocator(t, sim.Config{})
	poolUsed := a.Stats().PoolUsed

	if err := a.ConfigureVirtualPool(testPoolBase, 100*mm.PageSize, bootinfo.CapInitThreadVSpace); err != nil {
		t.Fatal(err)
	}

	stats := a.Stats()
	if stats.VirtualPoolMapped != mm.PageSize {
		t.Fatalf("expected one page of the virtual pool to be mapped; got %d bytes", stats.VirtualPoolMapped)
	}

	// The first frame and the page table covering the pool are funded by
	// the static pool.
	if exp := poolUsed + 2*objectRecordCost; stats.PoolUsed != exp {
		t.Fatalf("expected static pool usage %d; got %d", exp, stats.PoolUsed)
	}

	if k.Bytes(testPoolBase, mm.PageSize) == nil {
		t.Fatal("expected the first virtual pool page to be mapped")
	}

	if err := a.ConfigureVirtualPool(testPoolBase, 100*mm.PageSize, bootinfo.CapInitThreadVSpace); err != errVirtualPoolConfigured {
		t.Fatalf("expected errVirtualPoolConfigured; got %v", err)
	}
}

func TestConfigureVirtualPoolErrors(t *testing.T) {
	specs := []struct {
		vaddr, size uintptr
	}{
		{testPoolBase, 0},
		{testPoolBase + 1, mm.PageSize},
		{testPoolBase, mm.PageSize + 1},
	}

	a, _, _ := bootAllocator(t, sim.Config{})
	for specIndex, spec := range specs {
		if err := a.ConfigureVirtualPool(spec.vaddr, spec.size, bootinfo.CapInitThreadVSpace); err != errInvalidVirtualPool {
			t.Errorf("[spec %d] expected errInvalidVirtualPool; got %v", specIndex, err)
		}
	}
}

func TestConfigureVirtualPoolMapFailure(t *testing.T) {
	a, k, _ := bootAllocator(t, sim.Config{})
	stats := a.Stats()

	k.FailNext(sim.OpPageMap, syscall.ErrInvalidArgument)
	if err := a.ConfigureVirtualPool(testPoolBase, 100*mm.PageSize, bootinfo.CapInitThreadVSpace); err != syscall.ErrInvalidArgument {
		t.Fatalf("expected injected error; got %v", err)
	}

	if got := a.Stats(); got != stats {
		t.Fatalf("expected failed configuration to leave no trace; got %+v, want %+v", got, stats)
	}

	// The allocator keeps using the static pool and can be configured
	// again.
	if err := a.ConfigureVirtualPool(testPoolBase, 100*mm.PageSize, bootinfo.CapInitThreadVSpace); err != nil {
		t.Fatal(err)
	}
}

func TestVirtualPoolGrowth(t *testing.T) {
	a, _, _ := bootAllocator(t, sim.Config{})
	if err := a.ConfigureVirtualPool(testPoolBase, 100*mm.PageSize, bootinfo.CapInitThreadVSpace); err != nil {
		t.Fatal(err)
	}
	poolUsed := a.Stats().PoolUsed

	const count = 300
	for i := 0; i < count; i++ {
		if _, err := a.AllocObject(syscall.EndpointObject, 0); err != nil {
			t.Fatalf("[alloc %d] unexpected error: %v", i, err)
		}
	}

	stats := a.Stats()
	if stats.PoolUsed != poolUsed {
		t.Fatalf("expected static pool usage to stay at %d; got %d", poolUsed, stats.PoolUsed)
	}

	if exp := uintptr(2) * mm.PageSize; stats.VirtualPoolMapped != exp {
		t.Fatalf("expected %d mapped virtual pool bytes; got %d", exp, stats.VirtualPoolMapped)
	}

	// One extra record for the frame that backs the second page.
	if exp := uintptr(count+1) * objectRecordCost; stats.VirtualPoolUsed != exp {
		t.Fatalf("expected virtual pool usage %d; got %d", exp, stats.VirtualPoolUsed)
	}
}

func TestVirtualPoolExhausted(t *testing.T) {
	a, _, _ := bootAllocator(t, sim.Config{})
	if err := a.ConfigureVirtualPool(testPoolBase, mm.PageSize, bootinfo.CapInitThreadVSpace); err != nil {
		t.Fatal(err)
	}

	var allocated int
	for {
		if _, err := a.AllocObject(syscall.EndpointObject, 0); err != nil {
			if err != errVirtualPoolExhausted {
				t.Fatalf("expected errVirtualPoolExhausted; got %v", err)
			}
			break
		}
		allocated++
	}

	if exp := int(mm.PageSize / objectRecordCost); allocated != exp {
		t.Fatalf("expected %d objects to fit in a single page pool; got %d", exp, allocated)
	}
}
