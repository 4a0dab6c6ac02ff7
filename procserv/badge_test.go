package procserv

import (
	"procserv/kernel/cspace"
	"procserv/kernel/sim"
	"procserv/kernel/syscall"
	"procserv/kernel/vka"
	"testing"
)

func TestMintBadge(t *testing.T) {
	s, k := bootState(t, Config{})

	seen := make(map[cspace.CPtr]bool)
	for _, badge := range []cspace.Badge{1, 2, 0xbeef, cspace.MaxBadge} {
		path, err := s.MintBadge(badge)
		if err != nil {
			t.Fatalf("[badge 0x%x] unexpected error: %v", badge, err)
		}

		if seen[path.CapPtr] {
			t.Fatalf("[badge 0x%x] slot %d handed out twice", badge, path.CapPtr)
		}
		seen[path.CapPtr] = true

		gotBadge, rights, ok := k.Badge(path.CapPtr)
		if !ok || gotBadge != badge {
			t.Fatalf("[badge 0x%x] expected minted cap to carry the badge; got 0x%x", badge, gotBadge)
		}

		if rights != cspace.RightGrant|cspace.RightWrite {
			t.Fatalf("[badge 0x%x] expected grant and write rights; got %v", badge, rights)
		}
	}
}

func TestMintBadgeInvalid(t *testing.T) {
	s, _ := bootState(t, Config{})
	freeSlots := s.Allocator().Stats().FreeSlots

	for _, badge := range []cspace.Badge{cspace.NoBadge, cspace.MaxBadge + 1} {
		if path, err := s.MintBadge(badge); err != ErrInvalidParam || !path.Empty() {
			t.Errorf("[badge 0x%x] expected ErrInvalidParam and an empty path; got %+v, %v", badge, path, err)
		}
	}

	if got := s.Allocator().Stats().FreeSlots; got != freeSlots {
		t.Fatalf("expected no slots to be used; free slots %d, want %d", got, freeSlots)
	}
}

func TestMintBadgeInUse(t *testing.T) {
	s, k := bootState(t, Config{})

	path, err := s.MintBadge(42)
	if err != nil {
		t.Fatal(err)
	}

	if _, err = s.MintBadge(42); err != ErrBadgeInUse {
		t.Fatalf("expected ErrBadgeInUse; got %v", err)
	}

	if err = s.ReleaseBadge(path); err != nil {
		t.Fatal(err)
	}

	if k.Occupied(path.CapPtr) {
		t.Fatal("expected released badge cap to be deleted")
	}

	if err = s.ReleaseBadge(path); err != ErrInvalidParam {
		t.Fatalf("expected ErrInvalidParam for a released badge; got %v", err)
	}

	if _, err = s.MintBadge(42); err != nil {
		t.Fatalf("expected released badge to be mintable again; got %v", err)
	}
}

func TestMintBadgeFailureDoesNotLeak(t *testing.T) {
	s, k := bootState(t, Config{})
	freeSlots := s.Allocator().Stats().FreeSlots

	k.FailNext(sim.OpCNodeMint, syscall.ErrInvalidArgument)
	if path, err := s.MintBadge(7); err != ErrNoMem || !path.Empty() {
		t.Fatalf("expected ErrNoMem and an empty path; got %+v, %v", path, err)
	}

	if got := s.Allocator().Stats().FreeSlots; got != freeSlots {
		t.Fatalf("expected the slot to be released; free slots %d, want %d", got, freeSlots)
	}

	// The badge was never bound.
	if _, err := s.MintBadge(7); err != nil {
		t.Fatalf("expected badge to be mintable after a failed attempt; got %v", err)
	}
}

func TestMintBadgeOutOfSlots(t *testing.T) {
	s, _ := bootState(t, Config{})

	for {
		if _, err := s.Allocator().CSpaceAllocPath(); err != nil {
			break
		}
	}

	if path, err := s.MintBadge(9); err != ErrNoMem || !path.Empty() {
		t.Fatalf("expected ErrNoMem and an empty path; got %+v, %v", path, err)
	}
}

func TestFreeCap(t *testing.T) {
	s, k := bootState(t, Config{})

	t.Run("name-service release", func(t *testing.T) {
		freeSlots := s.Allocator().Stats().FreeSlots

		anon, err := s.Allocator().CSpaceAllocPath()
		if err != nil {
			t.Fatal(err)
		}

		src := s.Allocator().CSpaceMakePath(s.Endpoint().CPtr)
		if err = k.CNodeCopy(anon, src, cspace.AllRights); err != nil {
			t.Fatal(err)
		}

		if err = s.NameServ().Register("console", anon.CapPtr, 1); err != nil {
			t.Fatal(err)
		}

		if err = s.NameServ().Unregister("console", 1); err != nil {
			t.Fatal(err)
		}

		if k.Occupied(anon.CapPtr) {
			t.Fatal("expected the anonymous cap to be deleted")
		}

		if got := s.Allocator().Stats().FreeSlots; got != freeSlots {
			t.Fatalf("expected the slot to be freed; free slots %d, want %d", got, freeSlots)
		}

		// The endpoint itself survives.
		if !k.Occupied(s.Endpoint().CPtr) {
			t.Fatal("expected the main endpoint to survive")
		}
	})

	t.Run("null cap", func(t *testing.T) {
		used := k.UsedSlots()
		s.FreeCap(0)
		if k.UsedSlots() != used {
			t.Fatal("expected FreeCap(0) to be a no-op")
		}
	})

	t.Run("minted cap", func(t *testing.T) {
		path, err := s.MintBadge(99)
		if err != nil {
			t.Fatal(err)
		}

		s.FreeCap(path.CapPtr)
		if _, err = s.MintBadge(99); err != nil {
			t.Fatalf("expected FreeCap to retire the badge; got %v", err)
		}
	})
}

func TestFreeCapReturnsObject(t *testing.T) {
	s, k := bootState(t, Config{})
	before := s.Allocator().Stats()

	obj, err := vka.AllocEndpoint(s.VKA())
	if err != nil {
		t.Fatal(err)
	}

	s.FreeCap(obj.CPtr)

	if k.Occupied(obj.CPtr) {
		t.Fatal("expected the endpoint to be deleted")
	}

	if _, tracked := s.Allocator().Object(obj.CPtr); tracked {
		t.Fatal("expected the allocator to forget the object")
	}

	after := s.Allocator().Stats()
	if after.LiveObjects != before.LiveObjects || after.FreeSlots != before.FreeSlots {
		t.Fatalf("expected stats to be restored; got %+v, want %+v", after, before)
	}

	// A second release of the same slot is ignored.
	anon, err := s.Allocator().CSpaceAllocPath()
	if err != nil {
		t.Fatal(err)
	}
	s.FreeCap(anon.CapPtr)
	s.FreeCap(anon.CapPtr)
	if got := s.Allocator().Stats().FreeSlots; got != before.FreeSlots {
		t.Fatalf("expected a double free to be ignored; free slots %d, want %d", got, before.FreeSlots)
	}
}
