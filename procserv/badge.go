package procserv

import (
	"procserv/kernel"
	"procserv/kernel/cspace"
	"procserv/kernel/kfmt"
	"procserv/kernel/vka"
)

// mintRights are the rights of badged endpoint capabilities handed to
// clients: they can call the server and transfer capabilities, but not
// receive on the server's endpoint.
const mintRights = cspace.RightGrant | cspace.RightWrite

// MintBadge creates a copy of the main server endpoint carrying badge. The
// returned path owns the new capability; it is released with ReleaseBadge.
func (s *State) MintBadge(badge cspace.Badge) (cspace.Path, *kernel.Error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if badge == cspace.NoBadge || badge > cspace.MaxBadge {
		kfmt.Warnf("procserv_mint_badge invalid badge 0x%x", badge)
		return cspace.Path{}, ErrInvalidParam
	}

	if _, live := s.badges[badge]; live {
		kfmt.Warnf("procserv_mint_badge badge 0x%x already minted", badge)
		return cspace.Path{}, ErrBadgeInUse
	}

	slot, err := vka.NewSlot(s.allocator, s.kern)
	if err != nil {
		kfmt.Warnf("procserv_mint_badge could not allocate a cslot")
		return cspace.Path{}, ErrNoMem
	}
	defer slot.Close()

	src := s.allocator.CSpaceMakePath(s.endpoint.CPtr)
	if err = s.kern.CNodeMint(slot.Path(), src, mintRights, badge); err != nil {
		kfmt.Warnf("procserv_mint_badge could not mint badge 0x%x: %s", badge, err.Message)
		return cspace.Path{}, ErrNoMem
	}

	path := slot.Release()
	s.badges[badge] = path.CapPtr
	s.mintedCaps[path.CapPtr] = badge
	return path, nil
}

// ReleaseBadge deletes a capability returned by MintBadge and retires its
// badge so that it can be minted again.
func (s *State) ReleaseBadge(path cspace.Path) *kernel.Error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, minted := s.mintedCaps[path.CapPtr]; !minted {
		return ErrInvalidParam
	}

	s.deleteCap(path.CapPtr)
	return nil
}

// deleteCap removes the capability at cptr without revoking its
// derivatives, frees its slot and retires its badge if it was minted by
// MintBadge. Objects created through the allocator are returned to their
// untyped. The capabilities owned by the server itself are never deleted.
// The caller must hold the state lock.
func (s *State) deleteCap(cptr cspace.CPtr) {
	if s.serverOwned(cptr) {
		kfmt.Warnf("[procserv] refusing to delete server capability %d", cptr)
		return
	}

	if !s.allocator.Allocated(cptr) {
		kfmt.Warnf("[procserv] capability %d is not in an allocated slot", cptr)
		return
	}

	if obj, tracked := s.allocator.Object(cptr); tracked {
		s.allocator.FreeObject(obj)
	} else {
		if err := s.kern.CNodeDelete(s.allocator.CSpaceMakePath(cptr)); err != nil {
			kfmt.Warnf("[procserv] could not delete capability %d: %s", cptr, err.Message)
		}
		s.allocator.CSpaceFree(cptr)
	}

	if badge, minted := s.mintedCaps[cptr]; minted {
		delete(s.mintedCaps, cptr)
		delete(s.badges, badge)
	}
}

// serverOwned returns true if cptr holds the main endpoint, the receive slot
// or a cached interrupt handler.
func (s *State) serverOwned(cptr cspace.CPtr) bool {
	if cptr == s.endpoint.CPtr || cptr == s.recvPath.CapPtr {
		return true
	}

	for _, handler := range s.irqHandlers {
		if handler == cptr {
			return true
		}
	}
	return false
}
