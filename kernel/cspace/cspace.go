// Package cspace defines the handles used to name capabilities and the slots
// that hold them.
package cspace

// CPtr is a capability pointer: the index of a slot in a capability space.
// The zero CPtr is the null capability.
type CPtr uintptr

// WordBits is the resolution depth used for paths into a single-level root
// CNode.
const WordBits = 32

// Path identifies one slot in a capability space. A Path with a zero CapPtr
// denotes a failed allocation and must never be used as an invocation
// target.
type Path struct {
	// Root is the CNode that the CapPtr is resolved against.
	Root CPtr

	// CapPtr is the slot index.
	CapPtr CPtr

	// Depth is the number of CapPtr bits consumed while resolving the slot.
	Depth uint8
}

// Empty returns true if p does not refer to a slot.
func (p Path) Empty() bool {
	return p.CapPtr == 0
}

// Rights is a set of access rights attached to a capability.
type Rights uint8

// The supported capability rights.
const (
	RightWrite Rights = 1 << iota
	RightRead
	RightGrant
	RightGrantReply

	NoRights  Rights = 0
	AllRights        = RightWrite | RightRead | RightGrant | RightGrantReply
)

// Has returns true if r contains every right in other.
func (r Rights) Has(other Rights) bool {
	return r&other == other
}

// Badge is a value embedded into a derived endpoint capability that the
// receiving side uses to identify the sender.
type Badge uint32

const (
	// BadgeBits is the number of usable badge bits.
	BadgeBits = 28

	// MaxBadge is the largest badge value that can be minted.
	MaxBadge = Badge(1<<BadgeBits - 1)

	// NoBadge is the value carried by unbadged capabilities.
	NoBadge = Badge(0)
)
