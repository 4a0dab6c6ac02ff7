// Package pid allocates process identifiers for the clients started by the
// process server.
package pid

import (
	"procserv/kernel"
	"procserv/kernel/kfmt"
)

// PID identifies a client process.
type PID int32

// NullPID is the sentinel used where no client is referenced.
const NullPID = PID(-1)

// DefaultMaxPIDs is the capacity used when Init is called with a
// non-positive size.
const DefaultMaxPIDs = 1024

var (
	errOutOfPIDs  = &kernel.Error{Module: "pid", Message: "out of process identifiers"}
	errInvalidPID = &kernel.Error{Module: "pid", Message: "process identifier is not allocated"}
)

// List tracks allocated PIDs in a bitmap. Each bit i is set when PID i is in
// use.
type List struct {
	bitmap []uint64
	max    int
	used   int

	// next is the PID where the search for a free entry starts. PIDs are
	// handed out round-robin so that a recently freed PID is not reused
	// immediately.
	next int
}

// Init sets up the list to track up to maxPIDs identifiers.
func (l *List) Init(maxPIDs int) {
	if maxPIDs <= 0 {
		maxPIDs = DefaultMaxPIDs
	}

	l.bitmap = make([]uint64, (maxPIDs+63)>>6)
	l.max = maxPIDs
	l.used = 0
	l.next = 0
	kfmt.Printf("[pid] %d process identifiers available\n", maxPIDs)
}

// Alloc reserves the next free PID.
func (l *List) Alloc() (PID, *kernel.Error) {
	if l.used == l.max {
		return NullPID, errOutOfPIDs
	}

	for scanned := 0; scanned < l.max; scanned++ {
		candidate := (l.next + scanned) % l.max
		block, mask := candidate>>6, uint64(1)<<uint(candidate&63)
		if l.bitmap[block]&mask == 0 {
			l.bitmap[block] |= mask
			l.used++
			l.next = (candidate + 1) % l.max
			return PID(candidate), nil
		}
	}

	return NullPID, errOutOfPIDs
}

// Free releases a PID obtained from Alloc.
func (l *List) Free(p PID) *kernel.Error {
	if p < 0 || int(p) >= l.max {
		return errInvalidPID
	}

	block, mask := int(p)>>6, uint64(1)<<uint(p&63)
	if l.bitmap[block]&mask == 0 {
		return errInvalidPID
	}

	l.bitmap[block] &^= mask
	l.used--
	return nil
}

// InUse returns true if p is currently allocated.
func (l *List) InUse(p PID) bool {
	if p < 0 || int(p) >= l.max {
		return false
	}
	return l.bitmap[int(p)>>6]&(uint64(1)<<uint(p&63)) != 0
}

// Count returns the number of allocated PIDs.
func (l *List) Count() int {
	return l.used
}
