// Package procserv holds the global state of the process server and the
// primitive services built on top of it: badge minting, frame transfer,
// device frame lookup, interrupt handler caching and cache maintenance.
package procserv

import (
	"io"
	"procserv/bootinfo"
	"procserv/kernel"
	"procserv/kernel/cache"
	"procserv/kernel/cspace"
	"procserv/kernel/mm"
	"procserv/kernel/mm/alloc"
	"procserv/kernel/mm/vspace"
	"procserv/kernel/simple"
	"procserv/kernel/syscall"
	"procserv/kernel/vka"
	"procserv/procserv/nameserv"
	"procserv/procserv/pid"
	"sync"
)

const (
	// InitialMemSize is the size of the static pool that funds the
	// allocator until its virtual pool is available.
	InitialMemSize = 32 * mm.PageSize

	// AllocatorVirtualPoolSize is the size of the virtual range handed to
	// the allocator for its bookkeeping.
	AllocatorVirtualPoolSize = 100 * mm.PageSize

	// IRQHandlerCacheHint is the expected number of distinct interrupt
	// lines the server hands out handlers for.
	IRQHandlerCacheHint = 32

	// ServerName and ServerColour select the tag printed in front of every
	// console line.
	ServerName   = "PROCSERV"
	ServerColour = 32
)

var (
	// ErrInvalidParam is returned when a primitive receives an argument
	// outside its domain.
	ErrInvalidParam = &kernel.Error{Module: "procserv", Message: "invalid parameter"}

	// ErrNoMem is returned when a slot, an object or a mapping could not be
	// obtained.
	ErrNoMem = &kernel.Error{Module: "procserv", Message: "out of memory"}

	// ErrLookup is returned when no device untyped covers the requested
	// region.
	ErrLookup = &kernel.Error{Module: "procserv", Message: "device region lookup failed"}

	// ErrBadgeInUse is returned when minting a badge that is already bound
	// to a live capability.
	ErrBadgeInUse = &kernel.Error{Module: "procserv", Message: "badge already in use"}
)

// Config supplies the environment the process server runs in. Zero fields
// select the defaults.
type Config struct {
	// Kernel performs the kernel invocations. It is required.
	Kernel syscall.Kernel

	// Memory gives access to mapped pages. Defaults to
	// vspace.DirectMemory.
	Memory vspace.Memory

	// Pool funds the allocator bootstrap. Defaults to a fresh pool of
	// InitialMemSize bytes.
	Pool []byte

	// Console receives the server output once the boot sequence enables
	// it. Output stays in the early ring buffer if Console is nil.
	Console io.Writer

	// Coherency overrides the cache maintenance implementation selected
	// for the target architecture.
	Coherency cache.Coherency

	// Modules lists the modules initialised after the built-in ones. Only
	// the PID list and the name-service registry are built in; the process
	// descriptor, window and dataspace registries are supplied here by the
	// embedding server.
	Modules []*ModuleInfo

	// MaxPIDs is the capacity of the PID list.
	MaxPIDs int
}

// State is the global state of the process server. Every exported method
// acquires the state lock so that at most one primitive runs at a time.
type State struct {
	mu sync.Mutex

	info *bootinfo.Info
	kern syscall.Kernel

	allocator *alloc.Allocator
	vspace    *vspace.VSpace
	coherency cache.Coherency
	devices   *simple.Directory

	endpoint vka.Object
	recvPath cspace.Path

	faketime              uint32
	unblockClientFaultPID pid.PID

	irqHandlers map[int]cspace.CPtr

	// badges maps each live minted badge to its capability and
	// mintedCaps is the reverse index.
	badges     map[cspace.Badge]cspace.CPtr
	mintedCaps map[cspace.CPtr]cspace.Badge

	pids     pid.List
	nameServ nameserv.Registry
	modules  []Module
}

// VKA returns the kernel object allocator.
func (s *State) VKA() vka.VKA {
	return s.allocator
}

// Allocator returns the allocator backing VKA.
func (s *State) Allocator() *alloc.Allocator {
	return s.allocator
}

// VSpace returns the manager of the server's own address space.
func (s *State) VSpace() *vspace.VSpace {
	return s.vspace
}

// Kernel returns the kernel invocation interface.
func (s *State) Kernel() syscall.Kernel {
	return s.kern
}

// Endpoint returns the main server endpoint.
func (s *State) Endpoint() vka.Object {
	return s.endpoint
}

// RecvPath returns the slot used to receive capabilities from clients.
func (s *State) RecvPath() cspace.Path {
	return s.recvPath
}

// PIDs returns the PID list.
func (s *State) PIDs() *pid.List {
	return &s.pids
}

// NameServ returns the name-service registry.
func (s *State) NameServ() *nameserv.Registry {
	return &s.nameServ
}

// Modules returns the names of the initialised modules in initialisation
// order.
func (s *State) Modules() []string {
	names := make([]string, 0, len(s.modules))
	for _, m := range s.modules {
		names = append(names, m.ModuleName())
	}
	return names
}

// Faketime returns the current value of the logical clock and advances it.
func (s *State) Faketime() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.faketime
	s.faketime++
	return t
}

// UnblockClientFaultPID returns the client waiting to be resumed after a
// fault, or pid.NullPID.
func (s *State) UnblockClientFaultPID() pid.PID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unblockClientFaultPID
}

// SetUnblockClientFaultPID records the client to resume after a fault.
func (s *State) SetUnblockClientFaultPID(p pid.PID) {
	s.mu.Lock()
	s.unblockClientFaultPID = p
	s.mu.Unlock()
}
