package procserv

import "procserv/kernel"

// Module is implemented by the process server components that keep state in
// the global State, such as the process, window and dataspace lists.
type Module interface {
	// ModuleName returns the name of the module.
	ModuleName() string

	// ModuleInit initialises the module. It is called once during
	// Initialise after the allocator, the address space manager and the
	// main endpoint are available.
	ModuleInit(s *State) *kernel.Error
}

// ModuleOrder specifies when a module is initialised relative to the other
// registered modules.
type ModuleOrder int8

const (
	// ModuleOrderEarly modules are initialised before anything else.
	ModuleOrderEarly ModuleOrder = -128

	// ModuleOrderDefault is the order used by most modules.
	ModuleOrderDefault ModuleOrder = 0

	// ModuleOrderLast modules are initialised after all other modules.
	ModuleOrderLast ModuleOrder = 127
)

// ModuleInfo describes a module registered with the process server.
type ModuleInfo struct {
	// Order controls when the module is initialised.
	Order ModuleOrder

	// Module is the module instance.
	Module Module
}

// ModuleInfoList is a list of registered modules that can be sorted by
// initialisation order.
type ModuleInfoList []*ModuleInfo

// Len returns the length of the module list.
func (l ModuleInfoList) Len() int { return len(l) }

// Swap exchanges two elements of the module list.
func (l ModuleInfoList) Swap(i, j int) { l[i], l[j] = l[j], l[i] }

// Less returns true if the module at index i must be initialised before the
// module at index j.
func (l ModuleInfoList) Less(i, j int) bool { return l[i].Order < l[j].Order }
