package procserv

import (
	"procserv/bootinfo"
	"procserv/kernel"
	"procserv/kernel/cache"
	"procserv/kernel/cspace"
	"procserv/kernel/kfmt"
	"procserv/kernel/mm/alloc"
	"procserv/kernel/mm/vspace"
	"procserv/kernel/simple"
	"procserv/kernel/vka"
	"procserv/procserv/pid"
	"sort"
)

var (
	// fatalFn is invoked when the boot sequence cannot complete. It is
	// overridden by tests.
	fatalFn = kfmt.Panic

	errNoKernel = &kernel.Error{Module: "procserv", Message: "no kernel interface supplied"}
)

// Initialise runs the boot sequence of the process server: it bootstraps the
// allocator and the address space manager from the boot inventory, enables
// the console, creates the main endpoint and initialises the modules. Any
// failure is unrecoverable; the diagnostic is printed and the system is
// halted.
func Initialise(info *bootinfo.Info, cfg Config) *State {
	s, err := initialise(info, cfg)
	if err != nil {
		fatalFn(err)
		return nil
	}
	return s
}

func initialise(info *bootinfo.Info, cfg Config) (*State, *kernel.Error) {
	if cfg.Kernel == nil {
		return nil, errNoKernel
	}
	if cfg.Memory == nil {
		cfg.Memory = vspace.DirectMemory{}
	}
	if cfg.Pool == nil {
		cfg.Pool = make([]byte, InitialMemSize)
	}

	s := &State{info: info, kern: cfg.Kernel}
	if err := s.initialiseAllocator(cfg); err != nil {
		return nil, err
	}

	// A failed boot leaves the console as it found it.
	prevSink := kfmt.OutputSink()
	if cfg.Console != nil {
		kfmt.SetOutputSink(kfmt.NewServerWriter(cfg.Console, ServerName, ServerColour))
	}

	if err := s.initialiseServer(info, cfg); err != nil {
		kfmt.SetOutputSink(prevSink)
		return nil, err
	}

	kfmt.Printf("OK.\n")
	return s, nil
}

// initialiseServer creates the server capabilities and the bookkeeping used
// by the primitives, then initialises the modules.
func (s *State) initialiseServer(info *bootinfo.Info, cfg Config) *kernel.Error {
	info.Print()

	s.coherency = cfg.Coherency
	if s.coherency == nil {
		s.coherency = cache.Default(cfg.Kernel)
	}
	s.devices = simple.NewDirectory(info, s.allocator, cfg.Kernel)

	kfmt.Printf("Allocating main process server endpoint...\n")
	ep, err := vka.AllocEndpoint(s.allocator)
	if err != nil {
		return &kernel.Error{Module: "procserv", Message: "failed to allocate main server endpoint: " + err.Message}
	}
	s.endpoint = ep

	kfmt.Printf("Setting recv cslot...\n")
	if s.recvPath, err = s.allocator.CSpaceAllocPath(); err != nil {
		return &kernel.Error{Module: "procserv", Message: "failed to allocate receive slot: " + err.Message}
	}

	// Modules may use the primitives from ModuleInit.
	s.irqHandlers = make(map[int]cspace.CPtr, IRQHandlerCacheHint)
	s.badges = make(map[cspace.Badge]cspace.CPtr)
	s.mintedCaps = make(map[cspace.CPtr]cspace.Badge)
	s.unblockClientFaultPID = pid.NullPID

	kfmt.Printf("Initialising process server modules...\n")
	return s.initialiseModules(cfg)
}

// initialiseAllocator bootstraps the allocator from the static pool and
// moves its bookkeeping to a virtual pool reserved in the server address
// space.
func (s *State) initialiseAllocator(cfg Config) *kernel.Error {
	kfmt.Printf("Initialising process server allocator...\n")

	a, err := alloc.Bootstrap(s.info, cfg.Pool, cfg.Kernel)
	if err != nil {
		return &kernel.Error{Module: "procserv", Message: "failed to bootstrap allocator: " + err.Message}
	}

	vs, err := vspace.Bootstrap(s.info, bootinfo.CapInitThreadVSpace, a, cfg.Kernel, cfg.Memory)
	if err != nil {
		return &kernel.Error{Module: "procserv", Message: "failed to bootstrap address space: " + err.Message}
	}

	_, vaddr, err := vs.ReserveRange(AllocatorVirtualPoolSize, cspace.AllRights, true)
	if err != nil {
		return &kernel.Error{Module: "procserv", Message: "failed to provide virtual memory for allocator: " + err.Message}
	}

	if err = a.ConfigureVirtualPool(vaddr, AllocatorVirtualPoolSize, vs.Root()); err != nil {
		return &kernel.Error{Module: "procserv", Message: "failed to configure allocator virtual pool: " + err.Message}
	}

	s.allocator, s.vspace = a, vs
	return nil
}

// initialiseModules sets up the built-in modules followed by the modules
// supplied in cfg, sorted by their initialisation order.
func (s *State) initialiseModules(cfg Config) *kernel.Error {
	s.pids.Init(cfg.MaxPIDs)
	s.nameServ.Init(s.FreeCap)

	modules := make(ModuleInfoList, 0, len(cfg.Modules))
	for _, info := range cfg.Modules {
		if info != nil && info.Module != nil {
			modules = append(modules, info)
		}
	}
	sort.Stable(modules)

	for _, info := range modules {
		if err := info.Module.ModuleInit(s); err != nil {
			return &kernel.Error{Module: "procserv", Message: "module " + info.Module.ModuleName() + " init failed: " + err.Message}
		}

		kfmt.Printf("[procserv] module %s initialised\n", info.Module.ModuleName())
		s.modules = append(s.modules, info.Module)
	}

	return nil
}
