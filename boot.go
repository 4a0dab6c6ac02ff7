package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"procserv/kernel/kfmt"
	"procserv/kernel/sim"
	"procserv/procserv"
)

// runServer boots the process server on a simulated kernel. The machine
// geometry can be adjusted from the command line.
func runServer() error {
	cnodeBits := flag.Uint("cnode-bits", 12, "log2 of the number of slots in the root CNode")
	maxIRQ := flag.Int("max-irq", 255, "the highest interrupt line of the simulated machine")
	poolPages := flag.Uint("pool-pages", uint(procserv.InitialMemSize>>12), "the size of the allocator bootstrap pool in pages")
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, "procserv: boot the process server on a simulated kernel\n\n")
		fmt.Fprint(os.Stderr, "Usage: procserv [options]\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *cnodeBits < 8 || *cnodeBits > 20 {
		return errors.New("cnode-bits must be in the range [8, 20]")
	}

	k, info := sim.Boot(sim.Config{CNodeSizeBits: uint8(*cnodeBits), MaxIRQ: *maxIRQ})
	s := procserv.Initialise(info, procserv.Config{
		Kernel:  k,
		Memory:  k,
		Pool:    make([]byte, *poolPages<<12),
		Console: os.Stdout,
	})

	stats := s.Allocator().Stats()
	kfmt.Printf("%d free slots, %d live objects, %d/%d virtual pool bytes in use\n",
		stats.FreeSlots, stats.LiveObjects, stats.VirtualPoolUsed, stats.VirtualPoolMapped)
	return nil
}

func main() {
	if err := runServer(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err.Error())
		os.Exit(1)
	}
}
