// Package nameserv keeps the table of names registered by server processes.
// Each entry holds an anonymous endpoint capability handed over by the
// registering client; the registry owns that capability until the entry is
// removed.
package nameserv

import (
	"procserv/kernel"
	"procserv/kernel/cspace"
	"procserv/kernel/kfmt"
	"procserv/procserv/pid"
)

// FreeCapFn releases a capability owned by the registry.
type FreeCapFn func(cap cspace.CPtr)

var (
	errInvalidName = &kernel.Error{Module: "nameserv", Message: "invalid server name"}
	errInvalidCap  = &kernel.Error{Module: "nameserv", Message: "cannot register the null capability"}
	errNotFound    = &kernel.Error{Module: "nameserv", Message: "server name not registered"}
	errNotOwner    = &kernel.Error{Module: "nameserv", Message: "server name registered by another client"}
)

type entry struct {
	anonCap cspace.CPtr
	owner   pid.PID
}

// Registry maps server names to anonymous endpoint capabilities.
type Registry struct {
	entries map[string]entry
	freeCap FreeCapFn
}

// Init resets the registry. freeCap is invoked for every capability the
// registry drops.
func (r *Registry) Init(freeCap FreeCapFn) {
	r.entries = make(map[string]entry)
	r.freeCap = freeCap
}

// Register binds name to anonCap on behalf of owner. Re-registering a name
// held by the same owner replaces the capability and releases the old one.
func (r *Registry) Register(name string, anonCap cspace.CPtr, owner pid.PID) *kernel.Error {
	if name == "" {
		return errInvalidName
	}

	if anonCap == 0 {
		return errInvalidCap
	}

	if old, exists := r.entries[name]; exists {
		if old.owner != owner {
			return errNotOwner
		}
		r.release(old)
	}

	r.entries[name] = entry{anonCap: anonCap, owner: owner}
	return nil
}

// Resolve returns the capability registered under name.
func (r *Registry) Resolve(name string) (cspace.CPtr, *kernel.Error) {
	e, exists := r.entries[name]
	if !exists {
		return 0, errNotFound
	}
	return e.anonCap, nil
}

// Unregister removes name on behalf of owner and releases its capability.
func (r *Registry) Unregister(name string, owner pid.PID) *kernel.Error {
	e, exists := r.entries[name]
	if !exists {
		return errNotFound
	}

	if e.owner != owner {
		return errNotOwner
	}

	delete(r.entries, name)
	r.release(e)
	return nil
}

// UnregisterOwner removes every entry registered by owner. It is called
// when a client process exits.
func (r *Registry) UnregisterOwner(owner pid.PID) int {
	var removed int
	for name, e := range r.entries {
		if e.owner == owner {
			delete(r.entries, name)
			r.release(e)
			removed++
		}
	}
	return removed
}

// Len returns the number of registered names.
func (r *Registry) Len() int {
	return len(r.entries)
}

func (r *Registry) release(e entry) {
	if r.freeCap == nil {
		kfmt.Warnf("[nameserv] no release callback; leaking capability %d", e.anonCap)
		return
	}
	r.freeCap(e.anonCap)
}
