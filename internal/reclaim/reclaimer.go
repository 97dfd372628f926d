// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package reclaim defines the contract every safe-memory-reclamation (SMR)
// engine in this module exposes to a concurrent container: begin a critical
// section, retire an unreachable object, end the critical section.
//
// The contract is intentionally thin. The hard part — how a begin_op/end_op
// pair is made to prove that a retired object is no longer observable — is
// the job of the concrete engines in internal/hyaline and internal/ibr.
// This package only fixes the shape both engines must present so container
// harnesses in internal/workload can be written once, against an interface,
// and run under either scheme.
//
// # Usage
//
//	slot, _ := engine.Register()
//	defer engine.Unregister(slot)
//
//	h := engine.BeginOp(slot)
//	// ... read/mutate the container, collect nodes made unreachable ...
//	for _, n := range unlinked {
//	    engine.Retire(slot, n.destroy)
//	}
//	engine.EndOp(slot, h)
//
// # Container obligations
//
// Every read of a pointer that might be concurrently retired must occur
// inside a BeginOp/EndOp span, or go through Protect. An object is retired
// at most once. The slot argument is stable for the life of a registration
// and bounded by SlotCount.
package reclaim

import "unsafe"

// Handle is the opaque token BeginOp returns and EndOp consumes. Each engine
// defines its own concrete type; callers never inspect it, only thread it
// from BeginOp through to the matching EndOp.
type Handle any

// Reclaimer is the contract every reclamation engine in this module
// implements, named neutrally so callers can swap engines without
// touching container code.
type Reclaimer interface {
	// BeginOp enters a critical section on slot and returns a handle that
	// must be passed to the matching EndOp. Panics if slot is out of range.
	BeginOp(slot int) Handle

	// EndOp leaves the critical section entered by the matching BeginOp.
	// May perform reclamation work inline. Must be called exactly once per
	// BeginOp on the same slot.
	EndOp(slot int, h Handle)

	// Retire transfers ownership of an unreachable object to the engine.
	// destroy is invoked at most once, after the engine can certify no
	// in-flight critical section can still observe the object.
	Retire(slot int, destroy func())

	// Register hands out a slot for a new participant, recycling a freed
	// one where possible. Returns an error if the engine's fixed slot
	// array is exhausted.
	Register() (int, error)

	// Unregister releases a slot obtained from Register, making it
	// available for reuse. The caller must not be inside a critical
	// section on slot when calling this.
	Unregister(slot int)

	// SlotCount returns the number of slots the engine was constructed
	// with. The slot array never resizes after construction.
	SlotCount() int

	// Close tears down the engine, destroying every pending retired
	// record. Blocks until all active critical sections have left, up to
	// the engine's configured teardown timeout.
	Close() error
}

// Protector describes an engine that can certify a freshly-sampled
// pointer is still live for the remainder of the calling critical section.
// No engine in this module satisfies it: ibr.Engine has no Protect method,
// and hyaline.SEngine's Protect takes the node's birth era as an extra
// argument, so its method set does not match this interface.
type Protector interface {
	// Protect samples *addr and returns it together with true iff the
	// engine can certify the pointee is live for the rest of the calling
	// critical section. A false return means the caller must re-read addr
	// from its source location; addr itself is not mutated.
	Protect(slot int, addr *unsafe.Pointer) (unsafe.Pointer, bool)
}
