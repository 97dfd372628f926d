// Licensed under the MIT License. See LICENSE file in the project root for details.

package hyaline

import (
	"fmt"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/ayushgupta75/reclaim/internal/reclaim"
)

// Batch is the HE-S extension's unit of retirement: a group of nodes
// retired together, stamped with the minimum birth era among them and
// carrying a shared reference count. Grounded on the `Batch` struct and
// its `retire`/`enter`/`leave`/`deref` functions in
// `HyalineS_SGL.cpp`/`hyalineS_bonsaiTree.cpp`, which retire whole
// replaced subtrees rather than individual nodes and gate a node's
// destruction on the batch's shared refCounter reaching zero.
type Batch struct {
	nodes       []unsafe.Pointer
	refCounter  atomic.Int64
	minBirthEra uint64
	destroy     func(unsafe.Pointer)
	status      atomic.Uint32
	next        atomic.Pointer[Batch]
}

// NewBatch constructs a batch of nodes sharing a destructor, stamped with
// the minimum of their individual birth eras.
func NewBatch(nodes []unsafe.Pointer, minBirthEra uint64, destroy func(unsafe.Pointer)) *Batch {
	return &Batch{nodes: nodes, minBirthEra: minBirthEra, destroy: destroy}
}

// SEngine extends Engine with birth-era stamped protection: Protect
// rejects a pointer whose birth era is newer than the reader's recorded
// snapshot era, closing the window where a reader could observe a node
// that was born and retired entirely within a single concurrent batch
// retirement the reader never had a chance to protect against.
type SEngine struct {
	*Engine

	eras []atomic.Uint64 // per-slot: the era a reader last observed at BeginOp
	era  atomic.Uint64   // global birth-era counter, advanced by the container on insert

	batches []atomic.Pointer[Batch] // per-slot batch retirement list, parallel to Engine.slots
}

// NewSEngine constructs a birth-era-aware Hyaline engine with n slots.
func NewSEngine(n int, config Config) *SEngine {
	return &SEngine{
		Engine:  New(n, config),
		eras:    make([]atomic.Uint64, n),
		batches: make([]atomic.Pointer[Batch], n),
	}
}

// NextEra advances and returns the global birth-era counter. Containers
// call this when constructing a new node, stamping the node with the
// returned value.
func (e *SEngine) NextEra() uint64 {
	return e.era.Add(1)
}

// BeginOp overrides Engine.BeginOp to additionally record the reader's
// observed era snapshot, which Protect consults.
func (e *SEngine) BeginOp(slotID int) reclaim.Handle {
	reclaim.CheckSlot(slotID, len(e.eras))
	e.eras[slotID].Store(e.era.Load())
	return e.Engine.BeginOp(slotID)
}

// Protect is the HE-S extension's pointer check. It takes the node's birth
// era as a third argument, so SEngine does not satisfy reclaim.Protector,
// whose Protect has no such argument. It loads
// addr and returns the pointer along with whether it is safe to
// dereference, i.e. born no later than the snapshot era this slot
// observed at BeginOp. A node born strictly after that snapshot could
// have been retired and reclaimed by a batch the reader raced with, so
// Protect reports it as unsafe rather than returning a dangling pointer.
func (e *SEngine) Protect(slotID int, addr *unsafe.Pointer, birthEra uint64) (unsafe.Pointer, bool) {
	reclaim.CheckSlot(slotID, len(e.eras))
	p := atomic.LoadPointer(addr)
	snapshot := e.eras[slotID].Load()
	if birthEra > snapshot {
		return nil, false
	}
	return p, true
}

// sHandle bundles the two independent retirement-list snapshots BeginOp
// must capture for a birth-era slot: the plain record-list handle Engine
// already hands out, plus this slot's batch-list handle.
type sHandle struct {
	rec   *record
	batch *Batch
}

// BeginOpS is the birth-era-aware entry point: it snapshots the reader's
// era and both retirement lists in one call. Ordinary reclaim.Reclaimer
// callers use the embedded Engine's BeginOp/EndOp, which remain correct
// on their own; containers using the HE-S extension's Protect should use
// BeginOpS/EndOpS so batches retired via RetireBatch are swept too.
func (e *SEngine) BeginOpS(slotID int) sHandle {
	reclaim.CheckSlot(slotID, len(e.eras))
	e.eras[slotID].Store(e.era.Load())
	s := &e.Engine.slots[slotID]
	s.activeRefs.Add(1)
	return sHandle{
		rec:   s.retireHead.Load(),
		batch: e.batches[slotID].Load(),
	}
}

// EndOpS is the birth-era-aware counterpart to BeginOpS.
func (e *SEngine) EndOpS(slotID int, h sHandle) {
	reclaim.CheckSlot(slotID, len(e.eras))
	s := &e.Engine.slots[slotID]

	curRec := s.retireHead.Load()
	curBatch := e.batches[slotID].Load()
	prev := s.activeRefs.Add(-1) + 1

	if prev != 1 {
		return
	}
	if curRec != nil {
		e.Engine.sweep(s, h.rec)
	}
	if curBatch != nil {
		e.sweepBatches(slotID, h.batch)
	}
}

// sweepBatches mirrors Engine.sweep for the per-slot Batch list: it walks
// from the current batch-list head to handle, CAS-splices the traversed
// prefix out, and decrements each swept batch's refCounter once per
// contained node, destroying nodes whose count reaches zero.
func (e *SEngine) sweepBatches(slotID int, handle *Batch) {
	head := &e.batches[slotID]
	for {
		cur := head.Load()
		if cur == handle {
			return
		}

		var batch []*Batch
		for b := cur; b != nil && b != handle; b = b.next.Load() {
			batch = append(batch, b)
		}

		if head.CompareAndSwap(cur, handle) {
			for _, b := range batch {
				e.destroyBatchNodes(b)
			}
			return
		}
	}
}

// destroyBatchNodes decrements b's refCounter once per node, mirroring
// the original's retire loop, but only the decrement that drives the
// counter to zero actually destroys the batch's nodes — every decrement
// before that is bookkeeping only. With refCounter initialized to
// len(b.nodes) in RetireBatch, this call (made exactly once per batch,
// by whichever sweep claims it off its slot's list) reaches zero on its
// last iteration and destroys every node together.
func (e *SEngine) destroyBatchNodes(b *Batch) {
	if !reclaim.MarkRetired(&b.status) {
		if e.config.Metrics != nil {
			e.config.Metrics.RecordDoubleRetire()
		}
		e.config.OnMisuse(fmt.Errorf("%w", reclaim.ErrDoubleRetire))
		return
	}
	start := time.Now()
	for range b.nodes {
		if b.refCounter.Add(-1) == 0 {
			for _, n := range b.nodes {
				b.destroy(n)
			}
			if e.config.Metrics != nil {
				e.config.Metrics.RecordReclaim(time.Since(start), len(b.nodes))
			}
			return
		}
	}
}

// RetireBatch publishes a Batch onto slotID's batch retirement list.
// Sweeping a Batch list follows the same handle-bounded,
// CAS-splice-on-retry discipline as Engine.sweep, operating on *Batch
// instead of *record and decrementing refCounter once per node.
func (e *SEngine) RetireBatch(slotID int, b *Batch) {
	reclaim.CheckSlot(slotID, len(e.batches))
	b.refCounter.Store(int64(len(b.nodes)))
	head := &e.batches[slotID]
	for {
		old := head.Load()
		b.next.Store(old)
		if head.CompareAndSwap(old, b) {
			return
		}
	}
}
