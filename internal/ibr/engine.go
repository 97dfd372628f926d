// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package ibr implements interval-based reclamation: a global epoch
// counter, per-participant published local epochs, and a per-object
// retire epoch stamp. An object is destroyed once the minimum active
// epoch exceeds its retire epoch. The engine stamps no birth epoch;
// CurrentEpoch lets a container stamp one of its own, which the engine
// does not consult.
//
// Grounded on `ibrNatarajan.cpp` and `ibr_sortedUnorderedMap.cpp`, with two
// changes: the minimum-active-epoch bound is a real scan over
// internal/concurrency/epoch.Table rather than the original's
// `global_epoch - 2` heuristic, and retirement records are engine-owned
// rather than reusing the retired node's own link field.
package ibr

import (
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/ayushgupta75/reclaim/internal/concurrency/epoch"
	"github.com/ayushgupta75/reclaim/internal/monitoring/metrics"
	"github.com/ayushgupta75/reclaim/internal/reclaim"
)

// Config tunes an Engine. Zero value is not valid; use DefaultConfig.
type Config struct {
	// EpochIncrementFrequency is how many EndOp calls on a slot occur
	// between advances of the global epoch. Grounded on the
	// `epoch_increment_frequency` tunable in `ibr_sortedUnorderedMap.cpp`.
	EpochIncrementFrequency uint64

	// EmptyFrequency is how many EndOp calls on a slot occur between
	// attempts to reclaim that slot's retirement list. Grounded on the
	// same source's `empty_frequency` tunable.
	EmptyFrequency uint64

	// OnMisuse is invoked with ErrDoubleRetire when a retirement record
	// reaches destruction a second time. Retire builds a fresh record on
	// every call, so calling Retire twice for the same object is not
	// detected.
	OnMisuse reclaim.MisuseHook

	// TeardownTimeout bounds Close's wait for participants to quiesce.
	// Zero spins forever.
	TeardownTimeout time.Duration

	// Metrics, if non-nil, receives BeginOp/EndOp/Retire/Reclaim counts
	// and latencies, double-retire and slot-exhaustion events, and the
	// active-slot and min-active-epoch gauges. Nil disables collection.
	Metrics *metrics.Metrics
}

// DefaultConfig returns the tunables ibr_sortedUnorderedMap.cpp ships
// with: advance the epoch every 100 operations, attempt reclamation
// every 10.
func DefaultConfig() Config {
	return Config{
		EpochIncrementFrequency: 100,
		EmptyFrequency:          10,
		OnMisuse:                reclaim.DefaultMisuseHook,
	}
}

type retireList struct {
	head atomic.Pointer[record]
}

// Engine is the interval-based reclamation engine. It implements
// reclaim.Reclaimer. Capacity is fixed at construction.
type Engine struct {
	global atomic.Uint64
	table  *epoch.Table

	guards []*epoch.Guard
	lists  []retireList
	ops    []atomic.Uint64
	pool   *recordPool

	config Config

	registered     atomic.Int64
	retiredBacklog atomic.Int64
}

// New constructs an Engine with room for n concurrent participants.
func New(n int, config Config) *Engine {
	if config.EpochIncrementFrequency == 0 {
		config.EpochIncrementFrequency = 100
	}
	if config.EmptyFrequency == 0 {
		config.EmptyFrequency = 10
	}
	if config.OnMisuse == nil {
		config.OnMisuse = reclaim.DefaultMisuseHook
	}
	return &Engine{
		table:  epoch.NewTable(n),
		guards: make([]*epoch.Guard, n),
		lists:  make([]retireList, n),
		ops:    make([]atomic.Uint64, n),
		pool:   newRecordPool(),
		config: config,
	}
}

// SlotCount implements reclaim.Reclaimer.
func (e *Engine) SlotCount() int { return e.table.Len() }

// CurrentEpoch returns the global epoch, for containers to stamp a new
// node's birth epoch at allocation time.
func (e *Engine) CurrentEpoch() uint64 { return e.global.Load() }

// Register implements reclaim.Reclaimer, binding a fresh epoch.Guard to
// the returned slot.
func (e *Engine) Register() (int, error) {
	g, err := e.table.Register()
	if err != nil {
		if e.config.Metrics != nil {
			e.config.Metrics.RecordSlotExhaustion()
		}
		return 0, fmt.Errorf("ibr: %w", err)
	}
	e.guards[g.Index()] = g
	if e.config.Metrics != nil {
		e.config.Metrics.SetActiveSlots(uint64(e.registered.Add(1)))
	}
	return g.Index(), nil
}

// Unregister implements reclaim.Reclaimer.
func (e *Engine) Unregister(slotID int) {
	reclaim.CheckSlot(slotID, e.table.Len())
	g := e.guards[slotID]
	e.guards[slotID] = nil
	e.table.Unregister(g)
	if e.config.Metrics != nil {
		e.config.Metrics.SetActiveSlots(uint64(e.registered.Add(-1)))
	}
}

// BeginOp implements reclaim.Reclaimer: it publishes the current global
// epoch as this slot's local epoch, making the slot visible to MinActive
// for the duration of the critical section.
func (e *Engine) BeginOp(slotID int) reclaim.Handle {
	reclaim.CheckSlot(slotID, e.table.Len())
	start := time.Now()
	ep := e.global.Load()
	e.guards[slotID].Publish(ep)
	if e.config.Metrics != nil {
		e.config.Metrics.RecordBeginOp(time.Since(start))
	}
	return ep
}

// EndOp implements reclaim.Reclaimer: it marks the slot quiescent, then
// periodically advances the global epoch and attempts reclamation on this
// slot's retirement list, per Config's tunables.
func (e *Engine) EndOp(slotID int, _ reclaim.Handle) {
	reclaim.CheckSlot(slotID, e.table.Len())
	start := time.Now()
	e.guards[slotID].Publish(epoch.Inactive)

	n := e.ops[slotID].Add(1)
	if n%e.config.EpochIncrementFrequency == 0 {
		e.global.Add(1)
	}
	if n%e.config.EmptyFrequency == 0 {
		e.reclaim(slotID)
	}
	if e.config.Metrics != nil {
		e.config.Metrics.RecordEndOp(time.Since(start))
	}
}

// Retire implements reclaim.Reclaimer: it stamps the object with the
// current global epoch as its retire epoch and links an engine-owned
// record onto slotID's retirement list.
func (e *Engine) Retire(slotID int, destroy func()) {
	reclaim.CheckSlot(slotID, e.table.Len())
	start := time.Now()
	r := e.pool.get(destroy, e.global.Load())
	list := &e.lists[slotID]
	for {
		old := list.head.Load()
		r.next.Store(old)
		if list.head.CompareAndSwap(old, r) {
			if e.config.Metrics != nil {
				e.config.Metrics.RecordRetire(time.Since(start))
				e.config.Metrics.SetRetiredBacklog(uint64(e.retiredBacklog.Add(1)))
			}
			return
		}
	}
}

// reclaim destroys every record on slotID's retirement list whose retire
// epoch is below the table-wide minimum active epoch, computed by a real
// scan in place of the original's `global_epoch - 2` heuristic.
// Retirement records on a single slot are pushed in
// non-decreasing epoch order (the global epoch never regresses), so the
// list is sorted newest-to-oldest from head to tail: reclaimable records
// form a suffix, found by walking from the head until retireEpoch drops
// below min.
func (e *Engine) reclaim(slotID int) {
	min := e.table.MinActive()
	if e.config.Metrics != nil {
		e.config.Metrics.SetMinActiveEpoch(min)
	}
	list := &e.lists[slotID]

	head := list.head.Load()
	if head == nil {
		return
	}

	var boundary *record
	cur := head
	for cur != nil && cur.retireEpoch >= min {
		boundary = cur
		cur = cur.next.Load()
	}
	if cur == nil {
		return // nothing below the bound yet
	}

	if boundary == nil {
		if !list.head.CompareAndSwap(head, nil) {
			return // a concurrent retire changed the head; try again next pass
		}
	} else {
		boundary.next.Store(nil)
	}

	start := time.Now()
	n := e.destroyChain(cur)
	if e.config.Metrics != nil {
		e.config.Metrics.RecordReclaim(time.Since(start), n)
	}
}

// destroyChain destroys every record in the chain starting at head and
// returns how many were destroyed.
func (e *Engine) destroyChain(head *record) int {
	destroyed := 0
	for n := head; n != nil; {
		next := n.next.Load()
		if reclaim.MarkRetired(&n.status) {
			n.destroy()
			e.pool.put(n)
			destroyed++
		} else {
			if e.config.Metrics != nil {
				e.config.Metrics.RecordDoubleRetire()
			}
			e.config.OnMisuse(fmt.Errorf("%w", reclaim.ErrDoubleRetire))
		}
		n = next
	}
	if destroyed > 0 && e.config.Metrics != nil {
		e.config.Metrics.SetRetiredBacklog(uint64(e.retiredBacklog.Add(-int64(destroyed))))
	}
	return destroyed
}

// Close implements reclaim.Reclaimer: it waits for every registered slot
// to go quiescent, then destroys whatever remains retired on it.
func (e *Engine) Close() error {
	var deadline time.Time
	if e.config.TeardownTimeout > 0 {
		deadline = time.Now().Add(e.config.TeardownTimeout)
	}

	for i := 0; i < e.table.Len(); i++ {
		g := e.guards[i]
		if g == nil {
			continue
		}
		for e.table.Get(i) != epoch.Inactive {
			if !deadline.IsZero() && time.Now().After(deadline) {
				return reclaim.ErrTeardownTimeout
			}
			runtime.Gosched()
		}
		head := e.lists[i].head.Swap(nil)
		e.destroyChain(head)
	}
	return nil
}
