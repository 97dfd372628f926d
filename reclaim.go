// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package reclaim provides a safe memory reclamation library for lock-free
// data structures, with two interchangeable reclamation engines behind a
// single Reclaimer contract.
//
// # Quick Start
//
//	import "github.com/ayushgupta75/reclaim"
//
//	engine := reclaim.NewHyaline(runtime.GOMAXPROCS(0), reclaim.DefaultHyalineConfig())
//	slot, err := engine.Register()
//	defer engine.Unregister(slot)
//
//	h := engine.BeginOp(slot)
//	defer engine.EndOp(slot, h)
//	// ... read a shared pointer, protected against concurrent retirement ...
//
//	engine.Retire(slot, func() { /* free the unlinked node */ })
//
// # Choosing an engine
//
//   - Hyaline (NewHyaline) reclaims via per-slot reference counts and
//     retirement lists; the last reader to leave a slot sweeps it.
//   - HE-S (NewHyalineS) extends Hyaline with birth-era stamped batches,
//     for containers where a reader must see a consistent generation of a
//     multi-node structural change rather than individual nodes.
//   - IBR (NewIBR) reclaims via a global epoch and per-object
//     retire-epoch stamps, reclaiming once the minimum active epoch
//     across all registered participants passes an object's retire epoch.
//
// See the cmd/bench command for a CLI that drives the container harnesses
// in internal/workload under any of these engines.
package reclaim

import (
	"time"

	"github.com/ayushgupta75/reclaim/internal/hyaline"
	"github.com/ayushgupta75/reclaim/internal/ibr"
	"github.com/ayushgupta75/reclaim/internal/reclaim"
)

// Re-exported contract types. Reclaimer is the interface every engine in
// this module implements. Protector is re-exported for completeness; no
// engine here satisfies it (HyalineSEngine's Protect takes an extra
// birth-era argument, and IBREngine has no Protect).
type (
	Reclaimer  = reclaim.Reclaimer
	Protector  = reclaim.Protector
	Handle     = reclaim.Handle
	MisuseHook = reclaim.MisuseHook
)

// Sentinel errors returned by the engines.
var (
	ErrSlotOutOfRange  = reclaim.ErrSlotOutOfRange
	ErrTeardownTimeout = reclaim.ErrTeardownTimeout
	ErrDoubleRetire    = reclaim.ErrDoubleRetire
)

// DefaultMisuseHook panics with the misuse error. It is the default for
// every engine's Config.OnMisuse.
func DefaultMisuseHook(err error) { reclaim.DefaultMisuseHook(err) }

// Hyaline re-exports.
type (
	// HyalineEngine is the reference-counted retirement-list engine.
	HyalineEngine = hyaline.Engine

	// HyalineConfig tunes a HyalineEngine.
	HyalineConfig = hyaline.Config

	// HyalineSEngine extends HyalineEngine with birth-era stamped batch
	// retirement.
	HyalineSEngine = hyaline.SEngine

	// HyalineBatch is a birth-era stamped group of nodes retired together under
	// HyalineSEngine.
	HyalineBatch = hyaline.Batch
)

// NewHyaline constructs a Hyaline engine with n participant slots.
func NewHyaline(n int, config HyalineConfig) *HyalineEngine {
	return hyaline.New(n, config)
}

// DefaultHyalineConfig returns a HyalineEngine's default configuration:
// simple accounting, panic on misuse, unbounded teardown wait.
func DefaultHyalineConfig() HyalineConfig {
	return hyaline.DefaultConfig()
}

// NewHyalineS constructs an HE-S engine with n participant slots.
func NewHyalineS(n int, config HyalineConfig) *HyalineSEngine {
	return hyaline.NewSEngine(n, config)
}

// IBR re-exports.
type (
	// IBREngine is the interval-based (global epoch) reclamation engine.
	IBREngine = ibr.Engine

	// IBRConfig tunes an IBREngine.
	IBRConfig = ibr.Config

	// IBRGuard is a convenience per-participant handle over an IBREngine.
	IBRGuard = ibr.Guard

	// IBRTicker advances an IBREngine's global epoch on a wall-clock
	// schedule, for containers that don't otherwise call EndOp often
	// enough to keep the epoch moving.
	IBRTicker = ibr.Ticker
)

// NewIBR constructs an interval-based reclamation engine with n
// participant slots.
func NewIBR(n int, config IBRConfig) *IBREngine {
	return ibr.New(n, config)
}

// DefaultIBRConfig returns an IBREngine's default configuration.
func DefaultIBRConfig() IBRConfig {
	return ibr.DefaultConfig()
}

// NewIBRGuard registers a new participant against e and returns a Guard
// wrapping its slot.
func NewIBRGuard(e *IBREngine) (*IBRGuard, error) {
	return ibr.NewGuard(e)
}

// NewIBRTicker constructs a ticker that advances e's global epoch every
// period until Stop is called.
func NewIBRTicker(e *IBREngine, period time.Duration) *IBRTicker {
	return ibr.NewTicker(e, period)
}
