// Licensed under the MIT License. See LICENSE file in the project root for details.

package ibr

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestEngineReclaimsOnceMinEpochPasses(t *testing.T) {
	Convey("Given an engine with a frequently-advancing epoch", t, func() {
		cfg := DefaultConfig()
		cfg.EpochIncrementFrequency = 1
		cfg.EmptyFrequency = 1
		e := New(2, cfg)

		readerSlot, err := e.Register()
		So(err, ShouldBeNil)
		workerSlot, err := e.Register()
		So(err, ShouldBeNil)

		var destroyed atomic.Bool

		Convey("An object retired while a reader's epoch still covers it survives that reader's lifetime", func() {
			rh := e.BeginOp(readerSlot)

			wh := e.BeginOp(workerSlot)
			e.Retire(workerSlot, func() { destroyed.Store(true) })
			e.EndOp(workerSlot, wh)

			So(destroyed.Load(), ShouldBeFalse)

			Convey("And is reclaimed once the reader leaves and the epoch advances past it", func() {
				e.EndOp(readerSlot, rh)

				// EndOp on workerSlot already advanced+reclaimed once above;
				// drive a few more cycles so the now-quiescent reader slot's
				// departure is reflected in MinActive and a sweep runs.
				wh2 := e.BeginOp(workerSlot)
				e.EndOp(workerSlot, wh2)

				So(destroyed.Load(), ShouldBeTrue)
			})
		})
	})
}

func TestEngineSlotLifecycleRecyclesIndices(t *testing.T) {
	Convey("Given a one-slot engine", t, func() {
		e := New(1, DefaultConfig())

		Convey("Register, Unregister, Register reuses the freed index", func() {
			s1, err := e.Register()
			So(err, ShouldBeNil)
			e.Unregister(s1)

			s2, err := e.Register()
			So(err, ShouldBeNil)
			So(s2, ShouldEqual, s1)
		})
	})
}

func TestGuardConvenienceWrapper(t *testing.T) {
	Convey("Given an engine and a Guard registered against it", t, func() {
		e := New(4, DefaultConfig())
		g, err := NewGuard(e)
		So(err, ShouldBeNil)
		defer g.Close()

		Convey("BeginOp/EndOp/Retire proxy to the underlying slot", func() {
			var destroyed atomic.Bool
			h := g.BeginOp()
			g.Retire(func() { destroyed.Store(true) })
			g.EndOp(h)
			_ = destroyed.Load() // may or may not have swept yet depending on frequency
		})
	})
}

func TestEngineConcurrentWorkersDoNotLoseRetirements(t *testing.T) {
	Convey("Given an engine driven by many concurrent workers", t, func() {
		cfg := DefaultConfig()
		cfg.EpochIncrementFrequency = 4
		cfg.EmptyFrequency = 2
		cfg.TeardownTimeout = 5 * time.Second
		const slots = 8
		e := New(slots, cfg)

		const n = 500
		var destroyedCount atomic.Int64
		var wg sync.WaitGroup

		for i := 0; i < slots; i++ {
			slot, err := e.Register()
			So(err, ShouldBeNil)
			wg.Add(1)
			go func(slot int) {
				defer wg.Done()
				for j := 0; j < n/slots; j++ {
					h := e.BeginOp(slot)
					e.Retire(slot, func() { destroyedCount.Add(1) })
					e.EndOp(slot, h)
				}
			}(slot)
		}
		wg.Wait()

		Convey("Close drains every remaining retirement exactly once", func() {
			err := e.Close()
			So(err, ShouldBeNil)
			So(destroyedCount.Load(), ShouldEqual, int64((n/slots)*slots))
		})
	})
}

func TestEngineDoubleRetireIsDetected(t *testing.T) {
	Convey("Given an engine with a recording misuse hook", t, func() {
		var misused atomic.Bool
		cfg := DefaultConfig()
		cfg.OnMisuse = func(err error) { misused.Store(true) }
		e := New(1, cfg)

		Convey("Destroying the same record twice triggers the misuse hook instead of double-destroying", func() {
			r := newRecord(func() {}, 0)
			e.destroyChain(r) // first pass marks r retired and destroys it

			// Simulate a second pass encountering the same record.
			e.destroyChain(r)
			So(misused.Load(), ShouldBeTrue)
		})
	})
}

func TestTickerAdvancesEpochInBackground(t *testing.T) {
	Convey("Given a ticker attached to an engine", t, func() {
		e := New(1, DefaultConfig())
		before := e.CurrentEpoch()

		ticker := NewTicker(e, 5*time.Millisecond)
		ticker.Start()
		defer ticker.Stop()

		time.Sleep(50 * time.Millisecond)

		Convey("The global epoch has advanced without any EndOp calls", func() {
			So(e.CurrentEpoch(), ShouldBeGreaterThan, before)
		})
	})
}
