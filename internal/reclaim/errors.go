// Licensed under the MIT License. See LICENSE file in the project root for details.

package reclaim

import (
	"errors"
	"fmt"
	"sync/atomic"
)

// ErrSlotOutOfRange is returned (or panicked with, via fmt.Errorf wrapping)
// when a caller passes a slot index outside [0, SlotCount).
var ErrSlotOutOfRange = errors.New("reclaim: slot out of range")

// ErrTeardownTimeout is returned by Close when active critical sections or
// published epochs failed to quiesce within the engine's configured
// teardown timeout. Spinning forever until quiescence is always correct;
// this module additionally offers a bounded wait via Config.TeardownTimeout
// so a host process gets an error back instead of hanging (zero disables
// the bound and restores spin-forever behavior).
var ErrTeardownTimeout = errors.New("reclaim: teardown timed out waiting for active readers")

// CheckSlot panics with a wrapped ErrSlotOutOfRange if slot is not in
// [0, n). Every engine's BeginOp/EndOp/Retire calls this first.
func CheckSlot(slot, n int) {
	if slot < 0 || slot >= n {
		panic(fmt.Errorf("%w: slot=%d slots=%d", ErrSlotOutOfRange, slot, n))
	}
}

// objectStatus is the live/retired flag attached to retirement records,
// checked in every build. Detection is best-effort: a second transition
// away from live aborts via the engine's onMisuse hook rather than
// silently corrupting memory. The flag belongs to the record, not the
// user object, so it catches a record destroyed twice, not two Retire
// calls for the same object.
type objectStatus = atomic.Uint32

const (
	statusLive    uint32 = 0
	statusRetired uint32 = 1
)

// MarkRetired CAS-toggles status from live to retired and reports whether
// this call performed the transition. A false return means the object was
// already retired — a double retire — and the caller should invoke its
// configured misuse hook.
func MarkRetired(status *atomic.Uint32) bool {
	return status.CompareAndSwap(statusLive, statusRetired)
}

// MisuseHook is invoked when the engine detects a programming error it can
// catch cheaply (double retire today). The default, DefaultMisuseHook,
// panics; tests substitute a recording hook so they can assert on misuse
// without crashing the test binary.
type MisuseHook func(err error)

// DefaultMisuseHook panics with err.
func DefaultMisuseHook(err error) { panic(err) }

// ErrDoubleRetire is passed to the misuse hook when MarkRetired observes an
// object that was already retired.
var ErrDoubleRetire = errors.New("reclaim: object retired more than once")
