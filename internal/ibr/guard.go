// Licensed under the MIT License. See LICENSE file in the project root for details.

package ibr

// Guard is a per-participant handle obtained from NewGuard (which calls
// Engine.Register) and released by Close. It exists so epoch-table state is never process-wide
// thread-local storage: a goroutine owns an ordinary *Guard value for as
// long as it participates, and two Engine instances never share
// registration state.
//
// Guard is a thin convenience over the slot-int based reclaim.Reclaimer
// methods Engine already exposes; containers that prefer to thread plain
// slot indices through their own code can use Engine directly instead.
type Guard struct {
	engine *Engine
	slot   int
}

// NewGuard registers a new participant with e.
func NewGuard(e *Engine) (*Guard, error) {
	slot, err := e.Register()
	if err != nil {
		return nil, err
	}
	return &Guard{engine: e, slot: slot}, nil
}

// Slot returns the guard's underlying slot index.
func (g *Guard) Slot() int { return g.slot }

// BeginOp starts a critical section on this guard's slot.
func (g *Guard) BeginOp() uint64 {
	return g.engine.BeginOp(g.slot).(uint64)
}

// EndOp ends a critical section started by BeginOp.
func (g *Guard) EndOp(h uint64) {
	g.engine.EndOp(g.slot, h)
}

// Retire retires an object on this guard's slot.
func (g *Guard) Retire(destroy func()) {
	g.engine.Retire(g.slot, destroy)
}

// Close releases the guard's slot back to the engine. The guard must not
// be inside a BeginOp/EndOp span when Close is called.
func (g *Guard) Close() error {
	g.engine.Unregister(g.slot)
	return nil
}
