// Licensed under the MIT License. See LICENSE file in the project root for details.

package ibr

import "sync/atomic"

// record is the engine-owned retirement record for a single retired
// object, stamped with the global epoch observed at retire time. As in
// internal/hyaline, this exists so the retirement-list link never aliases
// the user object's own memory — the original `ibrNatarajan.cpp`
// repurposes the node's own successor pointer for this, which races with
// a concurrent reader still traversing it.
type record struct {
	next        atomic.Pointer[record]
	destroy     func()
	retireEpoch uint64
	status      atomic.Uint32
}

func newRecord(destroy func(), retireEpoch uint64) *record {
	return &record{destroy: destroy, retireEpoch: retireEpoch}
}
