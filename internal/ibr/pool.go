// Licensed under the MIT License. See LICENSE file in the project root for details.

package ibr

import "sync"

// recordPool recycles retirement records across Retire/destroy cycles,
// adapted from internal/storage/mvcc's VersionPool: both avoid allocating
// a fresh heap object on every high-frequency operation by resetting a
// pooled one back to its zero-ish state instead of letting it become
// garbage.
type recordPool struct {
	pool sync.Pool
}

func newRecordPool() *recordPool {
	return &recordPool{
		pool: sync.Pool{
			New: func() interface{} {
				return &record{}
			},
		},
	}
}

// get returns a record ready for a new retirement. status is reset here,
// not in put, so a record already marked retired stays that way for any
// dangling reference still pointing at it until the pool actually hands
// it out again.
func (p *recordPool) get(destroy func(), retireEpoch uint64) *record {
	r := p.pool.Get().(*record)
	r.destroy = destroy
	r.retireEpoch = retireEpoch
	r.status.Store(0)
	return r
}

func (p *recordPool) put(r *record) {
	r.next.Store(nil)
	r.destroy = nil
	r.retireEpoch = 0
	p.pool.Put(r)
}
