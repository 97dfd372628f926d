// Licensed under the MIT License. See LICENSE file in the project root for details.

package hyaline

import "sync"

// recordPool recycles retirement records across Retire/destroy cycles,
// adapted from internal/storage/mvcc's VersionPool: both exist to avoid
// allocating a fresh heap object on every high-frequency operation (there
// a Version per write, here a record per retirement) by resetting a
// pooled one back to its zero-ish state instead.
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

// get returns a record ready to be filled in by Retire, either recycled
// or freshly allocated. status is reset here, not in put, so a record
// already marked retired stays that way for any dangling reference still
// pointing at it until the pool actually hands it out again.
func (p *recordPool) get(destroy func()) *record {
	r := p.pool.Get().(*record)
	r.destroy = destroy
	r.status.Store(0)
	return r
}

// put resets r to its initial state and returns it to the pool. Callers
// must only do this after r.destroy has run and no live handle can still
// reference r.
func (p *recordPool) put(r *record) {
	r.next.Store(nil)
	r.destroy = nil
	r.refCount.Store(0)
	p.pool.Put(r)
}
