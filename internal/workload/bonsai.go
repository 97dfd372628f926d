// Licensed under the MIT License. See LICENSE file in the project root for details.

package workload

import (
	"sync/atomic"

	"github.com/ayushgupta75/reclaim/internal/reclaim"
)

type bonsaiNode struct {
	key         int
	left, right *bonsaiNode
}

// Bonsai is a copy-on-write ordered set grounded on `hyaline_bonsai.cpp`'s
// BonsaiTree, restructured to use persistent path-copying rather than the
// original's unsynchronized in-place mutation of `node->left`/`node->right`
// (that version only has a single writer per thread in mind; mutating a
// shared node's children from multiple threads without a lock or CAS is
// not safe). The path-copying technique follows
// bnclabs-gostore's `llrb_mvcc.go` `UpsertCow` approach: build a new path
// from root to the modified node, publish it with one CAS on the root
// pointer, and retire every node the new path replaced through the
// reclaimer instead of freeing it immediately.
//
// A Bonsai holds no slot of its own: every method takes the caller's
// slot as a parameter, so one set can be shared by every goroutine
// registered against engine.
type Bonsai struct {
	root atomic.Pointer[bonsaiNode]

	engine reclaim.Reclaimer
}

// NewBonsai constructs an empty ordered set.
func NewBonsai(engine reclaim.Reclaimer) *Bonsai {
	return &Bonsai{engine: engine}
}

// Contains reports whether key is present, inside a single BeginOp/EndOp
// span.
func (b *Bonsai) Contains(slot int, key int) bool {
	h := b.engine.BeginOp(slot)
	defer b.engine.EndOp(slot, h)

	for n := b.root.Load(); n != nil; {
		switch {
		case key < n.key:
			n = n.left
		case key > n.key:
			n = n.right
		default:
			return true
		}
	}
	return false
}

// Insert adds key if absent, retrying the root CAS on contention.
func (b *Bonsai) Insert(slot int, key int) bool {
	for {
		if b.Contains(slot, key) {
			return false
		}

		oldRoot := b.root.Load()
		var replaced []*bonsaiNode
		newRoot := copyInsert(oldRoot, key, &replaced)

		if b.root.CompareAndSwap(oldRoot, newRoot) {
			b.retireAll(slot, replaced)
			return true
		}
		// Lost the race to a concurrent mutation; recompute from the fresh root.
	}
}

// Remove deletes key if present, retrying the root CAS on contention.
func (b *Bonsai) Remove(slot int, key int) bool {
	for {
		if !b.Contains(slot, key) {
			return false
		}

		oldRoot := b.root.Load()
		var replaced []*bonsaiNode
		newRoot := copyRemove(oldRoot, key, &replaced)

		if b.root.CompareAndSwap(oldRoot, newRoot) {
			b.retireAll(slot, replaced)
			return true
		}
	}
}

func (b *Bonsai) retireAll(slot int, replaced []*bonsaiNode) {
	if len(replaced) == 0 {
		return
	}
	h := b.engine.BeginOp(slot)
	for _, n := range replaced {
		node := n
		b.engine.Retire(slot, func() { _ = node })
	}
	b.engine.EndOp(slot, h)
}

func copyInsert(node *bonsaiNode, key int, replaced *[]*bonsaiNode) *bonsaiNode {
	if node == nil {
		return &bonsaiNode{key: key}
	}
	*replaced = append(*replaced, node)
	if key < node.key {
		return &bonsaiNode{key: node.key, left: copyInsert(node.left, key, replaced), right: node.right}
	}
	return &bonsaiNode{key: node.key, left: node.left, right: copyInsert(node.right, key, replaced)}
}

func copyRemove(node *bonsaiNode, key int, replaced *[]*bonsaiNode) *bonsaiNode {
	*replaced = append(*replaced, node)
	switch {
	case key < node.key:
		return &bonsaiNode{key: node.key, left: copyRemove(node.left, key, replaced), right: node.right}
	case key > node.key:
		return &bonsaiNode{key: node.key, left: node.left, right: copyRemove(node.right, key, replaced)}
	default:
		if node.left == nil {
			return node.right
		}
		if node.right == nil {
			return node.left
		}
		succ := minNode(node.right)
		newRight := copyRemove(node.right, succ.key, replaced)
		return &bonsaiNode{key: succ.key, left: node.left, right: newRight}
	}
}

func minNode(n *bonsaiNode) *bonsaiNode {
	for n.left != nil {
		n = n.left
	}
	return n
}
