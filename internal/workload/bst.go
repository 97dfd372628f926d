// Licensed under the MIT License. See LICENSE file in the project root for details.

package workload

import (
	"sync/atomic"

	"github.com/ayushgupta75/reclaim/internal/reclaim"
)

type bstNode struct {
	key   int
	left  atomic.Pointer[bstNode]
	right atomic.Pointer[bstNode]
}

// BST is a lock-free, CAS-linked binary search tree grounded on
// `ibrNatarajan.cpp`'s NatarajanTree: Insert and Remove retry on CAS
// failure rather than locking, and Remove retires the unlinked node
// through a reclaim.Reclaimer instead of `delete`-ing it directly, so a
// concurrent Find holding a stale pointer is not racing a live
// dereference against the destructor.
//
// This port simplifies two-children removal to a straight key-copy from
// the in-order successor (as the original does); it does not implement
// the original's leaf-sentinel/mark-bit scheme for linearizable
// concurrent removal, which is out of scope for a reclamation stress
// harness.
//
// A BST holds no slot of its own: every method takes the caller's slot
// as a parameter, so one tree can be shared by every goroutine
// registered against engine.
type BST struct {
	root *bstNode

	engine reclaim.Reclaimer
}

// NewBST constructs an empty tree with a sentinel root.
func NewBST(engine reclaim.Reclaimer) *BST {
	return &BST{
		root:   &bstNode{key: int(^uint(0) >> 1)}, // max int sentinel
		engine: engine,
	}
}

// Insert adds key to the tree if absent, retrying on CAS contention.
func (t *BST) Insert(slot int, key int) bool {
	for {
		h := t.engine.BeginOp(slot)

		var parent *bstNode
		current := t.root
		for current != nil {
			parent = current
			switch {
			case key < current.key:
				current = current.left.Load()
			case key > current.key:
				current = current.right.Load()
			default:
				t.engine.EndOp(slot, h)
				return false // already present
			}
		}

		n := &bstNode{key: key}
		var ok bool
		if key < parent.key {
			ok = parent.left.CompareAndSwap(nil, n)
		} else {
			ok = parent.right.CompareAndSwap(nil, n)
		}
		t.engine.EndOp(slot, h)
		if ok {
			return true
		}
		// Lost the race to a concurrent insert under the same parent slot; retry.
	}
}

// Remove deletes key from the tree if present, retrying on CAS
// contention, and retires the unlinked node.
func (t *BST) Remove(slot int, key int) bool {
	for {
		h := t.engine.BeginOp(slot)

		var parent *bstNode
		current := t.root
		for current != nil && current.key != key {
			parent = current
			if key < current.key {
				current = current.left.Load()
			} else {
				current = current.right.Load()
			}
		}
		if current == nil {
			t.engine.EndOp(slot, h)
			return false
		}

		target := current
		if left, right := target.left.Load(), target.right.Load(); left != nil && right != nil {
			succParent := target
			succ := right
			for succ.left.Load() != nil {
				succParent = succ
				succ = succ.left.Load()
			}
			target.key = succ.key
			parent = succParent
			target = succ
		}

		child := target.left.Load()
		if child == nil {
			child = target.right.Load()
		}

		var ok bool
		if parent.left.Load() == target {
			ok = parent.left.CompareAndSwap(target, child)
		} else {
			ok = parent.right.CompareAndSwap(target, child)
		}

		if ok {
			removed := target
			t.engine.Retire(slot, func() { _ = removed })
			t.engine.EndOp(slot, h)
			return true
		}
		t.engine.EndOp(slot, h)
		// Lost the race to a concurrent structural change; retry.
	}
}

// Find reports whether key is present, inside a single BeginOp/EndOp
// span — the lock-free read path the reclaimer must protect.
func (t *BST) Find(slot int, key int) bool {
	h := t.engine.BeginOp(slot)
	defer t.engine.EndOp(slot, h)

	current := t.root
	for current != nil {
		switch {
		case key < current.key:
			current = current.left.Load()
		case key > current.key:
			current = current.right.Load()
		default:
			return true
		}
	}
	return false
}
