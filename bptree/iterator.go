package bptree

import (
	"bptreeidx/bufferpool"
	"bptreeidx/rid"
	"bptreeidx/storage"
)

// Iterator walks the leaf chain in ascending key order. It holds a read
// latch and a pin on exactly one leaf at a time — the minimum guarantee
// spec.md §9 settles on for concurrent iteration versus mutation: keys
// visited before or after a concurrent structural change are stable, but
// a key inserted or removed mid-scan may or may not be observed.
//
// Grounded on the original index's IndexIterator, which also carries one
// leaf pin/latch and steps across the sibling pointer on exhaustion.
type Iterator[K FixedKey] struct {
	tree *Tree[K]
	leaf *bufferpool.Node
	idx  int
}

// Valid reports whether the iterator is positioned at an entry.
func (it *Iterator[K]) Valid() bool {
	return it.leaf != nil && it.idx < it.leaf.Size()
}

// Key returns the entry's key. Valid must be true.
func (it *Iterator[K]) Key() K {
	return it.tree.fromBytes(it.leaf.Keys()[it.idx])
}

// Value returns the entry's RID. Valid must be true.
func (it *Iterator[K]) Value() rid.RID {
	return it.leaf.Vals()[it.idx]
}

// Next advances to the next entry, crossing into the sibling leaf if the
// current one is exhausted. Returns false once the scan is over.
func (it *Iterator[K]) Next() bool {
	if it.leaf == nil {
		return false
	}

	it.idx++
	if it.idx < it.leaf.Size() {
		return true
	}

	next := it.leaf.Next()
	it.leaf.RUnlatch()
	it.tree.bp.UnpinPage(it.leaf.ID(), false)
	it.leaf = nil

	if next == storage.InvalidPageID {
		return false
	}

	n, err := it.tree.bp.FetchPage(next)
	if err != nil {
		return false
	}
	n.RLatch()
	it.leaf = n
	it.idx = 0
	return it.leaf.Size() > 0
}

// Close releases the iterator's held leaf, if any. Callers that run an
// iterator to exhaustion (Next returns false) don't need to call this —
// Next already released the last leaf — but any early-abandoned iterator
// must call Close to avoid leaking a pin.
func (it *Iterator[K]) Close() {
	if it.leaf == nil {
		return
	}
	it.leaf.RUnlatch()
	it.tree.bp.UnpinPage(it.leaf.ID(), false)
	it.leaf = nil
}
