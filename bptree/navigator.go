package bptree

import (
	"fmt"

	"bptreeidx/bufferpool"
	"bptreeidx/storage"
)

// rootLocator is satisfied by Tree[K]; kept as an unexported interface so
// the navigator doesn't need to know about the generic key type.
type rootLocator interface {
	rootPageID() storage.PageID
	pool() *bufferpool.Pool
	comparator() Comparator
}

// descend performs latch-crabbed navigation from the root to the leaf that
// key belongs in, per spec.md §5: Search takes read latches and drops
// ancestors as soon as the next level is latched; Insert/Delete take
// write latches and only drop an ancestor once its child is provably
// "safe" against propagating a split (Insert) or an underflow (Delete).
//
// The returned workSet holds every page still pinned/latched on return —
// for Search that's just the leaf; for Insert/Delete it's the leaf plus
// whichever ancestors were never proven safe, oldest first. The caller
// must eventually call ws.releaseAll.
func descend(t rootLocator, m mode, key []byte) (*workSet, error) {
	ws := newWorkSet(t.pool(), m)

	for {
		rootID := t.rootPageID()
		if rootID == storage.InvalidPageID {
			return nil, fmt.Errorf("bptree: %w: descend on empty tree", ErrInvariantViolation)
		}

		root, err := t.pool().FetchPage(rootID)
		if err != nil {
			return nil, err
		}
		ws.latch(root)

		if t.rootPageID() != rootID {
			// Root changed between fetch and latch (a concurrent split or
			// AdjustRoot beat us to it) — let go and retry from scratch.
			ws.unlatchAndUnpin(root, false)
			continue
		}

		ws.push(root)
		break
	}

	for {
		cur := ws.top()
		if cur.IsLeaf() {
			return ws, nil
		}

		childID := internalLookup(cur, key, t.comparator())
		child, err := t.pool().FetchPage(childID)
		if err != nil {
			return nil, err
		}
		ws.latch(child)

		switch m {
		case modeSearch:
			ws.releaseFront(0, false)
		case modeInsert:
			if child.Size() < child.MaxSize() {
				ws.releaseFront(0, false)
			}
		case modeDelete:
			if child.Size() > child.MinSize() {
				ws.releaseFront(0, false)
			}
		}

		ws.push(child)
	}
}
