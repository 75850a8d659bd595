package bptree

import (
	"bptreeidx/bufferpool"
	"bptreeidx/rid"
	"bptreeidx/storage"
)

// This file holds the page-layout operations spec.md §4.1 describes:
// lookup, sorted insert/remove, split, merge (coalesce) and redistribute,
// for both leaf and internal pages. They operate directly on a
// *bufferpool.Node's decoded key/value/child slices; callers are
// responsible for holding the node's write latch first.
//
// Grounded on the original index's b_plus_tree_leaf_page.cpp /
// b_plus_tree_internal_page.cpp semantics (reconstructed from
// b_plus_tree.cpp's call sites, since the leaf/internal page source
// itself wasn't part of the retrieved pack) and on the teacher's
// bplustree/insertion.go, bplustree/deletion.go, bplustree/split_internal.go.

// leafLookup returns the value stored for key, if present.
func leafLookup(n *bufferpool.Node, key []byte, cmp Comparator) (rid.RID, bool) {
	keys := n.Keys()
	for i, k := range keys {
		c := cmp(key, k)
		if c == 0 {
			return n.Vals()[i], true
		}
		if c < 0 {
			break
		}
	}
	return rid.Invalid, false
}

// leafKeyIndex returns the index of the first key >= key (the position an
// iterator seeking key should start from).
func leafKeyIndex(n *bufferpool.Node, key []byte, cmp Comparator) int {
	keys := n.Keys()
	for i, k := range keys {
		if cmp(key, k) <= 0 {
			return i
		}
	}
	return len(keys)
}

// leafInsert inserts (key, val) in sorted position. Returns false without
// modifying the page if key is already present (unique keys only).
func leafInsert(n *bufferpool.Node, key []byte, val rid.RID, cmp Comparator) bool {
	keys := n.Keys()
	vals := n.Vals()

	pos := len(keys)
	for i, k := range keys {
		c := cmp(key, k)
		if c == 0 {
			return false
		}
		if c < 0 {
			pos = i
			break
		}
	}

	keys = append(keys, nil)
	copy(keys[pos+1:], keys[pos:])
	keys[pos] = key

	vals = append(vals, rid.RID{})
	copy(vals[pos+1:], vals[pos:])
	vals[pos] = val

	n.SetKeys(keys)
	n.SetVals(vals)
	return true
}

// leafRemove deletes key's entry, if present. Returns whether anything was
// removed.
func leafRemove(n *bufferpool.Node, key []byte, cmp Comparator) bool {
	keys := n.Keys()
	for i, k := range keys {
		if cmp(key, k) == 0 {
			n.SetKeys(append(keys[:i], keys[i+1:]...))
			vals := n.Vals()
			n.SetVals(append(vals[:i], vals[i+1:]...))
			return true
		}
	}
	return false
}

// splitLeaf moves the upper half of old's entries into fresh, which must
// already be an empty leaf node. Returns the key to promote to the
// parent: the smallest key moved into fresh, which also stays in fresh.
// This matches internalLookup, which routes a key equal to a separator to
// the child on its right. (An internal split instead moves its promoted
// separator out of the new page; see splitInternal.)
func splitLeaf(old, fresh *bufferpool.Node) []byte {
	keys := old.Keys()
	vals := old.Vals()
	split := old.MinSize()

	fresh.SetKeys(append([][]byte(nil), keys[split:]...))
	fresh.SetVals(append([]rid.RID(nil), vals[split:]...))
	fresh.SetNext(old.Next())

	old.SetKeys(keys[:split])
	old.SetVals(vals[:split])
	old.SetNext(fresh.ID())

	return fresh.Keys()[0]
}

// splitInternal moves the upper half of old's children (and their
// separator keys) into fresh. Returns the key to promote: fresh's new
// keys[0], which holds the separator that used to sit between old and the
// first child moved to fresh — the internal side of the asymmetry.
func splitInternal(old, fresh *bufferpool.Node, reparent func(child storage.PageID, parent storage.PageID)) []byte {
	keys := old.Keys()
	children := old.Children()
	split := old.MinSize()

	newKeys := append([][]byte(nil), keys[split:]...)
	newChildren := append([]storage.PageID(nil), children[split:]...)
	fresh.SetKeys(newKeys)
	fresh.SetChildren(newChildren)

	old.SetKeys(keys[:split])
	old.SetChildren(children[:split])

	for _, c := range newChildren {
		reparent(c, fresh.ID())
	}

	return fresh.Keys()[0]
}

// internalLookup returns the child page id to descend into for key.
func internalLookup(n *bufferpool.Node, key []byte, cmp Comparator) storage.PageID {
	keys := n.Keys()
	children := n.Children()
	idx := 0
	for i := 1; i < len(keys); i++ {
		if cmp(key, keys[i]) < 0 {
			break
		}
		idx = i
	}
	return children[idx]
}

// internalValueIndex returns the index of child within n's children.
func internalValueIndex(n *bufferpool.Node, child storage.PageID) int {
	for i, c := range n.Children() {
		if c == child {
			return i
		}
	}
	return -1
}

// populateNewRoot initializes a fresh internal page as the tree's new root
// after a root split: [left, key, right].
func populateNewRoot(root *bufferpool.Node, left storage.PageID, key []byte, right storage.PageID) {
	root.SetChildren([]storage.PageID{left, right})
	root.SetKeys([][]byte{nil, key})
}

// internalInsertNodeAfter inserts (key, newChild) immediately after
// oldChild in n's children array, shifting later entries right.
func internalInsertNodeAfter(n *bufferpool.Node, oldChild storage.PageID, key []byte, newChild storage.PageID) {
	idx := internalValueIndex(n, oldChild)
	children := n.Children()
	keys := n.Keys()

	children = append(children, storage.InvalidPageID)
	copy(children[idx+2:], children[idx+1:])
	children[idx+1] = newChild

	keys = append(keys, nil)
	copy(keys[idx+2:], keys[idx+1:])
	keys[idx+1] = key

	n.SetChildren(children)
	n.SetKeys(keys)
}

// internalRemoveAt deletes the child/key pair at index idx.
func internalRemoveAt(n *bufferpool.Node, idx int) {
	n.SetChildren(append(n.Children()[:idx], n.Children()[idx+1:]...))
	n.SetKeys(append(n.Keys()[:idx], n.Keys()[idx+1:]...))
}

// redistributeFromLeftLeaf rotates left's last entry into the front of
// node, updating the parent separator at parentIdx (the index of node's
// child pointer in parent; the separator to its left is parent.Keys()[parentIdx]).
func redistributeFromLeftLeaf(parent *bufferpool.Node, parentIdx int, left, node *bufferpool.Node) {
	lk, lv := left.Keys(), left.Vals()
	last := len(lk) - 1
	movedKey, movedVal := lk[last], lv[last]

	left.SetKeys(lk[:last])
	left.SetVals(lv[:last])

	node.SetKeys(append([][]byte{movedKey}, node.Keys()...))
	node.SetVals(append([]rid.RID{movedVal}, node.Vals()...))

	pk := parent.Keys()
	pk[parentIdx] = movedKey
}

// redistributeFromRightLeaf rotates right's first entry onto the end of
// node, updating the parent separator at parentIdx (index of right's
// child pointer; the separator to its left is parent.Keys()[parentIdx]).
func redistributeFromRightLeaf(parent *bufferpool.Node, parentIdx int, node, right *bufferpool.Node) {
	rk, rv := right.Keys(), right.Vals()
	movedKey, movedVal := rk[0], rv[0]

	right.SetKeys(rk[1:])
	right.SetVals(rv[1:])

	node.SetKeys(append(node.Keys(), movedKey))
	node.SetVals(append(node.Vals(), movedVal))

	pk := parent.Keys()
	pk[parentIdx] = right.Keys()[0]
}

// redistributeFromLeftInternal rotates left's last child into the front
// of node, pulling the old parent separator down and pushing the moved
// child's old separator up to the parent.
func redistributeFromLeftInternal(parent *bufferpool.Node, parentIdx int, left, node *bufferpool.Node, reparent func(storage.PageID, storage.PageID)) {
	lk, lc := left.Keys(), left.Children()
	lastChild := lc[len(lc)-1]
	lastKey := lk[len(lk)-1]

	left.SetChildren(lc[:len(lc)-1])
	left.SetKeys(lk[:len(lk)-1])

	pk := parent.Keys()
	promoted := pk[parentIdx]
	pk[parentIdx] = lastKey

	node.SetChildren(append([]storage.PageID{lastChild}, node.Children()...))
	nk := append([][]byte{nil}, node.Keys()...)
	nk[1] = promoted
	node.SetKeys(nk)

	reparent(lastChild, node.ID())
}

// redistributeFromRightInternal rotates right's first child onto the end
// of node, pulling the old parent separator down and pushing right's
// internal separator up to the parent.
func redistributeFromRightInternal(parent *bufferpool.Node, parentIdx int, node, right *bufferpool.Node, reparent func(storage.PageID, storage.PageID)) {
	rk, rc := right.Keys(), right.Children()
	firstChild := rc[0]

	pk := parent.Keys()
	promoted := pk[parentIdx]

	node.SetChildren(append(node.Children(), firstChild))
	node.SetKeys(append(node.Keys(), promoted))

	pk[parentIdx] = rk[1]

	right.SetChildren(rc[1:])
	newRK := append([][]byte{nil}, rk[2:]...)
	right.SetKeys(newRK)

	reparent(firstChild, node.ID())
}

// mergeLeaf moves all of right's entries onto the end of left and splices
// left's sibling chain around right.
func mergeLeaf(left, right *bufferpool.Node) {
	left.SetKeys(append(left.Keys(), right.Keys()...))
	left.SetVals(append(left.Vals(), right.Vals()...))
	left.SetNext(right.Next())
}

// mergeInternal moves all of right's children onto the end of left,
// pulling the parent separator down to become the key for right's first
// moved child.
func mergeInternal(left, right *bufferpool.Node, parentSeparator []byte, reparent func(storage.PageID, storage.PageID)) {
	left.SetChildren(append(left.Children(), right.Children()...))
	left.SetKeys(append(left.Keys(), append([][]byte{parentSeparator}, right.Keys()[1:]...)...))
	for _, c := range right.Children() {
		reparent(c, left.ID())
	}
}
