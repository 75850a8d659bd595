package bufferpool

import (
	"sync"

	"bptreeidx/rid"
	"bptreeidx/storage"
)

// Kind distinguishes the two B+Tree page layouts cached by the pool.
type Kind uint8

const (
	LeafKind Kind = iota
	InternalKind
)

func (k Kind) String() string {
	if k == LeafKind {
		return "leaf"
	}
	return "internal"
}

// Node is the in-memory, decoded form of one B+Tree page: the buffer pool's
// "page handle". Its mu is the per-page latch spec.md §5 crabs across during
// descent — RLatch for Search, WLatch for Insert/Remove.
//
// Keys and values are stored as raw fixed-width byte slices rather than as a
// generic K: this lets one non-generic buffer pool serve Tree[K] for every
// key width, with the generic<->bytes conversion living entirely in package
// bptree at the API boundary.
//
// For an internal node, keys and children are kept the way the original
// BusTub array does: keys[0] is an unused placeholder so that keys[i] is
// always the separator to the *left* of children[i] for i>0, and
// len(children) == len(keys).
type Node struct {
	mu sync.RWMutex

	id       storage.PageID
	parent   storage.PageID
	kind     Kind
	keys     [][]byte
	vals     []rid.RID
	children []storage.PageID
	next     storage.PageID // leaf sibling chain

	maxSize int
	minSize int

	// Not read or written by Pool, which keeps each page's pin count, dirty
	// bit and reference flag on its own frame record instead.
	pinCount int32
	dirty    bool
	refFlag  bool
}

// NewNode allocates a detached Node of the given kind, with minSize set to
// ceil(maxSize/2). Callers must set id (and parent, if any) before handing
// it to the pool.
func NewNode(kind Kind, maxSize int) *Node {
	n := &Node{kind: kind, maxSize: maxSize, minSize: (maxSize + 1) / 2}
	if kind == InternalKind {
		n.keys = make([][]byte, 0, maxSize+1)
		n.children = make([]storage.PageID, 0, maxSize+1)
	} else {
		n.keys = make([][]byte, 0, maxSize+1)
		n.vals = make([]rid.RID, 0, maxSize+1)
	}
	return n
}

func (n *Node) ID() storage.PageID     { return n.id }
func (n *Node) Parent() storage.PageID { return n.parent }
func (n *Node) SetParent(p storage.PageID) {
	n.parent = p
}
func (n *Node) Kind() Kind    { return n.kind }
func (n *Node) IsLeaf() bool  { return n.kind == LeafKind }
func (n *Node) MaxSize() int  { return n.maxSize }
func (n *Node) MinSize() int  { return n.minSize }
func (n *Node) Next() storage.PageID { return n.next }
func (n *Node) SetNext(p storage.PageID) {
	n.next = p
}

// Size is the page's current entry count: for a leaf, the number of (key,
// value) pairs; for an internal page, the number of child pointers (one
// more than the number of real separator keys).
func (n *Node) Size() int {
	if n.kind == LeafKind {
		return len(n.keys)
	}
	return len(n.children)
}

// RLatch/RUnlatch/WLatch/WUnlatch are the page's reader/writer latch,
// named to match the vocabulary spec.md §5 uses.
func (n *Node) RLatch()   { n.mu.RLock() }
func (n *Node) RUnlatch() { n.mu.RUnlock() }
func (n *Node) WLatch()   { n.mu.Lock() }
func (n *Node) WUnlatch() { n.mu.Unlock() }

// Keys/Vals/Children give package bptree raw access to build its typed
// views. Callers must already hold the appropriate latch.
func (n *Node) Keys() [][]byte          { return n.keys }
func (n *Node) Vals() []rid.RID         { return n.vals }
func (n *Node) Children() []storage.PageID { return n.children }

func (n *Node) SetKeys(k [][]byte)             { n.keys = k }
func (n *Node) SetVals(v []rid.RID)            { n.vals = v }
func (n *Node) SetChildren(c []storage.PageID) { n.children = c }
