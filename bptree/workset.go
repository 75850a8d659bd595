package bptree

import (
	"bptreeidx/bufferpool"
	"bptreeidx/storage"
)

// mode controls which "safety" test the navigator uses to decide when an
// ancestor can be released during latch crabbing.
type mode int

const (
	modeSearch mode = iota
	modeInsert
	modeDelete
)

// workSet is the ordered list of pages a single operation is currently
// holding pinned and latched, plus the set of pages that became
// structurally dead during the operation (coalesced away) and must be
// deallocated once every latch on them has actually been released.
//
// Grounded on the original index's Transaction::GetPageSet() /
// GetDeletedPageSet() and spec.md's requirement that release happen in
// acquisition order on every exit path, including error paths.
type workSet struct {
	pool    *bufferpool.Pool
	m       mode
	pages   []*bufferpool.Node
	deleted []storage.PageID
}

func newWorkSet(pool *bufferpool.Pool, m mode) *workSet {
	return &workSet{pool: pool, m: m}
}

func (ws *workSet) push(n *bufferpool.Node) {
	ws.pages = append(ws.pages, n)
}

// top returns the most recently pushed page, or nil if empty.
func (ws *workSet) top() *bufferpool.Node {
	if len(ws.pages) == 0 {
		return nil
	}
	return ws.pages[len(ws.pages)-1]
}

// len reports how many pages are currently held.
func (ws *workSet) len() int { return len(ws.pages) }

// at returns the i-th held page (0 is the root end of the path).
func (ws *workSet) at(i int) *bufferpool.Node { return ws.pages[i] }

// releaseFront unlatches and unpins every page except the last n, in
// acquisition order — the "ancestor became safe, let go of it" step during
// crabbing.
func (ws *workSet) releaseFront(keepLast int, dirty bool) {
	cut := len(ws.pages) - keepLast
	for i := 0; i < cut; i++ {
		ws.unlatchAndUnpin(ws.pages[i], dirty)
	}
	ws.pages = ws.pages[cut:]
}

// releaseAll unlatches and unpins everything still held, in acquisition
// order, then performs any queued page deletions. Safe to call on every
// exit path, including after an error, because it only touches what's
// actually in ws.pages/ws.deleted.
func (ws *workSet) releaseAll(dirty bool) {
	for _, n := range ws.pages {
		ws.unlatchAndUnpin(n, dirty)
	}
	ws.pages = nil

	for _, id := range ws.deleted {
		_ = ws.pool.DeletePage(id)
	}
	ws.deleted = nil
}

func (ws *workSet) unlatchAndUnpin(n *bufferpool.Node, dirty bool) {
	if ws.m == modeSearch {
		n.RUnlatch()
	} else {
		n.WUnlatch()
	}
	_ = ws.pool.UnpinPage(n.ID(), dirty)
}

// detachLast removes and returns the most recently pushed page without
// releasing its latch/pin — used when ownership of that page is handed
// off to something outside the work set, e.g. a freshly opened Iterator.
func (ws *workSet) detachLast() *bufferpool.Node {
	n := ws.top()
	if n != nil {
		ws.pages = ws.pages[:len(ws.pages)-1]
	}
	return n
}

// markDeleted records a page as structurally removed; releaseAll performs
// the actual pool.DeletePage once its latch has been released.
func (ws *workSet) markDeleted(id storage.PageID) {
	ws.deleted = append(ws.deleted, id)
}

// latch acquires this work set's mode-appropriate latch on n.
func (ws *workSet) latch(n *bufferpool.Node) {
	if ws.m == modeSearch {
		n.RLatch()
	} else {
		n.WLatch()
	}
}
