package bufferpool

import (
	"testing"

	"bptreeidx/rid"
	"bptreeidx/storage"
)

func newTestPool(t *testing.T, capacity int) *Pool {
	t.Helper()
	pool, err := New(storage.NewMemPager(), 8, capacity, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return pool
}

func TestPoolNewPageFetchPage(t *testing.T) {
	pool := newTestPool(t, 5)

	n, err := pool.NewPage(LeafKind, 4)
	if err != nil {
		t.Fatalf("NewPage: %v", err)
	}
	n.SetKeys([][]byte{[]byte("key1____")})
	n.SetVals([]rid.RID{{PageID: 1, SlotNum: 0}})
	if err := pool.UnpinPage(n.ID(), true); err != nil {
		t.Fatalf("UnpinPage: %v", err)
	}

	fetched, err := pool.FetchPage(n.ID())
	if err != nil {
		t.Fatalf("FetchPage: %v", err)
	}
	if fetched.ID() != n.ID() {
		t.Errorf("id mismatch: want %d got %d", n.ID(), fetched.ID())
	}
	if len(fetched.Keys()) != 1 {
		t.Errorf("keys not preserved across unpin/refetch: got %d", len(fetched.Keys()))
	}
	pool.UnpinPage(fetched.ID(), false)
}

func TestPoolEvictsUnpinnedOnly(t *testing.T) {
	pool := newTestPool(t, 2)

	a, _ := pool.NewPage(LeafKind, 4)
	b, _ := pool.NewPage(LeafKind, 4)
	pool.UnpinPage(a.ID(), false)
	pool.UnpinPage(b.ID(), false)

	// Pin a so it can't be evicted, then force a third admission.
	if _, err := pool.FetchPage(a.ID()); err != nil {
		t.Fatalf("FetchPage a: %v", err)
	}

	c, err := pool.NewPage(LeafKind, 4)
	if err != nil {
		t.Fatalf("NewPage c: %v", err)
	}
	defer pool.UnpinPage(c.ID(), false)
	defer pool.UnpinPage(a.ID(), false)

	// a is still pinned once (by the fetch above), so the admission of c
	// must have evicted b instead; a must still be resident and reachable.
	fetched, err := pool.FetchPage(a.ID())
	if err != nil {
		t.Fatalf("pinned page a was evicted: %v", err)
	}
	pool.UnpinPage(fetched.ID(), false)
}

func TestPoolOutOfMemoryWhenAllPinned(t *testing.T) {
	pool := newTestPool(t, 2)

	a, _ := pool.NewPage(LeafKind, 4)
	b, _ := pool.NewPage(LeafKind, 4)
	defer pool.UnpinPage(a.ID(), false)
	defer pool.UnpinPage(b.ID(), false)

	if _, err := pool.NewPage(LeafKind, 4); err == nil {
		t.Errorf("expected ErrOutOfMemory with both frames pinned")
	}
}

func TestPoolUnpinUnknownPageErrors(t *testing.T) {
	pool := newTestPool(t, 2)
	if err := pool.UnpinPage(storage.PageID(999), false); err == nil {
		t.Errorf("expected error unpinning unknown page")
	}
}

func TestPoolDeletePageRequiresZeroPins(t *testing.T) {
	pool := newTestPool(t, 2)
	n, _ := pool.NewPage(LeafKind, 4)

	if err := pool.DeletePage(n.ID()); err == nil {
		t.Errorf("expected error deleting a pinned page")
	}

	pool.UnpinPage(n.ID(), false)
	if err := pool.DeletePage(n.ID()); err != nil {
		t.Errorf("DeletePage after unpin: %v", err)
	}
}

func TestPoolFlushPersistsDirtyPages(t *testing.T) {
	pager := storage.NewMemPager()
	pool, err := New(pager, 8, 5, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	n, _ := pool.NewPage(LeafKind, 4)
	n.SetKeys([][]byte{[]byte("aaaaaaaa")})
	n.SetVals([]rid.RID{{PageID: 7, SlotNum: 3}})
	id := n.ID()
	pool.UnpinPage(id, true)

	if err := pool.FlushPage(id); err != nil {
		t.Fatalf("FlushPage: %v", err)
	}

	raw, err := pager.ReadPage(id)
	if err != nil {
		t.Fatalf("ReadPage: %v", err)
	}
	decoded, err := DecodeNode(raw, 8)
	if err != nil {
		t.Fatalf("DecodeNode: %v", err)
	}
	if len(decoded.Keys()) != 1 || string(decoded.Keys()[0]) != "aaaaaaaa" {
		t.Errorf("flushed page did not round-trip keys: %v", decoded.Keys())
	}
}

func TestPoolStatsTracksHitsAndMisses(t *testing.T) {
	pool := newTestPool(t, 5)

	n, _ := pool.NewPage(LeafKind, 4)
	pool.UnpinPage(n.ID(), false)

	pool.FetchPage(n.ID())
	pool.UnpinPage(n.ID(), false)

	stats := pool.Stats()
	if stats.Hits == 0 {
		t.Errorf("expected at least one recorded hit, got %+v", stats)
	}
}
