package bptree

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"bptreeidx/bufferpool"
	"bptreeidx/headerstore"
	"bptreeidx/rid"
	"bptreeidx/storage"
)

func key4(v uint32) Key4 {
	var k Key4
	binary.BigEndian.PutUint32(k[:], v)
	return k
}

func newTestTree(t *testing.T, maxSize int) *Tree[Key4] {
	t.Helper()
	pager := storage.NewMemPager()
	pool, err := bufferpool.New(pager, 4, 64, nil)
	if err != nil {
		t.Fatalf("bufferpool.New: %v", err)
	}
	hs, err := headerstore.Open(pager)
	if err != nil {
		t.Fatalf("headerstore.Open: %v", err)
	}
	tree, err := NewTree4("test_idx", pool, hs, WithMaxSize[Key4](maxSize, maxSize))
	if err != nil {
		t.Fatalf("NewTree4: %v", err)
	}
	return tree
}

func mustInsert(t *testing.T, tree *Tree[Key4], v uint32) {
	t.Helper()
	ok, err := tree.Insert(key4(v), rid.RID{PageID: int64(v)})
	if err != nil {
		t.Fatalf("Insert(%d): %v", v, err)
	}
	if !ok {
		t.Fatalf("Insert(%d): expected success", v)
	}
}

func TestInsertAndGet(t *testing.T) {
	tree := newTestTree(t, 4)
	for _, v := range []uint32{5, 1, 9, 3, 7, 2, 8, 4, 6} {
		mustInsert(t, tree, v)
	}

	for _, v := range []uint32{1, 2, 3, 4, 5, 6, 7, 8, 9} {
		got, ok, err := tree.Get(key4(v))
		if err != nil {
			t.Fatalf("Get(%d): %v", v, err)
		}
		if !ok {
			t.Fatalf("Get(%d): not found", v)
		}
		if got.PageID != int64(v) {
			t.Errorf("Get(%d) = %v, want PageID %d", v, got, v)
		}
	}

	if _, ok, _ := tree.Get(key4(100)); ok {
		t.Errorf("Get(100): expected not found")
	}
}

func TestInsertDuplicateRejected(t *testing.T) {
	tree := newTestTree(t, 4)
	mustInsert(t, tree, 1)

	ok, err := tree.Insert(key4(1), rid.RID{PageID: 999})
	if err != nil {
		t.Fatalf("Insert duplicate: %v", err)
	}
	if ok {
		t.Errorf("expected duplicate insert to be rejected")
	}

	got, _, _ := tree.Get(key4(1))
	if got.PageID != 1 {
		t.Errorf("duplicate insert must not overwrite existing value, got %v", got)
	}
}

func TestLeafSplitOnOverflow(t *testing.T) {
	tree := newTestTree(t, 4)
	for _, v := range []uint32{1, 2, 3, 4, 5} {
		mustInsert(t, tree, v)
	}

	if tree.IsEmpty() {
		t.Fatalf("tree should not be empty")
	}

	for _, v := range []uint32{1, 2, 3, 4, 5} {
		if _, ok, _ := tree.Get(key4(v)); !ok {
			t.Errorf("Get(%d) missing after split", v)
		}
	}
}

func TestSecondSplitAfterFirst(t *testing.T) {
	tree := newTestTree(t, 4)
	for _, v := range []uint32{1, 2, 3, 4, 5, 6, 7, 8} {
		mustInsert(t, tree, v)
	}
	for _, v := range []uint32{1, 2, 3, 4, 5, 6, 7, 8} {
		if _, ok, _ := tree.Get(key4(v)); !ok {
			t.Errorf("Get(%d) missing", v)
		}
	}
}

func TestRemoveKeepsRemainingKeys(t *testing.T) {
	tree := newTestTree(t, 4)
	for _, v := range []uint32{1, 2, 3, 4, 5, 6, 7, 8} {
		mustInsert(t, tree, v)
	}

	for _, v := range []uint32{8, 7} {
		if err := tree.Remove(key4(v)); err != nil {
			t.Fatalf("Remove(%d): %v", v, err)
		}
	}

	for _, v := range []uint32{1, 2, 3, 4, 5, 6} {
		if _, ok, _ := tree.Get(key4(v)); !ok {
			t.Errorf("Get(%d) missing after remove", v)
		}
	}
	for _, v := range []uint32{7, 8} {
		if _, ok, _ := tree.Get(key4(v)); ok {
			t.Errorf("Get(%d) should be gone", v)
		}
	}
}

func TestFullInsertRemoveCycleEmptiesTree(t *testing.T) {
	tree := newTestTree(t, 4)
	values := []uint32{10, 20, 30, 40, 50, 60, 70}
	for _, v := range values {
		mustInsert(t, tree, v)
	}
	for _, v := range values {
		if err := tree.Remove(key4(v)); err != nil {
			t.Fatalf("Remove(%d): %v", v, err)
		}
	}

	if !tree.IsEmpty() {
		t.Errorf("tree should be empty after removing every key, got %s", tree.ToString(false))
	}

	// A fresh insert after emptying should start a brand-new tree cleanly.
	mustInsert(t, tree, 1)
	if got, ok, _ := tree.Get(key4(1)); !ok || got.PageID != 1 {
		t.Errorf("insert after emptying failed: %v %v", got, ok)
	}
}

func TestRemoveMissingKeyIsNoop(t *testing.T) {
	tree := newTestTree(t, 4)
	mustInsert(t, tree, 1)
	if err := tree.Remove(key4(999)); err != nil {
		t.Fatalf("Remove(999): %v", err)
	}
	if _, ok, _ := tree.Get(key4(1)); !ok {
		t.Errorf("existing key disturbed by no-op remove")
	}
}

func TestRemoveOnEmptyTreeIsNoop(t *testing.T) {
	tree := newTestTree(t, 4)
	if err := tree.Remove(key4(1)); err != nil {
		t.Fatalf("Remove on empty tree: %v", err)
	}
}

func TestIteratorFullScanIsAscending(t *testing.T) {
	tree := newTestTree(t, 4)
	values := []uint32{5, 1, 9, 3, 7, 2, 8, 4, 6}
	for _, v := range values {
		mustInsert(t, tree, v)
	}

	it, err := tree.Begin()
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}

	var got []uint32
	for it.Valid() {
		got = append(got, binary.BigEndian.Uint32(it.Key().Bytes()))
		if !it.Next() {
			break
		}
	}

	want := append([]uint32(nil), values...)
	sort.Slice(want, func(i, j int) bool { return want[i] < want[j] })

	if len(got) != len(want) {
		t.Fatalf("scan length = %d, want %d (got %v)", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("scan[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestIteratorSeek(t *testing.T) {
	tree := newTestTree(t, 4)
	for _, v := range []uint32{1, 2, 3, 4, 5, 6, 7, 8} {
		mustInsert(t, tree, v)
	}

	it, err := tree.BeginAt(key4(5))
	if err != nil {
		t.Fatalf("BeginAt: %v", err)
	}
	defer it.Close()

	if !it.Valid() {
		t.Fatalf("expected iterator to be valid at key 5")
	}
	if got := binary.BigEndian.Uint32(it.Key().Bytes()); got != 5 {
		t.Errorf("BeginAt(5) landed on %d", got)
	}
}

func TestInsertAndRemoveFromFile(t *testing.T) {
	tree := newTestTree(t, 4)

	dir := t.TempDir()
	path := filepath.Join(dir, "keys.txt")

	values := []int64{30, 10, 40, 20, 50}
	var lines string
	for _, v := range values {
		lines += fmt.Sprintf("%d\n", v)
	}
	require.NoError(t, os.WriteFile(path, []byte(lines), 0644))

	inserted, err := tree.InsertFromFile(path)
	require.NoError(t, err)
	require.Equal(t, len(values), inserted)

	for _, v := range values {
		got, ok, err := tree.Get(key4(uint32(v)))
		require.NoError(t, err)
		require.True(t, ok, "key %d should be present", v)
		require.Equal(t, v, got.PageID)
	}

	// Re-running against the same file should insert nothing new, since
	// every key is already present.
	inserted, err = tree.InsertFromFile(path)
	require.NoError(t, err)
	require.Equal(t, 0, inserted)

	require.NoError(t, tree.RemoveFromFile(path))
	for _, v := range values {
		_, ok, err := tree.Get(key4(uint32(v)))
		require.NoError(t, err)
		require.False(t, ok, "key %d should be gone", v)
	}
	require.True(t, tree.IsEmpty())
}

func TestToStringVerboseReportsNoStalePins(t *testing.T) {
	tree := newTestTree(t, 4)
	for _, v := range []uint32{1, 2, 3, 4, 5, 6} {
		mustInsert(t, tree, v)
	}

	dump := tree.ToString(true)
	require.Contains(t, dump, "ref: 2")
	require.NotContains(t, dump, "ref: 1")
	require.NotContains(t, dump, "ref: 3")
}

func TestConcurrentDisjointInsertsThenScan(t *testing.T) {
	tree := newTestTree(t, 8)

	const perWorker = 50
	const workers = 8

	errCh := make(chan error, workers)
	for w := 0; w < workers; w++ {
		go func(w int) {
			for i := 0; i < perWorker; i++ {
				v := uint32(w*perWorker + i)
				if _, err := tree.Insert(key4(v), rid.RID{PageID: int64(v)}); err != nil {
					errCh <- err
					return
				}
			}
			errCh <- nil
		}(w)
	}

	for w := 0; w < workers; w++ {
		err := <-errCh
		require.NoError(t, err, "concurrent insert")
	}

	it, err := tree.Begin()
	require.NoError(t, err)

	count := 0
	var prev uint32
	first := true
	for it.Valid() {
		v := binary.BigEndian.Uint32(it.Key().Bytes())
		if !first {
			require.Greaterf(t, v, prev, "scan not ascending")
		}
		prev = v
		first = false
		count++
		if !it.Next() {
			break
		}
	}

	require.Equal(t, workers*perWorker, count, "scan should observe every disjoint insert")
}
