// Command bptree-demo exercises a Tree[Key8] end to end against an
// in-memory pager: insert a handful of student primary keys, look a few
// up, remove one, and print the final shape of the tree.
//
// Grounded on the teacher's bplustree.Bplus demo (bplustree/bplus.go),
// adapted from that package's variable-length in-page records to this
// index's fixed-width Key/RID contract — the demo now plays the role of
// the row store itself, handing out a RID per student instead of storing
// the row bytes in the index.
package main

import (
	"fmt"
	"log"
	"strings"

	"bptreeidx/bptree"
	"bptreeidx/bufferpool"
	"bptreeidx/headerstore"
	"bptreeidx/logger"
	"bptreeidx/rid"
	"bptreeidx/storage"
)

// studentKey packs a student id like "S001" into a left-justified,
// zero-padded Key8.
func studentKey(id string) bptree.Key8 {
	var k bptree.Key8
	copy(k[:], id)
	return k
}

func main() {
	pager := storage.NewMemPager()
	pool, err := bufferpool.New(pager, 8, 64, logger.NewLogrus(nil))
	if err != nil {
		log.Fatalf("bufferpool.New: %v", err)
	}
	defer pool.Close()

	hs, err := headerstore.Open(pager)
	if err != nil {
		log.Fatalf("headerstore.Open: %v", err)
	}

	tree, err := bptree.NewTree8("students_pk", pool, hs, bptree.WithMaxSize[bptree.Key8](4, 4))
	if err != nil {
		log.Fatalf("NewTree8: %v", err)
	}

	fmt.Println("=== Student Index Demo ===")

	students := []struct {
		id, name, grade string
	}{
		{"S001", "Alice Johnson", "A"},
		{"S002", "Bob Smith", "B"},
		{"S003", "Charlie Brown", "A"},
		{"S004", "Diana Prince", "C"},
		{"S005", "Eve Wilson", "B"},
	}

	// The index only ever stores a RID — the row itself lives in whatever
	// heap file that RID names. Here we fake that up with a slot number
	// per insert order, since there's no heap file in this demo.
	for i, s := range students {
		r := rid.RID{PageID: 1, SlotNum: uint32(i)}
		ok, err := tree.Insert(studentKey(s.id), r)
		if err != nil {
			log.Fatalf("Insert(%s): %v", s.id, err)
		}
		fmt.Printf("Inserted %s (%s, grade %s) -> %s, ok=%v\n", s.id, s.name, s.grade, r, ok)
	}

	fmt.Println("\n=== Searching ===")
	for _, id := range []string{"S001", "S003", "S999"} {
		got, ok, err := tree.Get(studentKey(id))
		if err != nil {
			log.Fatalf("Get(%s): %v", id, err)
		}
		if ok {
			fmt.Printf("Found %s at %s\n", id, got)
		} else {
			fmt.Printf("%s not found\n", id)
		}
	}

	fmt.Println("\n=== Removing S002 ===")
	if err := tree.Remove(studentKey("S002")); err != nil {
		log.Fatalf("Remove(S002): %v", err)
	}
	if _, ok, _ := tree.Get(studentKey("S002")); ok {
		log.Fatalf("S002 still present after Remove")
	}
	fmt.Println("S002 removed")

	fmt.Println("\n=== Full scan ===")
	it, err := tree.Begin()
	if err != nil {
		log.Fatalf("Begin: %v", err)
	}
	for it.Valid() {
		k := it.Key()
		fmt.Printf("  %s -> %s\n", strings.TrimRight(string(k[:]), "\x00"), it.Value())
		if !it.Next() {
			break
		}
	}

	stats := tree.Stats()
	fmt.Printf("\nCache stats: hits=%d misses=%d evictions=%d ratio=%.2f%%\n",
		stats.Hits, stats.Misses, stats.Evictions, stats.HitRatio*100)
	fmt.Println(tree.ToString(true))
}
