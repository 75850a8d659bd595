// Command inspect-index dumps the structure of an on-disk index file: the
// header page's name -> root catalog, then each registered tree's pages,
// breadth first.
//
// Grounded on the teacher's InspectIndexFileTo (bplustree/inspect.go),
// adapted from that package's single hardcoded tree layout to this
// module's headerstore catalog of possibly several named trees sharing
// one file, and from its raw node_codec decode to bufferpool.DecodeNode.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"bptreeidx/bufferpool"
	"bptreeidx/headerstore"
	"bptreeidx/storage"
)

func main() {
	keySize := flag.Int("key-size", 8, "fixed key width in bytes")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: inspect-index [-key-size N] <path-to-index-file>\n")
		os.Exit(2)
	}

	if err := inspect(os.Stdout, flag.Arg(0), *keySize); err != nil {
		fmt.Fprintf(os.Stderr, "inspect-index: %v\n", err)
		os.Exit(1)
	}
}

func inspect(w io.Writer, path string, keySize int) error {
	pager, err := storage.NewFilePager(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer pager.Close()

	hs, err := headerstore.Open(pager)
	if err != nil {
		return fmt.Errorf("read header page: %w", err)
	}

	p := func(format string, args ...interface{}) { fmt.Fprintf(w, format, args...) }

	p("Index file: %s\n", path)

	names := hs.Names()
	if len(names) == 0 {
		p("  (no indexes registered)\n")
		return nil
	}

	for _, name := range names {
		rootID, _ := hs.GetRootPageID(name)
		p("\nIndex %q: root page id = %d\n", name, rootID)
		if rootID == storage.InvalidPageID {
			p("  (empty tree)\n")
			continue
		}
		if err := dumpTree(w, pager, rootID, keySize); err != nil {
			p("  error walking tree: %v\n", err)
		}
	}
	return nil
}

func dumpTree(w io.Writer, pager storage.Pager, rootID storage.PageID, keySize int) error {
	p := func(format string, args ...interface{}) { fmt.Fprintf(w, format, args...) }

	queue := []storage.PageID{rootID}
	level := 0
	for len(queue) > 0 {
		p("  Level %d:\n", level)
		var next []storage.PageID
		for _, id := range queue {
			raw, err := pager.ReadPage(id)
			if err != nil {
				p("    [page %d] read error: %v\n", id, err)
				continue
			}
			node, err := bufferpool.DecodeNode(raw, keySize)
			if err != nil {
				p("    [page %d] decode error: %v\n", id, err)
				continue
			}

			if node.IsLeaf() {
				p("    [page %d] LEAF size=%d next=%d\n", id, node.Size(), node.Next())
				for i, k := range node.Keys() {
					p("      %x -> %s\n", k, node.Vals()[i])
				}
			} else {
				keyStrs := make([]string, len(node.Keys()))
				for i, k := range node.Keys() {
					if i == 0 {
						keyStrs[i] = "-"
						continue
					}
					keyStrs[i] = fmt.Sprintf("%x", k)
				}
				p("    [page %d] INTERNAL size=%d keys=%v children=%v\n",
					id, node.Size(), keyStrs, node.Children())
				next = append(next, node.Children()...)
			}
		}
		p("  ---\n")
		queue = next
		level++
	}
	return nil
}
