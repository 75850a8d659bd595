package bufferpool

import (
	"encoding/binary"
	"fmt"

	"bptreeidx/rid"
	"bptreeidx/storage"
)

// On-page layout, fixed-width so keySize alone determines the record
// stride. Mirrors the header fields the teacher's node_codec.go writes
// (kind/size/max_size/parent), plus a leaf's sibling pointer.
const (
	headerSize = 1 + 4 + 4 + 8 + 8 // kind, size, maxSize, parent, next(leaf)/pad(internal)
)

// EncodeNode serializes n into a fresh UsablePageSize buffer. keySize is the
// tree's fixed key width in bytes.
func EncodeNode(n *Node, keySize int) []byte {
	buf := make([]byte, storage.UsablePageSize)

	buf[0] = byte(n.kind)
	binary.LittleEndian.PutUint32(buf[1:5], uint32(n.Size()))
	binary.LittleEndian.PutUint32(buf[5:9], uint32(n.maxSize))
	binary.LittleEndian.PutUint64(buf[9:17], uint64(n.parent))
	binary.LittleEndian.PutUint64(buf[17:25], uint64(n.next))

	off := headerSize
	if n.kind == LeafKind {
		for i := range n.keys {
			copy(buf[off:off+keySize], n.keys[i])
			off += keySize
			rid.Encode(n.vals[i], buf[off:off+rid.Size])
			off += rid.Size
		}
		return buf
	}

	for i := range n.children {
		if i > 0 {
			copy(buf[off:off+keySize], n.keys[i])
		}
		off += keySize
		binary.LittleEndian.PutUint64(buf[off:off+8], uint64(n.children[i]))
		off += 8
	}
	return buf
}

// DecodeNode reconstructs a Node from a page previously written by
// EncodeNode. The Node's id is not stored on-page; the caller (the buffer
// pool, which knows the PageID it fetched) sets it after decoding.
func DecodeNode(data []byte, keySize int) (*Node, error) {
	if len(data) < headerSize {
		return nil, fmt.Errorf("bufferpool: page too short (%d bytes)", len(data))
	}

	kind := Kind(data[0])
	size := int(binary.LittleEndian.Uint32(data[1:5]))
	maxSize := int(binary.LittleEndian.Uint32(data[5:9]))
	parent := storage.PageID(binary.LittleEndian.Uint64(data[9:17]))
	next := storage.PageID(binary.LittleEndian.Uint64(data[17:25]))

	n := NewNode(kind, maxSize)
	n.parent = parent
	n.next = next

	off := headerSize
	if kind == LeafKind {
		keys := make([][]byte, size)
		vals := make([]rid.RID, size)
		for i := 0; i < size; i++ {
			k := make([]byte, keySize)
			copy(k, data[off:off+keySize])
			keys[i] = k
			off += keySize
			vals[i] = rid.Decode(data[off : off+rid.Size])
			off += rid.Size
		}
		n.keys = keys
		n.vals = vals
		return n, nil
	}

	keys := make([][]byte, size)
	children := make([]storage.PageID, size)
	for i := 0; i < size; i++ {
		k := make([]byte, keySize)
		if i > 0 {
			copy(k, data[off:off+keySize])
		}
		keys[i] = k
		off += keySize
		children[i] = storage.PageID(binary.LittleEndian.Uint64(data[off : off+8]))
		off += 8
	}
	n.keys = keys
	n.children = children
	return n, nil
}
