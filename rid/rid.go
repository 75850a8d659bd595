// Package rid defines the record identifier used as the index's Value type.
//
// This is one of the "external collaborator" primitives spec.md calls out of
// scope for the tree itself: a fixed-width, opaque handle to a row stored
// elsewhere (a heap file, in the teacher's terms). The tree only ever
// stores, compares for equality, and returns RIDs — it never interprets
// them.
package rid

import "fmt"

// Size is the on-page footprint of a RID in bytes: PageID (8) + SlotNum (4).
const Size = 12

// RID names a row within a page of some other file, mirroring the
// FileID/PageNumber/SlotIndex triple in types/row.go, minus the file id
// (this index is scoped to a single file per tree, so FileID is implicit).
type RID struct {
	PageID  int64
	SlotNum uint32
}

// Invalid is the zero-value RID, used as a not-found sentinel internally.
var Invalid = RID{}

func (r RID) String() string {
	return fmt.Sprintf("(page=%d slot=%d)", r.PageID, r.SlotNum)
}

// Encode writes the RID's fixed-width representation into dst, which must
// be at least Size bytes.
func Encode(r RID, dst []byte) {
	_ = dst[Size-1]
	putUint64(dst[0:8], uint64(r.PageID))
	putUint32(dst[8:12], r.SlotNum)
}

// Decode reads a RID from its fixed-width representation.
func Decode(src []byte) RID {
	_ = src[Size-1]
	return RID{
		PageID:  int64(getUint64(src[0:8])),
		SlotNum: getUint32(src[8:12]),
	}
}

func putUint64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

func getUint64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return v
}

func putUint32(b []byte, v uint32) {
	for i := 0; i < 4; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

func getUint32(b []byte) uint32 {
	var v uint32
	for i := 0; i < 4; i++ {
		v |= uint32(b[i]) << (8 * i)
	}
	return v
}
