// Package bptree implements the concurrent, disk-resident B+Tree index:
// latch-crabbed descent over pages cached by package bufferpool, typed by
// a fixed-width comparable key and a bptreeidx/rid.RID value.
package bptree

// FixedKey is the set of key widths this index supports. Each width gets
// its own typed Tree via the NewTree4..NewTree64 constructors. Bytes gives
// the tree a zero-assumption way to get the key's wire representation
// without relying on generic array slicing, which the language doesn't
// let us do uniformly across array types of different lengths.
type FixedKey interface {
	comparable
	Bytes() []byte
}

// Key4, Key8, Key16, Key32, Key64 are the concrete key types the typed
// constructors are parameterized over. Each is a fixed-width byte array;
// equality and hashing for the comparable constraint come for free from
// Go's array value semantics.
type (
	Key4  [4]byte
	Key8  [8]byte
	Key16 [16]byte
	Key32 [32]byte
	Key64 [64]byte
)

func (k Key4) Bytes() []byte  { b := make([]byte, len(k)); copy(b, k[:]); return b }
func (k Key8) Bytes() []byte  { b := make([]byte, len(k)); copy(b, k[:]); return b }
func (k Key16) Bytes() []byte { b := make([]byte, len(k)); copy(b, k[:]); return b }
func (k Key32) Bytes() []byte { b := make([]byte, len(k)); copy(b, k[:]); return b }
func (k Key64) Bytes() []byte { b := make([]byte, len(k)); copy(b, k[:]); return b }

func keyFromBytes4(b []byte) Key4   { var k Key4; copy(k[:], b); return k }
func keyFromBytes8(b []byte) Key8   { var k Key8; copy(k[:], b); return k }
func keyFromBytes16(b []byte) Key16 { var k Key16; copy(k[:], b); return k }
func keyFromBytes32(b []byte) Key32 { var k Key32; copy(k[:], b); return k }
func keyFromBytes64(b []byte) Key64 { var k Key64; copy(k[:], b); return k }

// Comparator orders two fixed-width keys the way a KeyComparator would in
// the original index: negative if a < b, zero if equal, positive if a > b.
// The default is lexicographic byte order; fixed-width big-endian integer
// keys sort correctly under plain byte order, which is why integer keys
// should be encoded big-endian before being wrapped in a Key4/Key8/...
type Comparator func(a, b []byte) int

// ByteOrderComparator compares two equal-length byte slices lexicographically.
func ByteOrderComparator(a, b []byte) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}
