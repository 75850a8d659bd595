package bptree

import "errors"

// ErrOutOfMemory mirrors the original index's bad_alloc: the buffer pool
// had no unpinned frame to admit a new page into.
var ErrOutOfMemory = errors.New("bptree: out of buffer pool memory")

// ErrInvariantViolation marks a state the tree's structural invariants say
// can't happen (e.g. an underflowing non-root node with no siblings),
// which means a bug in the tree itself, not bad input. descend also
// returns it when it finds the tree empty; Get, Insert and Remove check
// for it and treat that case as an empty tree rather than an error.
var ErrInvariantViolation = errors.New("bptree: invariant violation")
