// Package bufferpool implements the fixed-capacity, pin-counted page cache
// that sits between the B+Tree and the disk. It owns the only copy of the
// per-page latch (Node.mu) and the pin-count discipline spec.md §6 requires:
// every NewPage/FetchPage must be matched by exactly one UnpinPage.
package bufferpool

import (
	"fmt"
	"sync"

	"github.com/dgraph-io/ristretto/v2"

	"bptreeidx/logger"
	"bptreeidx/storage"
)

// Stats reports cache effectiveness for operators, not for eviction
// decisions — see the ristretto note on Pool below.
type Stats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
	HitRatio  float64
}

// frame is the pool's bookkeeping record for one resident page. The Node
// pointer is the object everybody outside this package holds onto; frame
// itself never escapes.
type frame struct {
	node     *Node
	pinCount int32
	dirty    bool
	refFlag  bool
}

// Pool is the buffer pool manager: NewPage/FetchPage/UnpinPage/DeletePage,
// grounded on the teacher's bplustree.BufferPool and
// storage_engine/bufferpool, generalized to a fixed key width and a clock
// (second-chance) replacement policy over unpinned frames only.
//
// A *ristretto.Cache mirrors every Fetch as a Get-then-Set so Stats.HitRatio
// reflects ristretto's own admission-aware LFU estimate of "is this
// workload cache-friendly", purely for operator telemetry. It is never
// consulted for eviction: ristretto evicts asynchronously and isn't aware
// of pin counts, so letting it drive eviction could reclaim a pinned page
// out from under an in-flight latch crab. The deterministic clock sweep
// below is what actually decides what to evict.
type Pool struct {
	mu sync.Mutex

	pager   storage.Pager
	keySize int
	log     logger.Logger

	capacity int
	frames   map[storage.PageID]*frame
	clock    []storage.PageID // clock hand order, indices into frames
	hand     int

	telemetry *ristretto.Cache[storage.PageID, struct{}]
	hits      uint64
	misses    uint64
	evictions uint64
}

// New builds a Pool backed by pager, caching up to capacity pages whose
// keys are keySize bytes wide.
func New(pager storage.Pager, keySize, capacity int, log logger.Logger) (*Pool, error) {
	if capacity < 1 {
		return nil, fmt.Errorf("bufferpool: capacity must be >= 1")
	}
	if log == nil {
		log = logger.Nop{}
	}

	cache, err := ristretto.NewCache(&ristretto.Config[storage.PageID, struct{}]{
		NumCounters: int64(capacity) * 10,
		MaxCost:     int64(capacity),
		BufferItems: 64,
		Metrics:     true,
	})
	if err != nil {
		return nil, fmt.Errorf("bufferpool: ristretto: %w", err)
	}

	return &Pool{
		pager:     pager,
		keySize:   keySize,
		log:       log,
		capacity:  capacity,
		frames:    make(map[storage.PageID]*frame, capacity),
		telemetry: cache,
	}, nil
}

// ErrOutOfMemory is returned when every frame is pinned and a new page
// can't be admitted.
var ErrOutOfMemory = fmt.Errorf("bufferpool: no unpinned frame available")

// NewPage allocates a fresh page on disk, admits it into the pool pinned
// once, and returns its Node. kind/maxSize configure the new, empty node.
func (p *Pool) NewPage(kind Kind, maxSize int) (*Node, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.ensureRoomLocked(); err != nil {
		return nil, err
	}

	id, err := p.pager.AllocatePage()
	if err != nil {
		return nil, fmt.Errorf("bufferpool: allocate: %w", err)
	}

	n := NewNode(kind, maxSize)
	n.id = id
	p.admitLocked(id, n, true)
	p.log.Debugf("bufferpool: new page %d (%s)", id, kind)
	return n, nil
}

// FetchPage returns the Node for id, pinning it — reading through to the
// pager on a miss. Every successful FetchPage must be matched by exactly
// one UnpinPage.
func (p *Pool) FetchPage(id storage.PageID) (*Node, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if f, ok := p.frames[id]; ok {
		f.pinCount++
		f.refFlag = true
		p.hits++
		p.telemetry.Get(id)
		return f.node, nil
	}

	p.misses++
	if err := p.ensureRoomLocked(); err != nil {
		return nil, err
	}

	raw, err := p.pager.ReadPage(id)
	if err != nil {
		return nil, fmt.Errorf("bufferpool: fetch page %d: %w", id, err)
	}
	n, err := DecodeNode(raw, p.keySize)
	if err != nil {
		return nil, fmt.Errorf("bufferpool: decode page %d: %w", id, err)
	}
	n.id = id
	p.admitLocked(id, n, false)
	p.telemetry.Get(id)
	p.telemetry.Set(id, struct{}{}, 1)
	p.log.Debugf("bufferpool: fault page %d (%s)", id, n.kind)
	return n, nil
}

// UnpinPage releases one pin on id. dirty, if true, marks the page as
// needing a write-back before eviction; it is sticky (never cleared except
// by a successful flush).
func (p *Pool) UnpinPage(id storage.PageID, dirty bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	f, ok := p.frames[id]
	if !ok {
		return fmt.Errorf("bufferpool: unpin unknown page %d", id)
	}
	if f.pinCount <= 0 {
		return fmt.Errorf("bufferpool: unpin page %d with pin count %d", id, f.pinCount)
	}
	if dirty {
		f.dirty = true
	}
	f.pinCount--
	return nil
}

// DeletePage evicts and deallocates id. The page must have a pin count of
// zero — the caller is responsible for having unpinned every reference
// first, matching the teacher's BufferPool.DeletePage contract.
func (p *Pool) DeletePage(id storage.PageID) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	f, ok := p.frames[id]
	if ok {
		if f.pinCount != 0 {
			return fmt.Errorf("bufferpool: delete page %d with pin count %d", id, f.pinCount)
		}
		delete(p.frames, id)
		p.removeFromClockLocked(id)
	}
	if err := p.pager.DeallocatePage(id); err != nil {
		return fmt.Errorf("bufferpool: deallocate page %d: %w", id, err)
	}
	return nil
}

// FlushPage writes a page back to disk if dirty, without evicting it.
func (p *Pool) FlushPage(id storage.PageID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	f, ok := p.frames[id]
	if !ok {
		return fmt.Errorf("bufferpool: flush unknown page %d", id)
	}
	return p.flushFrameLocked(id, f)
}

// FlushAll writes back every dirty resident page, used before Close.
func (p *Pool) FlushAll() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, f := range p.frames {
		if err := p.flushFrameLocked(id, f); err != nil {
			return err
		}
	}
	return nil
}

// flushFrameLocked writes f back to disk if dirty. The caller must already
// hold p.mu; it is safe to call from within ensureRoomLocked.
func (p *Pool) flushFrameLocked(id storage.PageID, f *frame) error {
	if !f.dirty {
		return nil
	}
	f.node.RLatch()
	raw := EncodeNode(f.node, p.keySize)
	f.node.RUnlatch()

	if err := p.pager.WritePage(id, raw); err != nil {
		return fmt.Errorf("bufferpool: flush page %d: %w", id, err)
	}
	f.dirty = false
	return nil
}

// PinCount reports the current pin count of a resident page, for debug
// diagnostics such as bptree.Tree.ToString's quiescence check. The second
// return is false if id isn't currently resident.
func (p *Pool) PinCount(id storage.PageID) (int32, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	f, ok := p.frames[id]
	if !ok {
		return 0, false
	}
	return f.pinCount, true
}

// Stats snapshots hit-rate telemetry.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	m := p.telemetry.Metrics
	ratio := 0.0
	if m != nil {
		ratio = m.Ratio()
	}
	return Stats{
		Hits:      p.hits,
		Misses:    p.misses,
		Evictions: p.evictions,
		HitRatio:  ratio,
	}
}

// Close flushes every dirty page and closes the underlying pager.
func (p *Pool) Close() error {
	if err := p.FlushAll(); err != nil {
		return err
	}
	p.telemetry.Close()
	return p.pager.Close()
}

func (p *Pool) admitLocked(id storage.PageID, n *Node, dirty bool) {
	f := &frame{node: n, pinCount: 1, dirty: dirty, refFlag: true}
	p.frames[id] = f
	p.clock = append(p.clock, id)
}

func (p *Pool) removeFromClockLocked(id storage.PageID) {
	for i, cid := range p.clock {
		if cid == id {
			p.clock = append(p.clock[:i], p.clock[i+1:]...)
			if p.hand > i {
				p.hand--
			}
			return
		}
	}
}

// ensureRoomLocked evicts an unpinned frame via clock sweep if the pool is
// at capacity. Must be called with p.mu held.
func (p *Pool) ensureRoomLocked() error {
	if len(p.frames) < p.capacity {
		return nil
	}

	n := len(p.clock)
	for i := 0; i < 2*n; i++ {
		if n == 0 {
			break
		}
		idx := p.hand % n
		id := p.clock[idx]
		f := p.frames[id]
		p.hand = (p.hand + 1) % n

		if f.pinCount > 0 {
			continue
		}
		if f.refFlag {
			f.refFlag = false
			continue
		}

		if err := p.flushFrameLocked(id, f); err != nil {
			return fmt.Errorf("bufferpool: evict page %d: %w", id, err)
		}
		delete(p.frames, id)
		p.clock = append(p.clock[:idx], p.clock[idx+1:]...)
		if p.hand > idx {
			p.hand--
		}
		p.evictions++
		p.log.Debugf("bufferpool: evicted page %d", id)
		return nil
	}

	return ErrOutOfMemory
}
