package storage

import (
	"fmt"
	"os"
	"sync"
)

// FilePager implements Pager over a single on-disk file, one page per fixed
// PageSize-byte slot. HeaderPageID is never handed out by AllocatePage — it
// is reserved for the header page and written directly by package
// headerstore.
//
// Deallocated pages are kept on a free list and reused by later
// AllocatePage calls, so a long-running index doesn't grow the file
// unboundedly across inserts and deletes.
type FilePager struct {
	mu       sync.Mutex
	file     *os.File
	path     string
	nextPage PageID
	free     []PageID
	lock     *fileLock
}

// NewFilePager opens or creates path, taking an advisory exclusive lock so a
// second process can't open the same index file for writing concurrently.
func NewFilePager(path string) (*FilePager, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", path, err)
	}

	lock, err := lockFile(file)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("storage: lock %s: %w", path, err)
	}

	stat, err := file.Stat()
	if err != nil {
		lock.unlock()
		file.Close()
		return nil, fmt.Errorf("storage: stat %s: %w", path, err)
	}

	numPages := PageID(stat.Size() / PageSize)
	next := numPages
	if next < HeaderPageID+1 {
		next = HeaderPageID + 1
	}

	p := &FilePager{
		file:     file,
		path:     path,
		nextPage: next,
		lock:     lock,
	}

	if numPages <= HeaderPageID {
		if err := p.writeAt(HeaderPageID, checksumPage(make([]byte, UsablePageSize))); err != nil {
			lock.unlock()
			file.Close()
			return nil, err
		}
	}

	return p, nil
}

func (p *FilePager) writeAt(id PageID, raw []byte) error {
	offset := int64(id) * PageSize
	_, err := p.file.WriteAt(raw, offset)
	return err
}

// ReadPage reads and checksum-verifies a page, returning its UsablePageSize
// content bytes.
func (p *FilePager) ReadPage(id PageID) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.file == nil {
		return nil, fmt.Errorf("storage: pager closed")
	}

	raw := make([]byte, PageSize)
	offset := int64(id) * PageSize
	n, err := p.file.ReadAt(raw, offset)
	if err != nil && n == 0 {
		return nil, fmt.Errorf("storage: read page %d: %w", id, err)
	}
	return verifyPage(id, raw)
}

// WritePage writes content (UsablePageSize bytes) to page id with a fresh
// checksum trailer.
func (p *FilePager) WritePage(id PageID, content []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.file == nil {
		return fmt.Errorf("storage: pager closed")
	}
	if err := p.writeAt(id, checksumPage(content)); err != nil {
		return fmt.Errorf("storage: write page %d: %w", id, err)
	}
	return nil
}

// AllocatePage returns a fresh (or reclaimed) page id and zeroes its content.
func (p *FilePager) AllocatePage() (PageID, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.file == nil {
		return InvalidPageID, fmt.Errorf("storage: pager closed")
	}

	var id PageID
	if n := len(p.free); n > 0 {
		id = p.free[n-1]
		p.free = p.free[:n-1]
	} else {
		id = p.nextPage
		p.nextPage++
	}

	if err := p.writeAt(id, checksumPage(make([]byte, UsablePageSize))); err != nil {
		return InvalidPageID, fmt.Errorf("storage: allocate page: %w", err)
	}
	return id, nil
}

// DeallocatePage queues id for reuse. The caller (the buffer pool) must have
// already unpinned the page — this never touches pin counts, it just frees
// disk-level space.
func (p *FilePager) DeallocatePage(id PageID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.free = append(p.free, id)
	return nil
}

func (p *FilePager) Sync() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.file == nil {
		return fmt.Errorf("storage: pager closed")
	}
	return p.file.Sync()
}

func (p *FilePager) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.file == nil {
		return nil
	}
	err := p.file.Sync()
	p.lock.unlock()
	if cerr := p.file.Close(); err == nil {
		err = cerr
	}
	p.file = nil
	return err
}
