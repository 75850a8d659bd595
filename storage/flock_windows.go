//go:build windows

package storage

import "os"

// fileLock is a no-op on windows; LockFileEx needs its own overlapped-IO
// plumbing that isn't worth it for a single-writer-per-machine dev tool.
type fileLock struct{}

func lockFile(f *os.File) (*fileLock, error) {
	return &fileLock{}, nil
}

func (l *fileLock) unlock() error {
	return nil
}
