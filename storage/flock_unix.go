//go:build !windows

package storage

import (
	"os"

	"golang.org/x/sys/unix"
)

// fileLock wraps an advisory BSD flock on the index file.
type fileLock struct {
	fd int
}

func lockFile(f *os.File) (*fileLock, error) {
	fd := int(f.Fd())
	if err := unix.Flock(fd, unix.LOCK_EX|unix.LOCK_NB); err != nil {
		return nil, err
	}
	return &fileLock{fd: fd}, nil
}

func (l *fileLock) unlock() error {
	if l == nil {
		return nil
	}
	return unix.Flock(l.fd, unix.LOCK_UN)
}
