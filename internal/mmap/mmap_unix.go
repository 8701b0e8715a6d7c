//go:build unix

// Package mmap reserves the arena's backing block outside the Go heap.
package mmap

import (
	"github.com/cockroachdb/errors"
	"golang.org/x/sys/unix"
)

// Reserve maps size bytes of anonymous, private, zero-filled memory and
// returns it together with a release function. The mapping is page aligned.
func Reserve(size int) ([]byte, func() error, error) {
	if size <= 0 {
		return nil, nil, errors.Newf("mmap: invalid reservation size %d", size)
	}
	data, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "mmap: reserve %d bytes", size)
	}
	released := false
	release := func() error {
		if released {
			return nil
		}
		released = true
		return unix.Munmap(data)
	}
	return data, release, nil
}
