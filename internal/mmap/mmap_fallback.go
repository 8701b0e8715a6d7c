//go:build !unix && !windows

// Package mmap reserves the arena's backing block outside the Go heap.
package mmap

import (
	"unsafe"

	"github.com/cockroachdb/errors"
)

// Reserve allocates the block on the Go heap when no mapping API is
// available. The returned slice starts on a 16-byte boundary.
func Reserve(size int) ([]byte, func() error, error) {
	if size <= 0 {
		return nil, nil, errors.Newf("mmap: invalid reservation size %d", size)
	}
	raw := make([]byte, size+16)
	skip := int((16 - uintptr(unsafe.Pointer(&raw[0]))%16) % 16)
	return raw[skip : skip+size : skip+size], func() error { return nil }, nil
}
