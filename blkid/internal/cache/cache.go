// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package cache implements the buffered device reader used by the probes.
package cache

import (
	"errors"
	"fmt"
	"io"

	"github.com/siderolabs/go-blkid/internal/ioutil"
)

const (
	// MaxRequest is the largest single request served by the cache.
	MaxRequest = 1024 * 1024

	// Alignment of the reads issued to the device.
	Alignment = 4096
)

// Cache errors.
var (
	ErrShortRead       = errors.New("read beyond the end of the device")
	ErrRequestTooLarge = errors.New("read request is too large")
)

type buffer struct {
	data []byte
	off  uint64
}

// Cache serves byte ranges of a device from aligned reads.
//
// Slices returned by Buffer share the cached memory and must not be modified.
// Cache is not safe for concurrent use.
type Cache struct {
	r       io.ReaderAt
	buffers []buffer
	size    uint64
	reads   int
}

// New returns a cache over r, which is size bytes long.
func New(r io.ReaderAt, size uint64) *Cache {
	return &Cache{
		r:    r,
		size: size,
	}
}

// Size returns the size of the device.
func (c *Cache) Size() uint64 {
	return c.size
}

// Reads returns the number of reads issued to the device.
func (c *Cache) Reads() int {
	return c.reads
}

// Buffer returns length bytes at offset off.
func (c *Cache) Buffer(off, length uint64) ([]byte, error) {
	if length > MaxRequest {
		return nil, fmt.Errorf("%w: %d bytes at offset %d", ErrRequestTooLarge, length, off)
	}

	if off > c.size || length > c.size-off {
		return nil, fmt.Errorf("%w: %d bytes at offset %d, device size %d", ErrShortRead, length, off, c.size)
	}

	if length == 0 {
		return []byte{}, nil
	}

	for _, b := range c.buffers {
		if off >= b.off && off+length <= b.off+uint64(len(b.data)) {
			return slice(b, off, length), nil
		}
	}

	start := off &^ (Alignment - 1)
	end := min((off+length+Alignment-1)&^(Alignment-1), c.size)

	b := buffer{
		data: make([]byte, end-start),
		off:  start,
	}

	if err := ioutil.ReadFullAt(c.r, b.data, int64(start)); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: %d bytes at offset %d", ErrShortRead, length, off)
		}

		return nil, fmt.Errorf("failed to read %d bytes at offset %d: %w", len(b.data), start, err)
	}

	c.reads++
	c.buffers = append(c.buffers, b)

	return slice(b, off, length), nil
}

func slice(b buffer, off, length uint64) []byte {
	from := off - b.off

	return b.data[from : from+length : from+length]
}
