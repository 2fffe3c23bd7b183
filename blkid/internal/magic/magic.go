// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package magic implements the magic number detection for files and block devices.
package magic

import (
	"encoding/binary"

	"github.com/siderolabs/go-blkid/blkid/internal/utils"
)

// Magic defines a filesystem/volume manager/etc magic value.
type Magic struct {
	// ByteOrder is an optional endianness hint for formats supporting both.
	ByteOrder binary.ByteOrder

	// Value to search for.
	Value []byte

	// KBOffset is the offset in kilobytes, negative values are relative to the end of the device.
	KBOffset int64

	// SBOffset is the byte offset added to the kilobyte offset.
	SBOffset uint64
}

// Base returns the absolute kilobyte-aligned offset of the magic.
func (magic *Magic) Base(size uint64) (uint64, bool) {
	if magic.KBOffset >= 0 {
		return uint64(magic.KBOffset) * 1024, true
	}

	back := uint64(-magic.KBOffset) * 1024
	if back > size {
		return 0, false
	}

	return size - back, true
}

// Offset returns the absolute offset of the magic on a device of the given size.
//
// It returns false if the magic doesn't fit the device.
func (magic *Magic) Offset(size uint64) (uint64, bool) {
	base, ok := magic.Base(size)
	if !ok {
		return 0, false
	}

	off := base + magic.SBOffset

	if off > size || uint64(len(magic.Value)) > size-off {
		return 0, false
	}

	return off, true
}

// Matches returns true if the magic value is found at the beginning of buf.
func (magic *Magic) Matches(buf []byte) bool {
	return utils.HasBytesAt(buf, 0, magic.Value)
}

// Order returns the endianness hint, defaulting to little endian.
func (magic *Magic) Order() binary.ByteOrder {
	if magic.ByteOrder == nil {
		return binary.LittleEndian
	}

	return magic.ByteOrder
}
