// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package utils provides utility functions.
package utils

import "bytes"

// IsPowerOf2 returns true if num is a power of 2.
func IsPowerOf2[T uint8 | uint16 | uint32 | uint64 | uint](num T) bool {
	return (num != 0 && ((num & (num - 1)) == 0))
}

// HasBytesAt returns true if buf contains want at offset off.
//
// It never reads past the end of buf.
func HasBytesAt(buf []byte, off int, want []byte) bool {
	if off < 0 || len(want) > len(buf) || off > len(buf)-len(want) {
		return false
	}

	return bytes.Equal(buf[off:off+len(want)], want)
}

// IsZero returns true if all bytes in buf are zero.
func IsZero(buf []byte) bool {
	for _, b := range buf {
		if b != 0 {
			return false
		}
	}

	return true
}

// CString returns the bytes of buf up to the first NUL.
func CString(buf []byte) []byte {
	if idx := bytes.IndexByte(buf, 0); idx != -1 {
		return buf[:idx]
	}

	return buf
}
