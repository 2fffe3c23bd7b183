// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package utils

import (
	"hash/crc32"
	"sync"
)

var castagnoliTable = sync.OnceValue(func() *crc32.Table {
	return crc32.MakeTable(crc32.Castagnoli)
})

// CRC32 returns the reflected IEEE CRC-32 of buf starting from seed.
//
// Neither the seed nor the result are inverted, which matches the Linux crc32_le function,
// so CRC32(CRC32(s, a), b) == CRC32(s, a+b).
func CRC32(seed uint32, buf []byte) uint32 {
	return ^crc32.Update(^seed, crc32.IEEETable, buf)
}

// CRC32c returns values compatible with Linux crc32c function.
func CRC32c(buf []byte) uint32 {
	return CRC32cSeed(^uint32(0), buf)
}

// CRC32cSeed returns the Castagnoli CRC-32 of buf starting from seed, without final inversion.
func CRC32cSeed(seed uint32, buf []byte) uint32 {
	return ^crc32.Update(^seed, castagnoliTable(), buf)
}

// CRC32Exclude runs crc over buf as if the n bytes at off were zeroed.
func CRC32Exclude(crc func(uint32, []byte) uint32, seed uint32, buf []byte, off, n int) uint32 {
	seed = crc(seed, buf[:off])
	seed = crc(seed, make([]byte, n))

	return crc(seed, buf[off+n:])
}

const crc64ECMA = 0x42f0e1eba9ea3693

var crc64Table = sync.OnceValue(func() *[256]uint64 {
	var table [256]uint64

	for i := range 256 {
		crc := uint64(i) << 56

		for range 8 {
			if crc&(1<<63) != 0 {
				crc = crc<<1 ^ crc64ECMA
			} else {
				crc <<= 1
			}
		}

		table[i] = crc
	}

	return &table
})

// CRC64 returns the MSB-first ECMA-182 CRC-64 of buf starting from seed, without final inversion.
//
// This is the polynomial used by bcache; hash/crc64 only implements the reflected form.
func CRC64(seed uint64, buf []byte) uint64 {
	table := crc64Table()
	crc := seed

	for _, b := range buf {
		crc = table[byte(crc>>56)^b] ^ crc<<8
	}

	return crc
}

// LVM2 label CRC nibble table.
var lvmCRCTable = [16]uint32{
	0x00000000, 0x1db71064, 0x3b6e20c8, 0x26d930ac,
	0x76dc4190, 0x6b6b51f4, 0x4db26158, 0x5005713c,
	0xedb88320, 0xf00f9344, 0xd6d6a3e8, 0xcb61b38c,
	0x9b64c2b0, 0x86d3d2d4, 0xa00ae278, 0xbdbdf21c,
}

// LVMCRCSeed is the initial value of the LVM2 label checksum.
const LVMCRCSeed = 0xf597a6cf

// LVMCRC computes the LVM2 label checksum, two nibble steps per byte.
func LVMCRC(seed uint32, buf []byte) uint32 {
	crc := seed

	for _, b := range buf {
		crc ^= uint32(b)
		crc = (crc >> 4) ^ lvmCRCTable[crc&0xf]
		crc = (crc >> 4) ^ lvmCRCTable[crc&0xf]
	}

	return crc
}

// Sum16 adds up little-endian 16-bit words of buf to seed.
//
// A trailing odd byte is ignored.
func Sum16(seed uint16, buf []byte) uint16 {
	sum := seed

	for i := 0; i+1 < len(buf); i += 2 {
		sum += uint16(buf[i]) | uint16(buf[i+1])<<8
	}

	return sum
}
