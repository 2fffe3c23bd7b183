// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package utils_test

import (
	"hash/crc32"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/text/encoding/unicode"

	"github.com/siderolabs/go-blkid/blkid/internal/utils"
)

var checkInput = []byte("123456789")

func TestCRC32c(t *testing.T) {
	buf := []byte("hello, world")
	assert.Equal(t, uint32(0x96665be0), utils.CRC32c(buf))

	assert.Equal(t, uint32(0xe3069283), ^utils.CRC32cSeed(^uint32(0), checkInput))
}

func TestCRC32(t *testing.T) {
	assert.Equal(t, uint32(0xcbf43926), ^utils.CRC32(^uint32(0), checkInput))
	assert.Equal(t, crc32.ChecksumIEEE(checkInput), ^utils.CRC32(^uint32(0), checkInput))

	// chaining
	assert.Equal(t,
		utils.CRC32(0x1234, checkInput),
		utils.CRC32(utils.CRC32(0x1234, checkInput[:4]), checkInput[4:]),
	)
}

func TestCRC32Exclude(t *testing.T) {
	buf := []byte("0123456789abcdef")
	zeroed := append([]byte(nil), buf...)
	copy(zeroed[4:8], []byte{0, 0, 0, 0})

	assert.Equal(t,
		utils.CRC32(^uint32(0), zeroed),
		utils.CRC32Exclude(utils.CRC32, ^uint32(0), buf, 4, 4),
	)

	assert.Equal(t,
		utils.CRC32cSeed(^uint32(0), zeroed),
		utils.CRC32Exclude(utils.CRC32cSeed, ^uint32(0), buf, 4, 4),
	)
}

func TestCRC64(t *testing.T) {
	// CRC-64/ECMA-182
	assert.Equal(t, uint64(0x6c40df5f0b497347), utils.CRC64(0, checkInput))
	// CRC-64/WE
	assert.Equal(t, uint64(0x62ec59e3f1a4f00a), ^utils.CRC64(^uint64(0), checkInput))
}

func TestLVMCRC(t *testing.T) {
	// the nibble table is the IEEE polynomial split in two steps
	for _, seed := range []uint32{0, utils.LVMCRCSeed, 0xffffffff} {
		assert.Equal(t, utils.CRC32(seed, checkInput), utils.LVMCRC(seed, checkInput))
	}
}

func TestSum16(t *testing.T) {
	assert.Equal(t, uint16(0x0403), utils.Sum16(0, []byte{0x01, 0x02, 0x02, 0x02, 0xff}))
	assert.Equal(t, uint16(0), utils.Sum16(1, []byte{0xff, 0xff}))
}

func TestIsPowerOf2(t *testing.T) {
	assert.True(t, utils.IsPowerOf2(uint32(2)))
	assert.True(t, utils.IsPowerOf2(uint32(1<<16)))
	assert.False(t, utils.IsPowerOf2(uint32(0)))
	assert.False(t, utils.IsPowerOf2(uint32(3)))
}

func TestHasBytesAt(t *testing.T) {
	buf := []byte("hello, world")

	assert.True(t, utils.HasBytesAt(buf, 7, []byte("world")))
	assert.False(t, utils.HasBytesAt(buf, 8, []byte("world")))
	assert.False(t, utils.HasBytesAt(buf, -1, []byte("h")))
	assert.False(t, utils.HasBytesAt(buf[:3], 0, []byte("hello")))
}

func TestFormatUUID(t *testing.T) {
	raw := []byte{0x01, 0x23, 0xab, 0xcd, 0x45, 0x67, 0x89, 0xef, 0x01, 0x23, 0x45, 0x67, 0x89, 0xab, 0xcd, 0xef}

	assert.Equal(t, "0123abcd-4567-89ef-0123-456789abcdef", utils.FormatUUID(raw))
	assert.Equal(t, "", utils.FormatUUID(raw[:8]))
	assert.Equal(t, "00000000deadbeef", utils.FormatSerial64(0xdeadbeef))
}

func TestLabels(t *testing.T) {
	for _, test := range []struct {
		name     string
		in       []byte
		expected string
	}{
		{
			name:     "plain",
			in:       []byte("label\x00garbage"),
			expected: "label",
		},
		{
			name:     "trailing spaces",
			in:       []byte("NO NAME    "),
			expected: "NO NAME",
		},
		{
			name:     "all spaces",
			in:       []byte("           "),
			expected: "",
		},
		{
			name:     "latin1",
			in:       []byte{'c', 'a', 'f', 0xe9},
			expected: "café",
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.expected, utils.DecodeLabel(test.in))
		})
	}
}

func TestDecodeUTF16(t *testing.T) {
	le := []byte{'r', 0, 'o', 0, 'o', 0, 't', 0, ' ', 0, 0, 0, 'x', 0}
	assert.Equal(t, "root", utils.DecodeUTF16(le, unicode.LittleEndian))

	be := []byte{0, 'C', 0, 'D', 0}
	assert.Equal(t, "CD", utils.DecodeUTF16(be, unicode.BigEndian))

	assert.Equal(t, "", utils.DecodeUTF16(nil, unicode.LittleEndian))
}
