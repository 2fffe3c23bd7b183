// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package vfat_test

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/siderolabs/go-blkid/blkid/internal/filesystems/vfat"
	"github.com/siderolabs/go-blkid/blkid/internal/probetest"
	"github.com/siderolabs/go-blkid/blkid/internal/volumes/bitlocker"
)

func dirEntry(buf []byte, name string, attr uint8, cluster uint16) {
	copy(buf, name)
	buf[11] = attr
	binary.LittleEndian.PutUint16(buf[26:], cluster)
}

func fat16() []byte {
	img := make([]byte, 4*1024*1024)

	copy(img, "\xeb\x3c\x90mkfs.fat")
	binary.LittleEndian.PutUint16(img[0x0b:], 512)
	img[0x0d] = 1
	binary.LittleEndian.PutUint16(img[0x0e:], 1)
	img[0x10] = 2
	binary.LittleEndian.PutUint16(img[0x11:], 512)
	binary.LittleEndian.PutUint16(img[0x13:], 8192)
	img[0x15] = 0xf8
	binary.LittleEndian.PutUint16(img[0x16:], 32)
	img[0x26] = 0x29
	binary.LittleEndian.PutUint32(img[0x27:], 0x12345678)
	copy(img[0x2b:], "BOOTLABEL  ")
	copy(img[0x36:], "FAT16   ")
	img[0x1fe], img[0x1ff] = 0x55, 0xaa

	root := img[(1+64)*512:]
	dirEntry(root, "README  TXT", 0x20, 3)
	dirEntry(root[32:], "VOLLABEL   ", 0x08, 0)

	return img
}

const fat32Reserved = 32

func fat32() []byte {
	img := make([]byte, 4*1024*1024)

	copy(img, "\xeb\x58\x90mkfs.fat")
	binary.LittleEndian.PutUint16(img[0x0b:], 512)
	img[0x0d] = 1
	binary.LittleEndian.PutUint16(img[0x0e:], fat32Reserved)
	img[0x10] = 2
	img[0x15] = 0xf8
	binary.LittleEndian.PutUint32(img[0x20:], 8192)
	binary.LittleEndian.PutUint32(img[0x24:], 64)
	binary.LittleEndian.PutUint32(img[0x2c:], 2)
	binary.LittleEndian.PutUint16(img[0x30:], 1)
	img[0x42] = 0x29
	binary.LittleEndian.PutUint32(img[0x43:], 0xcafe0123)
	copy(img[0x47:], "NO NAME    ")
	copy(img[0x52:], "FAT32   ")
	img[0x1fe], img[0x1ff] = 0x55, 0xaa

	copy(img[512:], "RRaA")
	copy(img[512+484:], "rrAa")

	// the root directory spans clusters 2 and 3, the label is in the second one
	fat := img[fat32Reserved*512:]
	binary.LittleEndian.PutUint32(fat[2*4:], 3)
	binary.LittleEndian.PutUint32(fat[3*4:], 0x0fffffff)

	dataStart := (fat32Reserved + 2*64) * 512

	for i := range 16 {
		dirEntry(img[dataStart+i*32:], "FILE    BIN", 0x20, uint16(10+i))
	}

	dirEntry(img[dataStart+512:], "\x05LITE      ", 0x08, 0)

	return img
}

func TestFAT16(t *testing.T) {
	res := probetest.Run(t, fat16(), &vfat.Probe{})

	assert.Equal(t, "vfat", res.Name)
	assert.Equal(t, "VOLLABEL", res.Values["LABEL"])
	assert.Equal(t, "BOOTLABEL", res.Values["LABEL_FATBOOT"])
	assert.Equal(t, "1234-5678", res.Values["UUID"])
	assert.Equal(t, "FAT16", res.Values["VERSION"])
	assert.Equal(t, "msdos", res.Values["SEC_TYPE"])
	assert.Equal(t, "512", res.Values["BLOCK_SIZE"])
	assert.Equal(t, "4194304", res.Values["FS_SIZE"])
	assert.Equal(t, "FAT16   ", res.Values["SBMAGIC"])
}

func TestFAT32(t *testing.T) {
	res := probetest.Run(t, fat32(), &vfat.Probe{})

	assert.Equal(t, "vfat", res.Name)
	assert.Equal(t, "åLITE", res.Values["LABEL"])
	assert.NotContains(t, res.Values, "LABEL_FATBOOT")
	assert.NotContains(t, res.Values, "SEC_TYPE")
	assert.Equal(t, "CAFE-0123", res.Values["UUID"])
	assert.Equal(t, "FAT32", res.Values["VERSION"])
	assert.Equal(t, "512", res.Values["FS_BLOCK_SIZE"])
}

func TestProbeRejects(t *testing.T) {
	for _, test := range []struct {
		name  string
		image func() []byte
	}{
		{
			name: "no fats",
			image: func() []byte {
				img := fat16()
				img[0x10] = 0

				return img
			},
		},
		{
			name: "media",
			image: func() []byte {
				img := fat16()
				img[0x15] = 0x12

				return img
			},
		},
		{
			name: "fsinfo signature",
			image: func() []byte {
				img := fat32()
				copy(img[512:], "XXXX")

				return img
			},
		},
		{
			name: "jump only without boot signature",
			image: func() []byte {
				img := fat32()
				copy(img[0x52:], "        ")
				img[0x1fe] = 0

				return img
			},
		},
		{
			name: "bitlocker to go",
			image: func() []byte {
				img := fat32()
				copy(img, "\xeb\x58\x90MSWIN4.1")
				binary.LittleEndian.PutUint64(img[440:], 0x8000)
				copy(img[0x8000:], "-FVE-FS-")

				return img
			},
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			assert.Empty(t, probetest.Run(t, test.image(), &vfat.Probe{}).Name)
		})
	}
}

func TestBitLockerToGo(t *testing.T) {
	img := fat32()
	copy(img, "\xeb\x58\x90MSWIN4.1")
	binary.LittleEndian.PutUint64(img[440:], 0x8000)
	copy(img[0x8000:], "-FVE-FS-")

	res := probetest.Run(t, img, &bitlocker.Probe{}, &vfat.Probe{})

	assert.Equal(t, "BitLocker", res.Name)
}
