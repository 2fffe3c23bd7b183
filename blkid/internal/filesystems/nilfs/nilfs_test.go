// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package nilfs_test

import (
	"encoding/binary"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/siderolabs/go-blkid/blkid/internal/filesystems/nilfs"
	"github.com/siderolabs/go-blkid/blkid/internal/probetest"
)

const imageSize = 4 * 1024 * 1024

func writeSuperblock(img []byte, off uint64, cno uint64, label string) {
	sb := img[off : off+nilfs.SuperblockSize]

	binary.LittleEndian.PutUint32(sb, 2)
	binary.LittleEndian.PutUint16(sb[6:], 0x3434)
	binary.LittleEndian.PutUint16(sb[8:], 256)
	binary.LittleEndian.PutUint32(sb[12:], 0x6b7c8d9e)
	binary.LittleEndian.PutUint32(sb[20:], 2)
	binary.LittleEndian.PutUint64(sb[32:], imageSize)
	binary.LittleEndian.PutUint64(sb[56:], cno)
	copy(sb[152:], []byte{0x91, 0x2a, 0x3b, 0x4c, 0x5d, 0x6e, 0x4f, 0x80, 0x81, 0x92, 0xa3, 0xb4, 0xc5, 0xd6, 0xe7, 0xf8})
	copy(sb[168:], label)

	binary.LittleEndian.PutUint32(sb[16:], nilfs.Checksum(sb))
}

func TestProbe(t *testing.T) {
	backupOff := nilfs.BackupOffset(imageSize)

	for _, test := range []struct { //nolint:govet
		name   string
		image  func() []byte
		label  string
		offset uint64
	}{
		{
			name: "primary",
			image: func() []byte {
				img := make([]byte, imageSize)
				writeSuperblock(img, nilfs.SuperblockOffset, 10, "primary")
				writeSuperblock(img, backupOff, 5, "backup")

				return img
			},
			label:  "primary",
			offset: nilfs.SuperblockOffset + 6,
		},
		{
			name: "newer backup",
			image: func() []byte {
				img := make([]byte, imageSize)
				writeSuperblock(img, nilfs.SuperblockOffset, 10, "primary")
				writeSuperblock(img, backupOff, 11, "backup")

				return img
			},
			label:  "backup",
			offset: backupOff + 6,
		},
		{
			name: "same checkpoint",
			image: func() []byte {
				img := make([]byte, imageSize)
				writeSuperblock(img, nilfs.SuperblockOffset, 7, "primary")
				writeSuperblock(img, backupOff, 7, "backup")

				return img
			},
			label:  "primary",
			offset: nilfs.SuperblockOffset + 6,
		},
		{
			name: "corrupted primary",
			image: func() []byte {
				img := make([]byte, imageSize)
				writeSuperblock(img, nilfs.SuperblockOffset, 10, "primary")
				writeSuperblock(img, backupOff, 1, "backup")
				img[nilfs.SuperblockOffset+100]++

				return img
			},
			label:  "backup",
			offset: backupOff + 6,
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			res := probetest.Run(t, test.image(), &nilfs.Probe{})

			assert.Equal(t, "nilfs2", res.Name)
			assert.Equal(t, test.label, res.Values["LABEL"])
			assert.Equal(t, "912a3b4c-5d6e-4f80-8192-a3b4c5d6e7f8", res.Values["UUID"])
			assert.Equal(t, "2", res.Values["VERSION"])
			assert.Equal(t, "4096", res.Values["BLOCK_SIZE"])
			assert.Equal(t, strconv.FormatUint(test.offset, 10), res.Values["SBMAGIC_OFFSET"])
		})
	}
}

func TestProbeRejects(t *testing.T) {
	img := make([]byte, imageSize)
	writeSuperblock(img, nilfs.SuperblockOffset, 10, "primary")
	img[nilfs.SuperblockOffset+100]++

	assert.Empty(t, probetest.Run(t, img, &nilfs.Probe{}).Name)

	assert.Empty(t, probetest.Run(t, make([]byte, imageSize), &nilfs.Probe{}).Name)
}
