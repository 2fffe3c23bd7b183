// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package jfs_test

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/siderolabs/go-blkid/blkid/internal/filesystems/jfs"
	"github.com/siderolabs/go-blkid/blkid/internal/probetest"
)

const sbOffset = 32 * 1024

func image(version uint32, label, fpack string) []byte {
	img := make([]byte, 64*1024)
	sb := img[sbOffset:]

	copy(sb, "JFS1")
	binary.LittleEndian.PutUint32(sb[4:], version)
	binary.LittleEndian.PutUint64(sb[8:], 128)
	binary.LittleEndian.PutUint32(sb[16:], 4096)
	binary.LittleEndian.PutUint16(sb[20:], 12)
	binary.LittleEndian.PutUint32(sb[24:], 512)
	binary.LittleEndian.PutUint16(sb[28:], 9)
	copy(sb[101:], fpack)
	copy(sb[136:], []byte{0x7c, 0x1d, 0x2e, 0x40, 0x95, 0x3b, 0x4f, 0x11, 0x8a, 0x6e, 0x0d, 0x51, 0xc2, 0x33, 0x9e, 0x04})
	copy(sb[152:], label)

	return img
}

func TestJFS(t *testing.T) {
	for _, test := range []struct {
		name    string
		version uint32
		label   string
		fpack   string

		expectedLabel string
		expectedUUID  string
	}{
		{
			name:          "v2",
			version:       2,
			label:         "scratch",
			expectedLabel: "scratch",
			expectedUUID:  "7c1d2e40-953b-4f11-8a6e-0d51c2339e04",
		},
		{
			name:          "v1 in sync",
			version:       1,
			label:         "archive",
			fpack:         "archive",
			expectedLabel: "archive",
			expectedUUID:  "7c1d2e40-953b-4f11-8a6e-0d51c2339e04",
		},
		{
			name:          "v1 pack name only",
			version:       1,
			fpack:         "OS2VOL",
			expectedLabel: "OS2VOL",
		},
		{
			name:          "v2 pack name fallback",
			version:       2,
			fpack:         "backup",
			expectedLabel: "backup",
			expectedUUID:  "7c1d2e40-953b-4f11-8a6e-0d51c2339e04",
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			res := probetest.Run(t, image(test.version, test.label, test.fpack), &jfs.Probe{})

			assert.Equal(t, "jfs", res.Name)
			assert.Equal(t, "4096", res.Values["BLOCK_SIZE"])
			assert.Equal(t, "4096", res.Values["FS_BLOCK_SIZE"])
			assert.Equal(t, "65536", res.Values["FS_SIZE"])
			assert.Equal(t, test.expectedLabel, res.Values["LABEL"])

			if test.expectedUUID == "" {
				assert.NotContains(t, res.Values, "UUID")
			} else {
				assert.Equal(t, test.expectedUUID, res.Values["UUID"])
			}
		})
	}
}

func TestJFSBlockSizeMismatch(t *testing.T) {
	img := image(2, "data", "")
	binary.LittleEndian.PutUint16(img[sbOffset+20:], 11)

	assert.Empty(t, probetest.Run(t, img, &jfs.Probe{}).Name)
}
