// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package squashfs_test

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/siderolabs/go-blkid/blkid/internal/filesystems/squashfs"
	"github.com/siderolabs/go-blkid/blkid/internal/probetest"
)

func image(magic string, order binary.ByteOrder, major, minor uint16) []byte {
	img := make([]byte, 64*1024)

	copy(img, magic)
	order.PutUint32(img[12:], 131072)
	order.PutUint16(img[22:], 17)
	order.PutUint16(img[28:], major)
	order.PutUint16(img[30:], minor)
	order.PutUint64(img[40:], 40960)

	return img
}

func TestProbe(t *testing.T) {
	res := probetest.Run(t, image("hsqs", binary.LittleEndian, 4, 0), &squashfs.Probe{}, &squashfs.Probe3{})

	assert.Equal(t, "squashfs", res.Name)
	assert.Equal(t, "4.0", res.Values["VERSION"])
	assert.Equal(t, "131072", res.Values["FS_BLOCK_SIZE"])
	assert.Equal(t, "131072", res.Values["BLOCK_SIZE"])
	assert.Equal(t, "40960", res.Values["FS_SIZE"])

	img := image("hsqs", binary.LittleEndian, 4, 0)
	binary.LittleEndian.PutUint16(img[22:], 16)

	assert.Empty(t, probetest.Run(t, img, &squashfs.Probe{}).Name)
}

func TestProbe3(t *testing.T) {
	for _, test := range []struct {
		name       string
		image      []byte
		version    string
		endianness string
	}{
		{"little endian", image("hsqs", binary.LittleEndian, 3, 1), "3.1", "LITTLE"},
		{"big endian", image("sqsh", binary.BigEndian, 2, 0), "2.0", "BIG"},
	} {
		t.Run(test.name, func(t *testing.T) {
			res := probetest.Run(t, test.image, &squashfs.Probe{}, &squashfs.Probe3{})

			assert.Equal(t, "squashfs3", res.Name)
			assert.Equal(t, test.version, res.Values["VERSION"])
			assert.Equal(t, test.endianness, res.Values["ENDIANNESS"])
			assert.Equal(t, "1024", res.Values["BLOCK_SIZE"])
			assert.NotContains(t, res.Values, "FS_SIZE")
		})
	}

	assert.Empty(t, probetest.Run(t, image("sqsh", binary.BigEndian, 4, 0), &squashfs.Probe3{}).Name)
}
