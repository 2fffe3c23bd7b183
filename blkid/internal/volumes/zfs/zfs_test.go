// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package zfs_test

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/siderolabs/go-blkid/blkid/internal/probetest"
	"github.com/siderolabs/go-blkid/blkid/internal/volumes/zfs"
)

const size = 64 * 1024 * 1024

// nvpair appends an XDR encoded pair with a 4-byte aligned name.
func nvpair(buf []byte, name string, typ uint32, value []byte) []byte {
	nameSize := (len(name) + 1 + 3) &^ 3
	pair := make([]byte, 12+nameSize+8+len(value))

	binary.BigEndian.PutUint32(pair, uint32(len(pair)))
	binary.BigEndian.PutUint32(pair[8:], uint32(len(name)+1))
	copy(pair[12:], name)
	binary.BigEndian.PutUint32(pair[12+nameSize:], typ)
	binary.BigEndian.PutUint32(pair[12+nameSize+4:], 1)
	copy(pair[12+nameSize+8:], value)

	return append(buf, pair...)
}

func image(order binary.ByteOrder, label int, uberblocks int) []byte {
	img := make([]byte, size)

	labels := []int{0, zfs.LabelSize, size - 2*zfs.LabelSize, size - zfs.LabelSize}
	off := labels[label]

	for i := range uberblocks {
		ub := img[off+zfs.UberblockOffset+i*1024:]

		order.PutUint64(ub, zfs.UberblockMagic)
		order.PutUint64(ub[8:], 5000)
	}

	nameValue := binary.BigEndian.AppendUint32(nil, 4)
	nameValue = append(nameValue, "tank"...)

	list := make([]byte, 12)
	list = nvpair(list, "version", 8, binary.BigEndian.AppendUint64(nil, 5000))
	list = nvpair(list, "name", 9, nameValue)
	list = nvpair(list, "guid", 8, binary.BigEndian.AppendUint64(nil, 1234567890123))
	list = nvpair(list, "pool_guid", 8, binary.BigEndian.AppendUint64(nil, 9876543210))

	copy(img[off+zfs.NVListOffset:], list)

	return img
}

func TestProbe(t *testing.T) {
	for _, test := range []struct { //nolint:govet
		name       string
		order      binary.ByteOrder
		label      int
		uberblocks int
		offset     string
	}{
		{
			name:       "little endian in the first label",
			order:      binary.LittleEndian,
			label:      0,
			uberblocks: 4,
			offset:     "134144",
		},
		{
			name:       "big endian in the last label",
			order:      binary.BigEndian,
			label:      3,
			uberblocks: 8,
			offset:     "66984960",
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			res := probetest.Run(t, image(test.order, test.label, test.uberblocks), &zfs.Probe{})

			assert.Equal(t, "zfs_member", res.Name)
			assert.Equal(t, "5000", res.Values["VERSION"])
			assert.Equal(t, "tank", res.Values["LABEL"])
			assert.Equal(t, "1234567890123", res.Values["UUID_SUB"])
			assert.Equal(t, "9876543210", res.Values["UUID"])
			assert.Equal(t, test.offset, res.Values["SBMAGIC_OFFSET"])
		})
	}
}

func TestProbeNotEnoughUberblocks(t *testing.T) {
	assert.Empty(t, probetest.Run(t, image(binary.LittleEndian, 1, 3), &zfs.Probe{}).Name)
}

func TestProbeTooSmall(t *testing.T) {
	img := image(binary.LittleEndian, 0, 8)[:32*1024*1024]

	assert.Empty(t, probetest.Run(t, img, &zfs.Probe{}).Name)
}
