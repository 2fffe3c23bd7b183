// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package befs_test

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/siderolabs/go-blkid/blkid/internal/filesystems/befs"
	"github.com/siderolabs/go-blkid/blkid/internal/probetest"
)

const volumeID = 0x0123456789abcdef

func putRun(order binary.ByteOrder, buf []byte, start uint16) {
	order.PutUint32(buf, 0)
	order.PutUint16(buf[4:], start)
	order.PutUint16(buf[6:], 1)
}

// image builds a volume with 1 KiB blocks, the root directory inode is at block 4.
func image(order binary.ByteOrder, smallData bool) []byte {
	img := make([]byte, 2*1024*1024)

	sb := img[512:]
	copy(sb, "Haiku")
	order.PutUint32(sb[32:], 0x42465331)
	order.PutUint32(sb[36:], 0x42494745)
	order.PutUint32(sb[40:], 1024)
	order.PutUint32(sb[44:], 10)
	order.PutUint64(sb[48:], 2048)
	order.PutUint32(sb[68:], 0xdd121031)
	order.PutUint32(sb[76:], 13)
	order.PutUint32(sb[112:], 0x15b6830e)
	putRun(order, sb[116:], 4)

	var id [8]byte

	order.PutUint64(id[:], volumeID)

	root := img[4*1024:]
	order.PutUint32(root, 0x3bbe0ad9)
	order.PutUint32(root[64:], 512)

	if smallData {
		sd := root[232:]
		order.PutUint32(sd, 0x554c4c47)
		order.PutUint16(sd[4:], 12)
		order.PutUint16(sd[6:], 8)
		copy(sd[8:], "be:volume_id")
		copy(sd[23:], id[:])

		return img
	}

	// attribute directory with a single leaf node
	putRun(order, root[52:], 5)

	dir := img[5*1024:]
	order.PutUint32(dir, 0x3bbe0ad9)
	putRun(order, dir[72:], 6)
	order.PutUint64(dir[72+96:], 1024)

	tree := img[6*1024:]
	order.PutUint32(tree, 0x69f6c2e8)
	order.PutUint32(tree[4:], 256)
	order.PutUint64(tree[16:], 256)

	node := tree[256:]
	order.PutUint64(node, ^uint64(0))
	order.PutUint64(node[8:], ^uint64(0))
	order.PutUint64(node[16:], ^uint64(0))
	order.PutUint16(node[24:], 1)
	order.PutUint16(node[26:], 12)
	copy(node[28:], "be:volume_id")
	order.PutUint16(node[40:], 12)
	order.PutUint64(node[42:], 7)

	attr := img[7*1024:]
	order.PutUint32(attr, 0x3bbe0ad9)
	order.PutUint32(attr[60:], 0x554c4c47)
	putRun(order, attr[72:], 8)
	order.PutUint64(attr[72+136:], 8)

	copy(img[8*1024:], id[:])

	return img
}

func TestProbe(t *testing.T) {
	for _, test := range []struct { //nolint:govet
		name       string
		order      binary.ByteOrder
		smallData  bool
		version    string
		endianness string
	}{
		{"little endian small data", binary.LittleEndian, true, "little-endian", "LITTLE"},
		{"big endian small data", binary.BigEndian, true, "big-endian", "BIG"},
		{"attribute tree", binary.LittleEndian, false, "little-endian", "LITTLE"},
	} {
		t.Run(test.name, func(t *testing.T) {
			res := probetest.Run(t, image(test.order, test.smallData), &befs.Probe{})

			assert.Equal(t, "befs", res.Name)
			assert.Equal(t, "Haiku", res.Values["LABEL"])
			assert.Equal(t, "0123456789abcdef", res.Values["UUID"])
			assert.Equal(t, test.version, res.Values["VERSION"])
			assert.Equal(t, test.endianness, res.Values["ENDIANNESS"])
			assert.Equal(t, "1024", res.Values["FS_BLOCK_SIZE"])
			assert.Equal(t, "2097152", res.Values["FS_SIZE"])
		})
	}
}

func TestProbeRejects(t *testing.T) {
	img := image(binary.LittleEndian, true)
	binary.LittleEndian.PutUint32(img[512+44:], 9)

	assert.Empty(t, probetest.Run(t, img, &befs.Probe{}).Name)

	img = image(binary.LittleEndian, true)
	binary.LittleEndian.PutUint32(img[4*1024:], 0)

	assert.Empty(t, probetest.Run(t, img, &befs.Probe{}).Name)
}
