// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package refs_test

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/siderolabs/go-blkid/blkid/internal/filesystems/refs"
	"github.com/siderolabs/go-blkid/blkid/internal/probetest"
)

func TestProbe(t *testing.T) {
	img := make([]byte, 64*1024)

	copy(img, "\x00\x00\x00ReFS\x00\x00\x00\x00\x00\x00\x00\x00\x00FSRS")
	binary.LittleEndian.PutUint64(img[0x18:], 128)
	binary.LittleEndian.PutUint32(img[0x20:], 512)
	binary.LittleEndian.PutUint32(img[0x24:], 128)
	img[0x28], img[0x29] = 3, 4
	binary.LittleEndian.PutUint64(img[0x38:], 0xa0b1c2d3e4f50617)

	res := probetest.Run(t, img, &refs.Probe{})

	assert.Equal(t, "ReFS", res.Name)
	assert.Equal(t, "3.4", res.Values["VERSION"])
	assert.Equal(t, "a0b1c2d3e4f50617", res.Values["UUID"])
	assert.Equal(t, "512", res.Values["BLOCK_SIZE"])
	assert.Equal(t, "65536", res.Values["FS_BLOCK_SIZE"])
	assert.Equal(t, "65536", res.Values["FS_SIZE"])

	binary.LittleEndian.PutUint32(img[0x20:], 500)

	assert.Empty(t, probetest.Run(t, img, &refs.Probe{}).Name)
}
