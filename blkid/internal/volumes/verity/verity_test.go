// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package verity_test

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/siderolabs/go-blkid/blkid/internal/probetest"
	"github.com/siderolabs/go-blkid/blkid/internal/volumes/verity"
)

func image(version uint32) []byte {
	img := make([]byte, 8192)

	copy(img, "verity\x00\x00")
	binary.LittleEndian.PutUint32(img[8:], version)
	binary.LittleEndian.PutUint32(img[12:], 1)
	copy(img[16:], []byte{0x9f, 0x2c, 0x6a, 0x39, 0xf5, 0x3c, 0x4b, 0x5a, 0x86, 0xa4, 0x06, 0x7c, 0x81, 0x1f, 0xd9, 0x50})
	copy(img[32:], "sha256")

	return img
}

func TestProbe(t *testing.T) {
	res := probetest.Run(t, image(1), &verity.Probe{})

	assert.Equal(t, "DM_verity_hash", res.Name)
	assert.Equal(t, "crypto", res.Values["USAGE"])
	assert.Equal(t, "1", res.Values["VERSION"])
	assert.Equal(t, "9f2c6a39-f53c-4b5a-86a4-067c811fd950", res.Values["UUID"])

	assert.Empty(t, probetest.Run(t, image(2), &verity.Probe{}).Name)
}
