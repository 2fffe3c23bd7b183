// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package zonefs_test

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/siderolabs/go-blkid/blkid/internal/filesystems/zonefs"
	"github.com/siderolabs/go-blkid/blkid/internal/probetest"
)

func TestProbe(t *testing.T) {
	img := make([]byte, 64*1024)

	copy(img, "SFOZ")
	copy(img[8:], "zones")
	copy(img[40:], []byte{0xc1, 0xd2, 0xe3, 0xf4, 0x05, 0x16, 0x47, 0x28, 0xb9, 0x4a, 0x5b, 0x6c, 0x7d, 0x8e, 0x9f, 0xa0})
	binary.LittleEndian.PutUint32(img[4:], zonefs.Checksum(img[:zonefs.SuperblockSize]))

	res := probetest.Run(t, img, &zonefs.Probe{})

	assert.Equal(t, "zonefs", res.Name)
	assert.Equal(t, "zones", res.Values["LABEL"])
	assert.Equal(t, "c1d2e3f4-0516-4728-b94a-5b6c7d8e9fa0", res.Values["UUID"])
	assert.Equal(t, "4096", res.Values["BLOCK_SIZE"])

	img[100]++

	assert.Empty(t, probetest.Run(t, img, &zonefs.Probe{}).Name)
}
