// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package ubi_test

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/siderolabs/go-blkid/blkid/internal/probetest"
	"github.com/siderolabs/go-blkid/blkid/internal/volumes/ubi"
)

func image(seq uint32) []byte {
	img := make([]byte, 128*1024)

	copy(img, "UBI#")
	img[4] = 1
	binary.BigEndian.PutUint64(img[8:], 7)
	binary.BigEndian.PutUint32(img[16:], 64)
	binary.BigEndian.PutUint32(img[20:], 2048)
	binary.BigEndian.PutUint32(img[24:], seq)
	binary.BigEndian.PutUint32(img[60:], ubi.Checksum(img))

	return img
}

func TestProbe(t *testing.T) {
	res := probetest.Run(t, image(1361782713), &ubi.Probe{})

	assert.Equal(t, "ubi", res.Name)
	assert.Equal(t, "1", res.Values["VERSION"])
	assert.Equal(t, "1361782713", res.Values["UUID"])

	res = probetest.Run(t, image(0), &ubi.Probe{})
	assert.Equal(t, "ubi", res.Name)
	assert.NotContains(t, res.Values, "UUID")

	img := image(1)
	img[8]++

	assert.Empty(t, probetest.Run(t, img, &ubi.Probe{}).Name)
}
