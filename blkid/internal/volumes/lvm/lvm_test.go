// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package lvm_test

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/siderolabs/go-blkid/blkid/internal/probe"
	"github.com/siderolabs/go-blkid/blkid/internal/probetest"
	"github.com/siderolabs/go-blkid/blkid/internal/volumes/lvm"
)

const formattedUUID = "Xy3bXc-EYvj-bmd0-bOy3-PnZ3-QvB7-JSuUpq"

func TestFormatUUID(t *testing.T) {
	assert.Equal(t, formattedUUID, lvm.FormatUUID([]byte(probetest.LVM2PVUUID)))
}

func TestLVM2(t *testing.T) {
	for _, sector := range []int{0, 1, 2, 3} {
		t.Run(string(rune('0'+sector)), func(t *testing.T) {
			img := probetest.LVM2(make([]byte, 4*1024*1024), sector)

			res := probetest.Run(t, img, &lvm.Probe{})

			assert.Equal(t, "LVM2_member", res.Name)
			assert.Equal(t, formattedUUID, res.Values["UUID"])
			assert.Equal(t, "LVM2 001", res.Values["VERSION"])
			assert.Equal(t, "raid", res.Values["USAGE"])
		})
	}
}

func TestLVM2Rejects(t *testing.T) {
	t.Run("checksum", func(t *testing.T) {
		img := probetest.LVM2(make([]byte, 4*1024*1024), 1)
		img[512+100] ^= 0xff

		assert.Empty(t, probetest.Run(t, img, &lvm.Probe{}).Name)

		res := probetest.RunWithOptions(t, img, probe.Options{AcceptBadChecksum: true}, &lvm.Probe{})
		assert.Equal(t, "LVM2_member", res.Name)
		assert.Equal(t, "1", res.Values["SBBADCSUM"])
	})

	t.Run("sector", func(t *testing.T) {
		img := probetest.LVM2(make([]byte, 4*1024*1024), 1)
		binary.LittleEndian.PutUint64(img[512+8:], 0)

		assert.Empty(t, probetest.Run(t, img, &lvm.Probe{}).Name)
	})

	t.Run("tiny device", func(t *testing.T) {
		img := probetest.LVM2(make([]byte, 1024*1024), 1)

		assert.Empty(t, probetest.Run(t, img, &lvm.Probe{}).Name)
	})
}

func TestLVM1(t *testing.T) {
	img := make([]byte, 2*1024*1024)

	copy(img, "HM")
	binary.LittleEndian.PutUint16(img[2:], 2)
	copy(img[44:], probetest.LVM2PVUUID)

	res := probetest.Run(t, img, &lvm.LVM1Probe{})

	assert.Equal(t, "LVM1_member", res.Name)
	assert.Equal(t, formattedUUID, res.Values["UUID"])

	binary.LittleEndian.PutUint16(img[2:], 3)

	assert.Empty(t, probetest.Run(t, img, &lvm.LVM1Probe{}).Name)
}
