// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package swap_test

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/siderolabs/go-blkid/blkid/internal/filesystems/swap"
	"github.com/siderolabs/go-blkid/blkid/internal/probetest"
)

var swapUUID = [16]byte{0x2f, 0x1e, 0x8c, 0x55, 0x7d, 0x0b, 0x4e, 0x6a, 0x91, 0x3e, 0x5c, 0x4d, 0x12, 0x7a, 0x9b, 0x0e}

const (
	swapUUIDString = "2f1e8c55-7d0b-4e6a-913e-5c4d127a9b0e"
	size           = 1024 * 1024
)

func TestSwap(t *testing.T) {
	for _, test := range []struct { //nolint:govet
		name     string
		image    func() []byte
		expected map[string]string
	}{
		{
			name:  "v1",
			image: func() []byte { return probetest.Swap(size, swapUUID, "swap0") },
			expected: map[string]string{
				"TYPE":          "swap",
				"USAGE":         "other",
				"VERSION":       "1",
				"UUID":          swapUUIDString,
				"LABEL":         "swap0",
				"BLOCK_SIZE":    "4096",
				"FS_BLOCK_SIZE": "4096",
				"FS_SIZE":       "1044480",
			},
		},
		{
			name: "v1 with 64 KiB pages",
			image: func() []byte {
				img := probetest.Swap(size, swapUUID, "")
				copy(img[4096-10:], make([]byte, 10))
				copy(img[0x10000-10:], "SWAPSPACE2")

				return img
			},
			expected: map[string]string{
				"VERSION":    "1",
				"UUID":       swapUUIDString,
				"BLOCK_SIZE": "65536",
			},
		},
		{
			name: "v1 byte swapped",
			image: func() []byte {
				img := probetest.Swap(size, swapUUID, "")
				binary.BigEndian.PutUint32(img[1024:], 1)
				binary.BigEndian.PutUint32(img[1028:], 10)

				return img
			},
			expected: map[string]string{
				"VERSION": "1",
				"UUID":    swapUUIDString,
				"FS_SIZE": "40960",
			},
		},
		{
			name: "garbage in padding hides label and uuid",
			image: func() []byte {
				img := probetest.Swap(size, swapUUID, "swap0")
				img[1196] = 1

				return img
			},
			expected: map[string]string{
				"VERSION": "1",
			},
		},
		{
			name: "v0",
			image: func() []byte {
				img := make([]byte, size)
				copy(img[4096-10:], "SWAP-SPACE")

				return img
			},
			expected: map[string]string{
				"VERSION": "0",
			},
		},
		{
			name: "zero last page",
			image: func() []byte {
				img := probetest.Swap(size, swapUUID, "")
				binary.LittleEndian.PutUint32(img[1028:], 0)

				return img
			},
		},
		{
			name: "bad version",
			image: func() []byte {
				img := probetest.Swap(size, swapUUID, "")
				binary.LittleEndian.PutUint32(img[1024:], 2)

				return img
			},
		},
		{
			name: "TuxOnIce",
			image: func() []byte {
				img := probetest.Swap(size, swapUUID, "")
				copy(img, swap.TuxOnIceMagic)

				return img
			},
		},
		{
			name:  "too small",
			image: func() []byte { return probetest.Swap(8*4096, swapUUID, "") },
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			res := probetest.Run(t, test.image(), &swap.Probe{})

			if test.expected == nil {
				assert.Empty(t, res.Name)

				return
			}

			assert.Equal(t, "swap", res.Name)

			for k, v := range test.expected {
				assert.Equal(t, v, res.Values[k], k)
			}

			if _, ok := test.expected["UUID"]; !ok {
				assert.NotContains(t, res.Values, "UUID")
				assert.NotContains(t, res.Values, "LABEL")
			}
		})
	}
}

func TestSuspend(t *testing.T) {
	for _, test := range []struct {
		name    string
		magic   string
		offset  int
		version string
	}{
		{"s1suspend", "S1SUSPEND", 4096 - 10, "s1suspend"},
		{"s2suspend", "S2SUSPEND", 0x2000 - 10, "s2suspend"},
		{"ulsuspend", "ULSUSPEND", 4096 - 10, "ulsuspend"},
		{"linhib", "LINHIB0001", 0x10000 - 10, "linhib0001"},
		{"tuxonice", string(swap.TuxOnIceMagic), 0, "tuxonice"},
	} {
		t.Run(test.name, func(t *testing.T) {
			img := make([]byte, size)
			copy(img[1036:], swapUUID[:])
			copy(img[test.offset:], test.magic)

			res := probetest.Run(t, img, &swap.SuspendProbe{}, &swap.Probe{})

			assert.Equal(t, "swsuspend", res.Name)
			assert.Equal(t, test.version, res.Values["VERSION"])
			assert.Equal(t, swapUUIDString, res.Values["UUID"])
		})
	}
}

func TestTuxOnIceOverSwap(t *testing.T) {
	img := probetest.Swap(size, swapUUID, "")
	copy(img, swap.TuxOnIceMagic)

	assert.Empty(t, probetest.Run(t, img, &swap.Probe{}).Name)

	res := probetest.Run(t, img, &swap.SuspendProbe{}, &swap.Probe{})
	assert.Equal(t, "swsuspend", res.Name)
	assert.Equal(t, "tuxonice", res.Values["VERSION"])
}
