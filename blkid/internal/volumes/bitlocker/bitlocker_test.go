// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package bitlocker_test

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/siderolabs/go-blkid/blkid/internal/probe"
	"github.com/siderolabs/go-blkid/blkid/internal/probetest"
	"github.com/siderolabs/go-blkid/blkid/internal/volumes/bitlocker"
)

func win7(serial uint32, fveVersion uint16) []byte {
	img := make([]byte, 128*1024)

	copy(img, "\xeb\x58\x90-FVE-FS-")
	binary.LittleEndian.PutUint32(img[67:], serial)
	copy(img[71:], "NO NAME    ")
	binary.LittleEndian.PutUint64(img[176:], 0x10000)

	copy(img[0x10000:], "-FVE-FS-")
	binary.LittleEndian.PutUint16(img[0x10000+8:], 48)
	binary.LittleEndian.PutUint16(img[0x10000+10:], fveVersion)

	return img
}

func TestProbe(t *testing.T) {
	for _, test := range []struct { //nolint:govet
		name     string
		image    []byte
		expected map[string]string
	}{
		{
			name:  "win7",
			image: win7(0, 2),
			expected: map[string]string{
				"TYPE":    "BitLocker",
				"USAGE":   "crypto",
				"VERSION": "2",
			},
		},
		{
			name:  "win7 with serial",
			image: win7(1234, 2),
			expected: map[string]string{
				"TYPE":    "BitLocker",
				"VERSION": "2",
				"UUID":    "0000000000001234",
			},
		},
		{
			name:  "vista",
			image: append([]byte("\xeb\x52\x90-FVE-FS-"), make([]byte, 4096)...),
			expected: map[string]string{
				"TYPE": "BitLocker",
			},
		},
		{
			name: "missing metadata",
			image: func() []byte {
				img := win7(0, 2)
				copy(img[0x10000:], "--------")

				return img
			}(),
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			res := probetest.Run(t, test.image, &bitlocker.Probe{})

			if test.expected == nil {
				assert.Empty(t, res.Name)

				return
			}

			for k, v := range test.expected {
				assert.Equal(t, v, res.Values[k], k)
			}

			if _, ok := test.expected["UUID"]; !ok {
				assert.NotContains(t, res.Values, "UUID")
			}
		})
	}
}

func TestIs(t *testing.T) {
	img := win7(0, 2)

	ctx := probe.NewContext(bytes.NewReader(img), uint64(len(img)), probe.Options{})
	assert.True(t, bitlocker.Is(ctx))
	assert.Zero(t, ctx.Store().Len())

	ctx = probe.NewContext(bytes.NewReader(make([]byte, 4096)), 4096, probe.Options{})
	assert.False(t, bitlocker.Is(ctx))
}
