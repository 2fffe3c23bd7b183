// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package udf_test

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siderolabs/go-blkid/blkid/internal/chain"
	"github.com/siderolabs/go-blkid/blkid/internal/filesystems/udf"
	"github.com/siderolabs/go-blkid/blkid/internal/probe"
	"github.com/siderolabs/go-blkid/blkid/internal/probetest"
)

const bs = 2048

func tag(img []byte, block uint32, id uint16) []byte {
	d := img[block*bs : (block+1)*bs]

	binary.LittleEndian.PutUint16(d[0:], id)
	binary.LittleEndian.PutUint32(d[12:], block)

	return d
}

func latin1(dst []byte, s string) {
	dst[0] = 8
	copy(dst[1:], s)
	dst[len(dst)-1] = byte(1 + len(s))
}

func utf16be(dst []byte, s string) {
	dst[0] = 16

	n := 1

	for _, r := range s {
		binary.BigEndian.PutUint16(dst[n:], uint16(r))
		n += 2
	}

	dst[len(dst)-1] = byte(n)
}

type options struct {
	volumeSetID string
	noNSR       bool
	noAnchor    bool
	iso         bool
}

func image(opts options) []byte {
	img := make([]byte, 2*1024*1024)

	vrs := []string{"BEA01", "NSR02", "TEA01"}
	if opts.noNSR {
		vrs[1] = "BOOT2"
	}

	if opts.iso {
		// primary descriptor and terminator ahead of the extended area
		vrs = append([]string{"CD001", "CD001"}, vrs...)
	}

	for i, id := range vrs {
		copy(img[0x8000+i*0x800+1:], id)
		img[0x8000+i*0x800+6] = 1
	}

	if opts.iso {
		img[0x8000] = 1
		copy(img[0x8000+40:], "ISO LABEL")
		img[0x8800] = 0xff
	}

	if opts.noAnchor {
		return img
	}

	anchor := tag(img, 256, 2)
	binary.LittleEndian.PutUint32(anchor[16:], 4*bs)
	binary.LittleEndian.PutUint32(anchor[20:], 32)

	pvd := tag(img, 32, 1)
	latin1(pvd[24:56], "MYDISC")
	latin1(pvd[72:200], opts.volumeSetID)

	lvd := tag(img, 33, 6)
	utf16be(lvd[84:212], "Mein Volume ü")
	binary.LittleEndian.PutUint32(lvd[268:], 1)
	binary.LittleEndian.PutUint32(lvd[432:], bs)
	binary.LittleEndian.PutUint32(lvd[436:], 64)

	lvid := tag(img, 64, 9)
	binary.LittleEndian.PutUint16(lvid[80+8+40:], 0x0201)

	return img
}

func TestProbe(t *testing.T) {
	for _, test := range []struct { //nolint:govet
		name     string
		opts     options
		expected map[string]string
		missing  []string
	}{
		{
			name: "hex volume set",
			opts: options{volumeSetID: "5f3a9c01abcdEF12rest"},
			expected: map[string]string{
				"TYPE":              "udf",
				"USAGE":             "filesystem",
				"UUID":              "5f3a9c01abcdef12",
				"LABEL":             "Mein Volume ü",
				"LOGICAL_VOLUME_ID": "Mein Volume ü",
				"VOLUME_ID":         "MYDISC",
				"VOLUME_SET_ID":     "5f3a9c01abcdEF12rest",
				"VERSION":           "2.01",
				"SBMAGIC":           "BEA01",
				"SBMAGIC_OFFSET":    "32769",
			},
		},
		{
			name: "hex time prefix",
			opts: options{volumeSetID: "5f3a9c01LinuxUDF"},
			expected: map[string]string{
				"UUID": "5f3a9c014c696e75",
			},
		},
		{
			name: "free form volume set",
			opts: options{volumeSetID: "Volume Set 1"},
			expected: map[string]string{
				"UUID":          "566f6c756d652053",
				"VOLUME_SET_ID": "Volume Set 1",
			},
		},
		{
			name: "short volume set",
			opts: options{volumeSetID: "abc"},
			expected: map[string]string{
				"VOLUME_SET_ID": "abc",
			},
			missing: []string{"UUID"},
		},
		{
			name: "no anchor",
			opts: options{noAnchor: true},
			expected: map[string]string{
				"TYPE": "udf",
			},
			missing: []string{"LABEL", "UUID", "VERSION"},
		},
		{
			name: "no NSR",
			opts: options{noNSR: true, volumeSetID: "x"},
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			res := probetest.Run(t, image(test.opts), &udf.Probe{})

			if test.expected == nil {
				assert.Empty(t, res.Name)

				return
			}

			for k, v := range test.expected {
				assert.Equal(t, v, res.Values[k], k)
			}

			for _, k := range test.missing {
				assert.NotContains(t, res.Values, k)
			}
		})
	}
}

func TestBridge(t *testing.T) {
	img := image(options{volumeSetID: "5f3a9c01abcdEF12", iso: true})

	res := probetest.Run(t, img, chain.Default()...)
	assert.Equal(t, "udf", res.Name)

	ctx := probe.NewContext(bytes.NewReader(img), uint64(len(img)), probe.Options{WholeDisk: true})

	found, err := chain.Default().SafeProbe(ctx)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "udf", found.Name())
}
