// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package ext_test

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/siderolabs/go-blkid/blkid/internal/filesystems/ext"
	"github.com/siderolabs/go-blkid/blkid/internal/probe"
	"github.com/siderolabs/go-blkid/blkid/internal/probetest"
)

const extUUID = "5d3b848e-0a3f-4bd2-8c16-6c6e8a7e4221"

func family() []probe.Prober {
	return []probe.Prober{
		&ext.Probe{Variant: ext.Ext4Dev},
		&ext.Probe{Variant: ext.Ext4},
		&ext.Probe{Variant: ext.Ext3},
		&ext.Probe{Variant: ext.Ext2},
		&ext.Probe{Variant: ext.JBD},
	}
}

func TestProbe(t *testing.T) {
	for _, test := range []struct { //nolint:govet
		name     string
		image    func([]byte) []byte
		expected map[string]string
	}{
		{
			name:  "ext4",
			image: func(img []byte) []byte { return probetest.Ext4(img, "rootfs") },
			expected: map[string]string{
				"TYPE":          "ext4",
				"USAGE":         "filesystem",
				"LABEL":         "rootfs",
				"UUID":          extUUID,
				"EXT_JOURNAL":   "aa3b848e-0a3f-4bd2-8c16-6c6e8a7e4221",
				"VERSION":       "1.0",
				"BLOCK_SIZE":    "4096",
				"FS_BLOCK_SIZE": "4096",
				"FSLASTBLOCK":   "8192",
				"FS_SIZE":       "33554432",
			},
		},
		{
			name:  "ext3",
			image: func(img []byte) []byte { return probetest.Ext(img, 0x4, 0x2, 0x1, "") },
			expected: map[string]string{
				"TYPE":     "ext3",
				"SEC_TYPE": "ext2",
				"UUID":     extUUID,
			},
		},
		{
			name:  "ext3 needs recovery",
			image: func(img []byte) []byte { return probetest.Ext(img, 0x4, 0x2|0x4, 0x1, "") },
			expected: map[string]string{
				"TYPE": "ext3",
			},
		},
		{
			name:  "ext2",
			image: func(img []byte) []byte { return probetest.Ext(img, 0, 0x2, 0x1|0x2, "data") },
			expected: map[string]string{
				"TYPE":  "ext2",
				"LABEL": "data",
			},
		},
		{
			name:  "ext4 without journal",
			image: func(img []byte) []byte { return probetest.Ext(img, 0, 0x2|0x40, 0x1, "") },
			expected: map[string]string{
				"TYPE": "ext4",
			},
		},
		{
			name:  "external journal",
			image: func(img []byte) []byte { return probetest.Ext(img, 0, 0x8, 0, "") },
			expected: map[string]string{
				"TYPE":    "jbd",
				"LOGUUID": extUUID,
			},
		},
		{
			name: "ext4dev",
			image: func(img []byte) []byte {
				binary.LittleEndian.PutUint32(img[1024+352:], ext.FlagsTestFilesys)

				return probetest.Ext(img, 0x4, 0x2|0x40, 0x1, "")
			},
			expected: map[string]string{
				"TYPE": "ext4dev",
			},
		},
		{
			name: "bad checksum",
			image: func(img []byte) []byte {
				img = probetest.Ext4(img, "rootfs")
				img[1024+130]++

				return img
			},
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			res := probetest.Run(t, test.image(make([]byte, 64*1024)), family()...)

			if test.expected == nil {
				assert.Empty(t, res.Name)

				return
			}

			for k, v := range test.expected {
				assert.Equal(t, v, res.Values[k], k)
			}
		})
	}
}

func TestExt4WithoutLabel(t *testing.T) {
	res := probetest.Run(t, probetest.Ext4(make([]byte, 64*1024), ""), family()...)

	assert.Equal(t, "ext4", res.Name)
	assert.NotContains(t, res.Values, "SEC_TYPE")
	assert.NotContains(t, res.Values, "LABEL")
}
