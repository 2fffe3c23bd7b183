// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package iso9660_test

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/siderolabs/go-blkid/blkid/internal/filesystems/iso9660"
	"github.com/siderolabs/go-blkid/blkid/internal/probetest"
)

func padded(s string, n int) []byte {
	return append([]byte(s), bytes.Repeat([]byte(" "), n-len(s))...)
}

func utf16be(s string, n int) []byte {
	out := make([]byte, n)

	for i := 0; i < n; i += 2 {
		binary.BigEndian.PutUint16(out[i:], ' ')
	}

	for i, r := range []rune(s) {
		binary.BigEndian.PutUint16(out[2*i:], uint16(r))
	}

	return out
}

type descriptor struct {
	typ   byte
	setup func([]byte)
}

func image(descriptors ...descriptor) []byte {
	img := make([]byte, 128*1024)

	for i, d := range descriptors {
		vd := img[0x8000+i*0x800:]

		vd[0] = d.typ
		copy(vd[1:], "CD001")
		vd[6] = 1

		if d.setup != nil {
			d.setup(vd)
		}
	}

	return img
}

func primary(vd []byte) {
	copy(vd[8:], padded("LINUX", 32))
	copy(vd[40:], padded("INSTALL_DISK", 32))
	binary.LittleEndian.PutUint32(vd[80:], 64)
	binary.BigEndian.PutUint32(vd[84:], 64)
	binary.LittleEndian.PutUint16(vd[128:], 2048)
	binary.BigEndian.PutUint16(vd[130:], 2048)
	copy(vd[318:], padded("ACME", 128))
	copy(vd[574:], padded("MKISOFS", 128))
	copy(vd[813:], "2024010212304500\x00")
	copy(vd[830:], "0000000000000000\x00")
}

func TestProbe(t *testing.T) {
	end := descriptor{typ: 0xff}

	for _, test := range []struct { //nolint:govet
		name     string
		image    []byte
		expected map[string]string
	}{
		{
			name:  "primary only",
			image: image(descriptor{1, primary}, end),
			expected: map[string]string{
				"TYPE":           "iso9660",
				"LABEL":          "INSTALL_DISK",
				"SYSTEM_ID":      "LINUX",
				"PUBLISHER_ID":   "ACME",
				"APPLICATION_ID": "MKISOFS",
				"UUID":           "2024-01-02-12-30-45-00",
				"BLOCK_SIZE":     "2048",
				"FS_SIZE":        "131072",
				"SBMAGIC":        "CD001",
				"SBMAGIC_OFFSET": "32769",
			},
		},
		{
			name: "joliet",
			image: image(
				descriptor{1, primary},
				descriptor{0, func(vd []byte) { copy(vd[7:], padded("EL TORITO SPECIFICATION", 32)) }},
				descriptor{2, func(vd []byte) {
					copy(vd[40:], utf16be("Install Disk ü", 32))
					copy(vd[88:], "%/E")
				}},
				end,
			),
			expected: map[string]string{
				"LABEL":          "Install Disk ü",
				"VERSION":        "Joliet Extension",
				"BOOT_SYSTEM_ID": "EL TORITO SPECIFICATION",
			},
		},
		{
			name: "joliet same label",
			image: image(
				descriptor{1, func(vd []byte) {
					primary(vd)
					copy(vd[40:], padded("DISK", 32))
				}},
				descriptor{2, func(vd []byte) {
					copy(vd[40:], utf16be("DISK", 32))
					copy(vd[88:], "%/@")
				}},
				end,
			),
			expected: map[string]string{
				"LABEL":   "DISK",
				"VERSION": "Joliet Extension",
			},
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			res := probetest.Run(t, test.image, &iso9660.Probe{})

			for k, v := range test.expected {
				assert.Equal(t, v, res.Values[k], k)
			}
		})
	}
}

func TestHighSierra(t *testing.T) {
	img := make([]byte, 64*1024)
	copy(img[0x8000+9:], "CDROM")
	copy(img[0x8000+48:], padded("OLD_DISC", 32))

	res := probetest.Run(t, img, &iso9660.Probe{})

	assert.Equal(t, "iso9660", res.Name)
	assert.Equal(t, "High Sierra", res.Values["VERSION"])
	assert.Equal(t, "OLD_DISC", res.Values["LABEL"])
}

func TestTolerant(t *testing.T) {
	assert.True(t, (&iso9660.Probe{}).Tolerant())
}
