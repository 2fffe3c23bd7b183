// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package silicon probes Silicon Image Medley firmware RAID members.
package silicon

import (
	"encoding/binary"

	"github.com/siderolabs/go-blkid/blkid/internal/magic"
	"github.com/siderolabs/go-blkid/blkid/internal/probe"
	"github.com/siderolabs/go-blkid/blkid/internal/utils"
)

const (
	siliconMagic = 0x2f000000

	magicOffset    = 0x60
	checksumOffset = 0x13e
	metadataSize   = 512
)

type metadata []byte

func (m metadata) magic() []byte { return m[magicOffset : magicOffset+4] }
func (m metadata) minor() uint16 { return binary.LittleEndian.Uint16(m[0x11a:]) }
func (m metadata) major() uint16 { return binary.LittleEndian.Uint16(m[0x11c:]) }
func (m metadata) checksum() uint16 { return binary.LittleEndian.Uint16(m[checksumOffset:]) }

// Checksum returns the value stored in the checksum field: the negated sum of the preceding words.
func Checksum(buf []byte) uint16 {
	return -utils.Sum16(0, buf[:checksumOffset])
}

// Probe for Silicon Image metadata in the last sector.
type Probe struct{}

// Name returns the name of the format.
func (p *Probe) Name() string {
	return "silicon_medley_raid_member"
}

// Usage returns the usage class.
func (p *Probe) Usage() probe.Usage {
	return probe.UsageRAID
}

// Magic returns the magic values for the format.
func (p *Probe) Magic() []*magic.Magic {
	return nil
}

// WholeDiskOnly implements probe.WholeDiskProber.
func (p *Probe) WholeDiskOnly() bool {
	return true
}

// Probe runs the further inspection and returns the result if successful.
func (p *Probe) Probe(ctx *probe.Context, _ *magic.Magic) error {
	if ctx.Size() < metadataSize {
		return probe.ErrNotThisFormat
	}

	off := (ctx.Size()/metadataSize - 1) * metadataSize

	buf, err := ctx.Buffer(off, metadataSize)
	if err != nil {
		return err
	}

	md := metadata(buf)

	if binary.LittleEndian.Uint32(md.magic()) != siliconMagic {
		return probe.ErrNotThisFormat
	}

	if err = ctx.VerifyChecksum(uint64(Checksum(md)), uint64(md.checksum())); err != nil {
		return err
	}

	ctx.SetVersion("%d.%d", md.major(), md.minor())
	ctx.SetMagic(off+magicOffset, md.magic())

	return nil
}
