// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package refs probes Microsoft ReFS volumes.
package refs

import (
	"encoding/binary"

	"github.com/siderolabs/go-blkid/blkid/internal/magic"
	"github.com/siderolabs/go-blkid/blkid/internal/probe"
	"github.com/siderolabs/go-blkid/blkid/internal/utils"
)

const superblockSize = 64

var refsMagic = magic.Magic{
	Value: []byte("\x00\x00\x00ReFS\x00\x00\x00\x00\x00\x00\x00\x00\x00FSRS"),
}

type superblock []byte

func (sb superblock) sectors() uint64 { return binary.LittleEndian.Uint64(sb[0x18:]) }
func (sb superblock) bytesPerSector() uint32 { return binary.LittleEndian.Uint32(sb[0x20:]) }
func (sb superblock) sectorsPerCluster() uint32 { return binary.LittleEndian.Uint32(sb[0x24:]) }
func (sb superblock) major() uint8 { return sb[0x28] }
func (sb superblock) minor() uint8 { return sb[0x29] }
func (sb superblock) serial() []byte { return sb[0x38:0x40] }

// Probe for the filesystem.
type Probe struct{}

// Name returns the name of the filesystem.
func (p *Probe) Name() string {
	return "ReFS"
}

// Usage returns the usage class.
func (p *Probe) Usage() probe.Usage {
	return probe.UsageFilesystem
}

// Magic returns the magic value for the filesystem.
func (p *Probe) Magic() []*magic.Magic {
	return []*magic.Magic{&refsMagic}
}

// Probe runs the further inspection and returns the result if successful.
func (p *Probe) Probe(ctx *probe.Context, m *magic.Magic) error {
	buf, err := ctx.Superblock(m, superblockSize)
	if err != nil {
		return err
	}

	sb := superblock(buf)

	if !utils.IsPowerOf2(sb.bytesPerSector()) || !utils.IsPowerOf2(sb.sectorsPerCluster()) {
		return probe.Malformedf("invalid geometry")
	}

	serial := sb.serial()

	ctx.SetVersion("%d.%d", sb.major(), sb.minor())
	ctx.SprintfUUID(serial, "%s", utils.FormatSerial64(binary.LittleEndian.Uint64(serial)))
	ctx.SetBlockSize(uint64(sb.bytesPerSector()))
	ctx.SetFSBlockSize(uint64(sb.bytesPerSector()) * uint64(sb.sectorsPerCluster()))
	ctx.SetFSSize(sb.sectors() * uint64(sb.bytesPerSector()))

	return nil
}
