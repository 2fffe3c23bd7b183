// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package zonefs probes zonefs filesystems on zoned block devices.
package zonefs

import (
	"encoding/binary"

	"github.com/siderolabs/go-blkid/blkid/internal/magic"
	"github.com/siderolabs/go-blkid/blkid/internal/probe"
	"github.com/siderolabs/go-blkid/blkid/internal/utils"
)

const (
	// SuperblockSize is the size of the checksummed superblock.
	SuperblockSize = 4096

	crcOffset = 4
	blockSize = 4096
)

var zonefsMagic = magic.Magic{
	Value: []byte("SFOZ"),
}

type superblock []byte

func (sb superblock) crc() uint32 { return binary.LittleEndian.Uint32(sb[crcOffset:]) }
func (sb superblock) label() []byte { return sb[8:40] }
func (sb superblock) uuid() []byte { return sb[40:56] }

// Checksum computes the superblock checksum with the crc field zeroed.
func Checksum(sb []byte) uint32 {
	return utils.CRC32Exclude(utils.CRC32, ^uint32(0), sb, crcOffset, 4)
}

// Probe for the filesystem.
type Probe struct{}

// Name returns the name of the filesystem.
func (p *Probe) Name() string {
	return "zonefs"
}

// Usage returns the usage class.
func (p *Probe) Usage() probe.Usage {
	return probe.UsageFilesystem
}

// Magic returns the magic value for the filesystem.
func (p *Probe) Magic() []*magic.Magic {
	return []*magic.Magic{&zonefsMagic}
}

// Probe runs the further inspection and returns the result if successful.
func (p *Probe) Probe(ctx *probe.Context, m *magic.Magic) error {
	buf, err := ctx.Superblock(m, SuperblockSize)
	if err != nil {
		return err
	}

	sb := superblock(buf)

	if err = ctx.VerifyChecksum(uint64(Checksum(sb)), uint64(sb.crc())); err != nil {
		return err
	}

	ctx.SetLabel(sb.label())
	ctx.SetUUID(sb.uuid())
	ctx.SetBlockSize(blockSize)

	return nil
}
