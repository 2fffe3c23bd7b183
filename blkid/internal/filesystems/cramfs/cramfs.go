// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package cramfs probes compressed ROM filesystems.
package cramfs

import (
	"encoding/binary"

	"github.com/siderolabs/go-blkid/blkid/internal/magic"
	"github.com/siderolabs/go-blkid/blkid/internal/probe"
	"github.com/siderolabs/go-blkid/blkid/internal/utils"
)

const (
	superblockSize = 64
	crcOffset      = 32
	pageSize       = 4096

	flagFSIDVersion2 = 0x1
)

var cramfsMagics = []*magic.Magic{
	{Value: []byte("\x45\x3d\xcd\x28"), ByteOrder: binary.LittleEndian},
	{Value: []byte("\x28\xcd\x3d\x45"), ByteOrder: binary.BigEndian},
}

type superblock struct {
	buf   []byte
	order binary.ByteOrder
}

func (sb superblock) size() uint32 { return sb.order.Uint32(sb.buf[4:]) }
func (sb superblock) flags() uint32 { return sb.order.Uint32(sb.buf[8:]) }
func (sb superblock) crc() uint32 { return sb.order.Uint32(sb.buf[crcOffset:]) }
func (sb superblock) name() []byte { return sb.buf[48:64] }

// Checksum computes the image checksum with the crc field zeroed.
func Checksum(image []byte) uint32 {
	return ^utils.CRC32Exclude(utils.CRC32, ^uint32(0), image, crcOffset, 4)
}

// Probe for the filesystem.
type Probe struct{}

// Name returns the name of the filesystem.
func (p *Probe) Name() string {
	return "cramfs"
}

// Usage returns the usage class.
func (p *Probe) Usage() probe.Usage {
	return probe.UsageFilesystem
}

// Magic returns the magic values for the filesystem.
func (p *Probe) Magic() []*magic.Magic {
	return cramfsMagics
}

// Probe runs the further inspection and returns the result if successful.
func (p *Probe) Probe(ctx *probe.Context, m *magic.Magic) error {
	buf, err := ctx.Superblock(m, superblockSize)
	if err != nil {
		return err
	}

	sb := superblock{buf: buf, order: m.Order()}

	version := 1

	if sb.flags()&flagFSIDVersion2 != 0 {
		version = 2

		if sb.size() < superblockSize {
			return probe.Malformedf("image size %d is too small", sb.size())
		}

		var image []byte

		if image, err = ctx.Superblock(m, uint64(sb.size())); err != nil {
			return err
		}

		if err = ctx.VerifyChecksum(uint64(Checksum(image)), uint64(sb.crc())); err != nil {
			return err
		}
	}

	ctx.SetLabel(sb.name())
	ctx.SetVersion("%d", version)
	ctx.SetBlockSize(pageSize)
	ctx.SetFSBlockSize(pageSize)
	ctx.SetFSSize(uint64(sb.size()))
	ctx.SetEndianness(sb.order)

	return nil
}
