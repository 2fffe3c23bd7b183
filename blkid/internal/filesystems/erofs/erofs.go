// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package erofs probes EROFS read-only images.
package erofs

import (
	"encoding/binary"

	"github.com/siderolabs/go-blkid/blkid/internal/magic"
	"github.com/siderolabs/go-blkid/blkid/internal/probe"
	"github.com/siderolabs/go-blkid/blkid/internal/utils"
)

const (
	// SuperblockOffset is the offset of the superblock.
	SuperblockOffset = 1024

	superblockSize = 128
	checksumOffset = 4

	minBlockSizeBits = 9
	maxBlockSizeBits = 16

	featureCompatSBChecksum = 0x1
)

var erofsMagic = magic.Magic{
	Value:    []byte("\xe2\xe1\xf5\xe0"),
	KBOffset: 1,
}

type superblock []byte

func (sb superblock) checksum() uint32 { return binary.LittleEndian.Uint32(sb[checksumOffset:]) }
func (sb superblock) featureCompat() uint32 { return binary.LittleEndian.Uint32(sb[8:]) }
func (sb superblock) blockSizeBits() uint8 { return sb[12] }
func (sb superblock) blocks() uint32 { return binary.LittleEndian.Uint32(sb[36:]) }
func (sb superblock) uuid() []byte { return sb[48:64] }
func (sb superblock) volumeName() []byte { return sb[64:80] }

// Checksum computes the superblock checksum over the rest of the first block.
func Checksum(block []byte) uint32 {
	return utils.CRC32Exclude(utils.CRC32cSeed, ^uint32(0), block, checksumOffset, 4)
}

// Probe for the filesystem.
type Probe struct{}

// Name returns the name of the filesystem.
func (p *Probe) Name() string {
	return "erofs"
}

// Usage returns the usage class.
func (p *Probe) Usage() probe.Usage {
	return probe.UsageFilesystem
}

// Magic returns the magic value for the filesystem.
func (p *Probe) Magic() []*magic.Magic {
	return []*magic.Magic{&erofsMagic}
}

// Probe runs the further inspection and returns the result if successful.
func (p *Probe) Probe(ctx *probe.Context, m *magic.Magic) error {
	buf, err := ctx.Superblock(m, superblockSize)
	if err != nil {
		return err
	}

	sb := superblock(buf)

	bits := sb.blockSizeBits()
	if bits < minBlockSizeBits || bits > maxBlockSizeBits {
		return probe.Malformedf("invalid block size bits %d", bits)
	}

	blockSize := uint64(1) << bits

	if sb.featureCompat()&featureCompatSBChecksum != 0 && blockSize > SuperblockOffset {
		var block []byte

		if block, err = ctx.Superblock(m, blockSize-SuperblockOffset); err != nil {
			return err
		}

		if err = ctx.VerifyChecksum(uint64(Checksum(block)), uint64(sb.checksum())); err != nil {
			return err
		}
	}

	ctx.SetLabel(sb.volumeName())
	ctx.SetUUID(sb.uuid())
	ctx.SetFSBlockSize(blockSize)
	ctx.SetBlockSize(blockSize)
	ctx.SetFSSize(uint64(sb.blocks()) * blockSize)

	return nil
}
