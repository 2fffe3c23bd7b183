// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package xfs probes XFS filesystems and their EXFS predecessor.
package xfs

import (
	"encoding/binary"

	"github.com/siderolabs/go-blkid/blkid/internal/magic"
	"github.com/siderolabs/go-blkid/blkid/internal/probe"
	"github.com/siderolabs/go-blkid/blkid/internal/result"
	"github.com/siderolabs/go-blkid/blkid/internal/utils"
)

// Superblock limits.
const (
	MinBlockSizeLog  = 9
	MaxBlockSizeLog  = 16
	MinSectorSizeLog = 9
	MaxSectorSizeLog = 15
	MinInodeLog      = 8
	MaxInodeLog      = 11

	MaxRTExtSize = 1024 * 1024 * 1024
	MinRTExtSize = 4 * 1024
)

const (
	superblockSize = 232
	crcOffset      = 224

	versionNumberMask = 0x000f
	versionMoreBits   = 0x8000
	version2CRC       = 0x00000100
)

var (
	xfsMagic = magic.Magic{
		Value: []byte("XFSB"),
	}

	exfsMagic = magic.Magic{
		Value: []byte("EXFS"),
	}
)

type superblock []byte

func (sb superblock) blockSize() uint32 { return binary.BigEndian.Uint32(sb[4:]) }
func (sb superblock) dataBlocks() uint64 { return binary.BigEndian.Uint64(sb[8:]) }
func (sb superblock) uuid() []byte { return sb[32:48] }
func (sb superblock) logStart() uint64 { return binary.BigEndian.Uint64(sb[48:]) }
func (sb superblock) rtExtSize() uint32 { return binary.BigEndian.Uint32(sb[80:]) }
func (sb superblock) agBlocks() uint32 { return binary.BigEndian.Uint32(sb[84:]) }
func (sb superblock) agCount() uint32 { return binary.BigEndian.Uint32(sb[88:]) }
func (sb superblock) logBlocks() uint32 { return binary.BigEndian.Uint32(sb[96:]) }
func (sb superblock) versionNum() uint16 { return binary.BigEndian.Uint16(sb[100:]) }
func (sb superblock) sectSize() uint16 { return binary.BigEndian.Uint16(sb[102:]) }
func (sb superblock) inodeSize() uint16 { return binary.BigEndian.Uint16(sb[104:]) }
func (sb superblock) fname() []byte { return sb[108:120] }
func (sb superblock) blockLog() uint8 { return sb[120] }
func (sb superblock) sectLog() uint8 { return sb[121] }
func (sb superblock) inodeLog() uint8 { return sb[122] }
func (sb superblock) inoPBLog() uint8 { return sb[123] }
func (sb superblock) imaxPct() uint8 { return sb[127] }
func (sb superblock) features2() uint32 { return binary.BigEndian.Uint32(sb[200:]) }
func (sb superblock) crc() uint32 { return binary.LittleEndian.Uint32(sb[crcOffset:]) }

func inRange[T uint8 | uint16 | uint32 | uint64](v, lo, hi T) bool {
	return lo <= v && v <= hi
}

func (sb superblock) valid() bool {
	rtExtBytes := uint64(sb.rtExtSize()) * uint64(sb.blockSize())

	return sb.agCount() > 0 &&
		inRange(sb.sectLog(), MinSectorSizeLog, MaxSectorSizeLog) &&
		uint32(sb.sectSize()) == 1<<sb.sectLog() &&
		inRange(sb.blockLog(), MinBlockSizeLog, MaxBlockSizeLog) &&
		sb.blockSize() == 1<<sb.blockLog() &&
		inRange(sb.inodeLog(), MinInodeLog, MaxInodeLog) &&
		uint32(sb.inodeSize()) == 1<<sb.inodeLog() &&
		sb.blockLog()-sb.inodeLog() == sb.inoPBLog() &&
		inRange(rtExtBytes, MinRTExtSize, MaxRTExtSize) &&
		sb.imaxPct() <= 100 &&
		sb.dataBlocks() != 0
}

// dataBlocksInRange checks the data block count against the allocation group geometry.
func (sb superblock) dataBlocksInRange() bool {
	const minAGBlocks = 64

	maxBlocks := uint64(sb.agCount()) * uint64(sb.agBlocks())
	minBlocks := uint64(sb.agCount()-1)*uint64(sb.agBlocks()) + minAGBlocks

	return inRange(sb.dataBlocks(), minBlocks, maxBlocks)
}

// filesystemSize is the size of the data section without an internal log.
func (sb superblock) filesystemSize() uint64 {
	blocks := sb.dataBlocks()

	if sb.logStart() != 0 {
		blocks -= uint64(sb.logBlocks())
	}

	return blocks * uint64(sb.blockSize())
}

// Checksum computes the v5 superblock checksum over a sector.
func Checksum(sector []byte) uint32 {
	return ^utils.CRC32Exclude(utils.CRC32cSeed, ^uint32(0), sector, crcOffset, 4)
}

// Probe for the filesystem.
type Probe struct{}

// Name returns the name of the format.
func (p *Probe) Name() string {
	return "xfs"
}

// Usage returns the usage class.
func (p *Probe) Usage() probe.Usage {
	return probe.UsageFilesystem
}

// Magic returns the magic values for the format.
func (p *Probe) Magic() []*magic.Magic {
	return []*magic.Magic{&xfsMagic}
}

// Probe runs the further inspection and returns the result if successful.
func (p *Probe) Probe(ctx *probe.Context, m *magic.Magic) error {
	buf, err := ctx.Superblock(m, superblockSize)
	if err != nil {
		return err
	}

	sb := superblock(buf)

	if !sb.valid() {
		return probe.Malformedf("invalid superblock geometry")
	}

	if sb.versionNum()&versionNumberMask == 5 {
		if sb.versionNum()&versionMoreBits == 0 || sb.features2()&version2CRC == 0 {
			return probe.Malformedf("v5 superblock without checksums")
		}

		var sector []byte

		if sector, err = ctx.Superblock(m, uint64(sb.sectSize())); err != nil {
			return err
		}

		if err = ctx.VerifyChecksum(uint64(Checksum(sector)), uint64(sb.crc())); err != nil {
			return err
		}
	}

	ctx.SetLabel(utils.CString(sb.fname()))
	ctx.SetUUID(sb.uuid())
	ctx.SetFSBlockSize(uint64(sb.blockSize()))
	ctx.SetBlockSize(uint64(sb.sectSize()))
	ctx.SetNumber(result.FSLastBlock, sb.dataBlocks())
	ctx.SetFSSize(sb.filesystemSize())

	return nil
}

// ExfsProbe probes EXFS, the SGI pre-release variant of XFS.
type ExfsProbe struct{}

// Name returns the name of the filesystem.
func (p *ExfsProbe) Name() string {
	return "exfs"
}

// Usage returns the usage class.
func (p *ExfsProbe) Usage() probe.Usage {
	return probe.UsageFilesystem
}

// Magic returns the magic values for the format.
func (p *ExfsProbe) Magic() []*magic.Magic {
	return []*magic.Magic{&exfsMagic}
}

// Probe runs the further inspection and returns the result if successful.
func (p *ExfsProbe) Probe(ctx *probe.Context, m *magic.Magic) error {
	buf, err := ctx.Superblock(m, superblockSize)
	if err != nil {
		return err
	}

	sb := superblock(buf)

	if !sb.valid() || !sb.dataBlocksInRange() {
		return probe.Malformedf("invalid superblock geometry")
	}

	ctx.SetLabel(utils.CString(sb.fname()))
	ctx.SetUUID(sb.uuid())
	ctx.SetBlockSize(uint64(sb.blockSize()))

	return nil
}
