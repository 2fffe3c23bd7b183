// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package nilfs probes NILFS2 log-structured filesystems.
package nilfs

import (
	"encoding/binary"

	"go.uber.org/zap"

	"github.com/siderolabs/go-blkid/blkid/internal/magic"
	"github.com/siderolabs/go-blkid/blkid/internal/probe"
	"github.com/siderolabs/go-blkid/blkid/internal/utils"
)

const (
	// SuperblockOffset is the offset of the primary superblock.
	SuperblockOffset = 0x400
	// SuperblockSize is the on-disk size of the superblock.
	SuperblockSize = 1024

	sbMagic     = 0x3434
	magicOffset = 6
	sumOffset   = 16
)

// BackupOffset returns the offset of the backup superblock on a device of the given size.
func BackupOffset(size uint64) uint64 {
	return (size/0x200 - 8) * 0x200
}

type superblock []byte

func (sb superblock) revLevel() uint32 { return binary.LittleEndian.Uint32(sb) }
func (sb superblock) magic() uint16 { return binary.LittleEndian.Uint16(sb[magicOffset:]) }
func (sb superblock) bytes() uint16 { return binary.LittleEndian.Uint16(sb[8:]) }
func (sb superblock) crcSeed() uint32 { return binary.LittleEndian.Uint32(sb[12:]) }
func (sb superblock) sum() uint32 { return binary.LittleEndian.Uint32(sb[sumOffset:]) }
func (sb superblock) logBlockSize() uint32 { return binary.LittleEndian.Uint32(sb[20:]) }
func (sb superblock) devSize() uint64 { return binary.LittleEndian.Uint64(sb[32:]) }
func (sb superblock) lastCNO() uint64 { return binary.LittleEndian.Uint64(sb[56:]) }
func (sb superblock) uuid() []byte { return sb[152:168] }
func (sb superblock) volumeName() []byte { return sb[168:248] }

// Checksum computes the superblock checksum over the first s_bytes bytes.
func Checksum(sb []byte) uint32 {
	s := superblock(sb)

	return utils.CRC32Exclude(utils.CRC32, s.crcSeed(), sb[:s.bytes()], sumOffset, 4)
}

// Probe for the filesystem.
type Probe struct{}

// Name returns the name of the filesystem.
func (p *Probe) Name() string {
	return "nilfs2"
}

// Usage returns the usage class.
func (p *Probe) Usage() probe.Usage {
	return probe.UsageFilesystem
}

// MinSize returns the minimum device size.
func (p *Probe) MinSize() uint64 {
	return 1024 * 1024
}

// Magic returns no magics, both superblock copies are inspected directly.
func (p *Probe) Magic() []*magic.Magic {
	return nil
}

func valid(ctx *probe.Context, sb superblock, backup bool) bool {
	if sb.magic() != sbMagic {
		return false
	}

	if backup && ctx.WholeDisk() && sb.devSize() != ctx.Size() {
		return false
	}

	if sb.bytes() < sumOffset+4 || sb.bytes() > SuperblockSize {
		return false
	}

	return ctx.VerifyChecksum(uint64(Checksum(sb)), uint64(sb.sum())) == nil
}

// Probe runs the further inspection and returns the result if successful.
func (p *Probe) Probe(ctx *probe.Context, _ *magic.Magic) error {
	primary, err := ctx.Buffer(SuperblockOffset, SuperblockSize)
	if err != nil {
		return err
	}

	primaryValid := valid(ctx, primary, false)

	backupOff := BackupOffset(ctx.Size())
	backupValid := false

	backup, err := ctx.Buffer(backupOff, SuperblockSize)
	if err != nil {
		if !primaryValid {
			return err
		}
	} else {
		backupValid = valid(ctx, backup, true)
	}

	if !primaryValid && !backupValid {
		return probe.ErrNotThisFormat
	}

	// the backup wins only when valid and holding a newer checkpoint
	useBackup := backupValid && (!primaryValid || superblock(backup).lastCNO() > superblock(primary).lastCNO())

	ctx.Logger().Debug("nilfs2 superblocks",
		zap.Bool("primary", primaryValid), zap.Bool("backup", backupValid), zap.Bool("use_backup", useBackup))

	sb, off := superblock(primary), uint64(SuperblockOffset)
	if useBackup {
		sb, off = superblock(backup), backupOff
	}

	if sb.volumeName()[0] != 0 {
		ctx.SetLabel(sb.volumeName())
	}

	ctx.SetUUID(sb.uuid())
	ctx.SetVersion("%d", sb.revLevel())
	ctx.SetMagic(off+magicOffset, sb[magicOffset:magicOffset+2])

	if sb.logBlockSize() < 32 {
		ctx.SetBlockSize(uint64(1024) << sb.logBlockSize())
	}

	return nil
}
