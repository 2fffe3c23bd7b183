// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package ext probes the ext2/ext3/ext4 family and external ext journals.
package ext

import (
	"encoding/binary"

	"github.com/siderolabs/go-blkid/blkid/internal/magic"
	"github.com/siderolabs/go-blkid/blkid/internal/probe"
	"github.com/siderolabs/go-blkid/blkid/internal/result"
	"github.com/siderolabs/go-blkid/blkid/internal/utils"
)

// SuperblockOffset is the location of the primary superblock.
const SuperblockOffset = 0x400

const (
	superblockSize = 1024
	checksumOffset = 0x3fc
)

// Feature flags.
const (
	FeatureCompatHasJournal = 0x0004

	FeatureIncompatFiletype   = 0x0002
	FeatureIncompatRecover    = 0x0004
	FeatureIncompatJournalDev = 0x0008
	FeatureIncompatMetaBG     = 0x0010
	FeatureIncompatExtents    = 0x0040
	FeatureIncompat64Bit      = 0x0080

	FeatureROCompatSparseSuper  = 0x0001
	FeatureROCompatLargeFile    = 0x0002
	FeatureROCompatBtreeDir     = 0x0004
	FeatureROCompatMetadataCsum = 0x0400

	// FlagsTestFilesys marks filesystems for in-development code.
	FlagsTestFilesys = 0x0004
)

const (
	ext2ROCompatSupported = FeatureROCompatSparseSuper | FeatureROCompatLargeFile | FeatureROCompatBtreeDir
	ext2IncompatSupported = FeatureIncompatFiletype | FeatureIncompatMetaBG
	ext3ROCompatSupported = ext2ROCompatSupported
	ext3IncompatSupported = FeatureIncompatFiletype | FeatureIncompatRecover | FeatureIncompatMetaBG
)

var extMagic = magic.Magic{
	Value:    []byte{0x53, 0xef},
	KBOffset: 1,
	SBOffset: 0x38,
}

type superblock []byte

func (sb superblock) blocksCount() uint32 { return binary.LittleEndian.Uint32(sb[4:]) }
func (sb superblock) logBlockSize() uint32 { return binary.LittleEndian.Uint32(sb[24:]) }
func (sb superblock) minorRevLevel() uint16 { return binary.LittleEndian.Uint16(sb[62:]) }
func (sb superblock) revLevel() uint32 { return binary.LittleEndian.Uint32(sb[76:]) }
func (sb superblock) featureCompat() uint32 { return binary.LittleEndian.Uint32(sb[92:]) }
func (sb superblock) featureIncompat() uint32 { return binary.LittleEndian.Uint32(sb[96:]) }
func (sb superblock) featureROCompat() uint32 { return binary.LittleEndian.Uint32(sb[100:]) }
func (sb superblock) uuid() []byte { return sb[104:120] }
func (sb superblock) volumeName() []byte { return sb[120:136] }
func (sb superblock) journalUUID() []byte { return sb[208:224] }
func (sb superblock) blocksCountHi() uint32 { return binary.LittleEndian.Uint32(sb[336:]) }
func (sb superblock) flags() uint32 { return binary.LittleEndian.Uint32(sb[352:]) }
func (sb superblock) checksum() uint32 { return binary.LittleEndian.Uint32(sb[checksumOffset:]) }

func (sb superblock) blockCount() uint64 {
	count := uint64(sb.blocksCount())

	if sb.featureIncompat()&FeatureIncompat64Bit != 0 {
		count |= uint64(sb.blocksCountHi()) << 32
	}

	return count
}

// Variant of the ext family, each one is registered as a separate format.
type Variant int

// Variants in the order they must be probed.
const (
	Ext4Dev Variant = iota
	Ext4
	Ext3
	Ext2
	JBD
)

var variantNames = [...]string{
	Ext4Dev: "ext4dev",
	Ext4:    "ext4",
	Ext3:    "ext3",
	Ext2:    "ext2",
	JBD:     "jbd",
}

// Probe for a single variant of the family.
type Probe struct {
	Variant Variant
}

// Name returns the name of the format.
func (p *Probe) Name() string {
	return variantNames[p.Variant]
}

// Usage returns the usage class.
func (p *Probe) Usage() probe.Usage {
	return probe.UsageFilesystem
}

// Magic returns the magic values for the format.
func (p *Probe) Magic() []*magic.Magic {
	return []*magic.Magic{&extMagic}
}

// Probe runs the further inspection and returns the result if successful.
func (p *Probe) Probe(ctx *probe.Context, m *magic.Magic) error {
	buf, err := ctx.Superblock(m, superblockSize)
	if err != nil {
		return err
	}

	sb := superblock(buf)

	if sb.featureROCompat()&FeatureROCompatMetadataCsum != 0 {
		if err = ctx.VerifyChecksum(uint64(utils.CRC32c(buf[:checksumOffset])), uint64(sb.checksum())); err != nil {
			return err
		}
	}

	compat, incompat, roCompat := sb.featureCompat(), sb.featureIncompat(), sb.featureROCompat()

	version := 4

	switch p.Variant {
	case JBD:
		if incompat&FeatureIncompatJournalDev == 0 {
			return probe.ErrNotThisFormat
		}

		version = 2
	case Ext2:
		if compat&FeatureCompatHasJournal != 0 {
			return probe.ErrNotThisFormat
		}

		if roCompat&^ext2ROCompatSupported != 0 || incompat&^ext2IncompatSupported != 0 {
			return probe.ErrNotThisFormat
		}

		version = 2
	case Ext3:
		if compat&FeatureCompatHasJournal == 0 {
			return probe.ErrNotThisFormat
		}

		if roCompat&^ext3ROCompatSupported != 0 || incompat&^ext3IncompatSupported != 0 {
			return probe.ErrNotThisFormat
		}

		version = 3
	case Ext4Dev:
		if incompat&FeatureIncompatJournalDev != 0 || sb.flags()&FlagsTestFilesys == 0 {
			return probe.ErrNotThisFormat
		}
	case Ext4:
		if incompat&FeatureIncompatJournalDev != 0 || sb.flags()&FlagsTestFilesys != 0 {
			return probe.ErrNotThisFormat
		}

		// ext4 has at least one feature ext3 doesn't understand
		if roCompat&^ext3ROCompatSupported == 0 && incompat&^ext3IncompatSupported == 0 {
			return probe.ErrNotThisFormat
		}
	}

	setInfo(ctx, sb, version)

	if p.Variant == JBD {
		ctx.SetUUIDAs(result.LogUUID, sb.uuid())
	}

	return nil
}

func setInfo(ctx *probe.Context, sb superblock, version int) {
	ctx.SetLabel(utils.CString(sb.volumeName()))
	ctx.SetUUID(sb.uuid())

	if sb.featureCompat()&FeatureCompatHasJournal != 0 {
		ctx.SetUUIDAs(result.ExtJournal, sb.journalUUID())
	}

	if version != 2 && sb.featureIncompat()&^ext2IncompatSupported == 0 {
		ctx.SetString(result.SecType, "ext2")
	}

	ctx.SetVersion("%d.%d", sb.revLevel(), sb.minorRevLevel())

	var blockSize uint64

	if sb.logBlockSize() < 32 {
		blockSize = 1024 << sb.logBlockSize()

		ctx.SetFSBlockSize(blockSize)
		ctx.SetBlockSize(blockSize)
	}

	ctx.SetNumber(result.FSLastBlock, sb.blockCount())
	ctx.SetFSSize(sb.blockCount() * blockSize)
}
