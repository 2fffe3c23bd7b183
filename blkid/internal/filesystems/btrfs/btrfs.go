// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package btrfs probes btrfs filesystems.
package btrfs

import (
	"encoding/binary"

	"github.com/siderolabs/go-blkid/blkid/internal/magic"
	"github.com/siderolabs/go-blkid/blkid/internal/probe"
	"github.com/siderolabs/go-blkid/blkid/internal/result"
	"github.com/siderolabs/go-blkid/blkid/internal/utils"
)

const (
	// SuperblockOffset is the offset of the primary superblock.
	SuperblockOffset = 64 * 1024
	// SuperblockSize is the size of the checksummed superblock.
	SuperblockSize = 4096

	csumSize       = 32
	csumTypeCRC32c = 0
)

var btrfsMagic = magic.Magic{
	Value:    []byte("_BHRfS_M"),
	KBOffset: SuperblockOffset / 1024,
	SBOffset: 0x40,
}

type superblock []byte

func (sb superblock) csum() uint32 { return binary.LittleEndian.Uint32(sb) }
func (sb superblock) fsid() []byte { return sb[32:48] }
func (sb superblock) totalBytes() uint64 { return binary.LittleEndian.Uint64(sb[112:]) }
func (sb superblock) sectorSize() uint32 { return binary.LittleEndian.Uint32(sb[144:]) }
func (sb superblock) csumType() uint16 { return binary.LittleEndian.Uint16(sb[196:]) }
func (sb superblock) devUUID() []byte { return sb[267:283] }
func (sb superblock) label() []byte { return sb[299:555] }

// Checksum computes the crc32c superblock checksum.
func Checksum(sb []byte) uint32 {
	return ^utils.CRC32c(sb[csumSize:SuperblockSize])
}

// Probe for the filesystem.
type Probe struct{}

// Name returns the name of the filesystem.
func (p *Probe) Name() string {
	return "btrfs"
}

// Usage returns the usage class.
func (p *Probe) Usage() probe.Usage {
	return probe.UsageFilesystem
}

// MinSize returns the minimum device size.
func (p *Probe) MinSize() uint64 {
	return 1024 * 1024
}

// Magic returns the magic value for the filesystem.
func (p *Probe) Magic() []*magic.Magic {
	return []*magic.Magic{&btrfsMagic}
}

// Probe runs the further inspection and returns the result if successful.
func (p *Probe) Probe(ctx *probe.Context, m *magic.Magic) error {
	buf, err := ctx.Superblock(m, SuperblockSize)
	if err != nil {
		return err
	}

	sb := superblock(buf)

	// other checksum algorithms (xxhash, sha256, blake2b) are not verified
	if sb.csumType() == csumTypeCRC32c {
		if err = ctx.VerifyChecksum(uint64(Checksum(sb)), uint64(sb.csum())); err != nil {
			return err
		}
	}

	if sb.label()[0] != 0 {
		ctx.SetLabel(sb.label())
	}

	ctx.SetUUID(sb.fsid())
	ctx.SetUUIDAs(result.UUIDSub, sb.devUUID())
	ctx.SetBlockSize(uint64(sb.sectorSize()))
	ctx.SetFSBlockSize(uint64(sb.sectorSize()))
	ctx.SetFSSize(sb.totalBytes())

	return nil
}
