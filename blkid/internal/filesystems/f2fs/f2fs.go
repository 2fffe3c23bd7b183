// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package f2fs probes flash-friendly filesystems.
package f2fs

import (
	"encoding/binary"

	"golang.org/x/text/encoding/unicode"

	"github.com/siderolabs/go-blkid/blkid/internal/magic"
	"github.com/siderolabs/go-blkid/blkid/internal/probe"
	"github.com/siderolabs/go-blkid/blkid/internal/utils"
)

const (
	superblockSize = 0x7c + 1024
	maxChecksumEnd = 4096

	// ChecksumSeed is the initial value of the superblock checksum.
	ChecksumSeed = 0xf2f52010
)

var f2fsMagic = magic.Magic{
	Value:    []byte("\x10\x20\xf5\xf2"),
	KBOffset: 1,
}

type superblock []byte

func (sb superblock) major() uint16 { return binary.LittleEndian.Uint16(sb[4:]) }
func (sb superblock) minor() uint16 { return binary.LittleEndian.Uint16(sb[6:]) }
func (sb superblock) logBlockSize() uint32 { return binary.LittleEndian.Uint32(sb[0x10:]) }
func (sb superblock) checksumOffset() uint32 { return binary.LittleEndian.Uint32(sb[0x20:]) }
func (sb superblock) blockCount() uint64 { return binary.LittleEndian.Uint64(sb[0x24:]) }
func (sb superblock) uuid() []byte { return sb[0x6c:0x7c] }
func (sb superblock) volumeName() []byte { return sb[0x7c : 0x7c+1024] }

// Probe for the filesystem.
type Probe struct{}

// Name returns the name of the filesystem.
func (p *Probe) Name() string {
	return "f2fs"
}

// Usage returns the usage class.
func (p *Probe) Usage() probe.Usage {
	return probe.UsageFilesystem
}

// Magic returns the magic value for the filesystem.
func (p *Probe) Magic() []*magic.Magic {
	return []*magic.Magic{&f2fsMagic}
}

func verifyChecksum(ctx *probe.Context, m *magic.Magic, sb superblock) error {
	off := sb.checksumOffset()

	switch {
	case off == 0:
		return nil
	case off%4 != 0 || off+4 > maxChecksumEnd:
		return probe.Malformedf("invalid checksum offset %d", off)
	}

	buf, err := ctx.Superblock(m, uint64(off)+4)
	if err != nil {
		return err
	}

	return ctx.VerifyChecksum(uint64(utils.CRC32(ChecksumSeed, buf[:off])), uint64(binary.LittleEndian.Uint32(buf[off:])))
}

// Probe runs the further inspection and returns the result if successful.
func (p *Probe) Probe(ctx *probe.Context, m *magic.Magic) error {
	buf, err := ctx.Superblock(m, superblockSize)
	if err != nil {
		return err
	}

	sb := superblock(buf)

	// the 1.0 layout is unknown, nothing but the type can be reported
	if sb.major() == 1 && sb.minor() == 0 {
		return nil
	}

	if err = verifyChecksum(ctx, m, sb); err != nil {
		return err
	}

	if sb.volumeName()[0] != 0 {
		ctx.SetUTF16Label(sb.volumeName(), unicode.LittleEndian)
	}

	ctx.SetUUID(sb.uuid())
	ctx.SetVersion("%d.%d", sb.major(), sb.minor())

	if sb.logBlockSize() < 32 {
		blockSize := uint64(1) << sb.logBlockSize()

		ctx.SetFSBlockSize(blockSize)
		ctx.SetBlockSize(blockSize)
		ctx.SetFSSize(sb.blockCount() * blockSize)
	}

	return nil
}
