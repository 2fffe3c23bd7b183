// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package squashfs probes squashfs images.
package squashfs

import (
	"encoding/binary"

	"github.com/siderolabs/go-blkid/blkid/internal/magic"
	"github.com/siderolabs/go-blkid/blkid/internal/probe"
)

const (
	superblockSize = 96

	legacyBlockSize = 1024
)

var (
	squashfsMagicLE = magic.Magic{
		Value:     []byte("hsqs"),
		ByteOrder: binary.LittleEndian,
	}

	squashfsMagicBE = magic.Magic{
		Value:     []byte("sqsh"),
		ByteOrder: binary.BigEndian,
	}
)

type superblock []byte

func (sb superblock) blockSize() uint32 { return binary.LittleEndian.Uint32(sb[12:]) }
func (sb superblock) blockLog() uint16 { return binary.LittleEndian.Uint16(sb[22:]) }
func (sb superblock) bytesUsed() uint64 { return binary.LittleEndian.Uint64(sb[40:]) }

func (sb superblock) version(order binary.ByteOrder) (uint16, uint16) {
	return order.Uint16(sb[28:]), order.Uint16(sb[30:])
}

// Probe for squashfs 4.x, always little endian.
type Probe struct{}

// Name returns the name of the filesystem.
func (p *Probe) Name() string {
	return "squashfs"
}

// Usage returns the usage class.
func (p *Probe) Usage() probe.Usage {
	return probe.UsageFilesystem
}

// Magic returns the magic value for the filesystem.
func (p *Probe) Magic() []*magic.Magic {
	return []*magic.Magic{&squashfsMagicLE}
}

// Probe runs the further inspection and returns the result if successful.
func (p *Probe) Probe(ctx *probe.Context, m *magic.Magic) error {
	buf, err := ctx.Superblock(m, superblockSize)
	if err != nil {
		return err
	}

	sb := superblock(buf)

	major, minor := sb.version(binary.LittleEndian)
	if major < 4 {
		return probe.ErrNotThisFormat
	}

	if sb.blockLog() >= 32 || sb.blockSize() != 1<<sb.blockLog() {
		return probe.Malformedf("block size %d doesn't match block log %d", sb.blockSize(), sb.blockLog())
	}

	ctx.SetVersion("%d.%d", major, minor)
	ctx.SetFSBlockSize(uint64(sb.blockSize()))
	ctx.SetBlockSize(uint64(sb.blockSize()))
	ctx.SetFSSize(sb.bytesUsed())

	return nil
}

// Probe3 probes legacy squashfs images of either endianness.
type Probe3 struct{}

// Name returns the name of the filesystem.
func (p *Probe3) Name() string {
	return "squashfs3"
}

// Usage returns the usage class.
func (p *Probe3) Usage() probe.Usage {
	return probe.UsageFilesystem
}

// Magic returns the magic values for the filesystem.
func (p *Probe3) Magic() []*magic.Magic {
	return []*magic.Magic{&squashfsMagicBE, &squashfsMagicLE}
}

// Probe runs the further inspection and returns the result if successful.
func (p *Probe3) Probe(ctx *probe.Context, m *magic.Magic) error {
	buf, err := ctx.Superblock(m, superblockSize)
	if err != nil {
		return err
	}

	major, minor := superblock(buf).version(m.Order())
	if major > 3 {
		return probe.ErrNotThisFormat
	}

	ctx.SetVersion("%d.%d", major, minor)
	ctx.SetFSBlockSize(legacyBlockSize)
	ctx.SetBlockSize(legacyBlockSize)
	ctx.SetEndianness(m.Order())

	return nil
}
