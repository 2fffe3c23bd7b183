// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package vxfs probes Veritas filesystems.
package vxfs

import (
	"encoding/binary"

	"github.com/siderolabs/go-blkid/blkid/internal/magic"
	"github.com/siderolabs/go-blkid/blkid/internal/probe"
	"github.com/siderolabs/go-blkid/blkid/internal/utils"
)

const superblockSize = 64

// Native superblocks live at 1 KiB, HP-UX ones at 8 KiB in big endian.
var vxfsMagics = []*magic.Magic{
	{Value: []byte("\xf5\xfc\x01\xa5"), KBOffset: 1, ByteOrder: binary.LittleEndian},
	{Value: []byte("\xa5\x01\xfc\xf5"), KBOffset: 8, ByteOrder: binary.BigEndian},
}

// Probe for the filesystem.
type Probe struct{}

// Name returns the name of the filesystem.
func (p *Probe) Name() string {
	return "vxfs"
}

// Usage returns the usage class.
func (p *Probe) Usage() probe.Usage {
	return probe.UsageFilesystem
}

// Magic returns the magic values for the filesystem.
func (p *Probe) Magic() []*magic.Magic {
	return vxfsMagics
}

// Probe runs the further inspection and returns the result if successful.
func (p *Probe) Probe(ctx *probe.Context, m *magic.Magic) error {
	buf, err := ctx.Superblock(m, superblockSize)
	if err != nil {
		return err
	}

	order := m.Order()

	version := order.Uint32(buf[4:])
	blockSize := order.Uint32(buf[32:])

	if blockSize < 1024 || blockSize > 8192 || !utils.IsPowerOf2(blockSize) {
		return probe.Malformedf("invalid block size %d", blockSize)
	}

	ctx.SetVersion("%d", version)
	ctx.SetFSBlockSize(uint64(blockSize))
	ctx.SetBlockSize(uint64(blockSize))
	ctx.SetEndianness(order)

	return nil
}
