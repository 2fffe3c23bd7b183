// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package romfs probes ROM filesystems.
package romfs

import (
	"encoding/binary"

	"github.com/siderolabs/go-blkid/blkid/internal/magic"
	"github.com/siderolabs/go-blkid/blkid/internal/probe"
	"github.com/siderolabs/go-blkid/blkid/internal/utils"
)

const (
	headerSize  = 512
	nameOffset  = 16
	minFileSize = 32
	blockSize   = 1024
)

var romfsMagic = magic.Magic{
	Value: []byte("-rom1fs-"),
}

// Checksum adds up the big-endian words of the header, a valid header sums to zero.
func Checksum(header []byte) uint32 {
	var sum uint32

	for i := 0; i+4 <= len(header); i += 4 {
		sum += binary.BigEndian.Uint32(header[i:])
	}

	return sum
}

// Probe for the filesystem.
type Probe struct{}

// Name returns the name of the filesystem.
func (p *Probe) Name() string {
	return "romfs"
}

// Usage returns the usage class.
func (p *Probe) Usage() probe.Usage {
	return probe.UsageFilesystem
}

// Magic returns the magic value for the filesystem.
func (p *Probe) Magic() []*magic.Magic {
	return []*magic.Magic{&romfsMagic}
}

// Probe runs the further inspection and returns the result if successful.
func (p *Probe) Probe(ctx *probe.Context, m *magic.Magic) error {
	buf, err := ctx.Superblock(m, nameOffset)
	if err != nil {
		return err
	}

	size := binary.BigEndian.Uint32(buf[8:])
	if size < minFileSize {
		return probe.Malformedf("image size %d is too small", size)
	}

	// the checksum covers the first 512 bytes or the whole image if shorter
	if buf, err = ctx.Superblock(m, uint64(min(size, headerSize))); err != nil {
		return err
	}

	if err = ctx.VerifyChecksum(uint64(Checksum(buf)), 0); err != nil {
		return err
	}

	ctx.SetLabel(utils.CString(buf[nameOffset:]))
	ctx.SetBlockSize(blockSize)
	ctx.SetFSSize(uint64(size))

	return nil
}
