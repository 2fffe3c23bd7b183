// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package apfs probes Apple APFS containers.
package apfs

import (
	"encoding/binary"

	"github.com/siderolabs/go-blkid/blkid/internal/magic"
	"github.com/siderolabs/go-blkid/blkid/internal/probe"
	"github.com/siderolabs/go-blkid/blkid/internal/utils"
)

const (
	headerSize = 88

	objectTypeSuperblock = 1
	containerOID         = 1

	minBlockSize = 4096
	maxBlockSize = 65536
)

var apfsMagic = magic.Magic{
	Value:    []byte("NXSB"),
	SBOffset: 32,
}

type superblock []byte

func (sb superblock) checksum() uint64 { return binary.LittleEndian.Uint64(sb) }
func (sb superblock) oid() uint64 { return binary.LittleEndian.Uint64(sb[8:]) }
func (sb superblock) objectType() uint16 { return binary.LittleEndian.Uint16(sb[24:]) }
func (sb superblock) objectSubtype() uint16 { return binary.LittleEndian.Uint16(sb[28:]) }
func (sb superblock) pad() uint16 { return binary.LittleEndian.Uint16(sb[30:]) }
func (sb superblock) blockSize() uint32 { return binary.LittleEndian.Uint32(sb[36:]) }
func (sb superblock) blockCount() uint64 { return binary.LittleEndian.Uint64(sb[40:]) }
func (sb superblock) uuid() []byte { return sb[72:88] }

// Checksum computes the Fletcher-64 object checksum of a block, skipping the checksum field.
func Checksum(block []byte) uint64 {
	const mod = 0xffffffff

	var sum1, sum2 uint64

	for i := 8; i+4 <= len(block); i += 4 {
		sum1 = (sum1 + uint64(binary.LittleEndian.Uint32(block[i:]))) % mod
		sum2 = (sum2 + sum1) % mod
	}

	c1 := mod - (sum1+sum2)%mod
	c2 := mod - (sum1+c1)%mod

	return c2<<32 | c1
}

// Probe for the container.
type Probe struct{}

// Name returns the name of the filesystem.
func (p *Probe) Name() string {
	return "apfs"
}

// Usage returns the usage class.
func (p *Probe) Usage() probe.Usage {
	return probe.UsageFilesystem
}

// Magic returns the magic value for the filesystem.
func (p *Probe) Magic() []*magic.Magic {
	return []*magic.Magic{&apfsMagic}
}

// Probe runs the further inspection and returns the result if successful.
func (p *Probe) Probe(ctx *probe.Context, m *magic.Magic) error {
	buf, err := ctx.Superblock(m, headerSize)
	if err != nil {
		return err
	}

	sb := superblock(buf)

	if sb.objectType() != objectTypeSuperblock || sb.objectSubtype() != 0 || sb.pad() != 0 || sb.oid() != containerOID {
		return probe.Malformedf("not a container superblock object")
	}

	blockSize := sb.blockSize()
	if blockSize < minBlockSize || blockSize > maxBlockSize || !utils.IsPowerOf2(blockSize) {
		return probe.Malformedf("invalid block size %d", blockSize)
	}

	block, err := ctx.Superblock(m, uint64(blockSize))
	if err != nil {
		return err
	}

	if err = ctx.VerifyChecksum(Checksum(block), sb.checksum()); err != nil {
		return err
	}

	ctx.SetUUID(sb.uuid())
	ctx.SetBlockSize(uint64(blockSize))
	ctx.SetFSBlockSize(uint64(blockSize))
	ctx.SetFSSize(sb.blockCount() * uint64(blockSize))

	return nil
}
