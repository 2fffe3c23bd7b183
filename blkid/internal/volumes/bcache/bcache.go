// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package bcache probes bcache backing and cache devices.
package bcache

import (
	"encoding/binary"

	"github.com/siderolabs/go-blkid/blkid/internal/magic"
	"github.com/siderolabs/go-blkid/blkid/internal/probe"
	"github.com/siderolabs/go-blkid/blkid/internal/utils"
)

const (
	// SuperblockOffset is the location of the superblock on the device.
	SuperblockOffset = 4096

	journalOffset   = 208
	journalBuckets  = 256
	superblockBytes = journalOffset + journalBuckets*8
)

var bcacheMagic = magic.Magic{
	Value: []byte{
		0xc6, 0x85, 0x73, 0xf6, 0x4e, 0x1a, 0x45, 0xca,
		0x82, 0x65, 0xf5, 0x7f, 0x48, 0xba, 0x6d, 0x81,
	},
	KBOffset: SuperblockOffset / 1024,
	SBOffset: 0x18,
}

type superblock []byte

func (sb superblock) csum() uint64 { return binary.LittleEndian.Uint64(sb[0:]) }
func (sb superblock) offset() uint64 { return binary.LittleEndian.Uint64(sb[8:]) }
func (sb superblock) version() uint64 { return binary.LittleEndian.Uint64(sb[16:]) }
func (sb superblock) uuid() []byte { return sb[40:56] }
func (sb superblock) label() []byte { return sb[72:104] }
func (sb superblock) blockSize() uint16 { return binary.LittleEndian.Uint16(sb[192:]) }
func (sb superblock) keys() uint16 { return binary.LittleEndian.Uint16(sb[206:]) }

// Checksum computes the superblock checksum, which covers everything after the checksum field
// up to the last journal bucket in use.
func Checksum(sb []byte) uint64 {
	keys := int(binary.LittleEndian.Uint16(sb[206:]))

	return ^utils.CRC64(^uint64(0), sb[8:journalOffset+keys*8])
}

// Probe for bcache.
type Probe struct{}

// Name returns the name of the format.
func (p *Probe) Name() string {
	return "bcache"
}

// Usage returns the usage class.
func (p *Probe) Usage() probe.Usage {
	return probe.UsageOther
}

// Magic returns the magic values for the format.
func (p *Probe) Magic() []*magic.Magic {
	return []*magic.Magic{&bcacheMagic}
}

// Probe runs the further inspection and returns the result if successful.
func (p *Probe) Probe(ctx *probe.Context, m *magic.Magic) error {
	buf, err := ctx.Superblock(m, superblockBytes)
	if err != nil {
		return err
	}

	sb := superblock(buf)

	if sb.keys() > journalBuckets {
		return probe.Malformedf("too many journal buckets %d", sb.keys())
	}

	if err = ctx.VerifyChecksum(Checksum(sb), sb.csum()); err != nil {
		return err
	}

	if sb.offset() != SuperblockOffset/512 {
		return probe.Malformedf("superblock offset %d", sb.offset())
	}

	ctx.SetVersion("%d", sb.version())
	ctx.SetLabel(sb.label())
	ctx.SetUUID(sb.uuid())
	ctx.SetBlockSize(uint64(sb.blockSize()) * 512)

	ctx.SetWiper(0, SuperblockOffset)

	return nil
}
