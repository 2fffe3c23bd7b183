// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package ubi probes UBI erase counter headers.
package ubi

import (
	"encoding/binary"

	"github.com/siderolabs/go-blkid/blkid/internal/magic"
	"github.com/siderolabs/go-blkid/blkid/internal/probe"
	"github.com/siderolabs/go-blkid/blkid/internal/utils"
)

const (
	headerSize = 64
	crcOffset  = 60
	crcSeed    = 0xffffffff
)

var ubiMagic = magic.Magic{Value: []byte("UBI#")}

type ecHeader []byte

func (h ecHeader) version() uint8 { return h[4] }
func (h ecHeader) imageSeq() []byte { return h[24:28] }
func (h ecHeader) crc() uint32 { return binary.BigEndian.Uint32(h[crcOffset:]) }

// Checksum of the erase counter header.
func Checksum(hdr []byte) uint32 {
	return utils.CRC32(crcSeed, hdr[:crcOffset])
}

// Probe for UBI.
type Probe struct{}

// Name returns the name of the format.
func (p *Probe) Name() string {
	return "ubi"
}

// Usage returns the usage class.
func (p *Probe) Usage() probe.Usage {
	return probe.UsageOther
}

// Magic returns the magic values for the format.
func (p *Probe) Magic() []*magic.Magic {
	return []*magic.Magic{&ubiMagic}
}

// Probe runs the further inspection and returns the result if successful.
func (p *Probe) Probe(ctx *probe.Context, m *magic.Magic) error {
	buf, err := ctx.Superblock(m, headerSize)
	if err != nil {
		return err
	}

	hdr := ecHeader(buf)

	if err = ctx.VerifyChecksum(uint64(Checksum(hdr)), uint64(hdr.crc())); err != nil {
		return err
	}

	ctx.SetVersion("%d", hdr.version())
	ctx.SprintfUUID(hdr.imageSeq(), "%d", binary.BigEndian.Uint32(hdr.imageSeq()))

	return nil
}
