// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package luks probes LUKS encrypted volumes.
package luks

import (
	"bytes"
	"encoding/binary"

	"github.com/siderolabs/go-blkid/blkid/internal/magic"
	"github.com/siderolabs/go-blkid/blkid/internal/probe"
	"github.com/siderolabs/go-blkid/blkid/internal/result"
	"github.com/siderolabs/go-blkid/blkid/internal/utils"
)

const headerSize = 4096

var (
	primaryMagic   = []byte("LUKS\xba\xbe")
	secondaryMagic = []byte("SKUL\xba\xbe")
)

// SecondaryOffsets lists the possible locations of the LUKS2 secondary header.
var SecondaryOffsets = []uint64{
	0x04000, 0x008000, 0x010000, 0x020000,
	0x40000, 0x080000, 0x100000, 0x200000, 0x400000,
}

// header covers both LUKS1 and LUKS2 binary headers, all fields are big endian.
type header []byte

func (h header) magic() []byte     { return h[0:6] }
func (h header) version() uint16   { return binary.BigEndian.Uint16(h[6:]) }
func (h header) label() []byte     { return h[24:72] }
func (h header) uuid() []byte      { return h[168:208] }
func (h header) subsystem() []byte { return h[208:256] }
func (h header) hdrOffset() uint64 { return binary.BigEndian.Uint64(h[256:]) }

func (h header) valid(want []byte, off uint64) bool {
	if !bytes.Equal(h.magic(), want) {
		return false
	}

	// LUKS2 headers record their own offset
	return h.version() != 2 || h.hdrOffset() == off
}

// Probe for the crypto container.
type Probe struct{}

// Name returns the name of the format.
func (p *Probe) Name() string {
	return "crypto_LUKS"
}

// Usage returns the usage class.
func (p *Probe) Usage() probe.Usage {
	return probe.UsageCrypto
}

// Magic returns nothing, the headers are located by the probe itself.
func (p *Probe) Magic() []*magic.Magic {
	return nil
}

// Probe runs the further inspection and returns the result if successful.
func (p *Probe) Probe(ctx *probe.Context, _ *magic.Magic) error {
	buf, err := ctx.Buffer(0, headerSize)
	if err != nil {
		return err
	}

	if hdr := header(buf); hdr.valid(primaryMagic, 0) {
		setAttributes(ctx, hdr, 0)

		return nil
	}

	for _, off := range SecondaryOffsets {
		buf, err = ctx.Buffer(off, headerSize)
		if err != nil {
			return err
		}

		if hdr := header(buf); hdr.valid(secondaryMagic, off) {
			setAttributes(ctx, hdr, off)

			return nil
		}
	}

	return probe.ErrNotThisFormat
}

func setAttributes(ctx *probe.Context, hdr header, off uint64) {
	ctx.SetMagic(off, hdr.magic())

	version := hdr.version()

	ctx.SetVersion("%d", version)

	if uuid := utils.TrimLabel(hdr.uuid()); len(uuid) > 0 {
		ctx.SetString(result.UUID, string(uuid))
	}

	if version == 2 {
		ctx.SetLabel(hdr.label())
		ctx.SetIDLabel(result.Subsystem, hdr.subsystem())
	}
}
