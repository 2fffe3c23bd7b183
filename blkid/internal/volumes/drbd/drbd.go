// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package drbd probes DRBD internal metadata at the end of the device.
package drbd

import (
	"encoding/binary"

	"github.com/siderolabs/go-blkid/blkid/internal/magic"
	"github.com/siderolabs/go-blkid/blkid/internal/probe"
)

const (
	drbdMagic = 0x83740267

	magic08        = drbdMagic + 4
	magic84Unclean = drbdMagic + 5
	magic09        = drbdMagic + 6

	// MetadataOffset is the distance of the metadata block from the end of the device.
	MetadataOffset = 4096

	magicOffset = 60
	minSize     = 64 * 1024
)

// metadata covers both the v08 and v09 on-disk layouts, the magic is at the same position.
type metadata []byte

func (md metadata) magic() uint32 { return binary.BigEndian.Uint32(md[magicOffset:]) }

func (md metadata) deviceUUID(version string) []byte {
	if version == "v09" {
		return md[48:56]
	}

	return md[40:48]
}

// Probe for DRBD.
type Probe struct{}

// Name returns the name of the format.
func (p *Probe) Name() string {
	return "drbd"
}

// Usage returns the usage class.
func (p *Probe) Usage() probe.Usage {
	return probe.UsageRAID
}

// Magic returns the magic values for the format.
func (p *Probe) Magic() []*magic.Magic {
	return nil
}

// MinSize returns the minimum device size.
func (p *Probe) MinSize() uint64 {
	return minSize
}

// Probe runs the further inspection and returns the result if successful.
func (p *Probe) Probe(ctx *probe.Context, _ *magic.Magic) error {
	off := ctx.Size() - MetadataOffset

	buf, err := ctx.Buffer(off, magicOffset+4)
	if err != nil {
		return err
	}

	md := metadata(buf)

	var version string

	switch md.magic() {
	case magic08, magic84Unclean:
		version = "v08"
	case magic09:
		version = "v09"
	default:
		return probe.ErrNotThisFormat
	}

	id := md.deviceUUID(version)

	ctx.SprintfUUID(id, "%x", binary.BigEndian.Uint64(id))
	ctx.SetVersion("%s", version)
	ctx.SetMagic(off+magicOffset, buf[magicOffset:magicOffset+4])

	return nil
}
