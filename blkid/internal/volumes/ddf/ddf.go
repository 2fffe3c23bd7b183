// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package ddf probes SNIA DDF firmware RAID members.
package ddf

import (
	"bytes"
	"encoding/binary"

	"github.com/siderolabs/go-blkid/blkid/internal/magic"
	"github.com/siderolabs/go-blkid/blkid/internal/probe"
	"github.com/siderolabs/go-blkid/blkid/internal/utils"
)

const (
	ddfMagic   = 0xde11de11
	headerSize = 512
)

// anchor headers are looked up this many sectors before the end of the device.
var anchorSectors = []uint64{1, 257}

type header []byte

func (h header) signature() []byte { return h[0:4] }
func (h header) guid() []byte { return h[8:32] }
func (h header) revision() []byte { return h[32:40] }

func (h header) primaryLBA(order binary.ByteOrder) uint64 { return order.Uint64(h[96:]) }

// Probe for DDF anchors.
type Probe struct{}

// Name returns the name of the format.
func (p *Probe) Name() string {
	return "ddf_raid_member"
}

// Usage returns the usage class.
func (p *Probe) Usage() probe.Usage {
	return probe.UsageRAID
}

// Magic returns the magic values for the format.
func (p *Probe) Magic() []*magic.Magic {
	return nil
}

// WholeDiskOnly implements probe.WholeDiskProber.
func (p *Probe) WholeDiskOnly() bool {
	return true
}

// Probe runs the further inspection and returns the result if successful.
func (p *Probe) Probe(ctx *probe.Context, _ *magic.Magic) error {
	sectors := ctx.Size() / headerSize

	for _, back := range anchorSectors {
		if sectors < back {
			break
		}

		off := (sectors - back) * headerSize

		buf, err := ctx.Buffer(off, headerSize)
		if err != nil {
			return err
		}

		var order binary.ByteOrder

		switch {
		case binary.BigEndian.Uint32(buf) == ddfMagic:
			order = binary.BigEndian
		case binary.LittleEndian.Uint32(buf) == ddfMagic:
			order = binary.LittleEndian
		default:
			continue
		}

		return probeAnchor(ctx, header(buf), off, order)
	}

	return probe.ErrNotThisFormat
}

func probeAnchor(ctx *probe.Context, h header, off uint64, order binary.ByteOrder) error {
	if lba := h.primaryLBA(order); lba > 0 {
		primary, err := ctx.Buffer(lba*headerSize, 4)
		if err != nil {
			return err
		}

		if !bytes.Equal(primary, h.signature()) {
			return probe.Malformedf("primary header at LBA %d is missing", lba)
		}
	}

	ctx.SetUUID(h.guid())

	if version := utils.CString(h.revision()); len(version) > 0 {
		ctx.SetVersion("%s", version)
	}

	ctx.SetMagic(off, h.signature())

	return nil
}
