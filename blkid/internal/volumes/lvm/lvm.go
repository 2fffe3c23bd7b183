// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package lvm probes LVM physical volumes.
package lvm

import (
	"encoding/binary"
	"strings"

	"github.com/siderolabs/go-blkid/blkid/internal/magic"
	"github.com/siderolabs/go-blkid/blkid/internal/probe"
	"github.com/siderolabs/go-blkid/blkid/internal/utils"
)

const (
	labelSize   = 512
	idLength    = 32
	lvm1IDLen   = 128
	labelID     = "LABELONE"
	lvm2Version = "LVM2 001"

	// WipedSize is the area zeroed by pvcreate.
	WipedSize = 8 * 1024
)

var lvm2Magics = []*magic.Magic{
	{Value: []byte(lvm2Version), SBOffset: 0x218},
	{Value: []byte(lvm2Version), SBOffset: 0x018},
	{Value: []byte(lvm2Version), KBOffset: 1, SBOffset: 0x018},
	{Value: []byte(lvm2Version), KBOffset: 1, SBOffset: 0x218},
}

var lvm1Magic = magic.Magic{Value: []byte("HM")}

// label is the PV label header followed by the PV header.
type label []byte

func (l label) sector() uint64 { return binary.LittleEndian.Uint64(l[8:]) }
func (l label) crc() uint32 { return binary.LittleEndian.Uint32(l[16:]) }
func (l label) pvUUID() []byte { return l[32 : 32+idLength] }
func (l label) crcCovered() []byte { return l[20:labelSize] }

// FormatUUID inserts dashes into an LVM identifier, 6-4-4-4-4-4-6.
func FormatUUID(id []byte) string {
	var sb strings.Builder

	for i, b := 0, uint32(1); i < idLength && i < len(id); i, b = i+1, b<<1 {
		if b&0x4444440 != 0 {
			sb.WriteByte('-')
		}

		sb.WriteByte(id[i])
	}

	return sb.String()
}

// Probe for LVM2 physical volumes.
type Probe struct{}

// Name returns the name of the format.
func (p *Probe) Name() string {
	return "LVM2_member"
}

// Usage returns the usage class.
func (p *Probe) Usage() probe.Usage {
	return probe.UsageRAID
}

// Magic returns the magic values for the format.
func (p *Probe) Magic() []*magic.Magic {
	return lvm2Magics
}

// Probe runs the further inspection and returns the result if successful.
func (p *Probe) Probe(ctx *probe.Context, m *magic.Magic) error {
	sector := uint64(m.KBOffset) * 2

	// the label is either in the first or the second sector of the kilobyte
	buf, err := ctx.Buffer(uint64(m.KBOffset)*1024, 2*labelSize)
	if err != nil {
		return err
	}

	var lbl label

	switch {
	case string(buf[:8]) == labelID:
		lbl = label(buf[:labelSize])
	case string(buf[labelSize:labelSize+8]) == labelID:
		lbl = label(buf[labelSize:])
		sector++
	default:
		return probe.ErrNotThisFormat
	}

	if lbl.sector() != sector {
		return probe.Malformedf("label sector mismatch")
	}

	if err = ctx.VerifyChecksum(uint64(utils.LVMCRC(utils.LVMCRCSeed, lbl.crcCovered())), uint64(lbl.crc())); err != nil {
		return err
	}

	ctx.SprintfUUID(lbl.pvUUID(), "%s", FormatUUID(lbl.pvUUID()))
	ctx.SetVersion("%s", lvm2Version)

	// pvcreate wipes the beginning of the device
	ctx.SetWiper(0, WipedSize)

	return nil
}

// LVM1Probe probes legacy LVM1 physical volumes.
type LVM1Probe struct{}

// Name returns the name of the format.
func (p *LVM1Probe) Name() string {
	return "LVM1_member"
}

// Usage returns the usage class.
func (p *LVM1Probe) Usage() probe.Usage {
	return probe.UsageRAID
}

// Magic returns the magic values for the format.
func (p *LVM1Probe) Magic() []*magic.Magic {
	return []*magic.Magic{&lvm1Magic}
}

// Probe runs the further inspection and returns the result if successful.
func (p *LVM1Probe) Probe(ctx *probe.Context, m *magic.Magic) error {
	buf, err := ctx.Superblock(m, 44+lvm1IDLen)
	if err != nil {
		return err
	}

	if version := binary.LittleEndian.Uint16(buf[2:]); version != 1 && version != 2 {
		return probe.Malformedf("unsupported version %d", version)
	}

	id := buf[44 : 44+idLength]

	ctx.SprintfUUID(id, "%s", FormatUUID(id))

	return nil
}
