// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package mdraid probes Linux software RAID members.
package mdraid

import (
	"encoding/binary"
	"fmt"

	"github.com/siderolabs/go-blkid/blkid/internal/magic"
	"github.com/siderolabs/go-blkid/blkid/internal/probe"
	"github.com/siderolabs/go-blkid/blkid/internal/result"
	"github.com/siderolabs/go-blkid/blkid/internal/utils"
)

// Name of the format.
const Name = "linux_raid_member"

const (
	mdMagic = 0xa92b4efc

	reservedBytes = 64 * 1024

	sb0Size = 4096

	sb1HeaderSize = 256
	sb1MaxSize    = 4096
	sb1CsumOffset = 216
)

var mdMagicLE = []byte{0xfc, 0x4e, 0x2b, 0xa9}

// superblock0 is the v0.90 superblock.
type superblock0 []byte

func (sb superblock0) major(o binary.ByteOrder) uint32 { return o.Uint32(sb[4:]) }
func (sb superblock0) minor(o binary.ByteOrder) uint32 { return o.Uint32(sb[8:]) }
func (sb superblock0) patch(o binary.ByteOrder) uint32 { return o.Uint32(sb[12:]) }

// uuid concatenates set_uuid0 with set_uuid1..3, as stored.
func (sb superblock0) uuid(full bool) []byte {
	id := make([]byte, 16)

	copy(id, sb[20:24])

	if full {
		copy(id[4:], sb[52:64])
	}

	return id
}

// superblock1 is the v1.x superblock.
type superblock1 []byte

func (sb superblock1) major() uint32 { return binary.LittleEndian.Uint32(sb[4:]) }
func (sb superblock1) setUUID() []byte { return sb[16:32] }
func (sb superblock1) setName() []byte { return sb[32:64] }
func (sb superblock1) superOffset() uint64 { return binary.LittleEndian.Uint64(sb[144:]) }
func (sb superblock1) deviceUUID() []byte { return sb[168:184] }
func (sb superblock1) csum() uint32 { return binary.LittleEndian.Uint32(sb[sb1CsumOffset:]) }
func (sb superblock1) maxDev() uint32 { return binary.LittleEndian.Uint32(sb[220:]) }

// Checksum computes the v1.x superblock checksum over the header and the device roles.
func Checksum(sb []byte) uint32 {
	var sum uint64

	for i := 0; i+4 <= len(sb); i += 4 {
		if i == sb1CsumOffset {
			continue
		}

		sum += uint64(binary.LittleEndian.Uint32(sb[i:]))
	}

	return uint32((sum & 0xffffffff) + (sum >> 32))
}

// EndProbe looks for the v0.90 and v1.0 superblocks stored at the end of the device.
type EndProbe struct{}

// Name returns the name of the format.
func (p *EndProbe) Name() string {
	return Name
}

// Usage returns the usage class.
func (p *EndProbe) Usage() probe.Usage {
	return probe.UsageRAID
}

// Magic returns the magic values for the format.
func (p *EndProbe) Magic() []*magic.Magic {
	return nil
}

// MinSize returns the minimum device size.
func (p *EndProbe) MinSize() uint64 {
	return reservedBytes
}

// Probe runs the further inspection and returns the result if successful.
func (p *EndProbe) Probe(ctx *probe.Context, _ *magic.Magic) error {
	err := probe0(ctx)
	if !probe.IsNotThisFormat(err) {
		return err
	}

	size := ctx.Size()

	return probe1(ctx, (((size>>9)-16)&^7)<<9, "1.0")
}

func probe0(ctx *probe.Context) error {
	off := (ctx.Size() &^ (reservedBytes - 1)) - reservedBytes

	buf, err := ctx.Buffer(off, sb0Size)
	if err != nil {
		return err
	}

	var order binary.ByteOrder

	switch {
	case binary.LittleEndian.Uint32(buf) == mdMagic:
		order = binary.LittleEndian
	case binary.BigEndian.Uint32(buf) == mdMagic:
		order = binary.BigEndian
	default:
		return probe.ErrNotThisFormat
	}

	sb := superblock0(buf)

	major, minor := sb.major(order), sb.minor(order)
	if major != 0 {
		return probe.Malformedf("unsupported major version %d", major)
	}

	ctx.SetUUID(sb.uuid(minor >= 90))
	ctx.SetVersion("%d.%d.%d", major, minor, sb.patch(order))
	ctx.SetMagic(off, buf[:4])

	return nil
}

func probe1(ctx *probe.Context, off uint64, version string) error {
	buf, err := ctx.Buffer(off, sb1HeaderSize)
	if err != nil {
		return err
	}

	sb := superblock1(buf)

	if !utils.HasBytesAt(buf, 0, mdMagicLE) || sb.major() != 1 {
		return probe.ErrNotThisFormat
	}

	if sb.superOffset() != off>>9 {
		return probe.Malformedf("superblock offset %d doesn't match sector %d", sb.superOffset(), off>>9)
	}

	size := sb1HeaderSize + 2*uint64(sb.maxDev())
	if size > sb1MaxSize || size%4 != 0 {
		return probe.Malformedf("invalid max_dev %d", sb.maxDev())
	}

	full, err := ctx.Buffer(off, size)
	if err != nil {
		return err
	}

	if err = ctx.VerifyChecksum(uint64(Checksum(full)), uint64(sb.csum())); err != nil {
		return err
	}

	ctx.SetUUID(sb.setUUID())
	ctx.SetUUIDAs(result.UUIDSub, sb.deviceUUID())
	ctx.SetLabel(sb.setName())
	ctx.SetVersion("%s", version)
	ctx.SetMagic(off, buf[:4])

	return nil
}

// StartProbe looks for the v1.1 and v1.2 superblocks near the start of the device.
type StartProbe struct{}

// Name returns the name of the format.
func (p *StartProbe) Name() string {
	return Name
}

// Usage returns the usage class.
func (p *StartProbe) Usage() probe.Usage {
	return probe.UsageRAID
}

var startMagics = []*magic.Magic{
	{Value: mdMagicLE},
	{Value: mdMagicLE, KBOffset: 4},
}

// Magic returns the magic values for the format.
func (p *StartProbe) Magic() []*magic.Magic {
	return startMagics
}

// Probe runs the further inspection and returns the result if successful.
func (p *StartProbe) Probe(ctx *probe.Context, m *magic.Magic) error {
	base, _ := m.Base(ctx.Size())

	return probe1(ctx, base, fmt.Sprintf("1.%d", 1+base/4096))
}
