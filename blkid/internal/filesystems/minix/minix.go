// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package minix probes Minix filesystems.
package minix

import (
	"encoding/binary"
	"math"

	"github.com/siderolabs/go-blkid/blkid/internal/magic"
	"github.com/siderolabs/go-blkid/blkid/internal/probe"
)

const (
	blockSize      = 1024
	superblockSize = 32

	stateValid = 0x0001
	stateError = 0x0002
)

var extMagic = []byte{0x53, 0xef}

var (
	le = binary.LittleEndian
	be = binary.BigEndian
)

var minixMagics = []*magic.Magic{
	{Value: []byte("\x7f\x13"), KBOffset: 1, SBOffset: 0x10, ByteOrder: le},
	{Value: []byte("\x8f\x13"), KBOffset: 1, SBOffset: 0x10, ByteOrder: le},
	{Value: []byte("\x13\x7f"), KBOffset: 1, SBOffset: 0x10, ByteOrder: be},
	{Value: []byte("\x13\x8f"), KBOffset: 1, SBOffset: 0x10, ByteOrder: be},
	{Value: []byte("\x68\x24"), KBOffset: 1, SBOffset: 0x10, ByteOrder: le},
	{Value: []byte("\x78\x24"), KBOffset: 1, SBOffset: 0x10, ByteOrder: le},
	{Value: []byte("\x24\x68"), KBOffset: 1, SBOffset: 0x10, ByteOrder: be},
	{Value: []byte("\x24\x78"), KBOffset: 1, SBOffset: 0x10, ByteOrder: be},
	{Value: []byte("\x5a\x4d"), KBOffset: 1, SBOffset: 0x18, ByteOrder: le},
	{Value: []byte("\x4d\x5a"), KBOffset: 1, SBOffset: 0x18, ByteOrder: be},
}

func version(m *magic.Magic) int {
	switch m.Order().Uint16(m.Value) {
	case 0x137f, 0x138f:
		return 1
	case 0x2468, 0x2478:
		return 2
	case 0x4d5a:
		return 3
	}

	return 0
}

type geometry struct {
	zones    uint64
	inodes   uint64
	imaps    uint64
	zmaps    uint64
	firstZ   uint64
	zoneSize uint16
}

func parse(sb []byte, order binary.ByteOrder, ver int) (geometry, error) {
	if ver == 3 {
		return geometry{
			inodes:   uint64(order.Uint32(sb[0:])),
			imaps:    uint64(order.Uint16(sb[6:])),
			zmaps:    uint64(order.Uint16(sb[8:])),
			firstZ:   uint64(order.Uint16(sb[10:])),
			zoneSize: order.Uint16(sb[12:]),
			zones:    uint64(order.Uint32(sb[20:])),
		}, nil
	}

	if state := order.Uint16(sb[18:]); state&(stateValid|stateError) != state {
		return geometry{}, probe.Malformedf("invalid state %#x", state)
	}

	g := geometry{
		inodes:   uint64(order.Uint16(sb[0:])),
		imaps:    uint64(order.Uint16(sb[4:])),
		zmaps:    uint64(order.Uint16(sb[6:])),
		firstZ:   uint64(order.Uint16(sb[8:])),
		zoneSize: order.Uint16(sb[10:]),
	}

	if ver == 2 {
		g.zones = uint64(order.Uint32(sb[20:]))
	} else {
		g.zones = uint64(order.Uint16(sb[2:]))
	}

	return g, nil
}

// check mirrors the fsck.minix superblock sanity checks.
func (g geometry) check() error {
	switch {
	case g.zoneSize != 0:
		return probe.Malformedf("unsupported zone size %d", g.zoneSize)
	case g.inodes == 0 || g.inodes == math.MaxUint32:
		return probe.Malformedf("invalid inode count")
	case g.imaps*blockSize*8 < g.inodes+1:
		return probe.Malformedf("inode map too small")
	case g.firstZ > g.zones:
		return probe.Malformedf("first data zone beyond the end")
	case g.zmaps*blockSize*8 < g.zones-g.firstZ+1:
		return probe.Malformedf("zone map too small")
	}

	return nil
}

// Probe for the filesystem.
type Probe struct{}

// Name returns the name of the filesystem.
func (p *Probe) Name() string {
	return "minix"
}

// Usage returns the usage class.
func (p *Probe) Usage() probe.Usage {
	return probe.UsageFilesystem
}

// Magic returns the magic values for the filesystem.
func (p *Probe) Magic() []*magic.Magic {
	return minixMagics
}

// Probe runs the further inspection and returns the result if successful.
func (p *Probe) Probe(ctx *probe.Context, m *magic.Magic) error {
	ver := version(m)
	if ver == 0 {
		return probe.ErrNotThisFormat
	}

	sb, err := ctx.Buffer(blockSize, superblockSize)
	if err != nil {
		return err
	}

	g, err := parse(sb, m.Order(), ver)
	if err != nil {
		return err
	}

	if err = g.check(); err != nil {
		return err
	}

	// parts of an ext superblock may look like minix
	ext, err := ctx.Buffer(0x400+0x38, 2)
	if err != nil {
		return err
	}

	if ext[0] == extMagic[0] && ext[1] == extMagic[1] {
		return probe.ErrNotThisFormat
	}

	ctx.SetVersion("%d", ver)

	return nil
}
