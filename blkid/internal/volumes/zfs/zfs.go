// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package zfs probes ZFS pool members.
package zfs

import (
	"encoding/binary"

	"github.com/siderolabs/go-blkid/blkid/internal/magic"
	"github.com/siderolabs/go-blkid/blkid/internal/probe"
	"github.com/siderolabs/go-blkid/blkid/internal/result"
	"github.com/siderolabs/go-blkid/blkid/internal/utils"
)

const (
	// LabelSize is the size of each of the four vdev labels.
	LabelSize = 256 * 1024

	// UberblockOffset is the offset of the uberblock ring in a label.
	UberblockOffset = 128 * 1024

	// NVListOffset is the offset of the packed nvlist in a label.
	NVListOffset = 16 * 1024

	// UberblockMagic is stored in host byte order.
	UberblockMagic = 0x00bab10c

	uberblockSize  = 1024
	uberblockCount = 128
	wantUberblocks = 4
	nvListSize     = 4096

	typeUint64 = 8
	typeString = 9
)

type uberblock struct {
	order  binary.ByteOrder
	buf    []byte
	offset uint64
}

func (ub uberblock) version() uint64 { return ub.order.Uint64(ub.buf[8:]) }

// findUberblocks counts uberblocks in the label and returns the last one found.
func findUberblocks(label []byte, labelOffset uint64) (int, uberblock) {
	var (
		found int
		last  uberblock
	)

	for i := range uberblockCount {
		off := UberblockOffset + i*uberblockSize
		buf := label[off : off+uberblockSize]

		for _, order := range []binary.ByteOrder{binary.LittleEndian, binary.BigEndian} {
			if order.Uint64(buf) == UberblockMagic {
				found++

				last = uberblock{order: order, buf: buf, offset: labelOffset + uint64(off)}
			}
		}
	}

	return found, last
}

// Probe for ZFS vdev labels.
type Probe struct{}

// Name returns the name of the format.
func (p *Probe) Name() string {
	return "zfs_member"
}

// Usage returns the usage class.
func (p *Probe) Usage() probe.Usage {
	return probe.UsageFilesystem
}

// Magic returns the magic values for the format.
func (p *Probe) Magic() []*magic.Magic {
	return nil
}

// MinSize returns the minimum device size.
func (p *Probe) MinSize() uint64 {
	return 64 * 1024 * 1024
}

// Probe runs the further inspection and returns the result if successful.
func (p *Probe) Probe(ctx *probe.Context, _ *magic.Magic) error {
	size := ctx.Size()
	align := size % LabelSize

	var (
		found       int
		ub          uberblock
		labelOffset uint64
	)

	for _, off := range []uint64{
		0,
		LabelSize,
		size - 2*LabelSize - align,
		size - LabelSize - align,
	} {
		label, err := ctx.Buffer(off, LabelSize)
		if err != nil {
			return err
		}

		n, last := findUberblocks(label, off)
		if n == 0 {
			continue
		}

		found += n
		ub = last
		labelOffset = off

		if found >= wantUberblocks {
			break
		}
	}

	if found < wantUberblocks {
		return probe.ErrNotThisFormat
	}

	ctx.SetVersion("%d", ub.version())

	if err := extractNVList(ctx, labelOffset); err != nil {
		return err
	}

	ctx.SetMagic(ub.offset, ub.buf[:8])

	return nil
}

// extractNVList picks the pool name and GUIDs from the first page of the label nvlist.
func extractNVList(ctx *probe.Context, labelOffset uint64) error {
	buf, err := ctx.Buffer(labelOffset&^(LabelSize-1)+NVListOffset, nvListSize)
	if err != nil {
		return err
	}

	// nvlist header
	buf = buf[12:]

	for found := 0; len(buf) > 12 && found < 3; {
		pairSize := uint64(binary.BigEndian.Uint32(buf))
		nameLen := uint64(binary.BigEndian.Uint32(buf[8:]))
		nameSize := (nameLen + 3) &^ 3

		if pairSize == 0 || pairSize > uint64(len(buf)) || nameSize+12 > pairSize {
			break
		}

		name := string(utils.CString(buf[12 : 12+nameLen]))
		value := buf[12+nameSize : pairSize]

		if processValue(ctx, name, value) {
			found++
		}

		buf = buf[pairSize:]
	}

	return nil
}

func processValue(ctx *probe.Context, name string, value []byte) bool {
	switch name {
	case "name":
		if len(value) < 12 || binary.BigEndian.Uint32(value) != typeString {
			return false
		}

		strLen := uint64(binary.BigEndian.Uint32(value[8:]))
		if strLen+12 > uint64(len(value)) {
			return false
		}

		ctx.SetLabel(value[12 : 12+strLen])
	case "guid", "pool_guid":
		if len(value) < 16 || binary.BigEndian.Uint32(value) != typeUint64 {
			return false
		}

		raw := value[8:16]
		guid := binary.BigEndian.Uint64(raw)

		if name == "guid" {
			ctx.Sprintf(result.UUIDSub, "%d", guid)
		} else {
			ctx.SprintfUUID(raw, "%d", guid)
		}
	default:
		return false
	}

	return true
}
