// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package drbdmanage probes the drbdmanage control volume.
package drbdmanage

import (
	"encoding/binary"

	"github.com/siderolabs/go-blkid/blkid/internal/magic"
	"github.com/siderolabs/go-blkid/blkid/internal/probe"
	"github.com/siderolabs/go-blkid/blkid/internal/result"
	"github.com/siderolabs/go-blkid/blkid/internal/utils"
)

const (
	headerSize  = 44
	uuidOffset  = 11
	uuidLength  = 32
	persistence = 0x1000
)

var (
	headerMagic      = magic.Magic{Value: []byte("$DRBDmgr=q")}
	persistenceMagic = []byte{0x1a, 0xdb, 0x98, 0xa2}
)

// Probe for drbdmanage control volumes.
type Probe struct{}

// Name returns the name of the format.
func (p *Probe) Name() string {
	return "drbdmanage_control_volume"
}

// Usage returns the usage class.
func (p *Probe) Usage() probe.Usage {
	return probe.UsageOther
}

// Magic returns the magic values for the format.
func (p *Probe) Magic() []*magic.Magic {
	return []*magic.Magic{&headerMagic}
}

// MinSize returns the minimum device size.
func (p *Probe) MinSize() uint64 {
	return 64 * 1024
}

// Probe runs the further inspection and returns the result if successful.
func (p *Probe) Probe(ctx *probe.Context, m *magic.Magic) error {
	buf, err := ctx.Superblock(m, headerSize)
	if err != nil {
		return err
	}

	id := buf[uuidOffset : uuidOffset+uuidLength]

	for _, c := range id {
		if !isHexDigit(c) {
			return probe.Malformedf("invalid control volume identifier")
		}
	}

	if buf[uuidOffset+uuidLength] != '\n' {
		return probe.Malformedf("control volume identifier is not terminated")
	}

	ctx.SetString(result.UUID, string(id))

	pers, err := ctx.Buffer(persistence, 8)
	if err != nil {
		return err
	}

	if utils.HasBytesAt(pers, 0, persistenceMagic) {
		ctx.SetVersion("%d", binary.BigEndian.Uint32(pers[4:]))
	}

	return nil
}

func isHexDigit(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}
