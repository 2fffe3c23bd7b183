// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package verity probes dm-verity hash devices.
package verity

import (
	"encoding/binary"

	"github.com/siderolabs/go-blkid/blkid/internal/magic"
	"github.com/siderolabs/go-blkid/blkid/internal/probe"
)

const superblockSize = 32

var verityMagic = magic.Magic{Value: []byte("verity\x00\x00")}

type superblock []byte

func (sb superblock) version() uint32 { return binary.LittleEndian.Uint32(sb[8:]) }
func (sb superblock) uuid() []byte { return sb[16:32] }

// Probe for the veritysetup superblock.
type Probe struct{}

// Name returns the name of the format.
func (p *Probe) Name() string {
	return "DM_verity_hash"
}

// Usage returns the usage class.
func (p *Probe) Usage() probe.Usage {
	return probe.UsageCrypto
}

// Magic returns the magic values for the format.
func (p *Probe) Magic() []*magic.Magic {
	return []*magic.Magic{&verityMagic}
}

// Probe runs the further inspection and returns the result if successful.
func (p *Probe) Probe(ctx *probe.Context, m *magic.Magic) error {
	buf, err := ctx.Superblock(m, superblockSize)
	if err != nil {
		return err
	}

	sb := superblock(buf)

	if sb.version() != 1 {
		return probe.Malformedf("unsupported version %d", sb.version())
	}

	ctx.SetUUID(sb.uuid())
	ctx.SetVersion("%d", sb.version())

	return nil
}
