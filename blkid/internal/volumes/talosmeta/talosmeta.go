// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package talosmeta probes the Talos META partition.
package talosmeta

import (
	"encoding/binary"

	"github.com/siderolabs/go-blkid/blkid/internal/magic"
	"github.com/siderolabs/go-blkid/blkid/internal/probe"
)

const (
	magic1 uint32 = 0x5a4b3c2d
	magic2 uint32 = 0xa5b4c3d2

	// Length of a single copy of META.
	Length = 256 * 1024
)

var metaMagics = []*magic.Magic{
	{Value: binary.BigEndian.AppendUint32(nil, magic1)},
	{Value: binary.BigEndian.AppendUint32(nil, magic1), KBOffset: Length / 1024},
}

// Probe for META.
type Probe struct{}

// Name returns the name of the format.
func (p *Probe) Name() string {
	return "talosmeta"
}

// Usage returns the usage class.
func (p *Probe) Usage() probe.Usage {
	return probe.UsageOther
}

// Magic returns the magic values for the format.
func (p *Probe) Magic() []*magic.Magic {
	return metaMagics
}

// Probe runs the further inspection and returns the result if successful.
//
// Either of the two copies is accepted if both its leading and trailing magics are intact.
func (p *Probe) Probe(ctx *probe.Context, _ *magic.Magic) error {
	for _, m := range metaMagics {
		base, _ := m.Base(ctx.Size())

		if base+Length > ctx.Size() {
			break
		}

		head, err := ctx.Buffer(base, 4)
		if err != nil {
			return err
		}

		tail, err := ctx.Buffer(base+Length-4, 4)
		if err != nil {
			return err
		}

		if binary.BigEndian.Uint32(head) != magic1 || binary.BigEndian.Uint32(tail) != magic2 {
			continue
		}

		ctx.SetMagic(base, m.Value)
		ctx.SetFSSize(2 * Length)

		return nil
	}

	return probe.ErrNotThisFormat
}
