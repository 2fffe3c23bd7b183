// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package vdo probes Virtual Data Optimizer volumes.
package vdo

import (
	"github.com/siderolabs/go-blkid/blkid/internal/magic"
	"github.com/siderolabs/go-blkid/blkid/internal/probe"
)

var vdoMagic = magic.Magic{Value: []byte("dmvdo001")}

// Probe for VDO.
type Probe struct{}

// Name returns the name of the format.
func (p *Probe) Name() string {
	return "vdo"
}

// Usage returns the usage class.
func (p *Probe) Usage() probe.Usage {
	return probe.UsageOther
}

// Magic returns the magic values for the format.
func (p *Probe) Magic() []*magic.Magic {
	return []*magic.Magic{&vdoMagic}
}

// Probe runs the further inspection and returns the result if successful.
func (p *Probe) Probe(ctx *probe.Context, m *magic.Magic) error {
	buf, err := ctx.Superblock(m, 56)
	if err != nil {
		return err
	}

	ctx.SetUUID(buf[40:56])

	return nil
}
