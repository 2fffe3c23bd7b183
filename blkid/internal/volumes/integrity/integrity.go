// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package integrity probes dm-integrity devices.
package integrity

import (
	"github.com/siderolabs/go-blkid/blkid/internal/magic"
	"github.com/siderolabs/go-blkid/blkid/internal/probe"
)

var integrityMagic = magic.Magic{Value: []byte("integrt\x00")}

// Probe for the integritysetup superblock.
type Probe struct{}

// Name returns the name of the format.
func (p *Probe) Name() string {
	return "DM_integrity"
}

// Usage returns the usage class.
func (p *Probe) Usage() probe.Usage {
	return probe.UsageCrypto
}

// Magic returns the magic values for the format.
func (p *Probe) Magic() []*magic.Magic {
	return []*magic.Magic{&integrityMagic}
}

// Probe runs the further inspection and returns the result if successful.
func (p *Probe) Probe(ctx *probe.Context, m *magic.Magic) error {
	buf, err := ctx.Superblock(m, 9)
	if err != nil {
		return err
	}

	version := buf[8]
	if version == 0 {
		return probe.Malformedf("zero version")
	}

	ctx.SetVersion("%d", version)

	return nil
}
