// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package snapcow detects device-mapper snapshot exception stores.
package snapcow

import (
	"github.com/siderolabs/go-blkid/blkid/internal/magic"
	"github.com/siderolabs/go-blkid/blkid/internal/probe"
)

var snapMagic = magic.Magic{Value: []byte("SnAp")}

// Probe for persistent snapshot COW devices.
type Probe struct{}

// Name returns the name of the format.
func (p *Probe) Name() string {
	return "DM_snapshot_cow"
}

// Usage returns the usage class.
func (p *Probe) Usage() probe.Usage {
	return probe.UsageOther
}

// Magic returns the magic values for the format.
func (p *Probe) Magic() []*magic.Magic {
	return []*magic.Magic{&snapMagic}
}

// Probe accepts the device, the magic is all there is to check.
func (p *Probe) Probe(*probe.Context, *magic.Magic) error {
	return nil
}
