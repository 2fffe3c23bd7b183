// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package jmicron probes JMicron firmware RAID members.
package jmicron

import (
	"github.com/siderolabs/go-blkid/blkid/internal/magic"
	"github.com/siderolabs/go-blkid/blkid/internal/probe"
	"github.com/siderolabs/go-blkid/blkid/internal/utils"
)

const (
	metadataSize = 128
	maxMode      = 5
)

var signature = []byte("JM")

type metadata []byte

func (m metadata) minor() uint8 { return m[2] }
func (m metadata) major() uint8 { return m[3] }
func (m metadata) mode() uint8 { return m[46] }

// Probe for JMicron metadata in the last sector.
type Probe struct{}

// Name returns the name of the format.
func (p *Probe) Name() string {
	return "jmicron_raid_member"
}

// Usage returns the usage class.
func (p *Probe) Usage() probe.Usage {
	return probe.UsageRAID
}

// Magic returns the magic values for the format.
func (p *Probe) Magic() []*magic.Magic {
	return nil
}

// WholeDiskOnly implements probe.WholeDiskProber.
func (p *Probe) WholeDiskOnly() bool {
	return true
}

// Probe runs the further inspection and returns the result if successful.
func (p *Probe) Probe(ctx *probe.Context, _ *magic.Magic) error {
	if ctx.Size() < 512 {
		return probe.ErrNotThisFormat
	}

	off := (ctx.Size()/512 - 1) * 512

	buf, err := ctx.Buffer(off, metadataSize)
	if err != nil {
		return err
	}

	if !utils.HasBytesAt(buf, 0, signature) {
		return probe.ErrNotThisFormat
	}

	md := metadata(buf)

	// the metadata sums up to zero, or to one on some firmware revisions
	sum := utils.Sum16(0, md)
	if sum > 1 {
		if err = ctx.VerifyChecksum(uint64(sum), 0); err != nil {
			return err
		}
	}

	if md.mode() > maxMode {
		return probe.Malformedf("unknown mode %d", md.mode())
	}

	ctx.SetVersion("%d.%d", md.major(), md.minor())
	ctx.SetMagic(off, signature)

	return nil
}
