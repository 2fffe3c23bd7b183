// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package bluestore probes Ceph BlueStore block devices.
package bluestore

import (
	"github.com/google/uuid"

	"github.com/siderolabs/go-blkid/blkid/internal/magic"
	"github.com/siderolabs/go-blkid/blkid/internal/probe"
	"github.com/siderolabs/go-blkid/blkid/internal/result"
)

const (
	uuidOffset = 23
	uuidLength = 36
)

var blueStoreMagic = magic.Magic{
	Value: []byte("bluestore block device"),
}

// Probe for the BlueStore label.
type Probe struct{}

// Name returns the name of the format.
func (p *Probe) Name() string {
	return "ceph_bluestore"
}

// Usage returns the usage class.
func (p *Probe) Usage() probe.Usage {
	return probe.UsageOther
}

// Magic returns the magic values for the format.
func (p *Probe) Magic() []*magic.Magic {
	return []*magic.Magic{&blueStoreMagic}
}

// Probe runs the further inspection and returns the result if successful.
//
// The label carries the OSD UUID as text after the magic line.
func (p *Probe) Probe(ctx *probe.Context, m *magic.Magic) error {
	buf, err := ctx.Superblock(m, uuidOffset+uuidLength)
	if err != nil {
		return err
	}

	if buf[uuidOffset-1] != '\n' {
		return nil
	}

	if id, parseErr := uuid.ParseBytes(buf[uuidOffset:]); parseErr == nil && id != uuid.Nil {
		ctx.SetString(result.UUID, id.String())
	}

	return nil
}
