// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package jfs probes IBM JFS filesystems.
package jfs

import (
	"bytes"
	"encoding/binary"

	"github.com/siderolabs/go-blkid/blkid/internal/magic"
	"github.com/siderolabs/go-blkid/blkid/internal/probe"
)

const (
	superblockSize = 184
	fpackSize      = 11
)

var jfsMagic = magic.Magic{
	Value:    []byte("JFS1"),
	KBOffset: 32,
}

type superblock []byte

func (sb superblock) version() uint32 { return binary.LittleEndian.Uint32(sb[4:]) }
func (sb superblock) size() uint64 { return binary.LittleEndian.Uint64(sb[8:]) }
func (sb superblock) blockSize() uint32 { return binary.LittleEndian.Uint32(sb[16:]) }
func (sb superblock) l2BlockSize() uint16 { return binary.LittleEndian.Uint16(sb[20:]) }
func (sb superblock) l2PhysBlockSize() uint16 { return binary.LittleEndian.Uint16(sb[28:]) }
func (sb superblock) fpack() []byte { return sb[101 : 101+fpackSize] }
func (sb superblock) uuid() []byte { return sb[136:152] }
func (sb superblock) label() []byte { return sb[152:168] }

// legacy reports a v1 superblock whose label and UUID were never written.
//
// jfs_tune keeps s_label and s_fpack in sync, so a mismatch means only
// the OS/2 compatible pack name is trustworthy.
func (sb superblock) legacy() bool {
	return sb.version() == 1 && !bytes.Equal(sb.label()[:fpackSize], sb.fpack())
}

// Probe for the filesystem.
type Probe struct{}

// Name returns the name of the filesystem.
func (p *Probe) Name() string {
	return "jfs"
}

// Usage returns the usage class.
func (p *Probe) Usage() probe.Usage {
	return probe.UsageFilesystem
}

// Magic returns the magic values for the filesystem.
func (p *Probe) Magic() []*magic.Magic {
	return []*magic.Magic{&jfsMagic}
}

// Probe runs the further inspection and returns the result if successful.
func (p *Probe) Probe(ctx *probe.Context, m *magic.Magic) error {
	buf, err := ctx.Superblock(m, superblockSize)
	if err != nil {
		return err
	}

	sb := superblock(buf)

	if sb.l2BlockSize() >= 32 || sb.blockSize() != 1<<sb.l2BlockSize() {
		return probe.Malformedf("block size %d does not match its log %d", sb.blockSize(), sb.l2BlockSize())
	}

	switch {
	case sb.legacy():
		ctx.SetLabel(sb.fpack())
	case sb.label()[0] != 0:
		ctx.SetLabel(sb.label())
		ctx.SetUUID(sb.uuid())
	default:
		ctx.SetLabel(sb.fpack())
		ctx.SetUUID(sb.uuid())
	}

	ctx.SetBlockSize(uint64(sb.blockSize()))
	ctx.SetFSBlockSize(uint64(sb.blockSize()))

	if sb.l2PhysBlockSize() < 32 {
		ctx.SetFSSize(sb.size() << sb.l2PhysBlockSize())
	}

	return nil
}
