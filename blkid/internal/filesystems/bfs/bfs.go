// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package bfs probes SCO UnixWare boot filesystems.
package bfs

import (
	"encoding/binary"

	"github.com/siderolabs/go-blkid/blkid/internal/magic"
	"github.com/siderolabs/go-blkid/blkid/internal/probe"
	"github.com/siderolabs/go-blkid/blkid/internal/result"
)

const (
	superblockSize = 40
	blockSize      = 512
)

var bfsMagic = magic.Magic{
	Value: []byte("\xce\xfa\xad\x1b"),
}

type superblock []byte

func (sb superblock) start() uint32 { return binary.LittleEndian.Uint32(sb[4:]) }
func (sb superblock) end() uint32 { return binary.LittleEndian.Uint32(sb[8:]) }
func (sb superblock) fsname() []byte { return sb[28:34] }
func (sb superblock) volume() []byte { return sb[34:40] }

// Probe for the filesystem.
type Probe struct{}

// Name returns the name of the filesystem.
func (p *Probe) Name() string {
	return "bfs"
}

// Usage returns the usage class.
func (p *Probe) Usage() probe.Usage {
	return probe.UsageFilesystem
}

// Magic returns the magic value for the filesystem.
func (p *Probe) Magic() []*magic.Magic {
	return []*magic.Magic{&bfsMagic}
}

// Probe runs the further inspection and returns the result if successful.
func (p *Probe) Probe(ctx *probe.Context, m *magic.Magic) error {
	buf, err := ctx.Superblock(m, superblockSize)
	if err != nil {
		return err
	}

	sb := superblock(buf)

	// the data area starts after the superblock and the inode table
	if sb.start() < blockSize || sb.start() > sb.end() {
		return probe.Malformedf("invalid data area %d..%d", sb.start(), sb.end())
	}

	ctx.SetLabel(sb.volume())
	ctx.SetIDLabel(result.SystemID, sb.fsname())
	ctx.SetBlockSize(blockSize)
	ctx.SetFSSize(uint64(sb.end()) + 1)

	return nil
}
