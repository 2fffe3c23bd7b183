// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package befs probes Be File System volumes.
package befs

import (
	"bytes"
	"encoding/binary"

	"github.com/siderolabs/go-blkid/blkid/internal/magic"
	"github.com/siderolabs/go-blkid/blkid/internal/probe"
)

const (
	nameLength     = 32
	superblockSize = 164

	magic1      = 0x42465331
	magic2      = 0xdd121031
	magic3      = 0x15b6830e
	fsByteOrder = 0x42494745
	inodeMagic  = 0x3bbe0ad9
	treeMagic   = 0x69f6c2e8
	uint64Type  = 0x554c4c47

	inodeSize      = 232
	directBlocks   = 12
	blockRunSize   = 8
	treeHeaderSize = 40
	treeNodeSize   = 28

	treeNull      = -1
	maxTreeLevels = 100

	volumeIDKey = "be:volume_id"
)

var befsMagics = []*magic.Magic{
	{Value: []byte("1SFB"), SBOffset: nameLength, ByteOrder: binary.LittleEndian},
	{Value: []byte("BFS1"), SBOffset: nameLength, ByteOrder: binary.BigEndian},
	{Value: []byte("1SFB"), SBOffset: 0x200 + nameLength, ByteOrder: binary.LittleEndian},
	{Value: []byte("BFS1"), SBOffset: 0x200 + nameLength, ByteOrder: binary.BigEndian},
}

// blockRun is an extent: allocation group, start block and length in blocks.
type blockRun struct {
	ag    uint32
	start uint16
	len   uint16
}

// volume carries the decoded superblock fields needed to walk the tree.
type volume struct {
	ctx   *probe.Context
	order binary.ByteOrder

	name       []byte
	blockSize  uint32
	blockShift uint32
	agShift    uint32
	numBlocks  uint64
	rootDir    blockRun
}

func (v *volume) run(buf []byte) blockRun {
	return blockRun{
		ag:    v.order.Uint32(buf),
		start: v.order.Uint16(buf[4:]),
		len:   v.order.Uint16(buf[6:]),
	}
}

func (v *volume) runOffset(br blockRun) uint64 {
	return uint64(br.ag)<<v.agShift<<v.blockShift + uint64(br.start)<<v.blockShift
}

func (v *volume) runLength(br blockRun) uint64 {
	return uint64(br.len) << v.blockShift
}

func (v *volume) readRun(br blockRun) ([]byte, error) {
	return v.ctx.Buffer(v.runOffset(br), v.runLength(br))
}

func (v *volume) readRunAt(br blockRun, off, length uint64) ([]byte, error) {
	if off+length > v.runLength(br) {
		return nil, probe.Malformedf("read beyond block run")
	}

	return v.ctx.Buffer(v.runOffset(br)+off, length)
}

// readInode reads a run and checks the inode signature.
func (v *volume) readInode(br blockRun) ([]byte, error) {
	buf, err := v.readRun(br)
	if err != nil {
		return nil, err
	}

	if len(buf) < inodeSize || v.order.Uint32(buf) != inodeMagic {
		return nil, probe.Malformedf("bad inode signature")
	}

	return buf, nil
}

// streamRead reads length bytes at the logical offset start of an inode data stream.
//
//nolint:gocyclo
func (v *volume) streamRead(inode []byte, start, length uint64) ([]byte, error) {
	ds := inode[72:]

	maxDirect := v.order.Uint64(ds[96:])
	maxIndirect := v.order.Uint64(ds[112:])
	maxDoubleIndirect := v.order.Uint64(ds[128:])

	switch {
	case start < maxDirect:
		for i := range directBlocks {
			br := v.run(ds[i*blockRunSize:])

			if l := v.runLength(br); start >= l {
				start -= l

				continue
			}

			return v.readRunAt(br, start, length)
		}
	case start < maxIndirect:
		start -= maxDirect

		indirect := v.run(ds[104:])

		runs, err := v.readRun(indirect)
		if err != nil {
			return nil, err
		}

		for i := 0; i+blockRunSize <= len(runs); i += blockRunSize {
			br := v.run(runs[i:])

			if l := v.runLength(br); start >= l {
				start -= l

				continue
			}

			return v.readRunAt(br, start, length)
		}
	case start < maxDoubleIndirect:
		start -= maxIndirect

		double := v.run(ds[120:])

		runSize := v.runLength(double)
		perRun := runSize / blockRunSize

		if runSize == 0 || perRun == 0 {
			return nil, probe.Malformedf("empty double indirect run")
		}

		outer := start / (perRun * runSize)
		inner := start % (perRun * runSize) / runSize
		start = start % (perRun * runSize) % runSize

		if outer >= perRun {
			return nil, probe.Malformedf("double indirect index out of range")
		}

		runs, err := v.readRun(double)
		if err != nil {
			return nil, err
		}

		br := v.run(runs[outer*blockRunSize:])

		if inner >= v.runLength(br)/blockRunSize {
			return nil, probe.Malformedf("indirect index out of range")
		}

		if runs, err = v.readRun(br); err != nil {
			return nil, err
		}

		return v.readRunAt(v.run(runs[inner*blockRunSize:]), start, length)
	}

	return nil, probe.Malformedf("offset %d outside of the data stream", start)
}

// smallDataVolumeID looks for the volume id in the inode small data area.
func (v *volume) smallDataVolumeID(inode []byte) []byte {
	total := min(v.runLength(v.rootDir)-inodeSize, uint64(v.order.Uint32(inode[64:])))
	area := inode[inodeSize:]

	if total > uint64(len(area)) {
		total = uint64(len(area))
	}

	for off := uint64(0); off+8 <= total; {
		sd := area[off:]

		typ := v.order.Uint32(sd)
		nameSize := uint64(v.order.Uint16(sd[4:]))
		dataSize := uint64(v.order.Uint16(sd[6:]))
		size := 8 + nameSize + 3 + dataSize + 1

		if off+size > total {
			break
		}

		if typ == uint64Type && nameSize == uint64(len(volumeIDKey)) && dataSize == 8 &&
			string(sd[8:8+nameSize]) == volumeIDKey {
			return sd[8+nameSize+3 : 8+nameSize+3+8]
		}

		if typ == 0 && nameSize == 0 && dataSize == 0 {
			break
		}

		off += size
	}

	return nil
}

// compareKey compares the key at index of a tree node with key.
func (v *volume) compareKey(keys, lengths []byte, index int, key string) (int, bool) {
	var start uint16

	if index > 0 {
		start = v.order.Uint16(lengths[(index-1)*2:])
	}

	end := v.order.Uint16(lengths[index*2:])

	if end < start || int(end) > len(keys) {
		return 0, false
	}

	return bytes.Compare(keys[start:end], []byte(key)), true
}

// lookup walks the B+tree stored in the inode data stream.
func (v *volume) lookup(inode []byte, key string) (int64, error) {
	hdr, err := v.streamRead(inode, 0, treeHeaderSize)
	if err != nil {
		return 0, err
	}

	if v.order.Uint32(hdr) != treeMagic {
		return 0, probe.Malformedf("bad B+tree signature")
	}

	pointer := int64(v.order.Uint64(hdr[16:]))
	nodeSize := uint64(v.order.Uint32(hdr[4:]))

	if nodeSize < treeNodeSize {
		return 0, probe.Malformedf("B+tree node too small")
	}

	for range maxTreeLevels {
		var node []byte

		if node, err = v.streamRead(inode, uint64(pointer), nodeSize); err != nil {
			return 0, err
		}

		overflow := int64(v.order.Uint64(node[16:]))
		count := int(v.order.Uint16(node[24:]))
		keyLength := uint64(v.order.Uint16(node[26:]))

		lengthsOff := (treeNodeSize + keyLength + 7) &^ 7
		valuesOff := lengthsOff + uint64(count)*2

		if count == 0 || valuesOff+uint64(count)*8 > nodeSize {
			return 0, probe.Malformedf("corrupted B+tree node")
		}

		keys := node[treeNodeSize : treeNodeSize+keyLength]
		lengths := node[lengthsOff:valuesOff]
		value := func(i int) int64 { return int64(v.order.Uint64(node[valuesOff+uint64(i)*8:])) }

		// binary search for the first key not less than the searched one
		lo, hi := 0, count
		for lo < hi {
			mid := (lo + hi) / 2

			cmp, ok := v.compareKey(keys, lengths, mid, key)
			if !ok {
				return 0, probe.Malformedf("corrupted B+tree keys")
			}

			if cmp < 0 {
				lo = mid + 1
			} else {
				hi = mid
			}
		}

		if overflow == treeNull {
			if lo < count {
				if cmp, _ := v.compareKey(keys, lengths, lo, key); cmp == 0 {
					return value(lo), nil
				}
			}

			return 0, nil
		}

		if lo == count {
			pointer = overflow
		} else {
			pointer = value(lo)
		}
	}

	return 0, nil
}

// volumeID returns the raw be:volume_id attribute of the root directory, nil if absent.
func (v *volume) volumeID() ([]byte, error) {
	root, err := v.readInode(v.rootDir)
	if err != nil {
		return nil, err
	}

	if id := v.smallDataVolumeID(root); id != nil {
		return id, nil
	}

	attrs := v.run(root[52:])
	if attrs == (blockRun{}) {
		return nil, nil //nolint:nilnil
	}

	dir, err := v.readInode(attrs)
	if err != nil {
		return nil, err
	}

	block, err := v.lookup(dir, volumeIDKey)
	if err != nil || block <= 0 {
		return nil, err
	}

	attr, err := v.ctx.Buffer(uint64(block)<<v.blockShift, uint64(v.blockSize))
	if err != nil {
		return nil, err
	}

	if len(attr) < inodeSize || v.order.Uint32(attr) != inodeMagic {
		return nil, probe.Malformedf("bad attribute inode signature")
	}

	data := attr[72:]

	if v.order.Uint32(attr[60:]) != uint64Type || v.order.Uint64(data[136:]) != 8 || v.run(data).len != 1 {
		return nil, nil //nolint:nilnil
	}

	return v.readRunAt(v.run(data), 0, 8)
}

// Probe for the filesystem.
type Probe struct{}

// Name returns the name of the filesystem.
func (p *Probe) Name() string {
	return "befs"
}

// Usage returns the usage class.
func (p *Probe) Usage() probe.Usage {
	return probe.UsageFilesystem
}

// MinSize returns the minimum device size.
func (p *Probe) MinSize() uint64 {
	return 1440 * 1024
}

// Magic returns the magic values for the filesystem.
func (p *Probe) Magic() []*magic.Magic {
	return befsMagics
}

// Probe runs the further inspection and returns the result if successful.
func (p *Probe) Probe(ctx *probe.Context, m *magic.Magic) error {
	buf, err := ctx.Buffer(m.SBOffset-nameLength, superblockSize)
	if err != nil {
		return err
	}

	order := m.Order()

	if order.Uint32(buf[32:]) != magic1 || order.Uint32(buf[68:]) != magic2 ||
		order.Uint32(buf[112:]) != magic3 || order.Uint32(buf[36:]) != fsByteOrder {
		return probe.ErrNotThisFormat
	}

	v := &volume{
		ctx:        ctx,
		order:      order,
		name:       buf[:nameLength],
		blockSize:  order.Uint32(buf[40:]),
		blockShift: order.Uint32(buf[44:]),
		numBlocks:  order.Uint64(buf[48:]),
		agShift:    order.Uint32(buf[76:]),
	}

	if v.blockShift < 10 || v.blockShift > 13 || v.blockSize != 1<<v.blockShift {
		return probe.Malformedf("invalid block size")
	}

	if v.agShift > 64 {
		return probe.Malformedf("invalid allocation group shift")
	}

	v.rootDir = v.run(buf[116:])

	id, err := v.volumeID()
	if err != nil {
		return err
	}

	ctx.SetLabel(v.name)

	if order == binary.BigEndian {
		ctx.SetVersion("big-endian")
	} else {
		ctx.SetVersion("little-endian")
	}

	if id != nil {
		ctx.SprintfUUID(id, "%016x", order.Uint64(id))
	}

	ctx.SetFSBlockSize(uint64(v.blockSize))
	ctx.SetBlockSize(uint64(v.blockSize))
	ctx.SetFSSize(v.numBlocks * uint64(v.blockSize))
	ctx.SetEndianness(order)

	return nil
}
