// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package vfat probes FAT12/16/32 filesystems.
package vfat

import (
	"bytes"
	"encoding/binary"

	"go.uber.org/zap"

	"github.com/siderolabs/go-blkid/blkid/internal/magic"
	"github.com/siderolabs/go-blkid/blkid/internal/probe"
	"github.com/siderolabs/go-blkid/blkid/internal/result"
	"github.com/siderolabs/go-blkid/blkid/internal/utils"
	"github.com/siderolabs/go-blkid/blkid/internal/volumes/bitlocker"
)

const (
	superblockSize = 512
	dirEntrySize   = 32
	labelSize      = 11
	fsInfoSize     = 512

	fat12Max = 0xff4
	fat16Max = 0xfff4
	fat32Max = 0x0ffffff6

	attrVolumeID = 0x08
	attrDir      = 0x10
	attrLongName = 0x0f
	attrMask     = 0x3f
	entryFree    = 0xe5

	maxClusterChain = 100
)

var (
	noName = []byte("NO NAME    ")

	fsInfoSignature1 = [][]byte{[]byte("RRaA"), []byte("RRdA"), make([]byte, 4)}
	fsInfoSignature2 = [][]byte{[]byte("rrAa"), make([]byte, 4)}
)

var fatMagics = []*magic.Magic{
	{Value: []byte("MSWIN"), SBOffset: 0x52},
	{Value: []byte("FAT32   "), SBOffset: 0x52},
	{Value: []byte("MSDOS"), SBOffset: 0x36},
	{Value: []byte("FAT16   "), SBOffset: 0x36},
	{Value: []byte("FAT12   "), SBOffset: 0x36},
	{Value: []byte("FAT     "), SBOffset: 0x36},
	{Value: []byte("\xeb")},
	{Value: []byte("\xe9")},
	{Value: []byte("\x55\xaa"), SBOffset: 0x1fe},
}

// bootSector covers both the FAT12/16 and the FAT32 layouts of the boot sector.
type bootSector []byte

func (bs bootSector) sectorSize() uint16 { return binary.LittleEndian.Uint16(bs[0x0b:]) }
func (bs bootSector) clusterSize() uint8 { return bs[0x0d] }
func (bs bootSector) reserved() uint16 { return binary.LittleEndian.Uint16(bs[0x0e:]) }
func (bs bootSector) fats() uint8 { return bs[0x10] }
func (bs bootSector) dirEntries() uint16 { return binary.LittleEndian.Uint16(bs[0x11:]) }
func (bs bootSector) sectors() uint16 { return binary.LittleEndian.Uint16(bs[0x13:]) }
func (bs bootSector) media() uint8 { return bs[0x15] }
func (bs bootSector) fatLength() uint16 { return binary.LittleEndian.Uint16(bs[0x16:]) }
func (bs bootSector) totalSectors() uint32 { return binary.LittleEndian.Uint32(bs[0x20:]) }
func (bs bootSector) pmagic() []byte { return bs[0x1fe:0x200] }

// FAT12/16 extended BPB.
func (bs bootSector) msExtBootSign() uint8 { return bs[0x26] }
func (bs bootSector) msSerial() []byte { return bs[0x27:0x2b] }
func (bs bootSector) msLabel() []byte { return bs[0x2b:0x36] }
func (bs bootSector) msMagic() []byte { return bs[0x36:0x3e] }

// FAT32 extended BPB.
func (bs bootSector) fat32Length() uint32 { return binary.LittleEndian.Uint32(bs[0x24:]) }
func (bs bootSector) rootCluster() uint32 { return binary.LittleEndian.Uint32(bs[0x2c:]) }
func (bs bootSector) fsInfoSector() uint16 { return binary.LittleEndian.Uint16(bs[0x30:]) }
func (bs bootSector) vsExtBootSign() uint8 { return bs[0x42] }
func (bs bootSector) vsSerial() []byte { return bs[0x43:0x47] }
func (bs bootSector) vsLabel() []byte { return bs[0x47:0x52] }

func (bs bootSector) sectorCount() uint32 {
	if n := bs.sectors(); n != 0 {
		return uint32(n)
	}

	return bs.totalSectors()
}

// geometry is derived from a validated boot sector.
type geometry struct {
	clusterCount uint32
	fatSize      uint32
}

// validate checks the BIOS parameter block.
//
// Short magics (jump opcodes and the boot signature) require extra evidence.
func validate(ctx *probe.Context, m *magic.Magic, bs bootSector) (geometry, error) {
	if len(m.Value) <= 2 {
		if !bytes.Equal(bs.pmagic(), []byte{0x55, 0xaa}) {
			return geometry{}, probe.Malformedf("no boot signature")
		}

		// OS/2 places FAT-like pseudo superblocks on JFS and HPFS volumes
		if bytes.Equal(bs.msMagic(), []byte("JFS     ")) || bytes.Equal(bs.msMagic(), []byte("HPFS    ")) {
			return geometry{}, probe.Malformedf("JFS/HPFS pseudo superblock")
		}
	}

	if bs.fats() == 0 || bs.reserved() == 0 {
		return geometry{}, probe.Malformedf("no FATs or reserved sectors")
	}

	if media := bs.media(); media < 0xf8 && media != 0xf0 {
		return geometry{}, probe.Malformedf("invalid media type %#x", media)
	}

	if !utils.IsPowerOf2(bs.clusterSize()) {
		return geometry{}, probe.Malformedf("invalid cluster size %d", bs.clusterSize())
	}

	sectorSize := uint32(bs.sectorSize())
	if !utils.IsPowerOf2(sectorSize) || sectorSize < 512 || sectorSize > 4096 {
		return geometry{}, probe.Malformedf("invalid sector size %d", sectorSize)
	}

	fatLength := uint32(bs.fatLength())
	if fatLength == 0 {
		fatLength = bs.fat32Length()
	}

	fatSize := fatLength * uint32(bs.fats())
	dirSize := (uint32(bs.dirEntries())*dirEntrySize + sectorSize - 1) / sectorSize
	clusterCount := (bs.sectorCount() - (uint32(bs.reserved()) + fatSize + dirSize)) / uint32(bs.clusterSize())

	var maxCount uint32

	switch {
	case bs.fatLength() == 0 && bs.fat32Length() != 0:
		maxCount = fat32Max
	case clusterCount > fat12Max:
		maxCount = fat16Max
	default:
		maxCount = fat12Max
	}

	if clusterCount > maxCount {
		return geometry{}, probe.Malformedf("too many clusters %d", clusterCount)
	}

	if bitlocker.Is(ctx) {
		return geometry{}, probe.Malformedf("BitLocker volume")
	}

	return geometry{clusterCount: clusterCount, fatSize: fatSize}, nil
}

// findLabel looks for the volume label entry in a directory area, it returns a copy of the name.
func findLabel(ctx *probe.Context, off uint64, entries uint32) ([]byte, error) {
	dir, err := ctx.Buffer(off, uint64(entries)*dirEntrySize)
	if err != nil {
		return nil, err
	}

	for i := 0; i+dirEntrySize <= len(dir); i += dirEntrySize {
		ent := dir[i : i+dirEntrySize]
		attr := ent[11]

		if ent[0] == 0x00 {
			break
		}

		clusterHigh := binary.LittleEndian.Uint16(ent[20:])
		clusterLow := binary.LittleEndian.Uint16(ent[26:])

		if ent[0] == entryFree || clusterHigh != 0 || clusterLow != 0 || attr&attrMask == attrLongName {
			continue
		}

		if attr&(attrVolumeID|attrDir) == attrVolumeID {
			label := bytes.Clone(ent[:labelSize])

			// 0x05 escapes a leading 0xe5 byte
			if label[0] == 0x05 {
				label[0] = entryFree
			}

			return label, nil
		}
	}

	return nil, nil //nolint:nilnil
}

// Probe for the filesystem.
type Probe struct{}

// Name returns the name of the filesystem.
func (p *Probe) Name() string {
	return "vfat"
}

// Usage returns the usage class.
func (p *Probe) Usage() probe.Usage {
	return probe.UsageFilesystem
}

// Magic returns the magic values for the filesystem.
func (p *Probe) Magic() []*magic.Magic {
	return fatMagics
}

type volumeInfo struct {
	label     []byte
	bootLabel []byte
	serial    []byte
	version   string
}

// Probe runs the further inspection and returns the result if successful.
func (p *Probe) Probe(ctx *probe.Context, m *magic.Magic) error {
	buf, err := ctx.Superblock(m, superblockSize)
	if err != nil {
		return err
	}

	bs := bootSector(buf)

	geo, err := validate(ctx, m, bs)
	if err != nil {
		return err
	}

	var info volumeInfo

	switch {
	case bs.fatLength() != 0:
		info, err = probeFAT16(ctx, bs, geo)
	case bs.fat32Length() != 0:
		info, err = probeFAT32(ctx, bs, geo)
	}

	if err != nil {
		return err
	}

	if info.bootLabel != nil && !bytes.Equal(info.bootLabel, noName) {
		ctx.SetIDLabel(result.LabelFATBoot, info.bootLabel)
	}

	if info.label != nil {
		ctx.SetLabel(info.label)
	}

	if s := info.serial; s != nil {
		ctx.SprintfUUID(s, "%02X%02X-%02X%02X", s[3], s[2], s[1], s[0])
	}

	if info.version != "" {
		ctx.SetVersion("%s", info.version)
	}

	sectorSize := uint64(bs.sectorSize())

	ctx.SetBlockSize(sectorSize)
	ctx.SetFSBlockSize(sectorSize * uint64(bs.clusterSize()))
	ctx.SetFSSize(uint64(bs.sectorCount()) * sectorSize)

	return nil
}

func probeFAT16(ctx *probe.Context, bs bootSector, geo geometry) (volumeInfo, error) {
	var info volumeInfo

	rootStart := (uint64(bs.reserved()) + uint64(geo.fatSize)) * uint64(bs.sectorSize())

	label, err := findLabel(ctx, rootStart, uint32(bs.dirEntries()))
	if err != nil && !probe.IsNotThisFormat(err) {
		return info, err
	}

	info.label = label

	switch bs.msExtBootSign() {
	case 0x29:
		info.bootLabel = bs.msLabel()
		info.serial = bs.msSerial()
	case 0x28:
		info.serial = bs.msSerial()
	}

	ctx.SetString(result.SecType, "msdos")

	switch {
	case geo.clusterCount < fat12Max:
		info.version = "FAT12"
	case geo.clusterCount < fat16Max:
		info.version = "FAT16"
	}

	return info, nil
}

func probeFAT32(ctx *probe.Context, bs bootSector, geo geometry) (volumeInfo, error) {
	info := volumeInfo{
		version: "FAT32",
		serial:  bs.vsSerial(),
	}

	sectorSize := uint64(bs.sectorSize())
	clusterBytes := uint64(bs.clusterSize()) * sectorSize
	dataStart := uint64(bs.reserved()) + uint64(geo.fatSize)
	entries := uint64(bs.fat32Length()) * sectorSize / 4

	next := uint64(bs.rootCluster())

	for range maxClusterChain - 1 {
		if next == 0 || next >= entries {
			break
		}

		off := (dataStart + (next-2)*uint64(bs.clusterSize())) * sectorSize

		label, err := findLabel(ctx, off, uint32(clusterBytes/dirEntrySize))
		if err != nil {
			if !probe.IsNotThisFormat(err) {
				return info, err
			}

			break
		}

		if label != nil {
			info.label = label

			break
		}

		fatEntry, err := ctx.Buffer(uint64(bs.reserved())*sectorSize+next*4, 4)
		if err != nil {
			break
		}

		next = uint64(binary.LittleEndian.Uint32(fatEntry) & 0x0fffffff)
	}

	if bs.vsExtBootSign() == 0x29 {
		info.bootLabel = bs.vsLabel()
	}

	// some formatters leave the FSInfo signatures zeroed
	if sector := bs.fsInfoSector(); sector != 0 {
		fsInfo, err := ctx.Buffer(uint64(sector)*sectorSize, fsInfoSize)
		if err != nil {
			return info, err
		}

		if !hasAny(fsInfo[:4], fsInfoSignature1) || !hasAny(fsInfo[484:488], fsInfoSignature2) {
			ctx.Logger().Debug("invalid FAT32 FSInfo signature", zap.Uint16("sector", sector))

			return info, probe.Malformedf("invalid FSInfo signature")
		}
	}

	return info, nil
}

func hasAny(buf []byte, candidates [][]byte) bool {
	for _, c := range candidates {
		if bytes.Equal(buf, c) {
			return true
		}
	}

	return false
}
