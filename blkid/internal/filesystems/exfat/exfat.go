// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package exfat probes exFAT filesystems.
package exfat

import (
	"bytes"
	"encoding/binary"

	"golang.org/x/text/encoding/unicode"

	"github.com/siderolabs/go-blkid/blkid/internal/magic"
	"github.com/siderolabs/go-blkid/blkid/internal/probe"
	"github.com/siderolabs/go-blkid/blkid/internal/utils"
)

const (
	superblockSize = 512

	firstDataCluster = 2
	lastDataCluster  = 0xffffff6

	entrySize  = 32
	entryEOD   = 0x00
	entryLabel = 0x83

	maxDirSize = 256 * 1024 * 1024
)

var exfatMagic = magic.Magic{
	Value:    []byte("EXFAT   "),
	SBOffset: 3,
}

type superblock []byte

func (sb superblock) volumeLength() uint64 { return binary.LittleEndian.Uint64(sb[72:]) }
func (sb superblock) fatOffset() uint32 { return binary.LittleEndian.Uint32(sb[80:]) }
func (sb superblock) fatLength() uint32 { return binary.LittleEndian.Uint32(sb[84:]) }
func (sb superblock) clusterHeapOffset() uint32 { return binary.LittleEndian.Uint32(sb[88:]) }
func (sb superblock) clusterCount() uint32 { return binary.LittleEndian.Uint32(sb[92:]) }
func (sb superblock) rootCluster() uint32 { return binary.LittleEndian.Uint32(sb[96:]) }
func (sb superblock) serial() []byte { return sb[100:104] }
func (sb superblock) versionMinor() uint8 { return sb[104] }
func (sb superblock) versionMajor() uint8 { return sb[105] }
func (sb superblock) sectorShift() uint8 { return sb[108] }
func (sb superblock) clusterShift() uint8 { return sb[109] }
func (sb superblock) numberOfFats() uint8 { return sb[110] }
func (sb superblock) bootSignature() uint16 { return binary.LittleEndian.Uint16(sb[510:]) }

func (sb superblock) blockSize() uint64 {
	if sb.sectorShift() >= 32 {
		return 0
	}

	return 1 << sb.sectorShift()
}

func (sb superblock) clusterSize() uint64 {
	if sb.clusterShift() >= 32 {
		return 0
	}

	return sb.blockSize() << sb.clusterShift()
}

func (sb superblock) clusterOffset(cluster uint32) uint64 {
	block := uint64(sb.clusterHeapOffset()) + uint64(cluster-firstDataCluster)<<sb.clusterShift()

	return block << sb.sectorShift()
}

// Probe for the filesystem.
type Probe struct{}

// Name returns the name of the filesystem.
func (p *Probe) Name() string {
	return "exfat"
}

// Usage returns the usage class.
func (p *Probe) Usage() probe.Usage {
	return probe.UsageFilesystem
}

// Magic returns the magic value for the filesystem.
func (p *Probe) Magic() []*magic.Magic {
	return []*magic.Magic{&exfatMagic}
}

// Probe runs the further inspection and returns the result if successful.
func (p *Probe) Probe(ctx *probe.Context, m *magic.Magic) error {
	buf, err := ctx.Superblock(m, superblockSize)
	if err != nil {
		return err
	}

	sb := superblock(buf)

	if err = validate(ctx, sb, ctx.VerifyChecksum); err != nil {
		return err
	}

	label, err := findLabel(ctx, sb)
	if err != nil {
		return err
	}

	if label != nil {
		ctx.SetUTF16Label(label, unicode.LittleEndian)
	}

	serial := sb.serial()

	ctx.SprintfUUID(serial, "%02X%02X-%02X%02X", serial[3], serial[2], serial[1], serial[0])
	ctx.SetVersion("%d.%d", sb.versionMajor(), sb.versionMinor())

	ctx.SetFSBlockSize(sb.blockSize())
	ctx.SetBlockSize(sb.blockSize())
	ctx.SetFSSize(sb.blockSize() * sb.volumeLength())

	return nil
}

// Is returns true if the device holds a valid exFAT boot region.
//
// The result store is never modified.
func Is(ctx *probe.Context) bool {
	buf, err := ctx.Buffer(0, superblockSize)
	if err != nil || !utils.HasBytesAt(buf, int(exfatMagic.SBOffset), exfatMagic.Value) {
		return false
	}

	return validate(ctx, superblock(buf), strictChecksum) == nil
}

func strictChecksum(computed, expected uint64) error {
	if computed != expected {
		return probe.ErrChecksumMismatch
	}

	return nil
}

func inRange[T uint8 | uint32 | uint64](v, low, high T) bool {
	return v >= low && v <= high
}

func validate(ctx *probe.Context, sb superblock, verify func(computed, expected uint64) error) error {
	switch {
	case sb.bootSignature() != 0xaa55:
		return probe.Malformedf("bad boot signature %#x", sb.bootSignature())
	case sb.clusterSize() == 0:
		return probe.Malformedf("bad cluster size")
	case !bytes.Equal(sb[0:3], []byte{0xeb, 0x76, 0x90}):
		return probe.Malformedf("bad jump boot")
	case !utils.IsZero(sb[11:64]):
		return probe.Malformedf("reserved area is not zeroed")
	case !inRange(sb.numberOfFats(), 1, 2):
		return probe.Malformedf("bad number of FATs %d", sb.numberOfFats())
	case !inRange(sb.sectorShift(), 9, 12):
		return probe.Malformedf("bad sector shift %d", sb.sectorShift())
	case !inRange(sb.clusterShift(), 0, 25-sb.sectorShift()):
		return probe.Malformedf("bad cluster shift %d", sb.clusterShift())
	}

	fats := uint64(sb.fatLength()) * uint64(sb.numberOfFats())
	heap := uint64(sb.clusterHeapOffset())

	switch {
	case heap < fats || !inRange(uint64(sb.fatOffset()), 24, heap-fats):
		return probe.Malformedf("bad FAT offset")
	case !inRange(heap, uint64(sb.fatOffset())+fats, 1<<31):
		return probe.Malformedf("bad cluster heap offset")
	case !inRange(uint64(sb.rootCluster()), 2, uint64(sb.clusterCount())+1):
		return probe.Malformedf("bad root directory cluster")
	}

	sectorSize := sb.blockSize()

	// 11 sectors are checksummed, the 12th repeats the expected value
	data, err := ctx.Buffer(0, sectorSize*12)
	if err != nil {
		return err
	}

	checksum := uint64(bootChecksum(data[:sectorSize*11]))

	for off := sectorSize * 11; off < sectorSize*12; off += 4 {
		if err = verify(checksum, uint64(binary.LittleEndian.Uint32(data[off:]))); err != nil {
			return err
		}
	}

	return nil
}

func bootChecksum(sectors []byte) uint32 {
	var checksum uint32

	for i, b := range sectors {
		if i == 106 || i == 107 || i == 112 {
			continue
		}

		checksum = (checksum<<31 | checksum>>1) + uint32(b)
	}

	return checksum
}

// findLabel walks the root directory and returns the UTF-16 volume label, if any.
func findLabel(ctx *probe.Context, sb superblock) ([]byte, error) {
	cluster := sb.rootCluster()
	offset := sb.clusterOffset(cluster)
	clusterSize := sb.clusterSize()

	for range maxDirSize / entrySize {
		entry, err := ctx.Buffer(offset, entrySize)
		if err != nil {
			if probe.IsNotThisFormat(err) {
				return nil, nil
			}

			return nil, err
		}

		switch entry[0] {
		case entryEOD:
			return nil, nil
		case entryLabel:
			length := min(int(entry[1])*2, 22)

			return entry[2 : 2+length], nil
		}

		offset += entrySize

		if offset%clusterSize == 0 {
			fat, err := ctx.Buffer(uint64(sb.fatOffset())<<sb.sectorShift()+uint64(cluster)*4, 4)
			if err != nil {
				if probe.IsNotThisFormat(err) {
					return nil, nil
				}

				return nil, err
			}

			cluster = binary.LittleEndian.Uint32(fat)

			if cluster < firstDataCluster || cluster > lastDataCluster {
				return nil, nil
			}

			offset = sb.clusterOffset(cluster)
		}
	}

	return nil, nil
}
