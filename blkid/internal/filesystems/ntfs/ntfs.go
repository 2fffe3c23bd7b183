// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package ntfs probes NTFS filesystems.
package ntfs

import (
	"bytes"
	"encoding/binary"
	"math"

	"golang.org/x/text/encoding/unicode"

	"github.com/siderolabs/go-blkid/blkid/internal/magic"
	"github.com/siderolabs/go-blkid/blkid/internal/probe"
	"github.com/siderolabs/go-blkid/blkid/internal/utils"
)

const (
	superblockSize = 84
	maxClusterSize = 2 * 1024 * 1024

	mftRecordVolume = 3
	mftRecordHeader = 48

	attrVolumeName = 0x60
	attrEnd        = 0xffffffff
)

var (
	ntfsMagic = magic.Magic{
		Value:    []byte("NTFS    "),
		SBOffset: 3,
	}

	fileMagic = []byte("FILE")
)

type superblock []byte

func (sb superblock) sectorSize() uint16 { return binary.LittleEndian.Uint16(sb[11:]) }
func (sb superblock) sectorsPerCluster() uint8 { return sb[13] }

// clusterSectors decodes sectors_per_cluster, values 240..249 are a shift of 256 - spc.
func (sb superblock) clusterSectors() (uint32, bool) {
	spc := sb.sectorsPerCluster()

	switch {
	case spc >= 240 && spc <= 249:
		return 1 << (256 - uint32(spc)), true
	case spc != 0 && spc <= 128 && utils.IsPowerOf2(spc):
		return uint32(spc), true
	default:
		return 0, false
	}
}
func (sb superblock) reservedSectors() uint16 { return binary.LittleEndian.Uint16(sb[14:]) }
func (sb superblock) fats() uint8 { return sb[16] }
func (sb superblock) rootEntries() uint16 { return binary.LittleEndian.Uint16(sb[17:]) }
func (sb superblock) sectors() uint16 { return binary.LittleEndian.Uint16(sb[19:]) }
func (sb superblock) sectorsPerFAT() uint16 { return binary.LittleEndian.Uint16(sb[22:]) }
func (sb superblock) largeSectors() uint32 { return binary.LittleEndian.Uint32(sb[32:]) }
func (sb superblock) numberOfSectors() uint64 { return binary.LittleEndian.Uint64(sb[40:]) }
func (sb superblock) mftCluster() uint64 { return binary.LittleEndian.Uint64(sb[48:]) }
func (sb superblock) mftMirrorCluster() uint64 { return binary.LittleEndian.Uint64(sb[56:]) }
func (sb superblock) clustersPerMFTRecord() int8 { return int8(sb[64]) }
func (sb superblock) volumeSerial() []byte { return sb[72:80] }

func (sb superblock) reservedZero() bool {
	return sb.reservedSectors() == 0 &&
		sb.rootEntries() == 0 &&
		sb.sectors() == 0 &&
		sb.sectorsPerFAT() == 0 &&
		sb.largeSectors() == 0 &&
		sb.fats() == 0
}

// mftRecordSize decodes clusters_per_mft_record, negative values are a shift.
func (sb superblock) mftRecordSize(clusterSize uint32) (uint32, bool) {
	cpr := sb.clustersPerMFTRecord()

	switch {
	case cpr >= -31 && cpr <= -9:
		return 1 << uint(-cpr), true
	case cpr > 0 && cpr <= 64 && utils.IsPowerOf2(uint8(cpr)):
		return uint32(cpr) * clusterSize, true
	default:
		return 0, false
	}
}

type volume struct {
	sb          superblock
	label       []byte
	clusterSize uint32
}

// parse validates the boot sector and reads the volume MFT record.
func parse(ctx *probe.Context, m *magic.Magic) (volume, error) {
	buf, err := ctx.Superblock(m, superblockSize)
	if err != nil {
		return volume{}, err
	}

	if !ntfsMagic.Matches(buf[ntfsMagic.SBOffset:]) {
		return volume{}, probe.ErrNotThisFormat
	}

	sb := superblock(buf)

	sectorSize := uint32(sb.sectorSize())

	if sectorSize < 256 || sectorSize > 4096 || !utils.IsPowerOf2(sectorSize) {
		return volume{}, probe.Malformedf("invalid sector size %d", sectorSize)
	}

	spc, ok := sb.clusterSectors()
	if !ok {
		return volume{}, probe.Malformedf("invalid sectors per cluster %d", sb.sectorsPerCluster())
	}

	clusterSize := uint64(sectorSize) * uint64(spc)

	if clusterSize > maxClusterSize {
		return volume{}, probe.Malformedf("cluster too large")
	}

	if !sb.reservedZero() {
		return volume{}, probe.Malformedf("nonzero reserved BPB fields")
	}

	recordSize, ok := sb.mftRecordSize(uint32(clusterSize))
	if !ok || recordSize < mftRecordHeader {
		return volume{}, probe.Malformedf("invalid MFT record size")
	}

	clusters := sb.numberOfSectors() / uint64(spc)

	if sb.mftCluster() > clusters || sb.mftMirrorCluster() > clusters {
		return volume{}, probe.Malformedf("MFT outside of the volume")
	}

	off := sb.mftCluster() * clusterSize

	mft, err := ctx.Buffer(off, uint64(recordSize))
	if err != nil {
		return volume{}, err
	}

	if !bytes.HasPrefix(mft, fileMagic) {
		return volume{}, probe.Malformedf("bad $MFT record")
	}

	mft, err = ctx.Buffer(off+mftRecordVolume*uint64(recordSize), uint64(recordSize))
	if err != nil {
		return volume{}, err
	}

	if !bytes.HasPrefix(mft, fileMagic) {
		return volume{}, probe.Malformedf("bad $Volume record")
	}

	return volume{sb: sb, label: volumeName(mft), clusterSize: uint32(clusterSize)}, nil
}

// volumeName walks the attributes of the $Volume record.
func volumeName(rec []byte) []byte {
	attrOff := uint64(binary.LittleEndian.Uint16(rec[20:]))
	allocated := uint64(binary.LittleEndian.Uint32(rec[28:]))

	for attrOff+24 <= uint64(len(rec)) && attrOff <= allocated {
		attr := rec[attrOff:]

		typ := binary.LittleEndian.Uint32(attr)
		length := binary.LittleEndian.Uint32(attr[4:])

		if length == 0 || typ == attrEnd {
			break
		}

		if typ == attrVolumeName {
			valLen := uint64(binary.LittleEndian.Uint32(attr[16:]))
			valOff := uint64(binary.LittleEndian.Uint16(attr[20:]))

			if valOff+valLen > uint64(len(attr)) {
				return nil
			}

			return attr[valOff : valOff+valLen]
		}

		if math.MaxUint32-uint64(length) < attrOff {
			break
		}

		attrOff += uint64(length)
	}

	return nil
}

// Is returns true if the device carries a valid NTFS boot sector.
//
// The result store is never modified.
func Is(ctx *probe.Context) bool {
	_, err := parse(ctx, &ntfsMagic)

	return err == nil
}

// Probe for the filesystem.
type Probe struct{}

// Name returns the name of the filesystem.
func (p *Probe) Name() string {
	return "ntfs"
}

// Usage returns the usage class.
func (p *Probe) Usage() probe.Usage {
	return probe.UsageFilesystem
}

// Magic returns the magic value for the filesystem.
func (p *Probe) Magic() []*magic.Magic {
	return []*magic.Magic{&ntfsMagic}
}

// Probe runs the further inspection and returns the result if successful.
func (p *Probe) Probe(ctx *probe.Context, m *magic.Magic) error {
	vol, err := parse(ctx, m)
	if err != nil {
		return err
	}

	if vol.label != nil {
		ctx.SetUTF16Label(vol.label, unicode.LittleEndian)
	}

	serial := vol.sb.volumeSerial()

	ctx.SprintfUUID(serial, "%016X", binary.LittleEndian.Uint64(serial))
	ctx.SetBlockSize(uint64(vol.sb.sectorSize()))
	ctx.SetFSBlockSize(uint64(vol.clusterSize))
	ctx.SetFSSize(vol.sb.numberOfSectors() * uint64(vol.sb.sectorSize()))

	return nil
}
