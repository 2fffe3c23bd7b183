// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package probetest

import (
	"encoding/binary"
	"unicode/utf16"

	"github.com/siderolabs/go-blkid/blkid/internal/utils"
	"github.com/siderolabs/go-blkid/blkid/internal/volumes/mdraid"
)

// ExFAT builds a 64 KiB exFAT image with volume serial 1234-5678.
//
// The root directory at cluster 4 holds only the volume label entry, or nothing if label is empty.
func ExFAT(label string) []byte {
	img := make([]byte, 64*1024)

	copy(img[0:], []byte{0xeb, 0x76, 0x90})
	copy(img[3:], "EXFAT   ")
	binary.LittleEndian.PutUint64(img[72:], 128)    // VolumeLength
	binary.LittleEndian.PutUint32(img[80:], 24)     // FatOffset
	binary.LittleEndian.PutUint32(img[84:], 8)      // FatLength
	binary.LittleEndian.PutUint32(img[88:], 32)     // ClusterHeapOffset
	binary.LittleEndian.PutUint32(img[92:], 100)    // ClusterCount
	binary.LittleEndian.PutUint32(img[96:], 4)      // FirstClusterOfRootDirectory
	copy(img[100:], []byte{0x78, 0x56, 0x34, 0x12}) // VolumeSerialNumber
	img[105] = 1                                    // FileSystemRevision major
	img[108] = 9                                    // BytesPerSectorShift
	img[109] = 3                                    // SectorsPerClusterShift
	img[110] = 1                                    // NumberOfFats
	binary.LittleEndian.PutUint16(img[510:], 0xaa55)

	var checksum uint32

	for i, b := range img[:11*512] {
		if i == 106 || i == 107 || i == 112 {
			continue
		}

		checksum = (checksum<<31 | checksum>>1) + uint32(b)
	}

	for off := 11 * 512; off < 12*512; off += 4 {
		binary.LittleEndian.PutUint32(img[off:], checksum)
	}

	// end of chain for the root directory cluster
	binary.LittleEndian.PutUint32(img[24*512+4*4:], 0xffffffff)

	if label != "" {
		root := (32 + 2<<3) * 512
		units := utf16.Encode([]rune(label))

		img[root] = 0x83
		img[root+1] = byte(len(units))

		for i, u := range units {
			binary.LittleEndian.PutUint16(img[root+2+i*2:], u)
		}
	}

	return img
}

// LUKS1 builds a LUKS1 header with the given UUID.
func LUKS1(uuid string) []byte {
	img := make([]byte, 64*1024)

	copy(img, "LUKS\xba\xbe")
	binary.BigEndian.PutUint16(img[6:], 1)
	copy(img[8:], "aes")
	copy(img[40:], "xts-plain64")
	copy(img[72:], "sha256")
	copy(img[168:], uuid)

	return img
}

// LUKS2 builds an image of the given size with a LUKS2 header at off.
//
// Headers at a non-zero offset carry the secondary magic.
func LUKS2(size int, off uint64, uuid, label string) []byte {
	img := make([]byte, size)
	hdr := img[off:]

	if off == 0 {
		copy(hdr, "LUKS\xba\xbe")
	} else {
		copy(hdr, "SKUL\xba\xbe")
	}

	binary.BigEndian.PutUint16(hdr[6:], 2)
	binary.BigEndian.PutUint64(hdr[8:], 16384)
	copy(hdr[24:], label)
	copy(hdr[72:], "sha256")
	copy(hdr[168:], uuid)
	binary.BigEndian.PutUint64(hdr[256:], off)

	return img
}

// LVM2PVUUID is the physical volume identifier written by LVM2.
const LVM2PVUUID = "Xy3bXcEYvjbmd0bOy3PnZ3QvB7JSuUpq"

// LVM2 writes an LVM2 label into the given sector (0 to 3) of img.
func LVM2(img []byte, sector int) []byte {
	lbl := img[sector*512 : (sector+1)*512]

	copy(lbl, "LABELONE")
	binary.LittleEndian.PutUint64(lbl[8:], uint64(sector))
	binary.LittleEndian.PutUint32(lbl[20:], 32)
	copy(lbl[24:], "LVM2 001")
	copy(lbl[32:], LVM2PVUUID)
	binary.LittleEndian.PutUint32(lbl[16:], utils.LVMCRC(utils.LVMCRCSeed, lbl[20:]))

	return img
}

// MD1 writes an MD v1.x superblock at off into img.
func MD1(img []byte, off uint64, uuid [16]byte, name string) []byte {
	sb := img[off : off+256]

	binary.LittleEndian.PutUint32(sb, 0xa92b4efc)
	binary.LittleEndian.PutUint32(sb[4:], 1)
	copy(sb[16:32], uuid[:])
	copy(sb[32:64], name)
	binary.LittleEndian.PutUint64(sb[144:], off>>9)
	copy(sb[168:184], uuid[:])
	sb[168] ^= 0xff
	binary.LittleEndian.PutUint32(sb[216:], mdraid.Checksum(sb))

	return img
}

// ExtUUID is the filesystem UUID written by Ext.
var ExtUUID = [16]byte{0x5d, 0x3b, 0x84, 0x8e, 0x0a, 0x3f, 0x4b, 0xd2, 0x8c, 0x16, 0x6c, 0x6e, 0x8a, 0x7e, 0x42, 0x21}

// Ext writes an ext superblock with 4 KiB blocks into img.
//
// The checksum is filled in when roCompat has metadata_csum.
func Ext(img []byte, compat, incompat, roCompat uint32, label string) []byte {
	sb := img[1024 : 2*1024]

	binary.LittleEndian.PutUint32(sb[0:], 2048)
	binary.LittleEndian.PutUint32(sb[4:], 8192)
	binary.LittleEndian.PutUint32(sb[24:], 2)
	binary.LittleEndian.PutUint16(sb[0x38:], 0xef53)
	binary.LittleEndian.PutUint32(sb[76:], 1)
	binary.LittleEndian.PutUint32(sb[92:], compat)
	binary.LittleEndian.PutUint32(sb[96:], incompat)
	binary.LittleEndian.PutUint32(sb[100:], roCompat)
	copy(sb[104:120], ExtUUID[:])
	copy(sb[120:136], label)

	if compat&0x4 != 0 {
		copy(sb[208:224], ExtUUID[:])
		sb[208] = 0xaa
	}

	if roCompat&0x400 != 0 {
		binary.LittleEndian.PutUint32(sb[0x3fc:], utils.CRC32c(sb[:0x3fc]))
	}

	return img
}

// Ext4 writes a typical ext4 superblock: journal, extents and metadata checksums.
func Ext4(img []byte, label string) []byte {
	return Ext(img, 0x4, 0x2|0x40|0x80, 0x1|0x2|0x400, label)
}

// Swap builds a SWAPSPACE2 area with 4 KiB pages.
func Swap(size int, uuid [16]byte, label string) []byte {
	img := make([]byte, size)

	binary.LittleEndian.PutUint32(img[1024:], 1)
	binary.LittleEndian.PutUint32(img[1028:], uint32(size/4096-1))
	copy(img[1036:1052], uuid[:])
	copy(img[1052:1068], label)
	copy(img[4096-10:], "SWAPSPACE2")

	return img
}
