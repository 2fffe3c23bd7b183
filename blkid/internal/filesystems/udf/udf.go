// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package udf probes UDF filesystems.
package udf

import (
	"encoding/binary"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"

	"github.com/siderolabs/go-blkid/blkid/internal/magic"
	"github.com/siderolabs/go-blkid/blkid/internal/probe"
	"github.com/siderolabs/go-blkid/blkid/internal/result"
	"github.com/siderolabs/go-blkid/blkid/internal/utils"
)

const (
	vsdOffset = 0x8000
	vsdSize   = 0x800
	vsdMax    = 64

	descriptorSize = 512
	anchorBlock    = 256

	tagPrimary   = 1
	tagAnchor    = 2
	tagLogical   = 6
	tagIntegrity = 9
)

var magics = func() []*magic.Magic {
	ids := []string{"BEA01", "BOOT2", "CD001", "CDW02", "NSR02", "NSR03", "TEA01"}
	res := make([]*magic.Magic, 0, len(ids))

	for _, id := range ids {
		res = append(res, &magic.Magic{Value: []byte(id), KBOffset: vsdOffset / 1024, SBOffset: 1})
	}

	return res
}()

// descriptor is a tagged volume descriptor.
type descriptor []byte

func (d descriptor) tagID() uint16    { return binary.LittleEndian.Uint16(d[0:]) }
func (d descriptor) location() uint32 { return binary.LittleEndian.Uint32(d[12:]) }

// anchor volume descriptor pointer
func (d descriptor) extentLength() uint32   { return binary.LittleEndian.Uint32(d[16:]) }
func (d descriptor) extentLocation() uint32 { return binary.LittleEndian.Uint32(d[20:]) }

// primary volume descriptor
func (d descriptor) volumeID() dstring    { return dstring(d[24:56]) }
func (d descriptor) volumeSetID() dstring { return dstring(d[72:200]) }

// logical volume descriptor
func (d descriptor) logicalVolumeID() dstring  { return dstring(d[84:212]) }
func (d descriptor) partitionMaps() uint32     { return binary.LittleEndian.Uint32(d[268:]) }
func (d descriptor) integrityLength() uint32   { return binary.LittleEndian.Uint32(d[432:]) }
func (d descriptor) integrityLocation() uint32 { return binary.LittleEndian.Uint32(d[436:]) }

// dstring is an OSTA compressed unicode string: compression ID, characters and the used length.
type dstring []byte

func (s dstring) chars() []byte {
	n := int(s[len(s)-1])
	if n > 0 {
		n--
	}

	return s[1 : 1+min(n, len(s)-2)]
}

// decode returns false for unknown compression IDs.
func (s dstring) decode() ([]byte, string, bool) {
	raw := s.chars()

	switch s[0] {
	case 8:
		decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(utils.TrimLabel(raw))
		if err != nil {
			return nil, "", false
		}

		return raw, string(decoded), true
	case 16:
		return raw, utils.DecodeUTF16(raw, unicode.BigEndian), true
	default:
		return nil, "", false
	}
}

func isHex(c byte) bool {
	return c >= '0' && c <= '9' || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F'
}

// volumeSetUUID derives an identifier from the first 16 bytes of the UTF-8 volume set ID.
//
// Hex digits are used as is (lowercased), anything else is hex encoded.
func volumeSetUUID(s dstring) (string, bool) {
	_, decoded, ok := s.decode()
	if !ok {
		return "", false
	}

	var buf [16]byte

	n := 0

	for _, r := range decoded {
		size := utf8.RuneLen(r)
		if size < 0 || n+size > len(buf) {
			break
		}

		n += utf8.EncodeRune(buf[n:], r)
	}

	if n < 8 {
		return "", false
	}

	hexPrefix := len(buf)

	for i, c := range buf {
		if !isHex(c) {
			hexPrefix = i

			break
		}
	}

	switch {
	case hexPrefix < 8:
		return fmt.Sprintf("%x", buf[:8]), true
	case hexPrefix < 16:
		return strings.ToLower(string(buf[:8])) + fmt.Sprintf("%x", buf[8:12]), true
	default:
		return strings.ToLower(string(buf[:])), true
	}
}

// Probe for UDF filesystems.
type Probe struct{}

// Name returns the name of the format.
func (p *Probe) Name() string {
	return "udf"
}

// Usage returns the usage class.
func (p *Probe) Usage() probe.Usage {
	return probe.UsageFilesystem
}

// Magic returns the magic values for the format.
func (p *Probe) Magic() []*magic.Magic {
	return magics
}

// Tolerant reports that UDF may coexist with ISO9660 on bridge discs.
func (p *Probe) Tolerant() bool {
	return true
}

// Probe runs the further inspection and returns the result if successful.
func (p *Probe) Probe(ctx *probe.Context, _ *magic.Magic) error {
	if err := findNSR(ctx); err != nil {
		return err
	}

	anchor, bs, err := findAnchor(ctx)
	if err != nil {
		return err
	}

	if anchor == nil {
		// a volume recognition sequence without a readable anchor still counts
		return nil
	}

	var s state

	if err = s.readVolumeDescriptors(ctx, anchor, bs); err != nil {
		return err
	}

	return s.readIntegrity(ctx, bs)
}

// findNSR walks the volume recognition sequence looking for an NSR descriptor.
func findNSR(ctx *probe.Context) error {
	for i := range uint64(vsdMax) {
		buf, err := ctx.Buffer(vsdOffset+i*vsdSize, 7)
		if err != nil {
			return err
		}

		if id := string(buf[1:6]); id == "NSR02" || id == "NSR03" {
			return nil
		}
	}

	return probe.ErrNotThisFormat
}

// findAnchor locates the anchor volume descriptor pointer, which also gives the block size.
func findAnchor(ctx *probe.Context) (descriptor, uint64, error) {
	for _, bs := range []uint64{uint64(ctx.SectorSize()), 512, 1024, 2048, 4096} {
		buf, err := ctx.Buffer(anchorBlock*bs, descriptorSize)
		if err != nil {
			return nil, 0, err
		}

		if d := descriptor(buf); d.tagID() == tagAnchor {
			return d, bs, nil
		}
	}

	return nil, 0, nil
}

type state struct {
	haveVolumeID, haveUUID, haveVolumeSetID, haveLogicalVolumeID, haveLabel bool

	partitionMaps     uint32
	integrityCount    uint32
	integrityLocation uint32
}

func (s *state) complete() bool {
	return s.haveVolumeID && s.haveUUID && s.haveVolumeSetID && s.haveLogicalVolumeID && s.haveLabel &&
		s.partitionMaps != 0 && s.integrityCount != 0 && s.integrityLocation != 0
}

func setID(ctx *probe.Context, name string, str dstring) bool {
	_, decoded, ok := str.decode()
	if !ok || decoded == "" {
		return false
	}

	ctx.SetString(name, decoded)

	return true
}

func (s *state) readVolumeDescriptors(ctx *probe.Context, anchor descriptor, bs uint64) error {
	count := uint64(anchor.extentLength()) / bs
	loc := uint64(anchor.extentLocation())

	for b := range count {
		buf, err := ctx.Buffer((loc+b)*bs, descriptorSize)
		if err != nil {
			return err
		}

		d := descriptor(buf)

		if d.tagID() == 0 || uint64(d.location()) != loc+b {
			break
		}

		switch d.tagID() {
		case tagPrimary:
			if !s.haveVolumeID {
				s.haveVolumeID = setID(ctx, result.VolumeID, d.volumeID())
			}

			if !s.haveUUID {
				if id, ok := volumeSetUUID(d.volumeSetID()); ok {
					ctx.SetString(result.UUID, id)

					s.haveUUID = true
				}
			}

			if !s.haveVolumeSetID {
				s.haveVolumeSetID = setID(ctx, result.VolumeSetID, d.volumeSetID())
			}
		case tagLogical:
			if s.partitionMaps == 0 || s.integrityCount == 0 || s.integrityLocation == 0 {
				s.partitionMaps = d.partitionMaps()
				s.integrityCount = uint32(uint64(d.integrityLength()) / bs)
				s.integrityLocation = d.integrityLocation()
			}

			if !s.haveLabel {
				if raw, decoded, ok := d.logicalVolumeID().decode(); ok && decoded != "" {
					ctx.Set(result.LabelRaw, raw, result.KindRaw)
					ctx.SetString(result.Label, decoded)

					s.haveLabel = true
				}
			}

			if !s.haveLogicalVolumeID {
				s.haveLogicalVolumeID = setID(ctx, result.LogicalVolID, d.logicalVolumeID())
			}
		}

		if s.complete() {
			break
		}
	}

	return nil
}

// readIntegrity reads the minimum UDF read revision from the logical volume integrity descriptor.
func (s *state) readIntegrity(ctx *probe.Context, bs uint64) error {
	if s.integrityCount == 0 || s.integrityLocation == 0 || s.partitionMaps == 0 {
		return nil
	}

	loc := uint64(s.integrityLocation)

	for b := range uint64(s.integrityCount) {
		buf, err := ctx.Buffer((loc+b)*bs, 16)
		if err != nil {
			return err
		}

		d := descriptor(buf)

		if d.tagID() == 0 || uint64(d.location()) != loc+b {
			return nil
		}

		if d.tagID() != tagIntegrity {
			continue
		}

		// implementation use follows the partition map tables
		impUse, err := ctx.Buffer((loc+b)*bs+80+8*uint64(s.partitionMaps), 46)
		if err != nil {
			return err
		}

		if rev := binary.LittleEndian.Uint16(impUse[40:]); rev != 0 {
			ctx.SetVersion("%d.%02d", rev>>8, rev&0xff)

			return nil
		}
	}

	return nil
}
