// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package iso9660 probes ISO9660 filesystems.
package iso9660

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/text/encoding/unicode"

	"github.com/siderolabs/go-blkid/blkid/internal/magic"
	"github.com/siderolabs/go-blkid/blkid/internal/probe"
	"github.com/siderolabs/go-blkid/blkid/internal/result"
)

const (
	superblockOffset = 0x8000
	sectorSize       = 0x800

	descriptorSize = 881

	vdMax           = 16
	vdEnd           = 0xff
	vdBootRecord    = 0
	vdSupplementary = 2
)

var (
	isoMagic  = magic.Magic{Value: []byte("CD001"), KBOffset: superblockOffset / 1024, SBOffset: 1}
	hsfsMagic = magic.Magic{Value: []byte("CDROM"), KBOffset: superblockOffset / 1024, SBOffset: 9}
)

// Joliet escape sequences for UCS-2 levels 1, 2 and 3.
var jolietEscapes = []string{"%/@", "%/C", "%/E"}

// volumeDescriptor covers primary and supplementary volume descriptors.
type volumeDescriptor []byte

func (vd volumeDescriptor) typ() byte                { return vd[0] }
func (vd volumeDescriptor) systemID() []byte         { return vd[8:40] }
func (vd volumeDescriptor) volumeID() []byte         { return vd[40:72] }
func (vd volumeDescriptor) spaceSize() uint32        { return binary.LittleEndian.Uint32(vd[80:]) }
func (vd volumeDescriptor) escapes() string          { return string(vd[88:91]) }
func (vd volumeDescriptor) logicalBlockSize() uint16 { return binary.LittleEndian.Uint16(vd[128:]) }
func (vd volumeDescriptor) volumeSetID() []byte      { return vd[190:318] }
func (vd volumeDescriptor) publisherID() []byte      { return vd[318:446] }
func (vd volumeDescriptor) dataPreparerID() []byte   { return vd[446:574] }
func (vd volumeDescriptor) applicationID() []byte    { return vd[574:702] }
func (vd volumeDescriptor) created() []byte          { return vd[813:830] }
func (vd volumeDescriptor) modified() []byte         { return vd[830:847] }
func (vd volumeDescriptor) bootSystemID() []byte     { return vd[7:39] }

func (vd volumeDescriptor) isJoliet() bool {
	for _, esc := range jolietEscapes {
		if vd.escapes() == esc {
			return true
		}
	}

	return false
}

// dateUUID renders a descriptor date (16 digits and a timezone offset) as
// YYYY-MM-DD-HH-MM-SS-hh, an unset date yields "".
func dateUUID(date []byte) string {
	digits := date[:16]

	unset := date[16] == 0

	for _, c := range digits {
		if c != '0' {
			unset = false

			break
		}
	}

	if unset {
		return ""
	}

	return fmt.Sprintf("%s-%s-%s-%s-%s-%s-%s",
		digits[0:4], digits[4:6], digits[6:8], digits[8:10], digits[10:12], digits[12:14], digits[14:16])
}

// asciiEqualsUTF16BE compares an 8-bit label with the UTF-16BE Joliet one.
func asciiEqualsUTF16BE(ascii, utf16 []byte) bool {
	for a, u := 0, 0; u+1 < len(utf16); a, u = a+1, u+2 {
		if utf16[u] != 0 || ascii[a] != utf16[u+1] {
			return false
		}
	}

	return true
}

// Probe for the filesystem.
type Probe struct{}

// Name returns the name of the filesystem.
func (p *Probe) Name() string {
	return "iso9660"
}

// Usage returns the usage class.
func (p *Probe) Usage() probe.Usage {
	return probe.UsageFilesystem
}

// Tolerant reports that ISO9660 may coexist with other signatures (hybrid images).
func (p *Probe) Tolerant() bool {
	return true
}

// Magic returns the magic values for the filesystem.
func (p *Probe) Magic() []*magic.Magic {
	return []*magic.Magic{&isoMagic, &hsfsMagic}
}

// Probe runs the further inspection and returns the result if successful.
func (p *Probe) Probe(ctx *probe.Context, m *magic.Magic) error {
	if m == &hsfsMagic {
		return probeHighSierra(ctx, m)
	}

	buf, err := ctx.Superblock(m, descriptorSize)
	if err != nil {
		return err
	}

	pvd := volumeDescriptor(buf)

	ctx.SetIDLabel(result.SystemID, pvd.systemID())
	ctx.SetIDLabel(result.VolumeSetID, pvd.volumeSetID())
	ctx.SetIDLabel(result.PublisherID, pvd.publisherID())
	ctx.SetIDLabel(result.DataPreparerID, pvd.dataPreparerID())
	ctx.SetIDLabel(result.ApplicationID, pvd.applicationID())

	if uuid := dateUUID(pvd.modified()); uuid != "" {
		ctx.SprintfUUID(pvd.modified(), "%s", uuid)
	} else if uuid = dateUUID(pvd.created()); uuid != "" {
		ctx.SprintfUUID(pvd.created(), "%s", uuid)
	}

	if bs := pvd.logicalBlockSize(); bs != 0 {
		ctx.SetBlockSize(uint64(bs))
		ctx.SetFSBlockSize(uint64(bs))
		ctx.SetFSSize(uint64(pvd.spaceSize()) * uint64(bs))
	}

	joliet, err := findJoliet(ctx)
	if err != nil {
		return err
	}

	if joliet != nil {
		ctx.SetVersion("Joliet Extension")

		// the Joliet label may be truncated, prefer the primary one when they agree
		if !asciiEqualsUTF16BE(pvd.volumeID(), joliet.volumeID()) {
			ctx.SetUTF16Label(joliet.volumeID(), unicode.BigEndian)

			return nil
		}
	}

	ctx.SetLabel(pvd.volumeID())

	return nil
}

// findJoliet walks the descriptor set after the primary descriptor.
//
// Boot records found on the way set BOOT_SYSTEM_ID.
func findJoliet(ctx *probe.Context) (volumeDescriptor, error) {
	for i := range uint64(vdMax) {
		buf, err := ctx.Buffer(superblockOffset+sectorSize*(i+1), descriptorSize)
		if err != nil {
			if probe.IsNotThisFormat(err) {
				return nil, nil //nolint:nilnil
			}

			return nil, err
		}

		vd := volumeDescriptor(buf)

		switch vd.typ() {
		case vdEnd:
			return nil, nil //nolint:nilnil
		case vdBootRecord:
			ctx.SetIDLabel(result.BootSystemID, vd.bootSystemID())
		case vdSupplementary:
			if vd.isJoliet() {
				return vd, nil
			}
		}
	}

	return nil, nil //nolint:nilnil
}

func probeHighSierra(ctx *probe.Context, m *magic.Magic) error {
	buf, err := ctx.Superblock(m, 80)
	if err != nil {
		return err
	}

	ctx.SetVersion("High Sierra")
	ctx.SetLabel(buf[48:80])

	return nil
}
