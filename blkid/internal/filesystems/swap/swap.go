// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package swap probes Linux swap areas and hibernation images stored in them.
package swap

import (
	"bytes"
	"encoding/binary"
	"math/bits"

	"github.com/siderolabs/go-blkid/blkid/internal/magic"
	"github.com/siderolabs/go-blkid/blkid/internal/probe"
)

const (
	// HeaderOffset is the location of the v1 header, after the boot bits.
	HeaderOffset = 1024

	headerSize = 1204
	minSize    = 10 * 4096
)

// TuxOnIceMagic starts a TuxOnIce hibernation image, which keeps a valid swap signature.
var TuxOnIceMagic = []byte("\xed\xc3\x02\xe9\x98\x56\xe5\x0c")

// page sizes from 4 KiB to 64 KiB, the signature ends the first page.
var signatureOffsets = []uint64{0xff6, 0x1ff6, 0x3ff6, 0x7ff6, 0xfff6}

var (
	swapMagics    = buildMagics("SWAP-SPACE", "SWAPSPACE2")
	suspendMagics = append(
		[]*magic.Magic{{Value: TuxOnIceMagic}},
		buildMagics("S1SUSPEND", "S2SUSPEND", "ULSUSPEND", "LINHIB0001")...,
	)
)

func buildMagics(values ...string) []*magic.Magic {
	magics := make([]*magic.Magic, 0, len(values)*len(signatureOffsets))

	for _, off := range signatureOffsets {
		for _, v := range values {
			magics = append(magics, &magic.Magic{Value: []byte(v), SBOffset: off})
		}
	}

	return magics
}

type header []byte

func (h header) version() uint32 { return binary.LittleEndian.Uint32(h[0:]) }
func (h header) lastPage() uint32 { return binary.LittleEndian.Uint32(h[4:]) }
func (h header) uuid() []byte { return h[12:28] }
func (h header) volume() []byte { return h[28:44] }

// clean checks the padding for garbage, labels are only trusted on clean headers.
func (h header) clean() bool {
	return binary.LittleEndian.Uint32(h[44+32*4:]) == 0 && binary.LittleEndian.Uint32(h[44+33*4:]) == 0
}

func readHeader(ctx *probe.Context) (header, error) {
	buf, err := ctx.Buffer(HeaderOffset, headerSize)
	if err != nil {
		return nil, err
	}

	return header(buf), nil
}

func setInfo(ctx *probe.Context, hdr header, version string) {
	if hdr.clean() {
		ctx.SetLabel(hdr.volume())
		ctx.SetUUID(hdr.uuid())
	}

	ctx.SetVersion("%s", version)
}

// Probe for swap areas.
type Probe struct{}

// Name returns the name of the format.
func (p *Probe) Name() string {
	return "swap"
}

// Usage returns the usage class.
func (p *Probe) Usage() probe.Usage {
	return probe.UsageOther
}

// Magic returns the magic values for the format.
func (p *Probe) Magic() []*magic.Magic {
	return swapMagics
}

// MinSize returns the minimum device size.
func (p *Probe) MinSize() uint64 {
	return minSize
}

// Probe runs the further inspection and returns the result if successful.
func (p *Probe) Probe(ctx *probe.Context, m *magic.Magic) error {
	buf, err := ctx.Buffer(0, uint64(len(TuxOnIceMagic)))
	if err != nil {
		return err
	}

	if bytes.Equal(buf, TuxOnIceMagic) {
		return probe.Malformedf("TuxOnIce hibernation image")
	}

	if string(m.Value) == "SWAP-SPACE" {
		// v0 has neither label nor UUID
		ctx.SetVersion("0")

		return nil
	}

	hdr, err := readHeader(ctx)
	if err != nil {
		return err
	}

	version := hdr.version()
	lastPage := hdr.lastPage()

	if version != 1 {
		if bits.ReverseBytes32(version) != 1 {
			return probe.Malformedf("unsupported version %#x", version)
		}

		lastPage = bits.ReverseBytes32(lastPage)
	}

	if lastPage == 0 {
		return probe.Malformedf("last page is not set")
	}

	setInfo(ctx, hdr, "1")

	pageSize := m.SBOffset + uint64(len(m.Value))

	ctx.SetBlockSize(pageSize)
	ctx.SetFSBlockSize(pageSize)
	ctx.SetFSSize(pageSize * uint64(lastPage))

	return nil
}

// SuspendProbe for hibernation images written to swap.
type SuspendProbe struct{}

// Name returns the name of the format.
func (p *SuspendProbe) Name() string {
	return "swsuspend"
}

// Usage returns the usage class.
func (p *SuspendProbe) Usage() probe.Usage {
	return probe.UsageOther
}

// Magic returns the magic values for the format.
func (p *SuspendProbe) Magic() []*magic.Magic {
	return suspendMagics
}

// MinSize returns the minimum device size.
func (p *SuspendProbe) MinSize() uint64 {
	return minSize
}

var suspendVersions = map[string]string{
	"S1SUSPEND":           "s1suspend",
	"S2SUSPEND":           "s2suspend",
	"ULSUSPEND":           "ulsuspend",
	"LINHIB0001":          "linhib0001",
	string(TuxOnIceMagic): "tuxonice",
}

// Probe runs the further inspection and returns the result if successful.
func (p *SuspendProbe) Probe(ctx *probe.Context, m *magic.Magic) error {
	version, ok := suspendVersions[string(m.Value)]
	if !ok {
		return probe.ErrNotThisFormat
	}

	hdr, err := readHeader(ctx)
	if err != nil {
		return err
	}

	setInfo(ctx, hdr, version)

	return nil
}
