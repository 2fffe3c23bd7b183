// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package bitlocker probes BitLocker encrypted volumes.
package bitlocker

import (
	"bytes"
	"encoding/binary"

	"github.com/siderolabs/go-blkid/blkid/internal/magic"
	"github.com/siderolabs/go-blkid/blkid/internal/probe"
)

const headerSize = 512

type kind int

const (
	kindVista kind = iota
	kindWin7
	kindToGo
)

var (
	vistaMagic = magic.Magic{Value: []byte("\xeb\x52\x90-FVE-FS-")}
	win7Magic  = magic.Magic{Value: []byte("\xeb\x58\x90-FVE-FS-")}
	togoMagic  = magic.Magic{Value: []byte("\xeb\x58\x90MSWIN4.1")}

	fveMagic = []byte("-FVE-FS-")
)

type headers struct {
	hdr  []byte
	fve  []byte
	kind kind
}

// readHeaders returns probe.ErrNotThisFormat if the device has no BitLocker headers.
func readHeaders(ctx *probe.Context) (headers, error) {
	buf, err := ctx.Buffer(0, headerSize)
	if err != nil {
		return headers{}, err
	}

	var (
		h   = headers{hdr: buf}
		off uint64
	)

	switch {
	case vistaMagic.Matches(buf):
		h.kind = kindVista

		return h, nil
	case win7Magic.Matches(buf):
		h.kind = kindWin7
		off = binary.LittleEndian.Uint64(buf[176:])
	case togoMagic.Matches(buf):
		h.kind = kindToGo
		off = binary.LittleEndian.Uint64(buf[440:])
	default:
		return headers{}, probe.ErrNotThisFormat
	}

	if off == 0 {
		return headers{}, probe.Malformedf("no FVE metadata offset")
	}

	fve, err := ctx.Buffer(off, 12)
	if err != nil {
		return headers{}, err
	}

	if !bytes.Equal(fve[:8], fveMagic) {
		return headers{}, probe.Malformedf("bad FVE metadata signature")
	}

	h.fve = fve

	return h, nil
}

// Is returns true if the device starts with BitLocker headers.
//
// The result store is never modified.
func Is(ctx *probe.Context) bool {
	_, err := readHeaders(ctx)

	return err == nil
}

// Probe for the crypto container.
type Probe struct{}

// Name returns the name of the format.
func (p *Probe) Name() string {
	return "BitLocker"
}

// Usage returns the usage class.
func (p *Probe) Usage() probe.Usage {
	return probe.UsageCrypto
}

// Magic returns the magic values for the format.
func (p *Probe) Magic() []*magic.Magic {
	return []*magic.Magic{&vistaMagic, &win7Magic, &togoMagic}
}

// Probe runs the further inspection and returns the result if successful.
func (p *Probe) Probe(ctx *probe.Context, _ *magic.Magic) error {
	h, err := readHeaders(ctx)
	if err != nil {
		return err
	}

	if h.kind == kindWin7 {
		serial := h.hdr[67:71]

		ctx.SprintfUUID(serial, "%016d", binary.LittleEndian.Uint32(serial))
	}

	if h.fve != nil {
		ctx.SetVersion("%d", binary.LittleEndian.Uint16(h.fve[10:]))
	}

	return nil
}
