// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package blkid

import (
	"io"
	"slices"
	"strconv"

	"github.com/google/uuid"
	"github.com/siderolabs/go-pointer"
	"go.uber.org/zap"

	"github.com/siderolabs/go-blkid/blkid/internal/chain"
	"github.com/siderolabs/go-blkid/blkid/internal/filesystems/exfat"
	"github.com/siderolabs/go-blkid/blkid/internal/filesystems/ntfs"
	"github.com/siderolabs/go-blkid/blkid/internal/probe"
	"github.com/siderolabs/go-blkid/blkid/internal/result"
	"github.com/siderolabs/go-blkid/blkid/internal/volumes/bitlocker"
)

// Device describes the probed device beyond its contents.
type Device struct {
	// Size of the device in bytes.
	Size uint64
	// SectorSize is the logical sector size, anything but a power of two >= 512 means 512.
	SectorSize uint
	// WholeDisk is false for partitions, firmware RAID is only detected on whole disks.
	WholeDisk bool
	// CDROM disables RAID and "other" formats.
	CDROM bool
}

// Prober probes a single device or image.
//
// Prober is not safe for concurrent use.
type Prober struct {
	ctx     *probe.Context
	chain   chain.Chain
	found   probe.Prober
	options ProbeOptions
}

// NewProber creates a prober over r.
func NewProber(r io.ReaderAt, dev Device, opts ...ProbeOption) *Prober {
	options := applyProbeOptions(opts...)

	ctx := probe.NewContext(r, dev.Size, probe.Options{
		Logger:            options.Logger,
		SectorSize:        dev.SectorSize,
		WholeDisk:         dev.WholeDisk,
		CDROM:             dev.CDROM,
		Debug:             options.Debug,
		AcceptBadChecksum: options.AcceptBadChecksum,
	})

	ctx.SetEnabledUsages(options.Usages)

	probers := chain.Default()

	if len(options.Types) > 0 {
		probers = probers.Filter(func(p probe.Prober) bool {
			return slices.Contains(options.Types, p.Name()) == options.TypesOnly
		})
	}

	return &Prober{
		ctx:     ctx,
		chain:   probers,
		options: options,
	}
}

// Probe runs the registry over the device.
//
// It returns false if no format was recognized. Only I/O errors are returned, plus
// ErrAmbivalent in safe mode and ErrNotReset if the prober was already run.
func (p *Prober) Probe() (bool, error) {
	var err error

	if p.options.SafeProbe {
		p.found, err = p.chain.SafeProbe(p.ctx)
	} else {
		p.found, err = p.chain.Probe(p.ctx)
	}

	if err != nil {
		return false, err
	}

	if p.found == nil {
		p.options.Logger.Debug("nothing found", zap.Int("reads", p.ctx.Reads()))

		return false, nil
	}

	p.options.Logger.Debug("probe done", zap.String("type", p.found.Name()), zap.Int("reads", p.ctx.Reads()))

	return true, nil
}

// Reset clears the results so that Probe can run again, cached reads are kept.
func (p *Prober) Reset() {
	p.ctx.Reset()
	p.found = nil
}

// Lookup returns the raw value of the attribute.
func (p *Prober) Lookup(name string) ([]byte, bool) {
	v, ok := p.ctx.Store().Get(name)
	if !ok {
		return nil, false
	}

	return v.Data, true
}

// Has returns true if the attribute is set.
func (p *Prober) Has(name string) bool {
	return p.ctx.Has(name)
}

// Values returns all attributes in the order they were set.
func (p *Prober) Values() []Value {
	return p.ctx.Store().Values()
}

// Result converts the attributes into a ProbeResult.
func (p *Prober) Result() ProbeResult {
	return newProbeResult(p.Values())
}

// IsNTFS reports whether the device holds an NTFS volume without recording any attributes.
func (p *Prober) IsNTFS() bool {
	return ntfs.Is(p.ctx)
}

// IsExFAT reports whether the device holds an exFAT volume without recording any attributes.
func (p *Prober) IsExFAT() bool {
	return exfat.Is(p.ctx)
}

// IsBitLocker reports whether the device holds a BitLocker volume without recording any attributes.
func (p *Prober) IsBitLocker() bool {
	return bitlocker.Is(p.ctx)
}

// Formats lists the names of all known formats in probing order.
func Formats() []string {
	return chain.Default().Names()
}

func newProbeResult(values []Value) ProbeResult {
	res := ProbeResult{
		Values: values,
	}

	for _, v := range values {
		s := v.String()

		switch v.Name {
		case result.Type:
			res.Name = s
		case result.Usage:
			res.Usage = s
		case result.Version:
			res.Version = pointer.To(s)
		case result.Label:
			res.Label = pointer.To(s)
		case result.UUID:
			res.ID = pointer.To(s)

			if id, err := uuid.Parse(s); err == nil && len(s) == 36 {
				res.UUID = pointer.To(id)
			}
		case result.BlockSize:
			res.BlockSize = uint32(parseNumber(s))
		case result.FSBlockSize:
			res.FilesystemBlockSize = uint32(parseNumber(s))
		case result.FSSize:
			res.ProbedSize = parseNumber(s)
		}
	}

	return res
}

func parseNumber(s string) uint64 {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0
	}

	return n
}
