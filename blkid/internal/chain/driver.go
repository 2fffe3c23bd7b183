// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package chain

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/siderolabs/go-blkid/blkid/internal/magic"
	"github.com/siderolabs/go-blkid/blkid/internal/probe"
	"github.com/siderolabs/go-blkid/blkid/internal/result"
)

// Probe runs the probers in order and stops at the first format which claims the device.
//
// It returns a nil prober if nothing was found. Only I/O errors are returned.
func (chain Chain) Probe(ctx *probe.Context) (probe.Prober, error) {
	if err := start(ctx); err != nil {
		return nil, err
	}

	defer ctx.SetState(probe.StateDone)

	for idx := range chain {
		found, err := chain.probeOne(ctx, idx)
		if err != nil {
			return nil, err
		}

		if found {
			return chain[idx], nil
		}
	}

	return nil, nil
}

// SafeProbe continues scanning after the first hit to detect conflicting signatures.
//
// The first result is kept. A RAID or crypto hit ends the scan, and more than one hit
// with at least one non-tolerant format returns probe.ErrAmbivalent.
func (chain Chain) SafeProbe(ctx *probe.Context) (probe.Prober, error) {
	if err := start(ctx); err != nil {
		return nil, err
	}

	defer ctx.SetState(probe.StateDone)

	var (
		first       probe.Prober
		firstValues []result.Value
		count       int
		intolerant  int
	)

	for idx, prober := range chain {
		found, err := chain.probeOne(ctx, idx)
		if err != nil {
			return nil, err
		}

		if !found {
			continue
		}

		if ctx.IsTiny() && count == 0 {
			return prober, nil
		}

		count++

		if prober.Usage()&(probe.UsageRAID|probe.UsageCrypto) != 0 {
			if count == 1 {
				first, firstValues = prober, ctx.Store().Values()
			}

			break
		}

		if !isTolerant(prober) {
			intolerant++
		}

		if count == 1 {
			first, firstValues = prober, ctx.Store().Values()
		}

		ctx.Logger().Debug("continuing safe probe", zap.String("found", prober.Name()))
	}

	if count > 1 && intolerant > 0 {
		ctx.Store().Reset()

		return nil, fmt.Errorf("%w: %d signatures", probe.ErrAmbivalent, count)
	}

	if first == nil {
		ctx.Store().Reset()

		return nil, nil
	}

	ctx.Store().Restore(firstValues)

	return first, nil
}

func start(ctx *probe.Context) error {
	if ctx.State() != probe.StateIdle {
		return probe.ErrNotReset
	}

	ctx.SetState(probe.StateScanning)

	return nil
}

// probeOne checks a single prober, the result store is left populated only on success.
func (chain Chain) probeOne(ctx *probe.Context, idx int) (bool, error) {
	prober := chain[idx]
	logger := ctx.Logger().With(zap.String("prober", prober.Name()))

	if skip := skipReason(ctx, prober); skip != "" {
		logger.Debug("skipping prober", zap.String("reason", skip))

		return false, nil
	}

	m, off, err := findMagic(ctx, prober)
	if err != nil {
		return false, fmt.Errorf("%s: %w", prober.Name(), err)
	}

	if len(prober.Magic()) > 0 && m == nil {
		return false, nil
	}

	if m != nil && ctx.IsWiped(off, uint64(len(m.Value))) {
		logger.Debug("magic inside wiped area", zap.Uint64("offset", off))

		return false, nil
	}

	ctx.Store().Reset()
	ctx.SetState(probe.StateRunningProbe)

	err = prober.Probe(ctx, m)

	ctx.SetState(probe.StateScanning)

	if err != nil {
		ctx.Store().Reset()

		if probe.IsNotThisFormat(err) {
			logger.Debug("rejected", zap.Error(err))

			return false, nil
		}

		return false, fmt.Errorf("%s: %w", prober.Name(), err)
	}

	if !ctx.Has(result.Type) {
		ctx.SetString(result.Type, prober.Name())
	}

	if !ctx.Has(result.Usage) {
		ctx.SetString(result.Usage, prober.Usage().String())
	}

	if m != nil && !ctx.Has(result.SBMagic) {
		ctx.SetMagic(off, m.Value)
	}

	logger.Debug("found", zap.Uint64("offset", off))

	return true, nil
}

func skipReason(ctx *probe.Context, prober probe.Prober) string {
	usage := prober.Usage()

	switch {
	case ctx.Usages()&usage == 0:
		return "usage filtered"
	case minSize(prober) > ctx.Size():
		return "device too small"
	case usage&(probe.UsageRAID|probe.UsageOther) != 0 && ctx.IsCDROM():
		return "optical drive"
	case usage&probe.UsageRAID != 0 && ctx.IsTiny():
		return "tiny device"
	case isWholeDiskOnly(prober) && !ctx.WholeDisk():
		return "not a whole disk"
	}

	return ""
}

// findMagic returns the first magic of the prober present on the device.
func findMagic(ctx *probe.Context, prober probe.Prober) (*magic.Magic, uint64, error) {
	for _, m := range prober.Magic() {
		off, ok := m.Offset(ctx.Size())
		if !ok {
			continue
		}

		buf, err := ctx.Buffer(off, uint64(len(m.Value)))
		if err != nil {
			if probe.IsNotThisFormat(err) {
				continue
			}

			return nil, 0, err
		}

		if m.Matches(buf) {
			return m, off, nil
		}
	}

	return nil, 0, nil
}

func minSize(prober probe.Prober) uint64 {
	if s, ok := prober.(probe.MinSizer); ok {
		return s.MinSize()
	}

	return 0
}

func isTolerant(prober probe.Prober) bool {
	t, ok := prober.(probe.TolerantProber)

	return ok && t.Tolerant()
}

func isWholeDiskOnly(prober probe.Prober) bool {
	w, ok := prober.(probe.WholeDiskProber)

	return ok && w.WholeDiskOnly()
}
