// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"go.uber.org/zap"

	"github.com/siderolabs/go-blkid/blkid"
	"github.com/siderolabs/go-blkid/block"
)

// maxErasedSignatures bounds the erase loop if a signature keeps coming back.
const maxErasedSignatures = 64

var errNoMagic = errors.New("detected format has no magic to erase")

// erasedSignature describes a single erased magic.
type erasedSignature struct {
	Type   string
	Offset uint64
	Magic  []byte
}

func (s erasedSignature) String() string {
	return fmt.Sprintf("%d bytes were erased at offset 0x%08x (%s): % x", len(s.Magic), s.Offset, s.Type, s.Magic)
}

// eraseSignatures probes the device repeatedly, erasing the magic of every detected format.
func eraseSignatures(dev *block.Device, info blkid.Device, logger *zap.Logger, out io.Writer) ([]erasedSignature, error) {
	var erased []erasedSignature

	for range maxErasedSignatures {
		// a fresh prober each round, so that no cached reads survive the erase
		p := blkid.NewProber(dev.File(), info, blkid.WithProbeLogger(logger), blkid.WithBadChecksumAccepted(true))

		found, err := p.Probe()
		if err != nil {
			return erased, err
		}

		if !found {
			return erased, nil
		}

		res := p.Result()

		sig, err := signatureOf(p, res.Name)
		if err != nil {
			return erased, err
		}

		if err = dev.EraseSignature(sig.Offset, sig.Magic); err != nil {
			return erased, err
		}

		logger.Info("erased signature", zap.String("type", sig.Type), zap.Uint64("offset", sig.Offset))

		fmt.Fprintln(out, sig)

		erased = append(erased, sig)
	}

	return erased, fmt.Errorf("giving up after erasing %d signatures", len(erased))
}

func signatureOf(p *blkid.Prober, name string) (erasedSignature, error) {
	magic, ok := p.Lookup("SBMAGIC")
	if !ok {
		return erasedSignature{}, fmt.Errorf("%w: %s", errNoMagic, name)
	}

	offset, ok := p.Lookup("SBMAGIC_OFFSET")
	if !ok {
		return erasedSignature{}, fmt.Errorf("%w: %s", errNoMagic, name)
	}

	off, err := strconv.ParseUint(string(offset), 10, 64)
	if err != nil {
		return erasedSignature{}, err
	}

	return erasedSignature{
		Type:   name,
		Offset: off,
		Magic:  append([]byte(nil), magic...),
	}, nil
}
