// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/docker/go-units"
	"github.com/klauspost/compress/zstd"
	"github.com/lima-vm/go-qcow2reader"
	"github.com/lima-vm/go-qcow2reader/image/qcow2"
	"go.uber.org/zap"

	"github.com/siderolabs/go-blkid/blkid"
)

const zstdExt = ".zst"

// window limits probing to a part of an image.
type window struct {
	offset uint64
	size   uint64
}

func (w window) isSet() bool {
	return w.offset != 0 || w.size != 0
}

func parseWindow(offset, size string) (window, error) {
	var (
		w   window
		err error
	)

	parse := func(s string) (uint64, error) {
		if s == "" {
			return 0, nil
		}

		v, err := units.RAMInBytes(s)
		if err != nil {
			return 0, err
		}

		if v < 0 {
			return 0, fmt.Errorf("negative value %q", s)
		}

		return uint64(v), nil
	}

	if w.offset, err = parse(offset); err != nil {
		return window{}, fmt.Errorf("invalid offset: %w", err)
	}

	if w.size, err = parse(size); err != nil {
		return window{}, fmt.Errorf("invalid size: %w", err)
	}

	return w, nil
}

// source is an opened image ready for probing.
type source struct {
	r       io.ReaderAt
	dev     blkid.Device
	kind    string
	closers []io.Closer
}

// Close releases the image in reverse opening order.
func (s *source) Close() error {
	var errs []error

	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil && !errors.Is(err, os.ErrClosed) {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// openImage opens a raw, qcow2 or zstd-compressed image file.
func openImage(path string, w window, logger *zap.Logger) (*source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	src := &source{closers: []io.Closer{f}}

	if err = src.open(f, path); err != nil {
		src.Close() //nolint:errcheck

		return nil, err
	}

	if w.isSet() {
		if err = src.limit(w); err != nil {
			src.Close() //nolint:errcheck

			return nil, err
		}
	}

	logger.Debug("opened image", zap.String("path", path), zap.String("kind", src.kind), zap.Uint64("size", src.dev.Size))

	return src, nil
}

func (s *source) open(f *os.File, path string) error {
	if strings.HasSuffix(path, zstdExt) {
		decoder, err := zstd.NewReader(f)
		if err != nil {
			return err
		}

		defer decoder.Close()

		data, err := io.ReadAll(decoder)
		if err != nil {
			return fmt.Errorf("failed to decompress: %w", err)
		}

		s.r = bytes.NewReader(data)
		s.kind = "zstd"
		s.dev = blkid.Device{Size: uint64(len(data)), WholeDisk: true}

		return nil
	}

	img, err := qcow2reader.Open(f)
	if err != nil {
		return fmt.Errorf("failed to detect the image format: %w", err)
	}

	s.closers = append(s.closers, img)
	s.kind = string(img.Type())

	if img.Type() == qcow2.Type {
		if err = img.Readable(); err != nil {
			return err
		}

		s.r = img
	} else {
		s.r = f
	}

	s.dev = blkid.Device{Size: uint64(img.Size()), WholeDisk: true}

	return nil
}

func (s *source) limit(w window) error {
	if w.offset >= s.dev.Size {
		return fmt.Errorf("offset %d is beyond the image size %d", w.offset, s.dev.Size)
	}

	size := s.dev.Size - w.offset

	if w.size != 0 && w.size < size {
		size = w.size
	}

	s.r = io.NewSectionReader(s.r, int64(w.offset), int64(size))
	s.dev.Size = size
	s.dev.WholeDisk = w.offset == 0

	return nil
}

// probePath returns the probed values, or nothing if no format was recognized.
func probePath(path string, w window, logger *zap.Logger, opts ...blkid.ProbeOption) ([]blkid.Value, error) {
	st, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	if st.Mode()&os.ModeDevice != 0 {
		if w.isSet() {
			return nil, errors.New("offset and size apply to image files only")
		}

		info, err := blkid.ProbePath(path, opts...)
		if err != nil {
			return nil, err
		}

		return info.Values, nil
	}

	src, err := openImage(path, w, logger)
	if err != nil {
		return nil, err
	}

	defer src.Close() //nolint:errcheck

	p := blkid.NewProber(src.r, src.dev, opts...)

	found, err := p.Probe()
	if err != nil || !found {
		return nil, err
	}

	return p.Values(), nil
}
