// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

//go:build !linux

package blkid

import (
	"fmt"
	"os"

	"github.com/siderolabs/go-blkid/block"
)

// ProbePath returns the probe information for the specified path.
func ProbePath(devpath string, opts ...ProbeOption) (*Info, error) {
	f, err := os.Open(devpath)
	if err != nil {
		return nil, err
	}

	defer f.Close() //nolint:errcheck

	return Probe(f, opts...)
}

// Probe returns the probe information for the specified file.
//
// Only regular files (disk images) are supported on this platform.
func Probe(f *os.File, opts ...ProbeOption) (*Info, error) {
	st, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat: %w", err)
	}

	if !st.Mode().IsRegular() {
		return nil, fmt.Errorf("unsupported file type: %s", st.Mode().Type())
	}

	info := &Info{
		Size:       uint64(st.Size()),
		IOSize:     block.DefaultBlockSize,
		SectorSize: block.DefaultBlockSize,
		WholeDisk:  true,
	}

	if err = info.probe(f, Device{Size: info.Size, SectorSize: info.SectorSize, WholeDisk: true}, opts...); err != nil {
		return nil, fmt.Errorf("failed to probe: %w", err)
	}

	return info, nil
}
