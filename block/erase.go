// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package block

import (
	"bytes"
	"errors"
	"fmt"
)

// ErrSignatureMismatch is returned when the on-disk bytes don't match the signature to erase.
var ErrSignatureMismatch = errors.New("signature not found at the offset")

// EraseSignature overwrites the magic found at off with zeroes.
//
// The bytes are read back first, so a stale probing result never destroys unrelated data.
func (d *Device) EraseSignature(off uint64, magic []byte) error {
	buf := make([]byte, len(magic))

	if _, err := d.f.ReadAt(buf, int64(off)); err != nil {
		return fmt.Errorf("failed to read %d bytes at offset %d: %w", len(buf), off, err)
	}

	if !bytes.Equal(buf, magic) {
		return fmt.Errorf("%w: %d", ErrSignatureMismatch, off)
	}

	clear(buf)

	if _, err := d.f.WriteAt(buf, int64(off)); err != nil {
		return fmt.Errorf("failed to erase signature at offset %d: %w", off, err)
	}

	return d.f.Sync()
}
