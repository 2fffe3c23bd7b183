// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package utils

import (
	"fmt"

	"github.com/google/uuid"
)

// FormatUUID renders 16 raw bytes as a lowercase canonical UUID.
//
// It returns an empty string if buf is not 16 bytes long.
func FormatUUID(buf []byte) string {
	u, err := uuid.FromBytes(buf)
	if err != nil {
		return ""
	}

	return u.String()
}

// FormatSerial64 renders an 8-byte pseudo UUID as 16 lowercase hex digits.
func FormatSerial64(v uint64) string {
	return fmt.Sprintf("%016x", v)
}
