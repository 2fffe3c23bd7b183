// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package utils

import (
	"bytes"
	"encoding/binary"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

const trailingSpace = " \t\n\v\f\r\x00"

// TrimLabel cuts buf at the first NUL and strips trailing whitespace.
func TrimLabel(buf []byte) []byte {
	return bytes.TrimRight(CString(buf), trailingSpace)
}

// DecodeLabel converts an 8-bit on-disk label to UTF-8.
//
// Labels which are not valid UTF-8 are treated as ISO-8859-1.
func DecodeLabel(buf []byte) string {
	lbl := TrimLabel(buf)

	if utf8.Valid(lbl) {
		return string(lbl)
	}

	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(lbl)
	if err != nil {
		return strings.ToValidUTF8(string(lbl), "�")
	}

	return string(decoded)
}

// DecodeUTF16 converts a UTF-16 label to UTF-8.
//
// Decoding stops at the first NUL code unit, a trailing odd byte is ignored and trailing
// whitespace is stripped.
func DecodeUTF16(buf []byte, endianness unicode.Endianness) string {
	var order binary.ByteOrder = binary.LittleEndian

	if endianness == unicode.BigEndian {
		order = binary.BigEndian
	}

	end := len(buf) &^ 1

	for i := 0; i < end; i += 2 {
		if order.Uint16(buf[i:]) == 0 {
			end = i

			break
		}
	}

	decoded, err := unicode.UTF16(endianness, unicode.IgnoreBOM).NewDecoder().Bytes(buf[:end])
	if err != nil {
		return ""
	}

	return strings.TrimRight(string(decoded), trailingSpace)
}
