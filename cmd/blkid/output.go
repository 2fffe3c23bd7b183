// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/siderolabs/go-blkid/blkid"
)

type outputFormat string

const (
	outputValue  outputFormat = "value"
	outputExport outputFormat = "export"
	outputFull   outputFormat = "full"
)

func parseOutputFormat(s string) (outputFormat, error) {
	switch f := outputFormat(s); f {
	case outputValue, outputExport, outputFull:
		return f, nil
	default:
		return "", fmt.Errorf("unknown output format %q", s)
	}
}

// printValues writes the attributes the way blkid(8) does for the format.
func printValues(w io.Writer, format outputFormat, path string, values []blkid.Value) error {
	var sb strings.Builder

	switch format {
	case outputValue:
		for _, v := range values {
			sb.WriteString(plain(v))
			sb.WriteByte('\n')
		}
	case outputExport:
		fmt.Fprintf(&sb, "DEVNAME=%s\n", shellSafe(path))

		for _, v := range values {
			fmt.Fprintf(&sb, "%s=%s\n", v.Name, shellSafe(plain(v)))
		}

		sb.WriteByte('\n')
	case outputFull:
		sb.WriteString(path)
		sb.WriteByte(':')

		for _, v := range values {
			fmt.Fprintf(&sb, " %s=%s", v.Name, strconv.Quote(string(v.Data)))
		}

		sb.WriteByte('\n')
	}

	_, err := io.WriteString(w, sb.String())

	return err
}

// plain returns printable values as is, anything else is escaped.
func plain(v blkid.Value) string {
	s := string(v.Data)

	if v.Kind != blkid.KindRaw && utf8.ValidString(s) && strings.IndexFunc(s, isNotPrint) == -1 {
		return s
	}

	q := strconv.Quote(s)

	return q[1 : len(q)-1]
}

func isNotPrint(r rune) bool {
	return !unicode.IsPrint(r)
}

func shellSafe(s string) string {
	if s != "" && strings.IndexFunc(s, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || strings.ContainsRune("._-:/+,@%", r))
	}) == -1 {
		return s
	}

	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
