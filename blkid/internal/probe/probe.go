// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package probe defines common probe interfaces.
package probe

import (
	"errors"
	"fmt"
	"strings"

	"github.com/siderolabs/go-blkid/blkid/internal/cache"
	"github.com/siderolabs/go-blkid/blkid/internal/magic"
)

// Prober is an interface for probing filesystems and volume managers.
type Prober interface {
	// Name returns the name of the filesystem or volume manager.
	Name() string
	// Usage returns the usage class of the format.
	Usage() Usage
	// Magic returns the magic values for the filesystem or volume manager.
	//
	// A prober without magic values is always invoked with a nil magic.
	Magic() []*magic.Magic
	// Probe runs the further inspection of the matched magic and fills in the result.
	Probe(*Context, *magic.Magic) error
}

// MinSizer is implemented by probers which require a minimum device size.
type MinSizer interface {
	MinSize() uint64
}

// TolerantProber is implemented by formats which may coexist with other signatures.
type TolerantProber interface {
	Tolerant() bool
}

// WholeDiskProber is implemented by formats which are only valid on whole disks.
type WholeDiskProber interface {
	WholeDiskOnly() bool
}

// Errors returned by the probes.
var (
	// ErrNotThisFormat is the base error for all rejections.
	ErrNotThisFormat = errors.New("not this format")
	// ErrChecksumMismatch is returned when a checksum doesn't verify.
	ErrChecksumMismatch = fmt.Errorf("%w: checksum mismatch", ErrNotThisFormat)
	// ErrMalformed is returned when the superblock contains impossible values.
	ErrMalformed = fmt.Errorf("%w: malformed superblock", ErrNotThisFormat)
)

// Errors returned by the driver.
var (
	ErrNotReset   = errors.New("probe context must be reset before probing again")
	ErrAmbivalent = errors.New("ambivalent probing result, multiple signatures found")
)

// Malformedf returns ErrMalformed annotated with the description.
func Malformedf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformed, fmt.Sprintf(format, args...))
}

// IsNotThisFormat returns true if the error means the candidate should be skipped.
//
// Short reads and oversized requests are rejections as well, any other error is an I/O error.
func IsNotThisFormat(err error) bool {
	return errors.Is(err, ErrNotThisFormat) ||
		errors.Is(err, cache.ErrShortRead) ||
		errors.Is(err, cache.ErrRequestTooLarge)
}

// Usage is a set of usage classes.
type Usage uint

// Usage classes.
const (
	UsageFilesystem Usage = 1 << iota
	UsageRAID
	UsageCrypto
	UsageOther

	UsageAll = UsageFilesystem | UsageRAID | UsageCrypto | UsageOther
)

var usageNames = []struct {
	name  string
	usage Usage
}{
	{"filesystem", UsageFilesystem},
	{"raid", UsageRAID},
	{"crypto", UsageCrypto},
	{"other", UsageOther},
}

// String returns comma separated class names.
func (u Usage) String() string {
	var names []string

	for _, n := range usageNames {
		if u&n.usage != 0 {
			names = append(names, n.name)
		}
	}

	return strings.Join(names, ",")
}

// ParseUsage parses a comma separated list of usage classes.
//
// If every item is prefixed with "no", the result is all classes except the listed ones.
func ParseUsage(s string) (Usage, error) {
	items := strings.Split(s, ",")

	negate := true

	for _, item := range items {
		if !strings.HasPrefix(item, "no") {
			negate = false

			break
		}
	}

	var u Usage

	for _, item := range items {
		name := strings.TrimSpace(item)
		if negate {
			name = strings.TrimPrefix(name, "no")
		}

		found := false

		for _, n := range usageNames {
			if n.name == name {
				u |= n.usage
				found = true

				break
			}
		}

		if !found {
			return 0, fmt.Errorf("unknown usage %q", item)
		}
	}

	if negate {
		return UsageAll &^ u, nil
	}

	return u, nil
}
