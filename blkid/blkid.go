// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package blkid identifies filesystems, RAID members, crypto containers and other
// on-disk formats found on block devices and disk images.
package blkid

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/siderolabs/go-blkid/blkid/internal/cache"
	"github.com/siderolabs/go-blkid/blkid/internal/probe"
	"github.com/siderolabs/go-blkid/blkid/internal/result"
	"github.com/siderolabs/go-blkid/block"
)

// Common errors.
var (
	ErrFailedLock = errors.New("failed to acquire shared lock while probing blockdevice")

	// ErrNotReset is returned when Probe is called twice without Reset.
	ErrNotReset = probe.ErrNotReset
	// ErrAmbivalent is returned by safe probing when conflicting signatures are found.
	ErrAmbivalent = probe.ErrAmbivalent
	// ErrShortRead is returned when a read crosses the end of the device.
	ErrShortRead = cache.ErrShortRead
	// ErrDuplicateKey is returned by debug probes setting an attribute twice.
	ErrDuplicateKey = result.ErrDuplicateKey
)

// Usage is a set of format classes.
type Usage = probe.Usage

// Usage classes.
const (
	UsageFilesystem = probe.UsageFilesystem
	UsageRAID       = probe.UsageRAID
	UsageCrypto     = probe.UsageCrypto
	UsageOther      = probe.UsageOther
	UsageAll        = probe.UsageAll
)

// ParseUsage parses a comma separated list of usage classes.
func ParseUsage(s string) (Usage, error) {
	return probe.ParseUsage(s)
}

// Value is a single probed attribute, such as TYPE or UUID.
type Value = result.Value

// Kind of the attribute value.
type Kind = result.Kind

// Attribute kinds.
const (
	KindString = result.KindString
	KindRaw    = result.KindRaw
	KindNumber = result.KindNumber
)

// Info represents the result of the probe.
type Info struct { //nolint:govet
	// Link to the block device, only if the probed file is a blockdevice.
	BlockDevice *block.Device

	// DevNo is the device number of the probed device.
	//
	// Only available if the probed file is a blockdevice.
	DevNo uint64

	// WholeDisk is true if the probed device is a whole disk.
	//
	// Only available if the probed file is a blockdevice.
	WholeDisk bool

	// Overall size of the probed device (in bytes).
	Size uint64

	// Sector size of the device (in bytes).
	SectorSize uint

	// Optimal I/O size for the device (in bytes).
	IOSize uint

	// ProbeResult is the result of probing the device, Name is empty if nothing was found.
	ProbeResult
}

// ProbeResult is a result of probing a single device.
type ProbeResult struct { //nolint:govet
	Name    string
	Usage   string
	Version *string

	// UUID is set if the identifier is a canonical UUID.
	UUID *uuid.UUID
	// ID is the identifier as rendered by the format, e.g. "1234-ABCD" for FAT.
	ID    *string
	Label *string

	BlockSize           uint32
	FilesystemBlockSize uint32
	ProbedSize          uint64

	// Values holds all attributes in the order they were set.
	Values []Value
}

// Lookup returns the attribute value by name.
func (r *ProbeResult) Lookup(name string) (string, bool) {
	for _, v := range r.Values {
		if v.Name == name {
			return v.String(), true
		}
	}

	return "", false
}

// ProbeOptions is the options for probing.
type ProbeOptions struct {
	// Logger to use for logging.
	Logger *zap.Logger
	// SkipLocking blockdevices in shared mode.
	SkipLocking bool
	// Usages restricts the format classes to probe for.
	Usages Usage
	// SafeProbe keeps scanning after the first match to detect conflicting signatures.
	SafeProbe bool
	// Debug turns duplicate attributes into panics.
	Debug bool
	// AcceptBadChecksum reports formats with checksum mismatches with SBBADCSUM=1.
	AcceptBadChecksum bool
	// Types is the list of format names to probe for (TypesOnly) or to skip.
	Types []string
	// TypesOnly turns Types into an allow list.
	TypesOnly bool
}

// ProbeOption is an option for probing.
type ProbeOption func(*ProbeOptions)

// WithProbeLogger sets the logger for the probe.
func WithProbeLogger(logger *zap.Logger) ProbeOption {
	return func(o *ProbeOptions) {
		o.Logger = logger
	}
}

// WithSkipLocking skips locking blockdevices in shared mode.
func WithSkipLocking(skip bool) ProbeOption {
	return func(o *ProbeOptions) {
		o.SkipLocking = skip
	}
}

// WithUsages restricts probing to the usage classes.
func WithUsages(usages Usage) ProbeOption {
	return func(o *ProbeOptions) {
		o.Usages = usages
	}
}

// WithSafeProbe enables collision detection between signatures.
func WithSafeProbe(safe bool) ProbeOption {
	return func(o *ProbeOptions) {
		o.SafeProbe = safe
	}
}

// WithDebug makes probes panic on internal inconsistencies.
func WithDebug(debug bool) ProbeOption {
	return func(o *ProbeOptions) {
		o.Debug = debug
	}
}

// WithBadChecksumAccepted accepts formats whose checksums don't verify.
func WithBadChecksumAccepted(accept bool) ProbeOption {
	return func(o *ProbeOptions) {
		o.AcceptBadChecksum = accept
	}
}

// WithTypes restricts probing to the named formats, or excludes them if only is false.
func WithTypes(only bool, names ...string) ProbeOption {
	return func(o *ProbeOptions) {
		o.TypesOnly = only
		o.Types = names
	}
}

// ParseTypes parses a comma-separated format list, as accepted by blkid -n.
//
// If every item has a "no" prefix, the list names the formats to skip.
func ParseTypes(s string) (only bool, names []string, err error) {
	items := strings.Split(s, ",")

	only = slices.ContainsFunc(items, func(item string) bool { return !strings.HasPrefix(strings.TrimSpace(item), "no") })

	known := Formats()

	for _, item := range items {
		name := strings.TrimSpace(item)
		if !only {
			name = strings.TrimPrefix(name, "no")
		}

		if !slices.Contains(known, name) {
			return false, nil, fmt.Errorf("unknown type %q", item)
		}

		names = append(names, name)
	}

	return only, names, nil
}

func applyProbeOptions(opts ...ProbeOption) ProbeOptions {
	o := ProbeOptions{
		Logger: zap.NewNop(),
		Usages: UsageAll,
	}

	for _, opt := range opts {
		opt(&o)
	}

	return o
}
