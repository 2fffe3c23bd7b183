// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package probe

import (
	"encoding/binary"
	"fmt"
	"io"

	"go.uber.org/zap"
	"golang.org/x/text/encoding/unicode"

	"github.com/siderolabs/go-blkid/blkid/internal/cache"
	"github.com/siderolabs/go-blkid/blkid/internal/magic"
	"github.com/siderolabs/go-blkid/blkid/internal/result"
	"github.com/siderolabs/go-blkid/blkid/internal/utils"
)

// TinySize is the size of the largest device considered a floppy.
const TinySize = 1440 * 1024

// State of the probe driver.
type State int

// Driver states.
const (
	StateIdle State = iota
	StateScanning
	StateRunningProbe
	StateDone
)

// Options configure the probe context.
type Options struct {
	Logger *zap.Logger

	SectorSize uint

	WholeDisk bool
	CDROM     bool

	// Debug turns duplicate result keys into panics.
	Debug bool
	// AcceptBadChecksum records SBBADCSUM instead of rejecting the candidate.
	AcceptBadChecksum bool
}

// Wiper is an area known to be zeroed by a detected format.
type Wiper struct {
	Offset uint64
	Size   uint64
}

// Context is the state of a single probe run over a device.
//
// Context is not safe for concurrent use.
type Context struct {
	cache  *cache.Cache
	logger *zap.Logger

	store result.Store
	wiper Wiper

	usages     Usage
	state      State
	sectorSize uint

	wholeDisk         bool
	cdrom             bool
	debug             bool
	acceptBadChecksum bool
}

// NewContext creates a probe context over the device r of the given size.
func NewContext(r io.ReaderAt, size uint64, opts Options) *Context {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	sectorSize := opts.SectorSize
	if sectorSize < 512 || !utils.IsPowerOf2(sectorSize) {
		sectorSize = 512
	}

	return &Context{
		cache:             cache.New(r, size),
		logger:            logger,
		usages:            UsageAll,
		sectorSize:        sectorSize,
		wholeDisk:         opts.WholeDisk,
		cdrom:             opts.CDROM,
		debug:             opts.Debug,
		acceptBadChecksum: opts.AcceptBadChecksum,
	}
}

// Size returns the device size in bytes.
func (ctx *Context) Size() uint64 { return ctx.cache.Size() }

// SectorSize returns the logical sector size, always a power of two of at least 512 bytes.
func (ctx *Context) SectorSize() uint { return ctx.sectorSize }

// WholeDisk returns true if the device is a whole disk or a regular file.
func (ctx *Context) WholeDisk() bool { return ctx.wholeDisk }

// IsCDROM returns true if the device is an optical drive.
func (ctx *Context) IsCDROM() bool { return ctx.cdrom }

// IsTiny returns true for floppy-sized devices.
func (ctx *Context) IsTiny() bool { return ctx.Size() <= TinySize }

// Logger returns the context logger.
func (ctx *Context) Logger() *zap.Logger { return ctx.logger }

// Reads returns the number of device reads issued so far.
func (ctx *Context) Reads() int { return ctx.cache.Reads() }

// State returns the driver state.
func (ctx *Context) State() State { return ctx.state }

// SetState is used by the driver to advance the state machine.
func (ctx *Context) SetState(state State) { ctx.state = state }

// Usages returns the set of enabled usage classes.
func (ctx *Context) Usages() Usage { return ctx.usages }

// SetEnabledUsages restricts probing to the given usage classes.
func (ctx *Context) SetEnabledUsages(usages Usage) { ctx.usages = usages }

// Store returns the result store.
func (ctx *Context) Store() *result.Store { return &ctx.store }

// Reset clears the results and the wiper, cached buffers are kept.
func (ctx *Context) Reset() {
	ctx.store.Reset()
	ctx.wiper = Wiper{}
	ctx.state = StateIdle
}

// Buffer returns length bytes at the absolute offset off.
func (ctx *Context) Buffer(off, length uint64) ([]byte, error) {
	return ctx.cache.Buffer(off, length)
}

// Superblock returns length bytes anchored at the kilobyte offset of the matched magic.
//
// A nil magic anchors at the start of the device.
func (ctx *Context) Superblock(m *magic.Magic, length uint64) ([]byte, error) {
	if m == nil {
		return ctx.Buffer(0, length)
	}

	base, ok := m.Base(ctx.Size())
	if !ok {
		return nil, fmt.Errorf("%w: magic at %d KiB before the end", cache.ErrShortRead, -m.KBOffset)
	}

	return ctx.Buffer(base, length)
}

// Wiper returns the current wiper area.
func (ctx *Context) Wiper() Wiper { return ctx.wiper }

// SetWiper marks the area as zeroed by the current format, a zero size clears it.
func (ctx *Context) SetWiper(off, size uint64) {
	if size == 0 {
		ctx.wiper = Wiper{}

		return
	}

	ctx.logger.Debug("wiper set", zap.Uint64("offset", off), zap.Uint64("size", size))

	ctx.wiper = Wiper{Offset: off, Size: size}
}

// IsWiped returns true if the area lies entirely inside the wiper.
func (ctx *Context) IsWiped(off, size uint64) bool {
	if size == 0 || ctx.wiper.Size == 0 {
		return false
	}

	return ctx.wiper.Offset <= off && off+size <= ctx.wiper.Offset+ctx.wiper.Size
}

// Has returns true if the attribute is already set.
func (ctx *Context) Has(name string) bool {
	return ctx.store.Has(name)
}

// Set records the attribute.
//
// Conflicting values are a probe bug: they panic in debug mode and are dropped otherwise.
func (ctx *Context) Set(name string, data []byte, kind result.Kind) {
	if err := ctx.store.Set(name, data, kind); err != nil {
		if ctx.debug {
			panic(err)
		}

		ctx.logger.Warn("ignoring conflicting attribute", zap.String("name", name), zap.Error(err))
	}
}

// SetString records a string attribute.
func (ctx *Context) SetString(name, value string) {
	ctx.Set(name, []byte(value), result.KindString)
}

// Sprintf records a formatted string attribute.
func (ctx *Context) Sprintf(name, format string, args ...any) {
	ctx.SetString(name, fmt.Sprintf(format, args...))
}

// SetNumber records a numeric attribute.
func (ctx *Context) SetNumber(name string, value uint64) {
	ctx.Set(name, fmt.Appendf(nil, "%d", value), result.KindNumber)
}

// SetVersion records the VERSION attribute.
func (ctx *Context) SetVersion(format string, args ...any) {
	ctx.Sprintf(result.Version, format, args...)
}

// SetBlockSize records BLOCK_SIZE.
func (ctx *Context) SetBlockSize(size uint64) {
	ctx.SetNumber(result.BlockSize, size)
}

// SetFSBlockSize records FS_BLOCK_SIZE.
func (ctx *Context) SetFSBlockSize(size uint64) {
	ctx.SetNumber(result.FSBlockSize, size)
}

// SetFSSize records FS_SIZE.
func (ctx *Context) SetFSSize(size uint64) {
	ctx.SetNumber(result.FSSize, size)
}

// SetEndianness records the ENDIANNESS of a format supporting both byte orders.
func (ctx *Context) SetEndianness(order binary.ByteOrder) {
	if order == binary.BigEndian {
		ctx.SetString(result.Endianness, "BIG")

		return
	}

	ctx.SetString(result.Endianness, "LITTLE")
}

// SetMagic records SBMAGIC and SBMAGIC_OFFSET.
func (ctx *Context) SetMagic(off uint64, value []byte) {
	ctx.Set(result.SBMagic, value, result.KindRaw)
	ctx.SetNumber(result.SBMagicOffset, off)
}

// SetLabel records LABEL and LABEL_RAW from an 8-bit on-disk label.
//
// Empty labels are not recorded.
func (ctx *Context) SetLabel(buf []byte) {
	raw := utils.TrimLabel(buf)
	if len(raw) == 0 {
		return
	}

	ctx.Set(result.LabelRaw, raw, result.KindRaw)
	ctx.SetString(result.Label, utils.DecodeLabel(raw))
}

// SetIDLabel records a secondary 8-bit label attribute, such as a boot sector label.
func (ctx *Context) SetIDLabel(name string, buf []byte) {
	if label := utils.DecodeLabel(buf); label != "" {
		ctx.SetString(name, label)
	}
}

// SetUTF16Label records LABEL and LABEL_RAW from a UTF-16 on-disk label.
func (ctx *Context) SetUTF16Label(buf []byte, endianness unicode.Endianness) {
	label := utils.DecodeUTF16(buf, endianness)
	if label == "" {
		return
	}

	ctx.Set(result.LabelRaw, buf, result.KindRaw)
	ctx.SetString(result.Label, label)
}

// SetUUID records UUID from raw bytes.
//
// All-zero values are skipped, 16 bytes are rendered as a canonical UUID,
// anything else as lowercase hex.
func (ctx *Context) SetUUID(buf []byte) {
	ctx.SetUUIDAs(result.UUID, buf)
}

// SetUUIDAs records a UUID-like attribute under a custom name.
func (ctx *Context) SetUUIDAs(name string, buf []byte) {
	if utils.IsZero(buf) {
		return
	}

	if len(buf) == 16 {
		ctx.SetString(name, utils.FormatUUID(buf))

		return
	}

	ctx.Sprintf(name, "%x", buf)
}

// SprintfUUID records a UUID in a format specific rendering, unless raw is all zeroes.
func (ctx *Context) SprintfUUID(raw []byte, format string, args ...any) {
	if utils.IsZero(raw) {
		return
	}

	ctx.Sprintf(result.UUID, format, args...)
}

// VerifyChecksum compares the checksums according to the checksum policy.
func (ctx *Context) VerifyChecksum(computed, expected uint64) error {
	if computed == expected {
		return nil
	}

	if ctx.acceptBadChecksum {
		ctx.logger.Debug("accepting bad checksum", zap.Uint64("computed", computed), zap.Uint64("expected", expected))

		ctx.SetString(result.SBBadChecksum, "1")

		return nil
	}

	return fmt.Errorf("%w: computed %#x, expected %#x", ErrChecksumMismatch, computed, expected)
}
